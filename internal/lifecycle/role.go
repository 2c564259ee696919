package lifecycle

import "github.com/mythsumon/job-sub002/internal/model"

type Role int

const (
	RoleNone Role = iota
	RoleEmployer
	RoleCandidate
)

func (r Role) String() string {
	switch r {
	case RoleEmployer:
		return "employer"
	case RoleCandidate:
		return "candidate"
	}
	return "none"
}

// RoleOf resolves the viewer's role from their position in the room.
func RoleOf(r *model.Room, viewer string) Role {
	switch {
	case viewer == "":
		return RoleNone
	case viewer == r.ParticipantA:
		return RoleEmployer
	case viewer == r.ParticipantB:
		return RoleCandidate
	}
	return RoleNone
}
