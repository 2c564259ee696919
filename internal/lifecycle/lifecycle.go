// Package lifecycle holds the conversation room state machine. Every
// transition either mutates the room and returns nil, or returns an error and
// leaves the room untouched.
package lifecycle

import (
	"strings"
	"time"

	"github.com/mythsumon/job-sub002/internal/model"
)

// NewRoom returns an Active room between an employer and a candidate.
func NewRoom(jobID uint64, employerID, candidateID string, now time.Time) (*model.Room, error) {
	if employerID == "" || candidateID == "" {
		return nil, validation(ReasonNoParticipants)
	}
	if employerID == candidateID {
		return nil, validation(ReasonSameParticipants)
	}
	return &model.Room{
		ParticipantA:  employerID,
		ParticipantB:  candidateID,
		SubjectJobID:  jobID,
		Status:        model.RoomStatusActive,
		LastMessageAt: now,
	}, nil
}

func Close(r *model.Room, actor string, now time.Time) error {
	if !r.HasParticipant(actor) {
		return unauthorized()
	}
	switch r.Status {
	case model.RoomStatusActive:
	case model.RoomStatusClosed:
		return invalid(ReasonRoomClosed)
	default:
		return invalid(ReasonReopenPending)
	}
	r.Status = model.RoomStatusClosed
	r.ClosedBy = strPtr(actor)
	r.ClosedAt = timePtr(now)
	return nil
}

// RequestReopen moves a Closed room to PendingReopen. The participant who
// closed the room cannot ask to reopen it; the other side has to.
func RequestReopen(r *model.Room, actor string, now time.Time) error {
	if !r.HasParticipant(actor) {
		return unauthorized()
	}
	switch r.Status {
	case model.RoomStatusClosed:
	case model.RoomStatusActive:
		return invalid(ReasonRoomActive)
	default:
		return invalid(ReasonReopenPending)
	}
	if r.ClosedBy != nil && *r.ClosedBy == actor {
		return invalid(ReasonReopenOwnClose)
	}
	r.Status = model.RoomStatusPendingReopen
	r.ReopenRequestedBy = strPtr(actor)
	r.ReopenRequestedAt = timePtr(now)
	return nil
}

func AcceptReopen(r *model.Room, actor string) error {
	if !r.HasParticipant(actor) {
		return unauthorized()
	}
	switch r.Status {
	case model.RoomStatusPendingReopen:
	case model.RoomStatusActive:
		return invalid(ReasonRoomActive)
	default:
		return invalid(ReasonNoPendingReopen)
	}
	if r.ReopenRequestedBy != nil && *r.ReopenRequestedBy == actor {
		return invalid(ReasonOwnReopenRequest)
	}
	r.Status = model.RoomStatusActive
	r.ClosedBy = nil
	r.ClosedAt = nil
	r.ReopenRequestedBy = nil
	r.ReopenRequestedAt = nil
	return nil
}

// CanSend checks whether actor may post a message of the given kind right now.
func CanSend(r *model.Room, actor, body string, kind model.MessageKind) error {
	if !r.HasParticipant(actor) {
		return unauthorized()
	}
	if err := ValidateMessage(body, kind); err != nil {
		return err
	}
	return SendBlocked(r)
}

// SendBlocked returns the reason the room does not accept messages, or nil.
func SendBlocked(r *model.Room) error {
	switch r.Status {
	case model.RoomStatusActive:
		return nil
	case model.RoomStatusClosed:
		return invalid(ReasonRoomClosed)
	default:
		return invalid(ReasonReopenPending)
	}
}

func ValidateMessage(body string, kind model.MessageKind) error {
	switch kind {
	case model.MessageKindText, model.MessageKindSystem:
	default:
		return validation(ReasonUnknownKind)
	}
	if strings.TrimSpace(body) == "" {
		return validation(ReasonEmptyBody)
	}
	return nil
}

// CanAcceptReopen is the affordance check used before offering "accept".
func CanAcceptReopen(r *model.Room, actor string) bool {
	return r.HasParticipant(actor) &&
		r.Status == model.RoomStatusPendingReopen &&
		(r.ReopenRequestedBy == nil || *r.ReopenRequestedBy != actor)
}

// CanAct guards MarkRead and Delete, which are allowed in any state.
func CanAct(r *model.Room, actor string) error {
	if !r.HasParticipant(actor) {
		return unauthorized()
	}
	return nil
}

// NextSentAt keeps sentAt strictly increasing inside a room even when the
// clock does not move between two sends.
func NextSentAt(r *model.Room, now time.Time) time.Time {
	if now.After(r.LastMessageAt) {
		return now
	}
	return r.LastMessageAt.Add(time.Millisecond)
}

func strPtr(s string) *string {
	return &s
}

func timePtr(t time.Time) *time.Time {
	return &t
}
