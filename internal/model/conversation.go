package model

import "time"

type RoomStatus string

const (
	RoomStatusActive        RoomStatus = "active"
	RoomStatusClosed        RoomStatus = "closed"
	RoomStatusPendingReopen RoomStatus = "pending_reopen"
)

// Room is a two-party conversation about a job posting. ParticipantA is
// conventionally the employer and ParticipantB the candidate.
type Room struct {
	ID                uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ParticipantA      string     `gorm:"column:participant_a;size:128;index;uniqueIndex:uniq_job_pair" json:"participantA"`
	ParticipantB      string     `gorm:"column:participant_b;size:128;index;uniqueIndex:uniq_job_pair" json:"participantB"`
	SubjectJobID      uint64     `gorm:"column:subject_job_id;uniqueIndex:uniq_job_pair" json:"subjectJobId"`
	Status            RoomStatus `gorm:"column:status;size:32;not null;default:active" json:"status"`
	ClosedBy          *string    `gorm:"column:closed_by;size:128" json:"closedBy,omitempty"`
	ClosedAt          *time.Time `gorm:"column:closed_at" json:"closedAt,omitempty"`
	ReopenRequestedBy *string    `gorm:"column:reopen_requested_by;size:128" json:"reopenRequestedBy,omitempty"`
	ReopenRequestedAt *time.Time `gorm:"column:reopen_requested_at" json:"reopenRequestedAt,omitempty"`
	LastMessageAt     time.Time  `gorm:"column:last_message_at;index" json:"lastMessageAt"`
	Version           uint64     `gorm:"column:version;not null;default:0" json:"-"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`

	// UnreadCount is computed per viewer and never stored.
	UnreadCount int64 `gorm:"-" json:"unreadCount"`
}

func (Room) TableName() string {
	return "rooms"
}

func (r *Room) HasParticipant(uid string) bool {
	return uid != "" && (r.ParticipantA == uid || r.ParticipantB == uid)
}

// Counterpart returns the other participant, or "" if uid is not in the room.
func (r *Room) Counterpart(uid string) string {
	switch uid {
	case r.ParticipantA:
		return r.ParticipantB
	case r.ParticipantB:
		return r.ParticipantA
	}
	return ""
}
