package model

import "time"

const (
	NotificationTypeMessage         = "message"
	NotificationTypeRoomClosed      = "room_closed"
	NotificationTypeReopenRequested = "reopen_requested"
	NotificationTypeReopenAccepted  = "reopen_accepted"
)

type Notification struct {
	ID        uint64     `gorm:"primaryKey;autoIncrement"`
	UserUID   string     `gorm:"column:user_uid;size:128;index;not null"`
	Type      string     `gorm:"column:type;size:64;not null"`
	Title     string     `gorm:"column:title;size:255"`
	Body      string     `gorm:"column:body;type:text"`
	RoomID    *uint64    `gorm:"column:room_id;index"`
	ReadAt    *time.Time `gorm:"column:read_at"`
	CreatedAt time.Time  `gorm:"autoCreateTime"`

	// MessageCount is how many unread messages this entry stands for.
	MessageCount int `gorm:"column:message_count;not null;default:1"`
}

func (Notification) TableName() string {
	return "notifications"
}
