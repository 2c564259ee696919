package model

import "time"

type MessageKind string

const (
	MessageKindText   MessageKind = "text"
	MessageKindSystem MessageKind = "system"
)

type Message struct {
	ID              uint64      `gorm:"primaryKey;autoIncrement" json:"id"`
	RoomID          uint64      `gorm:"column:room_id;index;uniqueIndex:uniq_room_client_msg" json:"roomId"`
	SenderID        string      `gorm:"column:sender_id;size:128;index" json:"senderId"`
	Body            string      `gorm:"type:text;not null" json:"body"`
	Kind            MessageKind `gorm:"column:kind;size:32;not null;default:text" json:"kind"`
	ClientMessageID *string     `gorm:"column:client_message_id;size:64;uniqueIndex:uniq_room_client_msg" json:"clientMessageId,omitempty"`
	ReadByRecipient bool        `gorm:"column:read_by_recipient;not null;default:false" json:"readByRecipient"`
	SentAt          time.Time   `gorm:"column:sent_at;index" json:"sentAt"`
}

func (Message) TableName() string {
	return "messages"
}
