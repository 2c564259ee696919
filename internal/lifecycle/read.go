package lifecycle

import (
	"sort"

	"github.com/mythsumon/job-sub002/internal/model"
)

// UnreadFor counts messages addressed to viewer that viewer has not marked read.
func UnreadFor(viewer string, msgs []model.Message) int64 {
	var n int64
	for _, m := range msgs {
		if m.SenderID != viewer && !m.ReadByRecipient {
			n++
		}
	}
	return n
}

// MarkRead flips readByRecipient on every message addressed to viewer and
// returns how many changed. Calling it again is a no-op.
func MarkRead(viewer string, msgs []model.Message) int {
	changed := 0
	for i := range msgs {
		if msgs[i].SenderID != viewer && !msgs[i].ReadByRecipient {
			msgs[i].ReadByRecipient = true
			changed++
		}
	}
	return changed
}

// SortRooms orders rooms by lastMessageAt desc, then id desc.
func SortRooms(rooms []model.Room) {
	sort.SliceStable(rooms, func(i, j int) bool {
		return RoomLess(&rooms[i], &rooms[j])
	})
}

// RoomLess reports whether a sorts before b in a room listing.
func RoomLess(a, b *model.Room) bool {
	if !a.LastMessageAt.Equal(b.LastMessageAt) {
		return a.LastMessageAt.After(b.LastMessageAt)
	}
	return a.ID > b.ID
}

// SortMessages orders messages by sentAt asc, then id asc.
func SortMessages(msgs []model.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].SentAt.Equal(msgs[j].SentAt) {
			return msgs[i].SentAt.Before(msgs[j].SentAt)
		}
		return msgs[i].ID < msgs[j].ID
	})
}
