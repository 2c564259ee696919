package repository

import (
	"context"
	"errors"

	"github.com/mythsumon/job-sub002/internal/model"
	"gorm.io/gorm"
)

type RoomRepository interface {
	FindOrCreate(ctx context.Context, room *model.Room) (*model.Room, bool, error)
	FindByID(ctx context.Context, id uint64) (*model.Room, error)
	FindByUser(ctx context.Context, uid string) ([]model.Room, error)
	SharesRoom(ctx context.Context, uidA, uidB string) (bool, error)
	UpdateState(ctx context.Context, room *model.Room) error
	AppendMessage(ctx context.Context, room *model.Room, msg *model.Message) error
	FindMessageByClientID(ctx context.Context, roomID uint64, clientID string) (*model.Message, error)
	ListMessages(ctx context.Context, roomID uint64) ([]model.Message, error)
	MarkRead(ctx context.Context, roomID uint64, viewer string) (int64, error)
	CountUnread(ctx context.Context, roomID uint64, viewer string) (int64, error)
	Delete(ctx context.Context, roomID uint64) error
	SetDB(db *gorm.DB)
}

type unreadRow struct {
	RoomID uint64
	Cnt    int64
}

type roomRepository struct {
	db *gorm.DB
}

func NewRoomRepository(db *gorm.DB) RoomRepository {
	return &roomRepository{db: db}
}

func (r *roomRepository) SetDB(db *gorm.DB) {
	r.db = db
}

// FindOrCreate returns the room for the (job, employer, candidate) triple,
// inserting room when there is none. created reports whether a row was written.
func (r *roomRepository) FindOrCreate(ctx context.Context, room *model.Room) (*model.Room, bool, error) {
	if r.db == nil {
		return nil, false, ErrDBNotReady
	}
	rm := *room
	res := r.db.WithContext(ctx).
		Where("subject_job_id = ? AND participant_a = ? AND participant_b = ?", room.SubjectJobID, room.ParticipantA, room.ParticipantB).
		FirstOrCreate(&rm)
	if res.Error != nil {
		return nil, false, res.Error
	}
	return &rm, res.RowsAffected > 0, nil
}

func (r *roomRepository) FindByID(ctx context.Context, id uint64) (*model.Room, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var rm model.Room
	if err := r.db.WithContext(ctx).First(&rm, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rm, nil
}

// FindByUser lists the rooms uid takes part in, newest activity first, with
// UnreadCount filled in for uid.
func (r *roomRepository) FindByUser(ctx context.Context, uid string) ([]model.Room, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var list []model.Room
	if err := r.db.WithContext(ctx).
		Where("participant_a = ? OR participant_b = ?", uid, uid).
		Order("last_message_at DESC").
		Order("id DESC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return list, nil
	}
	ids := make([]uint64, 0, len(list))
	for _, rm := range list {
		ids = append(ids, rm.ID)
	}
	var rows []unreadRow
	if err := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Select("room_id, COUNT(*) AS cnt").
		Where("room_id IN ? AND sender_id <> ? AND read_by_recipient = ?", ids, uid, false).
		Group("room_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	unread := make(map[uint64]int64, len(rows))
	for _, row := range rows {
		unread[row.RoomID] = row.Cnt
	}
	for i := range list {
		list[i].UnreadCount = unread[list[i].ID]
	}
	return list, nil
}

func (r *roomRepository) SharesRoom(ctx context.Context, uidA, uidB string) (bool, error) {
	if r.db == nil {
		return false, ErrDBNotReady
	}
	var cnt int64
	if err := r.db.WithContext(ctx).
		Model(&model.Room{}).
		Where("(participant_a = ? AND participant_b = ?) OR (participant_a = ? AND participant_b = ?)", uidA, uidB, uidB, uidA).
		Count(&cnt).Error; err != nil {
		return false, err
	}
	return cnt > 0, nil
}

// UpdateState persists the lifecycle fields of room if nobody else changed it
// since it was loaded. On success room.Version is advanced.
func (r *roomRepository) UpdateState(ctx context.Context, room *model.Room) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	res := r.db.WithContext(ctx).
		Model(&model.Room{}).
		Where("id = ? AND version = ?", room.ID, room.Version).
		Updates(map[string]interface{}{
			"status":              room.Status,
			"closed_by":           room.ClosedBy,
			"closed_at":           room.ClosedAt,
			"reopen_requested_by": room.ReopenRequestedBy,
			"reopen_requested_at": room.ReopenRequestedAt,
			"version":             gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return r.missOrConflict(ctx, r.db, room.ID)
	}
	room.Version++
	return nil
}

// AppendMessage stores msg and bumps the room's lastMessageAt in one
// transaction. The room update only applies while the room is still active
// at the loaded version, so a concurrent close rolls the insert back.
func (r *roomRepository) AppendMessage(ctx context.Context, room *model.Room, msg *model.Message) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		res := tx.Model(&model.Room{}).
			Where("id = ? AND version = ? AND status = ?", room.ID, room.Version, model.RoomStatusActive).
			Updates(map[string]interface{}{
				"last_message_at": msg.SentAt,
				"version":         gorm.Expr("version + 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return r.missOrConflict(ctx, tx, room.ID)
		}
		room.LastMessageAt = msg.SentAt
		room.Version++
		return nil
	})
}

func (r *roomRepository) FindMessageByClientID(ctx context.Context, roomID uint64, clientID string) (*model.Message, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var msg model.Message
	if err := r.db.WithContext(ctx).
		Where("room_id = ? AND client_message_id = ?", roomID, clientID).
		First(&msg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &msg, nil
}

func (r *roomRepository) ListMessages(ctx context.Context, roomID uint64) ([]model.Message, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var msgs []model.Message
	if err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("sent_at ASC").
		Order("id ASC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *roomRepository) MarkRead(ctx context.Context, roomID uint64, viewer string) (int64, error) {
	if r.db == nil {
		return 0, ErrDBNotReady
	}
	res := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("room_id = ? AND sender_id <> ? AND read_by_recipient = ?", roomID, viewer, false).
		Update("read_by_recipient", true)
	return res.RowsAffected, res.Error
}

func (r *roomRepository) CountUnread(ctx context.Context, roomID uint64, viewer string) (int64, error) {
	if r.db == nil {
		return 0, ErrDBNotReady
	}
	var cnt int64
	if err := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("room_id = ? AND sender_id <> ? AND read_by_recipient = ?", roomID, viewer, false).
		Count(&cnt).Error; err != nil {
		return 0, err
	}
	return cnt, nil
}

// Delete removes the room together with its messages and notifications.
func (r *roomRepository) Delete(ctx context.Context, roomID uint64) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", roomID).Delete(&model.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("room_id = ?", roomID).Delete(&model.Notification{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&model.Room{}, roomID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *roomRepository) missOrConflict(ctx context.Context, db *gorm.DB, roomID uint64) error {
	var cnt int64
	if err := db.WithContext(ctx).Model(&model.Room{}).Where("id = ?", roomID).Count(&cnt).Error; err != nil {
		return err
	}
	if cnt == 0 {
		return ErrNotFound
	}
	return ErrConflict
}
