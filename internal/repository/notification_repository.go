package repository

import (
	"context"
	"errors"
	"time"

	"github.com/mythsumon/job-sub002/internal/model"
	"gorm.io/gorm"
)

// NotificationRepository stores the per-user inbox entries raised by room
// activity. Unread message entries are kept one per room.
type NotificationRepository interface {
	Record(ctx context.Context, n *model.Notification) error
	ListByUser(ctx context.Context, userUID string, unreadOnly bool, limit int) ([]model.Notification, error)
	MarkAllRead(ctx context.Context, userUID string) (int64, error)
	MarkByRoom(ctx context.Context, userUID string, roomID uint64) (int64, error)
	CountUnread(ctx context.Context, userUID string) (int64, error)
	SetDB(db *gorm.DB)
}

const (
	defaultNotificationLimit = 20
	maxNotificationLimit     = 50
)

type notificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

// Record inserts n, except that a new message in a room which already has an
// unread message entry for the same user folds into that entry.
func (r *notificationRepository) Record(ctx context.Context, n *model.Notification) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	if n.MessageCount == 0 {
		n.MessageCount = 1
	}
	if n.Type != model.NotificationTypeMessage || n.RoomID == nil {
		return r.db.WithContext(ctx).Create(n).Error
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var prev model.Notification
		err := unread(tx, n.UserUID).
			Where("room_id = ? AND type = ?", *n.RoomID, model.NotificationTypeMessage).
			Order("id DESC").
			Take(&prev).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(n).Error
		}
		if err != nil {
			return err
		}
		now := tx.NowFunc()
		if err := tx.Model(&prev).Updates(map[string]interface{}{
			"title":         n.Title,
			"body":          n.Body,
			"created_at":    now,
			"message_count": gorm.Expr("message_count + ?", n.MessageCount),
		}).Error; err != nil {
			return err
		}
		n.ID = prev.ID
		n.CreatedAt = now
		n.MessageCount += prev.MessageCount
		return nil
	})
}

func (r *notificationRepository) ListByUser(ctx context.Context, userUID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	if limit <= 0 || limit > maxNotificationLimit {
		limit = defaultNotificationLimit
	}
	q := r.db.WithContext(ctx).Where("user_uid = ?", userUID)
	if unreadOnly {
		q = unread(r.db.WithContext(ctx), userUID)
	}
	var list []model.Notification
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// MarkAllRead reports how many entries changed.
func (r *notificationRepository) MarkAllRead(ctx context.Context, userUID string) (int64, error) {
	if r.db == nil {
		return 0, ErrDBNotReady
	}
	return markRead(unread(r.db.WithContext(ctx), userUID), r.db.NowFunc())
}

// MarkByRoom clears every unread entry the room raised for userUID.
func (r *notificationRepository) MarkByRoom(ctx context.Context, userUID string, roomID uint64) (int64, error) {
	if r.db == nil {
		return 0, ErrDBNotReady
	}
	return markRead(unread(r.db.WithContext(ctx), userUID).Where("room_id = ?", roomID), r.db.NowFunc())
}

func (r *notificationRepository) CountUnread(ctx context.Context, userUID string) (int64, error) {
	if r.db == nil {
		return 0, ErrDBNotReady
	}
	var cnt int64
	if err := unread(r.db.WithContext(ctx), userUID).Count(&cnt).Error; err != nil {
		return 0, err
	}
	return cnt, nil
}

func (r *notificationRepository) SetDB(db *gorm.DB) {
	r.db = db
}

func unread(db *gorm.DB, userUID string) *gorm.DB {
	return db.Model(&model.Notification{}).Where("user_uid = ? AND read_at IS NULL", userUID)
}

func markRead(q *gorm.DB, at time.Time) (int64, error) {
	res := q.Update("read_at", at)
	return res.RowsAffected, res.Error
}
