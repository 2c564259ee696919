package service

import (
	"context"
	"time"

	"github.com/mythsumon/job-sub002/internal/model"
	"github.com/mythsumon/job-sub002/internal/reqctx"
	"github.com/mythsumon/job-sub002/internal/repository"
)

type NotificationService interface {
	Notify(ctx context.Context, userUID, typ, title, body string, roomID *uint64)
	List(ctx context.Context, userUID string, unreadOnly bool, limit int) ([]model.Notification, int64, error)
	MarkAllRead(ctx context.Context, userUID string) error
	MarkByRoom(ctx context.Context, userUID string, roomID uint64) error
}

type notificationService struct {
	repo repository.NotificationRepository
}

func NewNotificationService(repo repository.NotificationRepository) NotificationService {
	return &notificationService{repo: repo}
}

// Notify is best-effort; it logs errors but does not return them to avoid breaking main flows.
func (s *notificationService) Notify(ctx context.Context, userUID, typ, title, body string, roomID *uint64) {
	if userUID == "" || typ == "" {
		return
	}
	n := &model.Notification{
		UserUID: userUID,
		Type:    typ,
		Title:   title,
		Body:    body,
		RoomID:  roomID,
	}
	dctx, cancel := withShortDeadline(ctx)
	defer cancel()
	if err := s.repo.Record(dctx, n); err != nil {
		reqctx.Logger(ctx).Warn().Err(err).Str("type", typ).Msg("create notification")
	}
}

func (s *notificationService) List(ctx context.Context, userUID string, unreadOnly bool, limit int) ([]model.Notification, int64, error) {
	if userUID == "" {
		return nil, 0, nil
	}
	list, err := s.repo.ListByUser(ctx, userUID, unreadOnly, limit)
	if err != nil {
		return nil, 0, err
	}
	cnt, err := s.repo.CountUnread(ctx, userUID)
	if err != nil {
		return list, 0, err
	}
	return list, cnt, nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, userUID string) error {
	if userUID == "" {
		return nil
	}
	n, err := s.repo.MarkAllRead(ctx, userUID)
	if err != nil {
		return err
	}
	reqctx.Logger(ctx).Debug().Int64("count", n).Msg("notifications marked read")
	return nil
}

func (s *notificationService) MarkByRoom(ctx context.Context, userUID string, roomID uint64) error {
	if userUID == "" || roomID == 0 {
		return nil
	}
	_, err := s.repo.MarkByRoom(ctx, userUID, roomID)
	return err
}

// withShortDeadline keeps a slow notification insert from blocking the caller.
func withShortDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 2*time.Second)
}
