package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mythsumon/job-sub002/internal/lifecycle"
	"github.com/mythsumon/job-sub002/internal/model"
	"github.com/mythsumon/job-sub002/internal/notify"
	"github.com/mythsumon/job-sub002/internal/reqctx"
	"github.com/mythsumon/job-sub002/internal/repository"
)

type ConversationService interface {
	Open(ctx context.Context, jobID uint64, employerUID, candidateUID string) (*model.Room, error)
	ListRooms(ctx context.Context, uid string) ([]model.Room, error)
	Get(ctx context.Context, roomID uint64, uid string) (*model.Room, error)
	ListMessages(ctx context.Context, roomID uint64, uid string) ([]model.Message, error)
	SendMessage(ctx context.Context, roomID uint64, uid string, in SendInput) (*model.Message, error)
	Close(ctx context.Context, roomID uint64, uid string) (*model.Room, error)
	RequestReopen(ctx context.Context, roomID uint64, uid string) (*model.Room, error)
	AcceptReopen(ctx context.Context, roomID uint64, uid string) (*model.Room, error)
	MarkRead(ctx context.Context, roomID uint64, uid string) error
	Delete(ctx context.Context, roomID uint64, uid string) error
	SharesRoom(ctx context.Context, uid, other string) (bool, error)
}

// maxSendAttempts bounds retries when concurrent sends keep bumping the room version.
const maxSendAttempts = 5

type SendInput struct {
	Body            string
	Kind            model.MessageKind
	ClientMessageID string
}

type conversationService struct {
	repo     repository.RoomRepository
	notifier NotificationService
	events   notify.Publisher
	now      func() time.Time
}

type Option func(*conversationService)

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *conversationService) { s.now = now }
}

func NewConversationService(repo repository.RoomRepository, notifier NotificationService, events notify.Publisher, opts ...Option) ConversationService {
	if events == nil {
		events = notify.Nop{}
	}
	s := &conversationService{
		repo:     repo,
		notifier: notifier,
		events:   events,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *conversationService) Open(ctx context.Context, jobID uint64, employerUID, candidateUID string) (*model.Room, error) {
	rm, err := lifecycle.NewRoom(jobID, employerUID, candidateUID, s.now())
	if err != nil {
		return nil, err
	}
	rm, created, err := s.repo.FindOrCreate(ctx, rm)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if created {
		s.publish(ctx, rm, notify.EventOpened, employerUID)
	}
	return rm, nil
}

func (s *conversationService) ListRooms(ctx context.Context, uid string) ([]model.Room, error) {
	if uid == "" {
		return nil, ErrForbidden
	}
	rooms, err := s.repo.FindByUser(ctx, uid)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return rooms, nil
}

func (s *conversationService) Get(ctx context.Context, roomID uint64, uid string) (*model.Room, error) {
	rm, err := s.load(ctx, roomID, uid)
	if err != nil {
		return nil, err
	}
	cnt, err := s.repo.CountUnread(ctx, roomID, uid)
	if err != nil {
		return nil, mapRepoError(err)
	}
	rm.UnreadCount = cnt
	return rm, nil
}

func (s *conversationService) ListMessages(ctx context.Context, roomID uint64, uid string) ([]model.Message, error) {
	if _, err := s.load(ctx, roomID, uid); err != nil {
		return nil, err
	}
	msgs, err := s.repo.ListMessages(ctx, roomID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return msgs, nil
}

func (s *conversationService) SendMessage(ctx context.Context, roomID uint64, uid string, in SendInput) (*model.Message, error) {
	if in.Kind == "" {
		in.Kind = model.MessageKindText
	}
	if err := lifecycle.ValidateMessage(in.Body, in.Kind); err != nil {
		return nil, err
	}
	rm, err := s.load(ctx, roomID, uid)
	if err != nil {
		return nil, err
	}
	if in.ClientMessageID != "" {
		existing, err := s.repo.FindMessageByClientID(ctx, roomID, in.ClientMessageID)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, mapRepoError(err)
		}
	}
	if err := lifecycle.CanSend(rm, uid, in.Body, in.Kind); err != nil {
		return nil, err
	}
	var msg *model.Message
	for attempt := 1; ; attempt++ {
		msg = &model.Message{
			RoomID:   roomID,
			SenderID: uid,
			Body:     in.Body,
			Kind:     in.Kind,
			SentAt:   lifecycle.NextSentAt(rm, s.now()),
		}
		if in.ClientMessageID != "" {
			cid := in.ClientMessageID
			msg.ClientMessageID = &cid
		}
		err := mapRepoError(s.repo.AppendMessage(ctx, rm, msg))
		if err == nil {
			break
		}
		if !errors.Is(err, ErrConflict) {
			return nil, err
		}
		// Another send or transition won the version race. Sends only fail
		// when the room left active; otherwise retry against the fresh row.
		fresh, ferr := s.repo.FindByID(ctx, roomID)
		if ferr != nil {
			return nil, mapRepoError(ferr)
		}
		if blocked := lifecycle.SendBlocked(fresh); blocked != nil {
			return nil, blocked
		}
		if attempt >= maxSendAttempts {
			return nil, err
		}
		rm = fresh
	}
	s.publish(ctx, rm, notify.EventMessage, uid)
	s.notify(ctx, rm, uid, model.NotificationTypeMessage, "New message", preview(in.Body))
	return msg, nil
}

func (s *conversationService) Close(ctx context.Context, roomID uint64, uid string) (*model.Room, error) {
	rm, err := s.transition(ctx, roomID, uid, func(rm *model.Room) error {
		return lifecycle.Close(rm, uid, s.now())
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, rm, notify.EventClosed, uid)
	s.notify(ctx, rm, uid, model.NotificationTypeRoomClosed, "Conversation closed", "The other participant closed this conversation.")
	return rm, nil
}

func (s *conversationService) RequestReopen(ctx context.Context, roomID uint64, uid string) (*model.Room, error) {
	rm, err := s.transition(ctx, roomID, uid, func(rm *model.Room) error {
		return lifecycle.RequestReopen(rm, uid, s.now())
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, rm, notify.EventReopenRequested, uid)
	s.notify(ctx, rm, uid, model.NotificationTypeReopenRequested, "Reopen requested", "The other participant asked to reopen this conversation.")
	return rm, nil
}

func (s *conversationService) AcceptReopen(ctx context.Context, roomID uint64, uid string) (*model.Room, error) {
	rm, err := s.transition(ctx, roomID, uid, func(rm *model.Room) error {
		return lifecycle.AcceptReopen(rm, uid)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, rm, notify.EventReopenAccepted, uid)
	s.notify(ctx, rm, uid, model.NotificationTypeReopenAccepted, "Conversation reopened", "Your reopen request was accepted.")
	return rm, nil
}

// MarkRead succeeds even when there is nothing left to mark.
func (s *conversationService) MarkRead(ctx context.Context, roomID uint64, uid string) error {
	rm, err := s.load(ctx, roomID, uid)
	if err != nil {
		return err
	}
	n, err := s.repo.MarkRead(ctx, roomID, uid)
	if err != nil {
		return mapRepoError(err)
	}
	if s.notifier != nil {
		if err := s.notifier.MarkByRoom(ctx, uid, roomID); err != nil {
			reqctx.Logger(ctx).Warn().Err(err).Uint64("room_id", roomID).Msg("mark room notifications read")
		}
	}
	if n > 0 {
		s.publish(ctx, rm, notify.EventRead, uid)
	}
	return nil
}

func (s *conversationService) Delete(ctx context.Context, roomID uint64, uid string) error {
	rm, err := s.load(ctx, roomID, uid)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, roomID); err != nil {
		return mapRepoError(err)
	}
	s.publish(ctx, rm, notify.EventDeleted, uid)
	return nil
}

func (s *conversationService) SharesRoom(ctx context.Context, uid, other string) (bool, error) {
	if uid == "" || other == "" {
		return false, nil
	}
	if uid == other {
		return true, nil
	}
	ok, err := s.repo.SharesRoom(ctx, uid, other)
	return ok, mapRepoError(err)
}

// load fetches the room and checks that uid takes part in it.
func (s *conversationService) load(ctx context.Context, roomID uint64, uid string) (*model.Room, error) {
	rm, err := s.repo.FindByID(ctx, roomID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if err := lifecycle.CanAct(rm, uid); err != nil {
		return nil, err
	}
	return rm, nil
}

func (s *conversationService) transition(ctx context.Context, roomID uint64, uid string, apply func(*model.Room) error) (*model.Room, error) {
	rm, err := s.load(ctx, roomID, uid)
	if err != nil {
		return nil, err
	}
	if err := apply(rm); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateState(ctx, rm); err != nil {
		return nil, mapRepoError(err)
	}
	return rm, nil
}

func (s *conversationService) publish(ctx context.Context, rm *model.Room, typ notify.EventType, actor string) {
	ev := notify.RoomEvent{
		Type:    typ,
		RoomID:  rm.ID,
		ActorID: actor,
		Status:  string(rm.Status),
		At:      s.now(),
	}
	if err := s.events.Publish(ctx, []string{rm.ParticipantA, rm.ParticipantB}, ev); err != nil {
		reqctx.Logger(ctx).Warn().Err(err).Uint64("room_id", rm.ID).Str("event", string(typ)).Msg("publish room event")
	}
}

func (s *conversationService) notify(ctx context.Context, rm *model.Room, actor, typ, title, body string) {
	if s.notifier == nil {
		return
	}
	roomID := rm.ID
	s.notifier.Notify(ctx, rm.Counterpart(actor), typ, title, body, &roomID)
}

func preview(body string) string {
	body = strings.TrimSpace(body)
	r := []rune(body)
	if len(r) > 80 {
		return string(r[:80]) + "…"
	}
	return body
}
