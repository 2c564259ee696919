// Package inbox keeps one viewer's view of their conversations in sync with
// the API and gates user actions on the room lifecycle before issuing them.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mythsumon/job-sub002/internal/lifecycle"
	"github.com/mythsumon/job-sub002/internal/model"
	"github.com/mythsumon/job-sub002/internal/notify"
	"github.com/rs/zerolog"
)

const (
	DefaultRoomsInterval    = 10 * time.Second
	DefaultMessagesInterval = 5 * time.Second
)

// ErrPending is returned while the same action on the same room is in flight.
var ErrPending = errors.New("action already in progress")

// Service is the conversation API as seen by one signed-in viewer.
type Service interface {
	ListRooms(ctx context.Context) ([]model.Room, error)
	ListMessages(ctx context.Context, roomID uint64) ([]model.Message, error)
	// SendMessage must treat a repeated clientMessageID as the same message.
	SendMessage(ctx context.Context, roomID uint64, body string, kind model.MessageKind, clientMessageID string) (*model.Message, error)
	CloseRoom(ctx context.Context, roomID uint64) (*model.Room, error)
	RequestReopen(ctx context.Context, roomID uint64) (*model.Room, error)
	AcceptReopen(ctx context.Context, roomID uint64) (*model.Room, error)
	MarkRead(ctx context.Context, roomID uint64) error
	DeleteRoom(ctx context.Context, roomID uint64) error
}

type Config struct {
	RoomsInterval    time.Duration
	MessagesInterval time.Duration
	Logger           zerolog.Logger
	Now              func() time.Time
}

// Snapshot is a copy of the session state; callers may keep it.
type Snapshot struct {
	Rooms      []model.Room
	ActiveRoom uint64
	Messages   []model.Message
}

// Action names a user action for pending tracking.
type Action string

const (
	ActionSend          Action = "send"
	ActionClose         Action = "close"
	ActionRequestReopen Action = "request_reopen"
	ActionAcceptReopen  Action = "accept_reopen"
	ActionMarkRead      Action = "mark_read"
	ActionDelete        Action = "delete"
)

type pendingKey struct {
	roomID uint64
	act    Action
}

type Session struct {
	svc    Service
	viewer string
	cfg    Config
	log    zerolog.Logger

	mu       sync.RWMutex
	rooms    []model.Room
	active   uint64
	messages []model.Message
	pending  map[pendingKey]struct{}
	// unsent holds the last send per room that failed retryably, so a retry
	// of the same body reuses its client message id.
	unsent   map[uint64]unsentMessage
}

type unsentMessage struct {
	body            string
	clientMessageID string
}

func NewSession(svc Service, viewer string, cfg Config) *Session {
	if cfg.RoomsInterval <= 0 {
		cfg.RoomsInterval = DefaultRoomsInterval
	}
	if cfg.MessagesInterval <= 0 {
		cfg.MessagesInterval = DefaultMessagesInterval
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Session{
		svc:     svc,
		viewer:  viewer,
		cfg:     cfg,
		log:     cfg.Logger.With().Str("viewer", viewer).Logger(),
		pending: make(map[pendingKey]struct{}),
		unsent:  make(map[uint64]unsentMessage),
	}
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Rooms:      append([]model.Room(nil), s.rooms...),
		ActiveRoom: s.active,
		Messages:   append([]model.Message(nil), s.messages...),
	}
}

// Room returns the last known state of roomID.
func (s *Session) Room(roomID uint64) (model.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(roomID)
	if i < 0 {
		return model.Room{}, false
	}
	return s.rooms[i], true
}

// Open makes roomID the room whose messages are polled.
func (s *Session) Open(ctx context.Context, roomID uint64) error {
	s.mu.Lock()
	if s.active != roomID {
		s.active = roomID
		s.messages = nil
	}
	s.mu.Unlock()
	return s.RefreshMessages(ctx)
}

// RefreshRooms re-reads the room list. Transient failures keep the previous
// snapshot and report nothing; the next interval retries.
func (s *Session) RefreshRooms(ctx context.Context) error {
	rooms, err := s.svc.ListRooms(ctx)
	if err != nil {
		if errors.Is(err, lifecycle.ErrTransient) {
			s.log.Warn().Err(err).Msg("refresh rooms")
			return nil
		}
		return err
	}
	lifecycle.SortRooms(rooms)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms = rooms
	if s.active != 0 && s.indexOf(s.active) < 0 {
		s.active = 0
		s.messages = nil
	}
	return nil
}

// RefreshMessages re-reads the active room's messages. A room that no longer
// exists is dropped from the snapshot.
func (s *Session) RefreshMessages(ctx context.Context) error {
	s.mu.RLock()
	roomID := s.active
	s.mu.RUnlock()
	if roomID == 0 {
		return nil
	}

	msgs, err := s.svc.ListMessages(ctx, roomID)
	switch {
	case err == nil:
	case errors.Is(err, lifecycle.ErrTransient):
		s.log.Warn().Err(err).Uint64("room_id", roomID).Msg("refresh messages")
		return nil
	case errors.Is(err, lifecycle.ErrNotFound):
		s.drop(roomID)
		return nil
	default:
		return err
	}
	lifecycle.SortMessages(msgs)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == roomID {
		s.messages = msgs
	}
	return nil
}

// Run polls until ctx ends. Events, when non-nil, trigger an immediate refresh
// of whatever they touch.
func (s *Session) Run(ctx context.Context, events <-chan notify.RoomEvent) error {
	s.refreshAll(ctx)

	roomsTicker := time.NewTicker(s.cfg.RoomsInterval)
	defer roomsTicker.Stop()
	msgsTicker := time.NewTicker(s.cfg.MessagesInterval)
	defer msgsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-roomsTicker.C:
			s.logRefresh(s.RefreshRooms(ctx), "rooms")
		case <-msgsTicker.C:
			s.logRefresh(s.RefreshMessages(ctx), "messages")
		case ev, ok := <-events:
			if !ok {
				s.log.Warn().Msg("room event stream closed; polling only")
				events = nil
				continue
			}
			s.log.Debug().Str("event", string(ev.Type)).Uint64("room_id", ev.RoomID).Msg("room event")
			s.logRefresh(s.RefreshRooms(ctx), "rooms")
			s.mu.RLock()
			touchesActive := s.active == ev.RoomID
			s.mu.RUnlock()
			if touchesActive {
				s.logRefresh(s.RefreshMessages(ctx), "messages")
			}
		}
	}
}

func (s *Session) refreshAll(ctx context.Context) {
	s.logRefresh(s.RefreshRooms(ctx), "rooms")
	s.logRefresh(s.RefreshMessages(ctx), "messages")
}

func (s *Session) logRefresh(err error, what string) {
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Error().Err(err).Str("what", what).Msg("refresh failed")
	}
}

// CanSend returns why a send to roomID would be rejected, or nil.
func (s *Session) CanSend(roomID uint64) error {
	rm, err := s.known(roomID)
	if err != nil {
		return err
	}
	if err := lifecycle.CanAct(&rm, s.viewer); err != nil {
		return err
	}
	return lifecycle.SendBlocked(&rm)
}

func (s *Session) CanAcceptReopen(roomID uint64) bool {
	rm, err := s.known(roomID)
	if err != nil {
		return false
	}
	return lifecycle.CanAcceptReopen(&rm, s.viewer)
}

// Pending reports whether act is in flight for roomID, for disabling controls.
func (s *Session) Pending(roomID uint64, act Action) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pending[pendingKey{roomID: roomID, act: act}]
	return ok
}

func (s *Session) Send(ctx context.Context, roomID uint64, body string) (*model.Message, error) {
	rm, err := s.known(roomID)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.CanSend(&rm, s.viewer, body, model.MessageKindText); err != nil {
		return nil, err
	}
	var msg *model.Message
	err = s.do(ctx, roomID, ActionSend, func() error {
		id := s.clientMessageID(roomID, body)
		var err error
		msg, err = s.svc.SendMessage(ctx, roomID, body, model.MessageKindText, id)
		s.mu.Lock()
		if err == nil || !lifecycle.IsRetryable(err) {
			delete(s.unsent, roomID)
		}
		s.mu.Unlock()
		return err
	})
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.active == roomID {
		s.messages = append(s.messages, *msg)
		lifecycle.SortMessages(s.messages)
	}
	s.mu.Unlock()
	return msg, nil
}

// clientMessageID reuses the id of an earlier failed send of the same body
// to roomID, or starts a new one.
func (s *Session) clientMessageID(roomID uint64, body string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.unsent[roomID]; ok && u.body == body {
		return u.clientMessageID
	}
	id := uuid.NewString()
	s.unsent[roomID] = unsentMessage{body: body, clientMessageID: id}
	return id
}

func (s *Session) Close(ctx context.Context, roomID uint64) (*model.Room, error) {
	return s.transition(ctx, roomID, ActionClose, func(r *model.Room) error {
		return lifecycle.Close(r, s.viewer, s.cfg.Now())
	}, s.svc.CloseRoom)
}

func (s *Session) RequestReopen(ctx context.Context, roomID uint64) (*model.Room, error) {
	return s.transition(ctx, roomID, ActionRequestReopen, func(r *model.Room) error {
		return lifecycle.RequestReopen(r, s.viewer, s.cfg.Now())
	}, s.svc.RequestReopen)
}

func (s *Session) AcceptReopen(ctx context.Context, roomID uint64) (*model.Room, error) {
	return s.transition(ctx, roomID, ActionAcceptReopen, func(r *model.Room) error {
		return lifecycle.AcceptReopen(r, s.viewer)
	}, s.svc.AcceptReopen)
}

func (s *Session) MarkRead(ctx context.Context, roomID uint64) error {
	rm, err := s.known(roomID)
	if err != nil {
		return err
	}
	if err := lifecycle.CanAct(&rm, s.viewer); err != nil {
		return err
	}
	err = s.do(ctx, roomID, ActionMarkRead, func() error {
		return s.svc.MarkRead(ctx, roomID)
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	if i := s.indexOf(roomID); i >= 0 {
		s.rooms[i].UnreadCount = 0
	}
	if s.active == roomID {
		lifecycle.MarkRead(s.viewer, s.messages)
	}
	s.mu.Unlock()
	return nil
}

// Delete removes the room for both participants.
func (s *Session) Delete(ctx context.Context, roomID uint64) error {
	rm, err := s.known(roomID)
	if err != nil {
		return err
	}
	if err := lifecycle.CanAct(&rm, s.viewer); err != nil {
		return err
	}
	err = s.do(ctx, roomID, ActionDelete, func() error {
		return s.svc.DeleteRoom(ctx, roomID)
	})
	if err != nil {
		return err
	}
	s.drop(roomID)
	return nil
}

// transition validates apply against a copy of the known room, then issues
// call and stores the room the server returns.
func (s *Session) transition(ctx context.Context, roomID uint64, act Action, apply func(*model.Room) error, call func(context.Context, uint64) (*model.Room, error)) (*model.Room, error) {
	rm, err := s.known(roomID)
	if err != nil {
		return nil, err
	}
	if err := apply(&rm); err != nil {
		return nil, err
	}
	var updated *model.Room
	err = s.do(ctx, roomID, act, func() error {
		var err error
		updated, err = call(ctx, roomID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if i := s.indexOf(roomID); i >= 0 {
		updated.UnreadCount = s.rooms[i].UnreadCount
		s.rooms[i] = *updated
		lifecycle.SortRooms(s.rooms)
	}
	s.mu.Unlock()
	return updated, nil
}

// do runs fn as act on roomID unless the same action is already in flight.
// Success refreshes the room list; NotFound drops the room.
func (s *Session) do(ctx context.Context, roomID uint64, act Action, fn func() error) error {
	key := pendingKey{roomID: roomID, act: act}
	s.mu.Lock()
	if _, busy := s.pending[key]; busy {
		s.mu.Unlock()
		return ErrPending
	}
	s.pending[key] = struct{}{}
	s.mu.Unlock()

	err := fn()

	s.mu.Lock()
	delete(s.pending, key)
	s.mu.Unlock()

	if err != nil {
		if errors.Is(err, lifecycle.ErrNotFound) {
			s.drop(roomID)
		}
		s.log.Info().Err(err).Uint64("room_id", roomID).Str("action", string(act)).Bool("retryable", lifecycle.IsRetryable(err)).Msg("action rejected")
		return err
	}
	if act != ActionDelete {
		s.logRefresh(s.RefreshRooms(ctx), "rooms")
	}
	return nil
}

func (s *Session) known(roomID uint64) (model.Room, error) {
	rm, ok := s.Room(roomID)
	if !ok {
		return model.Room{}, fmt.Errorf("%w: conversation %d", lifecycle.ErrNotFound, roomID)
	}
	return rm, nil
}

func (s *Session) drop(roomID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(roomID); i >= 0 {
		s.rooms = append(s.rooms[:i], s.rooms[i+1:]...)
	}
	if s.active == roomID {
		s.active = 0
		s.messages = nil
	}
}

// indexOf must be called with mu held.
func (s *Session) indexOf(roomID uint64) int {
	for i := range s.rooms {
		if s.rooms[i].ID == roomID {
			return i
		}
	}
	return -1
}
