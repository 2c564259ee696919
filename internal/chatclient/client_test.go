package chatclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/http/httputil"
	"net/url"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mythsumon/job-sub002/internal/db"
	"github.com/mythsumon/job-sub002/internal/inbox"
	"github.com/mythsumon/job-sub002/internal/lifecycle"
	appmw "github.com/mythsumon/job-sub002/internal/middleware"
	"github.com/mythsumon/job-sub002/internal/model"
	"github.com/mythsumon/job-sub002/internal/notify"
	"github.com/mythsumon/job-sub002/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var _ inbox.Service = (*Client)(nil)

type uidVerifier struct{}

func (uidVerifier) VerifyIDToken(_ context.Context, tok string) (*auth.Token, error) {
	return &auth.Token{UID: tok}, nil
}

func startAPI(t *testing.T) string {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.Migrate(gdb))

	srv := server.New(server.Options{
		DB:                gdb,
		Auth:              appmw.NewAuthMiddlewareWithVerifier(uidVerifier{}),
		MessageRatePerMin: 600,
		MessageBurst:      100,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func TestClientLifecycle(t *testing.T) {
	base := startAPI(t)
	ctx := context.Background()
	emp := New(base, StaticToken("emp"), time.Second)
	cand := New(base, StaticToken("cand"), time.Second)

	rm, err := emp.OpenRoom(ctx, 3, "cand")
	require.NoError(t, err)
	assert.Equal(t, model.RoomStatusActive, rm.Status)

	msg, err := emp.SendMessage(ctx, rm.ID, "hello", model.MessageKindText, "")
	require.NoError(t, err)
	assert.Equal(t, "emp", msg.SenderID)
	require.NotNil(t, msg.ClientMessageID)

	rooms, err := cand.ListRooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.EqualValues(t, 1, rooms[0].UnreadCount)

	_, err = emp.CloseRoom(ctx, rm.ID)
	require.NoError(t, err)

	_, err = cand.SendMessage(ctx, rm.ID, "wait", model.MessageKindText, "")
	require.ErrorIs(t, err, lifecycle.ErrInvalidTransition)
	assert.Equal(t, lifecycle.ReasonRoomClosed, lifecycle.Reason(err))

	_, err = emp.RequestReopen(ctx, rm.ID)
	require.ErrorIs(t, err, lifecycle.ErrInvalidTransition)

	got, err := cand.RequestReopen(ctx, rm.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoomStatusPendingReopen, got.Status)

	_, err = cand.AcceptReopen(ctx, rm.ID)
	require.ErrorIs(t, err, lifecycle.ErrInvalidTransition)

	got, err = emp.AcceptReopen(ctx, rm.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoomStatusActive, got.Status)
	assert.Nil(t, got.ClosedBy)

	require.NoError(t, cand.MarkRead(ctx, rm.ID))
	msgs, err := cand.ListMessages(ctx, rm.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].ReadByRecipient)

	require.NoError(t, cand.DeleteRoom(ctx, rm.ID))
	_, err = emp.ListMessages(ctx, rm.ID)
	require.ErrorIs(t, err, lifecycle.ErrNotFound)
}

func TestClientResendIsIdempotent(t *testing.T) {
	base := startAPI(t)
	ctx := context.Background()
	emp := New(base, StaticToken("emp"), time.Second)
	rm, err := emp.OpenRoom(ctx, 4, "cand")
	require.NoError(t, err)

	id := uuid.NewString()
	first, err := emp.SendMessage(ctx, rm.ID, "once", model.MessageKindText, id)
	require.NoError(t, err)
	second, err := emp.SendMessage(ctx, rm.ID, "once", model.MessageKindText, id)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	msgs, err := emp.ListMessages(ctx, rm.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestClientOutsiderIsUnauthorized(t *testing.T) {
	base := startAPI(t)
	ctx := context.Background()
	rm, err := New(base, StaticToken("emp"), time.Second).OpenRoom(ctx, 5, "cand")
	require.NoError(t, err)

	_, err = New(base, StaticToken("mallory"), time.Second).CloseRoom(ctx, rm.ID)
	require.ErrorIs(t, err, lifecycle.ErrUnauthorized)

	_, err = New(base, nil, time.Second).ListRooms(ctx)
	require.ErrorIs(t, err, lifecycle.ErrUnauthorized)
}

func TestClientTokenError(t *testing.T) {
	c := New("http://127.0.0.1:1", func(context.Context) (string, error) {
		return "", errors.New("signed out")
	}, time.Second)
	_, err := c.ListRooms(context.Background())
	require.ErrorIs(t, err, lifecycle.ErrUnauthorized)
}

func TestClientNetworkErrorIsTransient(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	base := ts.URL
	ts.Close()

	_, err := New(base, StaticToken("emp"), time.Second).ListRooms(context.Background())
	require.ErrorIs(t, err, lifecycle.ErrTransient)
	assert.True(t, lifecycle.IsRetryable(err))
}

func TestStatusError(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   error
	}{
		{http.StatusUnauthorized, `{"error":{"code":"unauthorized","message":"missing bearer token"}}`, lifecycle.ErrUnauthorized},
		{http.StatusForbidden, `{"error":{"code":"forbidden","message":"x"}}`, lifecycle.ErrUnauthorized},
		{http.StatusNotFound, `{"error":{"code":"not_found","message":"x"}}`, lifecycle.ErrNotFound},
		{http.StatusConflict, `{"error":{"code":"invalid_transition","message":"room is closed"}}`, lifecycle.ErrInvalidTransition},
		{http.StatusConflict, `{"error":{"code":"conflict","message":"x"}}`, lifecycle.ErrConflict},
		{http.StatusBadRequest, `{"error":{"code":"validation_error","message":"x"}}`, lifecycle.ErrValidation},
		{http.StatusTooManyRequests, `{"error":{"code":"rate_limited","message":"x"}}`, lifecycle.ErrTransient},
		{http.StatusServiceUnavailable, `not json`, lifecycle.ErrTransient},
	}
	for _, tt := range tests {
		err := statusError(tt.status, []byte(tt.body))
		assert.ErrorIs(t, err, tt.want, "status %d", tt.status)
	}

	err := statusError(http.StatusConflict, []byte(`{"error":{"code":"invalid_transition","message":"room is closed"}}`))
	assert.Equal(t, "room is closed", lifecycle.Reason(err))
}

func TestWatchReceivesRoomEvents(t *testing.T) {
	base := startAPI(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	emp := New(base, StaticToken("emp"), time.Second)
	cand := New(base, StaticToken("cand"), time.Second)
	rm, err := emp.OpenRoom(ctx, 9, "cand")
	require.NoError(t, err)

	events, err := cand.Watch(ctx)
	require.NoError(t, err)

	_, err = emp.SendMessage(ctx, rm.ID, "ping", model.MessageKindText, "")
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, notify.EventMessage, ev.Type)
		assert.Equal(t, rm.ID, ev.RoomID)
		assert.Equal(t, "emp", ev.ActorID)
	case <-time.After(3 * time.Second):
		t.Fatal("no event received")
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-events:
			return !ok
		default:
			return false
		}
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWatchRejectsMissingToken(t *testing.T) {
	base := startAPI(t)
	_, err := New(base, nil, time.Second).Watch(context.Background())
	require.ErrorIs(t, err, lifecycle.ErrUnauthorized)
}

// dropFirstSend forwards the first message POST to the API but answers the
// caller with 502, as if the response was lost on the way back.
func dropFirstSend(t *testing.T, base string) string {
	t.Helper()
	target, err := url.Parse(base)
	require.NoError(t, err)
	proxy := httputil.NewSingleHostReverseProxy(target)
	var dropped atomic.Bool
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/messages") && dropped.CompareAndSwap(false, true) {
			proxy.ServeHTTP(httptest.NewRecorder(), r)
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		proxy.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)
	return ts.URL
}

func TestInboxRetryAfterLostResponseStoresOneMessage(t *testing.T) {
	base := startAPI(t)
	ctx := context.Background()
	rm, err := New(base, StaticToken("emp"), time.Second).OpenRoom(ctx, 11, "cand")
	require.NoError(t, err)

	client := New(dropFirstSend(t, base), StaticToken("emp"), time.Second)
	sess := inbox.NewSession(client, "emp", inbox.Config{Logger: zerolog.Nop()})
	require.NoError(t, sess.RefreshRooms(ctx))

	_, err = sess.Send(ctx, rm.ID, "hello")
	require.ErrorIs(t, err, lifecycle.ErrTransient)
	require.True(t, lifecycle.IsRetryable(err))

	_, err = sess.Send(ctx, rm.ID, "hello")
	require.NoError(t, err)

	msgs, err := client.ListMessages(ctx, rm.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestWatchClosesWhenServerDrops(t *testing.T) {
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.WriteJSON(notify.RoomEvent{Type: notify.EventClosed, RoomID: 1})
		_ = conn.Close()
	}))
	defer ts.Close()

	// ctx stays alive for the whole test; the stream must still wind down.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	baseline := runtime.NumGoroutine()

	events, err := New(ts.URL, StaticToken("emp"), time.Second).Watch(ctx)
	require.NoError(t, err)

	ev, ok := <-events
	require.True(t, ok)
	assert.Equal(t, notify.EventClosed, ev.Type)

	require.Eventually(t, func() bool {
		_, ok := <-events
		return !ok
	}, 3*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= baseline
	}, 3*time.Second, 20*time.Millisecond)
}
