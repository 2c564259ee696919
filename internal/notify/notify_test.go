package notify

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan RoomEvent) RoomEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return RoomEvent{}
}

func TestHub_DeliversToRecipientsOnly(t *testing.T) {
	h := NewHub()
	ctx := context.Background()

	empCh, cancelEmp, err := h.Subscribe(ctx, "emp-1")
	require.NoError(t, err)
	defer cancelEmp()
	otherCh, cancelOther, err := h.Subscribe(ctx, "other")
	require.NoError(t, err)
	defer cancelOther()

	ev := RoomEvent{Type: EventClosed, RoomID: 3, ActorID: "cand-1", Status: "closed"}
	require.NoError(t, h.Publish(ctx, []string{"emp-1", "cand-1"}, ev))

	got := receive(t, empCh)
	assert.Equal(t, ev, got)
	select {
	case <-otherCh:
		t.Fatal("unexpected event for non-recipient")
	default:
	}
}

func TestHub_CancelClosesChannel(t *testing.T) {
	h := NewHub()
	ctx, cancelCtx := context.WithCancel(context.Background())
	ch, _, err := h.Subscribe(ctx, "emp-1")
	require.NoError(t, err)

	cancelCtx()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed")
	}
	require.NoError(t, h.Publish(context.Background(), []string{"emp-1"}, RoomEvent{Type: EventMessage}))
}

func TestHub_PublishDoesNotBlockOnFullSubscriber(t *testing.T) {
	h := NewHub()
	_, cancel, err := h.Subscribe(context.Background(), "emp-1")
	require.NoError(t, err)
	defer cancel()

	for i := 0; i < subscriberBuffer*2; i++ {
		require.NoError(t, h.Publish(context.Background(), []string{"emp-1"}, RoomEvent{Type: EventMessage, RoomID: uint64(i)}))
	}
}

func TestRedisBus_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	bus := NewRedisBus(rdb)
	ctx := context.Background()
	require.NoError(t, bus.Ping(ctx))

	ch, cancel, err := bus.Subscribe(ctx, "cand-1")
	require.NoError(t, err)
	defer cancel()

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ev := RoomEvent{Type: EventMessage, RoomID: 9, ActorID: "emp-1", Status: "active", At: at}
	require.NoError(t, bus.Publish(ctx, []string{"cand-1"}, ev))

	got := receive(t, ch)
	assert.Equal(t, ev.Type, got.Type)
	assert.Equal(t, ev.RoomID, got.RoomID)
	assert.Equal(t, ev.ActorID, got.ActorID)
	assert.True(t, at.Equal(got.At))
}

func TestRedisBus_SubscribeFailsWhenServerDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := NewRedisBus(rdb).Subscribe(ctx, "cand-1")
	assert.Error(t, err)
}
