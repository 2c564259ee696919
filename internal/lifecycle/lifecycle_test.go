package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/mythsumon/job-sub002/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	employer  = "emp-1"
	candidate = "cand-1"
	stranger  = "someone-else"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newActiveRoom(t *testing.T) *model.Room {
	t.Helper()
	r, err := NewRoom(42, employer, candidate, t0)
	require.NoError(t, err)
	r.ID = 7
	return r
}

func TestNewRoom_Validation(t *testing.T) {
	_, err := NewRoom(1, "u1", "u1", t0)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = NewRoom(1, "", "u1", t0)
	assert.ErrorIs(t, err, ErrValidation)

	r, err := NewRoom(1, "u1", "u2", t0)
	require.NoError(t, err)
	assert.Equal(t, model.RoomStatusActive, r.Status)
	assert.Equal(t, t0, r.LastMessageAt)
}

func TestCloseRequestAccept_RoundTrip(t *testing.T) {
	r := newActiveRoom(t)

	require.NoError(t, Close(r, candidate, t0.Add(time.Minute)))
	assert.Equal(t, model.RoomStatusClosed, r.Status)
	require.NotNil(t, r.ClosedBy)
	assert.Equal(t, candidate, *r.ClosedBy)
	require.NotNil(t, r.ClosedAt)

	require.NoError(t, RequestReopen(r, employer, t0.Add(2*time.Minute)))
	assert.Equal(t, model.RoomStatusPendingReopen, r.Status)
	require.NotNil(t, r.ReopenRequestedBy)
	assert.Equal(t, employer, *r.ReopenRequestedBy)

	require.NoError(t, AcceptReopen(r, candidate))
	assert.Equal(t, model.RoomStatusActive, r.Status)
	assert.Nil(t, r.ClosedBy)
	assert.Nil(t, r.ClosedAt)
	assert.Nil(t, r.ReopenRequestedBy)
	assert.Nil(t, r.ReopenRequestedAt)
}

func TestRejectedTransitions_LeaveRoomUnchanged(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(r *model.Room)
		apply   func(r *model.Room) error
		wantErr error
	}{
		{
			name:    "request reopen while active",
			apply:   func(r *model.Room) error { return RequestReopen(r, employer, t0) },
			wantErr: ErrInvalidTransition,
		},
		{
			name:    "accept reopen while active",
			apply:   func(r *model.Room) error { return AcceptReopen(r, employer) },
			wantErr: ErrInvalidTransition,
		},
		{
			name:    "close by stranger",
			apply:   func(r *model.Room) error { return Close(r, stranger, t0) },
			wantErr: ErrUnauthorized,
		},
		{
			name:    "close twice",
			setup:   func(r *model.Room) { _ = Close(r, employer, t0) },
			apply:   func(r *model.Room) error { return Close(r, candidate, t0) },
			wantErr: ErrInvalidTransition,
		},
		{
			name:    "closer requests reopen",
			setup:   func(r *model.Room) { _ = Close(r, employer, t0) },
			apply:   func(r *model.Room) error { return RequestReopen(r, employer, t0) },
			wantErr: ErrInvalidTransition,
		},
		{
			name:    "accept reopen while closed",
			setup:   func(r *model.Room) { _ = Close(r, employer, t0) },
			apply:   func(r *model.Room) error { return AcceptReopen(r, candidate) },
			wantErr: ErrInvalidTransition,
		},
		{
			name: "requester accepts own reopen",
			setup: func(r *model.Room) {
				_ = Close(r, candidate, t0)
				_ = RequestReopen(r, employer, t0)
			},
			apply:   func(r *model.Room) error { return AcceptReopen(r, employer) },
			wantErr: ErrInvalidTransition,
		},
		{
			name: "stranger accepts reopen",
			setup: func(r *model.Room) {
				_ = Close(r, candidate, t0)
				_ = RequestReopen(r, employer, t0)
			},
			apply:   func(r *model.Room) error { return AcceptReopen(r, stranger) },
			wantErr: ErrUnauthorized,
		},
		{
			name: "close while pending reopen",
			setup: func(r *model.Room) {
				_ = Close(r, candidate, t0)
				_ = RequestReopen(r, employer, t0)
			},
			apply:   func(r *model.Room) error { return Close(r, candidate, t0) },
			wantErr: ErrInvalidTransition,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newActiveRoom(t)
			if tt.setup != nil {
				tt.setup(r)
			}
			before := *r
			err := tt.apply(r)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.Equal(t, before, *r)
		})
	}
}

func TestAcceptOwnReopen_Reason(t *testing.T) {
	r := newActiveRoom(t)
	require.NoError(t, Close(r, candidate, t0))
	require.NoError(t, RequestReopen(r, employer, t0))

	err := AcceptReopen(r, employer)
	assert.Equal(t, ReasonOwnReopenRequest, Reason(err))
	assert.Equal(t, model.RoomStatusPendingReopen, r.Status)
	assert.False(t, CanAcceptReopen(r, employer))
	assert.True(t, CanAcceptReopen(r, candidate))
}

func TestCanSend(t *testing.T) {
	r := newActiveRoom(t)
	assert.NoError(t, CanSend(r, employer, "Hello", model.MessageKindText))
	assert.ErrorIs(t, CanSend(r, employer, "   ", model.MessageKindText), ErrValidation)
	assert.ErrorIs(t, CanSend(r, employer, "hi", model.MessageKind("video")), ErrValidation)
	assert.ErrorIs(t, CanSend(r, stranger, "hi", model.MessageKindText), ErrUnauthorized)

	require.NoError(t, Close(r, candidate, t0))
	err := CanSend(r, employer, "hi", model.MessageKindText)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, ReasonRoomClosed, Reason(err))

	require.NoError(t, RequestReopen(r, employer, t0))
	err = CanSend(r, candidate, "hi", model.MessageKindText)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, ReasonReopenPending, Reason(err))
}

func TestCanAct_AnyState(t *testing.T) {
	r := newActiveRoom(t)
	require.NoError(t, Close(r, employer, t0))
	assert.NoError(t, CanAct(r, employer))
	assert.NoError(t, CanAct(r, candidate))
	assert.ErrorIs(t, CanAct(r, stranger), ErrUnauthorized)
}

func TestNextSentAt_StrictlyIncreasing(t *testing.T) {
	r := newActiveRoom(t)
	assert.Equal(t, t0.Add(time.Second), NextSentAt(r, t0.Add(time.Second)))
	assert.Equal(t, t0.Add(time.Millisecond), NextSentAt(r, t0))
	assert.Equal(t, t0.Add(time.Millisecond), NextSentAt(r, t0.Add(-time.Hour)))
}

func TestRoleOf(t *testing.T) {
	r := newActiveRoom(t)
	assert.Equal(t, RoleEmployer, RoleOf(r, employer))
	assert.Equal(t, RoleCandidate, RoleOf(r, candidate))
	assert.Equal(t, RoleNone, RoleOf(r, stranger))
	assert.Equal(t, "candidate", RoleCandidate.String())
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrTransient))
	assert.True(t, IsRetryable(ErrConflict))
	assert.False(t, IsRetryable(invalid(ReasonRoomClosed)))
	assert.False(t, IsRetryable(unauthorized()))
}
