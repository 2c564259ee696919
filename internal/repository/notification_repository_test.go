package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/mythsumon/job-sub002/internal/db"
	"github.com/mythsumon/job-sub002/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.Migrate(gdb))
	return gdb
}

func note(uid, typ string, roomID uint64, body string) *model.Notification {
	return &model.Notification{UserUID: uid, Type: typ, Title: "t", Body: body, RoomID: &roomID}
}

func TestRecordFoldsUnreadMessagesPerRoom(t *testing.T) {
	repo := NewNotificationRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Record(ctx, note("cand", model.NotificationTypeMessage, 1, "first")))
	second := note("cand", model.NotificationTypeMessage, 1, "second")
	require.NoError(t, repo.Record(ctx, second))
	require.NoError(t, repo.Record(ctx, note("cand", model.NotificationTypeMessage, 2, "other room")))
	require.NoError(t, repo.Record(ctx, note("cand", model.NotificationTypeRoomClosed, 1, "closed")))

	assert.Equal(t, 2, second.MessageCount)

	list, err := repo.ListByUser(ctx, "cand", true, 0)
	require.NoError(t, err)
	require.Len(t, list, 3)
	var folded *model.Notification
	for i := range list {
		if list[i].Type == model.NotificationTypeMessage && *list[i].RoomID == 1 {
			folded = &list[i]
		}
	}
	require.NotNil(t, folded)
	assert.Equal(t, second.ID, folded.ID)
	assert.Equal(t, "second", folded.Body)
	assert.Equal(t, 2, folded.MessageCount)
}

func TestRecordStartsFreshEntryAfterRead(t *testing.T) {
	repo := NewNotificationRepository(newTestDB(t))
	ctx := context.Background()

	first := note("cand", model.NotificationTypeMessage, 1, "first")
	require.NoError(t, repo.Record(ctx, first))
	n, err := repo.MarkByRoom(ctx, "cand", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	next := note("cand", model.NotificationTypeMessage, 1, "next")
	require.NoError(t, repo.Record(ctx, next))
	assert.NotEqual(t, first.ID, next.ID)
	assert.Equal(t, 1, next.MessageCount)

	all, err := repo.ListByUser(ctx, "cand", false, 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMarkByRoomLeavesOtherRoomsAndUsers(t *testing.T) {
	repo := NewNotificationRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Record(ctx, note("cand", model.NotificationTypeMessage, 1, "a")))
	require.NoError(t, repo.Record(ctx, note("cand", model.NotificationTypeReopenRequested, 1, "b")))
	require.NoError(t, repo.Record(ctx, note("cand", model.NotificationTypeMessage, 2, "c")))
	require.NoError(t, repo.Record(ctx, note("emp", model.NotificationTypeMessage, 1, "d")))

	n, err := repo.MarkByRoom(ctx, "cand", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	cnt, err := repo.CountUnread(ctx, "cand")
	require.NoError(t, err)
	assert.Equal(t, int64(1), cnt)
	cnt, err = repo.CountUnread(ctx, "emp")
	require.NoError(t, err)
	assert.Equal(t, int64(1), cnt)

	n, err = repo.MarkAllRead(ctx, "cand")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = repo.MarkAllRead(ctx, "cand")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNotificationRepositoryWithoutDB(t *testing.T) {
	repo := NewNotificationRepository(nil)
	ctx := context.Background()
	assert.ErrorIs(t, repo.Record(ctx, note("cand", model.NotificationTypeMessage, 1, "a")), ErrDBNotReady)
	_, err := repo.CountUnread(ctx, "cand")
	assert.ErrorIs(t, err, ErrDBNotReady)
	_, err = repo.MarkByRoom(ctx, "cand", 1)
	assert.ErrorIs(t, err, ErrDBNotReady)
}
