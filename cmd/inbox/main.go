// Command inbox follows one user's conversations from the terminal, polling
// the API the same way the web client does.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mythsumon/job-sub002/internal/chatclient"
	"github.com/mythsumon/job-sub002/internal/config"
	"github.com/mythsumon/job-sub002/internal/inbox"
	"github.com/mythsumon/job-sub002/internal/lifecycle"
	"github.com/mythsumon/job-sub002/internal/logger"
	"github.com/mythsumon/job-sub002/internal/notify"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadClient()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load")
	}
	logger.Init(os.Getenv("APP_ENV"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := chatclient.New(cfg.BaseURL, chatclient.StaticToken(cfg.Token), cfg.RequestTimeout)
	sess := inbox.NewSession(client, cfg.ViewerID, inbox.Config{
		RoomsInterval:    cfg.RoomsInterval,
		MessagesInterval: cfg.MessagesInterval,
		Logger:           logger.Log,
	})

	var events <-chan notify.RoomEvent
	if cfg.Push {
		events, err = client.Watch(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("event stream unavailable; polling only")
			events = nil
		}
	}

	go report(ctx, sess, cfg.RoomsInterval)
	if err := sess.Run(ctx, events); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("inbox stopped")
	}
}

// report logs the room list on every rooms interval.
func report(ctx context.Context, sess *inbox.Session, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, rm := range sess.Snapshot().Rooms {
				send := "ok"
				if err := sess.CanSend(rm.ID); err != nil {
					send = lifecycle.Reason(err)
				}
				logger.Info().
					Uint64("room_id", rm.ID).
					Str("status", string(rm.Status)).
					Int64("unread", rm.UnreadCount).
					Str("send", send).
					Bool("can_accept_reopen", sess.CanAcceptReopen(rm.ID)).
					Msg("room")
			}
		}
	}
}
