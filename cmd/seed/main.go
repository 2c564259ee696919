package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mythsumon/job-sub002/internal/config"
	"github.com/mythsumon/job-sub002/internal/db"
	"github.com/mythsumon/job-sub002/internal/logger"
	"github.com/mythsumon/job-sub002/internal/model"
	"github.com/mythsumon/job-sub002/internal/notify"
	"github.com/mythsumon/job-sub002/internal/repository"
	"github.com/mythsumon/job-sub002/internal/service"
	"gorm.io/gorm"
)

type seedRoom struct {
	JobID     uint64
	Employer  string
	Candidate string
	Lines     []seedLine
	// Final lifecycle steps, applied in order after the messages.
	Steps     []string
}

type seedLine struct {
	FromEmployer bool
	Body         string
}

func main() {
	if err := run(); err != nil {
		logger.Fatal().Err(err).Msg("seed failed")
	}
}

func run() error {
	ctx := context.Background()
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.AppEnv)

	gdb, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	if err := db.Migrate(gdb); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	canSeed, err := shouldSeed(ctx, gdb)
	if err != nil {
		return err
	}
	if !canSeed {
		logger.Info().Msg("rooms already exist; skipping seed (set FORCE_SEED=true to override)")
		return nil
	}

	repo := repository.NewRoomRepository(gdb)
	notes := service.NewNotificationService(repository.NewNotificationRepository(gdb))
	svc := service.NewConversationService(repo, notes, notify.Nop{})

	employer := envOr("SEED_EMPLOYER_UID", "seed-employer")
	rooms := buildSeedRooms(employer)
	for _, sr := range rooms {
		if err := seed(ctx, svc, sr); err != nil {
			return err
		}
	}
	logger.Info().Int("rooms", len(rooms)).Msg("seeded conversations")
	return nil
}

func buildSeedRooms(employer string) []seedRoom {
	return []seedRoom{
		{
			JobID: 101, Employer: employer, Candidate: "seed-candidate-1",
			Lines: []seedLine{
				{true, "Thanks for applying to the backend engineer role."},
				{false, "Thank you! Happy to share more about my Go experience."},
				{true, "Could you do a call on Thursday?"},
			},
		},
		{
			JobID: 102, Employer: employer, Candidate: "seed-candidate-2",
			Lines: []seedLine{
				{true, "We have filled the position, thank you for your time."},
			},
			Steps: []string{"close"},
		},
		{
			JobID: 103, Employer: employer, Candidate: "seed-candidate-3",
			Lines: []seedLine{
				{false, "Is the data engineer role still open?"},
				{true, "We paused hiring for now."},
			},
			Steps: []string{"close", "request-reopen"},
		},
	}
}

func seed(ctx context.Context, svc service.ConversationService, sr seedRoom) error {
	rm, err := svc.Open(ctx, sr.JobID, sr.Employer, sr.Candidate)
	if err != nil {
		return fmt.Errorf("open room for job %d: %w", sr.JobID, err)
	}
	if rm.Status != model.RoomStatusActive {
		logger.Info().Uint64("room_id", rm.ID).Msg("room already past seeding; skipped")
		return nil
	}
	for _, l := range sr.Lines {
		sender := sr.Candidate
		if l.FromEmployer {
			sender = sr.Employer
		}
		if _, err := svc.SendMessage(ctx, rm.ID, sender, service.SendInput{Body: l.Body, Kind: model.MessageKindText}); err != nil {
			return fmt.Errorf("message in room %d: %w", rm.ID, err)
		}
	}
	for _, step := range sr.Steps {
		switch step {
		case "close":
			_, err = svc.Close(ctx, rm.ID, sr.Employer)
		case "request-reopen":
			_, err = svc.RequestReopen(ctx, rm.ID, sr.Candidate)
		default:
			err = fmt.Errorf("unknown step %q", step)
		}
		if err != nil {
			return fmt.Errorf("room %d %s: %w", rm.ID, step, err)
		}
	}
	return nil
}

func shouldSeed(ctx context.Context, gdb *gorm.DB) (bool, error) {
	var cnt int64
	if err := gdb.WithContext(ctx).Model(&model.Room{}).Count(&cnt).Error; err != nil {
		return false, fmt.Errorf("count rooms: %w", err)
	}
	if cnt == 0 {
		return true, nil
	}
	return strings.EqualFold(os.Getenv("FORCE_SEED"), "true"), nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
