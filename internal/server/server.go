package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mythsumon/job-sub002/internal/handler"
	"github.com/mythsumon/job-sub002/internal/logger"
	appmw "github.com/mythsumon/job-sub002/internal/middleware"
	"github.com/mythsumon/job-sub002/internal/notify"
	"github.com/mythsumon/job-sub002/internal/repository"
	"github.com/mythsumon/job-sub002/internal/service"
	"gorm.io/gorm"
)

type Options struct {
	DB   *gorm.DB
	Bus  notify.Bus
	Auth *appmw.AuthMiddleware
	// Profiles defaults to the Firebase client behind Auth.
	Profiles            handler.ProfileLookup
	AllowedOriginSuffix string
	MessageRatePerMin   int
	MessageBurst        int
	SHA                 string
	BuildTime           string
}

type Server struct {
	e         *echo.Echo
	roomRepo  repository.RoomRepository
	notesRepo repository.NotificationRepository
	limiter   *appmw.UserRateLimiter
	stop      chan struct{}
	stopOnce  sync.Once
}

func New(opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewRequestValidator()
	e.Use(middleware.Recover())
	e.Use(appmw.RequestID())
	e.Use(appmw.RequestLogger())
	allowOrigin := originAllower(opts.AllowedOriginSuffix)
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		AllowOriginFunc:  allowOrigin,
	}))

	bus := opts.Bus
	if bus == nil {
		bus = notify.NewHub()
	}

	roomRepo := repository.NewRoomRepository(opts.DB)
	notesRepo := repository.NewNotificationRepository(opts.DB)
	notesSvc := service.NewNotificationService(notesRepo)
	convSvc := service.NewConversationService(roomRepo, notesSvc, bus)

	convHandler := handler.NewConversationHandler(convSvc)
	notesHandler := handler.NewNotificationHandler(notesSvc)
	eventsHandler := handler.NewEventsHandler(bus, func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		ok, _ := allowOrigin(origin)
		return ok
	})

	requireAuth, streamAuth := rejectAll, rejectAll
	profiles := opts.Profiles
	if opts.Auth != nil {
		requireAuth = opts.Auth.RequireAuth
		streamAuth = opts.Auth.RequireStreamAuth
		if profiles == nil && opts.Auth.Client() != nil {
			profiles = opts.Auth.Client()
		}
	}
	limiter := appmw.NewUserRateLimiter(opts.MessageRatePerMin, opts.MessageBurst)

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"ok":         "true",
			"git_sha":    opts.SHA,
			"build_time": opts.BuildTime,
		})
	})

	// Browsers cannot set headers on a websocket upgrade, so only the
	// stream accepts a query token.
	e.GET("/api/rooms/events", eventsHandler.Stream, streamAuth)

	api := e.Group("/api", requireAuth)
	api.GET("/rooms", convHandler.List)
	api.POST("/rooms", convHandler.Open)
	api.GET("/rooms/:id", convHandler.Get)
	api.DELETE("/rooms/:id", convHandler.Delete)
	api.GET("/rooms/:id/messages", convHandler.ListMessages)
	api.POST("/rooms/:id/messages", convHandler.CreateMessage, limiter.Middleware)
	api.POST("/rooms/:id/close", convHandler.Close)
	api.POST("/rooms/:id/reopen-request", convHandler.RequestReopen)
	api.POST("/rooms/:id/reopen-accept", convHandler.AcceptReopen)
	api.POST("/rooms/:id/read", convHandler.MarkRead)
	api.GET("/notifications", notesHandler.List)
	api.POST("/notifications/read", notesHandler.MarkAllRead)
	if profiles != nil {
		userHandler := handler.NewUserHandler(profiles, convSvc)
		api.GET("/users/:uid/public", userHandler.GetPublic)
	}

	return &Server{
		e:         e,
		roomRepo:  roomRepo,
		notesRepo: notesRepo,
		limiter:   limiter,
		stop:      make(chan struct{}),
	}
}

func (s *Server) Start(addr string) error {
	go s.sweepLimiter(time.Minute)
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })
	return s.e.Shutdown(ctx)
}

func (s *Server) sweepLimiter(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if n := s.limiter.Sweep(); n > 0 {
				logger.Debug().Int("removed", n).Msg("rate limiter sweep")
			}
		}
	}
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.e
}

// SetDB injects a connection that became available after startup.
func (s *Server) SetDB(db *gorm.DB) {
	s.roomRepo.SetDB(db)
	s.notesRepo.SetDB(db)
}

func rejectAll(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusUnauthorized, handler.NewErrorResponse(handler.CodeUnauthorized, "authentication is not configured"))
	}
}

func originAllower(suffix string) func(origin string) (bool, error) {
	return func(origin string) (bool, error) {
		low := strings.ToLower(origin)
		if strings.HasPrefix(low, "http://localhost:") || strings.HasPrefix(low, "http://127.0.0.1:") ||
			strings.HasPrefix(low, "https://localhost:") || strings.HasPrefix(low, "https://127.0.0.1:") {
			return true, nil
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false, nil
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return false, nil
		}
		if suffix != "" && strings.HasSuffix(u.Hostname(), suffix) {
			return true, nil
		}
		return false, nil
	}
}
