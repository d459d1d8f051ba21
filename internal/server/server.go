package server

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"promptmaster-nano/internal/analyzer"
	"promptmaster-nano/internal/media"
	"promptmaster-nano/internal/model"
	"promptmaster-nano/internal/session"
	"promptmaster-nano/internal/store"
	"promptmaster-nano/internal/workshop"
)

type Sessions interface {
	Start(ctx context.Context, method model.LoginType) (session.Ticket, error)
	SubmitPhone(id, phone, code string) (session.Ticket, error)
	Back(id string) (session.Ticket, error)
	Poll(ctx context.Context, id string) (session.Ticket, error)
	Authenticate(ctx context.Context, token string) (*model.User, error)
	Logout(ctx context.Context, userID string) error
}

type Workshop interface {
	Generate(ctx context.Context, userID string, req analyzer.Request) (model.PromptRecord, error)
	History(ctx context.Context, userID string, limit int) ([]model.PromptRecord, error)
	Delete(ctx context.Context, userID, id string) error
	Clear(ctx context.Context, userID string) (int64, error)
	Export(ctx context.Context, userID string) ([]byte, error)
}

type Options struct {
	Sessions Sessions
	Workshop Workshop
	Limits   media.Limits
	// RequestTimeout bounds a single analyze call.
	RequestTimeout time.Duration
	// Static is served for every path outside /api. Optional.
	Static fs.FS
	Logger *slog.Logger
	Now    func() time.Time
}

type Server struct {
	engine   *gin.Engine
	sessions Sessions
	workshop Workshop
	limits   media.Limits
	timeout  time.Duration
	static   fs.FS
	logger   *slog.Logger
	now      func() time.Time
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 240 * time.Second
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	s := &Server{
		engine:   gin.New(),
		sessions: opts.Sessions,
		workshop: opts.Workshop,
		limits:   opts.Limits,
		timeout:  timeout,
		static:   opts.Static,
		logger:   logger,
		now:      now,
	}
	s.engine.Use(gin.Recovery(), s.requestLogger(), corsMiddleware())
	s.setupRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := s.engine.Group("/api")

	login := api.Group("/auth/login")
	login.POST("", s.handleLoginStart)
	login.GET("/:ticket", s.handleLoginPoll)
	login.POST("/:ticket/phone", s.handleLoginPhone)
	login.POST("/:ticket/back", s.handleLoginBack)

	authed := api.Group("")
	authed.Use(s.authMiddleware())
	authed.GET("/me", s.handleMe)
	authed.POST("/auth/logout", s.handleLogout)
	authed.POST("/analyze", s.handleAnalyze)
	authed.GET("/history", s.handleHistory)
	authed.GET("/history/export", s.handleHistoryExport)
	authed.DELETE("/history", s.handleHistoryClear)
	authed.DELETE("/history/:id", s.handleHistoryDelete)

	s.engine.NoRoute(s.handleStatic)
}

func (s *Server) handleStatic(c *gin.Context) {
	path := c.Request.URL.Path
	if s.static == nil || strings.HasPrefix(path, "/api/") || c.Request.Method != http.MethodGet {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	// unknown paths fall back to the single page
	name := strings.TrimPrefix(path, "/")
	if name == "" {
		name = "."
	}
	if _, err := fs.Stat(s.static, name); err != nil {
		c.Request.URL.Path = "/"
	}
	http.FileServer(http.FS(s.static)).ServeHTTP(c.Writer, c.Request)
}

// writeError maps domain errors onto HTTP statuses.
func (s *Server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	msg := err.Error()

	var failed *workshop.FailedError
	switch {
	case errors.As(err, &failed):
		status = http.StatusBadGateway
	case errors.Is(err, session.ErrUnauthorized):
		status = http.StatusUnauthorized
		msg = "unauthorized"
	case errors.Is(err, session.ErrTicketNotFound), errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrInvalidStage):
		status = http.StatusConflict
	case errors.Is(err, session.ErrInvalidMethod),
		errors.Is(err, session.ErrPhoneRequired),
		errors.Is(err, media.ErrNoMedia),
		errors.Is(err, media.ErrTooMany),
		errors.Is(err, media.ErrUnsupportedType):
		status = http.StatusBadRequest
	case errors.Is(err, media.ErrTooLarge):
		status = http.StatusRequestEntityTooLarge
	default:
		s.logger.Error("request failed", "path", c.Request.URL.Path, "err", err)
		msg = "internal error"
	}

	c.JSON(status, gin.H{"error": msg})
}
