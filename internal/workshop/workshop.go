package workshop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"promptmaster-nano/internal/analyzer"
	"promptmaster-nano/internal/media"
	"promptmaster-nano/internal/model"
	"promptmaster-nano/internal/store"
)

// FailureMessage is what users see when an analysis cannot be completed.
const FailureMessage = "分析失败，请检查网络或减少图片数量。"

// FailedError wraps the underlying analysis error. Its message is always
// FailureMessage.
type FailedError struct {
	Err error
}

func (e *FailedError) Error() string { return FailureMessage }
func (e *FailedError) Unwrap() error { return e.Err }

type Analyzer interface {
	Analyze(ctx context.Context, req analyzer.Request) (model.PromptResult, error)
}

type Options struct {
	Analyzer Analyzer
	History  store.HistoryRepository
	// HistoryLimit caps History listings requested with DefaultLimit. 0 means
	// no cap.
	HistoryLimit int
	Now          func() time.Time
	Logger       *slog.Logger
}

type Service struct {
	analyzer     Analyzer
	history      store.HistoryRepository
	historyLimit int
	now          func() time.Time
	logger       *slog.Logger
}

func New(opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		analyzer:     opts.Analyzer,
		history:      opts.History,
		historyLimit: opts.HistoryLimit,
		now:          now,
		logger:       logger,
	}
}

// Generate analyses the request and records the result in the user's history.
// Media validation errors are returned as-is; anything else becomes a
// *FailedError and nothing is recorded.
func (s *Service) Generate(ctx context.Context, userID string, req analyzer.Request) (model.PromptRecord, error) {
	if len(req.Media) == 0 {
		return model.PromptRecord{}, media.ErrNoMedia
	}
	for _, it := range req.Media {
		if err := media.Validate(it); err != nil {
			return model.PromptRecord{}, err
		}
	}

	res, err := s.analyzer.Analyze(ctx, req)
	if err != nil {
		if isInputError(err) {
			return model.PromptRecord{}, err
		}
		s.logger.Error("analysis failed", "user_id", userID, "media", len(req.Media), "err", err)
		return model.PromptRecord{}, &FailedError{Err: err}
	}

	rec := model.PromptRecord{
		PromptResult: res,
		ID:           uuid.NewString(),
		UserID:       userID,
		Timestamp:    s.now().UnixMilli(),
		MediaType:    media.Kind(req.Media),
		TargetModel:  analyzer.ResolveTarget(req),
	}
	if err := s.history.Append(ctx, &rec); err != nil {
		return model.PromptRecord{}, fmt.Errorf("save history: %w", err)
	}

	s.logger.Info("prompt generated", "user_id", userID, "record_id", rec.ID, "media_type", rec.MediaType, "target", rec.TargetModel)
	return rec, nil
}

func isInputError(err error) bool {
	return errors.Is(err, media.ErrNoMedia) ||
		errors.Is(err, media.ErrTooMany) ||
		errors.Is(err, media.ErrTooLarge) ||
		errors.Is(err, media.ErrUnsupportedType)
}

// DefaultLimit asks History for the configured HistoryLimit.
const DefaultLimit = -1

// History lists a user's records newest first. A limit of 0 returns all of
// them; a negative limit uses HistoryLimit.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]model.PromptRecord, error) {
	if limit < 0 {
		limit = s.historyLimit
	}
	return s.history.List(ctx, userID, limit)
}

func (s *Service) Record(ctx context.Context, userID, id string) (*model.PromptRecord, error) {
	return s.history.Get(ctx, userID, id)
}

func (s *Service) Delete(ctx context.Context, userID, id string) error {
	return s.history.Delete(ctx, userID, id)
}

func (s *Service) Clear(ctx context.Context, userID string) (int64, error) {
	return s.history.Clear(ctx, userID)
}

// Export renders the user's full history, newest first, as an indented JSON
// array.
func (s *Service) Export(ctx context.Context, userID string) ([]byte, error) {
	records, err := s.history.List(ctx, userID, 0)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(records, "", "  ")
}

// ExportFilename is the download name for an export taken at t.
func ExportFilename(t time.Time) string {
	return fmt.Sprintf("promptmaster-history-%s.json", t.UTC().Format("20060102-150405"))
}
