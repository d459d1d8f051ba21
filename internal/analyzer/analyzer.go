package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"promptmaster-nano/internal/gemini"
	"promptmaster-nano/internal/media"
	"promptmaster-nano/internal/model"
	"promptmaster-nano/internal/prompt"
)

var ErrIncompleteResult = errors.New("incomplete prompt result")

type Request struct {
	Media        []media.Item
	Instructions string
	Target       model.TargetModel
}

type Options struct {
	Generator gemini.Generator
	Prompts   *prompt.Library
	Limits    media.Limits
	// RatePerMinute caps outbound model calls; 0 disables the limiter.
	RatePerMinute int
	Logger        *slog.Logger
}

type Service struct {
	gen     gemini.Generator
	prompts *prompt.Library
	limits  media.Limits
	limiter *rate.Limiter
	logger  *slog.Logger
}

func New(opts Options) *Service {
	prompts := opts.Prompts
	if prompts == nil {
		prompts = prompt.Default()
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var limiter *rate.Limiter
	if opts.RatePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RatePerMinute)), 2)
	}

	return &Service{
		gen:     opts.Generator,
		prompts: prompts,
		limits:  opts.Limits,
		limiter: limiter,
		logger:  logger,
	}
}

// ResolveTarget picks the concrete target for a request.
func ResolveTarget(req Request) model.TargetModel {
	return req.Target.Resolve(media.HasVideo(req.Media))
}

func (s *Service) Analyze(ctx context.Context, req Request) (model.PromptResult, error) {
	if s.gen == nil {
		return model.PromptResult{}, errors.New("analyzer: generator is nil")
	}
	if err := s.limits.Check(req.Media); err != nil {
		return model.PromptResult{}, err
	}

	target := ResolveTarget(req)
	text, err := s.prompts.Build(prompt.Input{
		Count:        len(req.Media),
		Instructions: req.Instructions,
		Target:       target,
	})
	if err != nil {
		return model.PromptResult{}, err
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return model.PromptResult{}, fmt.Errorf("rate limit: %w", err)
		}
	}

	inputs := make([]gemini.MediaInput, 0, len(req.Media))
	for _, it := range req.Media {
		inputs = append(inputs, gemini.MediaInput{Data: it.Data, MimeType: it.MimeType})
	}

	start := time.Now()
	raw, err := s.gen.GenerateJSON(ctx, gemini.JSONRequest{
		Prompt: text,
		Media:  inputs,
		Schema: prompt.ResultSchema(),
	})
	s.logger.Info("analyze",
		"model", s.gen.Model(),
		"media", len(req.Media),
		"kind", media.Kind(req.Media),
		"target", target,
		"dur_ms", time.Since(start).Milliseconds(),
		"ok", err == nil,
	)
	if err != nil {
		return model.PromptResult{}, err
	}

	return DecodeResult(raw)
}

// DecodeResult parses the model's JSON answer, tolerating Markdown fences and
// leading chatter.
func DecodeResult(raw string) (model.PromptResult, error) {
	body := extractJSON(raw)
	if body == "" {
		return model.PromptResult{}, gemini.ErrEmptyResponse
	}

	var res model.PromptResult
	if err := json.Unmarshal([]byte(body), &res); err != nil {
		return model.PromptResult{}, fmt.Errorf("decode prompt result: %w", err)
	}
	if strings.TrimSpace(res.PositivePrompt) == "" {
		return model.PromptResult{}, ErrIncompleteResult
	}
	return res, nil
}

func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return strings.TrimSpace(s)
	}
	return s[start : end+1]
}
