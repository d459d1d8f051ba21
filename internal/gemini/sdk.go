package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

type SDKOptions struct {
	APIKey      string
	Model       string
	Temperature float32
	// Vertex switches the backend to Vertex AI; Project and Location are then
	// required and APIKey is ignored.
	Vertex     bool
	Project    string
	Location   string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// SDKClient implements Generator on top of google.golang.org/genai.
type SDKClient struct {
	client      *genai.Client
	model       string
	temperature float32
	logger      *slog.Logger
}

func NewSDK(ctx context.Context, opts SDKOptions) (*SDKClient, error) {
	cfg := &genai.ClientConfig{
		HTTPClient: opts.HTTPClient,
	}
	if opts.Vertex {
		if strings.TrimSpace(opts.Project) == "" {
			return nil, errors.New("vertex backend requires a project")
		}
		cfg.Backend = genai.BackendVertexAI
		cfg.Project = opts.Project
		cfg.Location = opts.Location
	} else {
		if strings.TrimSpace(opts.APIKey) == "" {
			return nil, errors.New("gemini api key is empty")
		}
		cfg.Backend = genai.BackendGeminiAPI
		cfg.APIKey = opts.APIKey
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &SDKClient{
		client:      client,
		model:       model,
		temperature: opts.Temperature,
		logger:      logger,
	}, nil
}

func (c *SDKClient) Model() string {
	return c.model
}

func (c *SDKClient) GenerateJSON(ctx context.Context, req JSONRequest) (string, error) {
	parts := make([]*genai.Part, 0, len(req.Media)+1)
	for _, m := range req.Media {
		parts = append(parts, genai.NewPartFromBytes(m.Data, m.MimeType))
	}
	parts = append(parts, genai.NewPartFromText(strings.TrimSpace(req.Prompt)))

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   toGenaiSchema(req.Schema),
	}
	if c.temperature > 0 {
		config.Temperature = genai.Ptr(c.temperature)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, config)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func toGenaiSchema(s *Schema) *genai.Schema {
	if s == nil {
		return nil
	}

	out := &genai.Schema{
		Type:     genai.Type(s.Type),
		Required: append([]string(nil), s.Required...),
		Items:    toGenaiSchema(s.Items),
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGenaiSchema(prop)
		}
	}
	return out
}
