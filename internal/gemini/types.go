package gemini

import (
	"context"
	"errors"
)

const DefaultModel = "gemini-3-pro-preview"

var ErrEmptyResponse = errors.New("no response from AI")

type MediaInput struct {
	Data     []byte
	MimeType string
}

// JSONRequest asks the model for a single JSON document. Media parts are sent
// before the prompt text.
type JSONRequest struct {
	Prompt string
	Media  []MediaInput
	Schema *Schema
}

// Generator is satisfied by both the REST and the SDK client.
type Generator interface {
	GenerateJSON(ctx context.Context, req JSONRequest) (string, error)
	Model() string
}

const (
	TypeObject = "OBJECT"
	TypeString = "STRING"
	TypeArray  = "ARRAY"
)

type Schema struct {
	Type       string             `json:"type"`
	Properties map[string]*Schema `json:"properties,omitempty"`
	Items      *Schema            `json:"items,omitempty"`
	Required   []string           `json:"required,omitempty"`
}
