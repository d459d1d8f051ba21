package gemini

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestNewSDKRequiresCredentials(t *testing.T) {
	_, err := NewSDK(context.Background(), SDKOptions{})
	require.Error(t, err)

	_, err = NewSDK(context.Background(), SDKOptions{Vertex: true, Location: "us-central1"})
	require.Error(t, err)
}

func TestNewSDKDefaultModel(t *testing.T) {
	c, err := NewSDK(context.Background(), SDKOptions{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, c.Model())
}

func TestToGenaiSchema(t *testing.T) {
	assert.Nil(t, toGenaiSchema(nil))

	in := &Schema{
		Type: TypeObject,
		Properties: map[string]*Schema{
			"positivePrompt": {Type: TypeString},
			"tags":           {Type: TypeArray, Items: &Schema{Type: TypeString}},
		},
		Required: []string{"positivePrompt"},
	}
	out := toGenaiSchema(in)

	assert.Equal(t, genai.TypeObject, out.Type)
	assert.Equal(t, []string{"positivePrompt"}, out.Required)
	require.Contains(t, out.Properties, "tags")
	assert.Equal(t, genai.TypeArray, out.Properties["tags"].Type)
	assert.Equal(t, genai.TypeString, out.Properties["tags"].Items.Type)

	in.Required[0] = "changed"
	assert.Equal(t, "positivePrompt", out.Required[0])
}
