package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promptmaster-nano/internal/config"
	"promptmaster-nano/internal/gemini"
	"promptmaster-nano/internal/model"
)

func testConfig(t *testing.T) config.Config {
	return config.Config{
		Gemini: config.GeminiConfig{
			Backend: config.BackendREST,
			APIKey:  "key",
			Model:   "gemini-test",
		},
		MaxMediaItems:        5,
		MaxUploadMB:          2,
		DBDriver:             "sqlite",
		DBDSN:                filepath.Join(t.TempDir(), "app.db"),
		HistoryRetentionDays: 30,
		HistoryCleanupCron:   "0 0 0 1 1 *",
	}
}

func TestNewWiresServices(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), nil)
	require.NoError(t, err)

	a.StartBackground()
	defer func() { require.NoError(t, a.Close()) }()

	tk, err := a.Sessions.Start(context.Background(), model.LoginGuest)
	require.NoError(t, err)

	u, err := a.Users.Get(context.Background(), tk.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "访客", u.Name)
}

func TestNewGeneratorREST(t *testing.T) {
	gen, err := NewGenerator(context.Background(), testConfig(t), nil, nil)
	require.NoError(t, err)

	_, ok := gen.(*gemini.Client)
	assert.True(t, ok)
	assert.Equal(t, "gemini-test", gen.Model())
}

func TestNewGeneratorUnknownBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Gemini.Backend = "openai"
	_, err := NewGenerator(context.Background(), cfg, nil, nil)
	assert.Error(t, err)
}

func TestLimits(t *testing.T) {
	l := Limits(testConfig(t))
	assert.Equal(t, 5, l.MaxItems)
	assert.Equal(t, int64(2<<20), l.MaxBytes)
}
