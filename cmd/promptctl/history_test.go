package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promptmaster-nano/internal/media"
	"promptmaster-nano/internal/model"
	"promptmaster-nano/internal/store"
)

func seedHistory(t *testing.T, dsn string) {
	t.Helper()
	db, err := store.Open(store.Options{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)
	defer store.Close(db)

	repo := store.NewHistoryRepository(db)
	now := time.Now()
	for i, ts := range []time.Time{now.AddDate(0, 0, -40), now.Add(-time.Hour)} {
		rec := &model.PromptRecord{
			ID:          []string{"old", "new"}[i],
			UserID:      "cli",
			Timestamp:   ts.UnixMilli(),
			MediaType:   "image/png",
			TargetModel: model.TargetNano,
		}
		rec.PositivePrompt = "a cat in the rain"
		require.NoError(t, repo.Append(context.Background(), rec))
	}
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	t.Setenv("DB_DRIVER", "sqlite")
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	return out.String()
}

func TestHistoryListAndPurge(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "cli.db")
	seedHistory(t, dsn)

	out := run(t, "history", "list", "--db-dsn", dsn)
	assert.Contains(t, out, "old")
	assert.Contains(t, out, "new")
	assert.Contains(t, out, "a cat in the rain")

	out = run(t, "history", "purge", "--days", "30", "--db-dsn", dsn)
	assert.Contains(t, out, "deleted 1 records")

	out = run(t, "history", "list", "--json", "--db-dsn", dsn)
	assert.Contains(t, out, `"id": "new"`)
	assert.NotContains(t, out, `"id": "old"`)
}

func TestHistoryListOtherUserIsEmpty(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "cli.db")
	seedHistory(t, dsn)

	out := run(t, "history", "list", "--user", "someone", "--db-dsn", dsn)
	assert.NotContains(t, out, "a cat in the rain")
}

func TestLoadFiles(t *testing.T) {
	dir := t.TempDir()
	png := []byte("\x89PNG\r\n\x1a\n0000")
	a := filepath.Join(dir, "a.png")
	b := filepath.Join(dir, "b.png")
	require.NoError(t, os.WriteFile(a, png, 0o600))
	require.NoError(t, os.WriteFile(b, png, 0o600))

	items, err := loadFiles([]string{b, a}, media.Limits{MaxItems: 2})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "b.png", items[0].Name)
	assert.Equal(t, "image/png", items[1].MimeType)

	_, err = loadFiles([]string{a, b}, media.Limits{MaxItems: 1})
	assert.ErrorIs(t, err, media.ErrTooMany)

	_, err = loadFiles([]string{filepath.Join(dir, "missing.png")}, media.Limits{})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestAnalyzeRejectsUnknownTarget(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"analyze", "--target", "dalle", "x.png"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown target")
}
