package mediagroup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, opts Options) (*Aggregator, <-chan Group) {
	t.Helper()
	ch := make(chan Group, 4)
	opts.OnFlush = func(g Group) { ch <- g }
	return New(opts), ch
}

func waitGroup(t *testing.T, ch <-chan Group) Group {
	t.Helper()
	select {
	case g := <-ch:
		return g
	case <-time.After(2 * time.Second):
		t.Fatal("group was not flushed")
		return Group{}
	}
}

func TestAggregatesAlbumInOrder(t *testing.T) {
	a, ch := collect(t, Options{Debounce: 30 * time.Millisecond})

	a.Add(Item{ChatID: 1, UserID: 7, MediaGroupID: "g", File: File{ID: "f1"}})
	a.Add(Item{ChatID: 1, UserID: 7, MediaGroupID: "g", File: File{ID: "f2", MimeType: "video/mp4"}, Caption: "融合"})
	a.Add(Item{ChatID: 1, UserID: 7, MediaGroupID: "g", File: File{ID: "f3"}})

	g := waitGroup(t, ch)
	require.Len(t, g.Files, 3)
	assert.Equal(t, []string{"f1", "f2", "f3"}, []string{g.Files[0].ID, g.Files[1].ID, g.Files[2].ID})
	assert.Equal(t, "video/mp4", g.Files[1].MimeType)
	assert.Equal(t, "融合", g.Caption)
	assert.Equal(t, int64(7), g.UserID)
	assert.Zero(t, a.Pending())
}

func TestSeparatesChats(t *testing.T) {
	a, ch := collect(t, Options{Debounce: 30 * time.Millisecond})

	a.Add(Item{ChatID: 1, MediaGroupID: "g", File: File{ID: "a"}})
	a.Add(Item{ChatID: 2, MediaGroupID: "g", File: File{ID: "b"}})

	got := map[int64]int{}
	for range 2 {
		g := waitGroup(t, ch)
		got[g.ChatID] = len(g.Files)
	}
	assert.Equal(t, map[int64]int{1: 1, 2: 1}, got)
}

func TestFlushesEarlyWhenFull(t *testing.T) {
	a, ch := collect(t, Options{Debounce: time.Hour, MaxFiles: 2})

	a.Add(Item{ChatID: 1, MediaGroupID: "g", File: File{ID: "a"}})
	assert.Equal(t, 1, a.Pending())
	a.Add(Item{ChatID: 1, MediaGroupID: "g", File: File{ID: "b"}})

	g := waitGroup(t, ch)
	assert.Len(t, g.Files, 2)
	assert.Zero(t, a.Pending())
}

func TestEarlyFlushDoesNotBlockAdd(t *testing.T) {
	sem := make(chan struct{}, 1)
	flushed := make(chan Group, 1)
	a := New(Options{
		Debounce: time.Hour,
		MaxFiles: 2,
		OnFlush: func(g Group) {
			sem <- struct{}{}
			defer func() { <-sem }()
			flushed <- g
		},
	})

	add := func(id string) {
		sem <- struct{}{}
		defer func() { <-sem }()
		a.Add(Item{ChatID: 1, MediaGroupID: "g", File: File{ID: id}})
	}

	done := make(chan struct{})
	go func() {
		add("a")
		add("b")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Add blocked while the caller held the only worker slot")
	}

	g := waitGroup(t, flushed)
	assert.Len(t, g.Files, 2)
}

func TestIgnoresItemsWithoutGroup(t *testing.T) {
	a, _ := collect(t, Options{})
	a.Add(Item{ChatID: 1, File: File{ID: "a"}})
	a.Add(Item{ChatID: 1, MediaGroupID: "g"})
	assert.Zero(t, a.Pending())
}
