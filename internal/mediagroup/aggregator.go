package mediagroup

import (
	"fmt"
	"sync"
	"time"
)

// File points at one Telegram attachment.
type File struct {
	ID       string
	Name     string
	MimeType string
}

type Item struct {
	ChatID       int64
	UserID       int64
	Username     string
	MediaGroupID string
	Caption      string
	File         File
}

// Group is one album, files in arrival order.
type Group struct {
	ChatID   int64
	UserID   int64
	Username string
	Caption  string
	Files    []File
}

type Options struct {
	Debounce time.Duration
	// MaxFiles flushes a group early once it holds this many files. 0 means
	// no cap.
	MaxFiles int
	OnFlush  func(Group)
}

// Aggregator collects album parts that Telegram delivers as separate updates
// and emits them as one Group after a quiet period.
type Aggregator struct {
	mu       sync.Mutex
	debounce time.Duration
	maxFiles int
	onFlush  func(Group)
	groups   map[string]*pendingGroup
}

type pendingGroup struct {
	group Group
	timer *time.Timer
}

func New(opts Options) *Aggregator {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 1200 * time.Millisecond
	}

	return &Aggregator{
		debounce: debounce,
		maxFiles: opts.MaxFiles,
		onFlush:  opts.OnFlush,
		groups:   make(map[string]*pendingGroup),
	}
}

func (a *Aggregator) Add(item Item) {
	if item.MediaGroupID == "" || item.File.ID == "" {
		return
	}

	key := makeKey(item.ChatID, item.MediaGroupID)

	a.mu.Lock()
	pg, ok := a.groups[key]
	if !ok {
		pg = &pendingGroup{
			group: Group{
				ChatID:   item.ChatID,
				UserID:   item.UserID,
				Username: item.Username,
			},
		}
		a.groups[key] = pg
	}
	pg.group.Files = append(pg.group.Files, item.File)
	if item.Caption != "" {
		pg.group.Caption = item.Caption
	}

	if pg.timer != nil {
		pg.timer.Stop()
	}
	full := a.maxFiles > 0 && len(pg.group.Files) >= a.maxFiles
	if !full {
		pg.timer = time.AfterFunc(a.debounce, func() {
			a.flush(key)
		})
	}
	a.mu.Unlock()

	// Flush off the caller's goroutine: Add runs inside update handlers that
	// may hold the same worker slots OnFlush waits for.
	if full {
		go a.flush(key)
	}
}

// Pending reports how many groups are still waiting for their quiet period.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.groups)
}

func (a *Aggregator) flush(key string) {
	a.mu.Lock()
	pg, ok := a.groups[key]
	if !ok {
		a.mu.Unlock()
		return
	}
	delete(a.groups, key)
	if pg.timer != nil {
		pg.timer.Stop()
	}
	group := pg.group
	onFlush := a.onFlush
	a.mu.Unlock()

	if onFlush != nil {
		onFlush(group)
	}
}

func makeKey(chatID int64, mediaGroupID string) string {
	return fmt.Sprintf("%d:%s", chatID, mediaGroupID)
}
