package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"promptmaster-nano/internal/model"
	"promptmaster-nano/internal/store"
)

type Stage string

const (
	StageSelect     Stage = "select"
	StageInput      Stage = "input"
	StageProcessing Stage = "processing"
	StageDone       Stage = "done"
)

var (
	ErrTicketNotFound = errors.New("login ticket not found or expired")
	ErrInvalidMethod  = errors.New("unsupported login method")
	ErrInvalidStage   = errors.New("operation not allowed in current login stage")
	ErrPhoneRequired  = errors.New("phone number is required")
	ErrUnauthorized   = errors.New("unauthorized")
)

// Ticket is one in-flight login. Token and User are only set once the stage
// reaches done.
type Ticket struct {
	ID      string          `json:"ticket"`
	Method  model.LoginType `json:"method"`
	Stage   Stage           `json:"stage"`
	ReadyAt int64           `json:"readyAt,omitempty"`
	Token   string          `json:"token,omitempty"`
	User    *model.User     `json:"user,omitempty"`

	phone string
}

type Options struct {
	Users   store.UserRepository
	History store.HistoryRepository

	Secret   []byte
	TokenTTL time.Duration
	// Delay is how long the simulated third-party authorisation takes.
	Delay     time.Duration
	TicketTTL time.Duration

	Now    func() time.Time
	Logger *slog.Logger
}

type Manager struct {
	mu      sync.Mutex
	tickets *cache.Cache

	users   store.UserRepository
	history store.HistoryRepository
	tokens  *tokenIssuer
	delay   time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

func NewManager(opts Options) *Manager {
	ticketTTL := opts.TicketTTL
	if ticketTTL <= 0 {
		ticketTTL = 10 * time.Minute
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	secret := opts.Secret
	if len(secret) == 0 {
		secret = make([]byte, 32)
		_, _ = rand.Read(secret)
		logger.Warn("AUTH_SECRET not set, tokens will not survive a restart")
	}

	return &Manager{
		tickets: cache.New(ticketTTL, 2*ticketTTL),
		users:   opts.Users,
		history: opts.History,
		tokens:  newTokenIssuer(secret, opts.TokenTTL, now),
		delay:   opts.Delay,
		now:     now,
		logger:  logger,
	}
}

// Start opens a login ticket. Guest logins complete immediately, phone logins
// wait for SubmitPhone, the social methods go straight to processing.
func (m *Manager) Start(ctx context.Context, method model.LoginType) (Ticket, error) {
	if !method.Valid() {
		return Ticket{}, fmt.Errorf("%w: %q", ErrInvalidMethod, method)
	}

	t := Ticket{ID: uuid.NewString(), Method: method}
	switch method {
	case model.LoginGuest:
		return m.finalize(ctx, t)
	case model.LoginPhone:
		t.Stage = StageInput
	default:
		t.Stage = StageProcessing
		t.ReadyAt = m.now().Add(m.delay).UnixMilli()
	}

	m.mu.Lock()
	m.tickets.SetDefault(t.ID, t)
	m.mu.Unlock()
	return t, nil
}

// SubmitPhone moves a phone ticket from input to processing. The
// verification code is not checked.
func (m *Manager) SubmitPhone(id, phone, code string) (Ticket, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return Ticket{}, ErrPhoneRequired
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.getLocked(id)
	if err != nil {
		return Ticket{}, err
	}
	if t.Stage != StageInput {
		return Ticket{}, ErrInvalidStage
	}

	t.phone = phone
	t.Stage = StageProcessing
	t.ReadyAt = m.now().Add(m.delay).UnixMilli()
	m.tickets.SetDefault(t.ID, t)
	return t, nil
}

// Back returns a phone ticket to method selection.
func (m *Manager) Back(id string) (Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.getLocked(id)
	if err != nil {
		return Ticket{}, err
	}
	if t.Stage != StageInput {
		return Ticket{}, ErrInvalidStage
	}

	t.Stage = StageSelect
	t.phone = ""
	m.tickets.SetDefault(t.ID, t)
	return t, nil
}

// Poll reports the ticket state and finalises it once the delay has passed.
func (m *Manager) Poll(ctx context.Context, id string) (Ticket, error) {
	m.mu.Lock()
	t, err := m.getLocked(id)
	if err != nil {
		m.mu.Unlock()
		return Ticket{}, err
	}
	if t.Stage != StageProcessing || m.now().UnixMilli() < t.ReadyAt {
		m.mu.Unlock()
		return t, nil
	}
	m.tickets.Delete(id)
	m.mu.Unlock()

	done, err := m.finalize(ctx, t)
	if err != nil {
		// Put the ticket back so the client can poll again.
		m.mu.Lock()
		m.tickets.SetDefault(t.ID, t)
		m.mu.Unlock()
		return Ticket{}, err
	}
	return done, nil
}

func (m *Manager) getLocked(id string) (Ticket, error) {
	v, ok := m.tickets.Get(id)
	if !ok {
		return Ticket{}, ErrTicketNotFound
	}
	return v.(Ticket), nil
}

func (m *Manager) finalize(ctx context.Context, t Ticket) (Ticket, error) {
	u := &model.User{
		ID:           uuid.NewString(),
		Name:         displayName(t.Method, t.phone),
		LoginType:    t.Method,
		IsLoggedIn:   true,
		RegisteredAt: m.now().UnixMilli(),
	}
	if t.Method == model.LoginPhone {
		u.Phone = t.phone
	}

	if err := m.users.Save(ctx, u); err != nil {
		return Ticket{}, fmt.Errorf("save user: %w", err)
	}

	token, err := m.tokens.issue(u)
	if err != nil {
		return Ticket{}, fmt.Errorf("issue token: %w", err)
	}

	m.logger.Info("login", "user_id", u.ID, "method", u.LoginType)

	t.Stage = StageDone
	t.Token = token
	t.User = u
	t.phone = ""
	return t, nil
}

func displayName(method model.LoginType, phone string) string {
	switch method {
	case model.LoginGoogle:
		return "Google 用户"
	case model.LoginWeChat:
		return "微信用户"
	case model.LoginPhone:
		r := []rune(phone)
		if len(r) > 4 {
			r = r[len(r)-4:]
		}
		return "手机用户 " + string(r)
	default:
		return "访客"
	}
}

// Authenticate resolves a bearer token to a logged-in user.
func (m *Manager) Authenticate(ctx context.Context, token string) (*model.User, error) {
	claims, err := m.tokens.parse(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	u, err := m.users.Get(ctx, claims.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	if !u.IsLoggedIn {
		return nil, ErrUnauthorized
	}
	return u, nil
}

// Logout signs the user out and wipes their history.
func (m *Manager) Logout(ctx context.Context, userID string) error {
	if err := m.users.SetLoggedIn(ctx, userID, false); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	if m.history != nil {
		n, err := m.history.Clear(ctx, userID)
		if err != nil {
			return fmt.Errorf("clear history: %w", err)
		}
		m.logger.Info("logout", "user_id", userID, "history_cleared", n)
	}
	return nil
}

// Guest returns the user with the given fixed id, creating a logged-in guest
// on first use. Used by front-ends that carry their own identity.
func (m *Manager) Guest(ctx context.Context, id, name string) (*model.User, error) {
	u, err := m.users.Get(ctx, id)
	if err == nil {
		if !u.IsLoggedIn {
			u.IsLoggedIn = true
			if err := m.users.Save(ctx, u); err != nil {
				return nil, err
			}
		}
		return u, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if strings.TrimSpace(name) == "" {
		name = displayName(model.LoginGuest, "")
	}
	u = &model.User{
		ID:           id,
		Name:         name,
		LoginType:    model.LoginGuest,
		IsLoggedIn:   true,
		RegisteredAt: m.now().UnixMilli(),
	}
	if err := m.users.Save(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}
