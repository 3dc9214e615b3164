// Package session keeps the vendor's validated-token session in a key/value
// store, and the administrator's credentials with an idle timeout.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/smartdata/pedidos/internal/domain/gateway"
	"github.com/smartdata/pedidos/internal/domain/tenant"
	"github.com/smartdata/pedidos/pkg/storage"
)

// Persisted keys.
const (
	KeyValid   = "session_valid"
	KeyUser    = "session_user"
	KeyTenant  = "session_empresa"
	KeyExpires = "session_expires"
	KeySeal    = "session_seal"
	KeyVendor  = "session_vendor"
)

var sessionKeys = []string{KeyValid, KeyUser, KeyTenant, KeyExpires, KeySeal, KeyVendor}

const DefaultTTL = 8 * time.Hour

var (
	ErrNoSession       = errors.New("not authenticated")
	ErrExpired         = errors.New("session expired")
	ErrEmptyToken      = errors.New("token is required")
	ErrInvalidToken    = errors.New("invalid token")
	ErrTenantSuspended = errors.New("tenant is suspended")
	ErrRejected        = errors.New("token validation rejected")
	ErrUnknownVendor   = errors.New("unknown vendor")
	ErrBusy            = errors.New("token validation already in progress")
)

// State is the position of the login state machine. Expired is never
// observed from outside: an expired session is purged and reported as
// Unauthenticated.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// Session is a validated token.
type Session struct {
	User      string         `json:"user"`
	Vendor    string         `json:"vendor"`
	Tenant    *tenant.Tenant `json:"tenant,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	ExpiresAt time.Time      `json:"expiresAt"`
}

// ValidAt reports whether the session is still usable at now.
func (s *Session) ValidAt(now time.Time) bool {
	return s != nil && now.Before(s.ExpiresAt)
}

// NeedsVendor is true when the token carried no identity and nobody has
// been picked yet.
func (s *Session) NeedsVendor() bool {
	return s.Vendor == ""
}

// TenantID is "" for single-tenant sessions.
func (s *Session) TenantID() string {
	if s.Tenant == nil {
		return ""
	}
	return s.Tenant.ID
}

// Validator checks tokens against the backend.
type Validator interface {
	ValidateToken(ctx context.Context, token string) (*gateway.TokenResult, error)
}

type Options struct {
	TTL     time.Duration
	Vendors []string // names offered when the token has no user
}

// Manager drives the login state machine over a storage.Store.
type Manager struct {
	mu        sync.Mutex
	store     storage.Store
	validator Validator
	codec     *Codec
	ttl       time.Duration
	vendors   []string
	logger    *slog.Logger
	now       func() time.Time

	state   State
	current *Session
}

func NewManager(store storage.Store, validator Validator, codec *Codec, opts Options, logger *slog.Logger) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	return &Manager{
		store:     store,
		validator: validator,
		codec:     codec,
		ttl:       opts.TTL,
		vendors:   opts.Vendors,
		logger:    logger,
		now:       time.Now,
	}
}

// Restore reads the persisted session once at start. Anything missing,
// corrupt or expired is purged.
func (m *Manager) Restore(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readLocked(ctx)
}

// Current returns the active session, re-checking persisted state and expiry
// on every call.
func (m *Manager) Current(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readLocked(ctx)
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Vendors returns the names SelectVendor accepts.
func (m *Manager) Vendors() []string {
	return slices.Clone(m.vendors)
}

// Validate exchanges token for a session.
func (m *Manager) Validate(ctx context.Context, token string) (*Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrEmptyToken
	}

	m.mu.Lock()
	if m.state == StateAuthenticating {
		m.mu.Unlock()
		return nil, ErrBusy
	}
	m.state = StateAuthenticating
	m.mu.Unlock()

	res, err := m.validator.ValidateToken(ctx, token)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateUnauthenticated
	m.current = nil

	if err != nil {
		m.logger.Warn("token validation failed", slog.Any("error", err))
		return nil, m.purgeLocked(ctx, err)
	}

	switch res.Status {
	case gateway.TokenSuccess:
	case gateway.TokenInvalid:
		return nil, m.purgeLocked(ctx, ErrInvalidToken)
	case gateway.TokenSuspended:
		return nil, m.purgeLocked(ctx, fmt.Errorf("%w: %s", ErrTenantSuspended, res.Message))
	default:
		msg := res.Message
		if msg == "" {
			msg = res.Status
		}
		return nil, m.purgeLocked(ctx, fmt.Errorf("%w: %s", ErrRejected, msg))
	}

	now := m.now().Truncate(time.Second)
	s := &Session{
		User:      res.User,
		Vendor:    res.User,
		Tenant:    res.Tenant,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.persistLocked(ctx, s); err != nil {
		return nil, err
	}

	m.state = StateAuthenticated
	m.current = s
	m.logger.Info("session started",
		slog.String("user", s.User),
		slog.String("tenant", s.TenantID()),
		slog.Time("expires_at", s.ExpiresAt),
	)
	return s, nil
}

// SelectVendor sets who takes orders in this session. When vendor names are
// configured, name must be one of them.
func (m *Manager) SelectVendor(ctx context.Context, name string) (*Session, error) {
	name = strings.TrimSpace(name)

	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.readLocked(ctx)
	if err != nil {
		return nil, err
	}
	if name == "" || (len(m.vendors) > 0 && !slices.Contains(m.vendors, name)) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVendor, name)
	}
	if err := m.store.Set(ctx, KeyVendor, name); err != nil {
		return nil, fmt.Errorf("failed to save vendor: %w", err)
	}
	s.Vendor = name
	return s, nil
}

// Logout purges every persisted key.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateUnauthenticated
	m.current = nil
	return m.store.Delete(ctx, sessionKeys...)
}

// purgeLocked drops any previously persisted session after a failed
// validation and returns cause.
func (m *Manager) purgeLocked(ctx context.Context, cause error) error {
	if err := m.store.Delete(ctx, sessionKeys...); err != nil {
		m.logger.Error("failed to purge session", slog.Any("error", err))
	}
	return cause
}

func (m *Manager) persistLocked(ctx context.Context, s *Session) error {
	seal, err := m.codec.Seal(*s)
	if err != nil {
		return err
	}
	values := [][2]string{
		{KeyValid, "1"},
		{KeyUser, s.User},
		{KeyExpires, strconv.FormatInt(s.ExpiresAt.UnixMilli(), 10)},
		{KeySeal, seal},
	}
	if s.Tenant != nil {
		b, err := json.Marshal(s.Tenant)
		if err != nil {
			return fmt.Errorf("failed to encode tenant: %w", err)
		}
		values = append(values, [2]string{KeyTenant, string(b)})
	}

	// a previous session may have left a tenant or vendor behind
	if err := m.store.Delete(ctx, KeyTenant, KeyVendor); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	for _, kv := range values {
		if err := m.store.Set(ctx, kv[0], kv[1]); err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}
	}
	return nil
}

func (m *Manager) readLocked(ctx context.Context) (*Session, error) {
	if m.state == StateAuthenticating {
		return nil, ErrNoSession
	}

	s, err := m.load(ctx)
	if err != nil {
		m.state = StateUnauthenticated
		m.current = nil
		if errors.Is(err, ErrExpired) {
			m.logger.Info("session expired")
		} else if !errors.Is(err, ErrNoSession) {
			m.logger.Warn("discarding corrupt session", slog.Any("error", err))
		}
		if delErr := m.store.Delete(ctx, sessionKeys...); delErr != nil {
			m.logger.Error("failed to purge session", slog.Any("error", delErr))
		}
		return nil, err
	}

	m.state = StateAuthenticated
	m.current = s
	return s, nil
}

// load rebuilds the session from persisted keys and checks it against the
// seal.
func (m *Manager) load(ctx context.Context) (*Session, error) {
	get := func(key string) (string, error) {
		v, err := m.store.Get(ctx, key)
		if errors.Is(err, storage.ErrNotFound) {
			return "", nil
		}
		return v, err
	}

	valid, err := get(KeyValid)
	if err != nil {
		return nil, err
	}
	if valid != "1" {
		return nil, ErrNoSession
	}

	seal, err := get(KeySeal)
	if err != nil {
		return nil, err
	}
	sealed, tenantID, err := m.codec.Open(seal)
	if err != nil {
		return nil, err
	}

	user, err := get(KeyUser)
	if err != nil {
		return nil, err
	}
	expires, err := get(KeyExpires)
	if err != nil {
		return nil, err
	}
	ms, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: expiry %q", ErrBadSeal, expires)
	}
	if user != sealed.User || ms != sealed.ExpiresAt.UnixMilli() {
		return nil, fmt.Errorf("%w: record does not match seal", ErrBadSeal)
	}

	s := &Session{
		User:      user,
		Vendor:    user,
		CreatedAt: sealed.CreatedAt,
		ExpiresAt: sealed.ExpiresAt,
	}
	if !s.ValidAt(m.now()) {
		return nil, ErrExpired
	}

	rawTenant, err := get(KeyTenant)
	if err != nil {
		return nil, err
	}
	if rawTenant != "" {
		var t tenant.Tenant
		if err := json.Unmarshal([]byte(rawTenant), &t); err != nil {
			return nil, fmt.Errorf("%w: tenant: %v", ErrBadSeal, err)
		}
		s.Tenant = &t
	}
	if s.TenantID() != tenantID {
		return nil, fmt.Errorf("%w: tenant does not match seal", ErrBadSeal)
	}

	vendor, err := get(KeyVendor)
	if err != nil {
		return nil, err
	}
	if vendor != "" {
		s.Vendor = vendor
	}
	return s, nil
}
