package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/smartdata/pedidos/internal/domain/gateway"
	"github.com/smartdata/pedidos/pkg/storage"
)

const (
	KeyAdmin = "admin_session"

	DefaultAdminIdle = 10 * time.Minute
)

// AdminSession is the administrator's login. Credentials are kept because
// every admin action resends them.
type AdminSession struct {
	User         string    `json:"user"`
	Pass         string    `json:"pass"`
	LastActivity time.Time `json:"lastActivity"`
}

func (s *AdminSession) Credentials() gateway.AdminCredentials {
	return gateway.AdminCredentials{User: s.User, Pass: s.Pass}
}

// AdminStore keeps the admin session encrypted with secretbox and expires it
// after a period without activity.
type AdminStore struct {
	store storage.Store
	key   [32]byte
	idle  time.Duration
	now   func() time.Time
}

func NewAdminStore(store storage.Store, secret string, idle time.Duration) *AdminStore {
	if idle <= 0 {
		idle = DefaultAdminIdle
	}
	return &AdminStore{
		store: store,
		key:   sha256.Sum256([]byte(secret)),
		idle:  idle,
		now:   time.Now,
	}
}

// Save starts a session for creds.
func (a *AdminStore) Save(ctx context.Context, creds gateway.AdminCredentials) (*AdminSession, error) {
	s := &AdminSession{User: creds.User, Pass: creds.Pass, LastActivity: a.now()}
	if err := a.write(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Load returns the session if it has been used within the idle window. Idle
// or unreadable sessions are cleared.
func (a *AdminStore) Load(ctx context.Context) (*AdminSession, error) {
	raw, err := a.store.Get(ctx, KeyAdmin)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}

	s, err := a.open(raw)
	if err != nil {
		_ = a.Clear(ctx)
		return nil, err
	}
	if a.now().Sub(s.LastActivity) > a.idle {
		_ = a.Clear(ctx)
		return nil, ErrExpired
	}
	return s, nil
}

// Touch records activity and extends the idle window.
func (a *AdminStore) Touch(ctx context.Context) (*AdminSession, error) {
	s, err := a.Load(ctx)
	if err != nil {
		return nil, err
	}
	s.LastActivity = a.now()
	if err := a.write(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (a *AdminStore) Clear(ctx context.Context) error {
	return a.store.Delete(ctx, KeyAdmin)
}

func (a *AdminStore) write(ctx context.Context, s *AdminSession) error {
	plain, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode admin session: %w", err)
	}

	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], plain, &nonce, &a.key)

	if err := a.store.Set(ctx, KeyAdmin, base64.RawURLEncoding.EncodeToString(sealed)); err != nil {
		return fmt.Errorf("failed to save admin session: %w", err)
	}
	return nil
}

func (a *AdminStore) open(raw string) (*AdminSession, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil || len(sealed) < 24+secretbox.Overhead {
		return nil, ErrBadSeal
	}

	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	plain, ok := secretbox.Open(nil, sealed[24:], &nonce, &a.key)
	if !ok {
		return nil, ErrBadSeal
	}

	var s AdminSession
	if err := json.Unmarshal(plain, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSeal, err)
	}
	return &s, nil
}
