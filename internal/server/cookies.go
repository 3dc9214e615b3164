package server

import (
	"context"
	"net/http"

	"github.com/gorilla/sessions"

	"github.com/smartdata/pedidos/pkg/storage"
)

const cookieName = "pedidos_session"

// NewCookieStore keeps session values on disk under dir, with only a signed
// and encrypted session ID in the cookie.
func NewCookieStore(dir, secret string, maxAge int, secure bool) *sessions.FilesystemStore {
	hash, block := cookieKeys(secret)
	fs := sessions.NewFilesystemStore(dir, hash, block)
	fs.MaxLength(0)
	fs.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return fs
}

// cookieState exposes one request's cookie session as a storage.Store.
type cookieState struct {
	sess  *sessions.Session
	dirty bool
}

var _ storage.Store = (*cookieState)(nil)

func (c *cookieState) Get(ctx context.Context, key string) (string, error) {
	v, ok := c.sess.Values[key].(string)
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (c *cookieState) Set(ctx context.Context, key, value string) error {
	c.sess.Values[key] = value
	c.dirty = true
	return nil
}

func (c *cookieState) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		if _, ok := c.sess.Values[k]; ok {
			delete(c.sess.Values, k)
			c.dirty = true
		}
	}
	return nil
}

// save writes the session back when it changed. An emptied session is
// expired on the client.
func (c *cookieState) save(r *http.Request, w http.ResponseWriter) error {
	if !c.dirty {
		return nil
	}
	if len(c.sess.Values) == 0 {
		c.sess.Options.MaxAge = -1
	}
	return c.sess.Save(r, w)
}
