// Package server exposes the vendor order flow over HTTP with cookie-backed
// sessions.
package server

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/smartdata/pedidos/internal/domain/catalog"
	"github.com/smartdata/pedidos/internal/domain/order"
	"github.com/smartdata/pedidos/internal/domain/receipt"
	"github.com/smartdata/pedidos/internal/domain/session"
	"github.com/smartdata/pedidos/pkg/storage"
)

// CatalogSource returns the catalog currently in use.
type CatalogSource interface {
	Current() *catalog.Catalog
}

// Deps are the services the handlers call.
type Deps struct {
	Validator session.Validator
	Codec     *session.Codec
	Sessions  session.Options
	Cookies   sessions.Store
	Catalog   CatalogSource
	Submitter *order.Submitter
	Receipts  *receipt.Service // optional
	Files     *storage.FileStorage
	Registry  *prometheus.Registry // optional; /metrics is served from it
}

type Options struct {
	Addr               string
	AllowedOrigins     []string
	RateLimitPerSecond int
	RateLimitBurst     int
	SearchLimit        int
}

type Server struct {
	deps    Deps
	opts    Options
	logger  *slog.Logger
	handler http.Handler
}

const defaultSearchLimit = 20

func New(deps Deps, opts Options, logger *slog.Logger) *Server {
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = defaultSearchLimit
	}
	s := &Server{deps: deps, opts: opts, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if deps.Registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("GET /api/session", s.withSession(s.handleSessionGet))
	mux.HandleFunc("POST /api/session", s.withSession(s.handleSessionCreate))
	mux.HandleFunc("DELETE /api/session", s.withSession(s.handleSessionDelete))
	mux.HandleFunc("POST /api/session/vendor", s.withSession(s.handleVendorSelect))

	mux.HandleFunc("GET /api/catalog/clients", s.withSession(s.handleClients))
	mux.HandleFunc("GET /api/catalog/products", s.withSession(s.handleProducts))

	mux.HandleFunc("POST /api/orders", s.withSession(s.handleOrderCreate))
	mux.HandleFunc("GET /api/receipts", s.withSession(s.handleReceiptList))
	mux.HandleFunc("GET /api/receipts/{id}", s.withSession(s.handleReceiptDownload))

	var reg prometheus.Registerer
	if deps.Registry != nil {
		reg = deps.Registry
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           600,
	})

	var h http.Handler = mux
	if opts.RateLimitPerSecond > 0 {
		h = newIPLimiter(opts.RateLimitPerSecond, opts.RateLimitBurst).middleware(h)
	}
	h = securityHeaders(h)
	h = c.Handler(h)
	h = instrument(logger, newHTTPMetrics(reg), h)
	h = recoverer(logger, h)
	s.handler = h
	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", slog.String("addr", s.opts.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

// cookieKeys derives the cookie signing and encryption keys from secret.
func cookieKeys(secret string) (hash, block []byte) {
	h := sha256.Sum256([]byte("pedidos-cookie-hash:" + secret))
	b := sha256.Sum256([]byte("pedidos-cookie-block:" + secret))
	return h[:], b[:]
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, m *session.Manager) (int, any, error)

// withSession gives the handler a session manager over the request's cookie
// and writes the cookie back before the response.
func (s *Server) withSession(fn sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.deps.Cookies.Get(r, cookieName)
		if err != nil {
			s.logger.Debug("discarding unreadable session cookie", slog.Any("error", err))
		}
		if sess == nil {
			sess = sessions.NewSession(s.deps.Cookies, cookieName)
			sess.Options = &sessions.Options{Path: "/", HttpOnly: true}
			sess.IsNew = true
		}
		state := &cookieState{sess: sess}
		m := session.NewManager(state, s.deps.Validator, s.deps.Codec, s.deps.Sessions, s.logger)

		status, body, herr := fn(w, r, m)

		if err := state.save(r, w); err != nil {
			s.logger.Error("failed to save session cookie", slog.Any("error", err))
			writeError(w, err)
			return
		}
		if herr != nil {
			if status == 0 {
				writeError(w, herr)
				return
			}
			writeJSON(w, status, body)
			return
		}
		if status == 0 {
			// the handler wrote the response itself
			return
		}
		writeJSON(w, status, body)
	}
}
