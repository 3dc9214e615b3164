package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdata/pedidos/internal/domain/catalog"
	"github.com/smartdata/pedidos/internal/domain/catalog/parser"
	"github.com/smartdata/pedidos/internal/domain/gateway"
	"github.com/smartdata/pedidos/internal/domain/order"
	"github.com/smartdata/pedidos/internal/domain/receipt"
	"github.com/smartdata/pedidos/internal/domain/session"
	"github.com/smartdata/pedidos/internal/domain/tenant"
	"github.com/smartdata/pedidos/pkg/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockValidator struct{}

func (mockValidator) ValidateToken(ctx context.Context, token string) (*gateway.TokenResult, error) {
	switch token {
	case "good":
		return &gateway.TokenResult{Status: gateway.TokenSuccess}, nil
	case "tenant":
		return &gateway.TokenResult{
			Status: gateway.TokenSuccess,
			User:   "Ana",
			Tenant: &tenant.Tenant{ID: "EMP001", Name: "Distribuidora Sol"},
		}, nil
	case "down":
		return nil, fmt.Errorf("%w: timeout", gateway.ErrUnavailable)
	default:
		return &gateway.TokenResult{Status: gateway.TokenInvalid}, nil
	}
}

type mockGateway struct {
	mu     sync.Mutex
	rows   []gateway.OrderRow
	failOn string
}

func (m *mockGateway) SaveOrderRow(ctx context.Context, row gateway.OrderRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row.ProductCode == m.failOn {
		return &gateway.StatusError{Action: "saveOrderRow", Status: "error", Message: "sheet locked"}
	}
	m.rows = append(m.rows, row)
	return nil
}

func (m *mockGateway) SaveOrder(ctx context.Context, payload gateway.OrderPayload) error {
	return nil
}

type staticCatalog struct{ c *catalog.Catalog }

func (s staticCatalog) Current() *catalog.Catalog { return s.c }

type fixture struct {
	srv     *httptest.Server
	client  *http.Client
	gateway *mockGateway
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	files, err := storage.NewFileStorage(t.TempDir())
	require.NoError(t, err)

	cat := catalog.New(
		parser.ParseCSV("Codigo,Cliente,Municipio\nC1,Tienda Ana,Soyapango\nC2,Abarrotes Luis,Mejicanos"),
		parser.ParseCSV("CODIGO,PRODUCTO,PRECIO-01,PRECIO-02,PRECIO-03\nP1,Arroz,1.50,1.40,1.30\nP2,Azucar,2,1.90,1.80"),
		time.Now(),
	)

	gw := &mockGateway{}
	deps := Deps{
		Validator: mockValidator{},
		Codec:     session.NewCodec("test-secret"),
		Sessions:  session.Options{Vendors: []string{"Ana", "Luis"}},
		Cookies:   NewCookieStore(t.TempDir(), "test-secret", 3600, false),
		Catalog:   staticCatalog{c: cat},
		Submitter: order.NewSubmitter(gw, order.ModePerLine, nil, discardLogger()),
		Receipts:  receipt.NewService(files, nil, nil, receipt.Branding{Company: "SMARTDATA"}, "", discardLogger()),
		Files:     files,
		Registry:  prometheus.NewRegistry(),
	}

	srv := httptest.NewServer(New(deps, opts, discardLogger()).Handler())
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &fixture{srv: srv, client: &http.Client{Jar: jar}, gateway: gw}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			r = strings.NewReader(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(t, err)
			r = bytes.NewReader(raw)
		}
	}
	req, err := http.NewRequest(method, f.srv.URL+path, r)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func TestServer_VendorFlow(t *testing.T) {
	f := newFixture(t, Options{})

	resp, _ := f.do(t, http.MethodGet, "/api/session", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := f.do(t, http.MethodPost, "/api/session", map[string]string{"token": "wrong"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Contains(t, body["error"], "invalid token")

	resp, _ = f.do(t, http.MethodPost, "/api/session", map[string]string{"token": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/api/session", map[string]string{"token": "down"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, body = f.do(t, http.MethodPost, "/api/session", map[string]string{"token": "good"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, true, body["needs_vendor"])
	assert.Equal(t, []any{"Ana", "Luis"}, body["vendors"])

	resp, _ = f.do(t, http.MethodPost, "/api/orders", map[string]any{"client_code": "C1"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "orders need a vendor")

	resp, _ = f.do(t, http.MethodPost, "/api/session/vendor", map[string]string{"vendor": "Pedro"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = f.do(t, http.MethodPost, "/api/session/vendor", map[string]string{"vendor": "Luis"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Luis", body["vendor"])

	resp, body = f.do(t, http.MethodGet, "/api/session", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Luis", body["vendor"])
	assert.Equal(t, false, body["needs_vendor"])

	resp, _ = f.do(t, http.MethodDelete, "/api/session", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/api/session", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_Catalog(t *testing.T) {
	f := newFixture(t, Options{})

	resp, _ := f.do(t, http.MethodGet, "/api/catalog/clients", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/api/session", map[string]string{"token": "good"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/api/catalog/clients?q=luis", nil)
	require.NoError(t, err)
	raw, err := f.client.Do(req)
	require.NoError(t, err)
	defer raw.Body.Close()
	require.Equal(t, http.StatusOK, raw.StatusCode)

	var clients []map[string]any
	require.NoError(t, json.NewDecoder(raw.Body).Decode(&clients))
	require.Len(t, clients, 1)
	assert.Equal(t, "C2", clients[0]["code"])
	assert.Equal(t, "Mejicanos", clients[0]["locality"].(map[string]any)["municipio"])

	req, err = http.NewRequest(http.MethodGet, f.srv.URL+"/api/catalog/products?limit=1", nil)
	require.NoError(t, err)
	raw2, err := f.client.Do(req)
	require.NoError(t, err)
	defer raw2.Body.Close()
	var products []map[string]any
	require.NoError(t, json.NewDecoder(raw2.Body).Decode(&products))
	assert.Len(t, products, 1)
}

func TestServer_Orders(t *testing.T) {
	f := newFixture(t, Options{})

	resp, _ := f.do(t, http.MethodPost, "/api/session", map[string]string{"token": "tenant"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	t.Run("submitted with receipt", func(t *testing.T) {
		resp, body := f.do(t, http.MethodPost, "/api/orders", map[string]any{
			"client_code": "C1",
			"comments":    "urgente",
			"lines": []map[string]any{
				{"product_code": "P1", "tier": "2", "quantity": 4},
				{"product_code": "P2", "quantity": "3 cajas"},
			},
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode, body)
		assert.Equal(t, "11.60", body["total"])
		assert.Equal(t, float64(0), body["failed"])
		assert.Equal(t, "Ana", body["vendor"])

		rec, ok := body["receipt"].(map[string]any)
		require.True(t, ok)
		assert.True(t, strings.HasPrefix(rec["filename"].(string), "pedido_C1_"))

		req, err := http.NewRequest(http.MethodGet, f.srv.URL+rec["url"].(string), nil)
		require.NoError(t, err)
		dl, err := f.client.Do(req)
		require.NoError(t, err)
		defer dl.Body.Close()
		require.Equal(t, http.StatusOK, dl.StatusCode)
		assert.Equal(t, "application/pdf", dl.Header.Get("Content-Type"))
		assert.Contains(t, dl.Header.Get("Content-Disposition"), "attachment")
		pdf, err := io.ReadAll(dl.Body)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF-")))

		require.Len(t, f.gateway.rows, 2)
		assert.Equal(t, "EMP001", f.gateway.rows[0].TenantID)
		assert.Equal(t, "Soyapango", f.gateway.rows[0].Municipio)
	})

	t.Run("partial failure", func(t *testing.T) {
		f.gateway.failOn = "P2"
		defer func() { f.gateway.failOn = "" }()

		resp, body := f.do(t, http.MethodPost, "/api/orders", map[string]any{
			"client_code": "C2",
			"lines": []map[string]any{
				{"product_code": "P1", "quantity": 1},
				{"product_code": "P2", "quantity": 1},
			},
			"receipt": false,
		})
		require.Equal(t, http.StatusMultiStatus, resp.StatusCode)
		assert.Equal(t, float64(1), body["failed"])
		lines := body["lines"].([]any)
		assert.Contains(t, lines[1].(map[string]any)["error"], "sheet locked")
		assert.Nil(t, body["receipt"])
	})

	t.Run("rejected requests", func(t *testing.T) {
		tests := []struct {
			name string
			body any
			want int
		}{
			{"malformed json", `{"client_code":`, http.StatusBadRequest},
			{"unknown field", map[string]any{"client": "C1"}, http.StatusBadRequest},
			{"unknown client", map[string]any{"client_code": "C9", "lines": []map[string]any{{"product_code": "P1", "quantity": 1}}}, http.StatusBadRequest},
			{"unknown product", map[string]any{"client_code": "C1", "lines": []map[string]any{{"product_code": "X", "quantity": 1}}}, http.StatusBadRequest},
			{"zero quantity", map[string]any{"client_code": "C1", "lines": []map[string]any{{"product_code": "P1", "quantity": "abc"}}}, http.StatusBadRequest},
			{"bad tier", map[string]any{"client_code": "C1", "lines": []map[string]any{{"product_code": "P1", "tier": "7", "quantity": 1}}}, http.StatusBadRequest},
			{"duplicate line", map[string]any{"client_code": "C1", "lines": []map[string]any{{"product_code": "P1", "quantity": 1}, {"product_code": "P1", "quantity": 2}}}, http.StatusBadRequest},
			{"no lines", map[string]any{"client_code": "C1"}, http.StatusBadRequest},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				resp, body := f.do(t, http.MethodPost, "/api/orders", tt.body)
				assert.Equal(t, tt.want, resp.StatusCode, body)
				assert.NotEmpty(t, body["error"])
			})
		}
	})

	t.Run("receipt list and missing receipt", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/api/receipts", nil)
		require.NoError(t, err)
		resp, err := f.client.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		var files []map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&files))
		assert.Len(t, files, 1)

		resp2, _ := f.do(t, http.MethodGet, "/api/receipts/00000000-0000-0000-0000-000000000000", nil)
		assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
		resp3, _ := f.do(t, http.MethodGet, "/api/receipts/not-a-uuid", nil)
		assert.Equal(t, http.StatusNotFound, resp3.StatusCode)
	})
}

func TestServer_Middleware(t *testing.T) {
	f := newFixture(t, Options{
		AllowedOrigins:     []string{"http://app.example.com"},
		RateLimitPerSecond: 1,
		RateLimitBurst:     2,
	})

	t.Run("health and headers", func(t *testing.T) {
		resp, body := f.do(t, http.MethodGet, "/healthz", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, float64(2), body["clients"])
		assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	})

	t.Run("cors preflight", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodOptions, f.srv.URL+"/api/session", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", "http://app.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, "http://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
	})

	t.Run("rate limit", func(t *testing.T) {
		var limited bool
		for i := 0; i < 5; i++ {
			resp, _ := f.do(t, http.MethodGet, "/healthz", nil)
			if resp.StatusCode == http.StatusTooManyRequests {
				limited = true
				assert.Equal(t, "1", resp.Header.Get("Retry-After"))
				break
			}
		}
		assert.True(t, limited)
	})
}

func TestServer_Metrics(t *testing.T) {
	f := newFixture(t, Options{})
	f.do(t, http.MethodGet, "/healthz", nil)

	resp, err := f.client.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `pedidos_http_requests_total{code="200",route="GET /healthz"}`)
}

func TestIPLimiter(t *testing.T) {
	l := newIPLimiter(1, 2)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("10.0.0.1"))
	assert.True(t, l.allow("10.0.0.1"))
	assert.False(t, l.allow("10.0.0.1"))
	assert.True(t, l.allow("10.0.0.2"), "buckets are per address")

	now = now.Add(time.Second)
	assert.True(t, l.allow("10.0.0.1"))

	now = now.Add(time.Hour)
	l.allow("10.0.0.3")
	assert.Len(t, l.clients, 1, "idle visitors are pruned")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{session.ErrNoSession, http.StatusUnauthorized},
		{fmt.Errorf("read: %w", session.ErrExpired), http.StatusUnauthorized},
		{session.ErrTenantSuspended, http.StatusForbidden},
		{session.ErrBusy, http.StatusConflict},
		{order.ErrIncompleteOrder, http.StatusBadRequest},
		{storage.ErrNotFound, http.StatusNotFound},
		{gateway.ErrUnavailable, http.StatusServiceUnavailable},
		{&gateway.StatusError{Action: "saveOrder", Status: "error"}, http.StatusBadGateway},
		{fmt.Errorf("fetch: %w", gateway.ErrResponseTooLarge), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
