package receipt

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/resend/resend-go/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdata/pedidos/internal/domain/catalog"
	"github.com/smartdata/pedidos/internal/domain/order"
	"github.com/smartdata/pedidos/internal/domain/tenant"
	"github.com/smartdata/pedidos/pkg/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var issuedAt = time.Date(2024, 3, 1, 14, 30, 5, 0, time.UTC)

func sampleSubmission() order.Submission {
	return order.Submission{
		Reference: "5b1c0b9e-ref",
		TenantID:  "EMP001",
		Client:    catalog.Client{Code: "C001", Name: "Tienda La Esquina"},
		Vendor:    "Vendedor 1",
		Comments:  "  Entregar por la tarde ",
		Locality:  catalog.Locality{Municipio: "San Salvador", Departamento: "San Salvador", Distrito: "Centro"},
		Lines: []order.Line{
			{ProductCode: "P1", ProductName: "Café 500g", Quantity: 3, Tier: catalog.Tier1, UnitPrice: decimal.RequireFromString("9.50")},
			{ProductCode: "P2", ProductName: "Azúcar 1kg", Quantity: 10, Tier: catalog.Tier2, UnitPrice: decimal.RequireFromString("125")},
		},
		Total:       decimal.RequireFromString("1278.50"),
		SubmittedAt: issuedAt,
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: 80, B: 160, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestBuild(t *testing.T) {
	r := Build(sampleSubmission(), Branding{Company: "SMARTDATA"})

	assert.Equal(t, "5b1c0b9e-ref", r.Reference)
	assert.Equal(t, "SMARTDATA", r.Branding.Company)
	assert.Equal(t, "Centro, San Salvador, San Salvador", r.Locality)
	assert.Equal(t, "Entregar por la tarde", r.Comments)
	assert.Equal(t, "$1,278.50", r.Total)
	require.Len(t, r.Items, 2)
	assert.Equal(t, Item{Code: "P1", Name: "Café 500g", Quantity: 3, Tier: "1", UnitPrice: "$9.50", Total: "$28.50"}, r.Items[0])
	assert.Equal(t, "$1,250.00", r.Items[1].Total)
}

func TestFilename(t *testing.T) {
	tests := []struct {
		name string
		code string
		want string
	}{
		{"plain code", "C001", "pedido_C001_20240301-143005.pdf"},
		{"unsafe characters dropped", "C/00 1", "pedido_C001_20240301-143005.pdf"},
		{"no usable code", "//", "pedido_20240301-143005.pdf"},
		{"empty code", "", "pedido_20240301-143005.pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Filename(Receipt{ClientCode: tt.code, IssuedAt: issuedAt}))
		})
	}
}

func TestRenderHTML(t *testing.T) {
	sub := sampleSubmission()
	sub.Client.Name = "<script>alert(1)</script>"
	r := Build(sub, Branding{Company: "SMARTDATA", Logo: "data:image/png;base64,AAAA"})

	var buf bytes.Buffer
	require.NoError(t, RenderHTML(&buf, r))
	out := buf.String()

	assert.Contains(t, out, "SMARTDATA")
	assert.Contains(t, out, "01/03/2024 14:30")
	assert.Contains(t, out, "Café 500g")
	assert.Contains(t, out, "$1,278.50")
	assert.Contains(t, out, `src="data:image/png;base64,AAAA"`)
	assert.Contains(t, out, "Entregar por la tarde")
	assert.NotContains(t, out, "<script>")

	t.Run("non image logo is dropped", func(t *testing.T) {
		r.Branding.Logo = "javascript:alert(1)"
		buf.Reset()
		require.NoError(t, RenderHTML(&buf, r))
		assert.NotContains(t, buf.String(), "javascript:")
	})
}

func TestRenderPDF(t *testing.T) {
	r := Build(sampleSubmission(), Branding{Company: "SMARTDATA", Phone: "2222-3333"})

	t.Run("without logo", func(t *testing.T) {
		pdf, err := RenderPDF(r)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF-")))
	})

	t.Run("with logo", func(t *testing.T) {
		withLogo := r
		withLogo.Branding.Logo = pngDataPrefix + base64.StdEncoding.EncodeToString(pngBytes(t, 40, 20))
		pdf, err := RenderPDF(withLogo)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF-")))
	})

	t.Run("broken logo is skipped", func(t *testing.T) {
		broken := r
		broken.Branding.Logo = "not a data uri"
		pdf, err := RenderPDF(broken)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF-")))
	})
}

type mockFetcher struct {
	body  []byte
	err   error
	calls int
}

func (m *mockFetcher) FetchDocument(ctx context.Context, url string) ([]byte, error) {
	m.calls++
	return m.body, m.err
}

func TestLogoCache_DataURI(t *testing.T) {
	ctx := context.Background()

	t.Run("fetches once then serves the cache", func(t *testing.T) {
		store := storage.NewMemoryStore()
		f := &mockFetcher{body: pngBytes(t, 16, 8)}
		c := NewLogoCache(store, f, 0, discardLogger())

		first, err := c.DataURI(ctx, "EMP001", "https://example.com/logo.png")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(first, pngDataPrefix))

		second, err := c.DataURI(ctx, "EMP001", "https://example.com/logo.png")
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Equal(t, 1, f.calls)

		stored, err := store.Get(ctx, "logo_cache_EMP001")
		require.NoError(t, err)
		assert.Equal(t, first, stored)
	})

	t.Run("wide logos are scaled down", func(t *testing.T) {
		c := NewLogoCache(storage.NewMemoryStore(), &mockFetcher{body: pngBytes(t, 200, 100)}, 50, discardLogger())

		uri, err := c.DataURI(ctx, "EMP002", "https://example.com/logo.png")
		require.NoError(t, err)
		raw, err := decodeDataURI(uri)
		require.NoError(t, err)
		cfg, err := png.DecodeConfig(bytes.NewReader(raw))
		require.NoError(t, err)
		assert.Equal(t, 50, cfg.Width)
		assert.Equal(t, 25, cfg.Height)
	})

	t.Run("no url", func(t *testing.T) {
		f := &mockFetcher{}
		c := NewLogoCache(storage.NewMemoryStore(), f, 0, discardLogger())
		uri, err := c.DataURI(ctx, "EMP003", " ")
		require.NoError(t, err)
		assert.Empty(t, uri)
		assert.Zero(t, f.calls)
	})

	t.Run("not an image", func(t *testing.T) {
		store := storage.NewMemoryStore()
		c := NewLogoCache(store, &mockFetcher{body: []byte("<html>not found</html>")}, 0, discardLogger())
		_, err := c.DataURI(ctx, "EMP004", "https://example.com/logo.png")
		assert.ErrorIs(t, err, ErrUnsupportedImage)
		assert.Zero(t, store.Len())
	})

	t.Run("fetch failure", func(t *testing.T) {
		boom := errors.New("boom")
		c := NewLogoCache(storage.NewMemoryStore(), &mockFetcher{err: boom}, 0, discardLogger())
		_, err := c.DataURI(ctx, "EMP005", "https://example.com/logo.png")
		assert.ErrorIs(t, err, boom)
	})

	t.Run("forget", func(t *testing.T) {
		store := storage.NewMemoryStore()
		f := &mockFetcher{body: pngBytes(t, 4, 4)}
		c := NewLogoCache(store, f, 0, discardLogger())
		_, err := c.DataURI(ctx, "EMP006", "u")
		require.NoError(t, err)
		require.NoError(t, c.Forget(ctx, "EMP006"))
		_, err = c.DataURI(ctx, "EMP006", "u")
		require.NoError(t, err)
		assert.Equal(t, 2, f.calls)
	})
}

func TestDecodeDataURI(t *testing.T) {
	data, err := decodeDataURI("data:image/png;base64,aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	for _, bad := range []string{"hello", "data:image/png,aGVsbG8=", "data:image/png;base64,***"} {
		_, err := decodeDataURI(bad)
		assert.ErrorIs(t, err, ErrBadDataURI, bad)
	}
}

func TestMailer_Send(t *testing.T) {
	ctx := context.Background()
	r := Build(sampleSubmission(), Branding{Company: "SMARTDATA"})

	t.Run("unconfigured client skips", func(t *testing.T) {
		m := NewMailer("", "Pedidos <p@example.com>", discardLogger())
		assert.False(t, m.Enabled())
		id, err := m.Send(ctx, "owner@example.com", r, []byte("%PDF-1.3"))
		require.NoError(t, err)
		assert.Empty(t, id)
	})

	t.Run("sends with attachment", func(t *testing.T) {
		var got map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			assert.Equal(t, "/emails", req.URL.Path)
			assert.NoError(t, json.NewDecoder(req.Body).Decode(&got))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"msg_123"}`))
		}))
		defer srv.Close()

		client := resend.NewClient("re_test")
		base, err := url.Parse(srv.URL + "/")
		require.NoError(t, err)
		client.BaseURL = base

		m := NewMailerWithClient(client, "Pedidos <p@example.com>", discardLogger())
		id, err := m.Send(ctx, "owner@example.com", r, []byte("%PDF-1.3"))
		require.NoError(t, err)
		assert.Equal(t, "msg_123", id)

		assert.Equal(t, []any{"owner@example.com"}, got["to"])
		attachments, ok := got["attachments"].([]any)
		require.True(t, ok)
		require.Len(t, attachments, 1)
		assert.Equal(t, "pedido_C001_20240301-143005.pdf", attachments[0].(map[string]any)["filename"])
	})

	t.Run("no recipient skips", func(t *testing.T) {
		m := NewMailerWithClient(resend.NewClient("re_test"), "p@example.com", discardLogger())
		id, err := m.Send(ctx, "  ", r, nil)
		require.NoError(t, err)
		assert.Empty(t, id)
	})
}

func TestService_Generate(t *testing.T) {
	ctx := context.Background()
	files, err := storage.NewFileStorage(t.TempDir())
	require.NoError(t, err)

	store := storage.NewMemoryStore()
	fetcher := &mockFetcher{body: pngBytes(t, 30, 30)}
	svc := NewService(
		files,
		NewLogoCache(store, fetcher, 0, discardLogger()),
		NewMailer("", "p@example.com", discardLogger()),
		Branding{Company: "SMARTDATA"},
		"https://example.com/default.png",
		discardLogger(),
	)

	t.Run("tenant branding", func(t *testing.T) {
		tn := &tenant.Tenant{ID: "EMP001", Name: "Distribuidora Sol", Email: "sol@example.com", LogoURL: "https://example.com/sol.png"}
		a, err := svc.Generate(ctx, sampleSubmission(), tn)
		require.NoError(t, err)

		assert.Equal(t, "Distribuidora Sol", a.Receipt.Branding.Company)
		assert.NotEmpty(t, a.Receipt.Branding.Logo)
		assert.Equal(t, "pedido_C001_20240301-143005.pdf", a.Filename)
		assert.Empty(t, a.EmailID)
		require.NotNil(t, a.File)

		rc, info, err := files.Open(ctx, "EMP001", a.File.ID)
		require.NoError(t, err)
		defer rc.Close()
		stored, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, a.PDF, stored)
		assert.Equal(t, "application/pdf", info.ContentType)

		_, err = store.Get(ctx, LogoKey("EMP001"))
		assert.NoError(t, err)
	})

	t.Run("no tenant uses fallback branding", func(t *testing.T) {
		a, err := svc.Generate(ctx, sampleSubmission(), nil)
		require.NoError(t, err)
		assert.Equal(t, "SMARTDATA", a.Receipt.Branding.Company)
		_, err = store.Get(ctx, LogoKey(defaultOwner))
		assert.NoError(t, err)
	})

	t.Run("logo failure degrades", func(t *testing.T) {
		broken := NewService(nil, NewLogoCache(storage.NewMemoryStore(), &mockFetcher{err: errors.New("offline")}, 0, discardLogger()), nil, Branding{Company: "X"}, "u", discardLogger())
		a, err := broken.Generate(ctx, sampleSubmission(), nil)
		require.NoError(t, err)
		assert.Empty(t, a.Receipt.Branding.Logo)
		assert.Nil(t, a.File)
		assert.True(t, bytes.HasPrefix(a.PDF, []byte("%PDF-")))
	})
}
