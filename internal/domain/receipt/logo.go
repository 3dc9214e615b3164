package receipt

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"net/http"
	"strings"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/webp"

	"github.com/smartdata/pedidos/pkg/storage"
)

const (
	logoKeyPrefix = "logo_cache_"
	pngDataPrefix = "data:image/png;base64,"

	// DefaultLogoWidth is the widest logo kept in the cache, in pixels.
	DefaultLogoWidth = 320
)

var (
	ErrUnsupportedImage = errors.New("logo must be png, jpeg, gif or webp")
	ErrBadDataURI       = errors.New("malformed data URI")
)

// Fetcher downloads the raw logo bytes.
type Fetcher interface {
	FetchDocument(ctx context.Context, url string) ([]byte, error)
}

// LogoCache keeps each tenant's logo as a PNG data URI so receipts can embed
// it without fetching it again.
type LogoCache struct {
	store    storage.Store
	fetcher  Fetcher
	maxWidth int
	logger   *slog.Logger
}

func NewLogoCache(store storage.Store, fetcher Fetcher, maxWidth int, logger *slog.Logger) *LogoCache {
	if maxWidth <= 0 {
		maxWidth = DefaultLogoWidth
	}
	return &LogoCache{store: store, fetcher: fetcher, maxWidth: maxWidth, logger: logger}
}

// LogoKey is the storage key of a tenant's cached logo.
func LogoKey(tenantID string) string {
	return logoKeyPrefix + tenantID
}

// DataURI returns the cached logo of tenantID, fetching and normalizing it
// from url on a miss. An empty url yields "" with no error.
func (c *LogoCache) DataURI(ctx context.Context, tenantID, url string) (string, error) {
	key := LogoKey(tenantID)
	cached, err := c.store.Get(ctx, key)
	if err == nil && cached != "" {
		return cached, nil
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return "", err
	}

	url = strings.TrimSpace(url)
	if url == "" {
		return "", nil
	}

	raw, err := c.fetcher.FetchDocument(ctx, url)
	if err != nil {
		return "", fmt.Errorf("failed to fetch logo: %w", err)
	}
	encoded, err := normalizeLogo(raw, c.maxWidth)
	if err != nil {
		return "", err
	}

	uri := pngDataPrefix + base64.StdEncoding.EncodeToString(encoded)
	if err := c.store.Set(ctx, key, uri); err != nil {
		return "", fmt.Errorf("failed to cache logo: %w", err)
	}
	c.logger.Debug("logo cached", slog.String("tenant", tenantID), slog.Int("bytes", len(encoded)))
	return uri, nil
}

// Forget drops the cached logo of tenantID.
func (c *LogoCache) Forget(ctx context.Context, tenantID string) error {
	return c.store.Delete(ctx, LogoKey(tenantID))
}

// normalizeLogo decodes raw, shrinks it to maxWidth keeping the aspect
// ratio and re-encodes it as PNG.
func normalizeLogo(raw []byte, maxWidth int) ([]byte, error) {
	switch http.DetectContentType(raw) {
	case "image/png", "image/jpeg", "image/gif", "image/webp":
	default:
		return nil, ErrUnsupportedImage
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		decoded, webpErr := webp.Decode(bytes.NewReader(raw))
		if webpErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
		}
		img = decoded
	}

	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, ErrUnsupportedImage
	}
	if b.Dx() > maxWidth {
		h := b.Dy() * maxWidth / b.Dx()
		if h < 1 {
			h = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)
		img = dst
	}

	var out bytes.Buffer
	if err := png.Encode(&out, img); err != nil {
		return nil, fmt.Errorf("failed to encode logo: %w", err)
	}
	return out.Bytes(), nil
}

// decodeDataURI returns the payload of a base64 data URI.
func decodeDataURI(uri string) ([]byte, error) {
	if uri == "" {
		return nil, nil
	}
	meta, payload, ok := strings.Cut(uri, ",")
	if !ok || !strings.HasPrefix(meta, "data:") || !strings.HasSuffix(meta, ";base64") {
		return nil, ErrBadDataURI
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadDataURI, err)
	}
	return data, nil
}
