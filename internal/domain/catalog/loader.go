package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/smartdata/pedidos/internal/domain/catalog/parser"
	"github.com/smartdata/pedidos/internal/domain/catalog/sniffer"
)

// Fetcher downloads a list document.
type Fetcher interface {
	FetchDocument(ctx context.Context, url string) ([]byte, error)
}

// ListReport describes how one list was loaded.
type ListReport struct {
	URL     string        `json:"url"`
	Format  parser.Format `json:"format"`
	Sheet   string        `json:"sheet,omitempty"`
	Records int           `json:"records"`
	Err     error         `json:"-"`
}

// LoadReport is returned alongside every catalog.
type LoadReport struct {
	Clients  ListReport `json:"clients"`
	Products ListReport `json:"products"`
}

// Degraded reports whether either list fell back to empty because of an error.
func (r LoadReport) Degraded() bool {
	return r.Clients.Err != nil || r.Products.Err != nil
}

// Loader fetches the client and product lists concurrently.
type Loader struct {
	fetcher     Fetcher
	clientsURL  string
	productsURL string
	clientDet   *sniffer.Detector
	productDet  *sniffer.Detector
	logger      *slog.Logger
	now         func() time.Time
}

func NewLoader(fetcher Fetcher, clientsURL, productsURL string, logger *slog.Logger) *Loader {
	return &Loader{
		fetcher:     fetcher,
		clientsURL:  clientsURL,
		productsURL: productsURL,
		clientDet:   sniffer.NewDetector(ClientHeaders()...),
		productDet:  sniffer.NewDetector(ProductHeaders()...),
		logger:      logger,
		now:         time.Now,
	}
}

// Load issues both fetches at once and returns when both have settled. A
// failed or unparseable list becomes an empty list; Load itself never fails.
func (l *Loader) Load(ctx context.Context) (*Catalog, LoadReport) {
	var (
		g                 errgroup.Group
		clients, products []parser.Record
		report            LoadReport
	)

	g.Go(func() error {
		clients, report.Clients = l.loadList(ctx, l.clientsURL, l.clientDet)
		return nil
	})
	g.Go(func() error {
		products, report.Products = l.loadList(ctx, l.productsURL, l.productDet)
		return nil
	})
	_ = g.Wait()

	return New(clients, products, l.now()), report
}

func (l *Loader) loadList(ctx context.Context, url string, det *sniffer.Detector) ([]parser.Record, ListReport) {
	rep := ListReport{URL: url}
	if url == "" {
		rep.Err = errors.New("list url not configured")
		l.logger.Warn("catalog list skipped", slog.Any("error", rep.Err))
		return []parser.Record{}, rep
	}

	data, err := l.fetcher.FetchDocument(ctx, url)
	if err != nil {
		rep.Err = err
		l.logger.Error("failed to fetch catalog list", slog.String("url", url), slog.Any("error", err))
		return []parser.Record{}, rep
	}

	records, rep, err := decodeList(data, det, rep)
	if err != nil {
		rep.Err = err
		l.logger.Error("failed to decode catalog list",
			slog.String("url", url),
			slog.String("format", string(rep.Format)),
			slog.Any("error", err),
		)
		return []parser.Record{}, rep
	}

	rep.Records = len(records)
	l.logger.Info("catalog list loaded",
		slog.String("url", url),
		slog.String("format", string(rep.Format)),
		slog.Int("records", rep.Records),
	)
	return records, rep
}

func decodeList(data []byte, det *sniffer.Detector, rep ListReport) ([]parser.Record, ListReport, error) {
	rep.Format = parser.DetectFormat(data)
	if rep.Format == parser.FormatCSV {
		return parser.ParseCSV(string(data)), rep, nil
	}

	sheets, err := parser.ReadWorkbook(data)
	if err != nil {
		return nil, rep, err
	}
	pick, ok := det.PickSheet(sheets)
	if !ok {
		return nil, rep, parser.ErrNoWorksheet
	}
	rep.Sheet = pick.Sheet.Name
	return parser.RecordsFromRows(pick.Sheet.Rows), rep, nil
}

// Cache holds the most recent catalog for concurrent readers and refreshes it
// on demand (HTTP server start, cron).
type Cache struct {
	loader *Loader
	logger *slog.Logger

	mu      sync.RWMutex
	current *Catalog
	report  LoadReport
}

func NewCache(loader *Loader, logger *slog.Logger) *Cache {
	return &Cache{
		loader:  loader,
		logger:  logger,
		current: New(nil, nil, time.Time{}),
	}
}

// Refresh reloads both lists. A degraded load does not replace a previous
// catalog that had data for the failed list.
func (c *Cache) Refresh(ctx context.Context) (LoadReport, error) {
	next, report := c.loader.Load(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if report.Clients.Err != nil && len(c.current.Clients) > 0 {
		next = mergeClients(next, c.current)
	}
	if report.Products.Err != nil && len(c.current.Products) > 0 {
		next = mergeProducts(next, c.current)
	}
	c.current = next
	c.report = report

	if report.Degraded() {
		return report, fmt.Errorf("catalog refresh degraded: clients=%v products=%v", report.Clients.Err, report.Products.Err)
	}
	return report, nil
}

// Current returns the catalog in use.
func (c *Cache) Current() *Catalog {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

func (c *Cache) Report() LoadReport {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.report
}

func mergeClients(next, prev *Catalog) *Catalog {
	out := *next
	out.Clients = prev.Clients
	out.clientLabels = prev.clientLabels
	return &out
}

func mergeProducts(next, prev *Catalog) *Catalog {
	out := *next
	out.Products = prev.Products
	out.productLabels = prev.productLabels
	return &out
}
