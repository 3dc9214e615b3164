package order

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/smartdata/pedidos/pkg/money"
)

// LedgerEntry is one line outcome in the local submission ledger.
type LedgerEntry struct {
	Reference   string `csv:"referencia"`
	SubmittedAt string `csv:"fecha"`
	TenantID    string `csv:"empresa_id"`
	Client      string `csv:"cliente"`
	Vendor      string `csv:"vendedor"`
	ProductCode string `csv:"cod_producto"`
	Quantity    int    `csv:"cantidad"`
	Tier        string `csv:"lista"`
	UnitPrice   string `csv:"precio"`
	LineTotal   string `csv:"total_item"`
	Status      string `csv:"estado"`
	Error       string `csv:"error"`
}

const (
	LedgerSent   = "enviado"
	LedgerFailed = "fallido"
)

// EntriesFor flattens a result into ledger entries, one per line.
func EntriesFor(res *Result) []LedgerEntry {
	sub := res.Submission
	out := make([]LedgerEntry, 0, len(res.Lines))
	for _, lr := range res.Lines {
		e := LedgerEntry{
			Reference:   sub.Reference,
			SubmittedAt: sub.SubmittedAt.UTC().Format(time.RFC3339),
			TenantID:    sub.TenantID,
			Client:      sub.Client.Label,
			Vendor:      sub.Vendor,
			ProductCode: lr.Line.ProductCode,
			Quantity:    lr.Line.Quantity,
			Tier:        string(lr.Line.Tier),
			UnitPrice:   money.Fixed(lr.Line.UnitPrice),
			LineTotal:   money.Fixed(lr.Line.Total()),
			Status:      LedgerSent,
		}
		if lr.Err != nil {
			e.Status = LedgerFailed
			e.Error = lr.Err.Error()
		}
		out = append(out, e)
	}
	return out
}

// Ledger is an append-only CSV file of submitted lines, kept so failed lines
// can be found and resent by hand.
type Ledger struct {
	mu   sync.Mutex
	path string
}

func NewLedger(path string) *Ledger {
	return &Ledger{path: path}
}

func (l *Ledger) Append(entries []LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat ledger: %w", err)
	}

	if info.Size() == 0 {
		err = gocsv.Marshal(&entries, f)
	} else {
		err = gocsv.MarshalWithoutHeaders(&entries, f)
	}
	if err != nil {
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	return nil
}

// ReadAll returns every entry. A missing ledger is empty.
func (l *Ledger) ReadAll() ([]LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	defer f.Close()

	var entries []LedgerEntry
	if err := gocsv.UnmarshalFile(f, &entries); err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	return entries, nil
}

// Failed returns the entries whose line was not accepted.
func (l *Ledger) Failed() ([]LedgerEntry, error) {
	all, err := l.ReadAll()
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, e := range all {
		if e.Status == LedgerFailed {
			out = append(out, e)
		}
	}
	return out, nil
}
