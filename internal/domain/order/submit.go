package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/smartdata/pedidos/internal/domain/catalog"
	"github.com/smartdata/pedidos/internal/domain/gateway"
	"github.com/smartdata/pedidos/pkg/money"
)

var (
	ErrIncompleteOrder  = errors.New("order needs a client, at least one product and a vendor")
	ErrSubmissionFailed = errors.New("order submission failed")
)

// Mode selects how an order is sent.
type Mode string

const (
	// ModePerLine sends one saveOrderRow request per line, sequentially.
	ModePerLine Mode = "lines"
	// ModeConsolidated sends the whole order in one saveOrder request.
	ModeConsolidated Mode = "consolidated"
)

// Gateway is the part of the gateway client the submitter needs.
type Gateway interface {
	SaveOrderRow(ctx context.Context, row gateway.OrderRow) error
	SaveOrder(ctx context.Context, payload gateway.OrderPayload) error
}

// Submission is the snapshot of an order at send time.
type Submission struct {
	Reference   string           `json:"reference"`
	TenantID    string           `json:"tenantId,omitempty"`
	Client      catalog.Client   `json:"client"`
	Vendor      string           `json:"vendor"`
	Comments    string           `json:"comments"`
	Locality    catalog.Locality `json:"locality"`
	Lines       []Line           `json:"lines"`
	Total       decimal.Decimal  `json:"total"`
	SubmittedAt time.Time        `json:"submittedAt"`
}

// LineResult is the outcome of one line.
type LineResult struct {
	Line Line
	Err  error
}

// Result reports how a submission went. Failed lines are not rolled back.
type Result struct {
	Submission Submission
	Lines      []LineResult
	Failed     int
}

func (r *Result) OK() bool {
	return r.Failed == 0
}

type Submitter struct {
	gateway Gateway
	mode    Mode
	ledger  *Ledger
	logger  *slog.Logger
	now     func() time.Time
}

// NewSubmitter creates a submitter. ledger may be nil.
func NewSubmitter(gw Gateway, mode Mode, ledger *Ledger, logger *slog.Logger) *Submitter {
	if mode != ModeConsolidated {
		mode = ModePerLine
	}
	return &Submitter{gateway: gw, mode: mode, ledger: ledger, logger: logger, now: time.Now}
}

// Submit sends the form's order on behalf of vendor. tenantID is attached when
// non-empty. On full success the form is reset. When some lines fail the
// result is returned together with an error wrapping ErrSubmissionFailed.
func (s *Submitter) Submit(ctx context.Context, form *Form, vendor, tenantID string) (*Result, error) {
	if form.Client() == nil || form.Order().Len() == 0 || vendor == "" {
		return nil, ErrIncompleteOrder
	}

	sub := Submission{
		Reference:   uuid.NewString(),
		TenantID:    tenantID,
		Client:      *form.Client(),
		Vendor:      vendor,
		Comments:    form.Comments(),
		Locality:    form.Locality(),
		Lines:       form.Order().Lines(),
		Total:       form.Order().Total(),
		SubmittedAt: s.now(),
	}

	var res *Result
	switch s.mode {
	case ModeConsolidated:
		res = s.sendConsolidated(ctx, sub)
	default:
		res = s.sendLines(ctx, sub)
	}

	s.record(res)

	if !res.OK() {
		s.logger.Warn("order submitted with failures",
			slog.String("reference", sub.Reference),
			slog.Int("failed", res.Failed),
			slog.Int("lines", len(sub.Lines)),
		)
		return res, fmt.Errorf("%w: %d of %d line(s) failed", ErrSubmissionFailed, res.Failed, len(sub.Lines))
	}

	s.logger.Info("order submitted",
		slog.String("reference", sub.Reference),
		slog.Int("lines", len(sub.Lines)),
		slog.String("total", money.Fixed(sub.Total)),
	)
	form.Reset()
	return res, nil
}

func (s *Submitter) sendLines(ctx context.Context, sub Submission) *Result {
	res := &Result{Submission: sub, Lines: make([]LineResult, 0, len(sub.Lines))}
	total := money.Fixed(sub.Total)

	for _, l := range sub.Lines {
		err := s.gateway.SaveOrderRow(ctx, gateway.OrderRow{
			TenantID:     sub.TenantID,
			Client:       sub.Client.Label,
			ProductCode:  l.ProductCode,
			ProductName:  l.ProductName,
			Quantity:     l.Quantity,
			Tier:         string(l.Tier),
			UnitPrice:    money.Fixed(l.UnitPrice),
			LineTotal:    money.Fixed(l.Total()),
			OrderTotal:   total,
			Vendor:       sub.Vendor,
			Comment:      sub.Comments,
			Municipio:    sub.Locality.Municipio,
			Departamento: sub.Locality.Departamento,
			Distrito:     sub.Locality.Distrito,
		})
		if err != nil {
			res.Failed++
			s.logger.Error("order line failed",
				slog.String("reference", sub.Reference),
				slog.String("product", l.ProductCode),
				slog.Any("error", err),
			)
		}
		res.Lines = append(res.Lines, LineResult{Line: l, Err: err})
	}
	return res
}

func (s *Submitter) sendConsolidated(ctx context.Context, sub Submission) *Result {
	items := make([]gateway.PayloadItem, 0, len(sub.Lines))
	for _, l := range sub.Lines {
		items = append(items, gateway.PayloadItem{
			Code:      l.ProductCode,
			Name:      l.ProductName,
			Quantity:  l.Quantity,
			UnitPrice: money.Fixed(l.UnitPrice),
			Tier:      string(l.Tier),
			Total:     money.Fixed(l.Total()),
		})
	}

	err := s.gateway.SaveOrder(ctx, gateway.OrderPayload{
		Reference:    sub.Reference,
		TenantID:     sub.TenantID,
		Client:       sub.Client.Label,
		Vendor:       sub.Vendor,
		Comment:      sub.Comments,
		Municipio:    sub.Locality.Municipio,
		Departamento: sub.Locality.Departamento,
		Distrito:     sub.Locality.Distrito,
		Items:        items,
		Total:        money.Fixed(sub.Total),
	})
	if err != nil {
		s.logger.Error("order failed",
			slog.String("reference", sub.Reference),
			slog.Any("error", err),
		)
	}

	res := &Result{Submission: sub, Lines: make([]LineResult, 0, len(sub.Lines))}
	for _, l := range sub.Lines {
		res.Lines = append(res.Lines, LineResult{Line: l, Err: err})
	}
	if err != nil {
		res.Failed = len(sub.Lines)
	}
	return res
}

func (s *Submitter) record(res *Result) {
	if s.ledger == nil {
		return
	}
	if err := s.ledger.Append(EntriesFor(res)); err != nil {
		s.logger.Error("failed to append to order ledger",
			slog.String("reference", res.Submission.Reference),
			slog.Any("error", err),
		)
	}
}
