package receipt

import (
	"bytes"
	"context"
	"log/slog"

	"github.com/smartdata/pedidos/internal/domain/order"
	"github.com/smartdata/pedidos/internal/domain/tenant"
	"github.com/smartdata/pedidos/pkg/storage"
)

const (
	contentTypePDF = "application/pdf"
	defaultOwner   = "default"
)

// Artifact is a generated receipt and where it was stored.
type Artifact struct {
	Receipt  Receipt
	Filename string
	PDF      []byte
	File     *storage.FileInfo
	EmailID  string
}

// Owner is the storage owner of receipts for t.
func Owner(t *tenant.Tenant) string {
	if t == nil || t.ID == "" {
		return defaultOwner
	}
	return t.ID
}

// Service renders, stores and mails receipts for submitted orders.
type Service struct {
	files    *storage.FileStorage
	logos    *LogoCache
	mailer   *Mailer
	fallback Branding
	logoURL  string
	logger   *slog.Logger
}

// NewService builds a receipt service. fallback and logoURL brand receipts
// of sessions without a tenant record. logos and mailer may be nil.
func NewService(files *storage.FileStorage, logos *LogoCache, mailer *Mailer, fallback Branding, logoURL string, logger *slog.Logger) *Service {
	return &Service{
		files:    files,
		logos:    logos,
		mailer:   mailer,
		fallback: fallback,
		logoURL:  logoURL,
		logger:   logger,
	}
}

// Branding resolves the header for t. A logo that cannot be loaded is
// omitted.
func (s *Service) Branding(ctx context.Context, t *tenant.Tenant) Branding {
	b := s.fallback
	owner, logoURL := Owner(t), s.logoURL
	if t != nil {
		if t.Name != "" {
			b.Company = t.Name
		}
		b.Address, b.Phone, b.Email = t.Address, t.Phone, t.Email
		if t.LogoURL != "" {
			logoURL = t.LogoURL
		}
	}

	if s.logos != nil {
		uri, err := s.logos.DataURI(ctx, owner, logoURL)
		if err != nil {
			s.logger.Warn("logo unavailable", slog.String("tenant", owner), slog.Any("error", err))
		}
		b.Logo = uri
	}
	return b
}

// Generate renders sub as a PDF, stores it under the tenant and mails it to
// the tenant address. Mail failures are logged and do not fail the call.
func (s *Service) Generate(ctx context.Context, sub order.Submission, t *tenant.Tenant) (*Artifact, error) {
	r := Build(sub, s.Branding(ctx, t))
	pdf, err := RenderPDF(r)
	if err != nil {
		return nil, err
	}

	a := &Artifact{Receipt: r, Filename: Filename(r), PDF: pdf}

	if s.files != nil {
		info, err := s.files.Save(ctx, Owner(t), a.Filename, contentTypePDF, bytes.NewReader(pdf))
		if err != nil {
			return nil, err
		}
		a.File = info
	}

	if s.mailer != nil && t != nil {
		id, err := s.mailer.Send(ctx, t.Email, r, pdf)
		if err != nil {
			s.logger.Error("failed to mail receipt",
				slog.String("reference", r.Reference),
				slog.Any("error", err),
			)
		}
		a.EmailID = id
	}

	s.logger.Info("receipt generated",
		slog.String("reference", r.Reference),
		slog.String("file", a.Filename),
		slog.Int("bytes", len(pdf)),
	)
	return a, nil
}
