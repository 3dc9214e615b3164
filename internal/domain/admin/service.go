package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/smartdata/pedidos/internal/domain/gateway"
	"github.com/smartdata/pedidos/internal/domain/session"
	"github.com/smartdata/pedidos/internal/domain/tenant"
)

var (
	ErrNotLoggedIn        = errors.New("admin session required")
	ErrCredentials        = errors.New("user and password are required")
	ErrTenantNameRequired = errors.New("tenant name is required")
	ErrTenantNotFound     = errors.New("tenant not found")
	ErrVendorRequired     = errors.New("vendor name is required")
	ErrTokenNotFound      = errors.New("token not found")
)

// Backend is the set of gateway admin actions the service uses.
type Backend interface {
	AdminLogin(ctx context.Context, creds gateway.AdminCredentials) error
	AdminDashboard(ctx context.Context, creds gateway.AdminCredentials) (*tenant.Dashboard, error)
	AdminListTenants(ctx context.Context, creds gateway.AdminCredentials) ([]tenant.Tenant, error)
	AdminCreateTenant(ctx context.Context, creds gateway.AdminCredentials, t tenant.Tenant) (string, error)
	AdminUpdateTenant(ctx context.Context, creds gateway.AdminCredentials, id string, changes any) error
	AdminListTokens(ctx context.Context, creds gateway.AdminCredentials, tenantID string) ([]tenant.Token, error)
	AdminCreateToken(ctx context.Context, creds gateway.AdminCredentials, t tenant.Token) (string, error)
	AdminUpdateToken(ctx context.Context, creds gateway.AdminCredentials, token string, changes any) error
	AdminDeleteToken(ctx context.Context, creds gateway.AdminCredentials, token string) error
}

// Service runs admin operations for the logged-in administrator. Every
// operation refreshes the idle timer.
type Service struct {
	backend  Backend
	sessions *session.AdminStore
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(backend Backend, sessions *session.AdminStore, logger *slog.Logger) *Service {
	return &Service{backend: backend, sessions: sessions, logger: logger, now: time.Now}
}

// Login checks the credentials with the backend and starts a session.
func (s *Service) Login(ctx context.Context, user, pass string) error {
	user = strings.TrimSpace(user)
	if user == "" || pass == "" {
		return ErrCredentials
	}
	creds := gateway.AdminCredentials{User: user, Pass: pass}
	if err := s.backend.AdminLogin(ctx, creds); err != nil {
		s.logger.Warn("admin login rejected", slog.String("user", user), slog.Any("error", err))
		return err
	}
	if _, err := s.sessions.Save(ctx, creds); err != nil {
		return err
	}
	s.logger.Info("admin logged in", slog.String("user", user))
	return nil
}

func (s *Service) Logout(ctx context.Context) error {
	return s.sessions.Clear(ctx)
}

func (s *Service) credentials(ctx context.Context) (gateway.AdminCredentials, error) {
	sess, err := s.sessions.Touch(ctx)
	if err != nil {
		return gateway.AdminCredentials{}, fmt.Errorf("%w: %w", ErrNotLoggedIn, err)
	}
	return sess.Credentials(), nil
}

// Overview is the dashboard with its derived KPIs.
type Overview struct {
	Metrics tenant.Dashboard `json:"metrics"`
	KPIs    KPIs             `json:"kpis"`
}

func (s *Service) Dashboard(ctx context.Context) (*Overview, error) {
	creds, err := s.credentials(ctx)
	if err != nil {
		return nil, err
	}
	d, err := s.backend.AdminDashboard(ctx, creds)
	if err != nil {
		return nil, err
	}
	return &Overview{Metrics: *d, KPIs: ComputeKPIs(*d)}, nil
}

// TenantView is a filtered tenant list with its revenue and the urgency
// buckets of the full list.
type TenantView struct {
	Total   int             `json:"total"`
	Tenants []tenant.Tenant `json:"empresas"`
	Revenue float64         `json:"ingresos"`
	Buckets Buckets         `json:"estados"`
}

// Tenants lists tenants matching query and filter. The tenant list and the
// dashboard are fetched concurrently.
func (s *Service) Tenants(ctx context.Context, query, filter string) (*TenantView, error) {
	creds, err := s.credentials(ctx)
	if err != nil {
		return nil, err
	}

	var (
		all  []tenant.Tenant
		dash *tenant.Dashboard
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		all, err = s.backend.AdminListTenants(gctx, creds)
		return err
	})
	g.Go(func() error {
		var err error
		dash, err = s.backend.AdminDashboard(gctx, creds)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	matches := Filter(all, query, filter)
	return &TenantView{
		Total:   len(all),
		Tenants: matches,
		Revenue: FilteredRevenue(matches, *dash),
		Buckets: GroupByState(all),
	}, nil
}

// normalizeTenant applies the form rules before a tenant is sent.
func (s *Service) normalizeTenant(t *tenant.Tenant) error {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return ErrTenantNameRequired
	}
	if t.Plan == "" {
		t.Plan = tenant.DefaultPlan
	}
	if t.OrdersSheet == "" {
		t.OrdersSheet = tenant.DefaultOrderTab
	}
	if t.PaymentType == "" {
		t.PaymentType = tenant.PaymentMonthly
	}
	if t.CustomerType == "" {
		ApplyCustomerType(t, tenant.CustomerRegular)
	}
	if t.StartDate == "" {
		t.StartDate = s.now().Format(dateLayout)
	}
	t.StartDate = NormalizeDate(t.StartDate)
	if t.DueDate == "" {
		t.DueDate = DueDate(t.StartDate, t.PaymentType)
	}
	t.DueDate = NormalizeDate(t.DueDate)
	t.Phone = FormatPhone(t.Phone)
	return nil
}

// CreateTenant creates t and returns its ID.
func (s *Service) CreateTenant(ctx context.Context, t tenant.Tenant) (string, error) {
	if err := s.normalizeTenant(&t); err != nil {
		return "", err
	}
	creds, err := s.credentials(ctx)
	if err != nil {
		return "", err
	}
	id, err := s.backend.AdminCreateTenant(ctx, creds, t)
	if err != nil {
		return "", err
	}
	s.logger.Info("tenant created", slog.String("tenant", id), slog.String("name", t.Name))
	return id, nil
}

// UpdateTenant replaces the editable fields of tenant id.
func (s *Service) UpdateTenant(ctx context.Context, id string, t tenant.Tenant) error {
	if err := s.normalizeTenant(&t); err != nil {
		return err
	}
	t.ID = ""
	creds, err := s.credentials(ctx)
	if err != nil {
		return err
	}
	return s.backend.AdminUpdateTenant(ctx, creds, id, t)
}

// Tenant returns one tenant by ID.
func (s *Service) Tenant(ctx context.Context, id string) (*tenant.Tenant, error) {
	creds, err := s.credentials(ctx)
	if err != nil {
		return nil, err
	}
	return s.findTenant(ctx, creds, id)
}

func (s *Service) findTenant(ctx context.Context, creds gateway.AdminCredentials, id string) (*tenant.Tenant, error) {
	all, err := s.backend.AdminListTenants(ctx, creds)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			return &all[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTenantNotFound, id)
}

// ToggleTenant flips the active flag of tenant id and returns the new value.
func (s *Service) ToggleTenant(ctx context.Context, id string) (bool, error) {
	creds, err := s.credentials(ctx)
	if err != nil {
		return false, err
	}
	t, err := s.findTenant(ctx, creds, id)
	if err != nil {
		return false, err
	}
	active := !t.Active
	if err := s.backend.AdminUpdateTenant(ctx, creds, id, map[string]bool{"activa": active}); err != nil {
		return t.Active, err
	}
	return active, nil
}

func (s *Service) Tokens(ctx context.Context, tenantID string) ([]tenant.Token, error) {
	creds, err := s.credentials(ctx)
	if err != nil {
		return nil, err
	}
	return s.backend.AdminListTokens(ctx, creds, tenantID)
}

// CreateToken issues an active token for vendor in tenant tenantID.
func (s *Service) CreateToken(ctx context.Context, tenantID, vendor string) (string, error) {
	vendor = strings.TrimSpace(vendor)
	if vendor == "" {
		return "", ErrVendorRequired
	}
	creds, err := s.credentials(ctx)
	if err != nil {
		return "", err
	}
	tok, err := s.backend.AdminCreateToken(ctx, creds, tenant.Token{Vendor: vendor, TenantID: tenantID, Active: true})
	if err != nil {
		return "", err
	}
	s.logger.Info("token created", slog.String("tenant", tenantID), slog.String("vendor", vendor))
	return tok, nil
}

// ToggleToken flips the active flag of token and returns the new value.
func (s *Service) ToggleToken(ctx context.Context, tenantID, token string) (bool, error) {
	creds, err := s.credentials(ctx)
	if err != nil {
		return false, err
	}
	tokens, err := s.backend.AdminListTokens(ctx, creds, tenantID)
	if err != nil {
		return false, err
	}
	for _, t := range tokens {
		if t.Token != token {
			continue
		}
		active := !t.Active
		if err := s.backend.AdminUpdateToken(ctx, creds, token, map[string]bool{"activo": active}); err != nil {
			return t.Active, err
		}
		return active, nil
	}
	return false, ErrTokenNotFound
}

func (s *Service) DeleteToken(ctx context.Context, token string) error {
	creds, err := s.credentials(ctx)
	if err != nil {
		return err
	}
	if err := s.backend.AdminDeleteToken(ctx, creds, token); err != nil {
		return err
	}
	s.logger.Info("token deleted")
	return nil
}
