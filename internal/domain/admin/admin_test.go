package admin

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdata/pedidos/internal/domain/gateway"
	"github.com/smartdata/pedidos/internal/domain/session"
	"github.com/smartdata/pedidos/internal/domain/tenant"
	"github.com/smartdata/pedidos/pkg/storage"
)

func TestDefaultPricing(t *testing.T) {
	assert.Equal(t, Pricing{BasePrice: 39, ExtraVendorPrice: 7, IncludedVendors: 4}, DefaultPricing(tenant.CustomerRegular))
	assert.Equal(t, Pricing{BasePrice: 29, ExtraVendorPrice: 5, IncludedVendors: 4}, DefaultPricing(tenant.CustomerFounder))
	assert.Equal(t, DefaultPricing(tenant.CustomerRegular), DefaultPricing("VIP"))
}

func TestNewTenantDraft(t *testing.T) {
	d := NewTenantDraft(time.Date(2025, 1, 15, 18, 30, 0, 0, time.UTC))

	assert.Equal(t, tenant.DefaultPlan, d.Plan)
	assert.Equal(t, tenant.DefaultOrderTab, d.OrdersSheet)
	assert.True(t, d.Active)
	assert.Equal(t, tenant.PaymentMonthly, d.PaymentType)
	assert.Equal(t, tenant.CustomerRegular, d.CustomerType)
	assert.Equal(t, 39.0, d.BasePrice)
	assert.Equal(t, "2025-01-15", d.StartDate)
	assert.Equal(t, "2025-02-15", d.DueDate)

	ApplyCustomerType(&d, tenant.CustomerFounder)
	assert.Equal(t, 29.0, d.BasePrice)
	assert.Equal(t, 5.0, d.ExtraVendorPrice)
}

func TestDueDate(t *testing.T) {
	tests := []struct {
		start, payment, want string
	}{
		{"2025-01-15", tenant.PaymentMonthly, "2025-02-15"},
		{"2025-01-15", tenant.PaymentYearly, "2026-01-15"},
		{"2025-12-10", tenant.PaymentMonthly, "2026-01-10"},
		{"2025-01-31", tenant.PaymentMonthly, "2025-03-03"},
		{"2024-02-29", tenant.PaymentYearly, "2025-03-01"},
		{"2025-01-15T00:00:00.000Z", tenant.PaymentMonthly, "2025-02-15"},
		{"", tenant.PaymentMonthly, ""},
		{"mañana", tenant.PaymentYearly, ""},
	}
	for _, tt := range tests {
		t.Run(tt.start+" "+tt.payment, func(t *testing.T) {
			assert.Equal(t, tt.want, DueDate(tt.start, tt.payment))
		})
	}
}

func TestFormatPhone(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"7777", "7777"},
		{"77778", "7777-8"},
		{"7777-8888", "7777-8888"},
		{"(503) 7777 88889999", "5037-7778"},
		{"tel: 2222 3333", "2222-3333"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatPhone(tt.in))
		})
	}
}

func TestPaymentStateLabel(t *testing.T) {
	assert.Equal(t, "Al Día", PaymentStateLabel(tenant.StateCurrent))
	assert.Equal(t, "En Gracia", PaymentStateLabel(tenant.StateGrace))
	assert.Equal(t, "Vencido", PaymentStateLabel(tenant.StateOverdue))
	assert.Equal(t, "SUSPENDIDO", PaymentStateLabel("SUSPENDIDO"))
}

func sampleTenants() []tenant.Tenant {
	return []tenant.Tenant{
		{ID: "EMP001", Name: "Distribuidora Sol", Active: true, PaymentState: tenant.StateCurrent, CustomerType: tenant.CustomerRegular, DaysRemaining: 20},
		{ID: "EMP002", Name: "Abarrotes Luna", Active: true, PaymentState: tenant.StateCurrent, CustomerType: tenant.CustomerFounder, DaysRemaining: 15},
		{ID: "EMP003", Name: "Ferretería Norte", Active: true, PaymentState: tenant.StateGrace, CustomerType: tenant.CustomerRegular, DaysRemaining: -2},
		{ID: "EMP004", Name: "Farmacia Sur", Active: false, PaymentState: tenant.StateOverdue, CustomerType: tenant.CustomerFounder, DaysRemaining: 3},
		{ID: "SOL-9", Name: "Panadería", Active: true, PaymentState: tenant.StateCurrent, CustomerType: tenant.CustomerRegular, DaysRemaining: 0},
	}
}

func ids(ts []tenant.Tenant) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.ID)
	}
	return out
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		filter string
		want   []string
	}{
		{"all", "", FilterAll, []string{"EMP001", "EMP002", "EMP003", "EMP004", "SOL-9"}},
		{"empty filter means all", "", "", []string{"EMP001", "EMP002", "EMP003", "EMP004", "SOL-9"}},
		{"active", "", FilterActive, []string{"EMP001", "EMP002", "EMP003", "SOL-9"}},
		{"overdue", "", FilterOverdue, []string{"EMP004"}},
		{"grace", "", FilterGrace, []string{"EMP003"}},
		{"founders", "", FilterFounders, []string{"EMP002", "EMP004"}},
		{"search by name is case insensitive", "SOL", FilterAll, []string{"EMP001", "SOL-9"}},
		{"search by id", "emp00", FilterFounders, []string{"EMP002", "EMP004"}},
		{"unknown filter", "", "raras", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(Filter(sampleTenants(), tt.query, tt.filter)))
		})
	}
}

func TestGroupByState(t *testing.T) {
	b := GroupByState(sampleTenants())
	assert.Equal(t, []string{"EMP002", "SOL-9"}, ids(b.DueSoon), "inactive tenants are never due soon")
	assert.Equal(t, []string{"EMP003"}, ids(b.InGrace))
	assert.Equal(t, []string{"EMP004"}, ids(b.Overdue))
}

func TestComputeKPIs(t *testing.T) {
	k := ComputeKPIs(tenant.Dashboard{
		TotalTenants:       10,
		ActiveTenants:      8,
		TotalActiveVendors: 36,
		MonthlyIncome:      400,
		Overdue:            1,
	})
	assert.Equal(t, 400.0, k.MRR)
	assert.Equal(t, 4800.0, k.ARR)
	assert.Equal(t, 50.0, k.ARPU)
	assert.Equal(t, 4.5, k.AvgVendors)
	assert.Equal(t, 80.0, k.ActivationRate)
	assert.Equal(t, 10.0, k.Churn)

	assert.Equal(t, KPIs{}, ComputeKPIs(tenant.Dashboard{}), "no division by zero")
}

func TestFilteredRevenue(t *testing.T) {
	dash := tenant.Dashboard{TenantsWithVendors: []tenant.Revenue{
		{TenantID: "EMP001", EstimatedIncome: 39},
		{TenantID: "EMP002", EstimatedIncome: 36},
		{TenantID: "EMP004", EstimatedIncome: 29},
	}}
	assert.Equal(t, 75.0, FilteredRevenue(sampleTenants()[:3], dash))
	assert.Equal(t, 0.0, FilteredRevenue(nil, dash))
}

// mockBackend is an in-memory admin backend.
type mockBackend struct {
	mu       sync.Mutex
	user     string
	pass     string
	tenants  []tenant.Tenant
	tokens   []tenant.Token
	dash     tenant.Dashboard
	updates  []any
	created  []tenant.Tenant
	deleted  []string
	lastUser string
}

func (m *mockBackend) check(creds gateway.AdminCredentials) error {
	m.lastUser = creds.User
	if creds.User != m.user || creds.Pass != m.pass {
		return &gateway.StatusError{Action: "adminLogin", Status: "error", Message: "Credenciales inválidas"}
	}
	return nil
}

func (m *mockBackend) AdminLogin(ctx context.Context, creds gateway.AdminCredentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.check(creds)
}

func (m *mockBackend) AdminDashboard(ctx context.Context, creds gateway.AdminCredentials) (*tenant.Dashboard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(creds); err != nil {
		return nil, err
	}
	d := m.dash
	return &d, nil
}

func (m *mockBackend) AdminListTenants(ctx context.Context, creds gateway.AdminCredentials) ([]tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(creds); err != nil {
		return nil, err
	}
	return append([]tenant.Tenant(nil), m.tenants...), nil
}

func (m *mockBackend) AdminCreateTenant(ctx context.Context, creds gateway.AdminCredentials, t tenant.Tenant) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, t)
	return "EMP100", nil
}

func (m *mockBackend) AdminUpdateTenant(ctx context.Context, creds gateway.AdminCredentials, id string, changes any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, changes)
	return nil
}

func (m *mockBackend) AdminListTokens(ctx context.Context, creds gateway.AdminCredentials, tenantID string) ([]tenant.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []tenant.Token
	for _, t := range m.tokens {
		if t.TenantID == tenantID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockBackend) AdminCreateToken(ctx context.Context, creds gateway.AdminCredentials, t tenant.Token) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.Token = "tok-new"
	m.tokens = append(m.tokens, t)
	return t.Token, nil
}

func (m *mockBackend) AdminUpdateToken(ctx context.Context, creds gateway.AdminCredentials, token string, changes any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, changes)
	return nil
}

func (m *mockBackend) AdminDeleteToken(ctx context.Context, creds gateway.AdminCredentials, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, token)
	return nil
}

func newTestService(t *testing.T) (*Service, *mockBackend) {
	t.Helper()
	backend := &mockBackend{
		user:    "root",
		pass:    "s3cret",
		tenants: sampleTenants(),
		tokens: []tenant.Token{
			{Token: "abc", Vendor: "Ana", TenantID: "EMP001", Active: true},
			{Token: "def", Vendor: "Luis", TenantID: "EMP002", Active: false},
		},
		dash: tenant.Dashboard{
			TotalTenants: 5, ActiveTenants: 4, MonthlyIncome: 160,
			TenantsWithVendors: []tenant.Revenue{{TenantID: "EMP002", EstimatedIncome: 29}},
		},
	}
	store := session.NewAdminStore(storage.NewMemoryStore(), "key", time.Minute)
	svc := NewService(backend, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC) }
	return svc, backend
}

func TestService_Login(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.Dashboard(ctx)
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	assert.ErrorIs(t, svc.Login(ctx, " ", "x"), ErrCredentials)

	err = svc.Login(ctx, "root", "wrong")
	var statusErr *gateway.StatusError
	require.ErrorAs(t, err, &statusErr)
	_, err = svc.Dashboard(ctx)
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	require.NoError(t, svc.Login(ctx, "root", "s3cret"))
	ov, err := svc.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 160.0, ov.KPIs.MRR)
	assert.Equal(t, 40.0, ov.KPIs.ARPU)

	require.NoError(t, svc.Logout(ctx))
	_, err = svc.Dashboard(ctx)
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestService_Tenants(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	require.NoError(t, svc.Login(ctx, "root", "s3cret"))

	view, err := svc.Tenants(ctx, "", FilterFounders)
	require.NoError(t, err)
	assert.Equal(t, 5, view.Total)
	assert.Equal(t, []string{"EMP002", "EMP004"}, ids(view.Tenants))
	assert.Equal(t, 29.0, view.Revenue)
	assert.Equal(t, []string{"EMP004"}, ids(view.Buckets.Overdue))
}

func TestService_TenantCRUD(t *testing.T) {
	ctx := context.Background()
	svc, backend := newTestService(t)
	require.NoError(t, svc.Login(ctx, "root", "s3cret"))

	_, err := svc.CreateTenant(ctx, tenant.Tenant{Name: "  "})
	assert.ErrorIs(t, err, ErrTenantNameRequired)

	id, err := svc.CreateTenant(ctx, tenant.Tenant{Name: "Nueva", Phone: "77771234 ext 9", PaymentType: tenant.PaymentYearly})
	require.NoError(t, err)
	assert.Equal(t, "EMP100", id)

	require.Len(t, backend.created, 1)
	created := backend.created[0]
	assert.Equal(t, "7777-1234", created.Phone)
	assert.Equal(t, "2025-05-01", created.StartDate)
	assert.Equal(t, "2026-05-01", created.DueDate)
	assert.Equal(t, tenant.DefaultPlan, created.Plan)
	assert.Equal(t, 39.0, created.BasePrice)

	active, err := svc.ToggleTenant(ctx, "EMP004")
	require.NoError(t, err)
	assert.True(t, active)
	assert.Equal(t, map[string]bool{"activa": true}, backend.updates[len(backend.updates)-1])

	_, err = svc.ToggleTenant(ctx, "EMP404")
	assert.ErrorIs(t, err, ErrTenantNotFound)

	require.NoError(t, svc.UpdateTenant(ctx, "EMP001", tenant.Tenant{ID: "EMP001", Name: "Sol", StartDate: "2025-01-15T06:00:00Z"}))
	updated, ok := backend.updates[len(backend.updates)-1].(tenant.Tenant)
	require.True(t, ok)
	assert.Empty(t, updated.ID)
	assert.Equal(t, "2025-01-15", updated.StartDate)
	assert.Equal(t, "2025-02-15", updated.DueDate)
}

func TestService_Tokens(t *testing.T) {
	ctx := context.Background()
	svc, backend := newTestService(t)
	require.NoError(t, svc.Login(ctx, "root", "s3cret"))

	_, err := svc.CreateToken(ctx, "EMP001", "")
	assert.ErrorIs(t, err, ErrVendorRequired)

	tok, err := svc.CreateToken(ctx, "EMP001", "Marta")
	require.NoError(t, err)
	assert.Equal(t, "tok-new", tok)

	tokens, err := svc.Tokens(ctx, "EMP001")
	require.NoError(t, err)
	assert.Len(t, tokens, 2)

	active, err := svc.ToggleToken(ctx, "EMP001", "abc")
	require.NoError(t, err)
	assert.False(t, active)
	assert.Equal(t, map[string]bool{"activo": false}, backend.updates[len(backend.updates)-1])

	_, err = svc.ToggleToken(ctx, "EMP001", "zzz")
	assert.ErrorIs(t, err, ErrTokenNotFound)

	require.NoError(t, svc.DeleteToken(ctx, "abc"))
	assert.Equal(t, []string{"abc"}, backend.deleted)
}
