// Package tenant holds the records the action gateway returns for tenant
// companies, their vendor access tokens and the admin dashboard.
package tenant

// Payment plans.
const (
	PaymentMonthly = "MENSUAL"
	PaymentYearly  = "ANUAL"
)

// Customer types drive the default pricing.
const (
	CustomerRegular = "REGULAR"
	CustomerFounder = "FUNDADOR"
	DefaultPlan     = "PLAN PYME"
	DefaultOrderTab = "Pedidos+"
)

// Payment states computed by the backend.
const (
	StateCurrent = "AL_DIA"
	StateGrace   = "GRACIA"
	StateOverdue = "VENCIDO"
)

// Tenant is a company subscribed to the order-taking service.
type Tenant struct {
	ID               string  `json:"empresa_id,omitempty"`
	Name             string  `json:"nombre"`
	Plan             string  `json:"plan,omitempty"`
	SpreadsheetID    string  `json:"spreadsheetId,omitempty"`
	OrdersSheet      string  `json:"sheetPedidosNombre,omitempty"`
	Active           bool    `json:"activa"`
	Address          string  `json:"direccion,omitempty"`
	Phone            string  `json:"telefono,omitempty"`
	Email            string  `json:"email,omitempty"`
	LogoURL          string  `json:"logoUrl,omitempty"`
	ClientsCSVURL    string  `json:"clientesCsvUrl,omitempty"`
	ProductsCSVURL   string  `json:"productosCsvUrl,omitempty"`
	StartDate        string  `json:"fechaInicio,omitempty"`
	DueDate          string  `json:"fechaVencimiento,omitempty"`
	PaymentType      string  `json:"tipoPago,omitempty"`
	CustomerType     string  `json:"tipoCliente,omitempty"`
	BasePrice        float64 `json:"precioBase"`
	ExtraVendorPrice float64 `json:"precioVendedorExtra"`
	IncludedVendors  int     `json:"vendedoresIncluidos"`
	Discount         float64 `json:"descuento"`
	PaymentState     string  `json:"estadoPago,omitempty"`
	DaysRemaining    int     `json:"diasRestantes"`
}

// IsFounder reports whether the tenant is on founder pricing.
func (t Tenant) IsFounder() bool {
	return t.CustomerType == CustomerFounder
}

// Token is a vendor access token issued for a tenant.
type Token struct {
	Token    string `json:"token"`
	Vendor   string `json:"vendedor"`
	TenantID string `json:"empresa_id"`
	Active   bool   `json:"activo"`
}

// Revenue is the per-tenant breakdown in the dashboard.
type Revenue struct {
	TenantID         string  `json:"empresa_id"`
	Name             string  `json:"nombre"`
	CustomerType     string  `json:"tipoCliente"`
	ActiveVendors    int     `json:"vendedoresActivos"`
	IncludedVendors  int     `json:"vendedoresIncluidos"`
	ExtraVendors     int     `json:"vendedoresExtra"`
	BasePrice        float64 `json:"precioBase"`
	ExtraVendorPrice float64 `json:"precioVendedorExtra"`
	Discount         float64 `json:"descuento"`
	EstimatedIncome  float64 `json:"ingresoEstimado"`
}

// Dashboard is the aggregate returned by the admin dashboard action.
type Dashboard struct {
	TotalTenants       int            `json:"totalEmpresas"`
	ActiveTenants      int            `json:"empresasActivas"`
	TotalActiveVendors int            `json:"totalVendedoresActivos"`
	MonthlyIncome      float64        `json:"ingresoMensualActual"`
	TotalDiscounts     float64        `json:"totalDescuentos"`
	DueSoon            int            `json:"porVencer"`
	InGrace            int            `json:"enGracia"`
	Overdue            int            `json:"vencidas"`
	Current            int            `json:"alDia"`
	ByCustomerType     map[string]int `json:"porTipoCliente"`
	TenantsWithVendors []Revenue      `json:"empresasConVendedores"`
}
