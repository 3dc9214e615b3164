// Package admin is the tenant administration flow: dashboard KPIs, tenant
// and token maintenance on top of the gateway admin actions.
package admin

import (
	"regexp"
	"strings"
	"time"

	"github.com/smartdata/pedidos/internal/domain/tenant"
)

const dateLayout = "2006-01-02"

// Pricing is the subscription price of a customer type.
type Pricing struct {
	BasePrice        float64
	ExtraVendorPrice float64
	IncludedVendors  int
}

var defaultPricing = map[string]Pricing{
	tenant.CustomerRegular: {BasePrice: 39, ExtraVendorPrice: 7, IncludedVendors: 4},
	tenant.CustomerFounder: {BasePrice: 29, ExtraVendorPrice: 5, IncludedVendors: 4},
}

// DefaultPricing returns the list price for customerType. Unknown types get
// regular pricing.
func DefaultPricing(customerType string) Pricing {
	if p, ok := defaultPricing[customerType]; ok {
		return p
	}
	return defaultPricing[tenant.CustomerRegular]
}

// ApplyCustomerType switches t to customerType and its default pricing.
func ApplyCustomerType(t *tenant.Tenant, customerType string) {
	p := DefaultPricing(customerType)
	t.CustomerType = customerType
	t.BasePrice = p.BasePrice
	t.ExtraVendorPrice = p.ExtraVendorPrice
	t.IncludedVendors = p.IncludedVendors
}

// NewTenantDraft is the blank tenant form: regular monthly customer starting
// today.
func NewTenantDraft(today time.Time) tenant.Tenant {
	start := today.Format(dateLayout)
	t := tenant.Tenant{
		Plan:        tenant.DefaultPlan,
		OrdersSheet: tenant.DefaultOrderTab,
		Active:      true,
		StartDate:   start,
		DueDate:     DueDate(start, tenant.PaymentMonthly),
		PaymentType: tenant.PaymentMonthly,
	}
	ApplyCustomerType(&t, tenant.CustomerRegular)
	return t
}

// DueDate is start plus one year for yearly plans and one month otherwise,
// as YYYY-MM-DD. Month overflow normalizes, so Jan 31 becomes Mar 3 in a
// non-leap year. An empty or unparsable start gives "".
func DueDate(start, paymentType string) string {
	d, err := parseDate(start)
	if err != nil {
		return ""
	}
	if paymentType == tenant.PaymentYearly {
		return d.AddDate(1, 0, 0).Format(dateLayout)
	}
	return d.AddDate(0, 1, 0).Format(dateLayout)
}

// parseDate accepts a plain date or a full timestamp as the backend sends it.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// NormalizeDate trims a timestamp to its date part. Unparsable input is
// returned unchanged.
func NormalizeDate(s string) string {
	t, err := parseDate(s)
	if err != nil {
		return s
	}
	return t.Format(dateLayout)
}

var nonDigits = regexp.MustCompile(`\D`)

// FormatPhone keeps the first eight digits and writes them as dddd-dddd.
func FormatPhone(v string) string {
	n := nonDigits.ReplaceAllString(v, "")
	if len(n) > 8 {
		n = n[:8]
	}
	if len(n) > 4 {
		return n[:4] + "-" + n[4:]
	}
	return n
}

// PaymentStateLabel is the display name of a payment state.
func PaymentStateLabel(state string) string {
	switch state {
	case tenant.StateCurrent:
		return "Al Día"
	case tenant.StateGrace:
		return "En Gracia"
	case tenant.StateOverdue:
		return "Vencido"
	default:
		return state
	}
}

// Tenant list filters.
const (
	FilterAll      = "todos"
	FilterActive   = "activas"
	FilterOverdue  = "vencidas"
	FilterGrace    = "gracia"
	FilterFounders = "fundadores"
)

// Filters lists the accepted filter names.
func Filters() []string {
	return []string{FilterAll, FilterActive, FilterOverdue, FilterGrace, FilterFounders}
}

// Filter keeps tenants whose name or ID contains query (case-insensitive)
// and that match filter. An unknown filter matches nothing.
func Filter(tenants []tenant.Tenant, query, filter string) []tenant.Tenant {
	q := strings.ToLower(strings.TrimSpace(query))
	if filter == "" {
		filter = FilterAll
	}

	out := make([]tenant.Tenant, 0, len(tenants))
	for _, t := range tenants {
		if q != "" && !strings.Contains(strings.ToLower(t.Name), q) && !strings.Contains(strings.ToLower(t.ID), q) {
			continue
		}
		if !matchesFilter(t, filter) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func matchesFilter(t tenant.Tenant, filter string) bool {
	switch filter {
	case FilterAll:
		return true
	case FilterActive:
		return t.Active
	case FilterOverdue:
		return t.PaymentState == tenant.StateOverdue
	case FilterGrace:
		return t.PaymentState == tenant.StateGrace
	case FilterFounders:
		return t.CustomerType == tenant.CustomerFounder
	default:
		return false
	}
}

// DueSoonDays is how close to the due date an active tenant must be to show
// as "por vencer".
const DueSoonDays = 15

// Buckets groups tenants by payment urgency. A tenant may appear in more
// than one bucket.
type Buckets struct {
	DueSoon []tenant.Tenant `json:"porVencer"`
	InGrace []tenant.Tenant `json:"enGracia"`
	Overdue []tenant.Tenant `json:"vencidas"`
}

func GroupByState(tenants []tenant.Tenant) Buckets {
	var b Buckets
	for _, t := range tenants {
		if t.Active && t.DaysRemaining >= 0 && t.DaysRemaining <= DueSoonDays {
			b.DueSoon = append(b.DueSoon, t)
		}
		switch t.PaymentState {
		case tenant.StateGrace:
			b.InGrace = append(b.InGrace, t)
		case tenant.StateOverdue:
			b.Overdue = append(b.Overdue, t)
		}
	}
	return b
}

// KPIs are derived from the dashboard metrics. Rates are percentages.
type KPIs struct {
	MRR            float64 `json:"mrr"`
	ARR            float64 `json:"arr"`
	ARPU           float64 `json:"arpu"`
	AvgVendors     float64 `json:"vendedoresPromedio"`
	ActivationRate float64 `json:"tasaActivacion"`
	Churn          float64 `json:"churn"`
}

func ComputeKPIs(d tenant.Dashboard) KPIs {
	k := KPIs{MRR: d.MonthlyIncome, ARR: d.MonthlyIncome * 12}
	if d.ActiveTenants > 0 {
		k.ARPU = d.MonthlyIncome / float64(d.ActiveTenants)
		k.AvgVendors = float64(d.TotalActiveVendors) / float64(d.ActiveTenants)
	}
	if d.TotalTenants > 0 {
		k.ActivationRate = float64(d.ActiveTenants) / float64(d.TotalTenants) * 100
		k.Churn = float64(d.Overdue) / float64(d.TotalTenants) * 100
	}
	return k
}

// FilteredRevenue sums the estimated income of tenants as reported in the
// dashboard breakdown. Tenants missing from the breakdown count as zero.
func FilteredRevenue(tenants []tenant.Tenant, d tenant.Dashboard) float64 {
	income := make(map[string]float64, len(d.TenantsWithVendors))
	for _, r := range d.TenantsWithVendors {
		if _, seen := income[r.TenantID]; !seen {
			income[r.TenantID] = r.EstimatedIncome
		}
	}
	var total float64
	for _, t := range tenants {
		total += income[t.ID]
	}
	return total
}
