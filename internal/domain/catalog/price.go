package catalog

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/smartdata/pedidos/internal/domain/catalog/parser"
)

// Tier selects one of a product's three unit prices.
type Tier string

const (
	Tier1 Tier = "1"
	Tier2 Tier = "2"
	Tier3 Tier = "3"
)

// Valid reports whether t is one of the three known tiers.
func (t Tier) Valid() bool {
	return t == Tier1 || t == Tier2 || t == Tier3
}

// Prices are the resolved unit prices of a product.
type Prices struct {
	Tier1 decimal.Decimal `json:"precio1"`
	Tier2 decimal.Decimal `json:"precio2"`
	Tier3 decimal.Decimal `json:"precio3"`
}

// For returns the unit price of tier t.
func (p Prices) For(t Tier) (decimal.Decimal, bool) {
	switch t {
	case Tier1:
		return p.Tier1, true
	case Tier2:
		return p.Tier2, true
	case Tier3:
		return p.Tier3, true
	default:
		return decimal.Zero, false
	}
}

var (
	nonNumeric     = regexp.MustCompile(`[^0-9.\-]`)
	leadingDecimal = regexp.MustCompile(`^-?(?:\d+(?:\.\d*)?|\.\d+)`)
)

// ParsePrice strips everything but digits, '.' and '-' and reads the longest
// leading decimal number, so "$1,250.00" is 1250 and "12.5.1" is 12.5.
func ParsePrice(raw string) (decimal.Decimal, bool) {
	cleaned := strings.TrimSpace(nonNumeric.ReplaceAllString(raw, ""))
	num := leadingDecimal.FindString(cleaned)
	if num == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(strings.TrimSuffix(num, "."))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// ResolvePrices reads the three tiers in order. Tier 1 defaults to zero;
// tiers 2 and 3 fall back to the resolved tier 1 when their own aliases do
// not yield a number.
func ResolvePrices(rec parser.Record, aliases PriceAliases) Prices {
	t1, ok := firstPrice(rec, aliases[0])
	if !ok {
		t1 = decimal.Zero
	}

	t2, ok := firstPrice(rec, aliases[1])
	if !ok {
		t2 = t1
	}

	t3, ok := firstPrice(rec, aliases[2])
	if !ok {
		t3 = t1
	}

	return Prices{Tier1: t1, Tier2: t2, Tier3: t3}
}

func firstPrice(rec parser.Record, aliases []string) (decimal.Decimal, bool) {
	for _, alias := range aliases {
		raw, ok := parser.Resolve(rec, alias)
		if !ok {
			continue
		}
		if d, ok := ParsePrice(raw); ok {
			return d, true
		}
	}
	return decimal.Zero, false
}
