// Package money wraps decimal amounts in ISO-4217 aware values for display on
// receipts and admin screens. Arithmetic stays in shopspring/decimal; go-money
// owns formatting and minor-unit rounding.
package money

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// USD is the default currency for every tenant.
const USD = "USD"

// Money represents a monetary value with currency.
type Money struct {
	m *money.Money
}

// New creates a new Money value from cents (minor units) and currency code.
func New(amountCents int64, currencyCode string) *Money {
	return &Money{
		m: money.New(amountCents, currencyCode),
	}
}

// NewFromDecimal creates Money from a decimal.Decimal value, rounding half
// away from zero to the currency's minor unit.
func NewFromDecimal(amount decimal.Decimal, currencyCode string) *Money {
	currency := money.GetCurrency(currencyCode)
	if currency == nil {
		currency = money.GetCurrency(USD)
		currencyCode = USD
	}

	multiplier := decimal.New(1, int32(currency.Fraction))
	cents := amount.Mul(multiplier).Round(0).IntPart()

	return New(cents, currencyCode)
}

// NewFromFloat is for admin metrics which arrive as JSON numbers.
func NewFromFloat(amount float64, currencyCode string) *Money {
	return NewFromDecimal(decimal.NewFromFloat(amount), currencyCode)
}

// Zero returns a zero Money value for the given currency
func Zero(currencyCode string) *Money {
	return New(0, currencyCode)
}

// Amount returns the amount in minor units (cents)
func (m *Money) Amount() int64 {
	if m == nil || m.m == nil {
		return 0
	}
	return m.m.Amount()
}

// Currency returns the ISO-4217 currency code
func (m *Money) Currency() string {
	if m == nil || m.m == nil {
		return ""
	}
	return m.m.Currency().Code
}

func (m *Money) IsZero() bool {
	return m.Amount() == 0
}

// Add returns m + other. Currencies must match.
func (m *Money) Add(other *Money) (*Money, error) {
	if m == nil || other == nil {
		return nil, errors.New("cannot add nil money")
	}
	result, err := m.m.Add(other.m)
	if err != nil {
		return nil, fmt.Errorf("add failed: %w", err)
	}
	return &Money{m: result}, nil
}

// Multiply scales by an integer quantity.
func (m *Money) Multiply(factor int64) *Money {
	if m == nil || m.m == nil {
		return nil
	}
	return &Money{m: m.m.Multiply(factor)}
}

// Display returns a formatted string for display (e.g., "$1,234.56")
func (m *Money) Display() string {
	if m == nil || m.m == nil {
		return "$0.00"
	}
	return m.m.Display()
}

// String returns the amount as a fixed two-decimal string (e.g., "1234.50").
func (m *Money) String() string {
	return m.ToDecimal().StringFixed(2)
}

// ToDecimal converts to decimal.Decimal for precise calculations
func (m *Money) ToDecimal() decimal.Decimal {
	if m == nil || m.m == nil {
		return decimal.Zero
	}
	currency := m.m.Currency()
	d := decimal.NewFromInt(m.m.Amount())
	divisor := decimal.New(1, int32(currency.Fraction))
	return d.Div(divisor)
}

// Fixed formats a decimal amount with two decimals, the gateway wire format.
func Fixed(d decimal.Decimal) string {
	return NewFromDecimal(d, USD).String()
}

// Format renders a decimal amount the way receipts show it.
func Format(d decimal.Decimal) string {
	return NewFromDecimal(d, USD).Display()
}

// FormatFloat renders a float amount the way admin screens show it.
func FormatFloat(f float64) string {
	return NewFromFloat(f, USD).Display()
}

type jsonMoney struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// MarshalJSON implements json.Marshaler
func (m *Money) MarshalJSON() ([]byte, error) {
	if m == nil || m.m == nil {
		return []byte("null"), nil
	}
	return json.Marshal(jsonMoney{Amount: m.Amount(), Currency: m.Currency()})
}

// UnmarshalJSON implements json.Unmarshaler
func (m *Money) UnmarshalJSON(data []byte) error {
	var v jsonMoney
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.Currency == "" {
		v.Currency = USD
	}
	m.m = money.New(v.Amount, v.Currency)
	return nil
}
