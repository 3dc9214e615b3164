// Package order holds the order draft a vendor builds: line items priced at a
// chosen tier, the selected client, locality and comments.
package order

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/smartdata/pedidos/internal/domain/catalog"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be greater than zero")
	ErrNoProduct       = errors.New("no product selected")
	ErrInvalidTier     = errors.New("unknown price tier")
	ErrDuplicateLine   = errors.New("product already in order at this tier")
	ErrLineNotFound    = errors.New("order line not found")
)

// Line is one product at one tier.
type Line struct {
	ProductCode string          `json:"productCode"`
	ProductName string          `json:"productName"`
	Label       string          `json:"label"`
	Quantity    int             `json:"quantity"`
	Tier        catalog.Tier    `json:"tier"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

// Total is unit price times quantity.
func (l Line) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order is the accumulator of lines. The zero value is an empty order.
type Order struct {
	lines []Line
}

func New() *Order {
	return &Order{}
}

// AddLine appends product at tier. A (code, tier) pair may appear only once.
func (o *Order) AddLine(product *catalog.Product, tier catalog.Tier, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if product == nil {
		return ErrNoProduct
	}
	price, ok := product.Prices.For(tier)
	if !ok {
		return ErrInvalidTier
	}
	for _, l := range o.lines {
		if l.ProductCode == product.Code && l.Tier == tier {
			return ErrDuplicateLine
		}
	}

	o.lines = append(o.lines, Line{
		ProductCode: product.Code,
		ProductName: product.Name,
		Label:       product.Label,
		Quantity:    quantity,
		Tier:        tier,
		UnitPrice:   price,
	})
	return nil
}

// UpdateQuantity sets the quantity of line i. Zero keeps the line; negative
// quantities are rejected without change.
func (o *Order) UpdateQuantity(i, quantity int) error {
	if i < 0 || i >= len(o.lines) {
		return ErrLineNotFound
	}
	if quantity < 0 {
		return ErrInvalidQuantity
	}
	o.lines[i].Quantity = quantity
	return nil
}

func (o *Order) RemoveLine(i int) error {
	if i < 0 || i >= len(o.lines) {
		return ErrLineNotFound
	}
	o.lines = append(o.lines[:i], o.lines[i+1:]...)
	return nil
}

// Total is recomputed from the lines on every call.
func (o *Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range o.lines {
		total = total.Add(l.Total())
	}
	return total
}

// Lines returns a copy of the lines in insertion order.
func (o *Order) Lines() []Line {
	return append([]Line(nil), o.lines...)
}

func (o *Order) Len() int {
	return len(o.lines)
}

func (o *Order) Clear() {
	o.lines = nil
}
