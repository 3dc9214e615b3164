package order

import (
	"errors"
	"fmt"

	"github.com/smartdata/pedidos/internal/domain/catalog"
)

var (
	ErrUnknownClient  = errors.New("unknown client")
	ErrUnknownProduct = errors.New("unknown product")
)

// DraftLine is one line of an order described by codes.
type DraftLine struct {
	ProductCode string
	Tier        catalog.Tier // "" keeps the default tier
	Quantity    string
}

// Draft is an order described by codes instead of picked options.
type Draft struct {
	ClientCode string
	Comments   string
	Locality   *catalog.Locality // nil keeps the client's locality
	Lines      []DraftLine
}

// FormFromDraft replays d through a Form against c so the same selection
// rules apply as when the order is built step by step.
func FormFromDraft(c *catalog.Catalog, d Draft) (*Form, error) {
	form := NewForm()

	client, ok := c.ClientByCode(d.ClientCode)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownClient, d.ClientCode)
	}
	form.SelectClient(&client)
	if d.Locality != nil {
		form.SetLocality(*d.Locality)
	}
	form.SetComments(d.Comments)

	for i, l := range d.Lines {
		p, ok := c.ProductByCode(l.ProductCode)
		if !ok {
			return nil, fmt.Errorf("line %d: %w: %q", i+1, ErrUnknownProduct, l.ProductCode)
		}
		form.SelectProduct(&p)
		if l.Tier != "" {
			if err := form.SetTier(l.Tier); err != nil {
				return nil, fmt.Errorf("line %d: %w", i+1, err)
			}
		}
		form.SetQuantity(l.Quantity)
		if err := form.Add(); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
	}
	return form, nil
}
