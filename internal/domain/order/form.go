package order

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/smartdata/pedidos/internal/domain/catalog"
)

// Form is the state of the order screen: the current selections plus the
// accumulated order. Each method is one user transition.
type Form struct {
	client   *catalog.Client
	product  *catalog.Product
	tier     catalog.Tier
	quantity int
	comments string
	locality catalog.Locality
	order    *Order
}

func NewForm() *Form {
	return &Form{tier: catalog.Tier1, order: New()}
}

// SelectClient sets the client and fills the locality from its record. Only
// non-empty columns overwrite; a nil client clears the locality.
func (f *Form) SelectClient(c *catalog.Client) {
	f.client = c
	if c == nil {
		f.locality = catalog.Locality{}
		return
	}
	loc := c.Locality()
	if loc.Municipio != "" {
		f.locality.Municipio = loc.Municipio
	}
	if loc.Departamento != "" {
		f.locality.Departamento = loc.Departamento
	}
	if loc.Distrito != "" {
		f.locality.Distrito = loc.Distrito
	}
}

// SelectProduct sets the product and resets the tier to 1.
func (f *Form) SelectProduct(p *catalog.Product) {
	f.product = p
	f.tier = catalog.Tier1
}

func (f *Form) SetTier(t catalog.Tier) error {
	if !t.Valid() {
		return ErrInvalidTier
	}
	f.tier = t
	return nil
}

// SetQuantity parses raw leniently and returns the stored quantity.
func (f *Form) SetQuantity(raw string) int {
	f.quantity = ParseQuantity(raw)
	return f.quantity
}

// Add moves the selected product into the order and clears the product and
// quantity inputs. The tier is kept.
func (f *Form) Add() error {
	if f.product == nil {
		return ErrNoProduct
	}
	if err := f.order.AddLine(f.product, f.tier, f.quantity); err != nil {
		return err
	}
	f.product = nil
	f.quantity = 0
	return nil
}

// UpdateQuantity edits line i with a leniently parsed quantity.
func (f *Form) UpdateQuantity(i int, raw string) error {
	return f.order.UpdateQuantity(i, ParseQuantity(raw))
}

func (f *Form) SetComments(s string) {
	f.comments = s
}

func (f *Form) SetLocality(l catalog.Locality) {
	f.locality = l
}

// Reset returns the form to its initial state.
func (f *Form) Reset() {
	*f = Form{tier: catalog.Tier1, order: New()}
}

func (f *Form) Order() *Order              { return f.order }
func (f *Form) Client() *catalog.Client    { return f.client }
func (f *Form) Product() *catalog.Product  { return f.product }
func (f *Form) Tier() catalog.Tier         { return f.tier }
func (f *Form) Quantity() int              { return f.quantity }
func (f *Form) Comments() string           { return f.comments }
func (f *Form) Locality() catalog.Locality { return f.locality }

var leadingInt = regexp.MustCompile(`^\s*[+-]?\d+`)

// ParseQuantity reads the leading integer of raw. Anything unparsable is 0,
// so "12 cajas" is 12 and "abc" is 0.
func ParseQuantity(raw string) int {
	m := leadingInt.FindString(raw)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(m))
	if err != nil {
		return 0
	}
	return n
}
