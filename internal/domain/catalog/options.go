package catalog

import (
	"fmt"

	"github.com/smartdata/pedidos/internal/domain/catalog/parser"
)

// Product is a selectable product option. Options are rebuilt from records on
// every load and never modified afterwards.
type Product struct {
	Code   string        `json:"code"`
	Name   string        `json:"name"`
	Label  string        `json:"label"`
	Prices Prices        `json:"prices"`
	Record parser.Record `json:"-"`
}

// Client is a selectable end customer.
type Client struct {
	Code   string        `json:"code"`
	Name   string        `json:"name"`
	Label  string        `json:"label"`
	Record parser.Record `json:"-"`
}

// Locality is the delivery location carried on an order.
type Locality struct {
	Municipio    string `json:"municipio"`
	Departamento string `json:"departamento"`
	Distrito     string `json:"distrito"`
}

func NewProduct(rec parser.Record) Product {
	prices := ResolvePrices(rec, DefaultPriceAliases)
	name := parser.ResolveOr(rec, DefaultProductName, ProductNameAliases...)
	code := parser.ResolveOr(rec, name, ProductCodeAliases...)

	return Product{
		Code:   code,
		Name:   name,
		Label:  fmt.Sprintf("%s | $%s", name, prices.Tier1.StringFixed(2)),
		Prices: prices,
		Record: rec,
	}
}

func BuildProducts(records []parser.Record) []Product {
	out := make([]Product, 0, len(records))
	for _, rec := range records {
		out = append(out, NewProduct(rec))
	}
	return out
}

func NewClient(rec parser.Record) Client {
	code := parser.ResolveOr(rec, "", ClientCodeAliases...)
	name := parser.ResolveOr(rec, DefaultClientName, ClientNameAliases...)

	return Client{
		Code:   code,
		Name:   name,
		Label:  fmt.Sprintf("%s - %s", name, code),
		Record: rec,
	}
}

func BuildClients(records []parser.Record) []Client {
	out := make([]Client, 0, len(records))
	for _, rec := range records {
		out = append(out, NewClient(rec))
	}
	return out
}

// Locality reads the client's location columns; missing ones are "".
func (c Client) Locality() Locality {
	return Locality{
		Municipio:    parser.ResolveOr(c.Record, "", MunicipioAliases...),
		Departamento: parser.ResolveOr(c.Record, "", DepartamentoAliases...),
		Distrito:     parser.ResolveOr(c.Record, "", DistritoAliases...),
	}
}
