// Package catalogtest generates realistic client and product lists for tests.
package catalogtest

import (
	"fmt"
	"strings"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
)

// Generator produces client and product sheets using gofakeit.
type Generator struct {
	faker *gofakeit.Faker
}

// NewGenerator creates a generator with a fixed seed for reproducibility.
func NewGenerator(seed int64) *Generator {
	return &Generator{faker: gofakeit.New(seed)}
}

// ClientRow is one generated client line.
type ClientRow struct {
	Code         string
	Name         string
	Municipio    string
	Departamento string
	Distrito     string
}

// ProductRow is one generated product line. Tier2/Tier3 are empty when the
// product sells at a single price.
type ProductRow struct {
	Code  string
	Name  string
	Tier1 decimal.Decimal
	Tier2 *decimal.Decimal
	Tier3 *decimal.Decimal
}

var departamentos = []string{
	"San Salvador", "La Libertad", "Santa Ana", "San Miguel", "Sonsonate",
	"Usulutan", "La Paz", "Chalatenango", "Cuscatlan", "Ahuachapan",
}

var productNames = []string{
	"Arroz 1lb", "Frijol rojo 1lb", "Azucar 2kg", "Aceite 750ml", "Cafe molido 400g",
	"Harina de maiz 2lb", "Sal 1kg", "Leche en polvo 360g", "Jabon de baño", "Pasta dental",
	"Detergente 1kg", "Papel higienico 4u", "Sardina en lata", "Galletas surtidas", "Consome 12u",
}

// Clients generates n client rows.
func (g *Generator) Clients(n int) []ClientRow {
	rows := make([]ClientRow, n)
	for i := range rows {
		rows[i] = ClientRow{
			Code:         fmt.Sprintf("CL-%04d", i+1),
			Name:         g.faker.Company(),
			Municipio:    g.faker.City(),
			Departamento: g.faker.RandomString(departamentos),
			Distrito:     g.faker.City(),
		}
	}
	return rows
}

// Products generates n product rows with unique codes. Roughly half carry
// per-tier overrides.
func (g *Generator) Products(n int) []ProductRow {
	rows := make([]ProductRow, n)
	for i := range rows {
		tier1 := g.price(1, 40)
		row := ProductRow{
			Code:  fmt.Sprintf("P%04d", i+1),
			Name:  g.faker.RandomString(productNames),
			Tier1: tier1,
		}
		if g.faker.Bool() {
			t2 := tier1.Mul(decimal.RequireFromString("0.95")).Round(2)
			t3 := tier1.Mul(decimal.RequireFromString("0.90")).Round(2)
			row.Tier2, row.Tier3 = &t2, &t3
		}
		rows[i] = row
	}
	return rows
}

func (g *Generator) price(min, max float64) decimal.Decimal {
	return decimal.NewFromFloat(g.faker.Float64Range(min, max)).Round(2)
}

// ClientsCSV renders rows with the headers field sheets use.
func ClientsCSV(rows []ClientRow) string {
	var b strings.Builder
	b.WriteString("Codigo Cliente,Cliente,Municipio,Departamento,Distrito\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%s,%s,%s,%s,%s\n", r.Code, quote(r.Name), quote(r.Municipio), quote(r.Departamento), quote(r.Distrito))
	}
	return b.String()
}

// ProductsCSV renders rows with "$" prefixed prices, as exported sheets do.
func ProductsCSV(rows []ProductRow) string {
	var b strings.Builder
	b.WriteString("CODIGO,PRODUCTO,PRECIO-01,PRECIO-02,PRECIO-03\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%s,%s,\"$%s\",%s,%s\n", r.Code, quote(r.Name), r.Tier1.StringFixed(2), optPrice(r.Tier2), optPrice(r.Tier3))
	}
	return b.String()
}

func optPrice(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return "$" + d.StringFixed(2)
}

// quote wraps values containing commas; embedded quotes are dropped because
// the list parser does not unescape them.
func quote(s string) string {
	s = strings.ReplaceAll(s, `"`, "")
	if strings.Contains(s, ",") {
		return `"` + s + `"`
	}
	return s
}
