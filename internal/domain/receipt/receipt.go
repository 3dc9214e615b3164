// Package receipt renders a submitted order as a downloadable receipt: an
// HTML fragment for display and a PDF document for download and mail.
package receipt

import (
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/smartdata/pedidos/internal/domain/order"
	"github.com/smartdata/pedidos/pkg/money"
)

const (
	filenamePrefix  = "pedido"
	timestampLayout = "20060102-150405"
	dateLayout      = "02/01/2006 15:04"
)

// Branding is the company shown on the receipt header.
type Branding struct {
	Company string
	Address string
	Phone   string
	Email   string
	Logo    string // data URI, may be empty
}

// Item is one receipt row with display-ready amounts.
type Item struct {
	Code      string
	Name      string
	Quantity  int
	Tier      string
	UnitPrice string
	Total     string
}

// Receipt is the display model of a submitted order.
type Receipt struct {
	Reference  string
	Branding   Branding
	ClientCode string
	ClientName string
	Vendor     string
	Locality   string
	Comments   string
	Items      []Item
	Total      string
	IssuedAt   time.Time
}

// Build turns a submission into a receipt.
func Build(sub order.Submission, b Branding) Receipt {
	r := Receipt{
		Reference:  sub.Reference,
		Branding:   b,
		ClientCode: sub.Client.Code,
		ClientName: sub.Client.Name,
		Vendor:     sub.Vendor,
		Locality:   joinNonEmpty(", ", sub.Locality.Distrito, sub.Locality.Municipio, sub.Locality.Departamento),
		Comments:   strings.TrimSpace(sub.Comments),
		Total:      money.Format(sub.Total),
		IssuedAt:   sub.SubmittedAt,
		Items:      make([]Item, 0, len(sub.Lines)),
	}
	for _, l := range sub.Lines {
		r.Items = append(r.Items, Item{
			Code:      l.ProductCode,
			Name:      l.ProductName,
			Quantity:  l.Quantity,
			Tier:      string(l.Tier),
			UnitPrice: money.Format(l.UnitPrice),
			Total:     money.Format(l.Total()),
		})
	}
	return r
}

// Filename is the download name of r, e.g. pedido_C001_20240301-143005.pdf.
// The client code is dropped when it has no filename-safe characters.
func Filename(r Receipt) string {
	ts := r.IssuedAt.Format(timestampLayout)
	code := safeName(r.ClientCode)
	if code == "" {
		return fmt.Sprintf("%s_%s.pdf", filenamePrefix, ts)
	}
	return fmt.Sprintf("%s_%s_%s.pdf", filenamePrefix, code, ts)
}

func safeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}

func joinNonEmpty(sep string, parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}

var htmlTemplate = template.Must(template.New("receipt").Funcs(template.FuncMap{
	"date": func(t time.Time) string { return t.Format(dateLayout) },
	"logo": func(uri string) template.URL {
		if !strings.HasPrefix(uri, "data:image/") {
			return ""
		}
		return template.URL(uri)
	},
}).Parse(`<div class="receipt">
  <header>
    {{- if .Branding.Logo}}<img class="logo" src="{{logo .Branding.Logo}}" alt="{{.Branding.Company}}">{{end}}
    <h1>{{.Branding.Company}}</h1>
    {{- if .Branding.Address}}<p>{{.Branding.Address}}</p>{{end}}
    {{- if .Branding.Phone}}<p>Tel. {{.Branding.Phone}}</p>{{end}}
  </header>
  <section class="meta">
    <p><strong>Pedido:</strong> {{.Reference}}</p>
    <p><strong>Fecha:</strong> {{date .IssuedAt}}</p>
    <p><strong>Cliente:</strong> {{.ClientCode}} - {{.ClientName}}</p>
    <p><strong>Vendedor:</strong> {{.Vendor}}</p>
    {{- if .Locality}}<p><strong>Ubicación:</strong> {{.Locality}}</p>{{end}}
  </section>
  <table>
    <thead><tr><th>Código</th><th>Producto</th><th>Cant.</th><th>Lista</th><th>Precio</th><th>Total</th></tr></thead>
    <tbody>
    {{- range .Items}}
      <tr><td>{{.Code}}</td><td>{{.Name}}</td><td>{{.Quantity}}</td><td>{{.Tier}}</td><td>{{.UnitPrice}}</td><td>{{.Total}}</td></tr>
    {{- end}}
    </tbody>
    <tfoot><tr><td colspan="5">Total</td><td>{{.Total}}</td></tr></tfoot>
  </table>
  {{- if .Comments}}
  <p class="comments"><strong>Comentarios:</strong> {{.Comments}}</p>
  {{- end}}
</div>
`))

// RenderHTML writes r as an HTML fragment.
func RenderHTML(w io.Writer, r Receipt) error {
	if err := htmlTemplate.Execute(w, r); err != nil {
		return fmt.Errorf("failed to render receipt: %w", err)
	}
	return nil
}
