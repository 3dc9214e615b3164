package receipt

import (
	"fmt"
	"strconv"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/image"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/extension"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/orientation"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

var (
	grey      = &props.Color{Red: 110, Green: 110, Blue: 110}
	headerBg  = &props.Color{Red: 240, Green: 242, Blue: 245}
	stripedBg = &props.Color{Red: 250, Green: 250, Blue: 250}
)

// RenderPDF lays r out on an A4 page and returns the PDF bytes.
func RenderPDF(r Receipt) ([]byte, error) {
	cfg := config.NewBuilder().
		WithOrientation(orientation.Vertical).
		WithPageSize(pagesize.A4).
		WithLeftMargin(12).
		WithTopMargin(10).
		WithRightMargin(12).
		WithPageNumber(props.PageNumber{
			Pattern: "Página {current} de {total}",
			Place:   props.RightBottom,
			Size:    7,
			Color:   grey,
		}).
		Build()

	m := maroto.New(cfg)

	addHeader(m, r)
	addMeta(m, r)
	addItems(m, r)
	addTotal(m, r)
	addComments(m, r)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate receipt PDF: %w", err)
	}
	return doc.GetBytes(), nil
}

func addHeader(m core.Maroto, r Receipt) {
	title := props.Text{Size: 14, Style: fontstyle.Bold, Align: align.Left}
	caption := props.Text{Size: 8, Align: align.Left, Color: grey, Top: 7}

	if logo, err := decodeDataURI(r.Branding.Logo); err == nil && len(logo) > 0 {
		m.AddRows(row.New(18).Add(
			col.New(3).Add(image.NewFromBytes(logo, extension.Png, props.Rect{Center: true, Percent: 90})),
			col.New(9).Add(
				text.New(r.Branding.Company, title),
				text.New(contactLine(r.Branding), caption),
			),
		))
	} else {
		m.AddRows(row.New(14).Add(col.New(12).Add(
			text.New(r.Branding.Company, title),
			text.New(contactLine(r.Branding), caption),
		)))
	}

	m.AddRows(row.New(8).Add(
		col.New(6).Add(text.New("NOTA DE PEDIDO", props.Text{Size: 11, Style: fontstyle.Bold})),
		col.New(6).Add(text.New(r.IssuedAt.Format(dateLayout), props.Text{Size: 9, Align: align.Right})),
	))
}

func contactLine(b Branding) string {
	phone := ""
	if b.Phone != "" {
		phone = "Tel. " + b.Phone
	}
	return joinNonEmpty(" | ", b.Address, phone, b.Email)
}

func addMeta(m core.Maroto, r Receipt) {
	label := props.Text{Size: 8, Style: fontstyle.Bold, Color: grey}
	value := props.Text{Size: 9}

	field := func(name, v string) core.Row {
		return row.New(6).Add(
			col.New(3).Add(text.New(name, label)),
			col.New(9).Add(text.New(v, value)),
		)
	}

	m.AddRows(
		field("PEDIDO", r.Reference),
		field("CLIENTE", joinNonEmpty(" - ", r.ClientCode, r.ClientName)),
		field("VENDEDOR", r.Vendor),
	)
	if r.Locality != "" {
		m.AddRows(field("UBICACIÓN", r.Locality))
	}
	m.AddRows(row.New(4))
}

// Column widths of the item table; they add up to the 12-column grid.
var itemCols = [...]int{2, 4, 1, 1, 2, 2}

func addItems(m core.Maroto, r Receipt) {
	head := props.Text{Size: 8, Style: fontstyle.Bold, Top: 1.5}
	headRight := head
	headRight.Align = align.Right
	cell := props.Text{Size: 8, Top: 1.5}
	cellRight := cell
	cellRight.Align = align.Right

	headerCell := &props.Cell{BackgroundColor: headerBg}
	m.AddRows(row.New(7).Add(
		col.New(itemCols[0]).Add(text.New("CÓDIGO", head)).WithStyle(headerCell),
		col.New(itemCols[1]).Add(text.New("PRODUCTO", head)).WithStyle(headerCell),
		col.New(itemCols[2]).Add(text.New("CANT.", headRight)).WithStyle(headerCell),
		col.New(itemCols[3]).Add(text.New("LISTA", headRight)).WithStyle(headerCell),
		col.New(itemCols[4]).Add(text.New("PRECIO", headRight)).WithStyle(headerCell),
		col.New(itemCols[5]).Add(text.New("TOTAL", headRight)).WithStyle(headerCell),
	))

	for i, it := range r.Items {
		cells := []core.Col{
			col.New(itemCols[0]).Add(text.New(it.Code, cell)),
			col.New(itemCols[1]).Add(text.New(it.Name, cell)),
			col.New(itemCols[2]).Add(text.New(strconv.Itoa(it.Quantity), cellRight)),
			col.New(itemCols[3]).Add(text.New(it.Tier, cellRight)),
			col.New(itemCols[4]).Add(text.New(it.UnitPrice, cellRight)),
			col.New(itemCols[5]).Add(text.New(it.Total, cellRight)),
		}
		if i%2 == 1 {
			for _, c := range cells {
				c.WithStyle(&props.Cell{BackgroundColor: stripedBg})
			}
		}
		m.AddRows(row.New(6).Add(cells...))
	}
}

func addTotal(m core.Maroto, r Receipt) {
	m.AddRows(
		row.New(2),
		row.New(8).Add(
			col.New(8),
			col.New(2).Add(text.New("TOTAL", props.Text{Size: 10, Style: fontstyle.Bold, Align: align.Right, Top: 1.5})),
			col.New(2).Add(text.New(r.Total, props.Text{Size: 10, Style: fontstyle.Bold, Align: align.Right, Top: 1.5})),
		).WithStyle(&props.Cell{BackgroundColor: headerBg}),
	)
}

func addComments(m core.Maroto, r Receipt) {
	if r.Comments == "" {
		return
	}
	m.AddRows(
		row.New(4),
		row.New(6).Add(col.New(12).Add(text.New("COMENTARIOS", props.Text{Size: 8, Style: fontstyle.Bold, Color: grey}))),
		row.New(10).Add(col.New(12).Add(text.New(r.Comments, props.Text{Size: 9}))),
	)
}
