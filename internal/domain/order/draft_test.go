package order

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdata/pedidos/internal/domain/catalog"
	"github.com/smartdata/pedidos/internal/domain/catalog/parser"
)

func draftCatalog() *catalog.Catalog {
	clients := []parser.Record{
		parser.NewRecord(map[string]string{"CODIGO": "C1", "CLIENTE": "Tienda Ana", "MUNICIPIO": "Soyapango", "DEPARTAMENTO": "San Salvador"}),
	}
	products := []parser.Record{
		parser.NewRecord(map[string]string{"CODIGO": "P1", "PRODUCTO": "Arroz", "PRECIO_01": "1.50", "PRECIO_02": "1.40", "PRECIO_03": "1.30"}),
		parser.NewRecord(map[string]string{"CODIGO": "P2", "PRODUCTO": "Azucar", "PRECIO_01": "2.00", "PRECIO_02": "1.90", "PRECIO_03": "1.80"}),
	}
	return catalog.New(clients, products, time.Now())
}

func TestFormFromDraft(t *testing.T) {
	c := draftCatalog()

	t.Run("replays lines at their tiers", func(t *testing.T) {
		form, err := FormFromDraft(c, Draft{
			ClientCode: "C1",
			Comments:   "entregar temprano",
			Lines: []DraftLine{
				{ProductCode: "P1", Tier: catalog.Tier2, Quantity: "4"},
				{ProductCode: "P2", Quantity: "3 cajas"},
			},
		})
		require.NoError(t, err)

		assert.Equal(t, "C1", form.Client().Code)
		assert.Equal(t, "Soyapango", form.Locality().Municipio)
		assert.Equal(t, "entregar temprano", form.Comments())
		require.Equal(t, 2, form.Order().Len())
		assert.True(t, form.Order().Total().Equal(dec("11.60")))
		assert.Equal(t, catalog.Tier1, form.Order().Lines()[1].Tier)
	})

	t.Run("explicit locality wins", func(t *testing.T) {
		loc := catalog.Locality{Municipio: "Ilopango"}
		form, err := FormFromDraft(c, Draft{
			ClientCode: "C1",
			Locality:   &loc,
			Lines:      []DraftLine{{ProductCode: "P1", Quantity: "1"}},
		})
		require.NoError(t, err)
		assert.Equal(t, loc, form.Locality())
	})

	tests := []struct {
		name  string
		draft Draft
		want  error
	}{
		{"unknown client", Draft{ClientCode: "C9"}, ErrUnknownClient},
		{"unknown product", Draft{ClientCode: "C1", Lines: []DraftLine{{ProductCode: "P9", Quantity: "1"}}}, ErrUnknownProduct},
		{"bad tier", Draft{ClientCode: "C1", Lines: []DraftLine{{ProductCode: "P1", Tier: "7", Quantity: "1"}}}, ErrInvalidTier},
		{"zero quantity", Draft{ClientCode: "C1", Lines: []DraftLine{{ProductCode: "P1", Quantity: "abc"}}}, ErrInvalidQuantity},
		{"duplicate line", Draft{ClientCode: "C1", Lines: []DraftLine{{ProductCode: "P1", Quantity: "1"}, {ProductCode: "P1", Quantity: "2"}}}, ErrDuplicateLine},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FormFromDraft(c, tt.draft)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
