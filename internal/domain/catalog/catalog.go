// Package catalog turns client and product lists into selectable options
// with resolved price tiers.
package catalog

import (
	"sort"
	"strings"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/smartdata/pedidos/internal/domain/catalog/parser"
)

// Catalog is one load cycle's worth of options.
type Catalog struct {
	Clients  []Client
	Products []Product
	LoadedAt time.Time

	clientLabels  []string
	productLabels []string
}

// New builds a catalog from parsed client and product records.
func New(clients, products []parser.Record, loadedAt time.Time) *Catalog {
	c := &Catalog{
		Clients:  BuildClients(clients),
		Products: BuildProducts(products),
		LoadedAt: loadedAt,
	}
	c.clientLabels = make([]string, len(c.Clients))
	for i, cl := range c.Clients {
		c.clientLabels[i] = cl.Label
	}
	c.productLabels = make([]string, len(c.Products))
	for i, p := range c.Products {
		c.productLabels[i] = p.Label
	}
	return c
}

// ClientByCode returns the first client with the given code.
func (c *Catalog) ClientByCode(code string) (Client, bool) {
	for _, cl := range c.Clients {
		if cl.Code == code {
			return cl, true
		}
	}
	return Client{}, false
}

// ProductByCode returns the first product with the given code.
func (c *Catalog) ProductByCode(code string) (Product, bool) {
	for _, p := range c.Products {
		if p.Code == code {
			return p, true
		}
	}
	return Product{}, false
}

// SearchClients returns clients whose label fuzzily contains q, best first.
// An empty query returns the list in order. limit <= 0 means no limit.
func (c *Catalog) SearchClients(q string, limit int) []Client {
	idx := rankedIndexes(q, c.clientLabels, limit)
	out := make([]Client, 0, len(idx))
	for _, i := range idx {
		out = append(out, c.Clients[i])
	}
	return out
}

// SearchProducts is SearchClients for products.
func (c *Catalog) SearchProducts(q string, limit int) []Product {
	idx := rankedIndexes(q, c.productLabels, limit)
	out := make([]Product, 0, len(idx))
	for _, i := range idx {
		out = append(out, c.Products[i])
	}
	return out
}

func rankedIndexes(q string, labels []string, limit int) []int {
	q = strings.TrimSpace(q)

	var idx []int
	if q == "" {
		idx = make([]int, len(labels))
		for i := range labels {
			idx[i] = i
		}
	} else {
		ranks := fuzzy.RankFindNormalizedFold(q, labels)
		sort.SliceStable(ranks, func(i, j int) bool {
			if ranks[i].Distance != ranks[j].Distance {
				return ranks[i].Distance < ranks[j].Distance
			}
			return ranks[i].OriginalIndex < ranks[j].OriginalIndex
		})
		idx = make([]int, len(ranks))
		for i, r := range ranks {
			idx[i] = r.OriginalIndex
		}
	}

	if limit > 0 && len(idx) > limit {
		idx = idx[:limit]
	}
	return idx
}
