// Package sniffer picks the worksheet (and header row) of a workbook that
// actually holds a client or product list.
package sniffer

import (
	"strings"
	"sync"

	"github.com/cloudflare/ahocorasick"

	"github.com/smartdata/pedidos/internal/domain/catalog/parser"
)

// headerScanDepth is how many leading rows of a sheet may hold the header.
const headerScanDepth = 10

// Detector scores rows by how many known header aliases they contain.
type Detector struct {
	matcher  *ahocorasick.Matcher
	patterns []string
	mu       sync.Mutex // Matcher keeps per-call state
}

// Pick is the outcome of PickSheet.
type Pick struct {
	Sheet     parser.Sheet
	HeaderRow int // 0-based index into the original rows
	Hits      int // distinct aliases found in the header row
}

// NewDetector builds a detector for the given header aliases. Aliases are
// compared in normalized form and must match a whole cell.
func NewDetector(aliases ...string) *Detector {
	seen := make(map[string]bool, len(aliases))
	d := &Detector{}
	for _, a := range aliases {
		n := parser.NormalizeHeader(a)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		d.patterns = append(d.patterns, cellToken(n))
	}
	if len(d.patterns) > 0 {
		d.matcher = ahocorasick.NewStringMatcher(d.patterns)
	}
	return d
}

// Score counts distinct aliases present in row.
func (d *Detector) Score(row []string) int {
	if d.matcher == nil {
		return 0
	}

	var b strings.Builder
	b.WriteByte('|')
	for _, cell := range row {
		b.WriteString(parser.NormalizeHeader(cell))
		b.WriteByte('|')
	}

	d.mu.Lock()
	hits := d.matcher.Match([]byte(b.String()))
	d.mu.Unlock()

	distinct := make(map[int]struct{}, len(hits))
	for _, h := range hits {
		distinct[h] = struct{}{}
	}
	return len(distinct)
}

// PickSheet chooses the sheet whose header row carries the most aliases and
// trims the rows above that header. Ties go to the earlier sheet; when no
// sheet scores, the first sheet is returned unchanged. ok is false only for
// an empty workbook.
func (d *Detector) PickSheet(sheets []parser.Sheet) (Pick, bool) {
	if len(sheets) == 0 {
		return Pick{}, false
	}

	best := Pick{Sheet: sheets[0]}
	for _, s := range sheets {
		for i := 0; i < len(s.Rows) && i < headerScanDepth; i++ {
			if score := d.Score(s.Rows[i]); score > best.Hits {
				best = Pick{Sheet: s, HeaderRow: i, Hits: score}
			}
		}
	}

	if best.HeaderRow > 0 {
		best.Sheet = parser.Sheet{Name: best.Sheet.Name, Rows: best.Sheet.Rows[best.HeaderRow:]}
	}
	return best, true
}

func cellToken(normalized string) string {
	return "|" + normalized + "|"
}
