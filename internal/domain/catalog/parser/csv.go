// Package parser turns externally hosted client and product lists (CSV text or
// spreadsheet workbooks) into dual-keyed records.
package parser

import (
	"strings"
)

// ParseCSV splits text into records. The first non-blank line is the header
// row; every later non-blank line becomes one Record.
//
// Quoting is deliberately lenient: every '"' toggles the in-quotes state and
// is dropped, so an escaped quote ("") inside a field yields nothing rather
// than a literal quote. Upstream sheets rely on this, keep it.
func ParseCSV(text string) []Record {
	if strings.TrimSpace(text) == "" {
		return []Record{}
	}

	rows := make([][]string, 0, strings.Count(text, "\n")+1)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		rows = append(rows, splitLine(line))
	}

	return RecordsFromRows(rows)
}

// splitLine is a single pass scanner over one line.
func splitLine(line string) []string {
	var (
		fields   []string
		cur      strings.Builder
		inQuotes bool
	)
	for _, ch := range line {
		switch {
		case ch == '"':
			inQuotes = !inQuotes
		case ch == ',' && !inQuotes:
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(ch)
		}
	}
	return append(fields, cur.String())
}

// RecordsFromRows builds records from already split rows (CSV lines or
// worksheet rows). Rows whose cells are all blank are skipped, the first
// remaining row is the header. Missing trailing cells become "", extra cells
// are ignored. When two headers collide the later column wins.
func RecordsFromRows(rows [][]string) []Record {
	start := -1
	for i, row := range rows {
		if !blankRow(row) {
			start = i
			break
		}
	}
	if start < 0 {
		return []Record{}
	}

	rawHeaders := make([]string, len(rows[start]))
	normHeaders := make([]string, len(rows[start]))
	for i, h := range rows[start] {
		rawHeaders[i] = strings.TrimSpace(h)
		normHeaders[i] = NormalizeHeader(h)
	}

	records := make([]Record, 0, len(rows)-start-1)
	for _, row := range rows[start+1:] {
		if blankRow(row) {
			continue
		}
		fields := make(map[string]string, len(rawHeaders)*2)
		for i, h := range rawHeaders {
			var v string
			if i < len(row) {
				v = strings.TrimSpace(row[i])
			}
			fields[h] = v
			fields[normHeaders[i]] = v
		}
		records = append(records, Record{fields: fields})
	}
	return records
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
