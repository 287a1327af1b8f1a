package extract

import (
	"fmt"
	"io"
	"strings"
)

// OwnerColumn is the watchlist column holding owner names when present.
const OwnerColumn = "eier"

// headerWords are cell values that label a column rather than name an owner.
var headerWords = map[string]bool{
	"selskap":     true,
	"eier":        true,
	"investor_id": true,
	"id":          true,
	"ticker":      true,
	"isin":        true,
	"aksje":       true,
}

// ParseWatchlist reads a watchlist file: semicolon-separated Latin-1 text
// whose "Eier" column, or else first column, lists owner name patterns.
// Blanks and header words are skipped and patterns are deduplicated
// case-insensitively, keeping the first spelling. A file without a header
// row is read from its first line.
func ParseWatchlist(r io.Reader, name string) ([]string, error) {
	ex, err := Parse(r, name)
	if err != nil {
		return nil, err
	}
	if len(ex.Header) == 0 {
		return nil, fmt.Errorf("%s: watchlist is empty", name)
	}

	col := 0
	for i, h := range ex.Header {
		if strings.EqualFold(strings.TrimSpace(h), OwnerColumn) {
			col = i
			break
		}
	}

	cells := make([]string, 0, len(ex.Rows)+1)
	cells = append(cells, ex.Header[col])
	for _, record := range ex.Rows {
		if col < len(record) {
			cells = append(cells, record[col])
		}
	}

	seen := make(map[string]bool)
	var patterns []string
	for _, c := range cells {
		c = strings.TrimSpace(c)
		key := strings.ToLower(c)
		if c == "" || headerWords[key] || seen[key] {
			continue
		}
		seen[key] = true
		patterns = append(patterns, c)
	}
	return patterns, nil
}
