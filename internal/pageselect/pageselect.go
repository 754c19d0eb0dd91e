// Package pageselect turns a page selection expression such as "1-3,5" into
// zero-based page indices.
package pageselect

import (
	"strconv"
	"strings"
)

// Parse resolves expr against a document of totalPages pages.
//
// Tokens are separated by commas and are either a 1-based page number or an
// inclusive "start-end" range. Ranges are clamped to [1, totalPages]; tokens
// that do not parse or fall outside the document are dropped. The result keeps
// first-seen order without duplicates. When nothing valid remains the result
// is []int{0}: no selection means the first page.
func Parse(expr string, totalPages int) []int {
	expr = strings.TrimSpace(expr)
	if expr == "" || totalPages <= 0 {
		return []int{0}
	}

	seen := make(map[int]struct{}, totalPages)
	out := make([]int, 0, 4)
	add := func(page int) {
		idx := page - 1
		if idx < 0 || idx >= totalPages {
			return
		}
		if _, ok := seen[idx]; ok {
			return
		}
		seen[idx] = struct{}{}
		out = append(out, idx)
	}

	for _, tok := range strings.Split(expr, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if start, end, ok := parseRange(tok); ok {
			if start < 1 {
				start = 1
			}
			if end > totalPages {
				end = totalPages
			}
			for p := start; p <= end; p++ {
				add(p)
			}
			continue
		}
		if n, err := strconv.Atoi(tok); err == nil {
			add(n)
		}
	}

	if len(out) == 0 {
		return []int{0}
	}
	return out
}

// parseRange accepts "a-b" with a <= b. Negative numbers are not ranges.
func parseRange(tok string) (int, int, bool) {
	i := strings.Index(tok, "-")
	if i <= 0 || i == len(tok)-1 {
		return 0, 0, false
	}
	start, err := strconv.Atoi(strings.TrimSpace(tok[:i]))
	if err != nil {
		return 0, 0, false
	}
	end, err := strconv.Atoi(strings.TrimSpace(tok[i+1:]))
	if err != nil {
		return 0, 0, false
	}
	if start > end {
		return 0, 0, false
	}
	return start, end, true
}
