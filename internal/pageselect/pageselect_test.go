package pageselect_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/local/printorder/internal/pageselect"
)

func TestParse(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		expr  string
		total int
		want  []int
	}{
		{name: "range", expr: "1-3", total: 5, want: []int{0, 1, 2}},
		{name: "empty", expr: "", total: 5, want: []int{0}},
		{name: "blank spaces", expr: "   ", total: 5, want: []int{0}},
		{name: "out of range single", expr: "10", total: 3, want: []int{0}},
		{name: "first page", expr: "1", total: 3, want: []int{0}},
		{name: "list keeps order", expr: "3,1,5", total: 5, want: []int{2, 0, 4}},
		{name: "duplicates removed", expr: "2,2,1-3", total: 5, want: []int{1, 0, 2}},
		{name: "range clamped to document", expr: "2-9", total: 4, want: []int{1, 2, 3}},
		{name: "range clamped at start", expr: "0-2", total: 4, want: []int{0, 1}},
		{name: "garbage dropped", expr: "a,2,x-y,", total: 4, want: []int{1}},
		{name: "reversed range invalid", expr: "4-2", total: 5, want: []int{0}},
		{name: "whitespace inside tokens", expr: " 2 , 3 - 4 ", total: 5, want: []int{1, 2, 3}},
		{name: "no pages", expr: "1-3", total: 0, want: []int{0}},
		{name: "negative number", expr: "-2", total: 5, want: []int{0}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := pageselect.Parse(tc.expr, tc.total)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Parse(%q, %d) mismatch (-want +got):\n%s", tc.expr, tc.total, diff)
			}
		})
	}
}

func TestParseResultsStayInBounds(t *testing.T) {
	t.Parallel()

	exprs := []string{"", "1", "1-100", "5,4,3,2,1", "0", "99,-1,3", "2-2,2,2-3", ",,,"}
	for total := 1; total <= 6; total++ {
		for _, expr := range exprs {
			got := pageselect.Parse(expr, total)
			assert.NotEmpty(t, got, "expr %q total %d", expr, total)

			seen := map[int]bool{}
			for _, idx := range got {
				assert.GreaterOrEqual(t, idx, 0)
				assert.Less(t, idx, total)
				assert.False(t, seen[idx], "duplicate %d for %q", idx, expr)
				seen[idx] = true
			}
		}
	}
}
