package store

import "sort"

// SortDir is the view's sort direction (spec.md §6). Passing SortNone
// with a column is equivalent to ClearSort().
type SortDir int

const (
	SortAsc SortDir = iota
	SortDesc
	SortNone
)

// viewState holds the pending filter + sort configuration and the
// memoized visible-row index vector (spec.md §3, §4.4). A nil cachedView
// means "absent" (invariant I4/I5): it must be recomputed before use.
type viewState struct {
	filterText string
	sortColumn int // -1 means unset
	sortDir    SortDir

	cachedView []int
}

func newViewState() *viewState {
	return &viewState{sortColumn: -1, sortDir: SortNone}
}

func (v *viewState) invalidate() {
	v.cachedView = nil
}

// setFilter normalizes to a no-op (spec.md §4.4) when text already equals
// the current filter; only a real change invalidates the cache.
func (v *viewState) setFilter(text string) {
	if v.filterText == text {
		return
	}
	v.filterText = text
	v.invalidate()
}

func (v *viewState) clearFilter() {
	v.setFilter("")
}

// setSort normalizes SortNone to ClearSort (spec.md §6) and is a no-op if
// the requested configuration already holds.
func (v *viewState) setSort(col int, dir SortDir) {
	if dir == SortNone {
		v.clearSort()
		return
	}
	if v.sortColumn == col && v.sortDir == dir {
		return
	}
	v.sortColumn = col
	v.sortDir = dir
	v.invalidate()
}

func (v *viewState) clearSort() {
	if v.sortColumn == -1 && v.sortDir == SortNone {
		return
	}
	v.sortColumn = -1
	v.sortDir = SortNone
	v.invalidate()
}

// ensureView materializes cachedView if absent (spec.md §4.4). deleted is
// the tombstone vector; cols/data describe the schema and column storage
// needed for the full-scan fallback, the candidate-verification pass, and
// the sort comparator. trigrams is consulted only when the filter is at
// least 3 bytes long.
func (v *viewState) ensureView(deleted []bool, cols []*Column, data []columnData, trigrams *trigramIndex) []int {
	if v.cachedView != nil {
		return v.cachedView
	}

	var view []int
	switch {
	case v.filterText == "":
		// Seed: every live row, ascending (spec.md §4.4 step 1).
		view = make([]int, 0, len(deleted))
		for row, isDeleted := range deleted {
			if !isDeleted {
				view = append(view, row)
			}
		}

	case len(v.filterText) < 3:
		// Full-scan fallback: trigram pruning can't help below 3 bytes
		// (spec.md §4.4 step 2).
		view = fullScan(v.filterText, deleted, cols, data)

	default:
		candidates := trigrams.search(v.filterText)
		view = make([]int, 0, len(candidates))
		// Verify each candidate by rescanning: trigram containment is a
		// superset, never ground truth (spec.md §4.2, §4.4 step 2).
		rows := make([]int, 0, len(candidates))
		for row := range candidates {
			rows = append(rows, row)
		}
		sort.Ints(rows)
		for _, row := range rows {
			if row < 0 || row >= len(deleted) || deleted[row] {
				continue
			}
			if rowContains(cols, data, row, v.filterText) {
				view = append(view, row)
			}
		}
	}

	if v.sortColumn != -1 && v.sortDir != SortNone {
		sortView(view, v.sortColumn, v.sortDir, cols, data)
	}

	v.cachedView = view
	return view
}

// fullScan admits every live row whose indexed text contains filterText
// as a case-folded substring (spec.md §4.4 step 2, second bullet).
func fullScan(filterText string, deleted []bool, cols []*Column, data []columnData) []int {
	view := make([]int, 0, len(deleted))
	for row, isDeleted := range deleted {
		if isDeleted {
			continue
		}
		if rowContains(cols, data, row, filterText) {
			view = append(view, row)
		}
	}
	return view
}

// rowContains reports whether any indexed column of row contains
// filterText as a case-folded substring. This is the verification ground
// truth spec.md §4.4 requires both for the full-scan fallback and for
// trigram-candidate verification.
func rowContains(cols []*Column, data []columnData, row int, filterText string) bool {
	needle := asciiLower(filterText)
	for i, c := range cols {
		if !c.Indexed {
			continue
		}
		if containsFold(data[i].rawString(row), needle) {
			return true
		}
	}
	return false
}

func containsFold(haystack, lowerNeedle string) bool {
	return indexFold(haystack, lowerNeedle) >= 0
}

func indexFold(haystack, lowerNeedle string) int {
	lowerHaystack := asciiLower(haystack)
	n := len(lowerNeedle)
	if n == 0 {
		return 0
	}
	for i := 0; i+n <= len(lowerHaystack); i++ {
		if lowerHaystack[i:i+n] == lowerNeedle {
			return i
		}
	}
	return -1
}

// sortView stably sorts view in place by the given column and direction.
// Ties preserve row-index order because the seed is always ascending and
// sort.SliceStable is used regardless of direction (spec.md §4.4 step 3,
// §8 P2/scenario 6): a comparator that is simply reversed for Desc, fed
// to a stable sort, keeps equal-valued rows in their original relative
// (ascending row-index) order under both directions.
func sortView(view []int, col int, dir SortDir, cols []*Column, data []columnData) {
	colType := cols[col].Type
	less := func(i, j int) bool {
		a, b := view[i], view[j]
		var cmp int
		if colType == TypeString {
			cmp = compareStrings(data[col].rawString(a), data[col].rawString(b))
		} else {
			cmp = compareFloats(data[col].rawNumber(a), data[col].rawNumber(b))
		}
		if dir == SortDesc {
			cmp = -cmp
		}
		return cmp < 0
	}
	sort.SliceStable(view, less)
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// compareFloats implements spec.md §4.4 step 3's numeric ordering: NaN
// compares equal to NaN and greater than any non-NaN value, so NaNs sort
// to the end under Asc and to the start under Desc (via the comparator's
// sign flip above).
func compareFloats(a, b float64) int {
	aNaN, bNaN := isNaN(a), isNaN(b)
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return 1
	case bNaN:
		return -1
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func isNaN(f float64) bool { return f != f }
