package store

import "strings"

// trigramIndex is an inverted index from a 3-byte, ASCII-lowercased
// window of "indexed text" to the set of row indices whose current
// indexed text contains that window (spec.md §4.2).
//
// Posting lists are Go maps used as sets (map[int]struct{}), not sorted
// slices: remove must be O(1) per trigram and search must dedupe via set
// intersection without a final sort/unique pass (spec.md §9, and the
// pack's own trigram index in standardbeagle-lci/internal/core/trigram.go
// makes the same call for its ASCII fast path, there via offset lists
// instead of sets because it needs match *locations*; GridStore only ever
// needs row membership, so a set is both simpler and sufficient).
type trigramIndex struct {
	postings map[[3]byte]map[int]struct{}
}

func newTrigramIndex() *trigramIndex {
	return &trigramIndex{postings: make(map[[3]byte]map[int]struct{})}
}

// trigramsOf emits every 3-byte window of the ASCII-lowercased bytes of
// text. Inputs shorter than 3 bytes produce none. Folding is bytewise
// ASCII-only — no Unicode normalization — by design (spec.md §4.2, §9):
// the index is a candidate generator, not ground truth.
func trigramsOf(text string) [][3]byte {
	if len(text) < 3 {
		return nil
	}
	lower := asciiLower(text)
	out := make([][3]byte, 0, len(lower)-2)
	for i := 0; i+3 <= len(lower); i++ {
		out = append(out, [3]byte{lower[i], lower[i+1], lower[i+2]})
	}
	return out
}

func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// add inserts row into the posting list of every trigram of text.
// Duplicate trigrams within one row collapse via set semantics: adding
// the same trigram for the same row twice is idempotent.
func (t *trigramIndex) add(row int, text string) {
	for _, tg := range trigramsOf(text) {
		set, ok := t.postings[tg]
		if !ok {
			set = make(map[int]struct{})
			t.postings[tg] = set
		}
		set[row] = struct{}{}
	}
}

// remove deletes row from the posting list of every trigram of text.
// Empty posting lists are left in place rather than deleted (spec.md §5:
// avoids repeated hashmap churn on columns that update frequently).
func (t *trigramIndex) remove(row int, text string) {
	for _, tg := range trigramsOf(text) {
		if set, ok := t.postings[tg]; ok {
			delete(set, row)
		}
	}
}

// update is the only correct way to move a row from old text to new
// text: a naive diff of the two trigram sets would be wrong whenever a
// trigram is shared by both (it must stay), so this always does a full
// remove(old) + add(new) instead (spec.md §4.2).
func (t *trigramIndex) update(row int, oldText, newText string) {
	if oldText == newText {
		return
	}
	t.remove(row, oldText)
	t.add(row, newText)
}

// search returns the row indices whose indexed text contains every
// trigram of query. Queries under 3 bytes are "too short for trigram
// pruning" and return an empty, non-nil candidate set — callers (the
// view materializer) are expected to recognize this length and fall back
// to a full scan rather than treat it as "no matches" (spec.md §4.4 step
// 2). A query trigram absent from the index also yields an empty result,
// since intersection with an empty set is empty.
func (t *trigramIndex) search(query string) map[int]struct{} {
	tgs := trigramsOf(query)
	if len(tgs) == 0 {
		return map[int]struct{}{}
	}

	var result map[int]struct{}
	for _, tg := range tgs {
		set, ok := t.postings[tg]
		if !ok || len(set) == 0 {
			return map[int]struct{}{}
		}
		if result == nil {
			result = make(map[int]struct{}, len(set))
			for row := range set {
				result[row] = struct{}{}
			}
			continue
		}
		for row := range result {
			if _, ok := set[row]; !ok {
				delete(result, row)
			}
		}
		if len(result) == 0 {
			return result
		}
	}
	return result
}

func (t *trigramIndex) clear() {
	t.postings = make(map[[3]byte]map[int]struct{})
}

// postingCount is a read-only diagnostic (SPEC_FULL.md Stats()): the
// number of distinct trigrams currently tracked, empty lists included.
func (t *trigramIndex) postingCount() int {
	return len(t.postings)
}

// indexedText builds the indexed text of a row: the space-joined
// concatenation, in column-declaration order, of the string values of
// every indexed column (spec.md §3).
func indexedText(cols []*Column, data []columnData, row int) string {
	parts := make([]string, 0, len(cols))
	for i, c := range cols {
		if !c.Indexed {
			continue
		}
		parts = append(parts, data[i].rawString(row))
	}
	return strings.Join(parts, " ")
}
