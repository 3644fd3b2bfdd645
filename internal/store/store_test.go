package store

import (
	"reflect"
	"testing"
)

func quoteSchema() []Column {
	return []Column{
		{Name: "id", Type: TypeString, PrimaryKey: true},
		{Name: "sym", Type: TypeString, Indexed: true},
		{Name: "px", Type: TypeNumber},
	}
}

func mustInsert(t *testing.T, s *Store, row Row) int {
	t.Helper()
	idx, err := s.Insert(row)
	if err != nil {
		t.Fatalf("Insert(%v): %v", row, err)
	}
	return idx
}

func idsOf(t *testing.T, s *Store, rows []Row) []string {
	t.Helper()
	ids := make([]string, len(rows))
	for i, r := range rows {
		v, _ := r["id"].(string)
		ids[i] = v
	}
	return ids
}

// scenario 1: filter "app" + sort by sym asc -> ["c"] only. spec.md §8
// scenario 1 states this should yield ["a","c"], but that is inconsistent
// with its own §4.2/§4.4 substring semantics: row a's sym "AAPL" folds to
// "aapl", whose trigrams are {aap, apl} with no "app" among them, so it is
// never a trigram candidate, and "aapl" does not contain "app" as a
// substring either, so it would fail verification even if it were a
// candidate. No code path admits row a under a "contains app" filter; see
// DESIGN.md for the reconciliation of this spec/example discrepancy.
func TestScenario1_FilterAndSort(t *testing.T) {
	s, err := New(quoteSchema())
	if err != nil {
		t.Fatal(err)
	}
	mustInsert(t, s, Row{"id": "a", "sym": "AAPL", "px": 150.0})
	mustInsert(t, s, Row{"id": "b", "sym": "AMZN", "px": 3400.0})
	mustInsert(t, s, Row{"id": "c", "sym": "APPLESAUCE", "px": 2.0})

	s.SetFilter("app")
	if err := s.SetSort("sym", SortAsc); err != nil {
		t.Fatal(err)
	}

	if got := s.ViewCount(); got != 1 {
		t.Fatalf("ViewCount() = %d, want 1", got)
	}
	rows := s.GetVisibleRows(0, 1)
	got := idsOf(t, s, rows)
	want := []string{"c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ids = %v, want %v", got, want)
	}
}

// scenario 2: filter "zz" -> viewCount 0
func TestScenario2_NoMatches(t *testing.T) {
	s, _ := New(quoteSchema())
	mustInsert(t, s, Row{"id": "a", "sym": "AAPL", "px": 150.0})
	mustInsert(t, s, Row{"id": "b", "sym": "AMZN", "px": 3400.0})
	mustInsert(t, s, Row{"id": "c", "sym": "APPLESAUCE", "px": 2.0})

	s.SetFilter("zz")
	if got := s.ViewCount(); got != 0 {
		t.Fatalf("ViewCount() = %d, want 0", got)
	}
}

// scenario 3: filter "a" (len < 3) -> full scan fallback, row-index order
func TestScenario3_ShortFilterFallback(t *testing.T) {
	s, _ := New(quoteSchema())
	mustInsert(t, s, Row{"id": "a", "sym": "AAPL", "px": 150.0})
	mustInsert(t, s, Row{"id": "b", "sym": "AMZN", "px": 3400.0})
	mustInsert(t, s, Row{"id": "c", "sym": "APPLESAUCE", "px": 2.0})

	s.SetFilter("a")
	rows := s.GetVisibleRows(0, s.ViewCount())
	got := idsOf(t, s, rows)
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ids = %v, want %v", got, want)
	}
}

// scenario 4: update clears stale trigrams
func TestScenario4_UpdateInvalidatesOldTrigrams(t *testing.T) {
	s, _ := New(quoteSchema())
	mustInsert(t, s, Row{"id": "a", "sym": "AAPL", "px": 150.0})
	mustInsert(t, s, Row{"id": "b", "sym": "AMZN", "px": 3400.0})
	mustInsert(t, s, Row{"id": "c", "sym": "APPLESAUCE", "px": 2.0})

	if err := s.Update("a", Row{"sym": "ZZZZ"}); err != nil {
		t.Fatal(err)
	}

	s.SetFilter("app")
	rows := s.GetVisibleRows(0, s.ViewCount())
	got := idsOf(t, s, rows)
	want := []string{"c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ids = %v, want %v (stale trigram leaked)", got, want)
	}
}

// scenario 5: re-inserting a deleted ID fails with DuplicateId (P4)
func TestScenario5_DeleteThenReinsertDuplicates(t *testing.T) {
	s, _ := New(quoteSchema())
	mustInsert(t, s, Row{"id": "a", "sym": "AAPL", "px": 150.0})
	mustInsert(t, s, Row{"id": "b", "sym": "AMZN", "px": 3400.0})
	mustInsert(t, s, Row{"id": "c", "sym": "APPLESAUCE", "px": 2.0})

	if _, err := s.Insert(Row{"id": "d", "sym": "AAPL"}); err != nil {
		t.Fatalf("first insert of d: %v", err)
	}
	if err := s.Delete("d"); err != nil {
		t.Fatalf("delete d: %v", err)
	}
	_, err := s.Insert(Row{"id": "d", "sym": "AAPL"})
	if !IsKind(err, KindDuplicateID) {
		t.Fatalf("re-insert after delete: err = %v, want DuplicateId", err)
	}
}

// scenario 6: numeric sort stability with NaN
func TestScenario6_NumericSortStability(t *testing.T) {
	schema := []Column{
		{Name: "id", Type: TypeString, PrimaryKey: true},
		{Name: "px", Type: TypeNumber},
	}
	s, _ := New(schema)
	mustInsert(t, s, Row{"id": "x"}) // px absent -> NaN
	mustInsert(t, s, Row{"id": "y", "px": 5.0})
	mustInsert(t, s, Row{"id": "z", "px": 5.0})

	if err := s.SetSort("px", SortAsc); err != nil {
		t.Fatal(err)
	}
	rows := s.GetVisibleRows(0, 3)
	got := idsOf(t, s, rows)
	want := []string{"y", "z", "x"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Asc order = %v, want %v", got, want)
	}

	if err := s.SetSort("px", SortDesc); err != nil {
		t.Fatal(err)
	}
	rows = s.GetVisibleRows(0, 3)
	got = idsOf(t, s, rows)
	want = []string{"x", "y", "z"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Desc order = %v, want %v", got, want)
	}
}

func TestNewRejectsBadSchema(t *testing.T) {
	cases := []struct {
		name   string
		schema []Column
	}{
		{"empty", nil},
		{"no pk", []Column{{Name: "a", Type: TypeString}}},
		{"two pks", []Column{
			{Name: "a", Type: TypeString, PrimaryKey: true},
			{Name: "b", Type: TypeString, PrimaryKey: true},
		}},
		{"numeric pk", []Column{{Name: "a", Type: TypeNumber, PrimaryKey: true}}},
		{"duplicate names", []Column{
			{Name: "a", Type: TypeString, PrimaryKey: true},
			{Name: "a", Type: TypeNumber},
		}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := New(c.schema); !IsKind(err, KindSchemaError) {
				t.Fatalf("New(%s): err = %v, want SchemaError", c.name, err)
			}
		})
	}
}

func TestInsertMissingID(t *testing.T) {
	s, _ := New(quoteSchema())
	if _, err := s.Insert(Row{"sym": "AAPL"}); !IsKind(err, KindMissingID) {
		t.Fatalf("err = %v, want MissingId", err)
	}
	if _, err := s.Insert(Row{"id": "", "sym": "AAPL"}); !IsKind(err, KindMissingID) {
		t.Fatalf("empty id: err = %v, want MissingId", err)
	}
	if _, err := s.Insert(Row{"id": 5, "sym": "AAPL"}); !IsKind(err, KindMissingID) {
		t.Fatalf("non-string id: err = %v, want MissingId", err)
	}
}

func TestInsertDuplicateID(t *testing.T) {
	s, _ := New(quoteSchema())
	mustInsert(t, s, Row{"id": "a", "sym": "AAPL"})
	if _, err := s.Insert(Row{"id": "a", "sym": "AMZN"}); !IsKind(err, KindDuplicateID) {
		t.Fatalf("err = %v, want DuplicateId", err)
	}
}

// P5: missing field on insert -> null-equivalent; NaN round-trips to nil.
func TestNullSemantics(t *testing.T) {
	s, _ := New(quoteSchema())
	mustInsert(t, s, Row{"id": "a"})

	v, ok := s.GetCell(0, "sym")
	if !ok || v != "" {
		t.Fatalf("GetCell(sym) = %v, %v; want \"\", true", v, ok)
	}
	v, ok = s.GetCell(0, "px")
	if !ok || v != nil {
		t.Fatalf("GetCell(px) = %v, %v; want nil, true", v, ok)
	}

	_, ok = s.GetCell(0, "nope")
	if ok {
		t.Fatalf("GetCell(unknown column) ok = true, want false")
	}
}

// P6: update(id, {}) doesn't change stored values.
func TestUpdateEmptyChangesIsNoop(t *testing.T) {
	s, _ := New(quoteSchema())
	mustInsert(t, s, Row{"id": "a", "sym": "AAPL", "px": 150.0})

	if err := s.Update("a", Row{}); err != nil {
		t.Fatal(err)
	}
	v, _ := s.GetCell(0, "sym")
	if v != "AAPL" {
		t.Fatalf("sym = %v, want AAPL", v)
	}
	v, _ = s.GetCell(0, "px")
	if v != 150.0 {
		t.Fatalf("px = %v, want 150", v)
	}
}

func TestUpdateRejectsPrimaryKeyMutation(t *testing.T) {
	s, _ := New(quoteSchema())
	mustInsert(t, s, Row{"id": "a", "sym": "AAPL"})
	err := s.Update("a", Row{"id": "z"})
	if !IsKind(err, KindTypeError) {
		t.Fatalf("err = %v, want TypeError", err)
	}
	// id unchanged, original id still resolves.
	if _, err := s.ids.lookup("a"); err != nil {
		t.Fatalf("original id no longer resolves: %v", err)
	}
}

func TestUpdateUnknownID(t *testing.T) {
	s, _ := New(quoteSchema())
	if err := s.Update("ghost", Row{"sym": "X"}); !IsKind(err, KindNotFound) {
		t.Fatalf("err = %v, want NotFound", err)
	}
}

func TestBatchUpdateSkipsUnknownIDs(t *testing.T) {
	s, _ := New(quoteSchema())
	mustInsert(t, s, Row{"id": "a", "sym": "AAPL", "px": 1.0})
	mustInsert(t, s, Row{"id": "b", "sym": "AMZN", "px": 2.0})

	n := s.BatchUpdate([]IDChange{
		{ID: "a", Changes: Row{"px": 9.0}},
		{ID: "ghost", Changes: Row{"px": 9.0}},
		{ID: "b", Changes: Row{"px": 8.0}},
	})
	if n != 2 {
		t.Fatalf("applied = %d, want 2", n)
	}
	v, _ := s.GetCell(0, "px")
	if v != 9.0 {
		t.Fatalf("a.px = %v, want 9", v)
	}
}

func TestBatchUpdateNoopWhenNoneApplied(t *testing.T) {
	s, _ := New(quoteSchema())
	mustInsert(t, s, Row{"id": "a", "sym": "AAPL"})
	s.SetFilter("aapl")
	_ = s.ensureView() // materialize

	n := s.BatchUpdate([]IDChange{{ID: "ghost", Changes: Row{"sym": "X"}}})
	if n != 0 {
		t.Fatalf("applied = %d, want 0", n)
	}
	if s.view.cachedView == nil {
		t.Fatalf("cache was invalidated despite no applied updates")
	}
}

func TestDeleteUnknownIDAndDoubleDelete(t *testing.T) {
	s, _ := New(quoteSchema())
	mustInsert(t, s, Row{"id": "a", "sym": "AAPL"})

	if err := s.Delete("ghost"); !IsKind(err, KindNotFound) {
		t.Fatalf("err = %v, want NotFound", err)
	}
	if err := s.Delete("a"); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := s.Delete("a"); !IsKind(err, KindNotFound) {
		t.Fatalf("second delete: err = %v, want NotFound", err)
	}
	if s.RowCount() != 0 {
		t.Fatalf("RowCount() = %d, want 0", s.RowCount())
	}
}

// P3: two back-to-back materializations without mutation are pointwise
// equal; a no-op SetFilter does not invalidate.
func TestCachePurity(t *testing.T) {
	s, _ := New(quoteSchema())
	mustInsert(t, s, Row{"id": "a", "sym": "AAPL"})
	mustInsert(t, s, Row{"id": "b", "sym": "AMZN"})

	s.SetFilter("a")
	v1 := s.ensureView()
	s.SetFilter("a") // same filter text: must not invalidate
	v2 := s.ensureView()

	if &v1[0] != &v2[0] {
		t.Fatalf("no-op SetFilter invalidated the cache (different backing slices)")
	}
	if !reflect.DeepEqual(v1, v2) {
		t.Fatalf("v1 = %v, v2 = %v; want pointwise equal", v1, v2)
	}
}

func TestLoadRowsPartialPrefixOnError(t *testing.T) {
	s, _ := New(quoteSchema())
	rows := []Row{
		{"id": "a", "sym": "AAPL"},
		{"id": "b", "sym": "AMZN"},
		{"sym": "NOPE"}, // missing id
		{"id": "d", "sym": "DDD"},
	}
	n, err := s.LoadRows(rows)
	if !IsKind(err, KindMissingID) {
		t.Fatalf("err = %v, want MissingId", err)
	}
	if n != 2 {
		t.Fatalf("n = %d, want 2", n)
	}
	if s.RowCount() != 2 {
		t.Fatalf("RowCount() = %d, want 2", s.RowCount())
	}
}

func TestViewIndicesClamping(t *testing.T) {
	s, _ := New(quoteSchema())
	mustInsert(t, s, Row{"id": "a", "sym": "AAPL"})
	mustInsert(t, s, Row{"id": "b", "sym": "AMZN"})

	if got := s.ViewIndices(5, 10); len(got) != 0 {
		t.Fatalf("out-of-range start: got %v, want empty", got)
	}
	if got := s.ViewIndices(0, 10); len(got) != 2 {
		t.Fatalf("clamp count: got %v, want len 2", got)
	}
}

func TestGetRowsOutOfRange(t *testing.T) {
	s, _ := New(quoteSchema())
	mustInsert(t, s, Row{"id": "a", "sym": "AAPL"})

	rows := s.GetRows([]uint32{99})
	if len(rows) != 1 || len(rows[0]) != 0 {
		t.Fatalf("GetRows(oob) = %v, want single empty record", rows)
	}
}
