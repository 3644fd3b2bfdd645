package store

import "testing"

func TestIDMapInsertAndLookup(t *testing.T) {
	m := newIDMap()
	if err := m.insert("a", 0); err != nil {
		t.Fatalf("insert: %v", err)
	}
	row, err := m.lookup("a")
	if err != nil || row != 0 {
		t.Fatalf("lookup = %d, %v; want 0, nil", row, err)
	}
}

func TestIDMapDuplicateInsert(t *testing.T) {
	m := newIDMap()
	_ = m.insert("a", 0)
	err := m.insert("a", 1)
	if !IsKind(err, KindDuplicateID) {
		t.Fatalf("err = %v, want DuplicateId", err)
	}
}

func TestIDMapLookupUnknown(t *testing.T) {
	m := newIDMap()
	_, err := m.lookup("ghost")
	if !IsKind(err, KindNotFound) {
		t.Fatalf("err = %v, want NotFound", err)
	}
}

// idMap never forgets an ID once inserted, even if the caller treats the
// underlying row as tombstoned elsewhere: re-inserting the same ID must
// keep failing.
func TestIDMapNoResurrection(t *testing.T) {
	m := newIDMap()
	_ = m.insert("a", 0)
	// Caller-side "delete" doesn't touch idMap at all; insert must still
	// reject reuse of the same ID string.
	if err := m.insert("a", 5); !IsKind(err, KindDuplicateID) {
		t.Fatalf("err = %v, want DuplicateId", err)
	}
}
