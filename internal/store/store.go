// Package store implements GridStore: an in-memory, columnar,
// single-table engine with a trigram-indexed substring filter and a
// materialized-view cache over filter + sort (spec.md §1–§9). It is the
// sole subject of spec.md and is deliberately free of third-party
// dependencies — see DESIGN.md for why every ambient concern that would
// normally reach for a library (logging, config, transport) stays out of
// this package entirely.
package store

// Row is the host's dynamically-keyed input record (spec.md §6): a
// record keyed by column name, with missing keys becoming type-
// appropriate null and extra keys ignored.
type Row map[string]any

// Store is the GridStore façade (spec.md §4.5): the only surface the
// host sees. All operations are single-threaded and run to completion on
// the caller's goroutine (spec.md §5) — Store performs no internal
// locking and must not be shared across goroutines without external
// exclusion.
type Store struct {
	columns        []*Column
	colIndexByName map[string]int
	pkIndex        int

	data    []columnData
	deleted []bool
	live    int

	ids      *idMap
	trigrams *trigramIndex
	view     *viewState
}

// New validates schema and constructs an empty Store (spec.md §4.5).
func New(schema []Column) (*Store, error) {
	pkIndex, err := validateSchema(schema)
	if err != nil {
		return nil, err
	}

	cols := make([]*Column, len(schema))
	data := make([]columnData, len(schema))
	byName := make(map[string]int, len(schema))
	for i, c := range schema {
		col := c
		cols[i] = &col
		data[i] = newColumnData(col.Type)
		byName[col.Name] = i
	}

	return &Store{
		columns:        cols,
		colIndexByName: byName,
		pkIndex:        pkIndex,
		data:           data,
		ids:            newIDMap(),
		trigrams:       newTrigramIndex(),
		view:           newViewState(),
	}, nil
}

// ColumnNames returns column names in declaration order (spec.md §4.5).
func (s *Store) ColumnNames() []string {
	names := make([]string, len(s.columns))
	for i, c := range s.columns {
		names[i] = c.Name
	}
	return names
}

// Schema returns read-only column metadata in declaration order
// (SPEC_FULL.md "Supplemented Features").
func (s *Store) Schema() []ColumnDescriptor {
	out := make([]ColumnDescriptor, len(s.columns))
	for i, c := range s.columns {
		out[i] = ColumnDescriptor{Name: c.Name, Type: c.Type, PrimaryKey: c.PrimaryKey, Indexed: c.Indexed}
	}
	return out
}

// RowCount returns the number of live (non-tombstoned) rows.
func (s *Store) RowCount() int { return s.live }

// LoadRows bulk-inserts rows, equivalent to iterating Insert, and
// pre-reserves column capacity. It is not transactional: on the first
// row error, rows already inserted remain in place and n reports how
// many succeeded before the failure (spec.md §4.5, §7).
func (s *Store) LoadRows(rows []Row) (n int, err error) {
	for _, d := range s.data {
		d.reserve(len(rows))
	}
	for _, row := range rows {
		if _, err := s.Insert(row); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Insert appends row as a new live row and returns its row index
// (spec.md §4.5).
func (s *Store) Insert(row Row) (int, error) {
	pkCol := s.columns[s.pkIndex]
	idVal, ok := row[pkCol.Name].(string)
	if !ok || idVal == "" {
		return 0, newError(KindMissingID, "row missing primary key %q", pkCol.Name)
	}

	rowIndex := len(s.deleted)
	if err := s.ids.insert(idVal, rowIndex); err != nil {
		return 0, err
	}

	for i, c := range s.columns {
		s.data[i].pushHostValue(row[c.Name])
	}
	s.deleted = append(s.deleted, false)
	s.live++

	s.trigrams.add(rowIndex, indexedText(s.columns, s.data, rowIndex))
	s.view.invalidate()
	return rowIndex, nil
}

// Update applies changes to the row identified by id (spec.md §4.5).
// Unknown column keys are silently ignored; a change that names the
// primary-key column is rejected with KindTypeError (the
// primary key is immutable — see DESIGN.md for the open-question
// resolution this implements).
func (s *Store) Update(id string, changes Row) error {
	row, err := s.ids.lookup(id)
	if err != nil {
		return err
	}

	pkName := s.columns[s.pkIndex].Name
	if _, touchesPK := changes[pkName]; touchesPK {
		return newError(KindTypeError, "primary key column %q must not be mutated", pkName)
	}

	before := indexedText(s.columns, s.data, row)
	s.applyChanges(row, changes, pkName)
	after := indexedText(s.columns, s.data, row)

	s.trigrams.update(row, before, after)
	s.view.invalidate()
	return nil
}

// applyChanges writes every key in changes that names a known column
// other than the primary key (spec.md §4.5's "id key inside changes is
// ignored" — generalized to "the primary key column is ignored/rejected
// by name", since the primary key need not literally be called "id").
func (s *Store) applyChanges(row int, changes Row, pkName string) {
	for key, val := range changes {
		if key == pkName {
			continue
		}
		idx, ok := s.colIndexByName[key]
		if !ok {
			continue
		}
		s.data[idx].setHostValue(row, val)
	}
}

// IDChange is one entry of a BatchUpdate call.
type IDChange struct {
	ID      string
	Changes Row
}

// BatchUpdate applies each update whose ID is known, skipping unknown
// IDs without error, and returns how many were applied (spec.md §4.5,
// §7). Unlike Update, a change that names the primary-key column is
// silently dropped rather than aborting the whole item — batch updates
// are explicitly tolerant of malformed entries (spec.md §7).
func (s *Store) BatchUpdate(updates []IDChange) int {
	applied := 0
	for _, u := range updates {
		row, err := s.ids.lookup(u.ID)
		if err != nil {
			continue
		}
		pkName := s.columns[s.pkIndex].Name
		before := indexedText(s.columns, s.data, row)
		s.applyChanges(row, u.Changes, pkName)
		after := indexedText(s.columns, s.data, row)
		s.trigrams.update(row, before, after)
		applied++
	}
	if applied > 0 {
		s.view.invalidate()
	}
	return applied
}

// Delete tombstones the row identified by id, removing it from the
// trigram index using its current indexed text (spec.md §4.5). Deleting
// an already-deleted row fails with KindNotFound even though the ID
// lookup itself still succeeds (spec.md §4.5, §9).
func (s *Store) Delete(id string) error {
	row, err := s.ids.lookup(id)
	if err != nil {
		return err
	}
	if s.deleted[row] {
		return newError(KindNotFound, "id %q already deleted", id)
	}

	s.trigrams.remove(row, indexedText(s.columns, s.data, row))
	s.deleted[row] = true
	s.live--
	s.view.invalidate()
	return nil
}

// SetFilter sets the pending filter text (case sensitivity is folded
// internally; callers pass the raw query). A no-op if text already
// equals the current filter (spec.md §4.4).
func (s *Store) SetFilter(text string) {
	s.view.setFilter(text)
}

// ClearFilter is equivalent to SetFilter("").
func (s *Store) ClearFilter() {
	s.view.clearFilter()
}

// SetSort sets the pending sort column and direction. Passing SortNone
// is equivalent to ClearSort (spec.md §6). Returns KindNotFound if
// column is not a known column name.
func (s *Store) SetSort(column string, dir SortDir) error {
	if dir == SortNone {
		s.view.clearSort()
		return nil
	}
	idx, ok := s.colIndexByName[column]
	if !ok {
		return newError(KindNotFound, "unknown sort column %q", column)
	}
	s.view.setSort(idx, dir)
	return nil
}

// ClearSort clears the pending sort configuration.
func (s *Store) ClearSort() {
	s.view.clearSort()
}

// ensureView is the shared materialization entry point used by every
// read operation below.
func (s *Store) ensureView() []int {
	return s.view.ensureView(s.deleted, s.columns, s.data, s.trigrams)
}

// ViewCount returns the number of rows in the current visible view,
// materializing it if necessary.
func (s *Store) ViewCount() int {
	return len(s.ensureView())
}

// ViewIndices returns up to count row indices from the current view
// starting at start, clamped to the view's length (spec.md §4.5).
func (s *Store) ViewIndices(start, count int) []uint32 {
	view := s.ensureView()
	if start < 0 || start >= len(view) || count <= 0 {
		return []uint32{}
	}
	end := start + count
	if end > len(view) {
		end = len(view)
	}
	out := make([]uint32, end-start)
	for i, row := range view[start:end] {
		out[i] = uint32(row)
	}
	return out
}

// GetRows projects each row index to a host record. Out-of-range indices
// project to an empty record (spec.md §4.5).
func (s *Store) GetRows(indices []uint32) []Row {
	out := make([]Row, len(indices))
	for i, idx := range indices {
		out[i] = s.projectRow(int(idx))
	}
	return out
}

// GetVisibleRows fuses ViewIndices + GetRows (spec.md §4.5).
func (s *Store) GetVisibleRows(start, count int) []Row {
	return s.GetRows(s.ViewIndices(start, count))
}

func (s *Store) projectRow(row int) Row {
	if row < 0 || row >= len(s.deleted) {
		return Row{}
	}
	out := make(Row, len(s.columns))
	for i, c := range s.columns {
		out[c.Name] = s.data[i].hostValue(row)
	}
	return out
}

// GetCell is a null-aware single-cell projection. An unknown column name
// reports ok == false (the host's "undefined" equivalent); an
// out-of-range row reports the column's null value (spec.md §4.5).
func (s *Store) GetCell(row int, column string) (value any, ok bool) {
	idx, known := s.colIndexByName[column]
	if !known {
		return nil, false
	}
	return s.data[idx].hostValue(row), true
}

// Stats is a read-only diagnostic snapshot (SPEC_FULL.md "Supplemented
// Features"): row/trigram counts for observability, not part of the
// query surface.
type Stats struct {
	RowCount       int
	TombstoneCount int
	TrigramCount   int
}

func (s *Store) StatsSnapshot() Stats {
	return Stats{
		RowCount:       s.live,
		TombstoneCount: len(s.deleted) - s.live,
		TrigramCount:   s.trigrams.postingCount(),
	}
}
