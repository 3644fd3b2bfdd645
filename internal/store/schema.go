package store

// Column describes one column of a GridStore in declaration order
// (spec.md §3). Exactly one column across a schema may have
// PrimaryKey == true, and it must be of TypeString.
type Column struct {
	Name       string
	Type       ColumnType
	PrimaryKey bool
	// Indexed is only meaningful for string columns: it selects whether
	// the column participates in the trigram index and in filter
	// scanning (spec.md §3).
	Indexed bool
}

// ColumnDescriptor is the read-only schema-introspection view returned by
// Store.Schema — the supplemented counterpart to columnNames() named in
// spec.md §4.5 (see SPEC_FULL.md, "Supplemented Features").
type ColumnDescriptor struct {
	Name       string
	Type       ColumnType
	PrimaryKey bool
	Indexed    bool
}

// validateSchema enforces spec.md §4.5's New() contract: at least one
// column, unique names, exactly one string primary key.
func validateSchema(cols []Column) (pkIndex int, err error) {
	if len(cols) == 0 {
		return 0, newError(KindSchemaError, "schema must declare at least one column")
	}

	seen := make(map[string]struct{}, len(cols))
	pkIndex = -1
	for i, c := range cols {
		if c.Name == "" {
			return 0, newError(KindSchemaError, "column %d has an empty name", i)
		}
		if _, dup := seen[c.Name]; dup {
			return 0, newError(KindSchemaError, "duplicate column name %q", c.Name)
		}
		seen[c.Name] = struct{}{}

		if c.PrimaryKey {
			if pkIndex != -1 {
				return 0, newError(KindSchemaError, "multiple primary key columns: %q and %q", cols[pkIndex].Name, c.Name)
			}
			if c.Type != TypeString {
				return 0, newError(KindSchemaError, "primary key column %q must be of type string", c.Name)
			}
			pkIndex = i
		}
	}
	if pkIndex == -1 {
		return 0, newError(KindSchemaError, "schema must declare exactly one primary key column")
	}
	return pkIndex, nil
}
