// Package lineage rewrites the SELECT that seeds a gridstore so that
// rows coming back from a WAL change event can be matched to the row a
// GridStore already holds, and provides an offline/JSON-fixture variant
// of internal/ingest/catalog.Catalog for tests that don't want a live
// Postgres connection.
package lineage

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// FixtureCatalog implements catalog.Catalog from a static, JSON-backed
// table/column description instead of a live introspection query — the
// role internal/ingest/catalog.DBCatalog plays against a running
// database, FixtureCatalog plays against a checked-in snapshot.
type FixtureCatalog struct {
	tables map[string][]string
	pkeys  map[string][]string
}

func NewFixtureCatalog(tables, pkeys map[string][]string) *FixtureCatalog {
	return &FixtureCatalog{tables: tables, pkeys: pkeys}
}

// LoadFixtureCatalog reads a catalog previously written by ExportJSON.
func LoadFixtureCatalog(path string) (*FixtureCatalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog fixture: %w", err)
	}
	var data struct {
		Tables map[string][]string `json:"tables"`
		PKeys  map[string][]string `json:"pkeys"`
	}
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, fmt.Errorf("unmarshal catalog fixture: %w", err)
	}
	return &FixtureCatalog{tables: data.Tables, pkeys: data.PKeys}, nil
}

// ExportJSON dumps the catalog for later use by LoadFixtureCatalog.
func (c *FixtureCatalog) ExportJSON(path string) error {
	data := map[string]any{"tables": c.tables, "pkeys": c.pkeys}
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal catalog fixture: %w", err)
	}
	return os.WriteFile(path, b, 0o644)
}

func (c *FixtureCatalog) Columns(qualified string) ([]string, bool) {
	cols, ok := c.tables[qualified]
	return cols, ok
}

func (c *FixtureCatalog) PrimaryKeys(qualified string) ([]string, bool) {
	pks, ok := c.pkeys[qualified]
	return pks, ok
}

func (c *FixtureCatalog) Tables() []string {
	keys := make([]string, 0, len(c.tables))
	for k := range c.tables {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
