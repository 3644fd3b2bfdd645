// Package catalog introspects a live Postgres schema for the column
// list and primary-key columns of the tables gridstore ingests from. It
// gives internal/ingest/lineage a Catalog to resolve unqualified column
// references against, and gives internal/ingest the column order needed
// to derive a store.Column schema from a table name.
package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Table is one introspected table or view: its columns in ordinal order
// and its primary-key column names, in declared order.
type Table struct {
	Schema  string
	Name    string
	Columns []string
	PK      []string
}

// Catalog is the minimal interface internal/ingest/lineage depends on —
// a Postgres catalog is one implementation, a static fixture (see
// internal/ingest/lineage/fixture.go) is another.
type Catalog interface {
	Columns(qualified string) ([]string, bool)
	PrimaryKeys(qualified string) ([]string, bool)
}

// DBCatalog is a thread-safe, refreshable introspector backed by
// information_schema. Refresh recomputes a checksum
// over the snapshot so callers can detect schema drift cheaply.
type DBCatalog struct {
	pool *pgxpool.Pool

	mu       sync.RWMutex
	tables   map[string]*Table
	checksum string
}

func New(pool *pgxpool.Pool) *DBCatalog {
	return &DBCatalog{pool: pool, tables: make(map[string]*Table)}
}

// Refresh re-introspects every user table/view across all non-system
// schemas and rebuilds the snapshot if it changed. It is safe to call
// repeatedly from a polling goroutine.
func (c *DBCatalog) Refresh(ctx context.Context) error {
	tables, err := c.introspect(ctx)
	if err != nil {
		return fmt.Errorf("catalog refresh: %w", err)
	}

	sum := checksumOf(tables)

	c.mu.Lock()
	defer c.mu.Unlock()
	if sum == c.checksum {
		return nil
	}
	c.tables = tables
	c.checksum = sum
	return nil
}

func (c *DBCatalog) Checksum() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.checksum
}

// Columns implements Catalog.
func (c *DBCatalog) Columns(qualified string) ([]string, bool) {
	t, ok := c.lookup(qualified)
	if !ok {
		return nil, false
	}
	return append([]string(nil), t.Columns...), true
}

// PrimaryKeys implements Catalog.
func (c *DBCatalog) PrimaryKeys(qualified string) ([]string, bool) {
	t, ok := c.lookup(qualified)
	if !ok {
		return nil, false
	}
	return append([]string(nil), t.PK...), true
}

func (c *DBCatalog) lookup(qualified string) (*Table, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if t, ok := c.tables[qual(qualified)]; ok {
		return t, true
	}
	// fall back to a bare table name matching any schema, the way
	// pg_lineage's fixture catalog does for unqualified references.
	for k, t := range c.tables {
		if strings.HasSuffix(k, "."+qualified) {
			return t, true
		}
	}
	return nil, false
}

func qual(s string) string {
	if strings.Contains(s, ".") {
		return s
	}
	return "public." + s
}

func (c *DBCatalog) introspect(ctx context.Context) (map[string]*Table, error) {
	colRows, err := c.pool.Query(ctx, `
		SELECT table_schema, table_name, column_name
		FROM information_schema.columns
		WHERE table_schema NOT IN ('pg_catalog', 'information_schema')
		ORDER BY table_schema, table_name, ordinal_position`)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer colRows.Close()

	tables := make(map[string]*Table)
	for colRows.Next() {
		var schema, name, col string
		if err := colRows.Scan(&schema, &name, &col); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		key := schema + "." + name
		t, ok := tables[key]
		if !ok {
			t = &Table{Schema: schema, Name: name}
			tables[key] = t
		}
		t.Columns = append(t.Columns, col)
	}
	if err := colRows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration (columns): %w", err)
	}

	pkRows, err := c.pool.Query(ctx, `
		SELECT kcu.table_schema, kcu.table_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		  AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
		ORDER BY kcu.table_schema, kcu.table_name, kcu.ordinal_position`)
	if err != nil {
		return nil, fmt.Errorf("query primary keys: %w", err)
	}
	defer pkRows.Close()

	for pkRows.Next() {
		var schema, name, col string
		if err := pkRows.Scan(&schema, &name, &col); err != nil {
			return nil, fmt.Errorf("scan pk: %w", err)
		}
		if t, ok := tables[schema+"."+name]; ok {
			t.PK = append(t.PK, col)
		}
	}
	if err := pkRows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration (pkeys): %w", err)
	}

	return tables, nil
}

func checksumOf(tables map[string]*Table) string {
	keys := make([]string, 0, len(tables))
	for k := range tables {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]*Table, len(keys))
	for i, k := range keys {
		ordered[i] = tables[k]
	}
	b, _ := json.Marshal(ordered)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
