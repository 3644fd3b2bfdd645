package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	_ "github.com/lib/pq"
)

// OfflineCatalog is a one-shot introspector over database/sql + lib/pq,
// for callers that only have a libpq-style DSN and no pgxpool.Pool
// around (a CLI invocation, a cron job, a read replica reachable only
// over plain libpq). It builds the same Table snapshot DBCatalog does,
// via the same information_schema queries, but without
// DBCatalog's checksum-cached Refresh loop: callers that want a single
// snapshot use this, not a long-lived refresh goroutine.
type OfflineCatalog struct {
	tables map[string]*Table
}

// OpenOffline connects to dsn via lib/pq and introspects every
// user table/view across all non-system schemas.
func OpenOffline(ctx context.Context, dsn string) (*OfflineCatalog, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("offline catalog: open: %w", err)
	}
	defer db.Close()

	tables, err := introspectOffline(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("offline catalog: %w", err)
	}
	return &OfflineCatalog{tables: tables}, nil
}

// Columns implements Catalog.
func (c *OfflineCatalog) Columns(qualified string) ([]string, bool) {
	t, ok := c.lookup(qualified)
	if !ok {
		return nil, false
	}
	return append([]string(nil), t.Columns...), true
}

// PrimaryKeys implements Catalog.
func (c *OfflineCatalog) PrimaryKeys(qualified string) ([]string, bool) {
	t, ok := c.lookup(qualified)
	if !ok {
		return nil, false
	}
	return append([]string(nil), t.PK...), true
}

// Tables returns every introspected table, sorted by "schema.name", for
// a CLI to print.
func (c *OfflineCatalog) Tables() []*Table {
	keys := make([]string, 0, len(c.tables))
	for k := range c.tables {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]*Table, len(keys))
	for i, k := range keys {
		out[i] = c.tables[k]
	}
	return out
}

func (c *OfflineCatalog) lookup(qualified string) (*Table, bool) {
	if t, ok := c.tables[qual(qualified)]; ok {
		return t, true
	}
	for k, t := range c.tables {
		if len(k) > len(qualified) && k[len(k)-len(qualified)-1:] == "."+qualified {
			return t, true
		}
	}
	return nil, false
}

// introspectOffline mirrors DBCatalog.introspect's two-query shape
// exactly, over database/sql instead of pgx.
func introspectOffline(ctx context.Context, db *sql.DB) (map[string]*Table, error) {
	colRows, err := db.QueryContext(ctx, `
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

	pkRows, err := db.QueryContext(ctx, `
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
