// Package ingest loads rows from Postgres into a gridstore Store and
// keeps it current by applying logical-replication WAL events as they
// arrive over db/stream's TCP sidecar (adapted from the original
// project's internal/wal consumer and internal/reactive partial-refresh
// pipeline, here driving store.Store mutations directly instead of
// re-broadcasting raw SQL rows to subscribed clients).
package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/colgrid/gridstore/internal/ingest/lineage"
	"github.com/colgrid/gridstore/internal/logutil"
	"github.com/colgrid/gridstore/internal/store"
)

// Source describes where a GridStore's rows come from: a SELECT over
// Postgres, keyed by the primary-key column the store uses for its own
// Column.PrimaryKey.
type Source struct {
	Pool     *pgxpool.Pool
	Query    string // e.g. "SELECT id, sym, px FROM public.quotes"
	Table    string // schema-qualified base table WAL events arrive for, e.g. "public.quotes"
	PKColumn string // column name (as returned by Query) that is the store's primary key
}

// Rewrite parses Source.Query and injects a primary-key projection using
// cat, so a future refetch can be scoped by WHERE on that column even
// when Query is a view or join rather than a bare table scan. No
// projection is added for a table whose primary-key column Query already
// selects. PKColumn itself is not checked against Query.
func (s *Source) Rewrite(cat lineage.Catalog) error {
	rewritten, _, err := lineage.RewriteInjectPKs(s.Query, cat)
	if err != nil {
		return fmt.Errorf("rewrite source query: %w", err)
	}
	s.Query = rewritten
	return nil
}

// LoadInto runs Query and bulk-loads every row into st via LoadRows.
func (s *Source) LoadInto(ctx context.Context, st *store.Store) (int, error) {
	rows, err := s.Pool.Query(ctx, s.Query)
	if err != nil {
		return 0, fmt.Errorf("ingest query: %w", err)
	}
	defer rows.Close()

	records, err := scanRows(rows)
	if err != nil {
		return 0, err
	}
	return st.LoadRows(records)
}

// refetchRow re-runs Query scoped to a single primary-key value, used to
// pull the current state of a row a WAL event reported as changed.
func (s *Source) refetchRow(ctx context.Context, pkVal any) (store.Row, bool, error) {
	sql := fmt.Sprintf("SELECT * FROM (%s) __gridstore_src WHERE %s = $1", s.Query, s.PKColumn)
	rows, err := s.Pool.Query(ctx, sql, pkVal)
	if err != nil {
		return nil, false, fmt.Errorf("refetch row: %w", err)
	}
	defer rows.Close()

	records, err := scanRows(rows)
	if err != nil {
		return nil, false, err
	}
	if len(records) == 0 {
		return nil, false, nil
	}
	return records[0], true, nil
}

func scanRows(rows pgx.Rows) ([]store.Row, error) {
	fields := rows.FieldDescriptions()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}

	var out []store.Row
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rec := make(store.Row, len(names))
		for i, name := range names {
			rec[name] = vals[i]
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration: %w", err)
	}
	return out, nil
}

// Change is one entry of the WAL wire envelope the db/stream sidecar
// forwards (schema, table, kind, and the row's key columns).
type Change struct {
	Schema  string `json:"schema"`
	Table   string `json:"table"`
	Kind    string `json:"kind"`
	OldKeys Keys   `json:"oldkeys"`
	NewKeys Keys   `json:"newkeys"`
}

type Keys struct {
	KeyNames  []string `json:"keynames"`
	KeyValues []any    `json:"keyvalues"`
}

type envelope struct {
	Change []Change `json:"change"`
}

// ChangeHook is invoked after a WAL change has been applied to Store,
// letting internal/api push a view-changed notification without
// internal/ingest importing the transport layer.
type ChangeHook func(kind string, id string)

// Consumer applies WAL change events to a single GridStore Store whose
// rows came from Source.
type Consumer struct {
	Source   *Source
	Store    *store.Store
	OnChange ChangeHook
	Log      *zap.Logger
}

// OnMessage decodes one line from the WAL sidecar and applies every
// change affecting Source.Table. Decode and per-change apply errors are
// logged and skipped rather than fatal: a single malformed or
// transiently-unreachable WAL message must not take down ingestion.
func (c *Consumer) OnMessage(ctx context.Context, line []byte) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		c.logger().Warn("wal decode error", zap.Error(err))
		return
	}

	for _, ch := range env.Change {
		if ch.Schema+"."+ch.Table != c.Source.Table {
			continue
		}
		if err := c.applyChange(ctx, ch); err != nil {
			c.logger().Error("wal apply failed",
				logutil.Values(zap.String("kind", ch.Kind), zap.String("table", ch.Table)),
				zap.Error(err))
		}
	}
}

func (c *Consumer) applyChange(ctx context.Context, ch Change) error {
	keys := ch.OldKeys
	if ch.Kind == "insert" {
		keys = ch.NewKeys
	}
	pkVal := keyValue(keys, c.Source.PKColumn)
	if pkVal == nil {
		return fmt.Errorf("wal change for %s missing key %q", ch.Table, c.Source.PKColumn)
	}
	id := fmt.Sprint(pkVal)

	if ch.Kind == "delete" {
		if err := c.Store.Delete(id); err != nil && !store.IsKind(err, store.KindNotFound) {
			return err
		}
		c.notify("delete", id)
		return nil
	}

	row, found, err := c.Source.refetchRow(ctx, pkVal)
	if err != nil {
		return err
	}
	if !found {
		// row vanished between the WAL event and the refetch; treat as delete.
		if err := c.Store.Delete(id); err != nil && !store.IsKind(err, store.KindNotFound) {
			return err
		}
		c.notify("delete", id)
		return nil
	}

	if ch.Kind == "insert" {
		if _, err := c.Store.Insert(row); err != nil {
			return err
		}
		c.notify("insert", id)
		return nil
	}

	delete(row, c.Source.PKColumn) // Update rejects writes to the primary key
	if err := c.Store.Update(id, row); err != nil {
		return err
	}
	c.notify("update", id)
	return nil
}

func (c *Consumer) notify(kind, id string) {
	if c.OnChange != nil {
		c.OnChange(kind, id)
	}
}

func (c *Consumer) logger() *zap.Logger {
	if c.Log != nil {
		return c.Log
	}
	return zap.L()
}

func keyValue(k Keys, name string) any {
	for i, n := range k.KeyNames {
		if n == name && i < len(k.KeyValues) {
			return k.KeyValues[i]
		}
	}
	return nil
}
