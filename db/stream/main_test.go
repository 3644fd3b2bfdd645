package main

import (
	"encoding/json"
	"testing"
)

func TestReshapeForTargetFiltersToConfiguredTable(t *testing.T) {
	tgt := target{table: "public.quotes", pkColumn: "id"}
	wal := wal2jsonEnvelope{
		Change: []wal2jsonChange{
			{
				Kind:         "insert",
				Schema:       "public",
				Table:        "other_table",
				ColumnNames:  []string{"id", "px"},
				ColumnValues: []any{"z", 1.0},
			},
			{
				Kind:         "insert",
				Schema:       "public",
				Table:        "quotes",
				ColumnNames:  []string{"id", "sym", "px"},
				ColumnValues: []any{"a", "AAPL", 150.0},
			},
		},
	}

	out := reshapeForTarget(wal, tgt)
	if len(out.Change) != 1 {
		t.Fatalf("len(out.Change) = %d, want 1 (other_table change should be dropped)", len(out.Change))
	}
	got := out.Change[0]
	if got.Schema != "public" || got.Table != "quotes" || got.Kind != "insert" {
		t.Fatalf("unexpected change: %+v", got)
	}
	if len(got.NewKeys.KeyNames) != 1 || got.NewKeys.KeyNames[0] != "id" || got.NewKeys.KeyValues[0] != "a" {
		t.Fatalf("NewKeys = %+v, want {[id] [a]}", got.NewKeys)
	}
	if len(got.OldKeys.KeyNames) != 0 {
		t.Fatalf("OldKeys = %+v, want empty for an insert", got.OldKeys)
	}
}

func TestReshapeForTargetUsesOldKeysOnDelete(t *testing.T) {
	tgt := target{table: "public.quotes", pkColumn: "id"}
	wal := wal2jsonEnvelope{
		Change: []wal2jsonChange{
			{
				Kind:   "delete",
				Schema: "public",
				Table:  "quotes",
				OldKeys: &struct {
					KeyNames  []string `json:"keynames"`
					KeyValues []any    `json:"keyvalues"`
				}{
					KeyNames:  []string{"id"},
					KeyValues: []any{"a"},
				},
			},
		},
	}

	out := reshapeForTarget(wal, tgt)
	if len(out.Change) != 1 {
		t.Fatalf("len(out.Change) = %d, want 1", len(out.Change))
	}
	got := out.Change[0]
	if len(got.OldKeys.KeyNames) != 1 || got.OldKeys.KeyValues[0] != "a" {
		t.Fatalf("OldKeys = %+v, want {[id] [a]}", got.OldKeys)
	}
	if len(got.NewKeys.KeyNames) != 0 {
		t.Fatalf("NewKeys = %+v, want empty for a delete", got.NewKeys)
	}
}

func TestReshapeForTargetDropsChangesMissingPKColumn(t *testing.T) {
	tgt := target{table: "public.quotes", pkColumn: "id"}
	wal := wal2jsonEnvelope{
		Change: []wal2jsonChange{
			{
				Kind:         "update",
				Schema:       "public",
				Table:        "quotes",
				ColumnNames:  []string{"px"},
				ColumnValues: []any{155.0},
			},
		},
	}

	out := reshapeForTarget(wal, tgt)
	if len(out.Change) != 0 {
		t.Fatalf("len(out.Change) = %d, want 0 (no id column in the payload)", len(out.Change))
	}
}

func TestWal2jsonEnvelopeUnmarshalsStandardPayload(t *testing.T) {
	raw := []byte(`{"change":[{"kind":"update","schema":"public","table":"quotes",
		"columnnames":["id","sym","px"],"columnvalues":["a","AAPL",151.5],
		"oldkeys":{"keynames":["id"],"keyvalues":["a"]}}]}`)

	var wal wal2jsonEnvelope
	if err := json.Unmarshal(raw, &wal); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(wal.Change) != 1 {
		t.Fatalf("len(wal.Change) = %d, want 1", len(wal.Change))
	}
	c := wal.Change[0]
	if c.OldKeys == nil || c.OldKeys.KeyValues[0] != "a" {
		t.Fatalf("OldKeys decode failed: %+v", c.OldKeys)
	}

	out := reshapeForTarget(wal, target{table: "public.quotes", pkColumn: "id"})
	encoded, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var roundTrip gridstoreEnvelope
	if err := json.Unmarshal(encoded, &roundTrip); err != nil {
		t.Fatalf("round-trip unmarshal: %v", err)
	}
	if len(roundTrip.Change) != 1 || roundTrip.Change[0].NewKeys.KeyValues[0] != "a" {
		t.Fatalf("round trip = %+v", roundTrip)
	}
}

func TestColumnValueLookup(t *testing.T) {
	names := []string{"id", "sym", "px"}
	values := []any{"a", "AAPL", 150.0}

	if v, ok := columnValue(names, values, "sym"); !ok || v != "AAPL" {
		t.Fatalf("columnValue(sym) = %v, %v, want AAPL, true", v, ok)
	}
	if _, ok := columnValue(names, values, "missing"); ok {
		t.Fatalf("columnValue(missing) = ok, want not found")
	}
}

func TestGetenvFallsBackToDefault(t *testing.T) {
	if got := getenv("GRIDSTORE_DOES_NOT_EXIST", "fallback"); got != "fallback" {
		t.Fatalf("getenv fallback = %q, want %q", got, "fallback")
	}
}
