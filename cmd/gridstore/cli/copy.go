package cli

import (
	"strings"

	"github.com/jackc/pgx/v5"
)

// splitTable turns a "schema.table" or bare "table" reference into the
// pgx.Identifier CopyFrom expects.
func splitTable(qualified string) pgx.Identifier {
	if schema, table, ok := strings.Cut(qualified, "."); ok {
		return pgx.Identifier{schema, table}
	}
	return pgx.Identifier{qualified}
}

// pgxCopySource feeds a fixed set of pre-built rows to pgx.CopyFrom.
type pgxCopySource struct {
	rows []([]any)
	i    int
}

func (s *pgxCopySource) Next() bool {
	return s.i < len(s.rows)
}

func (s *pgxCopySource) Values() ([]any, error) {
	v := s.rows[s.i]
	s.i++
	return v, nil
}

func (s *pgxCopySource) Err() error { return nil }
