package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/colgrid/gridstore/internal/store"
)

func (s *Server) pkColumn() string {
	for _, c := range s.Store.Schema() {
		if c.PrimaryKey {
			return c.Name
		}
	}
	return ""
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Store.Schema())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Store.StatsSnapshot())
}

func (s *Server) handleListRows(w http.ResponseWriter, r *http.Request) {
	start := queryInt(r, "start", 0)
	count := queryInt(r, "count", 100)

	rows := s.Store.GetVisibleRows(start, count)
	writeJSON(w, http.StatusOK, map[string]any{
		"rows":  rows,
		"total": s.Store.ViewCount(),
	})
}

func (s *Server) handleInsertRow(w http.ResponseWriter, r *http.Request) {
	var row store.Row
	if !decodeJSON(w, r, &row) {
		return
	}
	idx, err := s.Store.Insert(row)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.Hub.Broadcast("insert", fmt.Sprint(row[s.pkColumn()]))
	writeJSON(w, http.StatusCreated, map[string]any{"index": idx})
}

func (s *Server) handleUpdateRow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var changes store.Row
	if !decodeJSON(w, r, &changes) {
		return
	}
	if err := s.Store.Update(id, changes); err != nil {
		writeStoreError(w, err)
		return
	}
	s.Hub.Broadcast("update", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteRow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Store.Delete(id); err != nil {
		writeStoreError(w, err)
		return
	}
	s.Hub.Broadcast("delete", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetFilter(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	s.Store.SetFilter(body.Text)
	writeJSON(w, http.StatusOK, map[string]any{"total": s.Store.ViewCount()})
}

func (s *Server) handleClearFilter(w http.ResponseWriter, r *http.Request) {
	s.Store.ClearFilter()
	writeJSON(w, http.StatusOK, map[string]any{"total": s.Store.ViewCount()})
}

func (s *Server) handleSetSort(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Column    string `json:"column"`
		Direction string `json:"direction"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	dir, err := parseSortDir(body.Direction)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.Store.SetSort(body.Column, dir); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearSort(w http.ResponseWriter, r *http.Request) {
	s.Store.ClearSort()
	w.WriteHeader(http.StatusNoContent)
}

func parseSortDir(s string) (store.SortDir, error) {
	switch s {
	case "asc", "":
		return store.SortAsc, nil
	case "desc":
		return store.SortDesc, nil
	case "none":
		return store.SortNone, nil
	default:
		return store.SortNone, fmt.Errorf("unknown sort direction %q", s)
	}
}

func writeStoreError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case store.IsKind(err, store.KindNotFound):
		status = http.StatusNotFound
	case store.IsKind(err, store.KindDuplicateID), store.IsKind(err, store.KindMissingID),
		store.IsKind(err, store.KindTypeError), store.IsKind(err, store.KindSchemaError):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
