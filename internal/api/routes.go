// Package api is the HTTP/WebSocket front end over a single gridstore
// Store: schema/row endpoints plus a push channel that tells clients a
// view changed so they know to re-fetch, adapted from the original
// project's chi router and websocket upgrade path but scoped to one
// store instead of arbitrary ad-hoc SQL subscriptions.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/colgrid/gridstore/internal/store"
)

// Server wires a Store to chi routes and a websocket Hub.
type Server struct {
	Store *store.Store
	Hub   *Hub
	Log   *zap.Logger
}

func NewServer(st *store.Store, log *zap.Logger) *Server {
	if log == nil {
		log = zap.L()
	}
	return &Server{Store: st, Hub: NewHub(log), Log: log}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	// the websocket upgrade must happen before loggingMiddleware wraps
	// the ResponseWriter, same ordering constraint the original router
	// documents for its own /api/ws route.
	r.Get("/api/ws", s.Hub.ServeWS)

	r.Group(func(r chi.Router) {
		r.Use(s.loggingMiddleware)

		r.Route("/api", func(r chi.Router) {
			r.Get("/schema", s.handleSchema)
			r.Get("/stats", s.handleStats)
			r.Get("/rows", s.handleListRows)
			r.Post("/rows", s.handleInsertRow)
			r.Patch("/rows/{id}", s.handleUpdateRow)
			r.Delete("/rows/{id}", s.handleDeleteRow)
			r.Post("/filter", s.handleSetFilter)
			r.Delete("/filter", s.handleClearFilter)
			r.Post("/sort", s.handleSetSort)
			r.Delete("/sort", s.handleClearSort)
		})
	})

	fs := http.FileServer(http.Dir("web"))
	r.Handle("/*", fs)

	return r
}
