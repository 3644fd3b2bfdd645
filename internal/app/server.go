// Package app wires together a Postgres-backed ingest.Source, a
// gridstore Store, the chi/websocket API, and the db/stream WAL feed
// into one running process, adapted from the original project's
// internal/app.Server (HTTP server + WAL listener goroutine + graceful
// shutdown), but seeding and refreshing a single Store instead of an
// arbitrary set of live SQL subscriptions.
package app

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/colgrid/gridstore/internal/api"
	"github.com/colgrid/gridstore/internal/config"
	"github.com/colgrid/gridstore/internal/ingest"
	"github.com/colgrid/gridstore/internal/ingest/catalog"
	"github.com/colgrid/gridstore/internal/store"
)

// Server owns every long-lived resource a running gridstore process
// needs: the Postgres pool, the Store, the API front end, and the WAL
// feed connection.
type Server struct {
	cfg config.Config
	log *zap.Logger

	httpServer *http.Server
	pool       *pgxpool.Pool
	store      *store.Store
	source     *ingest.Source
	hub        *api.Hub
}

// New builds a Server from cfg and a schema, connecting to Postgres and
// running the initial bulk load before returning.
func New(ctx context.Context, cfg config.Config, schema []store.Column, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.L()
	}

	pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, err
	}

	cat := catalog.New(pool)
	if err := cat.Refresh(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	st, err := store.New(schema)
	if err != nil {
		pool.Close()
		return nil, err
	}

	src := &ingest.Source{Pool: pool, Query: cfg.Ingest.Query, Table: cfg.Ingest.Table, PKColumn: cfg.Ingest.PKColumn}
	if err := src.Rewrite(cat); err != nil {
		pool.Close()
		return nil, err
	}

	n, err := src.LoadInto(ctx, st)
	if err != nil {
		pool.Close()
		return nil, err
	}
	log.Info("initial load complete", zap.Int("rows", n), zap.String("table", cfg.Ingest.Table))

	apiSrv := api.NewServer(st, log)

	return &Server{
		cfg:        cfg,
		log:        log,
		httpServer: &http.Server{Addr: cfg.Listen, Handler: apiSrv.Routes()},
		pool:       pool,
		store:      st,
		source:     src,
		hub:        apiSrv.Hub,
	}, nil
}

// Run starts the HTTP server and WAL listener and blocks until ctx is
// canceled, then shuts the HTTP server down gracefully.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		s.log.Info("listening", zap.String("addr", s.cfg.Listen))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Fatal("http server error", zap.Error(err))
		}
	}()

	go s.listenWAL(ctx)

	<-ctx.Done()
	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	defer s.pool.Close()
	return s.httpServer.Shutdown(shutdownCtx)
}

// listenWAL connects to the db/stream sidecar and applies every decoded
// change to Store via a Consumer, reconnecting on failure like the
// replication reader it feeds from.
func (s *Server) listenWAL(ctx context.Context) {
	consumer := &ingest.Consumer{
		Source:   s.source,
		Store:    s.store,
		Log:      s.log,
		OnChange: s.hub.Broadcast,
	}

	for {
		if ctx.Err() != nil {
			return
		}
		if err := s.runWALLoop(ctx, consumer); err != nil {
			s.log.Warn("wal connection error, reconnecting", zap.Error(err))
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Server) runWALLoop(ctx context.Context, consumer *ingest.Consumer) error {
	conn, err := net.Dial("tcp", s.cfg.WAL.Addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	dec := json.NewDecoder(conn)
	for {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		consumer.OnMessage(ctx, raw)
	}
}
