// db/stream is gridstore's WAL sidecar: it reads Postgres logical
// replication (wal2json output) for one table and rebroadcasts each
// change, reshaped into the {schema,table,kind,oldkeys,newkeys} envelope
// internal/ingest.Consumer decodes, to every connected TCP client over a
// newline-delimited JSON stream.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"github.com/jackc/pglogrepl"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgproto3"
)

// Broadcaster manages a set of listeners and broadcasts messages to them.
type Broadcaster struct {
	mu        sync.Mutex
	listeners map[chan []byte]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		listeners: make(map[chan []byte]struct{}),
	}
}

// AddListener registers a new channel to receive broadcasts.
func (b *Broadcaster) AddListener(listener chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[listener] = struct{}{}
	log.Printf("New listener added. Total listeners: %d", len(b.listeners))
}

// RemoveListener unregisters a channel.
func (b *Broadcaster) RemoveListener(listener chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.listeners, listener)
	log.Printf("Listener removed. Total listeners: %d", len(b.listeners))
}

// Broadcast sends a message to all registered listeners.
func (b *Broadcaster) Broadcast(msg []byte) {
	fmt.Println("Broadcasting message: " + string(msg))
	b.mu.Lock()
	defer b.mu.Unlock()

	// You can add this log line for debugging if you want, but the non-blocking select is critical.
	// log.Println("Broadcasting message to", len(b.listeners), "listeners")

	for listener := range b.listeners {
		// Use a non-blocking send to prevent a slow client from blocking the broadcaster.
		select {
		case listener <- msg:
		default:
			// Client's channel is full, they are too slow. We can log this or just drop the message.
			log.Printf("Listener channel full, dropping message for one client.")
		}
	}
}

// target names the single table+primary-key column this sidecar decodes
// WAL events for (spec.md §1 Non-goals: "no multi-table joins" — a
// GridStore ingests one table, so the sidecar only ever needs to emit
// one table's key shape, not a general-purpose multi-table relay).
type target struct {
	table    string // "schema.table"
	pkColumn string
}

// wal2jsonEnvelope is wal2json's native output shape (the "pretty-print"
// plugin argument only affects whitespace, not these field names).
type wal2jsonEnvelope struct {
	Change []wal2jsonChange `json:"change"`
}

type wal2jsonChange struct {
	Kind         string   `json:"kind"`
	Schema       string   `json:"schema"`
	Table        string   `json:"table"`
	ColumnNames  []string `json:"columnnames"`
	ColumnValues []any    `json:"columnvalues"`
	OldKeys      *struct {
		KeyNames  []string `json:"keynames"`
		KeyValues []any    `json:"keyvalues"`
	} `json:"oldkeys"`
}

// keys mirrors internal/ingest.Keys exactly: gridstore's Consumer decodes
// this shape directly, with no wal2json-specific field left in it.
type keys struct {
	KeyNames  []string `json:"keynames"`
	KeyValues []any    `json:"keyvalues"`
}

// gridstoreChange mirrors internal/ingest.Change exactly.
type gridstoreChange struct {
	Schema  string `json:"schema"`
	Table   string `json:"table"`
	Kind    string `json:"kind"`
	OldKeys keys   `json:"oldkeys"`
	NewKeys keys   `json:"newkeys"`
}

type gridstoreEnvelope struct {
	Change []gridstoreChange `json:"change"`
}

// columnValue looks up the value of a named column out of wal2json's
// parallel columnnames/columnvalues arrays.
func columnValue(names []string, values []any, name string) (any, bool) {
	for i, n := range names {
		if n == name && i < len(values) {
			return values[i], true
		}
	}
	return nil, false
}

// reshapeForTarget filters a wal2json envelope down to tgt.table and
// rebuilds each surviving change as a single-column oldkeys/newkeys pair
// on tgt.pkColumn, discarding every other wal2json column: internal/ingest
// only ever needs the primary key to match a WAL event back to a row
// index, never the full before/after row image.
func reshapeForTarget(wal wal2jsonEnvelope, tgt target) gridstoreEnvelope {
	var out gridstoreEnvelope
	for _, c := range wal.Change {
		if c.Schema+"."+c.Table != tgt.table {
			continue
		}

		gc := gridstoreChange{Schema: c.Schema, Table: c.Table, Kind: c.Kind}

		if v, ok := columnValue(c.ColumnNames, c.ColumnValues, tgt.pkColumn); ok {
			gc.NewKeys = keys{KeyNames: []string{tgt.pkColumn}, KeyValues: []any{v}}
		}
		if c.OldKeys != nil {
			if v, ok := columnValue(c.OldKeys.KeyNames, c.OldKeys.KeyValues, tgt.pkColumn); ok {
				gc.OldKeys = keys{KeyNames: []string{tgt.pkColumn}, KeyValues: []any{v}}
			}
		}

		if len(gc.NewKeys.KeyNames) == 0 && len(gc.OldKeys.KeyNames) == 0 {
			continue
		}
		out.Change = append(out.Change, gc)
	}
	return out
}

func main() {
	broadcaster := NewBroadcaster()
	tgt := target{
		table:    getenv("GRIDSTORE_TABLE", "public.quotes"),
		pkColumn: getenv("GRIDSTORE_PK_COLUMN", "id"),
	}

	// Start the main replication reader in the background. It will run forever.
	go mainReplicationReader(broadcaster, tgt)

	// Start the TCP server to accept client connections.
	startTCPServer(broadcaster, getenv("GRIDSTORE_WAL_ADDR", ":9000"))
}

// mainReplicationReader is the SINGLE, permanent goroutine that reads from PostgreSQL.
func mainReplicationReader(b *Broadcaster, tgt target) {
	for {
		err := connectAndReadReplication(b, tgt)
		if err != nil {
			log.Printf("Replication connection error: %v. Reconnecting in 5 seconds...", err)
			time.Sleep(5 * time.Second)
		}
	}
}

func connectAndReadReplication(b *Broadcaster, tgt target) error {
	connStr := "host=" + getenv("PGHOST", "postgres") +
		" port=" + getenv("PGPORT", "5432") +
		" user=" + getenv("PGUSER", "postgres") +
		" password=" + getenv("PGPASSWORD", "pass") +
		" dbname=" + getenv("PGDATABASE", "postgres") +
		" replication=database"

	conn, err := pgconn.Connect(context.Background(), connStr)
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())

	sys, err := pglogrepl.IdentifySystem(context.Background(), conn)
	if err != nil {
		return err
	}
	log.Printf("PostgreSQL System ID: %s, Timeline: %d, XLogPos: %s, DBNAME: %s", sys.SystemID, sys.Timeline, sys.XLogPos, sys.DBName)

	slotName := getenv("GRIDSTORE_SLOT", "gridstore_slot")
	pluginArguments := []string{"\"pretty-print\" 'true'"}

	err = pglogrepl.StartReplication(context.Background(), conn, slotName, sys.XLogPos,
		pglogrepl.StartReplicationOptions{PluginArgs: pluginArguments})
	if err != nil {
		return err
	}
	log.Printf("Logical replication started on slot %s", slotName)

	var lastLSN pglogrepl.LSN
	standbyMessageTimeout := time.Second * 10
	nextStandbyMessageDeadline := time.Now().Add(standbyMessageTimeout)

	for {
		if time.Now().After(nextStandbyMessageDeadline) && lastLSN != 0 {
			err = pglogrepl.SendStandbyStatusUpdate(context.Background(), conn, pglogrepl.StandbyStatusUpdate{WALWritePosition: lastLSN})
			if err != nil {
				log.Println("SendStandbyStatusUpdate failed:", err)
				return err // Return error to trigger reconnect
			}
			log.Printf("Sent Standby status message at LSN %s\n", lastLSN)
			nextStandbyMessageDeadline = time.Now().Add(standbyMessageTimeout)
		}

		ctx, cancel := context.WithDeadline(context.Background(), nextStandbyMessageDeadline)
		rawMsg, err := conn.ReceiveMessage(ctx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
				continue
			}
			return err // Return any other error to trigger reconnect
		}

		if errMsg, ok := rawMsg.(*pgproto3.ErrorResponse); ok {
			log.Printf("received Postgres WAL error: %+v", errMsg)
			return errors.New(errMsg.Message) // Trigger reconnect
		}

		msg, ok := rawMsg.(*pgproto3.CopyData)
		if !ok {
			log.Printf("Received unexpected message type %T\n", rawMsg)
			continue
		}

		switch msg.Data[0] {
		case pglogrepl.PrimaryKeepaliveMessageByteID:
			pkm, err := pglogrepl.ParsePrimaryKeepaliveMessage(msg.Data[1:])
			if err != nil {
				log.Printf("failed to parse primary keepalive message: %v", err)
				continue
			}
			if pkm.ReplyRequested {
				nextStandbyMessageDeadline = time.Time{}
			}

		case pglogrepl.XLogDataByteID:
			xld, err := pglogrepl.ParseXLogData(msg.Data[1:])
			if err != nil {
				log.Printf("ParseXLogData failed: %v", err)
				continue
			}

			// Parse LSN to send standby updates
			var eventData map[string]interface{}
			if err := json.Unmarshal(xld.WALData, &eventData); err == nil {
				if lsnStr, ok := eventData["lsn"].(string); ok {
					if parsedLSN, err := pglogrepl.ParseLSN(lsnStr); err == nil {
						lastLSN = parsedLSN
					}
				}
			}

			// Decode the wal2json payload and reshape it into gridstore's
			// own change-event envelope (schema/table/kind/oldkeys/newkeys
			// keyed on tgt.pkColumn only) instead of relaying wal2json's
			// generic columnnames/columnvalues verbatim: internal/ingest's
			// Consumer speaks this shape natively, not wal2json's.
			var wal wal2jsonEnvelope
			if err := json.Unmarshal(xld.WALData, &wal); err != nil {
				log.Printf("wal2json decode failed: %v", err)
				continue
			}
			out := reshapeForTarget(wal, tgt)
			if len(out.Change) == 0 {
				continue
			}
			encoded, err := json.Marshal(out)
			if err != nil {
				log.Printf("gridstore envelope encode failed: %v", err)
				continue
			}
			b.Broadcast(encoded)
		}
	}
}

// startTCPServer listens for incoming client connections; gridstore's
// internal/ingest.Consumer is the typical client.
func startTCPServer(b *Broadcaster, addr string) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalln("TCP server listen error:", err)
	}
	defer l.Close()

	log.Printf("listening for client connections on %s", addr)
	for {
		client, err := l.Accept()
		if err != nil {
			log.Println("accept:", err)
			continue
		}
		// Each client gets its own goroutine.
		go handleClient(client, b)
	}
}

// handleClient manages a single client's lifecycle.
func handleClient(c net.Conn, b *Broadcaster) {
	defer c.Close()
	log.Printf("client %v connected", c.RemoteAddr())

	// Create a channel for this specific client.
	// Buffer size of 100 to absorb some burstiness.
	messages := make(chan []byte, 100)
	b.AddListener(messages)
	defer b.RemoveListener(messages)

	for msg := range messages {
		// Write message to the client
		if _, err := c.Write(append(msg, '\n')); err != nil {
			// If we can't write, the client has probably disconnected.
			log.Printf("client %v write error: %v. Disconnecting.", c.RemoteAddr(), err)
			return // Exit the goroutine, which will trigger the defer.
		}
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
