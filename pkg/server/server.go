// Package server streams tables to WebSocket clients.
//
// A client connecting to /tables/{name} receives an Add message for every live row of the table
// followed by a message per change event, encoded by the wire package. Tables are single-writer
// structures: the server serializes its own reads with the mutations submitted through Do, so every
// mutation of a served table must go through Do once the server is running.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/l7mp/dtable/pkg/table"
	"github.com/l7mp/dtable/pkg/wire"
)

// ClientBufferSize is the number of live messages queued per client. A client falling further
// behind is disconnected.
const ClientBufferSize = 256

// Server serves tables over WebSocket.
type Server struct {
	mu       sync.Mutex
	tables   map[string]table.Table
	clients  map[string]*client
	upgrader websocket.Upgrader
	log      logr.Logger
}

// New creates a server.
func New(log logr.Logger) *Server {
	return &Server{
		tables:  map[string]table.Table{},
		clients: map[string]*client{},
		upgrader: websocket.Upgrader{
			WriteBufferSize: 1024 * 10,
			ReadBufferSize:  1024 * 10,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log.WithName("server"),
	}
}

// Register makes a table available to clients under its name.
func (s *Server) Register(t table.Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[t.Name()] = t
}

// Do runs fn with exclusive access to the served tables.
func (s *Server) Do(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok")) //nolint:errcheck
	})
	mux.HandleFunc("GET /tables", s.listTables)
	mux.HandleFunc("GET /tables/{name}", s.serveTable)
	return mux
}

// Start serves on addr until the context is canceled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.V(2).Info("listening", "address", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.closeClients()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) listTables(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	s.mu.Unlock()
	sort.Strings(names)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(names); err != nil {
		s.log.Error(err, "failed to write table list")
	}
}

func (s *Server) serveTable(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	s.mu.Lock()
	t, ok := s.tables[name]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "unknown table "+name, http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error(err, "upgrade failed", "table", name)
		return
	}

	c, err := s.attach(conn, t)
	if err != nil {
		s.log.Error(err, "failed to start client", "table", name)
		return
	}
	defer s.detach(c)

	c.readLoop()
}

// attach registers a client and replays the table into its queue. The queue holds the whole replay
// on top of the regular buffer.
func (s *Server) attach(conn *websocket.Conn, t table.Table) (*client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := newClient(conn, t.RowCount()+ClientBufferSize, s.log)
	go c.writeLoop()

	c.encoder = wire.NewEncoder(t, wire.SinkFunc(c.enqueue), s.log)
	if err := c.encoder.Start(); err != nil {
		c.encoder.Close()
		close(c.send)
		conn.Close()
		return nil, err
	}
	s.clients[c.id] = c
	s.log.V(2).Info("client connected", "table", t.Name(), "client", c.id)
	return c, nil
}

func (s *Server) detach(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c.id]; !ok {
		return
	}
	delete(s.clients, c.id)
	c.stop()
	s.log.V(2).Info("client disconnected", "client", c.id)
}

func (s *Server) closeClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.clients {
		delete(s.clients, id)
		c.stop()
	}
}

type client struct {
	id      string
	conn    *websocket.Conn
	send    chan wire.Message
	encoder *wire.Encoder
	dropped bool
	log     logr.Logger
}

func newClient(conn *websocket.Conn, capacity int, log logr.Logger) *client {
	id := uuid.New().String()
	return &client{
		id:   id,
		conn: conn,
		send: make(chan wire.Message, capacity),
		log:  log.WithValues("client", id),
	}
}

// enqueue runs inside the event cascade of the writer and never blocks it.
func (c *client) enqueue(m wire.Message) error {
	if c.dropped {
		return nil
	}
	select {
	case c.send <- m:
	default:
		c.log.Info("client too slow, disconnecting")
		c.dropped = true
		c.conn.Close()
	}
	return nil
}

// stop must be called with the server lock held.
func (c *client) stop() {
	c.encoder.Close()
	c.dropped = true
	close(c.send)
	c.conn.Close()
}

func (c *client) writeLoop() {
	for m := range c.send {
		if err := c.conn.WriteJSON(m); err != nil {
			c.log.V(2).Info("write failed", "error", err.Error())
			// drain so the writer never blocks on a dead client
			for range c.send {
			}
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, //nolint:errcheck
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (c *client) readLoop() {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.V(2).Info("unexpected close", "error", err.Error())
			}
			return
		}
	}
}
