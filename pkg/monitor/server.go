// Package monitor provides an HTTP/websocket monitor server for the
// matrix scanner: a status endpoint for one-shot queries and a websocket
// event stream carrying confirmed key transitions and fault registrations.
package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// MatrixStatus is a snapshot of scanner state for status queries.
type MatrixStatus struct {
	Ready          bool    `json:"ready"`
	Mode           string  `json:"mode"`
	Rows           int     `json:"rows"`
	Cols           int     `json:"cols"`
	ColumnMasks    []uint8 `json:"column_masks"`
	PressedCount   int     `json:"pressed_count"`
	ActiveDebounce int     `json:"active_debounce"`
	Faults         []string `json:"faults"`
}

// ScannerInterface is the consumed scanner status source.
type ScannerInterface interface {
	MatrixStatus() MatrixStatus
}

// Event is a single monitor notification.
type Event struct {
	Method string         `json:"method"`
	Params map[string]any `json:"params"`
}

// KeyEvent builds a key transition notification.
func KeyEvent(row, col int, pressed bool) Event {
	return Event{
		Method: "notify_key_event",
		Params: map[string]any{
			"row":     row,
			"col":     col,
			"pressed": pressed,
			"time":    time.Now().UnixMilli(),
		},
	}
}

// FaultEvent builds a fault notification.
func FaultEvent(detail string) Event {
	return Event{
		Method: "notify_fault",
		Params: map[string]any{
			"fault": detail,
			"time":  time.Now().UnixMilli(),
		},
	}
}

// Config holds server configuration.
type Config struct {
	// Addr is the HTTP address to listen on (e.g., ":7125").
	Addr string

	// Scanner supplies status snapshots.
	Scanner ScannerInterface
}

// Server streams scanner events to websocket clients and serves status
// queries.
type Server struct {
	scanner ScannerInterface

	httpServer *http.Server
	addr       string

	wsUpgrader websocket.Upgrader
	wsClients  map[int64]*wsClient
	wsClientMu sync.RWMutex
	nextWSID   int64

	running   atomic.Bool
	startTime time.Time
}

type wsClient struct {
	id   int64
	conn *websocket.Conn
	send chan Event
}

// New creates a monitor server.
func New(cfg Config) *Server {
	s := &Server{
		scanner:   cfg.Scanner,
		addr:      cfg.Addr,
		wsClients: make(map[int64]*wsClient),
		startTime: time.Now(),
	}
	s.wsUpgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/scanner/status", s.handleStatus)
	mux.HandleFunc("/websocket", s.handleWebSocket)

	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: mux,
	}
	s.running.Store(true)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.running.Store(false)
		}
	}()
	return nil
}

// Stop shuts the server down and disconnects every client.
func (s *Server) Stop() error {
	s.running.Store(false)

	s.wsClientMu.Lock()
	for id, c := range s.wsClients {
		close(c.send)
		c.conn.Close()
		delete(s.wsClients, id)
	}
	s.wsClientMu.Unlock()

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Publish broadcasts an event to every connected client. Slow clients
// drop events rather than block the scan loop.
func (s *Server) Publish(ev Event) {
	s.wsClientMu.RLock()
	defer s.wsClientMu.RUnlock()
	for _, c := range s.wsClients {
		select {
		case c.send <- ev:
		default:
		}
	}
}

// ClientCount returns the number of connected websocket clients.
func (s *Server) ClientCount() int {
	s.wsClientMu.RLock()
	defer s.wsClientMu.RUnlock()
	return len(s.wsClients)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var status MatrixStatus
	if s.scanner != nil {
		status = s.scanner.MatrixStatus()
	}

	resp := map[string]any{
		"result": map[string]any{
			"scanner": status,
			"uptime":  time.Since(s.startTime).Seconds(),
			"clients": s.ClientCount(),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &wsClient{
		id:   atomic.AddInt64(&s.nextWSID, 1),
		conn: conn,
		send: make(chan Event, 64),
	}

	s.wsClientMu.Lock()
	s.wsClients[c.id] = c
	s.wsClientMu.Unlock()

	go s.writePump(c)
	go s.readPump(c)
}

func (s *Server) writePump(c *wsClient) {
	for ev := range c.send {
		if err := c.conn.WriteJSON(ev); err != nil {
			break
		}
	}
	c.conn.Close()
}

// readPump drains client messages (none are expected) and unregisters the
// client on disconnect.
func (s *Server) readPump(c *wsClient) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}

	s.wsClientMu.Lock()
	if _, ok := s.wsClients[c.id]; ok {
		delete(s.wsClients, c.id)
		close(c.send)
	}
	s.wsClientMu.Unlock()
	c.conn.Close()
}
