package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// wireMessage is the envelope serialized over the wire.
type wireMessage struct {
	Type      string         `json:"type"`
	ID        string         `json:"id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	RequestID string         `json:"requestId,omitempty"`
}

// WSServer exposes the Broker's broadcast stream over a single /ws
// endpoint for an out-of-process UI surface (a plain browser, or a
// second CLI process).
type WSServer struct {
	addr     string
	broker   *Broker
	listener net.Listener
	server   *http.Server

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]*Panel

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// NewWSServer returns a server that will listen on addr (e.g. ":8765")
// and dispatch every inbound message through broker.
func NewWSServer(addr string, broker *Broker, logger *log.Logger) *WSServer {
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WSServer{
		addr:    addr,
		broker:  broker,
		clients: make(map[*websocket.Conn]*Panel),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
	}
}

// Start begins listening and serving /ws.
func (s *WSServer) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("broker: failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{Handler: mux, ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("broker: websocket server listening on %s", s.addr)
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("broker: server error: %v", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the server down, closing every connected panel.
func (s *WSServer) Stop() error {
	s.cancel()

	s.clientsMu.Lock()
	for conn, panel := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		s.broker.DisposePanel(panel.ID)
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("broker: server shutdown error: %w", err)
	}
	s.wg.Wait()
	return nil
}

func (s *WSServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		s.logger.Printf("broker: websocket upgrade failed: %v", err)
		return
	}

	// A remote connection has no normalized URL or list id to dedup
	// against, so it gets a fresh uuid panel id.
	panel := &Panel{
		ID:   "remote:" + uuid.NewString(),
		Kind: "remote",
		Send: func(msg Outbound) { s.send(conn, msg) },
	}

	s.clientsMu.Lock()
	s.clients[conn] = panel
	s.clientsMu.Unlock()

	// The broker has to know the panel too, or PostToAll broadcasts
	// (fetchProgress, pushProgress, setActivePanel) would never reach
	// the remote surface; DisposePanel drops it again on disconnect.
	s.broker.AddPanel(panel)

	go s.readLoop(conn, panel)
}

func (s *WSServer) readLoop(conn *websocket.Conn, panel *Panel) {
	defer s.removeClient(conn, panel)
	for {
		_, data, err := conn.Read(s.ctx)
		if err != nil {
			return
		}
		var wm wireMessage
		if err := json.Unmarshal(data, &wm); err != nil {
			s.logger.Printf("broker: malformed inbound message: %v", err)
			continue
		}
		s.broker.Dispatch(s.ctx, panel, Inbound{Type: wm.Type, ID: wm.ID, Data: wm.Data})
	}
}

func (s *WSServer) send(conn *websocket.Conn, msg Outbound) {
	data, err := json.Marshal(wireMessage{Type: msg.Type, RequestID: msg.RequestID, Data: toDataMap(msg.Data)})
	if err != nil {
		s.logger.Printf("broker: failed to marshal outbound message: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		s.logger.Printf("broker: failed to write to client: %v", err)
	}
}

func toDataMap(v any) map[string]any {
	if v == nil {
		return nil
	}
	if m, ok := v.(map[string]any); ok {
		return m
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return map[string]any{"value": fmt.Sprintf("%v", v)}
	}
	var m map[string]any
	if err := json.Unmarshal(encoded, &m); err != nil {
		return map[string]any{"value": v}
	}
	return m
}

func (s *WSServer) removeClient(conn *websocket.Conn, panel *Panel) {
	s.clientsMu.Lock()
	if _, ok := s.clients[conn]; ok {
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()
	_ = conn.Close(websocket.StatusNormalClosure, "")
	s.broker.DisposePanel(panel.ID)
}

func (s *WSServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.clientsMu.RLock()
	n := len(s.clients)
	s.clientsMu.RUnlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "clients": n})
}

// Addr returns the server's bound address.
func (s *WSServer) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}
