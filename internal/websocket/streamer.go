package websocket

import (
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/vikasavnish/signalrelay/internal/logstream"
	"github.com/vikasavnish/signalrelay/internal/models"
	"github.com/vikasavnish/signalrelay/internal/supervisor"
	"github.com/vikasavnish/signalrelay/internal/utils"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// LogSource resolves bots to their log streams
type LogSource interface {
	Logs(name string) (*logstream.Stream, error)
	Owner(name string) (string, error)
}

// Streamer drains bot log streams into WebSocket clients. Each stream has
// one consumer; a new client for the same bot replaces the previous one.
type Streamer struct {
	source LogSource

	mu          sync.Mutex
	connections map[string]*websocket.Conn

	// Upgrader for HTTP connections to WebSocket
	upgrader websocket.Upgrader
}

// NewStreamer creates a streamer over source
func NewStreamer(source LogSource) *Streamer {
	upgrader := websocket.Upgrader{
		// Allow all origins for WebSocket connections
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	return &Streamer{
		source:      source,
		connections: make(map[string]*websocket.Conn),
		upgrader:    upgrader,
	}
}

// HandleLogs upgrades the request and streams the bot's log lines until the
// client goes away
func (s *Streamer) HandleLogs(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	owner, err := s.source.Owner(name)
	if errors.Is(err, supervisor.ErrNotFound) {
		http.Error(w, "Bot not found", http.StatusNotFound)
		return
	}
	if username, _ := utils.GetUsernameFromContext(r.Context()); owner != "" && owner != username {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	stream, err := s.source.Logs(name)
	if err != nil {
		http.Error(w, "Bot not found", http.StatusNotFound)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Error upgrading to WebSocket: %v", err)
		return
	}
	s.register(name, ws)
	defer s.unregister(name, ws)

	// Read messages from the client (to notice when it goes away)
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.pump(ws, stream, closed)
}

func (s *Streamer) pump(ws *websocket.Conn, stream *logstream.Stream, closed <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		for {
			line, seq, ok := stream.Peek()
			if !ok {
				break
			}
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(models.Message{Type: "log", Content: line}); err != nil {
				// The line stays queued for the next consumer.
				log.Printf("Error sending log line to client: %v", err)
				return
			}
			stream.Ack(seq)
		}

		select {
		case <-stream.Ready():
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

func (s *Streamer) register(name string, ws *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.connections[name]; ok {
		prev.Close()
	}
	s.connections[name] = ws
}

func (s *Streamer) unregister(name string, ws *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connections[name] == ws {
		delete(s.connections, name)
	}
	ws.Close()
}

// Clients returns the number of connected log consumers
func (s *Streamer) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.connections)
}

// CloseAll disconnects every client
func (s *Streamer) CloseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, ws := range s.connections {
		ws.Close()
		delete(s.connections, name)
	}
}
