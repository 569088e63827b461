// Package feed exposes session events to UI frontends over websockets.
package feed

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/voicepilot/internal/bus"
)

// Config holds feed server configuration
type Config struct {
	Addr string

	// LevelInterval is the cadence for loudness broadcasts. Discrete
	// events pass through immediately; levels are sampled so a 60Hz
	// monitor does not flood slow clients.
	LevelInterval time.Duration
}

// LevelSource provides the current input loudness
type LevelSource interface {
	Level() float64
}

// Message is the wire format sent to feed clients
type Message struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
	Time time.Time      `json:"time"`
}

// Event types relayed verbatim from the bus.
var relayedEvents = []bus.EventType{
	bus.EventTypeStatusChanged,
	bus.EventTypeSpeechStart,
	bus.EventTypeSpeechEnd,
	bus.EventTypeStreamClosed,
	bus.EventTypeSegmentReady,
	bus.EventTypeSegmentDiscarded,
	bus.EventTypeTranscript,
	bus.EventTypeTranscribeFailed,
	bus.EventTypeTranscriptCleared,
	bus.EventTypeSpeakingStarted,
	bus.EventTypeSpeakingStopped,
	bus.EventTypeSpeakSuppressed,
}

// Server is the websocket status feed
type Server struct {
	cfg      Config
	levels   LevelSource
	bus      *bus.EventBus
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	httpSrv  *http.Server
	listener net.Listener

	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte

	done     chan struct{}
	stopOnce sync.Once
}

// NewServer creates a feed server. Call Start to begin serving.
func NewServer(cfg Config, levels LevelSource, b *bus.EventBus, logger zerolog.Logger) *Server {
	if cfg.LevelInterval <= 0 {
		cfg.LevelInterval = 100 * time.Millisecond
	}
	return &Server{
		cfg:    cfg,
		levels: levels,
		bus:    b,
		logger: logger.With().Str("component", "feed").Logger(),
		upgrader: websocket.Upgrader{
			// Local tooling only; the listener binds loopback.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]chan []byte),
		done:    make(chan struct{}),
	}
}

// Start binds the listener and begins relaying events
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	s.httpSrv = &http.Server{Handler: mux}

	s.bus.SubscribeMultiple(relayedEvents, func(e bus.Event) {
		s.broadcast(Message{Type: string(e.Type), Data: e.Data, Time: time.Now()})
	})

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Feed server stopped")
		}
	}()
	go s.levelLoop()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Feed listening")
	return nil
}

// Addr returns the bound listener address
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.cfg.Addr
	}
	return s.listener.Addr().String()
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Shutdown closes all client connections and stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.done) })

	s.mu.Lock()
	for conn, send := range s.clients {
		close(send)
		conn.Close()
		delete(s.clients, conn)
	}
	s.mu.Unlock()

	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	send := make(chan []byte, 64)
	s.mu.Lock()
	s.clients[conn] = send
	count := len(s.clients)
	s.mu.Unlock()

	s.logger.Info().Str("remote", conn.RemoteAddr().String()).Int("clients", count).Msg("Feed client connected")

	go s.writeLoop(conn, send)
	go s.readLoop(conn)
}

func (s *Server) writeLoop(conn *websocket.Conn, send chan []byte) {
	for payload := range send {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			s.dropClient(conn)
			return
		}
	}
}

// readLoop drains incoming frames. The feed is one-way; reading only
// serves to detect disconnects.
func (s *Server) readLoop(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.dropClient(conn)
			return
		}
	}
}

func (s *Server) dropClient(conn *websocket.Conn) {
	s.mu.Lock()
	send, ok := s.clients[conn]
	if ok {
		delete(s.clients, conn)
		close(send)
	}
	s.mu.Unlock()

	if ok {
		conn.Close()
		s.logger.Info().Msg("Feed client disconnected")
	}
}

func (s *Server) broadcast(msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error().Err(err).Msg("Could not marshal feed message")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for conn, send := range s.clients {
		select {
		case send <- payload:
		default:
			// Client cannot keep up; disconnect instead of blocking
			// the rest of the feed.
			delete(s.clients, conn)
			close(send)
			conn.Close()
			s.logger.Warn().Msg("Feed client too slow, dropped")
		}
	}
}

func (s *Server) levelLoop() {
	ticker := time.NewTicker(s.cfg.LevelInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if s.ClientCount() == 0 {
				continue
			}
			s.broadcast(Message{
				Type: string(bus.EventTypeAudioLevel),
				Data: map[string]any{"level": s.levels.Level()},
				Time: time.Now(),
			})
		}
	}
}
