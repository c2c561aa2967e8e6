package inspect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const maxEvents = 64

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server streams session snapshots and orchestrator problems to websocket
// clients and serves the latest state over plain HTTP.
//
// Publish, Inconsistency and ProgrammingError are called from the session
// loop; everything else runs on HTTP goroutines and only reads copies.
type Server struct {
	addr string
	hub  *Broadcaster
	log  logrus.FieldLogger

	mu     sync.RWMutex
	latest *Snapshot
	events []Event

	nextID atomic.Uint64
}

func NewServer(addr string, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		addr: addr,
		hub:  NewBroadcaster(),
		log:  log.WithField("component", "inspect"),
	}
}

// Handler returns the routes: /ws, /health, /debug/state and /debug/events.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", enableCORS(s.handleWS))
	mux.HandleFunc("/health", enableCORS(s.handleHealth))
	mux.HandleFunc("/debug/state", enableCORS(s.handleState))
	mux.HandleFunc("/debug/events", enableCORS(s.handleEvents))
	return mux
}

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.addr).Info("inspector listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("inspect: serve %s: %w", s.addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.hub.Close()
		return srv.Shutdown(shutdownCtx)
	}
}

// Publish stores snap as the latest state and sends it to every client.
func (s *Server) Publish(snap Snapshot) {
	s.mu.Lock()
	s.latest = &snap
	s.mu.Unlock()
	s.hub.Broadcast(Message{Type: TypeSnapshot, Snapshot: &snap})
}

func (s *Server) Latest() (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return Snapshot{}, false
	}
	return *s.latest, true
}

func (s *Server) Clients() int {
	return s.hub.SubscriberCount()
}

// Inconsistency records a missing-context report.
func (s *Server) Inconsistency(kind string, fields map[string]any) {
	s.record(Event{Time: time.Now(), Kind: kind, Fields: fields})
}

// ProgrammingError records a chain started while already in flight.
func (s *Server) ProgrammingError(err error) {
	s.record(Event{Time: time.Now(), Kind: "programming-error", Fields: map[string]any{"error": err.Error()}})
}

func (s *Server) record(ev Event) {
	copied := make(map[string]any, len(ev.Fields))
	for k, v := range ev.Fields {
		copied[k] = v
	}
	ev.Fields = copied

	s.mu.Lock()
	s.events = append(s.events, ev)
	if len(s.events) > maxEvents {
		s.events = s.events[len(s.events)-maxEvents:]
	}
	s.mu.Unlock()
	s.hub.Broadcast(Message{Type: TypeEvent, Event: &ev})
}

func (s *Server) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event(nil), s.events...)
}

func enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		next(w, r)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	id := fmt.Sprintf("inspector-%d", s.nextID.Add(1))
	c := &client{
		id:   id,
		conn: conn,
		hub:  s.hub,
		send: s.hub.Register(id),
		log:  s.log.WithField("client", id),
	}
	if snap, ok := s.Latest(); ok {
		s.hub.SendTo(id, Message{Type: TypeSnapshot, Snapshot: &snap})
	}
	c.log.Info("inspector connected")

	go c.writePump()
	go c.readPump()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.Latest()
	if !ok {
		http.Error(w, "no snapshot published yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, snap, s.log)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Events(), s.log)
}

func writeJSON(w http.ResponseWriter, v any, log logrus.FieldLogger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("encode response")
	}
}
