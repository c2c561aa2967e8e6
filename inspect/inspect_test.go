package inspect

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/milk9111/ravar/phase"
	"github.com/milk9111/ravar/scene"
	"github.com/milk9111/ravar/sequence"
	"github.com/milk9111/ravar/signal"
	"github.com/sirupsen/logrus"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

var _ phase.Observer = (*Server)(nil)

func sampleSnapshot(frame uint64) Snapshot {
	return NewSnapshot(frame, phase.Snapshot{
		Current:  phase.Pause,
		Previous: phase.World,
		Stack:    []phase.Phase{phase.World},
		Cutscene: "none",
		Frozen:   true,
		Changes:  3,
		Chains:   []sequence.Info{{Key: "pause.enter", State: sequence.StateWaiting, Steps: 1, Name: "load-pause-overlay", Kind: sequence.StepAwait}},
	}, []scene.Status{{Name: "pause", Scope: signal.ScopeOverlay, State: scene.StateLoading}}, Player{X: 2, Y: 3})
}

func TestNewSnapshot(t *testing.T) {
	s := sampleSnapshot(7)
	if s.Phase != "pause" || s.Previous != "world" || len(s.Stack) != 1 || s.Stack[0] != "world" {
		t.Fatalf("unexpected phases %+v", s)
	}
	if len(s.Chains) != 1 || s.Chains[0].Kind != "await" || s.Chains[0].State != "waiting" {
		t.Fatalf("unexpected chains %+v", s.Chains)
	}
	if len(s.Scenes) != 1 || s.Scenes[0].Scope != "overlay" || s.Scenes[0].State != "loading" {
		t.Fatalf("unexpected scenes %+v", s.Scenes)
	}
}

func TestBroadcaster(t *testing.T) {
	b := NewBroadcaster()
	a := b.Register("a")
	c := b.Register("c")
	if b.SubscriberCount() != 2 {
		t.Fatalf("expected 2 subscribers")
	}

	b.Broadcast(Message{Type: TypeEvent})
	if (<-a).Type != TypeEvent || (<-c).Type != TypeEvent {
		t.Fatalf("expected both subscribers to receive the broadcast")
	}

	b.SendTo("a", Message{Type: TypeSnapshot})
	if (<-a).Type != TypeSnapshot || len(c) != 0 {
		t.Fatalf("SendTo should reach only a")
	}

	stale := a
	a = b.Register("a")
	if _, ok := <-stale; ok {
		t.Fatalf("re-registering should close the old channel")
	}
	b.Unregister("a", stale)
	if b.SubscriberCount() != 2 {
		t.Fatalf("unregistering a stale channel must keep the new one")
	}

	b.Close()
	if _, ok := <-a; ok || b.SubscriberCount() != 0 {
		t.Fatalf("close should drop every subscriber")
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("deadline: %v", err)
	}
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func TestWebsocketStream(t *testing.T) {
	srv := NewServer("", quietLogger())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	srv.Publish(sampleSnapshot(1))

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	first := readMessage(t, conn)
	if first.Type != TypeSnapshot || first.Snapshot == nil || first.Snapshot.Frame != 1 {
		t.Fatalf("expected latest snapshot on connect, got %+v", first)
	}

	srv.Inconsistency("missing-opponent", map[string]any{"outcome": "won"})
	ev := readMessage(t, conn)
	if ev.Type != TypeEvent || ev.Event == nil || ev.Event.Kind != "missing-opponent" {
		t.Fatalf("expected inconsistency event, got %+v", ev)
	}

	srv.Publish(sampleSnapshot(2))
	next := readMessage(t, conn)
	if next.Type != TypeSnapshot || next.Snapshot.Frame != 2 || next.Snapshot.Phase != "pause" {
		t.Fatalf("expected second snapshot, got %+v", next)
	}
}

func TestDebugRoutes(t *testing.T) {
	srv := NewServer("", quietLogger())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/debug/state")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before the first publish, got %d", resp.StatusCode)
	}

	srv.Publish(sampleSnapshot(9))
	srv.ProgrammingError(errors.New("chain in flight"))

	resp, err = http.Get(ts.URL + "/debug/state")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if snap.Frame != 9 || !snap.Frozen {
		t.Fatalf("unexpected state %+v", snap)
	}

	resp, err = http.Get(ts.URL + "/debug/events")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var events []Event
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if len(events) != 1 || events[0].Kind != "programming-error" {
		t.Fatalf("unexpected events %+v", events)
	}
}
