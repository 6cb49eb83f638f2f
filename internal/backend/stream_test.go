package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/otaviofr/convo/internal/bus"
	"github.com/otaviofr/convo/internal/status"
	"github.com/otaviofr/convo/internal/store"
	"go.uber.org/zap"
)

// streamServer accepts one websocket connection per request, writes the
// given frames, and closes.
func streamServer(t *testing.T, frames ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		for _, f := range frames {
			if err := conn.Write(r.Context(), websocket.MessageText, []byte(f)); err != nil {
				return
			}
		}
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func collect(t *testing.T, ch <-chan bus.Event, until string) []bus.Event {
	t.Helper()
	var events []bus.Event
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-ch:
			events = append(events, ev)
			if ev.Kind == until {
				return events
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q, saw %+v", until, events)
		}
	}
}

func TestStreamDeliversEvents(t *testing.T) {
	srv := streamServer(t,
		`{"conversation_id":"c1","sender_id":"bob","preview":"hello","timestamp":1000}`,
	)

	b := bus.New()
	machine := status.NewMachine(b)
	ch, unsub := b.Subscribe("stream.", 16)
	defer unsub()

	s := NewStream(srv.URL, b, machine, zap.NewNop())
	s.Start(context.Background())
	defer s.Stop()

	events := collect(t, ch, "stream.down")

	var kinds []string
	var msg *store.InboundEvent
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
		if ev.Kind == "stream.message" {
			msg = ev.Payload.(*store.InboundEvent)
		}
	}
	if kinds[0] != "stream.up" {
		t.Fatalf("first event = %q, want stream.up", kinds[0])
	}
	if msg == nil || msg.ConversationID != "c1" || msg.Preview != "hello" {
		t.Fatalf("unexpected message payload %+v", msg)
	}
}

func TestStreamSkipsMalformedFrames(t *testing.T) {
	srv := streamServer(t,
		`not json`,
		`{"conversation_id":"c2","sender_id":"bob","preview":"after","timestamp":2000}`,
	)

	b := bus.New()
	machine := status.NewMachine(b)
	ch, unsub := b.Subscribe("stream.", 16)
	defer unsub()

	s := NewStream(srv.URL, b, machine, zap.NewNop())
	s.Start(context.Background())
	defer s.Stop()

	events := collect(t, ch, "stream.down")

	var messages []*store.InboundEvent
	for _, ev := range events {
		if ev.Kind == "stream.message" {
			messages = append(messages, ev.Payload.(*store.InboundEvent))
		}
	}
	if len(messages) != 1 || messages[0].ConversationID != "c2" {
		t.Fatalf("expected only the well-formed frame, got %+v", messages)
	}
}

func TestStreamReconnectPassesThroughSyncing(t *testing.T) {
	srv := streamServer(t) // connects, then closes immediately

	b := bus.New()
	machine := status.NewMachine(b)
	ch, unsub := b.Subscribe("stream.", 16)
	defer unsub()

	s := NewStream(srv.URL, b, machine, zap.NewNop())
	s.Start(context.Background())
	defer s.Stop()

	// First connect announces stream.up, loss announces stream.down, and
	// the next connect announces stream.up again: the resync trigger
	// fires on every (re)connect, not just the first.
	collect(t, ch, "stream.down")
	events := collect(t, ch, "stream.up")
	for _, ev := range events {
		if ev.Kind == "stream.message" {
			t.Fatalf("unexpected message %+v", ev)
		}
	}
}

func TestStreamDialFailureDegrades(t *testing.T) {
	b := bus.New()
	machine := status.NewMachine(b)

	s := NewStream("http://127.0.0.1:1", b, machine, zap.NewNop())
	s.Start(context.Background())
	defer s.Stop()

	deadline := time.Now().Add(10 * time.Second)
	for machine.Current() != status.Degraded {
		if time.Now().After(deadline) {
			t.Fatalf("machine = %s, want DEGRADED after repeated dial failures", machine.Current())
		}
		time.Sleep(20 * time.Millisecond)
	}
}
