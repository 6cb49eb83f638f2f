package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/otaviofr/convo/internal/bus"
	"github.com/otaviofr/convo/internal/index"
	"github.com/otaviofr/convo/internal/status"
	"github.com/otaviofr/convo/internal/store"
	"go.uber.org/zap"
)

func startDebugServer(t *testing.T, machine *status.Machine, idx *index.Index) *Server {
	t.Helper()
	srv := NewServer(Params{DebugAddr: "127.0.0.1:0"}, machine, idx, zap.NewNop())
	go func() {
		if err := srv.Start(); err != nil {
			t.Errorf("debug server error: %v", err)
		}
	}()
	deadline := time.Now().Add(2 * time.Second)
	for srv.Addr() == nil {
		if time.Now().After(deadline) {
			t.Fatal("debug server did not start")
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Cleanup(func() { srv.Stop(context.Background()) })
	return srv
}

func get(t *testing.T, srv *Server, path string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(fmt.Sprintf("http://%s%s", srv.Addr(), path))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, body
}

func TestDebugServer(t *testing.T) {
	b := bus.New()
	machine := status.NewMachine(b)
	idx := index.New("self", b)
	srv := startDebugServer(t, machine, idx)

	code, body := get(t, srv, "/healthz")
	if code != http.StatusOK {
		t.Fatalf("healthz status = %d", code)
	}
	var health map[string]string
	if err := json.Unmarshal(body, &health); err != nil {
		t.Fatal(err)
	}
	if health["status"] != string(status.Booting) {
		t.Fatalf("health reports %q, want %q", health["status"], status.Booting)
	}

	idx.Upsert(store.Conversation{
		ConversationID: "c1",
		Kind:           store.KindDirect,
		ParticipantIDs: store.SortedPair("self", "bob"),
		LastMessageAt:  1000,
	})

	code, body = get(t, srv, "/debug/conversations")
	if code != http.StatusOK {
		t.Fatalf("conversations status = %d", code)
	}
	var convs []store.Conversation
	if err := json.Unmarshal(body, &convs); err != nil {
		t.Fatal(err)
	}
	if len(convs) != 1 || convs[0].ConversationID != "c1" {
		t.Fatalf("unexpected conversations %+v", convs)
	}

	code, body = get(t, srv, "/metrics")
	if code != http.StatusOK {
		t.Fatalf("metrics status = %d", code)
	}
	if !strings.Contains(string(body), "convo_") {
		t.Fatal("metrics endpoint exposes no convo counters")
	}
}

func TestDebugServerDisabled(t *testing.T) {
	srv := NewServer(Params{}, status.NewMachine(nil), index.New("self", nil), zap.NewNop())
	if srv != nil {
		t.Fatalf("expected nil server without an address, got %+v", srv)
	}
	// The disabled server is safe to drive through the lifecycle hooks.
	if err := srv.Start(); err != nil {
		t.Fatal(err)
	}
	srv.Stop(context.Background())
	if srv.Addr() != nil {
		t.Fatal("disabled server must not report an address")
	}
}
