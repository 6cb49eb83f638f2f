package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/otaviofr/convo/internal/backend/backendtest"
	"github.com/otaviofr/convo/internal/bus"
	"github.com/otaviofr/convo/internal/errs"
	"github.com/otaviofr/convo/internal/index"
	"github.com/otaviofr/convo/internal/store"
	"go.uber.org/zap"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestBusSubscription(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	ix := index.New("self", nil)
	in := New(ix, backendtest.New(), db, b, nil, zap.NewNop(), "self")

	in.Start(context.Background())
	defer in.Stop()

	b.Publish(bus.Event{
		Kind: "stream.message",
		Payload: &store.InboundEvent{
			ConversationID: "c1", SenderID: "bob", Preview: "from bus", Timestamp: 1000,
		},
	})

	waitFor(t, func() bool { return ix.Len() == 1 })

	c, ok := ix.Get("c1")
	if !ok || c.LastMessagePreview != "from bus" || c.UnreadCount != 1 {
		t.Errorf("conversation = %+v, want preview='from bus' unread=1", c)
	}

	// Persisted as warm cache for the next cold start.
	stored, err := db.GetConversation("c1")
	if err != nil {
		t.Fatal(err)
	}
	if stored == nil || stored.LastMessagePreview != "from bus" {
		t.Errorf("stored = %+v, want write-through copy", stored)
	}
}

func TestMalformedEventSkipped(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	ix := index.New("self", nil)
	in := New(ix, backendtest.New(), db, b, nil, zap.NewNop(), "self")

	in.Start(context.Background())
	defer in.Stop()

	// Missing conversation id: logged and skipped.
	b.Publish(bus.Event{
		Kind:    "stream.message",
		Payload: &store.InboundEvent{SenderID: "bob", Timestamp: 1000},
	})
	// Wrong payload type entirely.
	b.Publish(bus.Event{Kind: "stream.message", Payload: "garbage"})
	// Consumption continues: a good event still lands.
	b.Publish(bus.Event{
		Kind: "stream.message",
		Payload: &store.InboundEvent{
			ConversationID: "c1", SenderID: "bob", Preview: "ok", Timestamp: 2000,
		},
	})

	waitFor(t, func() bool { return ix.Len() == 1 })
	c, _ := ix.Get("c1")
	if c.LastMessagePreview != "ok" {
		t.Errorf("preview = %q, want ok", c.LastMessagePreview)
	}
}

func TestResyncOnStreamUp(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	fake := backendtest.New()
	fake.AddConversation(store.Conversation{
		ConversationID: "c1", Kind: store.KindDirect,
		ParticipantIDs: []string{"bob", "self"}, LastMessageAt: 100,
	})
	ix := index.New("self", nil)
	in := New(ix, fake, db, b, nil, zap.NewNop(), "self")

	in.Start(context.Background())
	defer in.Stop()

	b.Publish(bus.Event{Kind: "stream.up"})

	waitFor(t, func() bool { return ix.Len() == 1 })
	if fake.Calls("FetchConversations") != 1 {
		t.Errorf("fetch calls = %d, want 1", fake.Calls("FetchConversations"))
	}
}

// TestColdStartRace covers the scenario where an event for a fourth,
// previously unknown conversation arrives before the cold-start fetch of
// three server-side conversations completes: afterwards exactly four
// entries exist, none duplicated.
func TestColdStartRace(t *testing.T) {
	db := testDB(t)
	fake := backendtest.New()
	for i, peer := range []string{"bob", "carol", "dave"} {
		fake.AddConversation(store.Conversation{
			ConversationID: "c" + string(rune('1'+i)), Kind: store.KindDirect,
			ParticipantIDs: []string{peer, "self"}, LastMessageAt: int64(100 * (i + 1)),
		})
	}
	ix := index.New("self", nil)
	in := New(ix, fake, db, bus.New(), nil, zap.NewNop(), "self")

	// Live event for a fourth conversation lands before the fetch.
	in.apply(store.InboundEvent{
		ConversationID: "c4", SenderID: "erin", Preview: "early", Timestamp: 999,
	})

	if err := in.ColdStart(context.Background()); err != nil {
		t.Fatal(err)
	}

	if ix.Len() != 4 {
		t.Fatalf("index has %d conversations, want 4", ix.Len())
	}
	c, ok := ix.Get("c4")
	if !ok || c.LastMessagePreview != "early" || c.UnreadCount != 1 {
		t.Errorf("c4 = %+v, want evented state preserved", c)
	}
}

func TestColdStartWarmsFromCache(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertConversation(&store.Conversation{
		ConversationID: "c1", Kind: store.KindDirect,
		ParticipantIDs: []string{"bob", "self"}, LastMessagePreview: "cached", LastMessageAt: 100,
	}); err != nil {
		t.Fatal(err)
	}

	fake := backendtest.New()
	fake.Err = errs.Transport("fetch conversations", errors.New("backend down"))
	ix := index.New("self", nil)
	in := New(ix, fake, db, bus.New(), nil, zap.NewNop(), "self")

	// The fetch fails, but the warm cache is already usable.
	err := in.ColdStart(context.Background())
	if !errs.IsRetryable(err) {
		t.Errorf("ColdStart error = %v, want retryable transport error", err)
	}
	if ix.Len() != 1 {
		t.Errorf("index has %d conversations, want warm cache entry", ix.Len())
	}
}

func TestResyncMergesWithLiveEvents(t *testing.T) {
	db := testDB(t)
	fake := backendtest.New()
	fake.AddConversation(store.Conversation{
		ConversationID: "c1", Kind: store.KindDirect,
		ParticipantIDs: []string{"bob", "self"},
		LastMessageAt:  100, LastMessagePreview: "server snapshot",
	})
	ix := index.New("self", nil)
	in := New(ix, fake, db, bus.New(), nil, zap.NewNop(), "self")

	// A live event newer than the server snapshot arrives first.
	in.apply(store.InboundEvent{
		ConversationID: "c1", SenderID: "bob", Preview: "live", Timestamp: 200,
	})

	if err := in.Resync(context.Background()); err != nil {
		t.Fatal(err)
	}

	c, _ := ix.Get("c1")
	if c.LastMessagePreview != "live" || c.LastMessageAt != 200 {
		t.Errorf("display = %q@%d, want live@200 kept over older snapshot", c.LastMessagePreview, c.LastMessageAt)
	}
}
