// Package index holds the live, session-owned view of all conversations:
// ordering, unread counts, last-message previews. It is a cache of server
// state, mutated from several sources (user actions, the inbound stream,
// resync) that interleave arbitrarily; every mutation is atomic with
// respect to a single call and observers are notified over the bus.
package index

import (
	"sort"
	"sync"

	"github.com/otaviofr/convo/internal/bus"
	"github.com/otaviofr/convo/internal/errs"
	"github.com/otaviofr/convo/internal/store"
)

// Index is the in-memory conversation index for one logged-in session.
type Index struct {
	mu     sync.RWMutex
	self   string
	byID   map[string]*store.Conversation
	byPair map[string]string
	bus    *bus.Bus
}

// New creates an empty index for the given current user. The bus may be
// nil in tests; then no change notifications are emitted.
func New(selfID string, b *bus.Bus) *Index {
	return &Index{
		self:   selfID,
		byID:   make(map[string]*store.Conversation),
		byPair: make(map[string]string),
		bus:    b,
	}
}

// Upsert merges an authoritative conversation snapshot (cold-start fetch,
// resync, provisioning result) into the index and returns the merged
// record. Newer local state is kept for display fields: a snapshot whose
// timestamp is behind the entry's does not rewind preview or the unread
// count, and the display name is set-once. Structure is the opposite: the
// snapshot's kind and participants overwrite whatever a synthesized entry
// had to guess, so an entry created from an event with unknown
// participants heals on the next resync.
func (ix *Index) Upsert(in store.Conversation) store.Conversation {
	ix.mu.Lock()
	cur, ok := ix.byID[in.ConversationID]
	if !ok {
		// A direct snapshot whose pair is already indexed under another
		// id merges into that entry; a pair never gets a second one.
		if pk := in.PairKey(); pk != "" {
			if id, dup := ix.byPair[pk]; dup {
				cur, ok = ix.byID[id], true
			}
		}
	}
	if !ok {
		cp := in
		cur = &cp
		ix.byID[cp.ConversationID] = cur
	} else {
		if in.LastMessageAt >= cur.LastMessageAt && in.LastMessageAt > 0 {
			cur.LastMessageAt = in.LastMessageAt
			cur.LastMessagePreview = in.LastMessagePreview
			cur.UnreadCount = in.UnreadCount
		}
		if cur.DisplayName == "" {
			cur.DisplayName = in.DisplayName
		}
		if in.Kind != "" {
			cur.Kind = in.Kind
		}
		if len(in.ParticipantIDs) > 0 {
			cur.ParticipantIDs = in.ParticipantIDs
		}
	}
	if pk := cur.PairKey(); pk != "" {
		ix.byPair[pk] = cur.ConversationID
	}
	out := *cur
	ix.mu.Unlock()

	ix.notify(out.ConversationID)
	return out
}

// ApplyEvent applies one inbound message event. An unknown conversation is
// synthesized from the event's participants — unless the participant pair
// is already indexed under another id, in which case the content applies
// to that entry (a direct pair never gets a second entry). Display fields
// follow last-writer-by-timestamp; the unread counter always increments
// for events the current user did not author.
func (ix *Index) ApplyEvent(ev store.InboundEvent) (store.Conversation, error) {
	if ev.ConversationID == "" {
		return store.Conversation{}, errs.Validationf("event without conversation id")
	}
	if ev.Timestamp <= 0 {
		return store.Conversation{}, errs.Validationf("event for %s without timestamp", ev.ConversationID)
	}

	ix.mu.Lock()
	cur, ok := ix.byID[ev.ConversationID]
	if !ok {
		parts := ev.ParticipantIDs
		if len(parts) == 0 && ev.SenderID != "" && ev.SenderID != ix.self {
			parts = store.SortedPair(ev.SenderID, ix.self)
		}
		if len(parts) == 2 {
			if id, dup := ix.byPair[store.PairKey(parts[0], parts[1])]; dup {
				cur, ok = ix.byID[id], true
			}
		}
		if !ok {
			kind := store.KindGroup
			if len(parts) == 2 {
				kind = store.KindDirect
			}
			cur = &store.Conversation{
				ConversationID: ev.ConversationID,
				Kind:           kind,
				ParticipantIDs: parts,
			}
			ix.byID[cur.ConversationID] = cur
			if pk := cur.PairKey(); pk != "" {
				ix.byPair[pk] = cur.ConversationID
			}
		}
	}

	if ev.SenderID != ix.self {
		cur.UnreadCount++
	}
	if ev.Timestamp >= cur.LastMessageAt {
		cur.LastMessageAt = ev.Timestamp
		cur.LastMessagePreview = ev.Preview
	}
	out := *cur
	ix.mu.Unlock()

	ix.notify(out.ConversationID)
	return out, nil
}

// MarkRead resets the unread counter in a single write.
func (ix *Index) MarkRead(conversationID string) {
	ix.mu.Lock()
	c, ok := ix.byID[conversationID]
	if ok {
		c.UnreadCount = 0
	}
	ix.mu.Unlock()
	if ok {
		ix.notify(conversationID)
	}
}

// Get returns a snapshot of the conversation with the given id.
func (ix *Index) Get(conversationID string) (store.Conversation, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	c, ok := ix.byID[conversationID]
	if !ok {
		return store.Conversation{}, false
	}
	return *c, true
}

// DirectByPair returns the single direct conversation between the two
// identities, if the index holds one.
func (ix *Index) DirectByPair(a, b string) (store.Conversation, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	id, ok := ix.byPair[store.PairKey(a, b)]
	if !ok {
		return store.Conversation{}, false
	}
	return *ix.byID[id], true
}

// OrderedView returns all conversations sorted by last message timestamp
// descending, ties broken by conversation id for determinism.
func (ix *Index) OrderedView() []store.Conversation {
	ix.mu.RLock()
	out := make([]store.Conversation, 0, len(ix.byID))
	for _, c := range ix.byID {
		out = append(out, *c)
	}
	ix.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].LastMessageAt != out[j].LastMessageAt {
			return out[i].LastMessageAt > out[j].LastMessageAt
		}
		return out[i].ConversationID < out[j].ConversationID
	})
	return out
}

// Len returns the number of indexed conversations.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.byID)
}

// Reset drops all entries. Called on logout; nothing survives into another
// identity's session.
func (ix *Index) Reset() {
	ix.mu.Lock()
	ix.byID = make(map[string]*store.Conversation)
	ix.byPair = make(map[string]string)
	ix.mu.Unlock()
	if ix.bus != nil {
		ix.bus.Publish(bus.Event{Kind: "index.reset"})
	}
}

func (ix *Index) notify(conversationID string) {
	if ix.bus == nil {
		return
	}
	ix.bus.Publish(bus.Event{
		Kind:    "index.changed",
		Payload: map[string]string{"conversation_id": conversationID},
	})
}
