// Package backendtest provides an in-memory backend.Client with the same
// idempotence guarantees as the real backend: friend requests and direct
// conversations are deduplicated by unordered pair.
package backendtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/otaviofr/convo/internal/backend"
	"github.com/otaviofr/convo/internal/errs"
	"github.com/otaviofr/convo/internal/store"
)

var _ backend.Client = (*Fake)(nil)

// Fake implements backend.Client against in-memory maps.
type Fake struct {
	mu sync.Mutex

	identities map[string]store.Identity // by user id
	requests   map[string]*store.FriendRequest
	convs      map[string]*store.Conversation
	convByPair map[string]string

	nextListID int
	nextConvID int

	calls map[string]int

	// Err, when set, is returned by every call. Use it to simulate a
	// backend outage.
	Err error

	// ConflictOnTerminalRespond makes RespondFriendRequest return
	// errs.ErrConflict for already-terminal records instead of the real
	// backend's idempotent ack, to exercise the client's retry conversion.
	ConflictOnTerminalRespond bool

	// ProvisionDelay widens the race window in ProvisionDirectConversation
	// so coalescing tests can overlap calls.
	ProvisionDelay time.Duration
}

// New creates an empty fake backend.
func New() *Fake {
	return &Fake{
		identities: make(map[string]store.Identity),
		requests:   make(map[string]*store.FriendRequest),
		convs:      make(map[string]*store.Conversation),
		convByPair: make(map[string]string),
		calls:      make(map[string]int),
	}
}

// AddIdentity seeds a searchable identity.
func (f *Fake) AddIdentity(id store.Identity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.identities[id.UserID] = id
}

// AddConversation seeds a server-side conversation.
func (f *Fake) AddConversation(c store.Conversation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cc := c
	f.convs[c.ConversationID] = &cc
	if pk := cc.PairKey(); pk != "" {
		f.convByPair[pk] = cc.ConversationID
	}
}

// Calls returns how many times the named method was invoked.
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// Request returns the stored request record, or nil.
func (f *Fake) Request(listID string) *store.FriendRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.requests[listID]; ok {
		cp := *r
		return &cp
	}
	return nil
}

func (f *Fake) SearchIdentity(_ context.Context, query string) (*store.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["SearchIdentity"]++
	if f.Err != nil {
		return nil, f.Err
	}
	for _, id := range f.identities {
		if id.UserID == query || id.DisplayName == query {
			cp := id
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("identity for %q: %w", query, errs.ErrNotFound)
}

func (f *Fake) SendFriendRequest(_ context.Context, requesterID, approverID, message string) (*backend.RequestAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["SendFriendRequest"]++
	if f.Err != nil {
		return nil, f.Err
	}
	// Idempotent by pair: a duplicate send answers with the existing
	// pending record.
	pair := store.PairKey(requesterID, approverID)
	for _, r := range f.requests {
		if r.PairKey() == pair && r.Status == store.RequestPending {
			return &backend.RequestAck{ListID: r.ListID, Status: r.Status}, nil
		}
	}
	f.nextListID++
	r := &store.FriendRequest{
		ListID:      fmt.Sprintf("req-%d", f.nextListID),
		RequesterID: requesterID,
		ApproverID:  approverID,
		Status:      store.RequestPending,
		Message:     message,
		CreatedAt:   time.Now().UnixMilli(),
	}
	f.requests[r.ListID] = r
	return &backend.RequestAck{ListID: r.ListID, Status: r.Status}, nil
}

func (f *Fake) ListFriendRequests(_ context.Context, userID string, statusFilter store.RequestStatus) (*backend.RequestList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["ListFriendRequests"]++
	if f.Err != nil {
		return nil, f.Err
	}
	var list backend.RequestList
	for _, r := range f.requests {
		if statusFilter != "" && r.Status != statusFilter {
			continue
		}
		switch userID {
		case r.RequesterID:
			list.Outgoing = append(list.Outgoing, *r)
		case r.ApproverID:
			list.Incoming = append(list.Incoming, *r)
		}
	}
	// Stable within one fetch.
	sort.Slice(list.Outgoing, func(i, j int) bool { return list.Outgoing[i].ListID < list.Outgoing[j].ListID })
	sort.Slice(list.Incoming, func(i, j int) bool { return list.Incoming[i].ListID < list.Incoming[j].ListID })
	return &list, nil
}

func (f *Fake) RespondFriendRequest(_ context.Context, listID string, decision backend.Decision) (*backend.RequestAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["RespondFriendRequest"]++
	if f.Err != nil {
		return nil, f.Err
	}
	r, ok := f.requests[listID]
	if !ok {
		return nil, fmt.Errorf("request %q: %w", listID, errs.ErrNotFound)
	}
	if r.Status.Terminal() {
		if f.ConflictOnTerminalRespond {
			return nil, fmt.Errorf("request %q already %s: %w", listID, r.Status, errs.ErrConflict)
		}
		return &backend.RequestAck{ListID: r.ListID, Status: r.Status}, nil
	}
	if decision == backend.DecisionAccept {
		r.Status = store.RequestAccepted
	} else {
		r.Status = store.RequestDeclined
	}
	r.UpdatedAt = time.Now().UnixMilli()
	return &backend.RequestAck{ListID: r.ListID, Status: r.Status}, nil
}

func (f *Fake) ProvisionDirectConversation(_ context.Context, selfID, otherID, displayNameHint string) (*backend.ProvisionResult, error) {
	if f.ProvisionDelay > 0 {
		time.Sleep(f.ProvisionDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["ProvisionDirectConversation"]++
	if f.Err != nil {
		return nil, f.Err
	}
	pair := store.PairKey(selfID, otherID)
	if id, ok := f.convByPair[pair]; ok {
		return &backend.ProvisionResult{ConversationID: id, Created: false}, nil
	}
	f.nextConvID++
	c := &store.Conversation{
		ConversationID: fmt.Sprintf("conv-%d", f.nextConvID),
		Kind:           store.KindDirect,
		ParticipantIDs: store.SortedPair(selfID, otherID),
		DisplayName:    displayNameHint,
	}
	f.convs[c.ConversationID] = c
	f.convByPair[pair] = c.ConversationID
	return &backend.ProvisionResult{ConversationID: c.ConversationID, Created: true}, nil
}

func (f *Fake) FetchConversations(_ context.Context, _ string) ([]store.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["FetchConversations"]++
	if f.Err != nil {
		return nil, f.Err
	}
	convs := make([]store.Conversation, 0, len(f.convs))
	for _, c := range f.convs {
		convs = append(convs, *c)
	}
	sort.Slice(convs, func(i, j int) bool {
		if convs[i].LastMessageAt != convs[j].LastMessageAt {
			return convs[i].LastMessageAt > convs[j].LastMessageAt
		}
		return convs[i].ConversationID < convs[j].ConversationID
	})
	return convs, nil
}
