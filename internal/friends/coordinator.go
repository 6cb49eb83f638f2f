// Package friends coordinates the friend-request lifecycle: sending,
// listing, and answering requests, with the backend as the source of
// truth and the local store as a write-through cache.
package friends

import (
	"context"
	"errors"
	"iter"
	"strings"

	"github.com/otaviofr/convo/internal/backend"
	"github.com/otaviofr/convo/internal/bus"
	"github.com/otaviofr/convo/internal/errs"
	"github.com/otaviofr/convo/internal/metrics"
	"github.com/otaviofr/convo/internal/store"
	"go.uber.org/zap"
)

// Bus event kinds published by the coordinator.
const (
	KindRequestSent = "friends.request_sent"
	KindUpdated     = "friends.updated"
)

// validTransitions maps each request status to the statuses it may move
// to. Terminal statuses admit nothing; there is no un-accept.
var validTransitions = map[store.RequestStatus][]store.RequestStatus{
	store.RequestPending:  {store.RequestAccepted, store.RequestDeclined},
	store.RequestAccepted: {},
	store.RequestDeclined: {},
}

func canTransition(from, to store.RequestStatus) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Coordinator drives friend-request state. All mutations go through the
// backend first; the local store only ever holds acknowledged state.
type Coordinator struct {
	db     *store.DB
	client backend.Client
	bus    *bus.Bus
	logger *zap.Logger
	self   string
}

// New creates a coordinator acting on behalf of selfID.
func New(db *store.DB, client backend.Client, b *bus.Bus, logger *zap.Logger, selfID string) *Coordinator {
	return &Coordinator{db: db, client: client, bus: b, logger: logger, self: selfID}
}

// SendRequest proposes a friendship to approverID. The operation is
// idempotent per pair: while a pending request for the pair exists, on
// either side, repeated sends return that record instead of creating a
// second one.
func (c *Coordinator) SendRequest(ctx context.Context, approverID, message string) (*store.FriendRequest, error) {
	approverID = strings.TrimSpace(approverID)
	if approverID == "" {
		return nil, errs.Validationf("empty approver id")
	}
	if approverID == c.self {
		return nil, errs.Validationf("cannot send a friend request to yourself")
	}

	// Answer from the cache when we already know about a pending
	// request for this pair; the backend would dedupe it anyway.
	if existing, err := c.db.PendingRequestForPair(c.self, approverID); err != nil {
		return nil, err
	} else if existing != nil {
		metrics.FriendRequestOps.WithLabelValues("send", "duplicate").Inc()
		return existing, nil
	}

	ack, err := c.client.SendFriendRequest(ctx, c.self, approverID, message)
	if errors.Is(err, errs.ErrConflict) {
		// Another device of ours raced us. Pull the server's state and
		// answer with whatever request now covers the pair.
		if rerr := c.refresh(ctx); rerr != nil {
			return nil, rerr
		}
		existing, gerr := c.db.PendingRequestForPair(c.self, approverID)
		if gerr != nil {
			return nil, gerr
		}
		if existing != nil {
			metrics.FriendRequestOps.WithLabelValues("send", "duplicate").Inc()
			return existing, nil
		}
		return nil, err
	}
	if err != nil {
		metrics.FriendRequestOps.WithLabelValues("send", "error").Inc()
		return nil, err
	}

	r := &store.FriendRequest{
		ListID:      ack.ListID,
		RequesterID: c.self,
		ApproverID:  approverID,
		Status:      ack.Status,
		Message:     message,
	}
	if err := c.db.UpsertFriendRequest(r); err != nil {
		return nil, err
	}
	stored, err := c.db.GetFriendRequest(ack.ListID)
	if err != nil {
		return nil, err
	}

	metrics.FriendRequestOps.WithLabelValues("send", "ok").Inc()
	c.publish(KindRequestSent, stored)
	c.logger.Info("friend request sent",
		zap.String("list_id", stored.ListID),
		zap.String("approver_id", approverID))
	return stored, nil
}

// ListRequests fetches one direction of the caller's requests from the
// backend, persists the records, and returns them in server order.
func (c *Coordinator) ListRequests(ctx context.Context, outgoing bool, status store.RequestStatus) ([]store.FriendRequest, error) {
	list, err := c.client.ListFriendRequests(ctx, c.self, status)
	if err != nil {
		return nil, err
	}
	for _, r := range append(append([]store.FriendRequest{}, list.Outgoing...), list.Incoming...) {
		rec := r
		if err := c.db.UpsertFriendRequest(&rec); err != nil {
			c.logger.Warn("failed to cache friend request", zap.Error(err), zap.String("list_id", r.ListID))
		}
	}
	if outgoing {
		return list.Outgoing, nil
	}
	return list.Incoming, nil
}

// Requests returns a lazy view over the locally cached requests. Each
// range over the sequence reads a fresh snapshot from the store.
func (c *Coordinator) Requests(outgoing bool, status store.RequestStatus) iter.Seq[store.FriendRequest] {
	return func(yield func(store.FriendRequest) bool) {
		rs, err := c.db.ListFriendRequests(c.self, outgoing, status)
		if err != nil {
			c.logger.Warn("failed to read cached friend requests", zap.Error(err))
			return
		}
		for _, r := range rs {
			if !yield(r) {
				return
			}
		}
	}
}

// Respond answers a pending request. Responding to a request that is
// already terminal, locally or on the backend, is a no-op that returns
// the settled record; the first decision always wins.
func (c *Coordinator) Respond(ctx context.Context, listID string, decision backend.Decision) (*store.FriendRequest, error) {
	if decision != backend.DecisionAccept && decision != backend.DecisionDecline {
		return nil, errs.Validationf("unknown decision %q", decision)
	}

	local, err := c.db.GetFriendRequest(listID)
	if err != nil {
		return nil, err
	}
	if local != nil && local.Status.Terminal() {
		metrics.FriendRequestOps.WithLabelValues("respond", "noop").Inc()
		return local, nil
	}

	ack, err := c.client.RespondFriendRequest(ctx, listID, decision)
	if errors.Is(err, errs.ErrConflict) {
		// Settled elsewhere first. Adopt the server's answer.
		if rerr := c.refresh(ctx); rerr != nil {
			return nil, rerr
		}
		settled, gerr := c.db.GetFriendRequest(listID)
		if gerr != nil {
			return nil, gerr
		}
		if settled != nil {
			metrics.FriendRequestOps.WithLabelValues("respond", "noop").Inc()
			c.publish(KindUpdated, settled)
			return settled, nil
		}
		return nil, err
	}
	if err != nil {
		metrics.FriendRequestOps.WithLabelValues("respond", "error").Inc()
		return nil, err
	}

	if local == nil {
		// We answered a request we had never cached; pull the full
		// record rather than inventing its participants.
		if rerr := c.refresh(ctx); rerr != nil {
			return nil, rerr
		}
		local, err = c.db.GetFriendRequest(listID)
		if err != nil {
			return nil, err
		}
		if local == nil {
			return nil, errs.Validationf("request %q acknowledged but not listed", listID)
		}
	} else {
		if !canTransition(local.Status, ack.Status) && local.Status != ack.Status {
			c.logger.Warn("unexpected status transition from backend",
				zap.String("list_id", listID),
				zap.String("from", string(local.Status)),
				zap.String("to", string(ack.Status)))
		}
		local.Status = ack.Status
		if err := c.db.UpsertFriendRequest(local); err != nil {
			return nil, err
		}
		local, err = c.db.GetFriendRequest(listID)
		if err != nil {
			return nil, err
		}
	}

	metrics.FriendRequestOps.WithLabelValues("respond", "ok").Inc()
	c.publish(KindUpdated, local)
	c.logger.Info("friend request answered",
		zap.String("list_id", listID),
		zap.String("decision", string(decision)))
	return local, nil
}

// AcceptedPeers returns the identities of everyone selfID shares an
// accepted request with, for the contacts list.
func (c *Coordinator) AcceptedPeers() ([]store.Identity, error) {
	return c.db.AcceptedCounterparts(c.self)
}

// refresh pulls the caller's full request list and writes it through to
// the store.
func (c *Coordinator) refresh(ctx context.Context) error {
	list, err := c.client.ListFriendRequests(ctx, c.self, "")
	if err != nil {
		return err
	}
	for _, r := range append(append([]store.FriendRequest{}, list.Outgoing...), list.Incoming...) {
		rec := r
		if err := c.db.UpsertFriendRequest(&rec); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) publish(kind string, r *store.FriendRequest) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(bus.Event{Kind: kind, Payload: r})
}
