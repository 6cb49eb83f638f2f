// Package backend defines the contract with the remote messaging backend:
// a request/response client for relationship and provisioning calls, and a
// persistent stream of inbound message events. The backend is the source
// of truth; everything the daemon holds is a cache of its state.
package backend

import (
	"context"

	"github.com/otaviofr/convo/internal/store"
)

// Decision is the approver's answer to a pending friend request.
type Decision string

const (
	DecisionAccept  Decision = "accept"
	DecisionDecline Decision = "decline"
)

// RequestAck is the backend's answer to a friend-request mutation. The
// backend deduplicates by pair, so a repeated send returns the ack of the
// already-existing record rather than an error.
type RequestAck struct {
	ListID string
	Status store.RequestStatus
}

// RequestList is one stable snapshot of the caller's friend requests,
// split by direction, in server order.
type RequestList struct {
	Outgoing []store.FriendRequest
	Incoming []store.FriendRequest
}

// ProvisionResult identifies the single canonical direct conversation for
// a participant pair. Created distinguishes "newly created" from "already
// existed"; both are success.
type ProvisionResult struct {
	ConversationID string
	Created        bool
}

// Client is the request/response surface of the backend.
//
// All methods return errors from the errs taxonomy: errs.ErrNotFound for
// valid negative results, errs.ErrConflict for invalid state transitions,
// and *errs.TransportError for retryable network failures.
type Client interface {
	SearchIdentity(ctx context.Context, query string) (*store.Identity, error)
	SendFriendRequest(ctx context.Context, requesterID, approverID, message string) (*RequestAck, error)
	ListFriendRequests(ctx context.Context, userID string, status store.RequestStatus) (*RequestList, error)
	RespondFriendRequest(ctx context.Context, listID string, decision Decision) (*RequestAck, error)
	ProvisionDirectConversation(ctx context.Context, selfID, otherID, displayNameHint string) (*ProvisionResult, error)
	FetchConversations(ctx context.Context, userID string) ([]store.Conversation, error)
}
