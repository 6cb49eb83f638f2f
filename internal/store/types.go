package store

import "strings"

// Identity is a user's stable, addressable record. UserID is immutable;
// display name and avatar may be refreshed by a later directory lookup.
type Identity struct {
	UserID      string
	DisplayName string
	AvatarURL   string
}

// RequestStatus is the lifecycle state of a friend request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestDeclined RequestStatus = "declined"
)

// Terminal reports whether the status admits no further transition.
func (s RequestStatus) Terminal() bool {
	return s == RequestAccepted || s == RequestDeclined
}

// FriendRequest is a directed record proposing a friendship. ListID is
// server-assigned and absent until the backend acknowledges creation;
// records are never deleted, only transitioned.
type FriendRequest struct {
	ListID      string
	RequesterID string
	ApproverID  string
	Status      RequestStatus
	Message     string
	CreatedAt   int64
	UpdatedAt   int64
}

// Counterpart returns whichever side of the request is not selfID.
func (r *FriendRequest) Counterpart(selfID string) string {
	if r.RequesterID == selfID {
		return r.ApproverID
	}
	return r.RequesterID
}

// PairKey returns the canonical unordered-pair key for the request.
func (r *FriendRequest) PairKey() string {
	return PairKey(r.RequesterID, r.ApproverID)
}

// ConversationKind distinguishes one-on-one sessions from group sessions.
type ConversationKind string

const (
	KindDirect ConversationKind = "direct"
	KindGroup  ConversationKind = "group"
)

// Conversation is one messaging session as seen by the current user.
type Conversation struct {
	ConversationID     string
	Kind               ConversationKind
	ParticipantIDs     []string
	DisplayName        string
	LastMessagePreview string
	LastMessageAt      int64
	UnreadCount        int
}

// PairKey returns the unordered participant-pair key for direct
// conversations, or "" for any other kind.
func (c *Conversation) PairKey() string {
	if c.Kind != KindDirect || len(c.ParticipantIDs) != 2 {
		return ""
	}
	return PairKey(c.ParticipantIDs[0], c.ParticipantIDs[1])
}

// InboundEvent is a single real-time notification of new message activity,
// parsed from the stream's wire form.
type InboundEvent struct {
	ConversationID string
	SenderID       string
	ParticipantIDs []string
	Preview        string
	Timestamp      int64
}

// PairKey canonicalizes an unordered identity pair into a single key.
// Both orders of the same pair produce the same key.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// SortedPair returns the pair in canonical order.
func SortedPair(a, b string) []string {
	if b < a {
		a, b = b, a
	}
	return []string{a, b}
}

// joinParticipants and splitParticipants persist participant sets in a
// single text column. IDs never contain the separator (validated at the
// backend boundary).
func joinParticipants(ids []string) string {
	return strings.Join(ids, ",")
}

func splitParticipants(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
