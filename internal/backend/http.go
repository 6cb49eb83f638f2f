package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/otaviofr/convo/internal/errs"
	"github.com/otaviofr/convo/internal/store"
	"github.com/valyala/fasthttp"
)

const defaultTimeout = 15 * time.Second

// HTTPClient implements Client over the backend's JSON API.
type HTTPClient struct {
	baseURL string
	client  *fasthttp.Client
	timeout time.Duration
}

// NewHTTPClient creates a client for the given base URL (no trailing slash).
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &fasthttp.Client{Name: "convod"},
		timeout: defaultTimeout,
	}
}

// Wire shapes. The backend uses snake_case JSON throughout.

type wireIdentity struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

type wireRequest struct {
	ListID      string `json:"list_id"`
	RequesterID string `json:"requester_id"`
	ApproverID  string `json:"approver_id"`
	Status      string `json:"status"`
	Message     string `json:"message"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

type wireConversation struct {
	ConversationID     string   `json:"conversation_id"`
	Kind               string   `json:"kind"`
	ParticipantIDs     []string `json:"participant_ids"`
	DisplayName        string   `json:"display_name"`
	LastMessagePreview string   `json:"last_message_preview"`
	LastMessageAt      int64    `json:"last_message_at"`
	UnreadCount        int      `json:"unread_count"`
}

func (c *HTTPClient) SearchIdentity(ctx context.Context, query string) (*store.Identity, error) {
	var out struct {
		Found    bool          `json:"found"`
		Identity *wireIdentity `json:"identity"`
	}
	err := c.do(ctx, fasthttp.MethodPost, "/v1/identities/search",
		map[string]string{"query": query}, &out)
	if err != nil {
		return nil, err
	}
	// The envelope is successful even when the lookup failed; an absent or
	// hollow identity is a negative result, never a false match.
	if !out.Found || out.Identity == nil || out.Identity.UserID == "" {
		return nil, fmt.Errorf("identity for %q: %w", query, errs.ErrNotFound)
	}
	return &store.Identity{
		UserID:      out.Identity.UserID,
		DisplayName: out.Identity.DisplayName,
		AvatarURL:   out.Identity.AvatarURL,
	}, nil
}

func (c *HTTPClient) SendFriendRequest(ctx context.Context, requesterID, approverID, message string) (*RequestAck, error) {
	var out struct {
		ListID string `json:"list_id"`
		Status string `json:"status"`
	}
	err := c.do(ctx, fasthttp.MethodPost, "/v1/friend-requests", map[string]string{
		"requester_id": requesterID,
		"approver_id":  approverID,
		"message":      message,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &RequestAck{ListID: out.ListID, Status: store.RequestStatus(out.Status)}, nil
}

func (c *HTTPClient) ListFriendRequests(ctx context.Context, userID string, status store.RequestStatus) (*RequestList, error) {
	path := "/v1/users/" + url.PathEscape(userID) + "/friend-requests"
	if status != "" {
		path += "?status=" + url.QueryEscape(string(status))
	}
	var out struct {
		Outgoing []wireRequest `json:"outgoing"`
		Incoming []wireRequest `json:"incoming"`
	}
	if err := c.do(ctx, fasthttp.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &RequestList{
		Outgoing: fromWireRequests(out.Outgoing),
		Incoming: fromWireRequests(out.Incoming),
	}, nil
}

func (c *HTTPClient) RespondFriendRequest(ctx context.Context, listID string, decision Decision) (*RequestAck, error) {
	var out struct {
		ListID string `json:"list_id"`
		Status string `json:"status"`
	}
	err := c.do(ctx, fasthttp.MethodPost, "/v1/friend-requests/"+url.PathEscape(listID)+"/respond",
		map[string]string{"decision": string(decision)}, &out)
	if err != nil {
		return nil, err
	}
	return &RequestAck{ListID: out.ListID, Status: store.RequestStatus(out.Status)}, nil
}

func (c *HTTPClient) ProvisionDirectConversation(ctx context.Context, selfID, otherID, displayNameHint string) (*ProvisionResult, error) {
	var out struct {
		ConversationID string `json:"conversation_id"`
		Created        bool   `json:"created"`
	}
	// Fixed role markers: the backend deduplicates on the pair regardless
	// of which side shows up as creator.
	err := c.do(ctx, fasthttp.MethodPost, "/v1/conversations/direct", map[string]string{
		"creator_id":        selfID,
		"invitee_id":        otherID,
		"display_name_hint": displayNameHint,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &ProvisionResult{ConversationID: out.ConversationID, Created: out.Created}, nil
}

func (c *HTTPClient) FetchConversations(ctx context.Context, userID string) ([]store.Conversation, error) {
	var out struct {
		Conversations []wireConversation `json:"conversations"`
	}
	path := "/v1/users/" + url.PathEscape(userID) + "/conversations"
	if err := c.do(ctx, fasthttp.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	convs := make([]store.Conversation, 0, len(out.Conversations))
	for _, w := range out.Conversations {
		convs = append(convs, store.Conversation{
			ConversationID:     w.ConversationID,
			Kind:               store.ConversationKind(w.Kind),
			ParticipantIDs:     w.ParticipantIDs,
			DisplayName:        w.DisplayName,
			LastMessagePreview: w.LastMessagePreview,
			LastMessageAt:      w.LastMessageAt,
			UnreadCount:        w.UnreadCount,
		})
	}
	return convs, nil
}

// do performs one JSON round trip and maps the response status onto the
// error taxonomy: 404 → NotFound, 409 → Conflict, 401/403 → Transport,
// remaining 4xx → Validation, everything else non-2xx plus connectivity
// failures → Transport.
func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	op := method + " " + path

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	req.Header.SetMethod(method)
	req.Header.SetContentType("application/json")
	// Correlation id for the backend's request logs.
	req.Header.Set("X-Request-ID", uuid.NewString())
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		req.SetBodyRaw(body)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return errs.Transport(op, err)
	}

	switch sc := resp.StatusCode(); {
	case sc >= 200 && sc < 300:
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return errs.Transport(op, fmt.Errorf("decode response: %w", err))
		}
		return nil
	case sc == fasthttp.StatusNotFound:
		return fmt.Errorf("%s: %w", op, errs.ErrNotFound)
	case sc == fasthttp.StatusConflict:
		return fmt.Errorf("%s: %w", op, errs.ErrConflict)
	case sc == fasthttp.StatusUnauthorized || sc == fasthttp.StatusForbidden:
		// Auth failures are not malformed input; they route to the
		// user-facing failure path like any other backend refusal.
		return errs.Transport(op, fmt.Errorf("status %d", sc))
	case sc >= 400 && sc < 500:
		return fmt.Errorf("%w: %s: status %d", errs.ErrValidation, op, sc)
	default:
		return errs.Transport(op, fmt.Errorf("status %d", sc))
	}
}

func fromWireRequests(ws []wireRequest) []store.FriendRequest {
	reqs := make([]store.FriendRequest, 0, len(ws))
	for _, w := range ws {
		reqs = append(reqs, store.FriendRequest{
			ListID:      w.ListID,
			RequesterID: w.RequesterID,
			ApproverID:  w.ApproverID,
			Status:      store.RequestStatus(w.Status),
			Message:     w.Message,
			CreatedAt:   w.CreatedAt,
			UpdatedAt:   w.UpdatedAt,
		})
	}
	return reqs
}
