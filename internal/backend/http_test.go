package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/otaviofr/convo/internal/errs"
	"github.com/otaviofr/convo/internal/store"
)

func testServer(t *testing.T, handler http.Handler) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL)
}

func TestSearchIdentity(t *testing.T) {
	c := testServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/identities/search" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("missing request id header")
		}
		var in map[string]string
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Error(err)
		}
		switch in["query"] {
		case "alice":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"found":    true,
				"identity": map[string]string{"user_id": "u-alice", "display_name": "Alice"},
			})
		default:
			// A successful envelope carrying a failed lookup.
			_ = json.NewEncoder(w).Encode(map[string]any{"found": false})
		}
	}))

	id, err := c.SearchIdentity(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if id.UserID != "u-alice" || id.DisplayName != "Alice" {
		t.Fatalf("unexpected identity %+v", id)
	}

	// The hollow envelope is a negative result, not a false match.
	if _, err := c.SearchIdentity(context.Background(), "999999"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStatusCodeMapping(t *testing.T) {
	cases := []struct {
		code int
		want error
	}{
		{http.StatusNotFound, errs.ErrNotFound},
		{http.StatusConflict, errs.ErrConflict},
		{http.StatusBadRequest, errs.ErrValidation},
	}
	for _, tc := range cases {
		c := testServer(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.code)
		}))
		_, err := c.RespondFriendRequest(context.Background(), "req-1", DecisionAccept)
		if !errors.Is(err, tc.want) {
			t.Errorf("status %d: got %v, want %v", tc.code, err, tc.want)
		}
	}

	// Auth refusals are backend failures, not malformed local input.
	for _, code := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		c := testServer(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(code)
		}))
		_, err := c.RespondFriendRequest(context.Background(), "req-1", DecisionAccept)
		if errors.Is(err, errs.ErrValidation) {
			t.Errorf("status %d mapped to validation: %v", code, err)
		}
		if !errs.IsRetryable(err) {
			t.Errorf("status %d: got %v, want a transport error", code, err)
		}
	}
}

func TestServerErrorIsRetryable(t *testing.T) {
	c := testServer(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	_, err := c.FetchConversations(context.Background(), "self")
	if !errs.IsRetryable(err) {
		t.Fatalf("expected a retryable transport error, got %v", err)
	}
}

func TestConnectionRefusedIsRetryable(t *testing.T) {
	c := NewHTTPClient("http://127.0.0.1:1")
	_, err := c.SearchIdentity(context.Background(), "alice")
	if !errs.IsRetryable(err) {
		t.Fatalf("expected a retryable transport error, got %v", err)
	}
}

func TestListFriendRequests(t *testing.T) {
	c := testServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/users/self/friend-requests" {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("status"); got != "pending" {
			t.Errorf("status filter = %q, want pending", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"outgoing": []map[string]any{
				{"list_id": "req-1", "requester_id": "self", "approver_id": "bob", "status": "pending"},
			},
			"incoming": []map[string]any{
				{"list_id": "req-2", "requester_id": "carol", "approver_id": "self", "status": "pending", "message": "hi"},
			},
		})
	}))

	list, err := c.ListFriendRequests(context.Background(), "self", store.RequestPending)
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Outgoing) != 1 || list.Outgoing[0].ApproverID != "bob" {
		t.Fatalf("unexpected outgoing %+v", list.Outgoing)
	}
	if len(list.Incoming) != 1 || list.Incoming[0].Message != "hi" {
		t.Fatalf("unexpected incoming %+v", list.Incoming)
	}
}

func TestProvisionDirectConversation(t *testing.T) {
	c := testServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in["creator_id"] != "self" || in["invitee_id"] != "bob" {
			t.Errorf("unexpected roles %+v", in)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"conversation_id": "conv-1", "created": false})
	}))

	res, err := c.ProvisionDirectConversation(context.Background(), "self", "bob", "Bob")
	if err != nil {
		t.Fatal(err)
	}
	// "already existed" is success, distinguished only by the flag.
	if res.ConversationID != "conv-1" || res.Created {
		t.Fatalf("unexpected result %+v", res)
	}
}
