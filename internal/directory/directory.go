// Package directory resolves search queries to identity records and owns
// the local identity cache. It holds no state beyond that cache; every
// search is one request/response cycle against the backend.
package directory

import (
	"context"
	"net/url"
	"strings"

	"github.com/otaviofr/convo/internal/backend"
	"github.com/otaviofr/convo/internal/errs"
	"github.com/otaviofr/convo/internal/store"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

// Directory looks up identities against the backend and caches the results.
type Directory struct {
	client backend.Client
	db     *store.DB
	logger *zap.Logger
}

// New creates a directory backed by the given client and cache.
func New(client backend.Client, db *store.DB, logger *zap.Logger) *Directory {
	return &Directory{client: client, db: db, logger: logger}
}

// Search resolves a query to at most one identity. A blank query is
// rejected before any network call. errs.ErrNotFound is a valid terminal
// result; transport failures are retryable by the caller.
//
// Callers driving a search box are expected to debounce input (300ms of
// quiet) and to route calls through a Searcher so stale results cannot
// overwrite newer ones.
func (d *Directory) Search(ctx context.Context, query string) (*store.Identity, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errs.Validationf("empty search query")
	}

	id, err := d.client.SearchIdentity(ctx, query)
	if err != nil {
		return nil, err
	}

	// Refresh the cache; name and avatar may have changed.
	if err := d.db.UpsertIdentity(id); err != nil {
		d.logger.Warn("failed to cache identity", zap.Error(err), zap.String("user_id", id.UserID))
	}
	return id, nil
}

// Cached returns the locally cached identity, or nil when unknown.
func (d *Directory) Cached(userID string) (*store.Identity, error) {
	return d.db.GetIdentity(userID)
}

// ContactCard encodes an identity's addressable record as a QR PNG, for
// the add-friend-by-code flow. Scanning is the camera collaborator's job.
func ContactCard(id *store.Identity) ([]byte, error) {
	if id == nil || id.UserID == "" {
		return nil, errs.Validationf("identity without user id")
	}
	payload := "convo://identity/" + url.PathEscape(id.UserID)
	if id.DisplayName != "" {
		payload += "?name=" + url.QueryEscape(id.DisplayName)
	}
	return qrcode.Encode(payload, qrcode.Medium, 256)
}
