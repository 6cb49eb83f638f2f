// Package provision resolves a participant pair to its single canonical
// direct conversation, creating one on the backend when none exists.
package provision

import (
	"context"
	"strings"

	"github.com/otaviofr/convo/internal/backend"
	"github.com/otaviofr/convo/internal/errs"
	"github.com/otaviofr/convo/internal/index"
	"github.com/otaviofr/convo/internal/metrics"
	"github.com/otaviofr/convo/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Provisioner opens direct conversations. Concurrent calls for the same
// pair are coalesced into one backend request, so tapping "message" twice
// can never create two conversations.
type Provisioner struct {
	client backend.Client
	idx    *index.Index
	db     *store.DB
	logger *zap.Logger
	self   string

	group singleflight.Group
}

// New creates a provisioner acting on behalf of selfID.
func New(client backend.Client, idx *index.Index, db *store.DB, logger *zap.Logger, selfID string) *Provisioner {
	return &Provisioner{client: client, idx: idx, db: db, logger: logger, self: selfID}
}

// GetOrCreateDirect returns the direct conversation between the caller
// and otherID, asking the backend to create it only when neither the
// index nor an in-flight request already covers the pair. On failure no
// partial entry is left behind; the call is safe to retry.
func (p *Provisioner) GetOrCreateDirect(ctx context.Context, otherID, displayNameHint string) (store.Conversation, error) {
	otherID = strings.TrimSpace(otherID)
	if otherID == "" {
		return store.Conversation{}, errs.Validationf("empty peer id")
	}
	if otherID == p.self {
		return store.Conversation{}, errs.Validationf("cannot open a direct conversation with yourself")
	}

	// Fast path: the pair is already indexed.
	if c, ok := p.idx.DirectByPair(p.self, otherID); ok {
		return c, nil
	}

	key := store.PairKey(p.self, otherID)
	v, err, shared := p.group.Do(key, func() (any, error) {
		// Recheck under the flight: a racing call may have finished
		// between our fast path and joining the group.
		if c, ok := p.idx.DirectByPair(p.self, otherID); ok {
			return c, nil
		}

		res, err := p.client.ProvisionDirectConversation(ctx, p.self, otherID, displayNameHint)
		if err != nil {
			return nil, err
		}

		c := store.Conversation{
			ConversationID: res.ConversationID,
			Kind:           store.KindDirect,
			ParticipantIDs: store.SortedPair(p.self, otherID),
			DisplayName:    displayNameHint,
		}
		c = p.idx.Upsert(c)
		if err := p.db.UpsertConversation(&c); err != nil {
			p.logger.Warn("failed to persist provisioned conversation",
				zap.Error(err), zap.String("conversation_id", c.ConversationID))
		}
		p.logger.Info("direct conversation ready",
			zap.String("conversation_id", c.ConversationID),
			zap.String("peer_id", otherID),
			zap.Bool("created", res.Created))
		return c, nil
	})
	if err != nil {
		return store.Conversation{}, err
	}
	if shared {
		metrics.ProvisionCoalesced.Inc()
	}
	return v.(store.Conversation), nil
}
