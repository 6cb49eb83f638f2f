// Package ingest merges the inbound event stream into the conversation
// index. It subscribes to "stream." events on the bus and processes them;
// the stream transport never calls the index directly.
package ingest

import (
	"context"

	"github.com/otaviofr/convo/internal/backend"
	"github.com/otaviofr/convo/internal/bus"
	"github.com/otaviofr/convo/internal/index"
	"github.com/otaviofr/convo/internal/metrics"
	"github.com/otaviofr/convo/internal/status"
	"github.com/otaviofr/convo/internal/store"
	"go.uber.org/zap"
)

// Ingestor applies stream events to the index and owns the cold-start and
// resynchronization paths.
type Ingestor struct {
	idx     *index.Index
	client  backend.Client
	db      *store.DB
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger
	self    string
	cancel  context.CancelFunc
}

// New creates an ingestor for the given session user.
func New(idx *index.Index, client backend.Client, db *store.DB, b *bus.Bus, machine *status.Machine, logger *zap.Logger, selfID string) *Ingestor {
	return &Ingestor{
		idx:     idx,
		client:  client,
		db:      db,
		bus:     b,
		machine: machine,
		logger:  logger,
		self:    selfID,
	}
}

// Start subscribes to inbound stream events on the bus. Events are applied
// in arrival order, one at a time, as soon as they arrive.
func (in *Ingestor) Start(ctx context.Context) {
	ctx, in.cancel = context.WithCancel(ctx)
	ch, unsub := in.bus.Subscribe("stream.", 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				in.handleEvent(ctx, evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the ingestor.
func (in *Ingestor) Stop() {
	if in.cancel != nil {
		in.cancel()
	}
}

func (in *Ingestor) handleEvent(ctx context.Context, evt bus.Event) {
	switch evt.Kind {
	case "stream.message":
		ev, ok := evt.Payload.(*store.InboundEvent)
		if !ok {
			in.logger.Warn("unexpected stream payload, skipping", zap.String("kind", evt.Kind))
			metrics.EventsSkipped.Inc()
			return
		}
		in.apply(*ev)
	case "stream.up":
		// The connection was (re-)established; events may have been
		// missed while it was down, so the fetch is mandatory.
		if err := in.Resync(ctx); err != nil {
			in.logger.Warn("resync after reconnect failed", zap.Error(err))
		}
	}
}

// apply merges one event. A malformed event is logged and skipped; it is
// never fatal to stream consumption.
func (in *Ingestor) apply(ev store.InboundEvent) {
	c, err := in.idx.ApplyEvent(ev)
	if err != nil {
		in.logger.Warn("skipping malformed event",
			zap.Error(err), zap.String("conversation_id", ev.ConversationID))
		metrics.EventsSkipped.Inc()
		return
	}
	metrics.EventsIngested.Inc()
	if err := in.db.UpsertConversation(&c); err != nil {
		in.logger.Error("failed to persist conversation",
			zap.Error(err), zap.String("conversation_id", c.ConversationID))
	}
}

// ColdStart warms the index from the local cache so the session can render
// immediately, then resynchronizes from the backend. Events arriving while
// the fetch is in flight merge by id and pair; nothing is duplicated.
func (in *Ingestor) ColdStart(ctx context.Context) error {
	cached, err := in.db.ListConversations()
	if err != nil {
		return err
	}
	for _, c := range cached {
		in.idx.Upsert(c)
	}
	in.logger.Info("index warmed from cache", zap.Int("conversations", len(cached)))
	return in.Resync(ctx)
}

// Resync replaces the index's knowledge with the authoritative fetch. The
// fetch is upsert-only: conversations the server no longer lists are
// removed by explicit events, never by omission.
func (in *Ingestor) Resync(ctx context.Context) error {
	convs, err := in.client.FetchConversations(ctx, in.self)
	if err != nil {
		metrics.Resyncs.WithLabelValues("error").Inc()
		return err
	}
	for _, c := range convs {
		merged := in.idx.Upsert(c)
		if err := in.db.UpsertConversation(&merged); err != nil {
			in.logger.Error("failed to persist conversation",
				zap.Error(err), zap.String("conversation_id", merged.ConversationID))
		}
	}
	metrics.Resyncs.WithLabelValues("ok").Inc()
	if in.machine != nil {
		_ = in.machine.Transition(status.Ready)
	}
	in.logger.Info("resync complete", zap.Int("conversations", len(convs)))
	return nil
}
