package backend

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coder/websocket"
	"github.com/otaviofr/convo/internal/bus"
	"github.com/otaviofr/convo/internal/status"
	"github.com/otaviofr/convo/internal/store"
	"go.uber.org/zap"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
	// Dial failures before the machine reports Degraded.
	degradedAfter = 3
)

// wireEvent is one InboundEvent as delivered on the websocket.
type wireEvent struct {
	ConversationID string   `json:"conversation_id"`
	SenderID       string   `json:"sender_id"`
	ParticipantIDs []string `json:"participant_ids"`
	Preview        string   `json:"preview"`
	Timestamp      int64    `json:"timestamp"`
}

// Stream maintains the persistent event connection. It publishes
// "stream.up" on every (re)connect, "stream.message" per inbound event in
// arrival order, and "stream.down" on loss; the ingestor reacts to those,
// never to the socket directly.
type Stream struct {
	url     string
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewStream creates a stream consumer for the given websocket URL.
func NewStream(url string, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *Stream {
	return &Stream{
		url:     url,
		bus:     b,
		machine: machine,
		logger:  logger,
	}
}

// Start begins the connect/read/reconnect loop in the background.
func (s *Stream) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.run(ctx)
}

// Stop tears the connection down and waits for the loop to exit.
func (s *Stream) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *Stream) run(ctx context.Context) {
	defer close(s.done)

	backoff := initialBackoff
	failures := 0

	for ctx.Err() == nil {
		_ = s.machine.Transition(status.Connecting)

		conn, _, err := websocket.Dial(ctx, s.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			s.logger.Warn("stream dial failed", zap.Error(err), zap.Int("failures", failures))
			_ = s.machine.Transition(status.Reconnecting)
			if failures >= degradedAfter {
				_ = s.machine.Transition(status.Degraded)
			}
			if !sleep(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		failures = 0
		backoff = initialBackoff

		// Every (re)connect invalidates the index: events may have been
		// missed, so the ingestor must resynchronize before trusting it.
		_ = s.machine.Transition(status.Syncing)
		s.bus.Publish(bus.Event{Kind: "stream.up"})
		s.logger.Info("stream connected", zap.String("url", s.url))

		s.readLoop(ctx, conn)
		_ = conn.CloseNow()

		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("stream lost")
		_ = s.machine.Transition(status.Reconnecting)
		s.bus.Publish(bus.Event{Kind: "stream.down"})
	}
}

// readLoop publishes events in arrival order until the connection fails.
// A malformed frame is logged and skipped; it never ends consumption.
func (s *Stream) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var we wireEvent
		if err := json.Unmarshal(data, &we); err != nil {
			s.logger.Warn("malformed stream frame", zap.Error(err))
			continue
		}
		s.bus.Publish(bus.Event{
			Kind: "stream.message",
			Payload: &store.InboundEvent{
				ConversationID: we.ConversationID,
				SenderID:       we.SenderID,
				ParticipantIDs: we.ParticipantIDs,
				Preview:        we.Preview,
				Timestamp:      we.Timestamp,
			},
		})
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
