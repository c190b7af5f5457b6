package outbox

import (
	"context"
	"time"

	"github.com/homedhq/hmsg/internal/bus"
	"github.com/homedhq/hmsg/internal/cache"
	"go.uber.org/zap"
)

// MessagePoster is the interface for delivering messages to the platform.
type MessagePoster interface {
	PostMessage(ctx context.Context, conversationID, correlationID, text string, att *cache.Attachment) (cache.Message, error)
}

// Sender drains the queue and delivers messages to the platform. Send
// failures are fail-forward: the optimistic message stays in the thread,
// flagged failed, and a notice is surfaced.
type Sender struct {
	queue  *Queue
	msgs   *cache.MessageCache
	poster MessagePoster
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
}

// NewSender creates a sender draining queue via poster.
func NewSender(queue *Queue, msgs *cache.MessageCache, poster MessagePoster, b *bus.Bus, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		queue:  queue,
		msgs:   msgs,
		poster: poster,
		bus:    b,
		logger: logger,
	}
}

// Start begins polling the queue for pending messages.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
}

// Stop stops the sender loop.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Sender) loop(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.ProcessPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// ProcessPending delivers every queued operation once.
func (s *Sender) ProcessPending(ctx context.Context) {
	for {
		op, ok := s.queue.claim()
		if !ok {
			return
		}

		serverMsg, err := s.poster.PostMessage(ctx, op.ConversationID, op.CorrelationID, op.Text, op.Attachment)
		if err != nil {
			s.logger.Error("failed to send message",
				zap.Error(err),
				zap.String("correlation_id", op.CorrelationID))
			s.queue.markFailed(op.CorrelationID, err.Error())
			s.msgs.MarkFailed(op.CorrelationID)
			s.bus.Publish(bus.Event{
				Kind: bus.KindMessageSendFailed,
				Payload: map[string]string{
					"correlation_id": op.CorrelationID,
					"error":          err.Error(),
				},
			})
			s.bus.Publish(bus.ErrorNotice("Failed to send message"))
			continue
		}

		s.queue.markSent(op.CorrelationID, serverMsg.ServerID)
		s.msgs.PromoteServerID(op.CorrelationID, serverMsg.ServerID)

		s.logger.Info("message sent",
			zap.String("correlation_id", op.CorrelationID),
			zap.String("server_id", serverMsg.ServerID))
		s.bus.Publish(bus.Event{
			Kind: bus.KindMessageSendAck,
			Payload: map[string]string{
				"correlation_id": op.CorrelationID,
				"server_id":      serverMsg.ServerID,
			},
		})
	}
}
