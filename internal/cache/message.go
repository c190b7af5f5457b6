package cache

import (
	"context"
	"errors"
	"sync"

	"github.com/homedhq/hmsg/internal/bus"
	"go.uber.org/zap"
)

// ErrNotOpen is returned when appending to a conversation that is not the
// currently open one.
var ErrNotOpen = errors.New("conversation is not open")

// MessageSource fetches the message sequence for one conversation.
type MessageSource interface {
	FetchMessages(ctx context.Context, conversationID string) ([]Message, error)
}

// MessageCache holds the message sequence for the one currently open
// conversation. Switching conversations always reloads wholesale; optimistic
// sends are appended immediately and confirmed (or failed) in place later.
type MessageCache struct {
	mu     sync.Mutex
	source MessageSource
	bus    *bus.Bus
	logger *zap.Logger

	current  string
	messages []Message
}

// NewMessageCache creates an empty cache backed by source.
func NewMessageCache(source MessageSource, b *bus.Bus, logger *zap.Logger) *MessageCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageCache{
		source: source,
		bus:    b,
		logger: logger,
	}
}

// LoadForConversation makes conversationID the open conversation and fetches
// its messages, replacing the cache wholesale. A conversation with no
// server-side history yields an empty sequence, not an error.
//
// Switching to a different conversation clears the cache immediately so the
// old thread cannot bleed into the new view. Reloading the one already open
// keeps the last known good sequence until the fetch succeeds; a failed
// refetch leaves it in place.
//
// The response is applied only if conversationID is still the open
// conversation when the fetch resolves; a late response for a conversation
// the user has navigated away from is discarded.
func (c *MessageCache) LoadForConversation(ctx context.Context, conversationID string) ([]Message, error) {
	c.mu.Lock()
	if c.current != conversationID {
		c.current = conversationID
		c.messages = nil
	}
	c.mu.Unlock()

	fetched, err := c.source.FetchMessages(ctx, conversationID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != conversationID {
		c.logger.Debug("discarding stale message fetch",
			zap.String("fetched", conversationID),
			zap.String("open", c.current))
		return nil, nil
	}
	if err != nil {
		c.logger.Warn("message fetch failed, keeping cached thread",
			zap.String("conversation_id", conversationID), zap.Error(err))
		c.publish(bus.ErrorNotice("Failed to load messages"))
		return nil, err
	}

	c.messages = make([]Message, len(fetched))
	copy(c.messages, fetched)

	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out, nil
}

// AppendOptimistic appends a message to the open conversation before any
// network confirmation. Call order defines display order.
func (c *MessageCache) AppendOptimistic(m Message) error {
	c.mu.Lock()
	if c.current == "" || m.ConversationID != c.current {
		c.mu.Unlock()
		return ErrNotOpen
	}
	c.messages = append(c.messages, m)
	c.mu.Unlock()

	c.publish(bus.Event{Kind: bus.KindMessageAppended, Payload: m.DisplayID()})
	return nil
}

// PromoteServerID records the canonical server id for an optimistic message,
// keeping its list position. The message is considered delivered.
func (c *MessageCache) PromoteServerID(correlationID, serverID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.messages {
		if c.messages[i].CorrelationID == correlationID {
			c.messages[i].ServerID = serverID
			c.messages[i].Status = MessageSent
			return true
		}
	}
	return false
}

// MarkFailed flags an optimistic message whose send failed. The message
// stays in place; there is no automatic rollback.
func (c *MessageCache) MarkFailed(correlationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.messages {
		if c.messages[i].CorrelationID == correlationID {
			c.messages[i].Status = MessageFailed
			return true
		}
	}
	return false
}

// Clear empties the cache when leaving the conversation view, so stale
// messages cannot bleed into the next opened conversation.
func (c *MessageCache) Clear() {
	c.mu.Lock()
	c.current = ""
	c.messages = nil
	c.mu.Unlock()
}

// Current returns the open conversation id, or "" if none.
func (c *MessageCache) Current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Messages returns a copy of the open conversation's sequence, oldest first.
func (c *MessageCache) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *MessageCache) publish(evt bus.Event) {
	if c.bus != nil {
		c.bus.Publish(evt)
	}
}
