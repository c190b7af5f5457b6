package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/homedhq/hmsg/internal/bus"
	"go.uber.org/zap"
)

// ConversationSource fetches the full conversation list from the platform.
type ConversationSource interface {
	FetchConversations(ctx context.Context) ([]Conversation, error)
}

// ConversationStore holds the authoritative local view of which conversations
// exist, in what order, with what unread state. Reconciliation against the
// platform is full-replace: a successful fetch overwrites the list wholesale,
// a failed fetch leaves the last known good state in place.
type ConversationStore struct {
	mu     sync.RWMutex
	source ConversationSource
	bus    *bus.Bus
	logger *zap.Logger

	conversations []Conversation
}

// NewConversationStore creates an empty store backed by source.
func NewConversationStore(source ConversationSource, b *bus.Bus, logger *zap.Logger) *ConversationStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationStore{
		source: source,
		bus:    b,
		logger: logger,
	}
}

// LoadAll fetches the full conversation set and replaces the local list.
// On fetch failure the local list is untouched and a notice is published.
func (s *ConversationStore) LoadAll(ctx context.Context) ([]Conversation, error) {
	fetched, err := s.source.FetchConversations(ctx)
	if err != nil {
		s.logger.Warn("conversation fetch failed, keeping cached list", zap.Error(err))
		s.publish(bus.ErrorNotice("Failed to load conversations"))
		return nil, err
	}

	s.ReplaceAll(fetched)
	return s.Conversations(), nil
}

// ReplaceAll overwrites the list with fetched conversations. Statuses are
// re-derived and the list is re-sorted; nothing from the prior list survives.
func (s *ConversationStore) ReplaceAll(fetched []Conversation) {
	list := make([]Conversation, len(fetched))
	copy(list, fetched)
	for i := range list {
		list[i].normalize()
	}

	s.mu.Lock()
	s.conversations = list
	s.sortLocked()
	s.mu.Unlock()

	s.publish(bus.Event{Kind: bus.KindConversationsReplaced, Payload: len(list)})
}

// Conversations returns a copy of the list, newest activity first.
func (s *ConversationStore) Conversations() []Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Conversation, len(s.conversations))
	copy(out, s.conversations)
	return out
}

// Get returns the conversation with the given id.
func (s *ConversationStore) Get(id string) (Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.conversations {
		if s.conversations[i].ID == id {
			return s.conversations[i], true
		}
	}
	return Conversation{}, false
}

// Len returns the number of known conversations.
func (s *ConversationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}

// UpsertFromContext returns the conversation with id recipientID if it
// exists, otherwise synthesizes a read placeholder for a chat target that has
// no messages yet (deep-linking into a new conversation) and prepends it.
func (s *ConversationStore) UpsertFromContext(recipientID, recipientName, role, subject string) Conversation {
	s.mu.Lock()
	for i := range s.conversations {
		if s.conversations[i].ID == recipientID {
			c := s.conversations[i]
			s.mu.Unlock()
			return c
		}
	}

	preview := "New conversation"
	if subject != "" {
		preview = "Regarding: " + subject
	}
	if subject == "" {
		subject = "General Inquiry"
	}
	if recipientName == "" {
		recipientName = "Unknown User"
	}
	c := Conversation{
		ID:                 recipientID,
		ParticipantName:    recipientName,
		ParticipantRole:    role,
		Subject:            subject,
		LastMessagePreview: preview,
		LastMessageAt:      time.Now().UnixMilli(),
		UnreadCount:        0,
		Status:             StatusRead,
	}
	s.conversations = append([]Conversation{c}, s.conversations...)
	s.mu.Unlock()

	s.publish(bus.Event{Kind: bus.KindConversationUpserted, Payload: c.ID})
	return c
}

// RecordOutgoing updates the conversation's preview and activity timestamp
// after a local send. Sending never creates unread state for yourself.
func (s *ConversationStore) RecordOutgoing(conversationID, text string, att *Attachment) {
	now := time.Now().UnixMilli()

	s.mu.Lock()
	found := false
	for i := range s.conversations {
		if s.conversations[i].ID == conversationID {
			s.conversations[i].LastMessagePreview = previewFor(text, att)
			s.conversations[i].LastMessageAt = now
			found = true
			break
		}
	}
	if found {
		s.sortLocked()
	}
	s.mu.Unlock()

	if !found {
		s.logger.Debug("outgoing message for unknown conversation", zap.String("conversation_id", conversationID))
	}
}

// MarkViewed clears the unread state for a conversation. Idempotent.
func (s *ConversationStore) MarkViewed(conversationID string) {
	s.mu.Lock()
	changed := false
	for i := range s.conversations {
		if s.conversations[i].ID == conversationID {
			if s.conversations[i].UnreadCount != 0 {
				s.conversations[i].UnreadCount = 0
				s.conversations[i].Status = StatusRead
				changed = true
			}
			break
		}
	}
	s.mu.Unlock()

	if changed {
		s.publish(bus.Event{Kind: bus.KindConversationViewed, Payload: conversationID})
	}
}

// sortLocked orders by LastMessageAt descending. The sort is stable so
// conversations with equal timestamps keep their relative insertion order.
func (s *ConversationStore) sortLocked() {
	sort.SliceStable(s.conversations, func(i, j int) bool {
		return s.conversations[i].LastMessageAt > s.conversations[j].LastMessageAt
	})
}

func (s *ConversationStore) publish(evt bus.Event) {
	if s.bus != nil {
		s.bus.Publish(evt)
	}
}
