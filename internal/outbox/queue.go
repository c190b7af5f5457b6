package outbox

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/homedhq/hmsg/internal/bus"
	"github.com/homedhq/hmsg/internal/cache"
	"go.uber.org/zap"
)

// ErrEmptyMessage rejects a send with no text and no attachment. Nothing is
// mutated and no network call is made.
var ErrEmptyMessage = errors.New("message text or attachment required")

// Pending operation states.
const (
	OpQueued  = "queued"
	OpSending = "sending"
	OpSent    = "sent"
	OpFailed  = "failed"
)

// PendingOp is the provenance record for one optimistic send. It survives
// after resolution so a future revert/retry policy can be layered on without
// redesigning the stores.
type PendingOp struct {
	CorrelationID  string
	ConversationID string
	Text           string
	Attachment     *cache.Attachment
	Status         string
	Error          string
	ServerID       string
	EnqueuedAt     int64 // unix ms
}

// Queue coordinates the optimistic write path: validate, apply locally,
// record provenance, and hand off to the background sender.
type Queue struct {
	mu     sync.Mutex
	convs  *cache.ConversationStore
	msgs   *cache.MessageCache
	bus    *bus.Bus
	logger *zap.Logger

	selfID   string
	selfName string
	ops      []PendingOp
}

// NewQueue creates an empty queue writing through the given caches.
func NewQueue(convs *cache.ConversationStore, msgs *cache.MessageCache, b *bus.Bus, logger *zap.Logger, selfID, selfName string) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	if selfName == "" {
		selfName = "You"
	}
	return &Queue{
		convs:    convs,
		msgs:     msgs,
		bus:      b,
		logger:   logger,
		selfID:   selfID,
		selfName: selfName,
	}
}

// Enqueue validates and applies an outgoing message optimistically: it is
// appended to the open conversation and reflected in the conversation list
// before any network traffic, then queued for the sender.
func (q *Queue) Enqueue(conversationID, text string, att *cache.Attachment) (cache.Message, error) {
	if strings.TrimSpace(text) == "" && att == nil {
		return cache.Message{}, ErrEmptyMessage
	}

	now := time.Now().UnixMilli()
	msg := cache.Message{
		CorrelationID:  uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       q.selfID,
		SenderName:     q.selfName,
		FromMe:         true,
		Text:           strings.TrimSpace(text),
		Attachment:     att,
		CreatedAt:      now,
		Status:         cache.MessageSending,
	}

	if err := q.msgs.AppendOptimistic(msg); err != nil {
		return cache.Message{}, err
	}
	q.convs.RecordOutgoing(conversationID, text, att)

	q.mu.Lock()
	q.ops = append(q.ops, PendingOp{
		CorrelationID:  msg.CorrelationID,
		ConversationID: conversationID,
		Text:           msg.Text,
		Attachment:     att,
		Status:         OpQueued,
		EnqueuedAt:     now,
	})
	q.mu.Unlock()

	q.bus.Publish(bus.Event{Kind: bus.KindMessageQueued, Payload: msg.CorrelationID})
	return msg, nil
}

// Pending returns a copy of every provenance record, oldest first.
func (q *Queue) Pending() []PendingOp {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]PendingOp, len(q.ops))
	copy(out, q.ops)
	return out
}

// claim returns the oldest queued operation, marking it sending.
func (q *Queue) claim() (PendingOp, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.ops {
		if q.ops[i].Status == OpQueued {
			q.ops[i].Status = OpSending
			return q.ops[i], true
		}
	}
	return PendingOp{}, false
}

func (q *Queue) markSent(correlationID, serverID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.ops {
		if q.ops[i].CorrelationID == correlationID {
			q.ops[i].Status = OpSent
			q.ops[i].ServerID = serverID
			return
		}
	}
}

func (q *Queue) markFailed(correlationID, errMsg string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.ops {
		if q.ops[i].CorrelationID == correlationID {
			q.ops[i].Status = OpFailed
			q.ops[i].Error = errMsg
			return
		}
	}
}
