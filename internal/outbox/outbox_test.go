package outbox

import (
	"context"
	"errors"
	"testing"

	"github.com/homedhq/hmsg/internal/bus"
	"github.com/homedhq/hmsg/internal/cache"
	"go.uber.org/zap"
)

type fakeConvSource struct {
	convs []cache.Conversation
}

func (f *fakeConvSource) FetchConversations(ctx context.Context) ([]cache.Conversation, error) {
	return f.convs, nil
}

type fakeMsgSource struct {
	msgs []cache.Message
}

func (f *fakeMsgSource) FetchMessages(ctx context.Context, conversationID string) ([]cache.Message, error) {
	return f.msgs, nil
}

type fakePoster struct {
	calls []string
	fail  bool
}

func (f *fakePoster) PostMessage(ctx context.Context, conversationID, correlationID, text string, att *cache.Attachment) (cache.Message, error) {
	f.calls = append(f.calls, correlationID)
	if f.fail {
		return cache.Message{}, errors.New("platform unavailable")
	}
	return cache.Message{
		ServerID:       "srv-" + correlationID,
		ConversationID: conversationID,
		Text:           text,
		Status:         cache.MessageSent,
	}, nil
}

func newTestQueue(t *testing.T) (*Queue, *cache.ConversationStore, *cache.MessageCache) {
	t.Helper()
	b := bus.New()
	convs := cache.NewConversationStore(&fakeConvSource{}, b, zap.NewNop())
	msgs := cache.NewMessageCache(&fakeMsgSource{}, b, zap.NewNop())
	q := NewQueue(convs, msgs, b, zap.NewNop(), "me", "You")
	return q, convs, msgs
}

func openConversation(t *testing.T, convs *cache.ConversationStore, msgs *cache.MessageCache, id string) {
	t.Helper()
	convs.ReplaceAll([]cache.Conversation{{ID: id, ParticipantName: "Alice", LastMessageAt: 100}})
	if _, err := msgs.LoadForConversation(context.Background(), id); err != nil {
		t.Fatalf("LoadForConversation() error = %v", err)
	}
}

func TestEnqueueRejectsEmptyMessage(t *testing.T) {
	q, convs, msgs := newTestQueue(t)
	openConversation(t, convs, msgs, "c1")

	cases := []string{"", "   ", "\t\n"}
	for _, text := range cases {
		if _, err := q.Enqueue("c1", text, nil); !errors.Is(err, ErrEmptyMessage) {
			t.Errorf("Enqueue(%q) error = %v, want ErrEmptyMessage", text, err)
		}
	}
	if got := len(msgs.Messages()); got != 0 {
		t.Errorf("messages after rejected enqueue = %d, want 0", got)
	}
	if got := len(q.Pending()); got != 0 {
		t.Errorf("pending ops after rejected enqueue = %d, want 0", got)
	}
}

func TestEnqueueAttachmentOnlyAllowed(t *testing.T) {
	q, convs, msgs := newTestQueue(t)
	openConversation(t, convs, msgs, "c1")

	att := &cache.Attachment{Name: "lease.pdf", Size: 2048, MimeClass: "pdf"}
	m, err := q.Enqueue("c1", "", att)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if m.Attachment == nil {
		t.Fatal("enqueued message has no attachment")
	}
	conv, _ := convs.Get("c1")
	if conv.LastMessagePreview != "Attached a file" {
		t.Errorf("preview = %q, want %q", conv.LastMessagePreview, "Attached a file")
	}
}

func TestEnqueueAppendsOptimistically(t *testing.T) {
	q, convs, msgs := newTestQueue(t)
	openConversation(t, convs, msgs, "c1")

	m1, err := q.Enqueue("c1", "first", nil)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	m2, err := q.Enqueue("c1", "second", nil)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	got := msgs.Messages()
	if len(got) != 2 {
		t.Fatalf("len(messages) = %d, want 2", len(got))
	}
	if got[0].CorrelationID != m1.CorrelationID || got[1].CorrelationID != m2.CorrelationID {
		t.Error("optimistic messages out of enqueue order")
	}
	for _, m := range got {
		if m.Status != cache.MessageSending {
			t.Errorf("status = %q, want %q", m.Status, cache.MessageSending)
		}
		if !m.FromMe {
			t.Error("optimistic message not marked FromMe")
		}
	}
	if m1.CorrelationID == m2.CorrelationID {
		t.Error("correlation ids not unique")
	}
}

func TestEnqueueRequiresOpenConversation(t *testing.T) {
	q, _, _ := newTestQueue(t)
	if _, err := q.Enqueue("c1", "hello", nil); !errors.Is(err, cache.ErrNotOpen) {
		t.Errorf("Enqueue() error = %v, want ErrNotOpen", err)
	}
}

func TestSenderAckPromotesServerID(t *testing.T) {
	q, convs, msgs := newTestQueue(t)
	openConversation(t, convs, msgs, "c1")

	m, err := q.Enqueue("c1", "hello", nil)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	poster := &fakePoster{}
	s := NewSender(q, msgs, poster, bus.New(), zap.NewNop())
	s.ProcessPending(context.Background())

	if len(poster.calls) != 1 {
		t.Fatalf("poster calls = %d, want 1", len(poster.calls))
	}
	got := msgs.Messages()
	if len(got) != 1 {
		t.Fatalf("len(messages) = %d, want 1", len(got))
	}
	if got[0].ServerID != "srv-"+m.CorrelationID {
		t.Errorf("server id = %q, want %q", got[0].ServerID, "srv-"+m.CorrelationID)
	}
	if got[0].Status != cache.MessageSent {
		t.Errorf("status = %q, want %q", got[0].Status, cache.MessageSent)
	}
	// The acknowledged message stays where it was appended.
	if got[0].CorrelationID != m.CorrelationID {
		t.Error("ack replaced the message instead of promoting it in place")
	}

	ops := q.Pending()
	if len(ops) != 1 || ops[0].Status != OpSent {
		t.Errorf("pending op = %+v, want status %q", ops, OpSent)
	}
}

func TestSenderFailureKeepsMessage(t *testing.T) {
	q, convs, msgs := newTestQueue(t)
	openConversation(t, convs, msgs, "c1")

	if _, err := q.Enqueue("c1", "hello", nil); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	b := bus.New()
	events, unsub := b.Subscribe("notice.", 4)
	defer unsub()

	poster := &fakePoster{fail: true}
	s := NewSender(q, msgs, poster, b, zap.NewNop())
	s.ProcessPending(context.Background())

	got := msgs.Messages()
	if len(got) != 1 {
		t.Fatalf("len(messages) = %d, want 1: failed sends must not be rolled back", len(got))
	}
	if got[0].Status != cache.MessageFailed {
		t.Errorf("status = %q, want %q", got[0].Status, cache.MessageFailed)
	}

	select {
	case evt := <-events:
		n, ok := evt.Payload.(bus.Notice)
		if !ok || n.Level != "error" {
			t.Errorf("notice payload = %+v, want error notice", evt.Payload)
		}
	default:
		t.Error("no notice published for failed send")
	}

	ops := q.Pending()
	if len(ops) != 1 || ops[0].Status != OpFailed || ops[0].Error == "" {
		t.Errorf("pending op = %+v, want failed with error", ops)
	}
}

func TestSenderDrainsQueueInOrder(t *testing.T) {
	q, convs, msgs := newTestQueue(t)
	openConversation(t, convs, msgs, "c1")

	var want []string
	for _, text := range []string{"a", "b", "c"} {
		m, err := q.Enqueue("c1", text, nil)
		if err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
		want = append(want, m.CorrelationID)
	}

	poster := &fakePoster{}
	s := NewSender(q, msgs, poster, bus.New(), zap.NewNop())
	s.ProcessPending(context.Background())

	if len(poster.calls) != len(want) {
		t.Fatalf("poster calls = %d, want %d", len(poster.calls), len(want))
	}
	for i := range want {
		if poster.calls[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, poster.calls[i], want[i])
		}
	}
}
