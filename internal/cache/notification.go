package cache

import (
	"context"
	"sync"

	"github.com/homedhq/hmsg/internal/bus"
	"go.uber.org/zap"
)

// Counter is the single shared unread aggregate. Every surface that shows a
// badge reads the same instance, so two surfaces can never disagree.
type Counter struct {
	mu sync.Mutex
	n  int
}

// NewCounter creates a counter at zero.
func NewCounter() *Counter {
	return &Counter{}
}

// Value returns the current count.
func (c *Counter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// Set replaces the count. Negative values clamp to zero.
func (c *Counter) Set(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n < 0 {
		n = 0
	}
	c.n = n
}

// Add adjusts the count by delta, flooring at zero.
func (c *Counter) Add(delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n += delta
	if c.n < 0 {
		c.n = 0
	}
}

// Zero resets the count.
func (c *Counter) Zero() {
	c.Set(0)
}

// NotificationSource is the platform side of the badge.
type NotificationSource interface {
	FetchNotifications(ctx context.Context, q NotificationQuery) ([]Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context) error
}

// Badge holds the most recently fetched notification page and owns the
// read/unread transitions against it. The unread aggregate lives in the
// shared Counter, deliberately decoupled from the page-limited record list
// so a small dropdown fetch can never under-report the total.
type Badge struct {
	mu     sync.Mutex
	source NotificationSource
	count  *Counter
	bus    *bus.Bus
	logger *zap.Logger

	records  []Notification
	inFlight map[string]struct{}
}

// NewBadge creates a badge sharing the given counter.
func NewBadge(source NotificationSource, count *Counter, b *bus.Bus, logger *zap.Logger) *Badge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Badge{
		source:   source,
		count:    count,
		bus:      b,
		logger:   logger,
		inFlight: make(map[string]struct{}),
	}
}

// Refresh fetches the most recent page and replaces the local records.
// The unread aggregate is not touched; it is reconciled separately from the
// count endpoint. Fetch failure keeps the prior page and publishes a notice.
func (b *Badge) Refresh(ctx context.Context, q NotificationQuery) ([]Notification, error) {
	fetched, err := b.source.FetchNotifications(ctx, q)
	if err != nil {
		b.logger.Warn("notification fetch failed, keeping cached page", zap.Error(err))
		b.publish(bus.ErrorNotice("Failed to load notifications"))
		return nil, err
	}

	b.mu.Lock()
	b.records = make([]Notification, len(fetched))
	copy(b.records, fetched)
	b.mu.Unlock()

	b.publish(bus.Event{Kind: bus.KindNotificationRefreshed, Payload: len(fetched)})
	return b.Records(), nil
}

// Seed installs records without contacting the platform, used to warm-start
// from a snapshot before the first reconcile. The aggregate is set separately.
func (b *Badge) Seed(records []Notification) {
	b.mu.Lock()
	b.records = make([]Notification, len(records))
	copy(b.records, records)
	b.mu.Unlock()

	b.publish(bus.Event{Kind: bus.KindNotificationRefreshed, Payload: len(records)})
}

// MarkAsRead optimistically flips the record and decrements the aggregate,
// then confirms with the platform. Re-entrant calls for the same id while the
// first is outstanding are no-ops, as are calls for already-read records.
// A failed confirmation is surfaced as a notice but never rolled back.
func (b *Badge) MarkAsRead(ctx context.Context, id string) error {
	b.mu.Lock()
	if _, busy := b.inFlight[id]; busy {
		b.mu.Unlock()
		return nil
	}
	known := false
	for i := range b.records {
		if b.records[i].ID == id {
			known = true
			if b.records[i].Read {
				b.mu.Unlock()
				return nil
			}
			b.records[i].Read = true
			break
		}
	}
	if known {
		b.count.Add(-1)
	}
	b.inFlight[id] = struct{}{}
	b.mu.Unlock()

	b.publish(bus.Event{Kind: bus.KindNotificationRead, Payload: id})

	err := b.source.MarkNotificationRead(ctx, id)

	b.mu.Lock()
	delete(b.inFlight, id)
	b.mu.Unlock()

	if err != nil {
		b.logger.Warn("mark-as-read failed", zap.String("id", id), zap.Error(err))
		b.publish(bus.ErrorNotice("Failed to mark notification as read"))
		return err
	}
	return nil
}

// MarkAllAsRead optimistically flips every local record, zeroes the
// aggregate, then confirms in bulk. Fail-forward like MarkAsRead.
func (b *Badge) MarkAllAsRead(ctx context.Context) error {
	b.mu.Lock()
	for i := range b.records {
		b.records[i].Read = true
	}
	b.mu.Unlock()
	b.count.Zero()

	b.publish(bus.Event{Kind: bus.KindNotificationRead, Payload: "all"})

	if err := b.source.MarkAllNotificationsRead(ctx); err != nil {
		b.logger.Warn("mark-all-as-read failed", zap.Error(err))
		b.publish(bus.ErrorNotice("Failed to mark all notifications as read"))
		return err
	}
	return nil
}

// Dismiss removes a record locally. Dismissing an unread record also
// releases its slot in the aggregate.
func (b *Badge) Dismiss(id string) bool {
	b.mu.Lock()
	removed := false
	wasUnread := false
	for i := range b.records {
		if b.records[i].ID == id {
			wasUnread = !b.records[i].Read
			b.records = append(b.records[:i], b.records[i+1:]...)
			removed = true
			break
		}
	}
	b.mu.Unlock()

	if wasUnread {
		b.count.Add(-1)
	}
	return removed
}

// ClearAll drops every local record, releasing the unread ones from the
// aggregate.
func (b *Badge) ClearAll() {
	b.mu.Lock()
	unread := 0
	for i := range b.records {
		if !b.records[i].Read {
			unread++
		}
	}
	b.records = nil
	b.mu.Unlock()

	if unread > 0 {
		b.count.Add(-unread)
	}
}

// ApplyIncoming inserts a server-pushed notification at the front. Duplicate
// push ids are ignored; a new unread record bumps the aggregate.
func (b *Badge) ApplyIncoming(n Notification) {
	b.mu.Lock()
	for i := range b.records {
		if b.records[i].ID == n.ID {
			b.mu.Unlock()
			return
		}
	}
	b.records = append([]Notification{n}, b.records...)
	b.mu.Unlock()

	if !n.Read {
		b.count.Add(1)
	}
	b.publish(bus.Event{Kind: bus.KindNotificationReceived, Payload: n.ID})
}

// SetAggregate reconciles the aggregate with the platform's count endpoint.
func (b *Badge) SetAggregate(n int) {
	b.count.Set(n)
}

// UnreadCount returns the shared aggregate.
func (b *Badge) UnreadCount() int {
	return b.count.Value()
}

// Records returns a copy of the current page.
func (b *Badge) Records() []Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Notification, len(b.records))
	copy(out, b.records)
	return out
}

func (b *Badge) publish(evt bus.Event) {
	if b.bus != nil {
		b.bus.Publish(evt)
	}
}
