package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/homedhq/hmsg/internal/bus"
	"github.com/homedhq/hmsg/internal/cache"
	"github.com/homedhq/hmsg/internal/config"
	"github.com/homedhq/hmsg/internal/status"
	"github.com/homedhq/hmsg/internal/store"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// AggregateSource provides the platform-wide unread notification count.
type AggregateSource interface {
	FetchUnreadCount(ctx context.Context) (int, error)
}

// Engine keeps the local caches reconciled with the platform. It runs the
// periodic refresh jobs, feeds pushed notifications from the stream into the
// badge, and persists a snapshot after each successful reconcile so the next
// daemon start has something to show before the first fetch completes.
type Engine struct {
	convs     *cache.ConversationStore
	badge     *cache.Badge
	aggregate AggregateSource
	snapshot  *store.DB // nil when snapshots are disabled
	machine   *status.Machine
	bus       *bus.Bus
	logger    *zap.Logger
	intervals config.Refresh
	timer     *cron.Cron
	cancel    context.CancelFunc
}

// NewEngine creates a refresh engine. snapshot may be nil.
func NewEngine(
	convs *cache.ConversationStore,
	badge *cache.Badge,
	aggregate AggregateSource,
	snapshot *store.DB,
	machine *status.Machine,
	b *bus.Bus,
	intervals config.Refresh,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		convs:     convs,
		badge:     badge,
		aggregate: aggregate,
		snapshot:  snapshot,
		machine:   machine,
		bus:       b,
		logger:    logger,
		intervals: intervals,
		timer:     cron.New(),
	}
}

// Start warm-starts from the snapshot, runs an initial reconcile, registers
// the periodic jobs, and begins consuming pushed notifications.
func (e *Engine) Start(ctx context.Context) error {
	ctx, e.cancel = context.WithCancel(ctx)

	e.warmStart()

	if err := e.registerJobs(ctx); err != nil {
		return fmt.Errorf("register refresh jobs: %w", err)
	}

	go e.consumeStream(ctx)
	go e.initialReconcile(ctx)

	e.timer.Start()
	return nil
}

// Stop stops the refresh jobs and the stream consumer.
func (e *Engine) Stop() {
	e.timer.Stop()
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Engine) registerJobs(ctx context.Context) error {
	jobs := []struct {
		every time.Duration
		run   func()
	}{
		{e.intervals.Conversations.Duration, func() { e.RefreshConversations(ctx) }},
		{e.intervals.Notifications.Duration, func() { e.RefreshNotifications(ctx) }},
		{e.intervals.UnreadCount.Duration, func() { e.RefreshUnreadCount(ctx) }},
	}
	for _, j := range jobs {
		spec := fmt.Sprintf("@every %s", j.every)
		if _, err := e.timer.AddFunc(spec, j.run); err != nil {
			return err
		}
	}
	return nil
}

// warmStart seeds the caches from the on-disk snapshot. Failures only log;
// the initial reconcile will populate the caches either way.
func (e *Engine) warmStart() {
	if e.snapshot == nil {
		return
	}

	convs, err := e.snapshot.LoadConversations()
	if err != nil {
		e.logger.Warn("failed to load conversation snapshot", zap.Error(err))
	} else if len(convs) > 0 {
		e.convs.ReplaceAll(convs)
		e.logger.Info("warm-started conversations from snapshot", zap.Int("count", len(convs)))
	}

	records, count, err := e.snapshot.LoadNotifications()
	if err != nil {
		e.logger.Warn("failed to load notification snapshot", zap.Error(err))
		return
	}
	if len(records) > 0 {
		e.badge.Seed(records)
	}
	e.badge.SetAggregate(count)
}

func (e *Engine) initialReconcile(ctx context.Context) {
	for _, s := range []status.State{status.Connecting, status.Syncing} {
		if err := e.machine.Transition(s); err != nil {
			e.logger.Warn("status transition failed", zap.Error(err))
		}
	}

	convsOK := e.RefreshConversations(ctx)
	notifsOK := e.RefreshNotifications(ctx)
	countOK := e.RefreshUnreadCount(ctx)

	next := status.Ready
	if !convsOK && !notifsOK && !countOK {
		next = status.Degraded
	}
	if err := e.machine.Transition(next); err != nil {
		e.logger.Warn("status transition failed", zap.Error(err))
	}
}

// RefreshConversations reconciles the conversation list and saves the
// snapshot on success. Returns whether the platform fetch succeeded.
func (e *Engine) RefreshConversations(ctx context.Context) bool {
	convs, err := e.convs.LoadAll(ctx)
	if err != nil {
		e.degrade()
		return false
	}
	e.recover()
	e.saveConversationSnapshot(convs)
	e.bus.Publish(bus.Event{Kind: bus.KindSyncConversations, Payload: len(convs)})
	return true
}

// RefreshNotifications reconciles the first notification page.
func (e *Engine) RefreshNotifications(ctx context.Context) bool {
	records, err := e.badge.Refresh(ctx, cache.NotificationQuery{})
	if err != nil {
		e.degrade()
		return false
	}
	e.recover()
	e.saveNotificationSnapshot(records)
	e.bus.Publish(bus.Event{Kind: bus.KindSyncNotifications, Payload: len(records)})
	return true
}

// RefreshUnreadCount reconciles the shared unread aggregate from the
// platform's count endpoint.
func (e *Engine) RefreshUnreadCount(ctx context.Context) bool {
	count, err := e.aggregate.FetchUnreadCount(ctx)
	if err != nil {
		e.logger.Warn("unread count fetch failed", zap.Error(err))
		e.degrade()
		return false
	}
	e.badge.SetAggregate(count)
	e.recover()
	e.bus.Publish(bus.Event{Kind: bus.KindSyncUnreadCount, Payload: count})
	return true
}

// consumeStream feeds pushed notifications from the websocket into the badge.
func (e *Engine) consumeStream(ctx context.Context) {
	ch, unsub := e.bus.Subscribe("platform.", 256)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			e.handleStreamEvent(evt)
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) handleStreamEvent(evt bus.Event) {
	switch evt.Kind {
	case bus.KindStreamNotification:
		n, ok := evt.Payload.(cache.Notification)
		if !ok {
			return
		}
		e.badge.ApplyIncoming(n)
		e.saveNotificationSnapshot(e.badge.Records())
	case bus.KindStreamDisconnected:
		e.degrade()
	case bus.KindStreamConnected:
		e.recover()
	}
}

func (e *Engine) degrade() {
	if e.machine.Current() == status.Ready {
		if err := e.machine.Transition(status.Degraded); err != nil {
			e.logger.Warn("status transition failed", zap.Error(err))
		}
	}
}

func (e *Engine) recover() {
	if e.machine.Current() == status.Degraded {
		if err := e.machine.Transition(status.Ready); err != nil {
			e.logger.Warn("status transition failed", zap.Error(err))
			return
		}
		e.bus.Publish(bus.InfoNotice("Connection to platform restored"))
	}
}

func (e *Engine) saveConversationSnapshot(convs []cache.Conversation) {
	if e.snapshot == nil {
		return
	}
	if err := e.snapshot.SaveConversations(convs); err != nil {
		e.logger.Warn("failed to save conversation snapshot", zap.Error(err))
	}
}

func (e *Engine) saveNotificationSnapshot(records []cache.Notification) {
	if e.snapshot == nil {
		return
	}
	if err := e.snapshot.SaveNotifications(records, e.badge.UnreadCount()); err != nil {
		e.logger.Warn("failed to save notification snapshot", zap.Error(err))
	}
}
