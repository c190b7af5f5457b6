package platform

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/homedhq/hmsg/internal/bus"
	"github.com/homedhq/hmsg/internal/cache"
	"go.uber.org/zap"
)

const (
	streamInitialBackoff = time.Second
	streamMaxBackoff     = 30 * time.Second
)

// Stream consumes server-pushed notifications over a websocket and republishes
// them on the bus. It reconnects with exponential backoff until stopped.
type Stream struct {
	url    string
	token  string
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
}

// NewStream creates a stream consumer. An empty url disables it.
func NewStream(url, token string, b *bus.Bus, logger *zap.Logger) *Stream {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stream{
		url:    url,
		token:  token,
		bus:    b,
		logger: logger,
	}
}

// Start launches the connect/read loop in the background. No-op when the
// stream has no url configured.
func (s *Stream) Start(ctx context.Context) {
	if s.url == "" {
		s.logger.Info("notification stream disabled")
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
}

// Stop stops the stream.
func (s *Stream) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Stream) loop(ctx context.Context) {
	backoff := streamInitialBackoff
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := s.dial(ctx)
		if err != nil {
			s.logger.Warn("stream dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff = min(backoff*2, streamMaxBackoff)
			continue
		}

		s.logger.Info("notification stream connected")
		s.bus.Publish(bus.Event{Kind: bus.KindStreamConnected})
		backoff = streamInitialBackoff

		s.readLoop(ctx, conn)
		_ = conn.Close()
		s.bus.Publish(bus.Event{Kind: bus.KindStreamDisconnected})
	}
}

func (s *Stream) dial(ctx context.Context) (*websocket.Conn, error) {
	header := map[string][]string{}
	if s.token != "" {
		header["Authorization"] = []string{"Bearer " + s.token}
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, header)
	return conn, err
}

func (s *Stream) readLoop(ctx context.Context, conn *websocket.Conn) {
	// Unblock ReadJSON when the daemon stops.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		var frame pushFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("stream read failed", zap.Error(err))
			}
			return
		}
		if frame.Event != "new_notification" {
			continue
		}
		n := frame.Notification.toCache()
		if n.ID == "" {
			continue
		}
		s.bus.Publish(bus.Event{
			Kind:    bus.KindStreamNotification,
			Payload: n,
		})
	}
}

type pushFrame struct {
	Event        string          `json:"event"`
	Notification notificationDTO `json:"notification"`
}

// compile-time interface checks for the cache sources
var (
	_ cache.ConversationSource = (*Client)(nil)
	_ cache.MessageSource      = (*Client)(nil)
	_ cache.NotificationSource = (*Client)(nil)
)
