package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/homedhq/hmsg/internal/bus"
	"github.com/homedhq/hmsg/internal/cache"
	"github.com/homedhq/hmsg/internal/outbox"
	"github.com/homedhq/hmsg/internal/status"
	"go.uber.org/zap"
)

// Handlers bundles everything the HTTP surface needs.
type Handlers struct {
	sessionName string
	startedAt   time.Time
	convs       *cache.ConversationStore
	msgs        *cache.MessageCache
	badge       *cache.Badge
	queue       *outbox.Queue
	machine     *status.Machine
	bus         *bus.Bus
	logger      *zap.Logger
}

// NewHandlers creates the handler set for one daemon session.
func NewHandlers(
	sessionName string,
	convs *cache.ConversationStore,
	msgs *cache.MessageCache,
	badge *cache.Badge,
	queue *outbox.Queue,
	machine *status.Machine,
	b *bus.Bus,
	logger *zap.Logger,
) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		sessionName: sessionName,
		startedAt:   time.Now(),
		convs:       convs,
		msgs:        msgs,
		badge:       badge,
		queue:       queue,
		machine:     machine,
		bus:         b,
		logger:      logger,
	}
}

// Router builds the gin engine with all routes registered.
func (h *Handlers) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	v1 := r.Group("/v1")
	{
		v1.GET("/status", h.getStatus)
		v1.GET("/events", h.streamEvents)

		v1.GET("/conversations", h.listConversations)
		v1.POST("/conversations/open", h.openConversation)
		v1.GET("/conversations/:id/messages", h.listMessages)
		v1.POST("/conversations/:id/messages", h.sendMessage)
		v1.DELETE("/conversations/current", h.closeConversation)

		v1.GET("/notifications", h.listNotifications)
		v1.GET("/notifications/unread-count", h.getUnreadCount)
		v1.PUT("/notifications/read-all", h.markAllNotificationsRead)
		v1.PUT("/notifications/:id/read", h.markNotificationRead)
		v1.DELETE("/notifications/:id", h.dismissNotification)
		v1.DELETE("/notifications", h.clearNotifications)
	}

	return r
}
