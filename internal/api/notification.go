package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/homedhq/hmsg/internal/cache"
)

func (h *Handlers) listNotifications(c *gin.Context) {
	q := cache.NotificationQuery{
		UnreadOnly: c.Query("unread_only") == "true",
		Type:       c.Query("type"),
	}
	if page, err := strconv.Atoi(c.Query("page")); err == nil {
		q.Page = page
	}
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil {
		q.Limit = limit
	}

	records, err := h.badge.Refresh(c.Request.Context(), q)
	if err != nil {
		// Fail soft: serve the cached page with a degraded marker.
		ok(c, gin.H{"notifications": h.badge.Records(), "stale": true})
		return
	}
	ok(c, gin.H{"notifications": records, "stale": false})
}

func (h *Handlers) getUnreadCount(c *gin.Context) {
	ok(c, gin.H{"unread_count": h.badge.UnreadCount()})
}

// markNotificationRead flips the badge optimistically. A failed platform
// confirmation does not undo the flip, so the response reports the local
// state either way and only flags whether the platform acknowledged it.
func (h *Handlers) markNotificationRead(c *gin.Context) {
	id := c.Param("id")
	err := h.badge.MarkAsRead(c.Request.Context(), id)
	ok(c, gin.H{"unread_count": h.badge.UnreadCount(), "confirmed": err == nil})
}

func (h *Handlers) markAllNotificationsRead(c *gin.Context) {
	err := h.badge.MarkAllAsRead(c.Request.Context())
	ok(c, gin.H{"unread_count": h.badge.UnreadCount(), "confirmed": err == nil})
}

func (h *Handlers) dismissNotification(c *gin.Context) {
	id := c.Param("id")
	if !h.badge.Dismiss(id) {
		fail(c, http.StatusNotFound, "notification not found")
		return
	}
	ok(c, gin.H{"unread_count": h.badge.UnreadCount()})
}

func (h *Handlers) clearNotifications(c *gin.Context) {
	h.badge.ClearAll()
	ok(c, gin.H{"unread_count": h.badge.UnreadCount()})
}
