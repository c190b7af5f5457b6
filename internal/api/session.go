package api

import (
	"time"

	"github.com/gin-gonic/gin"
)

type statusResponse struct {
	Session       string `json:"session"`
	Status        string `json:"status"`
	SinceMs       int64  `json:"since_ms"`
	UptimeMs      int64  `json:"uptime_ms"`
	Conversations int    `json:"conversations"`
	UnreadCount   int    `json:"unread_count"`
	PendingSends  int    `json:"pending_sends"`
}

func (h *Handlers) getStatus(c *gin.Context) {
	ok(c, statusResponse{
		Session:       h.sessionName,
		Status:        string(h.machine.Current()),
		SinceMs:       time.Since(h.machine.Since()).Milliseconds(),
		UptimeMs:      time.Since(h.startedAt).Milliseconds(),
		Conversations: h.convs.Len(),
		UnreadCount:   h.badge.UnreadCount(),
		PendingSends:  len(h.queue.Pending()),
	})
}
