package api

import (
	"io"

	"github.com/gin-gonic/gin"
)

type eventFrame struct {
	Kind      string `json:"kind"`
	Timestamp int64  `json:"timestamp"`
	Payload   any    `json:"payload"`
}

// streamEvents bridges the internal bus to the client as server-sent
// events. A prefix query narrows the subscription, e.g. ?prefix=notice.
func (h *Handlers) streamEvents(c *gin.Context) {
	prefix := c.Query("prefix")

	ch, unsub := h.bus.Subscribe(prefix, 64)
	defer unsub()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")

	c.Stream(func(w io.Writer) bool {
		select {
		case evt, open := <-ch:
			if !open {
				return false
			}
			c.SSEvent("message", eventFrame{
				Kind:      evt.Kind,
				Timestamp: evt.Timestamp.UnixMilli(),
				Payload:   evt.Payload,
			})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
