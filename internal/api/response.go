// Package api exposes the daemon's local HTTP surface. Clients talk to it
// over the per-session unix socket; the handlers only touch the in-memory
// caches and the outbox, never the platform directly.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// envelope is the uniform response body for every endpoint.
type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, envelope{
		Code:    http.StatusOK,
		Message: "success",
		Data:    data,
	})
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, envelope{
		Code:    status,
		Message: message,
	})
}
