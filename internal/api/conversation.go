package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/homedhq/hmsg/internal/cache"
	"github.com/homedhq/hmsg/internal/outbox"
	"go.uber.org/zap"
)

func (h *Handlers) listConversations(c *gin.Context) {
	ok(c, h.convs.Conversations())
}

type openConversationRequest struct {
	RecipientID   string `json:"recipient_id" binding:"required"`
	RecipientName string `json:"recipient_name"`
	Role          string `json:"role"`
	Subject       string `json:"subject"`
}

// openConversation ensures a conversation with the recipient exists in the
// list, creating a placeholder when the user arrived from a listing or
// profile page before any message was exchanged.
func (h *Handlers) openConversation(c *gin.Context) {
	var req openConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "recipient_id is required")
		return
	}
	conv := h.convs.UpsertFromContext(req.RecipientID, req.RecipientName, req.Role, req.Subject)
	ok(c, conv)
}

// listMessages opens the conversation: it loads the thread into the message
// cache and clears the conversation's unread state. A fetch failure serves
// the cached thread with a stale marker, so an unreachable platform is
// distinguishable from a genuinely empty conversation.
func (h *Handlers) listMessages(c *gin.Context) {
	id := c.Param("id")

	msgs, err := h.msgs.LoadForConversation(c.Request.Context(), id)
	if err != nil {
		h.logger.Warn("failed to load messages", zap.String("conversation_id", id), zap.Error(err))
		msgs = h.msgs.Messages()
	}
	h.convs.MarkViewed(id)

	if msgs == nil {
		msgs = []cache.Message{}
	}
	ok(c, gin.H{"messages": msgs, "stale": err != nil})
}

type sendMessageRequest struct {
	Text       string          `json:"text"`
	Attachment *sendAttachment `json:"attachment"`
}

// sendAttachment carries the raw content type as reported by the client's
// file picker; the handler derives the mime class from it when the client
// did not classify the file itself.
type sendAttachment struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	MimeClass   string `json:"mime_class"`
	URL         string `json:"url,omitempty"`
}

func (a *sendAttachment) toCache() *cache.Attachment {
	if a == nil {
		return nil
	}
	class := a.MimeClass
	if class == "" {
		class = cache.MimeClassFor(a.ContentType)
	}
	return &cache.Attachment{Name: a.Name, Size: a.Size, MimeClass: class, URL: a.URL}
}

func (h *Handlers) sendMessage(c *gin.Context) {
	id := c.Param("id")

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := h.queue.Enqueue(id, req.Text, req.Attachment.toCache())
	if err != nil {
		switch {
		case errors.Is(err, outbox.ErrEmptyMessage):
			fail(c, http.StatusBadRequest, "message text or attachment required")
		case errors.Is(err, cache.ErrNotOpen):
			fail(c, http.StatusConflict, "conversation is not open")
		default:
			fail(c, http.StatusInternalServerError, err.Error())
		}
		return
	}
	ok(c, msg)
}

// closeConversation drops the open thread from the message cache, e.g. when
// the user navigates back to the conversation list.
func (h *Handlers) closeConversation(c *gin.Context) {
	h.msgs.Clear()
	ok(c, nil)
}
