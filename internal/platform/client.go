package platform

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/homedhq/hmsg/internal/cache"
	"github.com/homedhq/hmsg/internal/config"
	"go.uber.org/zap"
)

// Safety cap when draining paginated list endpoints.
const maxPages = 50

// APIError is a non-2xx response from the platform.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("platform: %d %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("platform: status %d", e.StatusCode)
}

// Client talks to the platform's REST API. It backs all three caches and the
// outbox sender.
type Client struct {
	http      *resty.Client
	logger    *zap.Logger
	pageLimit int
	userID    string
	role      string
}

// NewClient builds a client from the platform section of the config.
func NewClient(cfg config.Platform, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	rc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout.Duration).
		SetHeader("Accept", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// Only list fetches are safe to retry blindly.
			if r != nil && r.Request.Method != http.MethodGet {
				return false
			}
			return err != nil || (r != nil && r.StatusCode() >= http.StatusInternalServerError)
		})
	if cfg.Token != "" {
		rc.SetAuthToken(cfg.Token)
	}
	return &Client{
		http:      rc,
		logger:    logger,
		pageLimit: cfg.PageLimit,
		userID:    cfg.UserID,
		role:      cfg.Role,
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func apiError(resp *resty.Response) error {
	body, _ := resp.Error().(*errorBody)
	msg := ""
	if body != nil {
		msg = body.Message
		if msg == "" {
			msg = body.Error
		}
	}
	return &APIError{StatusCode: resp.StatusCode(), Message: msg}
}

type conversationsPage struct {
	Conversations []conversationDTO `json:"conversations"`
	Total         int               `json:"total"`
}

// FetchConversations drains the conversation list endpoint page by page and
// returns the full set.
func (c *Client) FetchConversations(ctx context.Context) ([]cache.Conversation, error) {
	var all []cache.Conversation
	for page := 1; page <= maxPages; page++ {
		var out conversationsPage
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"page":  fmt.Sprint(page),
				"limit": fmt.Sprint(c.pageLimit),
			}).
			SetResult(&out).
			SetError(&errorBody{}).
			Get("/conversations")
		if err != nil {
			return nil, fmt.Errorf("fetch conversations: %w", err)
		}
		if resp.IsError() {
			return nil, apiError(resp)
		}
		for _, dto := range out.Conversations {
			all = append(all, dto.toCache())
		}
		if len(out.Conversations) == 0 || len(all) >= out.Total {
			break
		}
	}
	return all, nil
}

type messagesPage struct {
	Messages []messageDTO `json:"messages"`
	Total    int          `json:"total"`
}

// FetchMessages returns the full message sequence for one conversation,
// oldest first. An unknown conversation yields an empty list.
func (c *Client) FetchMessages(ctx context.Context, conversationID string) ([]cache.Message, error) {
	var all []cache.Message
	for page := 1; page <= maxPages; page++ {
		var out messagesPage
		resp, err := c.http.R().
			SetContext(ctx).
			SetPathParam("id", conversationID).
			SetQueryParams(map[string]string{
				"page":  fmt.Sprint(page),
				"limit": fmt.Sprint(c.pageLimit),
			}).
			SetResult(&out).
			SetError(&errorBody{}).
			Get("/conversations/{id}/messages")
		if err != nil {
			return nil, fmt.Errorf("fetch messages: %w", err)
		}
		if resp.StatusCode() == http.StatusNotFound {
			// New contact with no thread yet: empty, not an error.
			return nil, nil
		}
		if resp.IsError() {
			return nil, apiError(resp)
		}
		for _, dto := range out.Messages {
			all = append(all, dto.toCache(c.userID))
		}
		if len(out.Messages) == 0 || len(all) >= out.Total {
			break
		}
	}
	return all, nil
}

type sendMessageRequest struct {
	Content       string         `json:"content"`
	CorrelationID string         `json:"correlation_id"`
	Attachment    *attachmentDTO `json:"attachment,omitempty"`
}

// PostMessage delivers one message and returns the server's canonical record.
func (c *Client) PostMessage(ctx context.Context, conversationID, correlationID, text string, att *cache.Attachment) (cache.Message, error) {
	req := sendMessageRequest{Content: text, CorrelationID: correlationID}
	if att != nil {
		req.Attachment = &attachmentDTO{
			Name:      att.Name,
			Size:      att.Size,
			MimeClass: att.MimeClass,
			URL:       att.URL,
		}
	}
	var out messageDTO
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", conversationID).
		SetBody(req).
		SetResult(&out).
		SetError(&errorBody{}).
		Post("/conversations/{id}/messages")
	if err != nil {
		return cache.Message{}, fmt.Errorf("post message: %w", err)
	}
	if resp.IsError() {
		return cache.Message{}, apiError(resp)
	}
	return out.toCache(c.userID), nil
}

type notificationsPage struct {
	Notifications []notificationDTO `json:"notifications"`
	Total         int               `json:"total"`
	Page          int               `json:"page"`
	PerPage       int               `json:"per_page"`
}

// FetchNotifications returns one page of notification records.
func (c *Client) FetchNotifications(ctx context.Context, q cache.NotificationQuery) ([]cache.Notification, error) {
	page := q.Page
	if page <= 0 {
		page = 1
	}
	limit := q.Limit
	if limit <= 0 {
		limit = c.pageLimit
	}
	params := map[string]string{
		"page":  fmt.Sprint(page),
		"limit": fmt.Sprint(limit),
	}
	if q.UnreadOnly {
		params["unread_only"] = "true"
	}
	if q.Type != "" {
		params["type"] = q.Type
	}
	if c.role != "" {
		params["role"] = c.role
	}

	var out notificationsPage
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&out).
		SetError(&errorBody{}).
		Get("/notifications")
	if err != nil {
		return nil, fmt.Errorf("fetch notifications: %w", err)
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}
	list := make([]cache.Notification, 0, len(out.Notifications))
	for _, dto := range out.Notifications {
		list = append(list, dto.toCache())
	}
	return list, nil
}

type unreadCountBody struct {
	UnreadCount int `json:"unread_count"`
}

// FetchUnreadCount returns the authoritative unread aggregate. This endpoint
// is deliberately separate from the page-limited list fetch.
func (c *Client) FetchUnreadCount(ctx context.Context) (int, error) {
	var out unreadCountBody
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&errorBody{}).
		Get("/notifications/unread-count")
	if err != nil {
		return 0, fmt.Errorf("fetch unread count: %w", err)
	}
	if resp.IsError() {
		return 0, apiError(resp)
	}
	return out.UnreadCount, nil
}

// MarkNotificationRead confirms a single read flip with the platform.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetError(&errorBody{}).
		Put("/notifications/{id}/read")
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if resp.IsError() {
		return apiError(resp)
	}
	return nil
}

// MarkAllNotificationsRead confirms a bulk read flip with the platform.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetError(&errorBody{}).
		Put("/notifications/read-all")
	if err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	if resp.IsError() {
		return apiError(resp)
	}
	return nil
}
