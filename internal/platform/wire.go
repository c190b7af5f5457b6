package platform

import (
	"time"

	"github.com/homedhq/hmsg/internal/cache"
)

// Wire DTOs for the platform's REST payloads. Timestamps arrive as RFC 3339
// strings and are converted to unix milliseconds at the boundary.

type conversationDTO struct {
	UserID          string     `json:"user_id"`
	UserName        string     `json:"user_name"`
	UserType        string     `json:"user_type"`
	Subject         string     `json:"subject"`
	LatestMessage   latestText `json:"latest_message"`
	LatestMessageAt string     `json:"latest_message_at"`
	TotalUnread     int        `json:"total_unread_count"`
}

type latestText struct {
	Text string `json:"text"`
}

func (d conversationDTO) toCache() cache.Conversation {
	return cache.Conversation{
		ID:                 d.UserID,
		ParticipantName:    d.UserName,
		ParticipantRole:    d.UserType,
		Subject:            d.Subject,
		LastMessagePreview: d.LatestMessage.Text,
		LastMessageAt:      parseTime(d.LatestMessageAt),
		UnreadCount:        d.TotalUnread,
	}
}

type attachmentDTO struct {
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	MimeClass string `json:"mime_class"`
	URL       string `json:"url"`
}

type messageDTO struct {
	ID             string         `json:"id"`
	CorrelationID  string         `json:"correlation_id"`
	ConversationID string         `json:"conversation_id"`
	SenderID       string         `json:"sender_id"`
	SenderName     string         `json:"sender_name"`
	SenderType     string         `json:"sender_type"`
	Text           string         `json:"message_text"`
	CreatedAt      string         `json:"created_at"`
	Attachment     *attachmentDTO `json:"attachment,omitempty"`
}

func (d messageDTO) toCache(selfID string) cache.Message {
	m := cache.Message{
		ServerID:       d.ID,
		CorrelationID:  d.CorrelationID,
		ConversationID: d.ConversationID,
		SenderID:       d.SenderID,
		SenderName:     d.SenderName,
		FromMe:         d.SenderType == "me" || (selfID != "" && d.SenderID == selfID),
		Text:           d.Text,
		CreatedAt:      parseTime(d.CreatedAt),
		Status:         cache.MessageReceived,
	}
	if m.FromMe {
		m.Status = cache.MessageSent
	}
	if m.CorrelationID == "" {
		// Server-originated messages are keyed by their server id.
		m.CorrelationID = d.ID
	}
	if d.Attachment != nil {
		m.Attachment = &cache.Attachment{
			Name:      d.Attachment.Name,
			Size:      d.Attachment.Size,
			MimeClass: d.Attachment.MimeClass,
			URL:       d.Attachment.URL,
		}
	}
	return m
}

type notificationDTO struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Type      string `json:"type"`
	Priority  string `json:"priority"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"created_at"`
}

func (d notificationDTO) toCache() cache.Notification {
	t := d.Type
	if t == "" {
		t = cache.NotificationOther
	}
	return cache.Notification{
		ID:        d.ID,
		Title:     d.Title,
		Body:      d.Message,
		Type:      t,
		Priority:  d.Priority,
		Read:      d.Read,
		CreatedAt: parseTime(d.CreatedAt),
	}
}

func parseTime(s string) int64 {
	if s == "" {
		return 0
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}
