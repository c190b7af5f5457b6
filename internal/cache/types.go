package cache

import (
	"strings"
	"unicode/utf8"
)

// ConversationStatus is derived from UnreadCount and never set directly.
type ConversationStatus string

const (
	StatusRead   ConversationStatus = "read"
	StatusUnread ConversationStatus = "unread"
)

// Participant roles on the platform.
const (
	RoleAgency   = "agency"
	RoleOwner    = "owner"
	RoleAgent    = "agent"
	RoleTenant   = "tenant"
	RoleExternal = "external"
	RoleAdmin    = "admin"
)

// Conversation is the local view of a message thread with one other party.
type Conversation struct {
	ID                 string             `json:"id"`
	ParticipantName    string             `json:"participant_name"`
	ParticipantRole    string             `json:"participant_role"`
	Subject            string             `json:"subject"`
	LastMessagePreview string             `json:"last_message_preview"`
	LastMessageAt      int64              `json:"last_message_at"` // unix ms
	UnreadCount        int                `json:"unread_count"`
	Status             ConversationStatus `json:"status"`
}

// normalize derives Status from UnreadCount.
func (c *Conversation) normalize() {
	if c.UnreadCount > 0 {
		c.Status = StatusUnread
	} else {
		c.UnreadCount = 0
		c.Status = StatusRead
	}
}

// Message delivery states.
const (
	MessageReceived = "received"
	MessageSending  = "sending"
	MessageSent     = "sent"
	MessageFailed   = "failed"
)

// Attachment mime classes. Anything that is not an image renders as a document.
const (
	MimeClassImage    = "image"
	MimeClassDocument = "document"
)

// Attachment describes a file attached to a message.
type Attachment struct {
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	MimeClass string `json:"mime_class"`
	URL       string `json:"url,omitempty"`
}

// MimeClassFor maps a content type to an attachment mime class.
func MimeClassFor(contentType string) string {
	if strings.HasPrefix(contentType, "image/") {
		return MimeClassImage
	}
	return MimeClassDocument
}

// Message is one entry in a conversation. CorrelationID is assigned locally
// at creation time and is the stable key for the message's lifetime; ServerID
// is filled in once the platform acknowledges the send.
type Message struct {
	CorrelationID  string      `json:"correlation_id"`
	ServerID       string      `json:"server_id,omitempty"`
	ConversationID string      `json:"conversation_id"`
	SenderID       string      `json:"sender_id"`
	SenderName     string      `json:"sender_name"`
	FromMe         bool        `json:"from_me"`
	Text           string      `json:"text"`
	Attachment     *Attachment `json:"attachment,omitempty"`
	CreatedAt      int64       `json:"created_at"` // unix ms
	Status         string      `json:"status"`
}

// DisplayID returns the id a UI should key on: the server id once known,
// the correlation id before that.
func (m *Message) DisplayID() string {
	if m.ServerID != "" {
		return m.ServerID
	}
	return m.CorrelationID
}

// Notification types mirror the platform's taxonomy.
const (
	NotificationBooking   = "booking"
	NotificationComplaint = "complaint"
	NotificationResolved  = "resolved"
	NotificationMessage   = "message"
	NotificationViewing   = "viewing"
	NotificationInquiry   = "inquiry"
	NotificationContact   = "contact"
	NotificationReview    = "review"
	NotificationApproval  = "approval"
	NotificationOther     = "other"
)

// Notification priorities.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Notification is a single notification record.
type Notification struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Type      string `json:"type"`
	Priority  string `json:"priority"`
	Read      bool   `json:"read"`
	CreatedAt int64  `json:"created_at"` // unix ms
}

// NotificationQuery filters a notification page fetch.
type NotificationQuery struct {
	UnreadOnly bool
	Type       string
	Page       int
	Limit      int
}

const previewMaxLen = 100

// previewFor derives the conversation list preview for an outgoing message.
func previewFor(text string, att *Attachment) string {
	text = strings.TrimSpace(text)
	if text == "" && att != nil {
		return "Attached a file"
	}
	return truncate(text, previewMaxLen)
}

// truncate cuts s to at most maxLen bytes without splitting a rune.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
