package bus

import "time"

// Event kinds published by the daemon. Subscribers filter by prefix,
// e.g. "conversation." receives every conversation event.
const (
	KindConversationsReplaced = "conversation.replaced"
	KindConversationUpserted  = "conversation.upserted"
	KindConversationViewed    = "conversation.viewed"

	KindMessageQueued     = "message.queued"
	KindMessageAppended   = "message.appended"
	KindMessageSendAck    = "message.send_ack"
	KindMessageSendFailed = "message.send_failed"

	KindNotificationRefreshed = "notification.refreshed"
	KindNotificationReceived  = "notification.received"
	KindNotificationRead      = "notification.read"

	KindNoticeError = "notice.error"
	KindNoticeInfo  = "notice.info"

	KindSyncConversations = "sync.conversations"
	KindSyncNotifications = "sync.notifications"
	KindSyncUnreadCount   = "sync.unread_count"

	KindSessionStatusChanged = "session.status_changed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Notice is the payload for notice.* events. Notices are the daemon's
// toast-equivalent: every caught operation failure surfaces as one.
type Notice struct {
	Level string // error, info
	Text  string
}

// ErrorNotice builds a notice.error event.
func ErrorNotice(text string) Event {
	return Event{
		Kind:      KindNoticeError,
		Timestamp: time.Now(),
		Payload:   Notice{Level: "error", Text: text},
	}
}

// InfoNotice builds a notice.info event.
func InfoNotice(text string) Event {
	return Event{
		Kind:      KindNoticeInfo,
		Timestamp: time.Now(),
		Payload:   Notice{Level: "info", Text: text},
	}
}

// Stream event kinds published by the platform push stream.
const (
	KindStreamNotification = "platform.notification"
	KindStreamConnected    = "platform.connected"
	KindStreamDisconnected = "platform.disconnected"
)
