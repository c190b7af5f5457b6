package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/homedhq/hmsg/internal/cache"
	"github.com/homedhq/hmsg/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.Platform{
		BaseURL:   srv.URL,
		Token:     "test-token",
		UserID:    "me-1",
		Role:      cache.RoleTenant,
		PageLimit: 2,
	}
	cfg.Timeout.Duration = 5 * time.Second
	return NewClient(cfg, nil)
}

func TestFetchConversationsDrainsPages(t *testing.T) {
	pages := map[string]conversationsPage{
		"1": {
			Conversations: []conversationDTO{
				{UserID: "u1", UserName: "Sarah", UserType: "agent", TotalUnread: 2,
					LatestMessage: latestText{Text: "hello"}, LatestMessageAt: "2026-08-01T10:00:00Z"},
				{UserID: "u2", UserName: "Michael", UserType: "owner"},
			},
			Total: 3,
		},
		"2": {
			Conversations: []conversationDTO{{UserID: "u3", UserName: "Emma"}},
			Total:         3,
		},
	}

	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/conversations", r.URL.Path)
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(pages[r.URL.Query().Get("page")])
	}))

	got, err := c.FetchConversations(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "u1", got[0].ID)
	assert.Equal(t, "Sarah", got[0].ParticipantName)
	assert.Equal(t, 2, got[0].UnreadCount)
	assert.Equal(t, "hello", got[0].LastMessagePreview)
	assert.NotZero(t, got[0].LastMessageAt)
}

func TestFetchConversationsServerError(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"upstream down"}`))
	}))

	_, err := c.FetchConversations(context.Background())
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
}

func TestFetchMessagesMapsSenderType(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/conversations/u1/messages", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(messagesPage{
			Messages: []messageDTO{
				{ID: "s1", ConversationID: "u1", SenderID: "u1", SenderType: "contact", Text: "hi", CreatedAt: "2026-08-01T10:00:00Z"},
				{ID: "s2", ConversationID: "u1", SenderID: "me-1", SenderType: "me", Text: "hello back"},
			},
			Total: 2,
		})
	}))

	got, err := c.FetchMessages(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.False(t, got[0].FromMe)
	assert.Equal(t, cache.MessageReceived, got[0].Status)
	assert.True(t, got[1].FromMe)
	assert.Equal(t, cache.MessageSent, got[1].Status)
	// Server-originated messages fall back to the server id as key.
	assert.Equal(t, "s1", got[0].DisplayID())
}

func TestFetchMessagesNotFoundIsEmpty(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	got, err := c.FetchMessages(context.Background(), "new-contact")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPostMessage(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/conversations/u1/messages", r.URL.Path)

		var req sendMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "see you there", req.Content)
		assert.Equal(t, "corr-1", req.CorrelationID)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(messageDTO{
			ID:             "srv-9",
			CorrelationID:  req.CorrelationID,
			ConversationID: "u1",
			SenderID:       "me-1",
			SenderType:     "me",
			Text:           req.Content,
			CreatedAt:      "2026-08-01T10:00:00Z",
		})
	}))

	got, err := c.PostMessage(context.Background(), "u1", "corr-1", "see you there", nil)
	require.NoError(t, err)
	assert.Equal(t, "srv-9", got.ServerID)
	assert.Equal(t, "corr-1", got.CorrelationID)
}

func TestFetchNotificationsQuery(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "true", q.Get("unread_only"))
		assert.Equal(t, "viewing", q.Get("type"))
		assert.Equal(t, cache.RoleTenant, q.Get("role"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(notificationsPage{
			Notifications: []notificationDTO{
				{ID: "n1", Title: "Upcoming Viewing", Type: "viewing", Priority: "high"},
				{ID: "n2", Title: "Untyped"},
			},
			Total: 2,
		})
	}))

	got, err := c.FetchNotifications(context.Background(), cache.NotificationQuery{
		UnreadOnly: true,
		Type:       cache.NotificationViewing,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, cache.NotificationViewing, got[0].Type)
	assert.Equal(t, cache.NotificationOther, got[1].Type, "missing type defaults to other")
}

func TestFetchUnreadCount(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/notifications/unread-count", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"unread_count":17}`))
	}))

	got, err := c.FetchUnreadCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 17, got)
}

func TestMarkNotificationRead(t *testing.T) {
	var path string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.Equal(t, http.MethodPut, r.Method)
		_, _ = w.Write([]byte(`{}`))
	}))

	require.NoError(t, c.MarkNotificationRead(context.Background(), "n1"))
	assert.Equal(t, "/notifications/n1/read", path)

	require.NoError(t, c.MarkAllNotificationsRead(context.Background()))
	assert.Equal(t, "/notifications/read-all", path)
}
