package daemon

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/homedhq/hmsg/internal/api"
	"github.com/homedhq/hmsg/internal/bus"
	"github.com/homedhq/hmsg/internal/cache"
	"github.com/homedhq/hmsg/internal/lock"
	"github.com/homedhq/hmsg/internal/outbox"
	"github.com/homedhq/hmsg/internal/status"
	"go.uber.org/zap"
)

type noopSource struct{}

func (noopSource) FetchConversations(ctx context.Context) ([]cache.Conversation, error) {
	return nil, nil
}

func (noopSource) FetchMessages(ctx context.Context, conversationID string) ([]cache.Message, error) {
	return nil, nil
}

func (noopSource) FetchNotifications(ctx context.Context, q cache.NotificationQuery) ([]cache.Notification, error) {
	return nil, nil
}

func (noopSource) MarkNotificationRead(ctx context.Context, id string) error { return nil }

func (noopSource) MarkAllNotificationsRead(ctx context.Context) error { return nil }

func TestServerLifecycle(t *testing.T) {
	// Use a short path to avoid the 104-char Unix socket limit on some platforms.
	tmpDir, err := os.MkdirTemp("/tmp", "hmsg-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	socketPath := filepath.Join(tmpDir, "d.sock")

	lk, err := lock.Acquire(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = lk.Release() }()

	b := bus.New()
	src := noopSource{}
	convs := cache.NewConversationStore(src, b, zap.NewNop())
	msgs := cache.NewMessageCache(src, b, zap.NewNop())
	badge := cache.NewBadge(src, cache.NewCounter(), b, zap.NewNop())
	queue := outbox.NewQueue(convs, msgs, b, zap.NewNop(), "me", "")
	machine := status.NewMachine(b)
	handlers := api.NewHandlers("test", convs, msgs, badge, queue, machine, b, zap.NewNop())

	srv, err := NewServer(Params{SessionName: "test", SocketPath: socketPath}, zap.NewNop(), handlers)
	if err != nil {
		t.Fatal(err)
	}

	go func() {
		if err := srv.Start(); err != nil {
			t.Errorf("server start: %v", err)
		}
	}()

	// Wait for the socket to accept connections.
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn, err := net.Dial("unix", socketPath)
		if err == nil {
			_ = conn.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("socket never came up: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	client := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return net.Dial("unix", socketPath)
			},
		},
	}

	resp, err := client.Get("http://unix/v1/status")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status code = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Data struct {
			Session string `json:"session"`
			Status  string `json:"status"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Data.Session != "test" {
		t.Errorf("session = %q, want %q", body.Data.Session, "test")
	}
	if body.Data.Status != string(status.Booting) {
		t.Errorf("status = %q, want %q", body.Data.Status, status.Booting)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	srv.Stop(ctx)

	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Error("socket file not removed after stop")
	}
}
