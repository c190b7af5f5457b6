package store

import (
	"path/filepath"
	"testing"

	"github.com/homedhq/hmsg/internal/cache"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate, so a second run must be a no-op.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 1 {
		t.Errorf("version = %d, want 1", result.Version)
	}
}

func TestConversationSnapshotRoundTrip(t *testing.T) {
	db := testDB(t)

	convs := []cache.Conversation{
		{ID: "c1", ParticipantName: "Alice", ParticipantRole: cache.RoleOwner, Subject: "Lease renewal", LastMessagePreview: "See you then", LastMessageAt: 2000, UnreadCount: 3},
		{ID: "c2", ParticipantName: "Bob", ParticipantRole: cache.RoleTenant, LastMessageAt: 1000, UnreadCount: 0},
	}
	if err := db.SaveConversations(convs); err != nil {
		t.Fatal(err)
	}

	got, err := db.LoadConversations()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "c1" || got[1].ID != "c2" {
		t.Errorf("order = [%s %s], want [c1 c2]", got[0].ID, got[1].ID)
	}
	if got[0].Status != cache.StatusUnread {
		t.Errorf("c1 status = %q, want unread", got[0].Status)
	}
	if got[1].Status != cache.StatusRead {
		t.Errorf("c2 status = %q, want read", got[1].Status)
	}
	if got[0].Subject != "Lease renewal" {
		t.Errorf("subject = %q, want %q", got[0].Subject, "Lease renewal")
	}
}

func TestSaveConversationsReplacesPrevious(t *testing.T) {
	db := testDB(t)

	if err := db.SaveConversations([]cache.Conversation{{ID: "old", LastMessageAt: 1}}); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveConversations([]cache.Conversation{{ID: "new", LastMessageAt: 2}}); err != nil {
		t.Fatal(err)
	}

	got, err := db.LoadConversations()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "new" {
		t.Errorf("got %+v, want single conversation 'new'", got)
	}
}

func TestNotificationSnapshotRoundTrip(t *testing.T) {
	db := testDB(t)

	records := []cache.Notification{
		{ID: "n1", Title: "New booking", Body: "Viewing at 3pm", Type: cache.NotificationBooking, Priority: cache.PriorityHigh, Read: false, CreatedAt: 2000},
		{ID: "n2", Title: "Payment received", Type: "payment", Read: true, CreatedAt: 1000},
	}
	if err := db.SaveNotifications(records, 7); err != nil {
		t.Fatal(err)
	}

	got, count, err := db.LoadNotifications()
	if err != nil {
		t.Fatal(err)
	}
	if count != 7 {
		t.Errorf("unread count = %d, want 7", count)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "n1" {
		t.Errorf("first = %s, want n1 (newest first)", got[0].ID)
	}
	if got[0].Read || !got[1].Read {
		t.Error("read flags not preserved")
	}
}

func TestLoadNotificationsEmptyDB(t *testing.T) {
	db := testDB(t)

	got, count, err := db.LoadNotifications()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 || count != 0 {
		t.Errorf("got %d records, count %d, want empty", len(got), count)
	}
}
