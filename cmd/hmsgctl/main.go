package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/homedhq/hmsg/internal/cache"
	"github.com/homedhq/hmsg/internal/session"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	c := newClient(session.SocketPath(sessionName))

	switch args[0] {
	case "status":
		cmdStatus(c, *jsonFlag)
	case "conversations":
		cmdConversations(c, *jsonFlag)
	case "open":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: hmsgctl open <recipient-id> [name] [role] [subject]")
			os.Exit(1)
		}
		cmdOpen(c, args[1:], *jsonFlag)
	case "messages":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: hmsgctl messages <conversation-id>")
			os.Exit(1)
		}
		cmdMessages(c, args[1], *jsonFlag)
	case "send":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: hmsgctl send <conversation-id> <text>")
			os.Exit(1)
		}
		cmdSend(c, args[1], strings.Join(args[2:], " "), *jsonFlag)
	case "notifications":
		cmdNotifications(c, *jsonFlag)
	case "unread":
		cmdUnread(c, *jsonFlag)
	case "read":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: hmsgctl read <notification-id|all>")
			os.Exit(1)
		}
		cmdRead(c, args[1], *jsonFlag)
	case "dismiss":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: hmsgctl dismiss <notification-id>")
			os.Exit(1)
		}
		cmdDismiss(c, args[1], *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: hmsgctl [--session <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                          Show daemon status")
	fmt.Fprintln(os.Stderr, "  conversations                   List conversations")
	fmt.Fprintln(os.Stderr, "  open <id> [name] [role] [subj]  Open or create a conversation")
	fmt.Fprintln(os.Stderr, "  messages <id>                   Show a conversation's messages")
	fmt.Fprintln(os.Stderr, "  send <id> <text>                Send a message")
	fmt.Fprintln(os.Stderr, "  notifications                   List notifications")
	fmt.Fprintln(os.Stderr, "  unread                          Show unread notification count")
	fmt.Fprintln(os.Stderr, "  read <id|all>                   Mark notification(s) as read")
	fmt.Fprintln(os.Stderr, "  dismiss <id>                    Dismiss a notification")
}

func newClient(socketPath string) *resty.Client {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
	}
	return resty.New().
		SetTransport(transport).
		SetBaseURL("http://unix").
		SetTimeout(10 * time.Second)
}

func call(c *resty.Client, method, path string, body any) envelope {
	req := c.R()
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot reach daemon: %v\n", err)
		os.Exit(1)
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		fmt.Fprintf(os.Stderr, "error: bad response: %v\n", err)
		os.Exit(1)
	}
	if resp.StatusCode() >= 400 {
		fmt.Fprintf(os.Stderr, "error: %s\n", env.Message)
		os.Exit(1)
	}
	return env
}

func cmdStatus(c *resty.Client, jsonOut bool) {
	env := call(c, http.MethodGet, "/v1/status", nil)
	if jsonOut {
		outputJSON(env.Data)
		return
	}
	var st struct {
		Session       string `json:"session"`
		Status        string `json:"status"`
		UptimeMs      int64  `json:"uptime_ms"`
		Conversations int    `json:"conversations"`
		UnreadCount   int    `json:"unread_count"`
		PendingSends  int    `json:"pending_sends"`
	}
	mustUnmarshal(env.Data, &st)
	fmt.Printf("Session:       %s\n", st.Session)
	fmt.Printf("Status:        %s\n", st.Status)
	fmt.Printf("Uptime:        %s\n", (time.Duration(st.UptimeMs) * time.Millisecond).Round(time.Second))
	fmt.Printf("Conversations: %d\n", st.Conversations)
	fmt.Printf("Unread:        %d\n", st.UnreadCount)
	fmt.Printf("Pending sends: %d\n", st.PendingSends)
}

func cmdConversations(c *resty.Client, jsonOut bool) {
	env := call(c, http.MethodGet, "/v1/conversations", nil)
	if jsonOut {
		outputJSON(env.Data)
		return
	}
	var convs []cache.Conversation
	mustUnmarshal(env.Data, &convs)
	if len(convs) == 0 {
		fmt.Println("No conversations.")
		return
	}
	for _, conv := range convs {
		marker := " "
		if conv.Status == cache.StatusUnread {
			marker = "*"
		}
		fmt.Printf("%s %-24s %-10s (%2d) %s\n", marker, conv.ParticipantName, conv.ParticipantRole, conv.UnreadCount, conv.LastMessagePreview)
	}
}

func cmdOpen(c *resty.Client, args []string, jsonOut bool) {
	body := map[string]string{"recipient_id": args[0]}
	if len(args) > 1 {
		body["recipient_name"] = args[1]
	}
	if len(args) > 2 {
		body["role"] = args[2]
	}
	if len(args) > 3 {
		body["subject"] = strings.Join(args[3:], " ")
	}
	env := call(c, http.MethodPost, "/v1/conversations/open", body)
	if jsonOut {
		outputJSON(env.Data)
		return
	}
	var conv cache.Conversation
	mustUnmarshal(env.Data, &conv)
	fmt.Printf("Opened conversation %s with %s (%s)\n", conv.ID, conv.ParticipantName, conv.Subject)
}

func cmdMessages(c *resty.Client, id string, jsonOut bool) {
	env := call(c, http.MethodGet, "/v1/conversations/"+id+"/messages", nil)
	if jsonOut {
		outputJSON(env.Data)
		return
	}
	var page struct {
		Messages []cache.Message `json:"messages"`
		Stale    bool            `json:"stale"`
	}
	mustUnmarshal(env.Data, &page)
	if page.Stale {
		fmt.Println("(platform unreachable, showing cached messages)")
	}
	if len(page.Messages) == 0 {
		fmt.Println("No messages.")
		return
	}
	for _, m := range page.Messages {
		sender := m.SenderName
		if m.FromMe {
			sender = "You"
		}
		ts := time.UnixMilli(m.CreatedAt).Format("2006-01-02 15:04")
		text := m.Text
		if m.Attachment != nil {
			text = fmt.Sprintf("%s [%s]", text, m.Attachment.Name)
		}
		fmt.Printf("%s  %-16s %s", ts, sender, text)
		if m.Status == cache.MessageFailed {
			fmt.Print("  (failed)")
		} else if m.Status == cache.MessageSending {
			fmt.Print("  (sending)")
		}
		fmt.Println()
	}
}

func cmdSend(c *resty.Client, id, text string, jsonOut bool) {
	env := call(c, http.MethodPost, "/v1/conversations/"+id+"/messages", map[string]string{"text": text})
	if jsonOut {
		outputJSON(env.Data)
		return
	}
	var m cache.Message
	mustUnmarshal(env.Data, &m)
	fmt.Printf("Queued %s\n", m.CorrelationID)
}

func cmdNotifications(c *resty.Client, jsonOut bool) {
	env := call(c, http.MethodGet, "/v1/notifications", nil)
	if jsonOut {
		outputJSON(env.Data)
		return
	}
	var page struct {
		Notifications []cache.Notification `json:"notifications"`
		Stale         bool                 `json:"stale"`
	}
	mustUnmarshal(env.Data, &page)
	if page.Stale {
		fmt.Println("(platform unreachable, showing cached notifications)")
	}
	if len(page.Notifications) == 0 {
		fmt.Println("No notifications.")
		return
	}
	for _, n := range page.Notifications {
		marker := " "
		if !n.Read {
			marker = "*"
		}
		ts := time.UnixMilli(n.CreatedAt).Format("2006-01-02 15:04")
		fmt.Printf("%s %s  [%-9s] %s: %s\n", marker, ts, n.Type, n.Title, n.Body)
	}
}

func cmdUnread(c *resty.Client, jsonOut bool) {
	env := call(c, http.MethodGet, "/v1/notifications/unread-count", nil)
	if jsonOut {
		outputJSON(env.Data)
		return
	}
	var count struct {
		UnreadCount int `json:"unread_count"`
	}
	mustUnmarshal(env.Data, &count)
	fmt.Printf("Unread notifications: %d\n", count.UnreadCount)
}

func cmdRead(c *resty.Client, id string, jsonOut bool) {
	path := "/v1/notifications/" + id + "/read"
	if id == "all" {
		path = "/v1/notifications/read-all"
	}
	env := call(c, http.MethodPut, path, nil)
	if jsonOut {
		outputJSON(env.Data)
		return
	}
	var result struct {
		UnreadCount int  `json:"unread_count"`
		Confirmed   bool `json:"confirmed"`
	}
	mustUnmarshal(env.Data, &result)
	fmt.Printf("Unread notifications: %d\n", result.UnreadCount)
	if !result.Confirmed {
		fmt.Println("warning: platform did not confirm; will reconcile on next refresh")
	}
}

func cmdDismiss(c *resty.Client, id string, jsonOut bool) {
	env := call(c, http.MethodDelete, "/v1/notifications/"+id, nil)
	if jsonOut {
		outputJSON(env.Data)
		return
	}
	var result struct {
		UnreadCount int `json:"unread_count"`
	}
	mustUnmarshal(env.Data, &result)
	fmt.Printf("Dismissed. Unread notifications: %d\n", result.UnreadCount)
}

func mustUnmarshal(data json.RawMessage, v any) {
	if err := json.Unmarshal(data, v); err != nil {
		fmt.Fprintf(os.Stderr, "error: bad response: %v\n", err)
		os.Exit(1)
	}
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
