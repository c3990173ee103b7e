package slack

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error when webhook url missing")
	}
}

func TestFormatMessageIncludesFields(t *testing.T) {
	client, err := NewClient(Config{
		WebhookURL: "https://hooks.slack.com/services/test",
		Channel:    "#alerts",
		Username:   "bot",
		Timeout:    time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg := client.formatMessage(notify.StatusNotice{
		Level:               notify.LevelDown,
		Title:               "Backend unreachable",
		Message:             "Server error. Please try again later.",
		ErrorKind:           "server_error",
		ConsecutiveFailures: 3,
		Metadata:            map[string]string{"base_url": "http://api.local"},
	})

	if msg["username"] != "bot" {
		t.Fatalf("expected username to be preserved, got %v", msg["username"])
	}
	if msg["channel"] != "#alerts" {
		t.Fatalf("expected channel to be set, got %v", msg["channel"])
	}

	text, ok := msg["text"].(string)
	if !ok {
		t.Fatalf("expected text field")
	}
	if !containsAll(
		text,
		[]string{":red_circle:", "Backend unreachable", "down", "server_error", "Consecutive failures: 3", "base_url"},
	) {
		t.Fatalf("message text missing fields: %s", text)
	}
}

func TestFormatMessageStatusLink(t *testing.T) {
	client, err := NewClient(Config{
		WebhookURL: "https://hooks.slack.com/services/test",
		StatusURL:  "https://status.example.com",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg := client.formatMessage(notify.StatusNotice{Level: notify.LevelRestored})
	text, _ := msg["text"].(string)
	if !strings.Contains(text, "<https://status.example.com|status page>") {
		t.Fatalf("expected status link in text: %s", text)
	}
	if !strings.Contains(text, "Connectivity restored") {
		t.Fatalf("expected default title in text: %s", text)
	}
}

func TestFormatMessageEscapesMessage(t *testing.T) {
	client, err := NewClient(Config{
		WebhookURL: "https://hooks.slack.com/services/test",
		StatusURL:  "not a url",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg := client.formatMessage(notify.StatusNotice{Level: notify.LevelDegraded, Message: "a & <b>"})
	text, _ := msg["text"].(string)
	if !strings.Contains(text, "a &amp; &lt;b&gt;") {
		t.Fatalf("expected escaped message, got: %s", text)
	}
	if strings.Contains(text, "status page") {
		t.Fatalf("invalid status url must not be linked: %s", text)
	}
}

func TestSendStatusNoticeRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Errorf("invalid payload: %v", err)
		}
		if hits.Add(1) == 1 {
			http.Error(w, "try later", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := NewClient(Config{WebhookURL: srv.URL, RetryLimit: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := client.SendStatusNotice(context.Background(), notify.StatusNotice{Level: notify.LevelDegraded}); err != nil {
		t.Fatalf("SendStatusNotice() error = %v", err)
	}
	if got := hits.Load(); got != 2 {
		t.Fatalf("expected 2 webhook hits, got %d", got)
	}
}

func TestSendStatusNoticeReportsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid_token", http.StatusForbidden)
	}))
	defer srv.Close()

	client, err := NewClient(Config{WebhookURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = client.SendStatusNotice(context.Background(), notify.StatusNotice{Level: notify.LevelDown})
	if err == nil || !strings.Contains(err.Error(), "invalid_token") {
		t.Fatalf("expected webhook error, got %v", err)
	}
}

func containsAll(text string, substrs []string) bool {
	for _, s := range substrs {
		if !strings.Contains(text, s) {
			return false
		}
	}
	return true
}
