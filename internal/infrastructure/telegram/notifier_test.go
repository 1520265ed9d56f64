package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestPublishDigestPostsForm(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendMessage" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.Form.Get("chat_id") != "42" || r.Form.Get("parse_mode") != "Markdown" {
			t.Errorf("unexpected form %v", r.Form)
		}
		if !strings.Contains(r.Form.Get("text"), "sent: 3") {
			t.Errorf("unexpected text %q", r.Form.Get("text"))
		}
	}))
	defer server.Close()

	n := NewNotifier("TOKEN", "42")
	n.apiBase = server.URL
	if err := n.PublishDigest(context.Background(), "*Run*\nsent: 3\n"); err != nil {
		t.Fatalf("publish: %v", err)
	}
}

func TestPublishDigestErrors(t *testing.T) {
	t.Parallel()

	if err := NewNotifier("", "42").PublishDigest(context.Background(), "x"); err == nil {
		t.Fatalf("expected misconfiguration error")
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer server.Close()

	n := NewNotifier("TOKEN", "42")
	n.apiBase = server.URL
	err := n.PublishDigest(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("expected telegram error, got %v", err)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("я", maxMessageRunes+10)
	if got := truncate(long, maxMessageRunes); utf8.RuneCountInString(got) != maxMessageRunes {
		t.Fatalf("expected %d runes, got %d", maxMessageRunes, utf8.RuneCountInString(got))
	}
	if got := truncate("short", maxMessageRunes); got != "short" {
		t.Fatalf("unexpected %q", got)
	}
}
