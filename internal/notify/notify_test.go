package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordSender struct {
	name   string
	titles []string
	err    error
}

func (r *recordSender) Send(_ context.Context, title, _ string) error {
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordSender) Name() string { return r.name }

func TestNotifierFiltersEvents(t *testing.T) {
	s := &recordSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{"run_failed", " "}, discardLogger())

	if err := n.Notify(context.Background(), "run_completed", "done", ""); err != nil {
		t.Fatal(err)
	}
	if err := n.Notify(context.Background(), "run_failed", "failed", ""); err != nil {
		t.Fatal(err)
	}
	if len(s.titles) != 1 || s.titles[0] != "failed" {
		t.Fatalf("delivered = %v", s.titles)
	}
}

func TestNotifierKeepsGoingAfterFailure(t *testing.T) {
	bad := &recordSender{name: "bad", err: errors.New("down")}
	good := &recordSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discardLogger())

	err := n.Notify(context.Background(), "run_completed", "done", "")
	if err == nil || !strings.Contains(err.Error(), "bad: down") {
		t.Fatalf("err = %v", err)
	}
	if len(good.titles) != 1 {
		t.Fatal("second sender skipped")
	}
}

func TestNilNotifierIsDisabled(t *testing.T) {
	var n *Notifier
	if n.Enabled() {
		t.Fatal("nil notifier enabled")
	}
	if err := n.Notify(context.Background(), "run_failed", "x", "y"); err != nil {
		t.Fatal(err)
	}
}

func TestTelegramSender(t *testing.T) {
	var path string
	var got map[string]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	s := NewTelegramSender("tok", "42").WithBaseURL(ts.URL + "/")
	if err := s.Send(context.Background(), "Run failed", "ES: no bars"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if path != "/bottok/sendMessage" {
		t.Fatalf("path = %q", path)
	}
	if got["chat_id"] != "42" || got["text"] != "*Run failed*\nES: no bars" {
		t.Fatalf("payload = %v", got)
	}
}

func TestDiscordSenderStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, "slow down\n")
	}))
	defer ts.Close()

	err := NewDiscordSender(ts.URL).Send(context.Background(), "t", "m")
	if err == nil || !strings.Contains(err.Error(), "429: slow down") {
		t.Fatalf("err = %v", err)
	}
}
