package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ratio-band-alerts/internal/prefs"
)

func testNote(state prefs.State) Notification {
	return Notification{
		At:        time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Recipient: "user@example.com",
		Ratio:     decimal.RequireFromString("0.6"),
		MinRange:  decimal.RequireFromString("0.5"),
		MaxRange:  decimal.RequireFromString("0.7"),
		NewState:  state,
	}
}

func TestTelegramNotifySuccess(t *testing.T) {
	var gotPath string
	var gotPayload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotPayload)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	n := NewTelegramNotifier("token", "42", srv.URL, "https://dash.example.com", time.Second, zerolog.Nop())
	if err := n.Notify(context.Background(), testNote(prefs.StateInRange)); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	if gotPath != "/bottoken/sendMessage" {
		t.Errorf("unexpected API path: %s", gotPath)
	}
	if gotPayload["chat_id"] != "42" || gotPayload["parse_mode"] != "Markdown" {
		t.Errorf("unexpected payload: %+v", gotPayload)
	}
	if !strings.Contains(gotPayload["text"], "IN-RANGE") {
		t.Errorf("message text missing state: %q", gotPayload["text"])
	}
	if !strings.Contains(gotPayload["text"], "0.600000") {
		t.Errorf("message text missing ratio: %q", gotPayload["text"])
	}
}

func TestTelegramNotifyAPIRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "chat not found"})
	}))
	defer srv.Close()

	n := NewTelegramNotifier("token", "42", srv.URL, "", time.Second, zerolog.Nop())
	err := n.Notify(context.Background(), testNote(prefs.StateOutOfRange))

	var dErr *DeliveryError
	if !errors.As(err, &dErr) {
		t.Fatalf("expected *DeliveryError, got %v", err)
	}
	if dErr.Channel != "telegram" {
		t.Errorf("unexpected channel: %s", dErr.Channel)
	}
}

func TestTelegramNotifyNotConfigured(t *testing.T) {
	n := NewTelegramNotifier("", "", "", "", time.Second, zerolog.Nop())
	err := n.Notify(context.Background(), testNote(prefs.StateInRange))
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestTelegramMessageEmoji(t *testing.T) {
	above := testNote(prefs.StateOutOfRange)
	above.Ratio = decimal.RequireFromString("0.8")
	if msg := renderTelegramMessage(above, ""); !strings.HasPrefix(msg, "🟥") {
		t.Errorf("ratio above max must use red marker: %q", msg)
	}

	below := testNote(prefs.StateOutOfRange)
	below.Ratio = decimal.RequireFromString("0.4")
	if msg := renderTelegramMessage(below, ""); !strings.HasPrefix(msg, "🟨") {
		t.Errorf("ratio below min must use yellow marker: %q", msg)
	}

	if msg := renderTelegramMessage(testNote(prefs.StateInRange), ""); !strings.HasPrefix(msg, "🟩") {
		t.Errorf("in-range must use green marker: %q", msg)
	}
}

func TestEmailNotifySendsMessage(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	n := NewEmailNotifier(EmailOptions{
		Host: "smtp.example.com",
		Port: 2525,
		From: "alerts@example.com",
	}, zerolog.Nop())
	n.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	if err := n.Notify(context.Background(), testNote(prefs.StateOutOfRange)); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	if gotAddr != "smtp.example.com:2525" {
		t.Errorf("unexpected address: %s", gotAddr)
	}
	if gotFrom != "alerts@example.com" || len(gotTo) != 1 || gotTo[0] != "user@example.com" {
		t.Errorf("unexpected envelope: from=%s to=%v", gotFrom, gotTo)
	}
	body := string(gotMsg)
	if !strings.Contains(body, "Subject: OUT-OF-RANGE: 0.500000 - 0.700000") {
		t.Errorf("unexpected subject line in %q", body)
	}
	if !strings.Contains(body, "0.600000") {
		t.Errorf("body missing ratio: %q", body)
	}
}

func TestEmailNotifyNotConfigured(t *testing.T) {
	n := NewEmailNotifier(EmailOptions{}, zerolog.Nop())
	err := n.Notify(context.Background(), testNote(prefs.StateInRange))
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestEmailNotifySendFailure(t *testing.T) {
	n := NewEmailNotifier(EmailOptions{Host: "smtp.example.com", From: "a@example.com"}, zerolog.Nop())
	n.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		return errors.New("connection refused")
	}

	err := n.Notify(context.Background(), testNote(prefs.StateInRange))
	var dErr *DeliveryError
	if !errors.As(err, &dErr) || dErr.Channel != "email" {
		t.Fatalf("expected email delivery error, got %v", err)
	}
}

type stubNotifier struct {
	calls int
	err   error
}

func (s *stubNotifier) Notify(ctx context.Context, note Notification) error {
	s.calls++
	return s.err
}

func TestMultiNotifierEmpty(t *testing.T) {
	err := NewMultiNotifier().Notify(context.Background(), testNote(prefs.StateInRange))
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("empty fanout must report not configured, got %v", err)
	}
}

func TestMultiNotifierAllChannelsCalled(t *testing.T) {
	ok := &stubNotifier{}
	failing := &stubNotifier{err: &DeliveryError{Channel: "telegram", Err: errors.New("down")}}

	err := NewMultiNotifier(ok, failing).Notify(context.Background(), testNote(prefs.StateInRange))
	if err == nil {
		t.Fatal("one failed channel must fail the dispatch")
	}
	if ok.calls != 1 || failing.calls != 1 {
		t.Fatalf("all channels must be attempted: ok=%d failing=%d", ok.calls, failing.calls)
	}

	var dErr *DeliveryError
	if !errors.As(err, &dErr) || dErr.Channel != "telegram" {
		t.Fatalf("joined error must expose the failing channel, got %v", err)
	}
}

func TestMultiNotifierSuccess(t *testing.T) {
	a := &stubNotifier{}
	b := &stubNotifier{}
	if err := NewMultiNotifier(a, b).Notify(context.Background(), testNote(prefs.StateInRange)); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
}
