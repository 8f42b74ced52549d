package email

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"testing"
	"time"
)

func signedHeader(t *testing.T, key []byte, id string, at time.Time, body []byte) http.Header {
	t.Helper()
	ts := strconv.FormatInt(at.Unix(), 10)
	h := http.Header{}
	h.Set("svix-id", id)
	h.Set("svix-timestamp", ts)
	h.Set("svix-signature", "v1,bogus v1,"+Sign(key, id, ts, body))
	return h
}

func TestVerifyWebhook(t *testing.T) {
	key := []byte("super-secret-signing-key")
	secret := "whsec_" + base64.StdEncoding.EncodeToString(key)
	body := []byte(`{"type":"email.delivered","data":{"email_id":"abc"}}`)
	now := time.Unix(1_760_000_000, 0)

	tests := []struct {
		name   string
		header http.Header
		body   []byte
		want   error
	}{
		{name: "valid", header: signedHeader(t, key, "msg_1", now, body), body: body},
		{name: "missing headers", header: http.Header{}, body: body, want: ErrMissingSignature},
		{name: "tampered body", header: signedHeader(t, key, "msg_1", now, body), body: []byte(`{}`), want: ErrInvalidSignature},
		{name: "wrong key", header: signedHeader(t, []byte("other"), "msg_1", now, body), body: body, want: ErrInvalidSignature},
		{name: "stale", header: signedHeader(t, key, "msg_1", now.Add(-10*time.Minute), body), body: body, want: ErrStaleWebhook},
		{name: "future", header: signedHeader(t, key, "msg_1", now.Add(6*time.Minute), body), body: body, want: ErrStaleWebhook},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyWebhook(secret, tt.header, tt.body, now)
			if !errors.Is(err, tt.want) {
				t.Fatalf("VerifyWebhook() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestVerifyWebhookBadTimestamp(t *testing.T) {
	h := http.Header{}
	h.Set("svix-id", "msg")
	h.Set("svix-timestamp", "yesterday")
	h.Set("svix-signature", "v1,abc")
	if err := VerifyWebhook("whsec_c2VjcmV0", h, nil, time.Now()); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestParseEvent(t *testing.T) {
	event, err := ParseEvent([]byte(`{"type":"email.bounced","created_at":"2026-02-01T10:00:00Z","data":{"email_id":"re_1","to":["a@example.com"],"bounce":{"type":"hard"}}}`))
	if err != nil {
		t.Fatalf("ParseEvent failed: %v", err)
	}
	if event.Data.EmailID != "re_1" || event.Type != "email.bounced" {
		t.Fatalf("unexpected event %+v", event)
	}
	if _, ok := event.Raw["bounce"]; !ok {
		t.Error("expected raw data to be kept")
	}

	if _, err := ParseEvent([]byte(`{"data":{}}`)); err == nil {
		t.Error("expected error for missing type")
	}
	if _, err := ParseEvent([]byte(`not json`)); err == nil {
		t.Error("expected decode error")
	}
}

func TestStatusForEvent(t *testing.T) {
	cases := map[string]string{
		"email.delivered":        "delivered",
		"email.delivery_delayed": "delayed",
		"email.complained":       "complained",
		"contact.created":        "",
	}
	for eventType, want := range cases {
		if got := StatusForEvent(eventType); got != want {
			t.Errorf("StatusForEvent(%q) = %q, want %q", eventType, got, want)
		}
	}
}
