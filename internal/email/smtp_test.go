package email

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
)

func TestSMTPSenderIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{
			name:     "empty config",
			config:   Config{},
			expected: false,
		},
		{
			name: "missing host",
			config: Config{
				Port: "587",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing port",
			config: Config{
				Host: "smtp.example.com",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing from",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
			},
			expected: false,
		},
		{
			name: "fully configured",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
				From: "test@example.com",
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := NewSMTPSender(tt.config)
			if sender.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", sender.IsConfigured(), tt.expected)
			}
		})
	}
}

func TestSMTPSenderUnconfiguredIsPermanent(t *testing.T) {
	_, err := NewSMTPSender(Config{}).Send(context.Background(), Message{To: []string{"a@example.com"}})
	if !errors.Is(err, ErrNotConfigured) || !IsPermanent(err) {
		t.Fatalf("expected permanent ErrNotConfigured, got %v", err)
	}
}

func TestSMTPSenderBuildsMultipartMessage(t *testing.T) {
	sender := NewSMTPSender(Config{Host: "smtp.example.com", Port: "587", From: "noreply@example.com", FromName: "NEL"})
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	sender.send = func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	msg, err := VerificationMessage("site@example.com", "Sam", "https://nel.test/verify?token=abc")
	if err != nil {
		t.Fatalf("VerificationMessage failed: %v", err)
	}
	msg.IdempotencyKey = "verify:1"
	if _, err := sender.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if gotAddr != "smtp.example.com:587" {
		t.Errorf("unexpected server %q", gotAddr)
	}
	if len(gotTo) != 1 || gotTo[0] != "site@example.com" {
		t.Errorf("unexpected recipients %v", gotTo)
	}
	for _, want := range []string{
		"From: NEL <noreply@example.com>",
		"Subject: Verify your NEL account",
		"X-Entity-Ref-ID: verify:1",
		"Content-Type: text/html; charset=UTF-8",
		"https://nel.test/verify?token=abc",
	} {
		if !strings.Contains(gotMsg, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestRenderTemplates(t *testing.T) {
	tests := []struct {
		name  string
		build func() (Message, error)
		want  []string
	}{
		{
			name:  "welcome",
			build: func() (Message, error) { return WelcomeMessage("a@example.com", "Test User", "https://nel.test/dashboard") },
			want:  []string{"Test User", "https://nel.test/dashboard"},
		},
		{
			name: "verification",
			build: func() (Message, error) {
				return VerificationMessage("a@example.com", "Test User", "https://example.com/verify?token=abc123")
			},
			want: []string{"NEL", "Test User", "https://example.com/verify?token=abc123", "24 hours"},
		},
		{
			name: "password reset",
			build: func() (Message, error) {
				return PasswordResetMessage("a@example.com", "Test User", "https://example.com/reset?token=xyz789")
			},
			want: []string{"Test User", "https://example.com/reset?token=xyz789", "1 hour"},
		},
		{
			name: "invitation",
			build: func() (Message, error) {
				return InvitationMessage("a@example.com", "Alex", "Acme Builders", "manager", "https://nel.test/invite/tok")
			},
			want: []string{"Alex", "Acme Builders", "manager", "https://nel.test/invite/tok", "7 days"},
		},
		{
			name: "notification with action",
			build: func() (Message, error) {
				return NotificationMessage("a@example.com", "Sam", "Incident reported", "High severity incident", "https://nel.test/p/1", "")
			},
			want: []string{"Incident reported", "High severity incident", "https://nel.test/p/1", "View details"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := tt.build()
			if err != nil {
				t.Fatalf("render failed: %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(msg.HTML, want) {
					t.Errorf("html missing %q", want)
				}
			}
			if msg.Tags["template"] == "" {
				t.Error("expected template tag")
			}
		})
	}
}

func TestNotificationWithoutActionOmitsButton(t *testing.T) {
	msg, err := NotificationMessage("a@example.com", "", "Heads up", "Crane inspection tomorrow", "", "")
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if strings.Contains(msg.HTML, `class="button"`) {
		t.Error("expected no call to action")
	}
}

func TestTemplatesEscapeUserInput(t *testing.T) {
	msg, err := NotificationMessage("a@example.com", "<b>x</b>", "t", "<script>alert(1)</script>", "", "")
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if strings.Contains(msg.HTML, "<script>") {
		t.Error("message body must be escaped")
	}
}
