package email

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// webhookTolerance bounds clock skew between the provider and us.
const webhookTolerance = 5 * time.Minute

var (
	ErrMissingSignature = errors.New("missing webhook signature headers")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrStaleWebhook     = errors.New("webhook timestamp outside tolerance")
)

// Event is a delivery webhook payload.
type Event struct {
	Type      string         `json:"type"`
	CreatedAt time.Time      `json:"created_at"`
	Data      EventData      `json:"data"`
	Raw       map[string]any `json:"-"`
}

type EventData struct {
	EmailID string   `json:"email_id"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
}

// VerifyWebhook checks svix-style signature headers (svix-id,
// svix-timestamp, svix-signature) against secret. The secret may carry the
// "whsec_" prefix.
func VerifyWebhook(secret string, header http.Header, body []byte, now time.Time) error {
	id := header.Get("svix-id")
	timestamp := header.Get("svix-timestamp")
	signatures := header.Get("svix-signature")
	if id == "" || timestamp == "" || signatures == "" {
		return ErrMissingSignature
	}

	seconds, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	if skew := now.Unix() - seconds; math.Abs(float64(skew)) > webhookTolerance.Seconds() {
		return ErrStaleWebhook
	}

	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, "whsec_"))
	if err != nil {
		return fmt.Errorf("decode webhook secret: %w", err)
	}
	expected := Sign(key, id, timestamp, body)

	for _, candidate := range strings.Fields(signatures) {
		version, sig, ok := strings.Cut(candidate, ",")
		if !ok || version != "v1" {
			continue
		}
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// Sign computes the base64 v1 signature for a payload.
func Sign(key []byte, id, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(id + "." + timestamp + "."))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func ParseEvent(body []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return Event{}, fmt.Errorf("decode webhook event: %w", err)
	}
	if event.Type == "" {
		return Event{}, errors.New("webhook event type is required")
	}
	raw := map[string]any{}
	if err := json.Unmarshal(body, &raw); err == nil {
		if data, ok := raw["data"].(map[string]any); ok {
			event.Raw = data
		}
	}
	return event, nil
}

// StatusForEvent maps a provider event type to the stored email status.
// Unknown events leave the status unchanged.
func StatusForEvent(eventType string) string {
	switch eventType {
	case "email.sent":
		return "sent"
	case "email.delivered":
		return "delivered"
	case "email.delivery_delayed":
		return "delayed"
	case "email.bounced":
		return "bounced"
	case "email.complained":
		return "complained"
	case "email.opened":
		return "opened"
	case "email.clicked":
		return "clicked"
	default:
		return ""
	}
}
