// Package notify holds the read-side rules for user notifications: expiry,
// dedupe keys and reconciliation of duplicates into a single entry.
package notify

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/samber/lo"

	"nel/api/internal/store"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

var Types = []string{"info", "warning", "error", "success", "system"}

func ValidType(t string) bool {
	return lo.Contains(Types, t)
}

// DedupeKey derives a stable key from the visible content of a notification.
// Map keys in data are serialized in sorted order, so equal payloads hash
// equally regardless of construction order.
func DedupeKey(notificationType, title, message string, data map[string]any) string {
	if data == nil {
		data = map[string]any{}
	}
	raw, err := json.Marshal([]any{notificationType, title, message, data})
	if err != nil {
		raw = []byte(notificationType + "\x00" + title + "\x00" + message)
	}
	sum := sha256.Sum256(raw)
	return "auto:" + hex.EncodeToString(sum[:16])
}

// Expired reports whether n is past its expiry at now.
func Expired(n store.Notification, now time.Time) bool {
	return n.ExpiresAt != nil && !n.ExpiresAt.After(now)
}

func Active(items []store.Notification, now time.Time) []store.Notification {
	return lo.Filter(items, func(n store.Notification, _ int) bool {
		return !Expired(n, now)
	})
}

// Reconcile collapses notifications sharing a dedupe key into one entry. The
// newest duplicate wins; the entry is unread when any duplicate is unread.
// The result is ordered newest first.
func Reconcile(items []store.Notification) []store.Notification {
	groups := lo.GroupBy(items, func(n store.Notification) string {
		if n.DedupeKey == "" {
			return "id:" + n.ID
		}
		return n.UserID + "\x00" + n.DedupeKey
	})

	out := make([]store.Notification, 0, len(groups))
	for _, group := range groups {
		winner := lo.MaxBy(group, func(a, b store.Notification) bool {
			return a.CreatedAt.After(b.CreatedAt)
		})
		if lo.SomeBy(group, func(n store.Notification) bool { return !n.Read }) {
			winner.Read = false
			winner.ReadAt = nil
		}
		out = append(out, winner)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// FilterRead keeps entries whose read flag equals *read; nil keeps all.
func FilterRead(items []store.Notification, read *bool) []store.Notification {
	if read == nil {
		return items
	}
	return lo.Filter(items, func(n store.Notification, _ int) bool { return n.Read == *read })
}

// NormalizeLimit applies the default and maximum page size.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

func Page(items []store.Notification, limit, offset int) []store.Notification {
	limit = NormalizeLimit(limit)
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []store.Notification{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
