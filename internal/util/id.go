package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random identifier, optionally prefixed with the entity kind
// ("prj_", "tsk_", ...).
func NewID(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

// NewRequestID returns a canonical uuid string for request correlation.
func NewRequestID() string {
	return uuid.NewString()
}
