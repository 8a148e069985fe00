// internal/types/ids.go
package types

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/google/uuid"
)

// ChatID is an opaque, URL-safe, 16-character chat identifier.
type ChatID string

// NewChatID generates a fresh, URL-safe 16-character chat id.
func NewChatID() ChatID {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is unrecoverable on any supported platform;
		// fall back to a UUID-derived id rather than panic.
		return ChatID(uuid.New().String()[:16])
	}
	return ChatID(base64.RawURLEncoding.EncodeToString(buf)[:16])
}

// TurnID identifies one agent-loop turn for tracing/log correlation.
// Not persisted.
type TurnID string

// NewTurnID returns a fresh turn identifier.
func NewTurnID() TurnID {
	return TurnID(uuid.New().String())
}
