package ws

import (
	"github.com/google/uuid"
)

// NewMessageID returns a random UUID rendered as text.
func NewMessageID() MessageID {
	return MessageID(uuid.New().String())
}
