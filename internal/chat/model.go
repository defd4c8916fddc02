// Package chat keeps health assistant conversations.
package chat

import (
	"time"

	"github.com/google/uuid"

	"suraksha-jal/internal/flows"
)

type Message struct {
	Role      flows.Role `json:"role"`
	Content   string     `json:"content"`
	Timestamp time.Time  `json:"timestamp"`
}

type Session struct {
	ID        uuid.UUID `json:"id"`
	Owner     string    `json:"-"`
	Language  *string   `json:"language,omitempty"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (s *Session) history() []flows.ChatMessage {
	out := make([]flows.ChatMessage, 0, len(s.Messages))
	for _, m := range s.Messages {
		out = append(out, flows.ChatMessage{Role: m.Role, Content: m.Content})
	}
	return out
}
