package entity

import "time"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is immutable once appended to a conversation.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewExchange builds the user/assistant pair appended by a single chat turn.
// Both entries share the same timestamp.
func NewExchange(userText, assistantText string, at time.Time) []Message {
	return []Message{
		{Role: RoleUser, Content: userText, Timestamp: at},
		{Role: RoleAssistant, Content: assistantText, Timestamp: at},
	}
}

// TailMessages returns the last limit messages in their original order.
// A non-positive limit returns the whole slice.
func TailMessages(messages []Message, limit int) []Message {
	if limit <= 0 || len(messages) <= limit {
		return messages
	}
	return messages[len(messages)-limit:]
}
