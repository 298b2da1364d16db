package entity

import "time"

// Conversation is an ordered message thread. SessionId is a back-reference only;
// a conversation whose session did not exist at creation time stays unlinked.
type Conversation struct {
	Id           string    `json:"id"`
	SessionId    string    `json:"session_id"`
	StartTime    string    `json:"start_time"`
	CreatedAt    time.Time `json:"created_at"`
	Messages     []Message `json:"messages"`
	MessageCount int64     `json:"message_count"`
}

// NewConversation seeds a system message when systemPrompt is not empty.
func NewConversation(id, sessionId, startTime, systemPrompt string, now time.Time) *Conversation {
	c := &Conversation{
		Id:        id,
		SessionId: sessionId,
		StartTime: startTime,
		CreatedAt: now,
		Messages:  []Message{},
	}
	if systemPrompt != "" {
		c.Append(Message{Role: RoleSystem, Content: systemPrompt, Timestamp: now})
	}
	return c
}

// Append keeps MessageCount equal to len(Messages).
func (c *Conversation) Append(messages ...Message) {
	c.Messages = append(c.Messages, messages...)
	c.MessageCount = int64(len(c.Messages))
}
