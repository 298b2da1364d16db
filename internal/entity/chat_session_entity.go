package entity

import "time"

// Session is a client-declared interaction context grouping zero or more conversations.
type Session struct {
	Id                string    `json:"id"`
	StartTime         string    `json:"start_time"`
	CreatedAt         time.Time `json:"created_at"`
	ConversationCount int64     `json:"conversation_count"`
	MessageCount      int64     `json:"message_count"`
	ConversationIds   []string  `json:"conversation_ids"`
}

// NewSession returns a session with zero counts and an empty conversation list.
func NewSession(id, startTime string, now time.Time) *Session {
	return &Session{
		Id:              id,
		StartTime:       startTime,
		CreatedAt:       now,
		ConversationIds: []string{},
	}
}

// LinkConversation appends a conversation id and bumps the count in one step.
func (s *Session) LinkConversation(conversationId string) {
	s.ConversationIds = append(s.ConversationIds, conversationId)
	s.ConversationCount++
}

// CreatedBefore reports whether the session was created strictly before cutoff.
func (s *Session) CreatedBefore(cutoff time.Time) bool {
	return s.CreatedAt.Before(cutoff)
}
