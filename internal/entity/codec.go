package entity

import "encoding/json"

// Both state backends persist records through these helpers so the stored shape
// never diverges between them.

func EncodeSession(s *Session) ([]byte, error) {
	return json.Marshal(s)
}

func DecodeSession(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if s.ConversationIds == nil {
		s.ConversationIds = []string{}
	}
	return &s, nil
}

func EncodeConversation(c *Conversation) ([]byte, error) {
	return json.Marshal(c)
}

func DecodeConversation(data []byte) (*Conversation, error) {
	var c Conversation
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if c.Messages == nil {
		c.Messages = []Message{}
	}
	return &c, nil
}
