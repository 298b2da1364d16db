package entity

// GlobalStats are process-wide counters kept alongside entity writes.
type GlobalStats struct {
	TotalSessions      int64 `json:"total_sessions"`
	TotalConversations int64 `json:"total_conversations"`
	TotalMessages      int64 `json:"total_messages"`
}

// Hash field names used by the remote counters.
const (
	StatsFieldSessions      = "total_sessions"
	StatsFieldConversations = "total_conversations"
	StatsFieldMessages      = "total_messages"
)

// StatsDelta is a signed change applied to GlobalStats in the same batch as the
// entity write that caused it.
type StatsDelta struct {
	Sessions      int64
	Conversations int64
	Messages      int64
}

// Fields returns the non-zero components keyed by hash field name.
func (d StatsDelta) Fields() map[string]int64 {
	out := make(map[string]int64, 3)
	if d.Sessions != 0 {
		out[StatsFieldSessions] = d.Sessions
	}
	if d.Conversations != 0 {
		out[StatsFieldConversations] = d.Conversations
	}
	if d.Messages != 0 {
		out[StatsFieldMessages] = d.Messages
	}
	return out
}

func (d StatsDelta) Negate() StatsDelta {
	return StatsDelta{Sessions: -d.Sessions, Conversations: -d.Conversations, Messages: -d.Messages}
}

func (s GlobalStats) Apply(d StatsDelta) GlobalStats {
	s.TotalSessions += d.Sessions
	s.TotalConversations += d.Conversations
	s.TotalMessages += d.Messages
	return s
}
