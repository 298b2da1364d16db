package dto

import (
	"time"

	"chat-state-be/internal/entity"
)

type InitializeSessionRequest struct {
	SessionId  string `json:"session_id" validate:"required"`
	StartTime  string `json:"start_time"`
	TtlSeconds int    `json:"ttl_seconds" validate:"min=0"`
}

type InitializeConversationRequest struct {
	ConversationId string `json:"conversation_id" validate:"required"`
	SessionId      string `json:"session_id"`
	StartTime      string `json:"start_time"`
	SystemPrompt   string `json:"system_prompt,omitempty"`
	TtlSeconds     int    `json:"ttl_seconds" validate:"min=0"`
}

type AddMessageRequest struct {
	SessionId        string `json:"session_id"`
	UserMessage      string `json:"user_message" validate:"required"`
	AssistantMessage string `json:"assistant_message" validate:"required"`
}

type AddMessageResponse struct {
	ConversationId string `json:"conversation_id"`
	MessageCount   int64  `json:"message_count"`
}

type GetMessagesResponse struct {
	ConversationId string           `json:"conversation_id"`
	Messages       []entity.Message `json:"messages"`
}

type SessionConversationsResponse struct {
	SessionId       string   `json:"session_id"`
	ConversationIds []string `json:"conversation_ids"`
}

// CleanupRequest mirrors the manual cleanup trigger; MaxAgeHours defaults to 24.
type CleanupRequest struct {
	MaxAgeHours *int `json:"max_age_hours" validate:"omitempty,min=0"`
}

type CleanupResponse struct {
	CleanedSessions int                `json:"cleaned_sessions"`
	RemainingStats  entity.GlobalStats `json:"remaining_stats"`
}

type ExtendTtlRequest struct {
	AdditionalSeconds int `json:"additional_seconds" validate:"required,min=1"`
}

type ExtendTtlResponse struct {
	SessionId string `json:"session_id"`
	Extended  bool   `json:"extended"`
}

type HealthCheckResponse struct {
	Status          string             `json:"status"`
	Backend         string             `json:"backend"`
	RemoteAvailable bool               `json:"remote_available"`
	Error           string             `json:"error,omitempty"`
	Stats           entity.GlobalStats `json:"stats"`
	LastProbeAt     time.Time          `json:"last_probe_at"`
	FailoverCount   int64              `json:"failover_count"`
	CheckedAt       time.Time          `json:"checked_at"`
}

type ProbeResponse struct {
	RemoteAvailable bool   `json:"remote_available"`
	LastError       string `json:"last_error,omitempty"`
}
