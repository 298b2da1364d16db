package constant

const (
	// Tail of the history handed to the prompt builder when no limit is given
	DefaultConversationMessageLimit = 10
	DefaultCleanupMaxAgeHours       = 24

	HealthStatusHealthy   = "healthy"
	HealthStatusDegraded  = "degraded"
	HealthStatusUnhealthy = "unhealthy"
)
