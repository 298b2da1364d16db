package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"chat-state-be/internal/pkg/logger"
	"chat-state-be/pkg/events"
)

const healthModule = "HealthMonitor"

// Prober is the part of a state backend the monitor needs: a bounded round trip.
type Prober interface {
	Ping(ctx context.Context) error
}

// HealthStatus is a snapshot of the monitor, safe to hand out.
type HealthStatus struct {
	RemoteAvailable bool      `json:"remote_available"`
	LastProbeAt     time.Time `json:"last_probe_at"`
	LastProbeOk     bool      `json:"last_probe_ok"`
	LastError       string    `json:"last_error,omitempty"`
	FailoverCount   int64     `json:"failover_count"`
}

// IHealthMonitor owns the process-wide remote availability flag.
type IHealthMonitor interface {
	IsRemoteAvailable() bool
	// Probe is the only way back to the remote backend once it has been marked down.
	Probe(ctx context.Context) bool
	MarkUnavailable(cause error)
	Status() HealthStatus
}

type HealthMonitor struct {
	remote    Prober
	timeout   time.Duration
	logger    logger.ILogger
	events    EventPublisher
	available atomic.Bool
	failovers atomic.Int64

	mu          sync.RWMutex
	lastProbeAt time.Time
	lastProbeOk bool
	lastError   string
}

// NewHealthMonitor probes the remote once; the result is the initial state.
func NewHealthMonitor(ctx context.Context, remote Prober, timeout time.Duration, log logger.ILogger) *HealthMonitor {
	h := &HealthMonitor{
		remote:  remote,
		timeout: timeout,
		logger:  log,
	}
	h.Probe(ctx)
	return h
}

// SetEventPublisher must be called before the monitor is shared.
func (h *HealthMonitor) SetEventPublisher(p EventPublisher) {
	h.events = p
}

func (h *HealthMonitor) IsRemoteAvailable() bool {
	return h.available.Load()
}

func (h *HealthMonitor) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	err := h.remote.Ping(ctx)

	h.mu.Lock()
	h.lastProbeAt = start
	h.lastProbeOk = err == nil
	if err != nil {
		h.lastError = err.Error()
	} else {
		h.lastError = ""
	}
	h.mu.Unlock()

	if err != nil {
		h.logger.Warn(healthModule, "Remote probe failed, serving from local fallback", map[string]interface{}{
			"error": err.Error(),
		})
		h.demote(err.Error())
		return false
	}

	if !h.available.Swap(true) {
		h.logger.Info(healthModule, "Remote backend available", map[string]interface{}{
			"response_time_ms": time.Since(start).Milliseconds(),
		})
		h.publish(ctx, events.NewEvent(events.TypeBackendRestored, map[string]interface{}{
			"probed_at": start,
		}))
	}
	return true
}

func (h *HealthMonitor) MarkUnavailable(cause error) {
	reason := "unknown"
	if cause != nil {
		reason = cause.Error()
	}
	h.mu.Lock()
	h.lastError = reason
	h.mu.Unlock()

	h.demote(reason)
}

// demote counts and publishes only the available to unavailable transition.
func (h *HealthMonitor) demote(reason string) {
	if h.available.CompareAndSwap(true, false) {
		n := h.failovers.Add(1)
		h.logger.Warn(healthModule, "Remote backend marked unavailable", map[string]interface{}{
			"error": reason,
		})
		h.publish(context.Background(), events.NewEvent(events.TypeBackendFailover, map[string]interface{}{
			"error":          reason,
			"failover_count": n,
		}))
	}
}

func (h *HealthMonitor) publish(ctx context.Context, event events.Event) {
	if h.events == nil {
		return
	}
	if err := h.events.Publish(ctx, event); err != nil {
		h.logger.Warn(healthModule, "Failed to publish state event", map[string]interface{}{
			"type":  event.EventType(),
			"error": err.Error(),
		})
	}
}

func (h *HealthMonitor) Status() HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return HealthStatus{
		RemoteAvailable: h.available.Load(),
		LastProbeAt:     h.lastProbeAt,
		LastProbeOk:     h.lastProbeOk,
		LastError:       h.lastError,
		FailoverCount:   h.failovers.Load(),
	}
}
