// Package health provides health status reporting for groundlink
// components. Components implement Reporter; the metric server
// aggregates their statuses into one JSON health surface.
package health

import (
	"time"
)

// Health state names
const (
	StateHealthy   = "healthy"
	StateDegraded  = "degraded"
	StateUnhealthy = "unhealthy"
)

// Status represents the health state of a component or of the system.
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"` // "healthy", "degraded", "unhealthy"
	Message     string    `json:"message,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics contains health-related metrics
type Metrics struct {
	Uptime       time.Duration `json:"uptime"`
	ErrorCount   int           `json:"error_count"`
	LastActivity time.Time     `json:"last_activity,omitempty"`
}

// Reporter is implemented by components that expose health status.
type Reporter interface {
	Health() Status
}

// Healthy builds a healthy status for a component.
func Healthy(component, message string) Status {
	return Status{
		Component: component,
		Healthy:   true,
		Status:    StateHealthy,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Degraded builds a degraded status for a component.
func Degraded(component, message string) Status {
	return Status{
		Component: component,
		Healthy:   false,
		Status:    StateDegraded,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Unhealthy builds an unhealthy status for a component.
func Unhealthy(component, message string) Status {
	return Status{
		Component: component,
		Healthy:   false,
		Status:    StateUnhealthy,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// WithMetrics returns a copy of the status with metrics attached.
func (s Status) WithMetrics(metrics *Metrics) Status {
	s.Metrics = metrics
	return s
}

// IsHealthy returns true if the status is healthy
func (s Status) IsHealthy() bool {
	return s.Status == StateHealthy
}

// IsDegraded returns true if the status is degraded
func (s Status) IsDegraded() bool {
	return s.Status == StateDegraded
}

// Aggregate combines component statuses into one system status. The
// system is healthy only when every component is; a single degraded
// component degrades the system, and any unhealthy component makes the
// system unhealthy.
func Aggregate(component string, statuses []Status) Status {
	overall := Status{
		Component:   component,
		Healthy:     true,
		Status:      StateHealthy,
		Timestamp:   time.Now(),
		SubStatuses: statuses,
	}

	for _, s := range statuses {
		switch s.Status {
		case StateUnhealthy:
			overall.Healthy = false
			overall.Status = StateUnhealthy
		case StateDegraded:
			overall.Healthy = false
			if overall.Status != StateUnhealthy {
				overall.Status = StateDegraded
			}
		}
	}

	return overall
}
