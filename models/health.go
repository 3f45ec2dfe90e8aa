package models

import "time"

type HealthStatus string

const (
	Healthy   HealthStatus = "healthy"
	Unhealthy HealthStatus = "unhealthy"
)

// RegionHealth is one region's entry in a health-check result.
type RegionHealth struct {
	Region       string       `json:"region" db:"region"`
	Status       HealthStatus `json:"status" db:"status"`
	LatencyMs    int64        `json:"latencyMs" db:"latency_ms"`
	ErrorMessage *string      `json:"errorMessage,omitempty" db:"error_message"`
	CheckedAt    time.Time    `json:"checkedAt" db:"checked_at"`
}
