// Package health provides layer health evaluation and the status HTTP server.
package health

import (
	"time"

	"github.com/vietddude/storeguard/internal/core/domain"
	"github.com/vietddude/storeguard/internal/infra/client"
)

// SystemStatus represents the overall health state of the layer.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// queueDegradedRatio is the queue fill level that marks the layer degraded.
const queueDegradedRatio = 0.8

// errorRateDegraded is the executor error rate that marks the layer degraded.
const errorRateDegraded = 0.5

// Report contains the full layer health report.
type Report struct {
	SystemStatus  SystemStatus `json:"system_status"`
	Reasons       []string     `json:"reasons,omitempty"`
	Stats         client.Stats `json:"stats"`
	QueueCapacity int          `json:"queue_capacity"`
	CheckedAt     time.Time    `json:"checked_at"`
}

// Evaluate derives a status from client stats. Worst case wins.
func Evaluate(s client.Stats, queueCapacity int) (SystemStatus, []string) {
	status := StatusHealthy
	var reasons []string

	switch s.Network.Quality {
	case domain.QualityOffline:
		return StatusCritical, []string{"network offline"}
	case domain.QualityPoor:
		status = StatusDegraded
		reasons = append(reasons, "network quality poor")
	}

	if queueCapacity > 0 && float64(s.Queue.Length) >= queueDegradedRatio*float64(queueCapacity) {
		status = StatusDegraded
		reasons = append(reasons, "retry queue nearly full")
	}

	if s.Executor != nil && s.Executor.ErrorRate >= errorRateDegraded {
		status = StatusDegraded
		reasons = append(reasons, "api error rate high")
	}
	return status, reasons
}
