package domain

import "time"

// Quality is the latency tier of the current connection.
type Quality string

const (
	QualityOffline   Quality = "offline"
	QualityUnknown   Quality = "unknown"
	QualityExcellent Quality = "excellent"
	QualityGood      Quality = "good"
	QualityFair      Quality = "fair"
	QualityPoor      Quality = "poor"
)

// Rank orders qualities for gauges; higher is better.
func (q Quality) Rank() int {
	switch q {
	case QualityExcellent:
		return 4
	case QualityGood:
		return 3
	case QualityFair:
		return 2
	case QualityPoor:
		return 1
	case QualityUnknown:
		return 0
	default:
		return -1
	}
}

// NetworkStatus is the current connectivity assessment.
// Quality is QualityOffline if and only if Online is false.
type NetworkStatus struct {
	Online        bool      `json:"online"`
	Quality       Quality   `json:"quality"`
	LastCheckedAt time.Time `json:"last_checked_at"`
}
