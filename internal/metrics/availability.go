package metrics

import (
	"math"
	"time"

	"kbdash/internal/models"
)

// Availability summarises probe history for the connectivity card.
type Availability struct {
	UptimePercent float64 `json:"uptime_percent"`
	TotalProbes   int     `json:"total_probes"`
	Passing       int     `json:"passing"`
	Failing       int     `json:"failing"`
	Timeouts      int     `json:"timeouts"`
	AvgLatencyMs  int64   `json:"avg_latency_ms"`
	LastOK        string  `json:"last_ok,omitempty"`
	LastFailure   string  `json:"last_failure,omitempty"`
}

// ComputeAvailability aggregates pass/fail counts and latency over probe results.
func ComputeAvailability(entries []models.ProbeResult) Availability {
	var (
		result      Availability
		latencySum  int64
		lastOK      time.Time
		lastFailure time.Time
	)
	for _, entry := range entries {
		result.TotalProbes++
		if entry.OK {
			result.Passing++
			latencySum += entry.LatencyMs
			if entry.CheckedAt.After(lastOK) {
				lastOK = entry.CheckedAt
			}
			continue
		}
		result.Failing++
		if entry.Cause == models.CauseTimeout {
			result.Timeouts++
		}
		if entry.CheckedAt.After(lastFailure) {
			lastFailure = entry.CheckedAt
		}
	}
	if result.TotalProbes == 0 {
		return result
	}

	result.UptimePercent = round2(float64(result.Passing) / float64(result.TotalProbes) * 100)
	if result.Passing > 0 {
		result.AvgLatencyMs = latencySum / int64(result.Passing)
	}
	if !lastOK.IsZero() {
		result.LastOK = lastOK.UTC().Format(time.RFC3339)
	}
	if !lastFailure.IsZero() {
		result.LastFailure = lastFailure.UTC().Format(time.RFC3339)
	}
	return result
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
