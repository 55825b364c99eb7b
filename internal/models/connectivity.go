package models

import "time"

// ConnectionState is the dashboard's belief about backend reachability.
type ConnectionState string

const (
	StateUnknown      ConnectionState = "unknown"
	StateConnected    ConnectionState = "connected"
	StateDisconnected ConnectionState = "disconnected"
)

// ProbeCause classifies why a probe failed.
type ProbeCause string

const (
	CauseTimeout ProbeCause = "timeout"
	CauseNetwork ProbeCause = "network"
	CauseHTTP    ProbeCause = "http"
)

// ProbeResult captures the outcome of a liveness probe.
type ProbeResult struct {
	Target     string     `json:"target"`
	OK         bool       `json:"ok"`
	StatusCode int        `json:"status_code,omitempty"`
	Cause      ProbeCause `json:"cause,omitempty"`
	Error      string     `json:"error,omitempty"`
	LatencyMs  int64      `json:"latency_ms"`
	CheckedAt  time.Time  `json:"checked_at"`
}

// ConnectivitySnapshot is a read-only view of the monitor state.
type ConnectivitySnapshot struct {
	State     ConnectionState `json:"state"`
	UpdatedAt time.Time       `json:"updated_at"`
	LastProbe *ProbeResult    `json:"last_probe,omitempty"`
}

// StateEvent is delivered to subscribers on every state transition.
type StateEvent struct {
	From ConnectionState `json:"from"`
	To   ConnectionState `json:"to"`
	At   time.Time       `json:"at"`
}
