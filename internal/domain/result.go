package domain

import "time"

// Result is the outcome of one probe. Ephemeral; the history ledger persists it.
type Result struct {
	Timestamp    time.Time `json:"timestamp"`
	Status       Status    `json:"status"`
	StatusCode   int       `json:"status_code,omitempty"` // protocol-specific, 0 if n/a
	ResponseTime int64     `json:"response_time_ms"`
	Message      string    `json:"message,omitempty"`
	Records      []string  `json:"records,omitempty"` // resolved DNS values, when applicable
}
