package webhook

import "time"

// Result is the structured outcome of handling one delivery. The HTTP
// layer maps it directly to a response; it never leaks internal errors
// to the provider.
type Result struct {
	Success        bool          `json:"success"`
	StatusCode     int           `json:"status_code"`
	Message        string        `json:"message"`
	Retryable      bool          `json:"retryable"`
	Duplicate      bool          `json:"duplicate,omitempty"`
	EventID        string        `json:"event_id,omitempty"`
	ProcessingTime time.Duration `json:"processing_time"`
}
