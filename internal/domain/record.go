package domain

import "time"

const (
	OutcomeResponded = "responded"
	OutcomeFailed    = "failed"
)

// TranscodeRecord summarizes one pipeline run. It never carries image bytes.
type TranscodeRecord struct {
	RequestID   string    `json:"request_id"`
	Method      string    `json:"method"`
	Path        string    `json:"path"`
	SourceURL   string    `json:"source_url,omitempty"`
	Format      string    `json:"format,omitempty"`
	Width       int       `json:"width,omitempty"`
	Height      int       `json:"height,omitempty"`
	Outcome     string    `json:"outcome"`
	FailedStage string    `json:"failed_stage,omitempty"`
	Kind        string    `json:"kind,omitempty"`
	Status      int       `json:"status"`
	SourceBytes int64     `json:"source_bytes"`
	OutputBytes int64     `json:"output_bytes"`
	DurationMS  int64     `json:"duration_ms"`
	CreatedAt   time.Time `json:"created_at"`
}
