package events

// AuditEvent is published once per task when it reaches a terminal status.
type AuditEvent struct {
	Timestamp            string  `json:"timestamp"` // RFC3339
	TaskID               string  `json:"task_id"`
	URL                  string  `json:"url"`
	Status               string  `json:"status"`  // DONE | FAILED
	Outcome              string  `json:"outcome"` // verdict | error
	Violation            bool    `json:"violation"`
	Severity             string  `json:"severity,omitempty"`
	Confidence           float64 `json:"confidence,omitempty"`
	InsufficientEvidence bool    `json:"insufficient_evidence,omitempty"`
	ErrorKind            string  `json:"error_kind,omitempty"`
	ErrorStage           string  `json:"error_stage,omitempty"`
	DurationMs           int64   `json:"duration_ms"`
	Warnings             int     `json:"warnings"`
	IndexFingerprint     string  `json:"index_fingerprint,omitempty"`
}
