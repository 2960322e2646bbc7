package models

// Severity classifies user-facing messages pushed over the real-time channel.
type Severity string

const (
	SeverityDanger  Severity = "danger"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)
