package model

import (
	"time"
)

type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification is a transient message shown to the operator.
type Notification struct {
	Message    string    `json:"message"`
	Severity   Severity  `json:"severity"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Credentials are presented to the operator for out-of-band delivery
// when the automated invitation could not complete.
type Credentials struct {
	DoctorID string `json:"doctor_id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Reason   string `json:"reason"`
}

// Broker message types on the operator notification channel.
const (
	MessageTypeNotification   = "notification"
	MessageTypeManualFallback = "manual_fallback"
)
