// Package trip provides the error taxonomy for hand capture sessions.
//
// The trip package uses stumbling metaphors for capture failures - when a
// session loses its headset or its hands, it "stumbles" and loops back to an
// earlier state; when something it cannot reason about happens, it "falls"
// and the capture flow halts.
package trip

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Trip types used across the capture pipeline.
const (
	// UserDeclined means the user refused the immersive session request.
	UserDeclined = "USER_DECLINED"
	// SessionLost means the immersive session ended while it was required.
	SessionLost = "SESSION_LOST"
	// HandTrackingLost means one of the tracked hands disappeared.
	HandTrackingLost = "HAND_TRACKING_LOST"
	// UploadFailed means the recording could not be delivered.
	UploadFailed = "UPLOAD_FAILED"
	// SchemaMismatch means a record does not have the shape its descriptor expects.
	SchemaMismatch = "SCHEMA_MISMATCH"
	// TypeUnsupported means a record leaf is not a number, numeric array or object.
	TypeUnsupported = "TYPE_UNSUPPORTED"
	// Cancelled means a frame-driven operation was detached before it finished.
	Cancelled = "CANCELLED"
)

// Sentinels for errors.Is matching. A *Trip matches a sentinel of the same Type.
var (
	ErrUserDeclined     = &Trip{Type: UserDeclined, Severity: Stumble}
	ErrSessionLost      = &Trip{Type: SessionLost, Severity: Stumble}
	ErrHandTrackingLost = &Trip{Type: HandTrackingLost, Severity: Stumble}
	ErrUploadFailed     = &Trip{Type: UploadFailed, Severity: Stumble}
	ErrSchemaMismatch   = &Trip{Type: SchemaMismatch, Severity: Fall}
	ErrTypeUnsupported  = &Trip{Type: TypeUnsupported, Severity: Fall}
	ErrCancelled        = &Trip{Type: Cancelled, Severity: Stumble}
)

// Trip represents a capture failure with rich context.
//
// Trips categorize the failures a capture session can run into and carry
// enough context to log them and to decide whether the flow can loop back.
//
// Example usage:
//
//	err := trip.NewStumble(trip.SessionLost, "headset session ended",
//	    trip.Context{"state": "awaiting_hand_tracking"})
//
//	if errors.Is(err, trip.ErrSessionLost) {
//	    // re-acquire the session
//	}
type Trip struct {
	Type      string    // Error category for systematic handling
	Message   string    // Human-readable description
	Context   Context   // Additional debugging information
	Timestamp time.Time // When the error occurred
	Attempt   int       // Which attempt/retry this was
	Severity  Severity  // How serious this error is
	Cause     error     // Underlying error, if any
}

// Context provides structured debugging information for trips.
type Context map[string]interface{}

// Severity indicates how serious a trip is and how it should be handled.
type Severity int

const (
	// Stumble is recoverable: the flow loops back to an earlier state.
	Stumble Severity = iota

	// Error is an unclassified failure. The flow treats it like a fall.
	Error

	// Fall halts the flow and surfaces on the error screen.
	Fall
)

func (s Severity) String() string {
	switch s {
	case Stumble:
		return "stumble"
	case Error:
		return "error"
	case Fall:
		return "fall"
	default:
		return "unknown"
	}
}

// NewTrip creates a new trip with the current timestamp.
func NewTrip(errorType, message string, context Context) *Trip {
	return &Trip{
		Type:      errorType,
		Message:   message,
		Context:   context,
		Timestamp: time.Now(),
		Severity:  Error,
	}
}

// NewStumble creates a new trip with Stumble severity.
func NewStumble(errorType, message string, context Context) *Trip {
	t := NewTrip(errorType, message, context)
	t.Severity = Stumble
	return t
}

// NewFall creates a new trip with Fall severity.
func NewFall(errorType, message string, context Context) *Trip {
	t := NewTrip(errorType, message, context)
	t.Severity = Fall
	return t
}

// Schemaf builds a SchemaMismatch fall.
func Schemaf(format string, args ...interface{}) *Trip {
	return NewFall(SchemaMismatch, fmt.Sprintf(format, args...), nil)
}

// Typef builds a TypeUnsupported fall.
func Typef(format string, args ...interface{}) *Trip {
	return NewFall(TypeUnsupported, fmt.Sprintf(format, args...), nil)
}

// WithAttempt sets the attempt number for this error.
func (t *Trip) WithAttempt(attemptNumber int) *Trip {
	t.Attempt = attemptNumber
	return t
}

// WithSeverity sets the severity level for this error.
func (t *Trip) WithSeverity(severity Severity) *Trip {
	t.Severity = severity
	return t
}

// WithCause attaches the underlying error.
func (t *Trip) WithCause(err error) *Trip {
	t.Cause = err
	return t
}

// Clone returns a copy of the trip with its own Context map.
func (t *Trip) Clone() *Trip {
	c := *t
	if t.Context != nil {
		c.Context = make(Context, len(t.Context))
		for k, v := range t.Context {
			c.Context[k] = v
		}
	}
	return &c
}

// Error implements the error interface.
func (t *Trip) Error() string {
	if t.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", t.Type, t.Severity, t.Message, t.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", t.Type, t.Severity, t.Message)
}

// Unwrap returns the underlying cause.
func (t *Trip) Unwrap() error {
	return t.Cause
}

// Is reports whether target is a trip of the same type.
func (t *Trip) Is(target error) bool {
	other, ok := target.(*Trip)
	if !ok {
		return false
	}
	return other.Type == t.Type
}

// CanRecover returns true if the flow can loop back after this trip.
func (t *Trip) CanRecover() bool {
	return t.Severity == Stumble
}

// IsFall returns true if this error should halt the flow.
func (t *Trip) IsFall() bool {
	return t.Severity == Fall
}

// GetContext returns a specific context value if it exists.
func (t *Trip) GetContext(key string) (interface{}, bool) {
	if t.Context == nil {
		return nil, false
	}
	val, exists := t.Context[key]
	return val, exists
}

// DetailedString returns a comprehensive error description with context.
func (t *Trip) DetailedString() string {
	var details strings.Builder

	details.WriteString(t.Error())
	details.WriteString(fmt.Sprintf("\n  Time: %s", t.Timestamp.Format("15:04:05.000")))

	if t.Attempt > 0 {
		details.WriteString(fmt.Sprintf("\n  Attempt: %d", t.Attempt))
	}

	if len(t.Context) > 0 {
		details.WriteString("\n  Context:")
		for key, value := range t.Context {
			details.WriteString(fmt.Sprintf("\n    %s: %v", key, value))
		}
	}

	return details.String()
}

// As extracts a *Trip from err. Plain errors become an Error-severity trip of
// type "UNEXPECTED" so callers can treat every failure uniformly.
func As(err error) *Trip {
	if err == nil {
		return nil
	}
	var t *Trip
	if errors.As(err, &t) {
		return t
	}
	return NewTrip("UNEXPECTED", err.Error(), nil).WithCause(err)
}

// Recoverable reports whether err is a trip that allows looping back.
func Recoverable(err error) bool {
	var t *Trip
	if errors.As(err, &t) {
		return t.CanRecover()
	}
	return false
}

// Handler collects the trips a component runs into and applies its Policy.
type Handler struct {
	component string
	trips     []*Trip // Collected errors in chronological order
	stumbles  []*Trip // Collected recoverable issues in chronological order
	attempts  map[string]int
	policy    *Policy
}

// Policy defines how different types and severities of errors should be handled.
type Policy struct {
	// StopOnFall determines if the flow should stop immediately on fall errors
	StopOnFall bool

	// RetryPolicy limits consecutive recoveries per trip type
	RetryPolicy map[string]RetryConfig
}

// RetryConfig defines retry behavior for specific error types.
type RetryConfig struct {
	MaxRetries  int           // Maximum retry attempts, 0 means unlimited
	Backoff     time.Duration // Delay between retries
	Exponential bool          // Whether to use exponential backoff
}

// DefaultPolicy retries every recoverable trip without limit and stops on falls.
func DefaultPolicy() *Policy {
	return &Policy{
		StopOnFall: true,
		RetryPolicy: map[string]RetryConfig{
			UserDeclined:     {},
			SessionLost:      {},
			HandTrackingLost: {},
			UploadFailed:     {},
		},
	}
}

// NewHandler creates a new error handler for a specific component.
func NewHandler(component string, policy *Policy) *Handler {
	if policy == nil {
		policy = DefaultPolicy()
	}

	return &Handler{
		component: component,
		trips:     make([]*Trip, 0),
		stumbles:  make([]*Trip, 0),
		attempts:  make(map[string]int),
		policy:    policy,
	}
}

// Record adds a copy of trip to the handler's collection and returns it; the
// argument is never modified. Recoverable trips get their attempt number
// assigned; once a type exceeds its MaxRetries the trip is escalated to a Fall.
func (h *Handler) Record(trip *Trip) *Trip {
	trip = trip.Clone()
	if trip.Severity != Stumble {
		h.trips = append(h.trips, trip)
		return trip
	}

	h.attempts[trip.Type]++
	trip.Attempt = h.attempts[trip.Type]

	if cfg, ok := h.policy.RetryPolicy[trip.Type]; ok && cfg.MaxRetries > 0 && trip.Attempt > cfg.MaxRetries {
		trip.Severity = Fall
		h.trips = append(h.trips, trip)
		return trip
	}

	h.stumbles = append(h.stumbles, trip)
	return trip
}

// Reset clears attempt counters, keeping the recorded history.
func (h *Handler) Reset(errorType string) {
	delete(h.attempts, errorType)
}

// Attempts returns how many times a trip type has been recorded since its last reset.
func (h *Handler) Attempts(errorType string) int {
	return h.attempts[errorType]
}

// Backoff returns the delay to wait before the given attempt of a trip type.
func (h *Handler) Backoff(errorType string, attempt int) time.Duration {
	cfg, ok := h.policy.RetryPolicy[errorType]
	if !ok || cfg.Backoff <= 0 {
		return 0
	}
	if !cfg.Exponential || attempt <= 1 {
		return cfg.Backoff
	}
	return cfg.Backoff * time.Duration(1<<uint(attempt-1))
}

// ShouldContinue determines if the flow should continue based on current errors.
func (h *Handler) ShouldContinue() bool {
	if h.policy.StopOnFall {
		for _, trip := range h.trips {
			if trip.IsFall() {
				return false
			}
		}
	}
	return true
}

// HasTrips returns true if any errors (non-stumbles) have been recorded.
func (h *Handler) HasTrips() bool {
	return len(h.trips) > 0
}

// HasStumbles returns true if any stumbles have been recorded.
func (h *Handler) HasStumbles() bool {
	return len(h.stumbles) > 0
}

// GetTrips returns all recorded errors.
func (h *Handler) GetTrips() []*Trip {
	return h.trips
}

// GetStumbles returns all recorded stumbles.
func (h *Handler) GetStumbles() []*Trip {
	return h.stumbles
}

// GetRetryConfig returns the retry configuration for a specific error type.
func (h *Handler) GetRetryConfig(errorType string) (RetryConfig, bool) {
	config, exists := h.policy.RetryPolicy[errorType]
	return config, exists
}

// Summary provides a concise overview of all errors and stumbles.
func (h *Handler) Summary() string {
	if len(h.trips) == 0 && len(h.stumbles) == 0 {
		return fmt.Sprintf("[%s] No issues during capture", h.component)
	}

	return fmt.Sprintf("[%s] %d trips, %d stumbles",
		h.component, len(h.trips), len(h.stumbles))
}

// DetailedReport provides a comprehensive report of all issues.
func (h *Handler) DetailedReport() string {
	var report strings.Builder

	report.WriteString(fmt.Sprintf("=== %s Component Report ===\n", h.component))
	report.WriteString(h.Summary() + "\n")

	if len(h.trips) > 0 {
		report.WriteString("\nTrips:\n")
		for i, trip := range h.trips {
			report.WriteString(fmt.Sprintf("%d. %s\n", i+1, trip.DetailedString()))
		}
	}

	if len(h.stumbles) > 0 {
		report.WriteString("\nStumbles:\n")
		for i, stumble := range h.stumbles {
			report.WriteString(fmt.Sprintf("%d. %s\n", i+1, stumble.DetailedString()))
		}
	}

	return report.String()
}
