package domain

import (
	"fmt"
	"time"
)

// EventStatus enumerates the update-event lifecycle.
type EventStatus string

const (
	StatusDetected   EventStatus = "detected"
	StatusProcessing EventStatus = "processing"
	StatusVerified   EventStatus = "verified"
	StatusIntegrated EventStatus = "integrated"
	StatusFailed     EventStatus = "failed"
	StatusDismissed  EventStatus = "dismissed"
)

var allowedTransitions = map[EventStatus][]EventStatus{
	StatusDetected:   {StatusProcessing, StatusFailed, StatusDismissed},
	StatusProcessing: {StatusVerified, StatusFailed, StatusDismissed},
	StatusVerified:   {StatusIntegrated, StatusFailed},
}

// Terminal reports whether no further transition is allowed.
func (s EventStatus) Terminal() bool {
	return s == StatusIntegrated || s == StatusFailed || s == StatusDismissed
}

// UpdateEvent tracks one detected change announcement through the pipeline.
type UpdateEvent struct {
	ID             string
	AgreementID    string
	Source         string
	DetectedAt     time.Time
	Title          string
	URL            string
	ContentSummary string
	Confidence     float64
	Status         EventStatus
	ProcessedAt    *time.Time
	ErrorMessage   string
}

// Transition moves the event to the next status. Terminal statuses never change.
func (e *UpdateEvent) Transition(to EventStatus, at time.Time) error {
	for _, next := range allowedTransitions[e.Status] {
		if next == to {
			e.Status = to
			if to.Terminal() {
				e.ProcessedAt = &at
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.Status, to)
}

// Fail marks the event failed with a reason.
func (e *UpdateEvent) Fail(reason string, at time.Time) error {
	if err := e.Transition(StatusFailed, at); err != nil {
		return err
	}
	e.ErrorMessage = reason
	return nil
}
