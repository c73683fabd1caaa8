package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Each one is published after the change it describes
// has been saved.
const (
	// Student submissions
	EventProfileSubmitted   EventType = "student.profile_submitted"
	EventAcademicsSubmitted EventType = "student.academics_submitted"
	EventPaymentSubmitted   EventType = "student.payment_submitted"

	// Admin cycles
	EventRankingsGenerated    EventType = "admin.rankings_generated"
	EventSeatsAllocated       EventType = "admin.seats_allocated"
	EventAllocationOverridden EventType = "admin.allocation_overridden"

	// Payment review
	EventPaymentVerified      EventType = "payment.verified"
	EventPaymentRejected      EventType = "payment.rejected"
	EventPaymentsBulkVerified EventType = "payment.bulk_verified"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the student email, or "store" for events that
	// cover the whole record store.
	AggregateID() string

	// StoreVersion returns the store version the change was saved as.
	StoreVersion() int64
}

// StoreAggregate is the aggregate ID of store-wide events.
const StoreAggregate = "store"

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregateId"`
	Version     int64     `json:"storeVersion"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// StoreVersion implements Event interface.
func (e BaseEvent) StoreVersion() int64 {
	return e.Version
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time, version int64) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at,
		AggregateId: aggregateID,
		Version:     version,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Student Events
// ═══════════════════════════════════════════════════════════════════════════

// SubmissionEvent is emitted when a student saves one of the three forms.
type SubmissionEvent struct {
	BaseEvent

	// Created is true when the submission created the record.
	Created bool `json:"created"`
}

// ═══════════════════════════════════════════════════════════════════════════
// Admin Events
// ═══════════════════════════════════════════════════════════════════════════

// RankingsGeneratedEvent is emitted after a ranking run.
type RankingsGeneratedEvent struct {
	BaseEvent
	Ranked   int `json:"ranked"`
	Unranked int `json:"unranked"`
	Changed  int `json:"changed"`
}

// SeatsAllocatedEvent is emitted after an allocation cycle.
type SeatsAllocatedEvent struct {
	BaseEvent
	CycleID      string `json:"cycleId"`
	FirstChoice  int    `json:"firstChoice"`
	SecondChoice int    `json:"secondChoice"`
	Unplaced     int    `json:"unplaced"`
	Overrides    int    `json:"overrides"`
	Changed      int    `json:"changed"`
}

// AllocationOverriddenEvent is emitted when an admin sets or clears one
// allocation by hand. Empty branches mean "none".
type AllocationOverriddenEvent struct {
	BaseEvent
	Branch   string `json:"branch,omitempty"`
	Previous string `json:"previous,omitempty"`
	Cleared  bool   `json:"cleared"`
}

// ═══════════════════════════════════════════════════════════════════════════
// Payment Events
// ═══════════════════════════════════════════════════════════════════════════

// PaymentReviewedEvent is emitted for EventPaymentVerified and
// EventPaymentRejected.
type PaymentReviewedEvent struct {
	BaseEvent
}

// PaymentsBulkVerifiedEvent is emitted when all pending payments were
// approved at once.
type PaymentsBulkVerifiedEvent struct {
	BaseEvent
	Emails []string `json:"emails"`
}

// ═══════════════════════════════════════════════════════════════════════════
// Bus contracts
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
