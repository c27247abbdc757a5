package sync

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// EventType classifies orchestrator events
type EventType string

const (
	EventTierStarted   EventType = "tier.started"
	EventTierCompleted EventType = "tier.completed"
	EventTierFailed    EventType = "tier.failed"
	EventTierSkipped   EventType = "tier.skipped"
	EventEntitySynced  EventType = "entity.synced"
	EventEntityFailed  EventType = "entity.failed"
	EventPaused        EventType = "sync.paused"
	EventResumed       EventType = "sync.resumed"
)

// Event is emitted after every state transition worth telling subscribers
// about. Changed lists entity kinds whose mirrored rows were written.
type Event struct {
	ID             string       `json:"id"`
	Type           EventType    `json:"type"`
	OrganizationID string       `json:"organizationId"`
	ConnectionID   string       `json:"connectionId"`
	Tier           Tier         `json:"tier,omitempty"`
	Entity         EntityKind   `json:"entity,omitempty"`
	Changed        []EntityKind `json:"changed,omitempty"`
	Written        int          `json:"written,omitempty"`
	Message        string       `json:"message,omitempty"`
	OccurredAt     time.Time    `json:"occurredAt"`
}

func newEvent(t EventType, org, conn string) Event {
	return Event{
		ID:             uuid.New().String(),
		Type:           t,
		OrganizationID: org,
		ConnectionID:   conn,
		OccurredAt:     time.Now().UTC(),
	}
}

// EventPublisher receives orchestrator events. Publish must not block.
type EventPublisher interface {
	Publish(Event)
}

// NopPublisher discards events
type NopPublisher struct{}

// Publish implements EventPublisher
func (NopPublisher) Publish(Event) {}

// LogPublisher writes events to a logger
type LogPublisher struct {
	Logger logrus.FieldLogger
}

// Publish implements EventPublisher
func (p LogPublisher) Publish(e Event) {
	p.Logger.WithFields(logrus.Fields{
		"event":      e.Type,
		"connection": e.ConnectionID,
		"tier":       e.Tier,
		"entity":     e.Entity,
		"written":    e.Written,
	}).Debug("📣 sync event")
}

// MultiPublisher fans events out to several publishers
type MultiPublisher []EventPublisher

// Publish implements EventPublisher
func (m MultiPublisher) Publish(e Event) {
	for _, p := range m {
		p.Publish(e)
	}
}
