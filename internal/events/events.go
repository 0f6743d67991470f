package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is a record change broadcast to queue subscribers and dashboard
// clients. RoutingKey is water.<kind>.<action>.
type Event struct {
	ID         string    `json:"id"`
	RoutingKey string    `json:"type"`
	Kind       string    `json:"kind"`
	Action     string    `json:"action"`
	RecordID   int64     `json:"recordId"`
	Actor      string    `json:"actor,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
	Data       any       `json:"data,omitempty"`
}

// New builds an event with a fresh id
func New(kind, action string, recordID int64, actor string, data any, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		RoutingKey: fmt.Sprintf("water.%s.%s", kind, action),
		Kind:       kind,
		Action:     action,
		RecordID:   recordID,
		Actor:      actor,
		OccurredAt: at,
		Data:       data,
	}
}

// Publisher delivers events somewhere
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Multi fans an event out to every publisher, returning the joined errors
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop drops every event
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
