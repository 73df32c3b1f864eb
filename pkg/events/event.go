package events

import (
	"context"
	"errors"
	"time"
)

const TypeIngestionCompleted = "ingestion.completed"

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g. "ingestion.completed").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Fanout publishes to every publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewIngestionCompleted reports a finished batch. reports is whatever the
// caller wants consumers to see per file; it must be JSON serialisable.
func NewIngestionCompleted(batchID string, loaded, windows int, reports interface{}) BaseEvent {
	return BaseEvent{
		Type: TypeIngestionCompleted,
		Data: map[string]interface{}{
			"batch_id": batchID,
			"loaded":   loaded,
			"windows":  windows,
			"reports":  reports,
		},
		OccurredAt: time.Now(),
	}
}
