package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recorder struct {
	got []Event
	err error
}

func (r *recorder) Publish(_ context.Context, e Event) error {
	r.got = append(r.got, e)
	return r.err
}

func TestFanout(t *testing.T) {
	ok := &recorder{}
	broken := &recorder{err: errors.New("nats down")}

	evt := NewIngestionCompleted("b1", 2, 7, []string{"a.txt", "b.txt"})
	err := Fanout{ok, nil, broken}.Publish(context.Background(), evt)

	assert.ErrorContains(t, err, "nats down")
	assert.Len(t, ok.got, 1)
	assert.Len(t, broken.got, 1)
	assert.Equal(t, TypeIngestionCompleted, ok.got[0].EventType())
	assert.Equal(t, 7, ok.got[0].Payload()["windows"])
	assert.False(t, ok.got[0].Timestamp().IsZero())
}

func TestFanout_Empty(t *testing.T) {
	assert.NoError(t, Fanout{}.Publish(context.Background(), BaseEvent{Type: "x"}))
}
