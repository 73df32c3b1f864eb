package service

import (
	"context"
	"encoding/json"

	"ai-chat-relay-be/internal/pkg/logger"
	"ai-chat-relay-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const consumerModule = "EVENT_CONSUMER"

type IConsumerService interface {
	// Consume subscribes to the in-process bus and handles messages until ctx
	// is cancelled.
	Consume(ctx context.Context) error
	// HandleEvent processes one event regardless of which bus delivered it.
	HandleEvent(ctx context.Context, event events.Event) error
}

type consumerService struct {
	pubSub    *gochannel.GoChannel
	topicName string
	logger    logger.ILogger
}

func NewConsumerService(pubSub *gochannel.GoChannel, topicName string, logger logger.ILogger) IConsumerService {
	return &consumerService{
		pubSub:    pubSub,
		topicName: topicName,
		logger:    logger,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	var envelope eventEnvelope
	if err := json.Unmarshal(msg.Payload, &envelope); err != nil {
		cs.logger.Error(consumerModule, "Failed to unmarshal message", map[string]interface{}{
			"message_id": msg.UUID,
			"error":      err.Error(),
		})
		msg.Ack() // a bad payload will never parse; do not redeliver
		return
	}

	event := events.BaseEvent{
		Type:       envelope.Type,
		Data:       envelope.Payload,
		OccurredAt: envelope.OccurredAt,
	}
	if err := cs.HandleEvent(ctx, event); err != nil {
		msg.Nack()
		return
	}
	msg.Ack()
}

func (cs *consumerService) HandleEvent(_ context.Context, event events.Event) error {
	switch event.EventType() {
	case events.TypeIngestionCompleted:
		p := event.Payload()
		cs.logger.Info(consumerModule, "Document set replaced", map[string]interface{}{
			"batch_id":    p["batch_id"],
			"loaded":      p["loaded"],
			"windows":     p["windows"],
			"reports":     p["reports"],
			"occurred_at": event.Timestamp(),
		})
	default:
		cs.logger.Debug(consumerModule, "Ignoring event", map[string]interface{}{"type": event.EventType()})
	}
	return nil
}
