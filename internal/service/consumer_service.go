// FILE: internal/service/consumer_service.go
package service

import (
	"context"

	"chat-state-be/internal/pkg/logger"
	"chat-state-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill/message"
)

const consumerModule = "StateEventConsumer"

// EventPublisher is implemented by the in-process bus and by the NATS publisher.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type IConsumerService interface {
	Consume(ctx context.Context) error
}

type consumerService struct {
	bus     *events.Bus
	forward EventPublisher
	logger  logger.ILogger
}

// NewConsumerService drains the in-process bus, logging every state event and
// relaying it to forward when one is configured.
func NewConsumerService(bus *events.Bus, forward EventPublisher, log logger.ILogger) IConsumerService {
	return &consumerService{
		bus:     bus,
		forward: forward,
		logger:  log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.bus.Subscribe(ctx)
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
	// Every message is acked: a relay failure must not stall the bus.
	defer msg.Ack()

	event, err := events.Decode(msg.Payload)
	if err != nil {
		cs.logger.Error(consumerModule, "Failed to decode state event", map[string]interface{}{
			"message_id": msg.UUID,
			"error":      err.Error(),
		})
		return
	}

	cs.logger.Info(consumerModule, "State event", map[string]interface{}{
		"type":        event.Type,
		"data":        event.Data,
		"occurred_at": event.OccurredAt,
	})

	if cs.forward == nil {
		return
	}
	if err := cs.forward.Publish(ctx, event); err != nil {
		cs.logger.Warn(consumerModule, "Failed to relay state event", map[string]interface{}{
			"type":  event.Type,
			"error": err.Error(),
		})
	}
}
