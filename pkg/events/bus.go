package events

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const StateTopic = "chat_state.events"

// Bus is the in-process event channel. Publishing never waits on consumers, so
// it is safe to call from the request path.
type Bus struct {
	pubSub *gochannel.GoChannel
	topic  string
}

func NewBus(logger watermill.LoggerAdapter) *Bus {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &Bus{
		pubSub: gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, logger),
		topic:  StateTopic,
	}
}

func (b *Bus) Publish(ctx context.Context, event Event) error {
	payload, err := Encode(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event.EventType(), err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("event_type", event.EventType())
	msg.SetContext(ctx)

	return b.pubSub.Publish(b.topic, msg)
}

func (b *Bus) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	return b.pubSub.Subscribe(ctx, b.topic)
}

func (b *Bus) Close() error {
	return b.pubSub.Close()
}
