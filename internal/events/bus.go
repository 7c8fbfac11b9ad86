package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/zap"
)

// Type identifies what happened in a conversation.
type Type string

const (
	MessageCreated Type = "message.created"
	MessageDeleted Type = "message.deleted"
	ThreadStatus   Type = "thread.status"
)

// Event is a change in one conversation.
type Event struct {
	Type       Type            `json:"type"`
	ChatID     string          `json:"chatId"`
	Data       json.RawMessage `json:"data"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// New builds an event carrying payload as JSON.
func New(t Type, chatID string, payload interface{}) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return Event{Type: t, ChatID: chatID, Data: data, OccurredAt: time.Now().UTC()}, nil
}

// subscriberBuffer bounds how far a subscriber may lag before publishers
// of its thread block.
const subscriberBuffer = 16

// Bus fans conversation events out to the subscribers of each thread.
// Events published while nobody listens are dropped.
type Bus struct {
	pubSub *gochannel.GoChannel
	log    *zap.Logger

	mu          sync.Mutex
	subscribers map[string]int
}

// NewBus creates an in-process bus.
func NewBus(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	// Publish waits for every subscriber to ack, which keeps the events of
	// a thread in publish order.
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 64, BlockPublishUntilSubscriberAck: true},
		watermill.NewStdLogger(false, false),
	)
	return &Bus{
		pubSub:      pubSub,
		log:         log.Named("events"),
		subscribers: make(map[string]int),
	}
}

// Topic is the bus topic of a conversation.
func Topic(chatID string) string { return "chat." + chatID }

// Publish delivers ev to the current subscribers of its thread.
func (b *Bus) Publish(ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := b.pubSub.Publish(Topic(ev.ChatID), msg); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

// Subscribe streams the events of chatID until ctx is done.
func (b *Bus) Subscribe(ctx context.Context, chatID string) (<-chan Event, error) {
	msgs, err := b.pubSub.Subscribe(ctx, Topic(chatID))
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", chatID, err)
	}

	b.mu.Lock()
	b.subscribers[chatID]++
	b.mu.Unlock()

	out := make(chan Event, subscriberBuffer)
	go func() {
		defer func() {
			b.mu.Lock()
			if b.subscribers[chatID]--; b.subscribers[chatID] <= 0 {
				delete(b.subscribers, chatID)
			}
			b.mu.Unlock()
			close(out)
		}()

		for msg := range msgs {
			var ev Event
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				b.log.Error("drop malformed event", zap.String("chat_id", chatID), zap.Error(err))
				msg.Ack()
				continue
			}
			msg.Ack()

			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Subscribers returns the number of live subscriptions of chatID.
func (b *Bus) Subscribers(chatID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subscribers[chatID]
}

// Close shuts the bus down; every subscription channel is closed.
func (b *Bus) Close() error {
	return b.pubSub.Close()
}
