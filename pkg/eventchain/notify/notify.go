// Package notify publishes dispatch outcomes as watermill messages.
//
// A Notifier is a manager listener: after every dispatch it publishes the
// Outcome as JSON on a topic, so other components can react to finished
// chains without registering processors. Delivery follows the publisher's
// guarantees; the dispatch itself never waits for subscribers.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/randalmurphal/eventchain/pkg/eventchain"
	"github.com/randalmurphal/eventchain/pkg/eventchain/config"
	ecerrors "github.com/randalmurphal/eventchain/pkg/eventchain/errors"
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "eventchain.outcomes"

// Message metadata keys.
const (
	MetadataEventID     = "event_id"
	MetadataEventType   = "event_type"
	MetadataContentType = "content_type"
	MetadataStatus      = "status"
)

// Status metadata values.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// ErrNilPublisher indicates New was called without a publisher.
var ErrNilPublisher = errors.New("notify: publisher is nil")

// Notifier publishes outcomes through a watermill publisher.
type Notifier struct {
	publisher message.Publisher
	topic     string
}

// Compile-time interface check.
var _ eventchain.Listener = (*Notifier)(nil)

// Option configures a Notifier.
type Option func(*Notifier)

// WithTopic sets the topic outcomes are published on.
func WithTopic(topic string) Option {
	return func(n *Notifier) {
		if topic != "" {
			n.topic = topic
		}
	}
}

// New creates a notifier publishing through pub.
func New(pub message.Publisher, opts ...Option) (*Notifier, error) {
	if pub == nil {
		return nil, ErrNilPublisher
	}
	n := &Notifier{
		publisher: pub,
		topic:     DefaultTopic,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// FromSettings creates a notifier for the notify section of the engine
// settings. It returns nil when notifications are disabled.
func FromSettings(pub message.Publisher, settings config.NotifySettings) (*Notifier, error) {
	if !settings.Enabled {
		return nil, nil
	}
	return New(pub, WithTopic(settings.Topic))
}

// Topic returns the topic outcomes are published on.
func (n *Notifier) Topic() string {
	return n.topic
}

// OnDispatched publishes o unless the event asked to skip notifications.
func (n *Notifier) OnDispatched(ctx context.Context, o eventchain.Outcome) error {
	if o.Properties.Bool(eventchain.PropertySkipNotification) {
		return nil
	}

	payload, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("notify: marshal outcome %s: %w", o.EventID, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(MetadataEventID, o.EventID)
	msg.Metadata.Set(MetadataEventType, string(o.EventType))
	msg.Metadata.Set(MetadataContentType, o.ContentType)
	if o.Failed() {
		msg.Metadata.Set(MetadataStatus, StatusFailed)
	} else {
		msg.Metadata.Set(MetadataStatus, StatusOK)
	}

	if err := n.publisher.Publish(n.topic, msg); err != nil {
		return fmt.Errorf("notify: publish to topic %s: %w", n.topic, err)
	}
	return nil
}

// Close closes the underlying publisher.
func (n *Notifier) Close() error {
	return n.publisher.Close()
}

// Decode reads an outcome published by a Notifier.
func Decode(msg *message.Message) (eventchain.Outcome, error) {
	var o eventchain.Outcome
	if err := json.Unmarshal(msg.Payload, &o); err != nil {
		return o, fmt.Errorf("notify: decode message %s: %w", msg.UUID, err)
	}
	return o, nil
}

// Handler processes a decoded outcome.
type Handler func(ctx context.Context, o eventchain.Outcome) error

// Consume subscribes to topic and calls handle for every outcome until ctx
// is done or the subscriber closes.
//
// Messages that cannot be decoded are acked and logged. A handler error is
// nacked for redelivery when it is retryable and acked otherwise.
func Consume(ctx context.Context, sub message.Subscriber, topic string, logger *slog.Logger, handle Handler) error {
	msgs, err := sub.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("notify: subscribe to topic %s: %w", topic, err)
	}

	for msg := range msgs {
		o, err := Decode(msg)
		if err == nil {
			err = handle(msg.Context(), o)
			if err != nil && ecerrors.IsRetryable(err) {
				logWarn(logger, "outcome handler failed, redelivering", msg, err)
				msg.Nack()
				continue
			}
		}
		if err != nil {
			logWarn(logger, "outcome dropped", msg, err)
		}
		msg.Ack()
	}

	return ctx.Err()
}

func logWarn(logger *slog.Logger, text string, msg *message.Message, err error) {
	if logger == nil {
		return
	}
	logger.Warn(text,
		slog.String("message_id", msg.UUID),
		slog.String("event_id", msg.Metadata.Get(MetadataEventID)),
		slog.String("error", err.Error()),
	)
}

// NewInProcess creates an in-memory pub/sub for observing outcomes inside
// one process. Messages published while nobody is subscribed are dropped.
// Publishing never waits for subscribers, so outcomes may arrive in a
// different order than the dispatches that produced them.
func NewInProcess(logger *slog.Logger) *gochannel.GoChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 64},
		watermill.NewSlogLogger(logger),
	)
}
