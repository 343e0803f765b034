package audit

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/serroba/securegate/internal/messaging"
	"go.uber.org/zap"
)

// NewHandler adapts a Store to a messaging handler.
func NewHandler(store Store) messaging.Handler[LimitExceededEvent] {
	return func(ctx context.Context, event *LimitExceededEvent) error {
		return store.SaveLimitExceeded(ctx, event)
	}
}

// NewConsumer subscribes store to the rejection topic.
func NewConsumer(
	subscriber message.Subscriber,
	store Store,
	logger *zap.Logger,
) *messaging.Consumer[LimitExceededEvent] {
	return messaging.NewConsumer(subscriber, TopicLimitExceeded, NewHandler(store), logger)
}

// NewPublishFunc returns a typed publisher for the rejection topic.
func NewPublishFunc(publisher message.Publisher) messaging.Publish[LimitExceededEvent] {
	return messaging.NewPublishFunc[LimitExceededEvent](publisher, TopicLimitExceeded)
}
