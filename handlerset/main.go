// Package handlerset binds AMQP routing keys to message handlers and runs the
// consumer loop.
package handlerset

import (
	"context"
	"strings"

	"github.com/cyverse-de/messaging/v9"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/campusfeed/notifications/common"
	"github.com/campusfeed/notifications/handlers"
)

var log = logrus.WithField("component", "handlerset")

// QueueName is the name of the queue that this service consumes from.
const QueueName = "campus_notifications"

// RoutingKeyWildcard matches every event lifecycle message published by the
// campus event-feed application. The final segment of the routing key names
// the message category.
const RoutingKeyWildcard = "events.campus.#"

// prefetchCount is the number of unacknowledged deliveries the broker may send
// before waiting.
const prefetchCount = 100

// HandlerSet represents a set of AMQP message handlers.
type HandlerSet struct {
	amqpClient   *messaging.Client
	amqpSettings *common.AMQPSettings
	handlerFor   map[string]handlers.MessageHandler
}

// New creates a new handler set on top of an existing messaging client.
func New(
	amqpClient *messaging.Client,
	amqpSettings *common.AMQPSettings,
	handlerFor map[string]handlers.MessageHandler,
) *HandlerSet {
	return &HandlerSet{
		amqpClient:   amqpClient,
		amqpSettings: amqpSettings,
		handlerFor:   handlerFor,
	}
}

// messageCategory extracts the message category from a routing key.
func messageCategory(routingKey string) string {
	components := strings.Split(routingKey, ".")
	return components[len(components)-1]
}

// handleDelivery routes a single delivery to the handler registered for its
// category. Failed deliveries are logged and dropped; nothing is requeued or
// retried automatically.
func (hs *HandlerSet) handleDelivery(ctx context.Context, delivery amqp.Delivery) {
	category := messageCategory(delivery.RoutingKey)

	handler, ok := hs.handlerFor[category]
	if !ok {
		log.Warnf("no handler registered for message category `%s`; dropping the message", category)
		return
	}

	err := handler.HandleMessage(ctx, category, delivery)
	switch err.(type) {
	case nil:
	case handlers.UnrecoverableError:
		log.Errorf("unable to handle `%s` message: %s", category, err.Error())
	default:
		log.Errorf("transient failure while handling `%s` message; the message is not retried: %s",
			category, err.Error())
	}
}

// Listen registers the consumer and processes deliveries until the underlying
// client is closed.
func (hs *HandlerSet) Listen() {
	hs.amqpClient.AddConsumer(
		hs.amqpSettings.ExchangeName,
		hs.amqpSettings.ExchangeType,
		QueueName,
		RoutingKeyWildcard,
		hs.handleDelivery,
		prefetchCount,
	)
	hs.amqpClient.Listen()
}

// Close closes a message handler set.
func (hs *HandlerSet) Close() {
	hs.amqpClient.Close()
}
