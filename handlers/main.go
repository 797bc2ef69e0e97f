// Package handlers translates incoming AMQP messages describing campus event
// lifecycle changes into notification dispatches.
package handlers

import (
	"context"
	"database/sql"

	"github.com/streadway/amqp"

	"github.com/campusfeed/notifications/dispatch"
)

// Message categories, taken from the last segment of the AMQP routing key.
const (
	CategoryCreated          = "created"
	CategoryUpdated          = "updated"
	CategoryCancelled        = "cancelled"
	CategoryPersonnelAdded   = "personnel-added"
	CategoryOrganizerPending = "organizer-pending"
)

// MessageHandler describes the interface used to handle AMQP messages.
type MessageHandler interface {
	HandleMessage(ctx context.Context, category string, delivery amqp.Delivery) error
}

// DatabaseClient describes the database operations used by the message handlers.
type DatabaseClient interface {
	Begin() (*sql.Tx, error)
	Rollback(tx *sql.Tx) error
	ListBroadcastRecipients(ctx context.Context, tx *sql.Tx) ([]string, error)
}

// Dispatcher describes the notification dispatch operations used by the
// message handlers. Dispatches are fire-and-forget; a handler error only ever
// refers to the message itself.
type Dispatcher interface {
	NotifyEventCreation(ctx context.Context, recipients []string, meta dispatch.EventMeta)
	NotifyEventUpdate(ctx context.Context, recipients []string, eventID, eventName, organizerName, changeDetails string)
	NotifyEventCancellation(ctx context.Context, recipients []string, eventID, eventName, organizerName string)
	NotifyPersonnelAdded(ctx context.Context, recipients []string, eventID, eventName, addedPersonnel string)
	NotifyAdminsPendingOrganizer(ctx context.Context, organizerID, organizerEmail string)
}

// InitMessageHandlers returns a map from category name to message handler.
func InitMessageHandlers(databaseClient DatabaseClient, dispatcher Dispatcher) map[string]MessageHandler {
	eventsHandler := NewEvents(databaseClient, dispatcher)
	return map[string]MessageHandler{
		CategoryCreated:          eventsHandler,
		CategoryUpdated:          eventsHandler,
		CategoryCancelled:        eventsHandler,
		CategoryPersonnelAdded:   eventsHandler,
		CategoryOrganizerPending: NewOrganizers(dispatcher),
	}
}
