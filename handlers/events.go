package handlers

import (
	"context"
	"encoding/json"

	"github.com/streadway/amqp"

	"github.com/campusfeed/notifications/common"
	"github.com/campusfeed/notifications/dispatch"
)

// EventRequest represents a deserialized event lifecycle message published by
// the campus event-feed application.
type EventRequest struct {
	EventID        string `json:"event_id"`
	EventName      string `json:"event_name"`
	OrganizerID    string `json:"organizer_id"`
	OrganizerName  string `json:"organizer_name"`
	Location       string `json:"location"`
	StartDate      string `json:"start_date"`
	ChangeDetails  string `json:"change_details"`
	AddedPersonnel string `json:"added_personnel"`
}

// Events is a message handler for event lifecycle messages. Every category it
// handles fans out to the full broadcast recipient set: all students plus all
// admins.
type Events struct {
	databaseClient DatabaseClient
	dispatcher     Dispatcher
}

// NewEvents returns a new event lifecycle message handler.
func NewEvents(databaseClient DatabaseClient, dispatcher Dispatcher) *Events {
	return &Events{
		databaseClient: databaseClient,
		dispatcher:     dispatcher,
	}
}

// broadcastRecipients resolves the recipient set for a broadcast notification.
func (h *Events) broadcastRecipients(ctx context.Context) ([]string, error) {
	tx, err := h.databaseClient.Begin()
	if err != nil {
		return nil, NewRecoverableError("unable to begin a database transaction: %s", err.Error())
	}
	defer func() { _ = h.databaseClient.Rollback(tx) }()

	recipients, err := h.databaseClient.ListBroadcastRecipients(ctx, tx)
	if err != nil {
		return nil, NewRecoverableError("unable to list broadcast recipients: %s", err.Error())
	}

	return recipients, nil
}

// HandleMessage handles a single AMQP delivery for an event lifecycle message.
func (h *Events) HandleMessage(ctx context.Context, category string, delivery amqp.Delivery) error {

	// Parse the message body.
	var request EventRequest
	err := json.Unmarshal(delivery.Body, &request)
	if err != nil {
		return NewUnrecoverableError("unable to parse message body: %s", err.Error())
	}

	// A notification that can't be linked back to an event is useless.
	if request.EventID == "" {
		return NewUnrecoverableError("no event ID found in the message body")
	}

	// Normalize the start date.
	startDate, err := common.FixTimestamp(request.StartDate)
	if err != nil {
		return NewUnrecoverableError("unable to parse the start date: %s", err.Error())
	}

	// Resolve the recipient set.
	recipients, err := h.broadcastRecipients(ctx)
	if err != nil {
		return err
	}

	// Dispatch the notification for the category.
	switch category {
	case CategoryCreated:
		h.dispatcher.NotifyEventCreation(ctx, recipients, dispatch.EventMeta{
			EventID:       request.EventID,
			EventName:     request.EventName,
			OrganizerID:   request.OrganizerID,
			OrganizerName: request.OrganizerName,
			Location:      request.Location,
			StartDate:     startDate,
		})
	case CategoryUpdated:
		h.dispatcher.NotifyEventUpdate(
			ctx, recipients, request.EventID, request.EventName, request.OrganizerName, request.ChangeDetails,
		)
	case CategoryCancelled:
		h.dispatcher.NotifyEventCancellation(
			ctx, recipients, request.EventID, request.EventName, request.OrganizerName,
		)
	case CategoryPersonnelAdded:
		h.dispatcher.NotifyPersonnelAdded(
			ctx, recipients, request.EventID, request.EventName, request.AddedPersonnel,
		)
	default:
		return NewUnrecoverableError("unrecognized message category: %s", category)
	}

	return nil
}
