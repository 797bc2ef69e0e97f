package handlers

import (
	"context"
	"encoding/json"

	"github.com/streadway/amqp"

	"github.com/campusfeed/notifications/common"
)

// OrganizerRequest represents a deserialized message announcing that a new
// organizer account is awaiting approval.
type OrganizerRequest struct {
	OrganizerID    string `json:"organizer_id"`
	OrganizerEmail string `json:"organizer_email"`
}

// Organizers is a message handler for pending-organizer messages. The
// dispatcher resolves the admin recipient set itself.
type Organizers struct {
	dispatcher Dispatcher
}

// NewOrganizers returns a new pending-organizer message handler.
func NewOrganizers(dispatcher Dispatcher) *Organizers {
	return &Organizers{dispatcher: dispatcher}
}

// HandleMessage handles a single AMQP delivery for a pending-organizer message.
func (h *Organizers) HandleMessage(ctx context.Context, category string, delivery amqp.Delivery) error {

	// Parse the message body.
	var request OrganizerRequest
	err := json.Unmarshal(delivery.Body, &request)
	if err != nil {
		return NewUnrecoverableError("unable to parse message body: %s", err.Error())
	}

	// Validate the organizer's email address, which appears verbatim in the
	// notification message.
	if err = common.ValidateEmailAddress(request.OrganizerEmail); err != nil {
		return NewUnrecoverableError("invalid organizer email address: %s", err.Error())
	}

	h.dispatcher.NotifyAdminsPendingOrganizer(ctx, request.OrganizerID, request.OrganizerEmail)
	return nil
}
