package dispatch

import (
	"context"
	"fmt"

	"github.com/campusfeed/notifications/model"
)

// NotifyEventCreation notifies the recipients that a new event was created.
func (d *Dispatcher) NotifyEventCreation(ctx context.Context, recipients []string, meta EventMeta) {
	eventName := orUntitled(meta.EventName)
	d.fanOut(ctx, recipients, &model.Notification{
		Type:    model.TypeEventCreated,
		Title:   "New Event Created",
		Message: fmt.Sprintf("%s created a new event: %s", meta.OrganizerName, eventName),
		Data: model.NotificationData{
			EventID:       meta.EventID,
			EventName:     eventName,
			OrganizerID:   meta.OrganizerID,
			OrganizerName: meta.OrganizerName,
			StartDate:     meta.StartDate,
			Location:      meta.Location,
		},
	})
}

// NotifyEventUpdate notifies the recipients that an event was updated.
func (d *Dispatcher) NotifyEventUpdate(
	ctx context.Context,
	recipients []string,
	eventID, eventName, organizerName, changeDetails string,
) {
	eventName = orUntitled(eventName)
	d.fanOut(ctx, recipients, &model.Notification{
		Type:    model.TypeEventUpdated,
		Title:   "Event Updated",
		Message: fmt.Sprintf("%s updated \"%s\": %s", organizerName, eventName, changeDetails),
		Data: model.NotificationData{
			EventID:       eventID,
			EventName:     eventName,
			OrganizerName: organizerName,
			ChangeDetails: changeDetails,
		},
	})
}

// NotifyEventCancellation notifies the recipients that an event was cancelled.
func (d *Dispatcher) NotifyEventCancellation(
	ctx context.Context,
	recipients []string,
	eventID, eventName, organizerName string,
) {
	eventName = orUntitled(eventName)
	d.fanOut(ctx, recipients, &model.Notification{
		Type:    model.TypeEventCancelled,
		Title:   "Event Cancelled",
		Message: fmt.Sprintf("\"%s\" has been cancelled by %s", eventName, organizerName),
		Data: model.NotificationData{
			EventID:       eventID,
			EventName:     eventName,
			OrganizerName: organizerName,
		},
	})
}

// NotifyPersonnelAdded notifies the recipients that personnel were added to an
// event.
func (d *Dispatcher) NotifyPersonnelAdded(
	ctx context.Context,
	recipients []string,
	eventID, eventName, addedPersonnel string,
) {
	eventName = orUntitled(eventName)
	d.fanOut(ctx, recipients, &model.Notification{
		Type:    model.TypePersonnelAdded,
		Title:   "Personnel Added to Event",
		Message: fmt.Sprintf("%s has been added to \"%s\"", addedPersonnel, eventName),
		Data: model.NotificationData{
			EventID:       eventID,
			EventName:     eventName,
			ChangeDetails: fmt.Sprintf("Added: %s", addedPersonnel),
		},
	})
}

// NotifyUpcomingEvent notifies the recipients that an event starts in an hour.
// The start date is expressed as milliseconds since the epoch.
func (d *Dispatcher) NotifyUpcomingEvent(
	ctx context.Context,
	recipients []string,
	eventID, eventName, location, startDate string,
) {
	eventName = orUntitled(eventName)
	location = orTBA(location)
	d.fanOut(ctx, recipients, &model.Notification{
		Type:    model.TypeUpcomingEvent,
		Title:   "Event Starting Soon",
		Message: fmt.Sprintf("%s starts in 1 hour at %s", eventName, location),
		Data: model.NotificationData{
			EventID:   eventID,
			EventName: eventName,
			Location:  location,
			StartDate: startDate,
		},
	})
}

// NotifyAdminsPendingOrganizer notifies every admin that a new organizer
// account is awaiting approval. The admin list is resolved here so that the
// trigger only needs to know about the organizer.
func (d *Dispatcher) NotifyAdminsPendingOrganizer(ctx context.Context, organizerID, organizerEmail string) {

	// Resolve the admin recipient list.
	tx, err := d.databaseClient.Begin()
	if err != nil {
		log.Errorf("unable to begin a database transaction: %s", err.Error())
		return
	}
	admins, err := d.databaseClient.ListAdmins(ctx, tx)
	_ = d.databaseClient.Rollback(tx)
	if err != nil {
		log.Errorf("unable to list the admins: %s", err.Error())
		return
	}
	if len(admins) == 0 {
		log.Warn("no admins found to notify about the pending organizer")
		return
	}

	d.fanOut(ctx, admins, &model.Notification{
		Type:    model.TypePendingOrganizer,
		Title:   "New Organizer Pending Approval",
		Message: fmt.Sprintf("A new organizer (%s) is awaiting approval", organizerEmail),
		Data: model.NotificationData{
			OrganizerID:   organizerID,
			OrganizerName: organizerEmail,
		},
	})
}
