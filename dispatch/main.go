// Package dispatch creates notifications for campus event lifecycle changes.
//
// Every operation is fire-and-forget: the triggering domain mutation has
// already happened by the time a dispatcher method runs, so failures are
// logged and swallowed instead of being returned to the caller. The fan-out
// for a single operation happens inside one database transaction, so either
// every recipient gets a notification or none of them do.
package dispatch

import (
	"context"
	"database/sql"

	"github.com/cyverse-de/messaging/v9"
	"github.com/sirupsen/logrus"

	"github.com/campusfeed/notifications/common"
	"github.com/campusfeed/notifications/model"
)

var log = logrus.WithField("component", "dispatch")

// DatabaseClient describes the database operations used by the dispatcher.
type DatabaseClient interface {
	Begin() (*sql.Tx, error)
	Commit(tx *sql.Tx) error
	Rollback(tx *sql.Tx) error
	SaveNotification(ctx context.Context, tx *sql.Tx, notification *model.Notification) error
	NotifyFeed(ctx context.Context, tx *sql.Tx, user string) error
	CountUnreadNotifications(ctx context.Context, tx *sql.Tx, user string) (int64, error)
	ListAdmins(ctx context.Context, tx *sql.Tx) ([]string, error)
}

// MessagingClient describes the messaging operations used by the dispatcher.
type MessagingClient interface {
	PublishNotificationMessage(notification *messaging.WrappedNotificationMessage) error
}

// Dispatcher creates and fans out notifications for domain events.
type Dispatcher struct {
	databaseClient  DatabaseClient
	messagingClient MessagingClient
}

// New returns a new notification dispatcher.
func New(databaseClient DatabaseClient, messagingClient MessagingClient) *Dispatcher {
	return &Dispatcher{
		databaseClient:  databaseClient,
		messagingClient: messagingClient,
	}
}

// EventMeta describes the event that a creation notification refers to. The
// start date is expressed as milliseconds since the epoch.
type EventMeta struct {
	EventID       string
	EventName     string
	OrganizerID   string
	OrganizerName string
	Location      string
	StartDate     string
}

// orUntitled substitutes a placeholder for a missing event name.
func orUntitled(eventName string) string {
	if eventName == "" {
		return "Untitled Event"
	}
	return eventName
}

// orTBA substitutes a placeholder for a missing location.
func orTBA(location string) string {
	if location == "" {
		return "TBA"
	}
	return location
}

// fanOut stores a copy of the notification template for every recipient in a
// single transaction, then publishes one notification message per recipient.
// Publishing happens after the commit; a publish failure doesn't undo the
// stored notifications.
func (d *Dispatcher) fanOut(ctx context.Context, recipients []string, template *model.Notification) {
	if len(recipients) == 0 {
		return
	}

	// Begin a database transaction.
	tx, err := d.databaseClient.Begin()
	if err != nil {
		log.Errorf("unable to begin a database transaction: %s", err.Error())
		return
	}

	// Store one notification per recipient. The entire batch is abandoned if
	// any single save fails.
	saved := make([]model.Notification, 0, len(recipients))
	totals := make(map[string]int64, len(recipients))
	for _, recipient := range recipients {
		notification := *template
		notification.User = recipient
		notification.Read = false
		if err = d.databaseClient.SaveNotification(ctx, tx, &notification); err != nil {
			log.Errorf("unable to save the notification for `%s`: %s", recipient, err.Error())
			_ = d.databaseClient.Rollback(tx)
			return
		}
		saved = append(saved, notification)
	}

	// Record the unread totals and signal the live feeds while the
	// transaction is still open, so the signals are only delivered on commit.
	for _, recipient := range recipients {
		if _, ok := totals[recipient]; ok {
			continue
		}
		total, err := d.databaseClient.CountUnreadNotifications(ctx, tx, recipient)
		if err != nil {
			log.Errorf("unable to count unread notifications for `%s`: %s", recipient, err.Error())
			_ = d.databaseClient.Rollback(tx)
			return
		}
		totals[recipient] = total
		if err = d.databaseClient.NotifyFeed(ctx, tx, recipient); err != nil {
			log.Errorf("unable to signal the feed for `%s`: %s", recipient, err.Error())
			_ = d.databaseClient.Rollback(tx)
			return
		}
	}

	// Commit the transaction.
	if err = d.databaseClient.Commit(tx); err != nil {
		log.Errorf("unable to commit the database transaction: %s", err.Error())
		_ = d.databaseClient.Rollback(tx)
		return
	}

	// Publish the stored notifications.
	for i := range saved {
		if err = d.publishNotification(&saved[i], totals[saved[i].User]); err != nil {
			log.Errorf("unable to publish the notification for `%s`: %s", saved[i].User, err.Error())
		}
	}
}

// publishNotification publishes a single stored notification to the AMQP
// exchange along with the recipient's unread total.
func (d *Dispatcher) publishNotification(notification *model.Notification, total int64) error {
	message := &messaging.NotificationMessage{
		Type:    notification.Type,
		User:    notification.User,
		Subject: notification.Title,
		Seen:    notification.Read,
		Message: map[string]interface{}{
			"id":        notification.ID,
			"type":      notification.Type,
			"user":      notification.User,
			"text":      notification.Message,
			"timestamp": common.FormatTimestamp(notification.TimeCreated),
			"expires":   common.FormatTimestamp(notification.TimeExpires),
		},
		Payload: notification.Data,
	}
	return d.messagingClient.PublishNotificationMessage(&messaging.WrappedNotificationMessage{
		Total:   total,
		Message: message,
	})
}
