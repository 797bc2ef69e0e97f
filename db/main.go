package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/cyverse-de/dbutil"
	"github.com/pkg/errors"

	"github.com/campusfeed/notifications/model"
)

// InitDatabase establishes a database connection and verifies that the database can be reached.
func InitDatabase(driverName, databaseURI string) (*sql.DB, error) {
	wrapMsg := "unable to initialize the database"

	// Create a database connector to establish the connection.
	connector, err := dbutil.NewDefaultConnector("1m")
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	// Establish the database connection.
	db, err := connector.Connect(driverName, databaseURI)
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	return db, nil
}

// Client provides transaction management plus the database operations used by
// the dispatcher, the message handlers, the reminder scanner, and the feed.
// Components depend on narrow interfaces satisfied by this type so that they
// can be tested with mock clients.
type Client struct {
	db *sql.DB
}

// NewClient returns a database client backed by the given connection.
func NewClient(db *sql.DB) *Client {
	return &Client{db: db}
}

// Begin starts a new database transaction.
func (c *Client) Begin() (*sql.Tx, error) {
	return c.db.Begin()
}

// Commit commits a database transaction.
func (c *Client) Commit(tx *sql.Tx) error {
	return tx.Commit()
}

// Rollback rolls back a database transaction.
func (c *Client) Rollback(tx *sql.Tx) error {
	return tx.Rollback()
}

// SaveNotification saves a single notification.
func (c *Client) SaveNotification(ctx context.Context, tx *sql.Tx, notification *model.Notification) error {
	return SaveNotification(ctx, tx, notification)
}

// NotifyFeed signals live feed subscriptions for the given user.
func (c *Client) NotifyFeed(ctx context.Context, tx *sql.Tx, user string) error {
	return NotifyFeed(ctx, tx, user)
}

// CountUnreadNotifications counts the notifications for the user that haven't been marked as read.
func (c *Client) CountUnreadNotifications(ctx context.Context, tx *sql.Tx, user string) (int64, error) {
	return CountUnreadNotifications(ctx, tx, user)
}

// CountEventReminders counts the reminder notifications that reference the given event.
func (c *Client) CountEventReminders(ctx context.Context, tx *sql.Tx, eventID string) (int64, error) {
	return CountEventReminders(ctx, tx, eventID)
}

// ListNotifications lists a user's notifications, most recent first.
func (c *Client) ListNotifications(ctx context.Context, tx *sql.Tx, user string, limit uint64) ([]model.Notification, error) {
	return ListNotifications(ctx, tx, user, limit)
}

// MarkNotificationRead marks a single notification as read.
func (c *Client) MarkNotificationRead(ctx context.Context, tx *sql.Tx, id string) error {
	return MarkNotificationRead(ctx, tx, id)
}

// MarkAllNotificationsRead marks all of a user's unread notifications as read.
func (c *Client) MarkAllNotificationsRead(ctx context.Context, tx *sql.Tx, user string) (int64, error) {
	return MarkAllNotificationsRead(ctx, tx, user)
}

// DeleteNotification deletes a single notification.
func (c *Client) DeleteNotification(ctx context.Context, tx *sql.Tx, id string) error {
	return DeleteNotification(ctx, tx, id)
}

// DeleteExpiredNotifications deletes every notification that expired at or before asOf.
func (c *Client) DeleteExpiredNotifications(ctx context.Context, tx *sql.Tx, asOf time.Time) (int64, error) {
	return DeleteExpiredNotifications(ctx, tx, asOf)
}

// ListBroadcastRecipients lists the users that receive broadcast notifications.
func (c *Client) ListBroadcastRecipients(ctx context.Context, tx *sql.Tx) ([]string, error) {
	return ListBroadcastRecipients(ctx, tx)
}

// ListAdmins lists the administrative users.
func (c *Client) ListAdmins(ctx context.Context, tx *sql.Tx) ([]string, error) {
	return ListAdmins(ctx, tx)
}

// UpcomingEvents lists the events starting within the given time window.
func (c *Client) UpcomingEvents(ctx context.Context, tx *sql.Tx, from, to time.Time) ([]model.Event, error) {
	return UpcomingEvents(ctx, tx, from, to)
}
