package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"

	sq "github.com/Masterminds/squirrel"

	"github.com/campusfeed/notifications/model"
)

// FeedChannel is the LISTEN/NOTIFY channel used to signal live feed
// subscriptions. The notification payload is the recipient's username.
const FeedChannel = "notification_feed"

// SaveNotification saves a single notification into the database. The creation
// and expiration timestamps are stamped at write time, and the generated ID is
// scanned back into the notification structure.
func SaveNotification(ctx context.Context, tx *sql.Tx, notification *model.Notification) error {
	wrapMsg := "unable to save notification"

	// Get the notification type ID.
	notificationTypeID, err := GetNotificationTypeID(ctx, tx, notification.Type)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	// Get the user ID.
	userID, err := GetUserID(ctx, tx, notification.User)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	// Marshal the deep-link data document.
	data, err := json.Marshal(notification.Data)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	// Stamp the creation and expiration times.
	now := time.Now()
	notification.TimeCreated = now
	notification.TimeExpires = now.Add(model.NotificationRetention)

	// Build the statement to insert the notification.
	statement, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert("notifications").
		Columns(
			"notification_type_id",
			"user_id",
			"title",
			"message",
			"read",
			"data",
			"time_created",
			"time_expires").
		Values(
			notificationTypeID,
			userID,
			notification.Title,
			notification.Message,
			notification.Read,
			data,
			notification.TimeCreated,
			notification.TimeExpires).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	// Execute the insert statement, scanning the ID into the notification structure.
	row := tx.QueryRowContext(ctx, statement, args...)
	err = row.Scan(&notification.ID)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	return nil
}

// NotifyFeed signals live feed subscriptions that the given user's
// notification list changed. The signal is sent within the transaction, so
// listeners only see it after the change is committed.
func NotifyFeed(ctx context.Context, tx *sql.Tx, user string) error {
	wrapMsg := "unable to signal the notification feed"

	_, err := tx.ExecContext(ctx, "SELECT pg_notify($1, $2)", FeedChannel, user)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	return nil
}

// CountUnreadNotifications counts the number of notifications for the user that haven't been marked as read.
func CountUnreadNotifications(ctx context.Context, tx *sql.Tx, user string) (int64, error) {
	wrapMsg := "unable to count unread notifications"
	var total int64

	// Build the statement to count the unread notifications.
	statement, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select("count(*)").
		From("notifications n").
		Join("users u ON n.user_id = u.id").
		Where(sq.Eq{"u.username": user}).
		Where(sq.Eq{"n.read": false}).
		ToSql()
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	// Execute the statement.
	err = tx.QueryRowContext(ctx, statement, args...).Scan(&total)
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	return total, nil
}

// CountEventReminders counts the reminder notifications that reference the
// given event. A non-zero count means a reminder has already been sent for the
// event, so the existence of the notifications themselves serves as the
// deduplication ledger.
func CountEventReminders(ctx context.Context, tx *sql.Tx, eventID string) (int64, error) {
	wrapMsg := fmt.Sprintf("unable to count reminders for event `%s`", eventID)
	var total int64

	// Build the statement to count the reminders.
	statement, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select("count(*)").
		From("notifications n").
		Join("notification_types t ON n.notification_type_id = t.id").
		Where(sq.Eq{"t.name": []string{model.TypeEventReminder, model.TypeUpcomingEvent}}).
		Where(sq.Expr("n.data ->> 'eventId' = ?", eventID)).
		ToSql()
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	// Execute the statement.
	err = tx.QueryRowContext(ctx, statement, args...).Scan(&total)
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	return total, nil
}

// ListNotifications lists a user's notifications ordered by creation time,
// most recent first. A limit of zero means no limit.
func ListNotifications(ctx context.Context, tx *sql.Tx, user string, limit uint64) ([]model.Notification, error) {
	wrapMsg := fmt.Sprintf("unable to list notifications for `%s`", user)

	// Build the query.
	builder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select(
			"n.id",
			"t.name",
			"u.username",
			"n.title",
			"n.message",
			"n.read",
			"n.data",
			"n.time_created",
			"n.time_expires").
		From("notifications n").
		Join("users u ON n.user_id = u.id").
		Join("notification_types t ON n.notification_type_id = t.id").
		Where(sq.Eq{"u.username": user}).
		OrderBy("n.time_created DESC")
	if limit > 0 {
		builder = builder.Limit(limit)
	}
	statement, args, err := builder.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	// Query the database.
	rows, err := tx.QueryContext(ctx, statement, args...)
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}
	defer rows.Close()

	// Scan the result set.
	notifications := make([]model.Notification, 0)
	for rows.Next() {
		var notification model.Notification
		var data []byte
		err = rows.Scan(
			&notification.ID,
			&notification.Type,
			&notification.User,
			&notification.Title,
			&notification.Message,
			&notification.Read,
			&data,
			&notification.TimeCreated,
			&notification.TimeExpires,
		)
		if err != nil {
			return nil, errors.Wrap(err, wrapMsg)
		}
		if len(data) > 0 {
			err = json.Unmarshal(data, &notification.Data)
			if err != nil {
				return nil, errors.Wrap(err, wrapMsg)
			}
		}
		notifications = append(notifications, notification)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	return notifications, nil
}

// MarkNotificationRead marks a single notification as read.
func MarkNotificationRead(ctx context.Context, tx *sql.Tx, id string) error {
	wrapMsg := fmt.Sprintf("unable to mark notification `%s` as read", id)

	// Build the update statement.
	statement, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Update("notifications").
		Set("read", true).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	// Execute the update statement and verify that the correct number of rows was affected.
	result, err := tx.ExecContext(ctx, statement, args...)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}
	if rowsAffected != 1 {
		return fmt.Errorf("%s: unexpected number of rows affected: %d", wrapMsg, rowsAffected)
	}

	return nil
}

// MarkAllNotificationsRead marks all of a user's unread notifications as read,
// returning the number of notifications that were updated.
func MarkAllNotificationsRead(ctx context.Context, tx *sql.Tx, user string) (int64, error) {
	wrapMsg := fmt.Sprintf("unable to mark notifications for `%s` as read", user)

	// Build the update statement.
	statement, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Update("notifications").
		Set("read", true).
		Where(sq.Eq{"read": false}).
		Where(sq.Expr("user_id = (SELECT id FROM users WHERE username = ?)", user)).
		ToSql()
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	// Execute the update statement.
	result, err := tx.ExecContext(ctx, statement, args...)
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	return rowsAffected, nil
}

// DeleteNotification deletes a single notification.
func DeleteNotification(ctx context.Context, tx *sql.Tx, id string) error {
	wrapMsg := fmt.Sprintf("unable to delete notification `%s`", id)

	// Build the delete statement.
	statement, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Delete("notifications").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	// Execute the delete statement.
	_, err = tx.ExecContext(ctx, statement, args...)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	return nil
}

// DeleteExpiredNotifications deletes every notification whose expiration time
// is at or before asOf, returning the number of notifications removed. The
// deletion happens in a single statement, so the sweep is all-or-nothing.
func DeleteExpiredNotifications(ctx context.Context, tx *sql.Tx, asOf time.Time) (int64, error) {
	wrapMsg := "unable to delete expired notifications"

	// Build the delete statement.
	statement, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Delete("notifications").
		Where(sq.LtOrEq{"time_expires": asOf}).
		ToSql()
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	// Execute the delete statement.
	result, err := tx.ExecContext(ctx, statement, args...)
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	return rowsAffected, nil
}
