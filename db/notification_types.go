package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pkg/errors"

	sq "github.com/Masterminds/squirrel"
)

// RegisterNotificationTypes ensures that every notification type used by the
// service exists in the database.
func RegisterNotificationTypes(ctx context.Context, db *sql.DB, notificationTypes []string) error {
	wrapMsg := "unable to register the notification types"

	tx, err := db.Begin()
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}
	defer func() { _ = tx.Rollback() }()

	for _, notificationType := range notificationTypes {
		if err = RegisterNotificationType(ctx, tx, notificationType); err != nil {
			return errors.Wrap(err, wrapMsg)
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, wrapMsg)
	}
	return nil
}

// GetNotificationTypeID obtains the ID of the notification type with the given name. An error
// is returned if the database can't be queried or the notification type doesn't exist.
func GetNotificationTypeID(ctx context.Context, tx *sql.Tx, notificationType string) (string, error) {
	wrapMsg := fmt.Sprintf("unable to get the notification type ID for `%s`", notificationType)

	// Build the SQL query and arguments.
	query, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select("id::text").
		From("notification_types").
		Where(sq.Eq{"name": notificationType}).
		ToSql()
	if err != nil {
		return "", errors.Wrap(err, wrapMsg)
	}

	// Query the database.
	var id string
	row := tx.QueryRowContext(ctx, query, args...)
	err = row.Scan(&id)
	if err != nil {
		return "", errors.Wrap(err, wrapMsg)
	}

	return id, nil
}

// RegisterNotificationType ensures that a notification type with the given name
// exists. Registration is idempotent.
func RegisterNotificationType(ctx context.Context, tx *sql.Tx, notificationType string) error {
	wrapMsg := fmt.Sprintf("unable to register the notification type `%s`", notificationType)

	// Build the insert statement.
	statement, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert("notification_types").
		Columns("name").
		Values(notificationType).
		Suffix("ON CONFLICT (name) DO NOTHING").
		ToSql()
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	// Execute the statement.
	_, err = tx.ExecContext(ctx, statement, args...)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	return nil
}
