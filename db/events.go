package db

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/campusfeed/notifications/model"
)

// UpcomingEvents lists the events whose start date falls within `[from, to)`.
// The reminder scanner uses this with a narrow window just short of the one
// hour mark so that each scan only picks up events near the reminder boundary.
func UpcomingEvents(ctx context.Context, tx *sql.Tx, from, to time.Time) ([]model.Event, error) {
	wrapMsg := "unable to list upcoming events"

	// Build the query.
	statement, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select(
			"id",
			"name",
			"start_date",
			"end_date",
			"location",
			"department",
			"created_by",
			"organizer_name",
			"organizer_email",
			"saves",
			"hearts").
		From("events").
		Where(sq.GtOrEq{"start_date": from}).
		Where(sq.Lt{"start_date": to}).
		OrderBy("start_date").
		ToSql()
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
	events := make([]model.Event, 0)
	for rows.Next() {
		var event model.Event
		var endDate sql.NullTime
		err = rows.Scan(
			&event.ID,
			&event.Name,
			&event.StartDate,
			&endDate,
			&event.Location,
			&event.Department,
			&event.CreatedBy,
			&event.OrganizerName,
			&event.OrganizerEmail,
			pq.Array(&event.Saves),
			pq.Array(&event.Hearts),
		)
		if err != nil {
			return nil, errors.Wrap(err, wrapMsg)
		}
		if endDate.Valid {
			event.EndDate = endDate.Time
		}
		events = append(events, event)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	return events, nil
}
