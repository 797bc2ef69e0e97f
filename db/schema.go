package db

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

// schema defines the tables used by the notification service. The events and
// users tables are shared with the campus event-feed application; there is
// deliberately no foreign key from notifications to events, so notifications
// outlive the events they reference.
const schema = `
CREATE EXTENSION IF NOT EXISTS "uuid-ossp";

CREATE TABLE IF NOT EXISTS users (
    id uuid NOT NULL DEFAULT uuid_generate_v4() PRIMARY KEY,
    username text NOT NULL UNIQUE,
    role text NOT NULL DEFAULT 'student'
);

CREATE TABLE IF NOT EXISTS notification_types (
    id uuid NOT NULL DEFAULT uuid_generate_v4() PRIMARY KEY,
    name text NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS events (
    id uuid NOT NULL DEFAULT uuid_generate_v4() PRIMARY KEY,
    name text NOT NULL DEFAULT '',
    start_date timestamp with time zone NOT NULL,
    end_date timestamp with time zone,
    location text NOT NULL DEFAULT '',
    department text NOT NULL DEFAULT '',
    created_by text NOT NULL DEFAULT '',
    organizer_name text NOT NULL DEFAULT '',
    organizer_email text NOT NULL DEFAULT '',
    saves text[] NOT NULL DEFAULT '{}',
    hearts text[] NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS notifications (
    id uuid NOT NULL DEFAULT uuid_generate_v4() PRIMARY KEY,
    notification_type_id uuid NOT NULL REFERENCES notification_types(id),
    user_id uuid NOT NULL REFERENCES users(id),
    title text NOT NULL DEFAULT '',
    message text NOT NULL DEFAULT '',
    read boolean NOT NULL DEFAULT false,
    data jsonb NOT NULL DEFAULT '{}'::jsonb,
    time_created timestamp with time zone NOT NULL DEFAULT now(),
    time_expires timestamp with time zone NOT NULL
);

CREATE INDEX IF NOT EXISTS notifications_user_id_idx ON notifications (user_id);
CREATE INDEX IF NOT EXISTS notifications_event_id_idx ON notifications ((data ->> 'eventId'));
CREATE INDEX IF NOT EXISTS notifications_time_expires_idx ON notifications (time_expires);
CREATE INDEX IF NOT EXISTS events_start_date_idx ON events (start_date);
`

// InitSchema applies the database schema. Every statement is idempotent, so
// this can safely run on every startup.
func InitSchema(ctx context.Context, db *sql.DB) error {
	wrapMsg := "unable to initialize the database schema"

	_, err := db.ExecContext(ctx, schema)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	return nil
}
