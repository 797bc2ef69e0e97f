// Package feed serves live per-user notification feeds. A subscription
// delivers the subscriber's full notification list, most recent first, every
// time it changes; consumers treat each delivery as the authoritative current
// state rather than an incremental patch.
//
// Change detection rides on Postgres LISTEN/NOTIFY: the store adapter signals
// the feed channel with the recipient's username inside the same transaction
// as the change, so subscribers only ever observe committed state.
package feed

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/campusfeed/notifications/db"
	"github.com/campusfeed/notifications/model"
)

var log = logrus.WithField("component", "feed")

// Listener describes the subset of pq.Listener used by the feed.
type Listener interface {
	Listen(channel string) error
	NotificationChannel() <-chan *pq.Notification
}

// DatabaseClient describes the database operations used by the feed.
type DatabaseClient interface {
	Begin() (*sql.Tx, error)
	Commit(tx *sql.Tx) error
	Rollback(tx *sql.Tx) error
	ListNotifications(ctx context.Context, tx *sql.Tx, user string, limit uint64) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, tx *sql.Tx, id string) error
	MarkAllNotificationsRead(ctx context.Context, tx *sql.Tx, user string) (int64, error)
	DeleteNotification(ctx context.Context, tx *sql.Tx, id string) error
	NotifyFeed(ctx context.Context, tx *sql.Tx, user string) error
}

// Feed provides live notification subscriptions and read-state mutations.
// Each Feed owns its listener's notification channel, so one Feed serves one
// subscription at a time.
type Feed struct {
	databaseClient DatabaseClient
	listener       Listener
}

// New returns a new notification feed.
func New(databaseClient DatabaseClient, listener Listener) *Feed {
	return &Feed{
		databaseClient: databaseClient,
		listener:       listener,
	}
}

// NewListener returns a Postgres listener suitable for a feed.
func NewListener(databaseURI string) *pq.Listener {
	return pq.NewListener(databaseURI, 10*time.Second, time.Minute,
		func(event pq.ListenerEventType, err error) {
			if err != nil {
				log.Errorf("feed listener event %d: %s", event, err.Error())
			}
		})
}

// snapshot loads the user's current notification list.
func (f *Feed) snapshot(ctx context.Context, user string, limit uint64) ([]model.Notification, error) {
	tx, err := f.databaseClient.Begin()
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.databaseClient.Rollback(tx) }()
	return f.databaseClient.ListNotifications(ctx, tx, user, limit)
}

// Subscribe returns a channel that carries the user's full notification list:
// once immediately, then again after every change to it. A limit of zero means
// no limit. The channel is closed when the context is cancelled or the
// listener shuts down.
func (f *Feed) Subscribe(ctx context.Context, user string, limit uint64) (<-chan []model.Notification, error) {

	// Open the feed channel. A listener that is already on the channel is fine.
	if err := f.listener.Listen(db.FeedChannel); err != nil && err != pq.ErrChannelAlreadyOpen {
		return nil, err
	}

	// Load the initial snapshot before handing out the channel so that the
	// subscriber always sees current state first.
	initial, err := f.snapshot(ctx, user, limit)
	if err != nil {
		return nil, err
	}

	updates := make(chan []model.Notification, 1)
	go func() {
		defer close(updates)
		updates <- initial

		for {
			select {
			case <-ctx.Done():
				return
			case notification, ok := <-f.listener.NotificationChannel():
				if !ok {
					return
				}

				// A nil notification means the connection was re-established;
				// anything could have happened in the meantime, so resync.
				if notification != nil && notification.Extra != user {
					continue
				}

				snapshot, err := f.snapshot(ctx, user, limit)
				if err != nil {
					log.Errorf("unable to refresh the feed for `%s`: %s", user, err.Error())
					continue
				}
				select {
				case updates <- snapshot:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return updates, nil
}

// MarkRead marks a single notification as read and refreshes the user's feed.
func (f *Feed) MarkRead(ctx context.Context, user, id string) error {
	tx, err := f.databaseClient.Begin()
	if err != nil {
		return err
	}
	if err = f.databaseClient.MarkNotificationRead(ctx, tx, id); err != nil {
		_ = f.databaseClient.Rollback(tx)
		return err
	}
	if err = f.databaseClient.NotifyFeed(ctx, tx, user); err != nil {
		_ = f.databaseClient.Rollback(tx)
		return err
	}
	return f.databaseClient.Commit(tx)
}

// MarkAllAsRead marks every unread notification for the user as read,
// returning the number of notifications that were updated.
func (f *Feed) MarkAllAsRead(ctx context.Context, user string) (int64, error) {
	tx, err := f.databaseClient.Begin()
	if err != nil {
		return 0, err
	}
	count, err := f.databaseClient.MarkAllNotificationsRead(ctx, tx, user)
	if err != nil {
		_ = f.databaseClient.Rollback(tx)
		return 0, err
	}
	if err = f.databaseClient.NotifyFeed(ctx, tx, user); err != nil {
		_ = f.databaseClient.Rollback(tx)
		return 0, err
	}
	return count, f.databaseClient.Commit(tx)
}

// Delete removes a single notification and refreshes the user's feed.
func (f *Feed) Delete(ctx context.Context, user, id string) error {
	tx, err := f.databaseClient.Begin()
	if err != nil {
		return err
	}
	if err = f.databaseClient.DeleteNotification(ctx, tx, id); err != nil {
		_ = f.databaseClient.Rollback(tx)
		return err
	}
	if err = f.databaseClient.NotifyFeed(ctx, tx, user); err != nil {
		_ = f.databaseClient.Rollback(tx)
		return err
	}
	return f.databaseClient.Commit(tx)
}
