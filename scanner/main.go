// Package scanner periodically checks for events that are about to start and
// dispatches "starts soon" reminders to the users who saved them, plus the
// event creator. The expiry sweep for old notifications is co-scheduled with
// the scan.
//
// Whether an event has already been reminded is determined by querying the
// notification table itself; there is no separate ledger. Two service
// instances scanning at the same moment can therefore both pass the check and
// double-send. That window is accepted: a duplicate reminder is a nuisance,
// not a correctness violation, and the single-flight guard removes the
// overlapping-scan case within one process.
package scanner

import (
	"context"
	"database/sql"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/campusfeed/notifications/common"
	"github.com/campusfeed/notifications/model"
)

var log = logrus.WithField("component", "scanner")

// Default scan timing. The reminder window is the acceptance band just past
// the lookahead boundary; keeping it the same width as a scan interval divisor
// of the lookahead prevents the same event from matching on consecutive scans.
const (
	DefaultInterval  = 5 * time.Minute
	DefaultLookahead = time.Hour
	DefaultWindow    = time.Minute
)

// DatabaseClient describes the database operations used by the scanner.
type DatabaseClient interface {
	Begin() (*sql.Tx, error)
	Commit(tx *sql.Tx) error
	Rollback(tx *sql.Tx) error
	UpcomingEvents(ctx context.Context, tx *sql.Tx, from, to time.Time) ([]model.Event, error)
	CountEventReminders(ctx context.Context, tx *sql.Tx, eventID string) (int64, error)
	DeleteExpiredNotifications(ctx context.Context, tx *sql.Tx, asOf time.Time) (int64, error)
}

// Dispatcher describes the notification dispatch operation used by the scanner.
type Dispatcher interface {
	NotifyUpcomingEvent(ctx context.Context, recipients []string, eventID, eventName, location, startDate string)
}

// Settings configures the scan timing. Zero values fall back to the defaults.
type Settings struct {
	Interval  time.Duration
	Lookahead time.Duration
	Window    time.Duration
}

// Scanner runs the periodic upcoming-event reminder scan.
type Scanner struct {
	databaseClient DatabaseClient
	dispatcher     Dispatcher
	interval       time.Duration
	lookahead      time.Duration
	window         time.Duration
	now            func() time.Time
	reminded       *remindedCache
	scanning       int32
	ticker         *time.Ticker
	done           chan struct{}
}

// New returns a new reminder scanner.
func New(databaseClient DatabaseClient, dispatcher Dispatcher, settings Settings) *Scanner {
	if settings.Interval <= 0 {
		settings.Interval = DefaultInterval
	}
	if settings.Lookahead <= 0 {
		settings.Lookahead = DefaultLookahead
	}
	if settings.Window <= 0 {
		settings.Window = DefaultWindow
	}
	return &Scanner{
		databaseClient: databaseClient,
		dispatcher:     dispatcher,
		interval:       settings.Interval,
		lookahead:      settings.Lookahead,
		window:         settings.Window,
		now:            time.Now,
		reminded:       newRemindedCache(),
	}
}

// Start runs one scan immediately, then one per interval until Stop is called.
func (s *Scanner) Start() {
	s.ticker = time.NewTicker(s.interval)
	s.done = make(chan struct{})

	log.Infof("starting the reminder scanner (interval %s, lookahead %s)", s.interval, s.lookahead)
	go func() {
		ctx := context.Background()
		s.RunScan(ctx)
		for {
			select {
			case <-s.ticker.C:
				s.RunScan(ctx)
			case <-s.done:
				return
			}
		}
	}()
}

// Stop stops the periodic scan. A scan that is already in progress runs to
// completion.
func (s *Scanner) Stop() {
	if s.ticker == nil {
		return
	}
	log.Info("stopping the reminder scanner")
	s.ticker.Stop()
	close(s.done)
}

// RunScan executes a single scan cycle followed by the expiry sweep. If a
// previous cycle is still running, the new one is skipped rather than run
// concurrently.
func (s *Scanner) RunScan(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&s.scanning, 0, 1) {
		log.Warn("previous scan cycle still in progress; skipping this cycle")
		return
	}
	defer atomic.StoreInt32(&s.scanning, 0)

	now := s.now()
	from := now.Add(s.lookahead)
	to := from.Add(s.window)

	// Find the events whose start date falls within the acceptance band.
	tx, err := s.databaseClient.Begin()
	if err != nil {
		log.Errorf("unable to begin a database transaction: %s", err.Error())
		return
	}
	events, err := s.databaseClient.UpcomingEvents(ctx, tx, from, to)
	_ = s.databaseClient.Rollback(tx)
	if err != nil {
		log.Errorf("unable to list upcoming events: %s", err.Error())
		return
	}

	for _, event := range events {
		s.remindEvent(ctx, event)
	}

	s.sweepExpired(ctx, now)
	s.reminded.prune()
}

// remindEvent dispatches reminders for a single event unless one was already
// sent. The session-local cache is checked first to avoid needless ledger
// queries; the notification table remains authoritative.
func (s *Scanner) remindEvent(ctx context.Context, event model.Event) {
	if s.reminded.contains(event.ID) {
		return
	}

	// Consult the ledger.
	tx, err := s.databaseClient.Begin()
	if err != nil {
		log.Errorf("unable to begin a database transaction: %s", err.Error())
		return
	}
	count, err := s.databaseClient.CountEventReminders(ctx, tx, event.ID)
	_ = s.databaseClient.Rollback(tx)
	if err != nil {
		log.Errorf("unable to check for existing reminders for event `%s`: %s", event.ID, err.Error())
		return
	}
	if count > 0 {
		s.reminded.add(event.ID)
		return
	}

	startDate := common.FormatTimestamp(event.StartDate)

	// Remind the users who saved the event, then the creator separately.
	if len(event.Saves) > 0 {
		s.dispatcher.NotifyUpcomingEvent(ctx, event.Saves, event.ID, event.Name, event.Location, startDate)
	}
	if event.CreatedBy != "" {
		s.dispatcher.NotifyUpcomingEvent(
			ctx, []string{event.CreatedBy}, event.ID, event.Name, event.Location, startDate,
		)
	}

	if len(event.Saves) > 0 || event.CreatedBy != "" {
		log.Infof("sent 1-hour reminders for event `%s`", event.ID)
		s.reminded.add(event.ID)
	}
}

// sweepExpired removes every notification that has passed its expiration time.
func (s *Scanner) sweepExpired(ctx context.Context, asOf time.Time) {
	tx, err := s.databaseClient.Begin()
	if err != nil {
		log.Errorf("unable to begin a database transaction: %s", err.Error())
		return
	}
	count, err := s.databaseClient.DeleteExpiredNotifications(ctx, tx, asOf)
	if err != nil {
		log.Errorf("unable to delete expired notifications: %s", err.Error())
		_ = s.databaseClient.Rollback(tx)
		return
	}
	if err = s.databaseClient.Commit(tx); err != nil {
		log.Errorf("unable to commit the expiry sweep: %s", err.Error())
		_ = s.databaseClient.Rollback(tx)
		return
	}
	if count > 0 {
		log.Infof("removed %d expired notifications", count)
	}
}
