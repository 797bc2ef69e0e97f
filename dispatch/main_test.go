package dispatch

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/cyverse-de/messaging/v9"
	"github.com/stretchr/testify/assert"

	"github.com/campusfeed/notifications/model"
)

// MockMessagingClient provides a mock implementation of the functions we need
// from messaging.Client.
type MockMessagingClient struct {
	PublishedMessages []*messaging.WrappedNotificationMessage
}

// PublishNotificationMessage simply stores a copy of the notification message for later inspection.
func (c *MockMessagingClient) PublishNotificationMessage(msg *messaging.WrappedNotificationMessage) error {
	c.PublishedMessages = append(c.PublishedMessages, msg)
	return nil
}

// NewMockMessagingClient creates a new mock messaging client for testing.
func NewMockMessagingClient() *MockMessagingClient {
	return &MockMessagingClient{}
}

// MockDatabaseClient provides mock implementations of the functions that the
// dispatcher calls to interact with the database.
type MockDatabaseClient struct {
	BeginCount         int
	CommitCalled       bool
	RollbackCalled     bool
	SavedNotifications []model.Notification
	NotifiedFeeds      []string
	Admins             []string
	FailSaveAfter      int
}

// NewMockDatabaseClient creates a new mock database client for testing.
func NewMockDatabaseClient() *MockDatabaseClient {
	return &MockDatabaseClient{FailSaveAfter: -1}
}

// Begin records the fact that it was called.
func (c *MockDatabaseClient) Begin() (*sql.Tx, error) {
	c.BeginCount++
	return nil, nil
}

// Commit records the fact that it was called.
func (c *MockDatabaseClient) Commit(*sql.Tx) error {
	c.CommitCalled = true
	return nil
}

// Rollback records the fact that it was called.
func (c *MockDatabaseClient) Rollback(*sql.Tx) error {
	c.RollbackCalled = true
	return nil
}

// SaveNotification records a copy of the notification that was saved, stamping
// the fields that the real database client would stamp.
func (c *MockDatabaseClient) SaveNotification(_ context.Context, _ *sql.Tx, notification *model.Notification) error {
	if c.FailSaveAfter >= 0 && len(c.SavedNotifications) >= c.FailSaveAfter {
		return fmt.Errorf("simulated save failure")
	}
	notification.ID = fmt.Sprintf("n%d", len(c.SavedNotifications)+1)
	notification.TimeCreated = time.Unix(1594336370, 706917000)
	notification.TimeExpires = notification.TimeCreated.Add(model.NotificationRetention)
	c.SavedNotifications = append(c.SavedNotifications, *notification)
	return nil
}

// NotifyFeed records the user whose feed was signaled.
func (c *MockDatabaseClient) NotifyFeed(_ context.Context, _ *sql.Tx, user string) error {
	c.NotifiedFeeds = append(c.NotifiedFeeds, user)
	return nil
}

// CountUnreadNotifications counts the saved notifications for the user.
func (c *MockDatabaseClient) CountUnreadNotifications(_ context.Context, _ *sql.Tx, user string) (int64, error) {
	var total int64
	for _, n := range c.SavedNotifications {
		if n.User == user && !n.Read {
			total++
		}
	}
	return total, nil
}

// ListAdmins returns the configured admin list.
func (c *MockDatabaseClient) ListAdmins(_ context.Context, _ *sql.Tx) ([]string, error) {
	return c.Admins, nil
}

func TestNotifyEventCreation(t *testing.T) {
	assert := assert.New(t)

	databaseClient := NewMockDatabaseClient()
	messagingClient := NewMockMessagingClient()
	dispatcher := New(databaseClient, messagingClient)

	// Dispatch a creation notification to two recipients.
	dispatcher.NotifyEventCreation(context.Background(), []string{"u1", "u2"}, EventMeta{
		EventID:       "E1",
		EventName:     "Career Fair",
		OrganizerName: "Dr. Lee",
		StartDate:     "1594336370706",
	})

	// Verify that the batch was committed and not rolled back.
	assert.True(databaseClient.CommitCalled, "the database transaction was not committed")
	assert.False(databaseClient.RollbackCalled, "the database transaction was rolled back")

	// Verify that one notification was stored per recipient.
	if assert.Len(databaseClient.SavedNotifications, 2) {
		first := databaseClient.SavedNotifications[0]
		assert.Equal("u1", first.User, "incorrect recipient")
		assert.Equal(model.TypeEventCreated, first.Type, "incorrect notification type")
		assert.Equal("New Event Created", first.Title, "incorrect title")
		assert.Equal("Dr. Lee created a new event: Career Fair", first.Message, "incorrect message")
		assert.Equal("E1", first.Data.EventID, "incorrect event ID in the data document")
		assert.False(first.Read, "notifications must start out unread")
		assert.Equal("u2", databaseClient.SavedNotifications[1].User, "incorrect recipient")
	}

	// Verify that the feeds were signaled and the notifications published.
	assert.Equal([]string{"u1", "u2"}, databaseClient.NotifiedFeeds)
	if assert.Len(messagingClient.PublishedMessages, 2) {
		published := messagingClient.PublishedMessages[0]
		assert.Equal(int64(1), published.Total, "incorrect unread total")
		assert.Equal("n1", published.Message.Message["id"], "incorrect ID in the published message")
		assert.Equal("1594336370706", published.Message.Message["timestamp"], "incorrect timestamp format")
	}
}

func TestNotifyEventCreationUntitled(t *testing.T) {
	assert := assert.New(t)

	databaseClient := NewMockDatabaseClient()
	messagingClient := NewMockMessagingClient()
	dispatcher := New(databaseClient, messagingClient)

	// Dispatch a creation notification for an event with no name.
	dispatcher.NotifyEventCreation(context.Background(), []string{"u1"}, EventMeta{
		EventID:       "E1",
		OrganizerName: "Dr. Lee",
	})

	// Verify that the placeholder name was used.
	if assert.Len(databaseClient.SavedNotifications, 1) {
		saved := databaseClient.SavedNotifications[0]
		assert.Equal("Dr. Lee created a new event: Untitled Event", saved.Message, "incorrect message")
		assert.Equal("Untitled Event", saved.Data.EventName, "incorrect event name in the data document")
	}
}

func TestFanOutAtomicity(t *testing.T) {
	assert := assert.New(t)

	// The second save is going to fail.
	databaseClient := NewMockDatabaseClient()
	databaseClient.FailSaveAfter = 1
	messagingClient := NewMockMessagingClient()
	dispatcher := New(databaseClient, messagingClient)

	// Dispatch an update notification to three recipients.
	dispatcher.NotifyEventUpdate(
		context.Background(),
		[]string{"u1", "u2", "u3"},
		"E1", "Career Fair", "Dr. Lee", "moved to the Main Hall",
	)

	// Verify that the batch was abandoned and nothing was published.
	assert.True(databaseClient.RollbackCalled, "the database transaction was not rolled back")
	assert.False(databaseClient.CommitCalled, "the database transaction was committed")
	assert.Empty(messagingClient.PublishedMessages, "notifications were published for an abandoned batch")
	assert.Empty(databaseClient.NotifiedFeeds, "feeds were signaled for an abandoned batch")
}

func TestNotifyEventUpdateMessage(t *testing.T) {
	assert := assert.New(t)

	databaseClient := NewMockDatabaseClient()
	messagingClient := NewMockMessagingClient()
	dispatcher := New(databaseClient, messagingClient)

	dispatcher.NotifyEventUpdate(
		context.Background(), []string{"u1"}, "E1", "Career Fair", "Dr. Lee", "moved to the Main Hall",
	)

	if assert.Len(databaseClient.SavedNotifications, 1) {
		saved := databaseClient.SavedNotifications[0]
		assert.Equal(model.TypeEventUpdated, saved.Type, "incorrect notification type")
		assert.Equal("Dr. Lee updated \"Career Fair\": moved to the Main Hall", saved.Message, "incorrect message")
		assert.Equal("moved to the Main Hall", saved.Data.ChangeDetails, "incorrect change details")
	}
}

func TestNotifyEventCancellationMessage(t *testing.T) {
	assert := assert.New(t)

	databaseClient := NewMockDatabaseClient()
	messagingClient := NewMockMessagingClient()
	dispatcher := New(databaseClient, messagingClient)

	dispatcher.NotifyEventCancellation(context.Background(), []string{"u1"}, "E1", "Career Fair", "Dr. Lee")

	if assert.Len(databaseClient.SavedNotifications, 1) {
		saved := databaseClient.SavedNotifications[0]
		assert.Equal(model.TypeEventCancelled, saved.Type, "incorrect notification type")
		assert.Equal("\"Career Fair\" has been cancelled by Dr. Lee", saved.Message, "incorrect message")
	}
}

func TestNotifyPersonnelAddedMessage(t *testing.T) {
	assert := assert.New(t)

	databaseClient := NewMockDatabaseClient()
	messagingClient := NewMockMessagingClient()
	dispatcher := New(databaseClient, messagingClient)

	dispatcher.NotifyPersonnelAdded(context.Background(), []string{"u1"}, "E1", "Career Fair", "Prof. Chen")

	if assert.Len(databaseClient.SavedNotifications, 1) {
		saved := databaseClient.SavedNotifications[0]
		assert.Equal(model.TypePersonnelAdded, saved.Type, "incorrect notification type")
		assert.Equal("Prof. Chen has been added to \"Career Fair\"", saved.Message, "incorrect message")
		assert.Equal("Added: Prof. Chen", saved.Data.ChangeDetails, "incorrect change details")
	}
}

func TestNotifyUpcomingEventDefaultsLocation(t *testing.T) {
	assert := assert.New(t)

	databaseClient := NewMockDatabaseClient()
	messagingClient := NewMockMessagingClient()
	dispatcher := New(databaseClient, messagingClient)

	dispatcher.NotifyUpcomingEvent(context.Background(), []string{"u1"}, "E1", "Career Fair", "", "1594336370706")

	if assert.Len(databaseClient.SavedNotifications, 1) {
		saved := databaseClient.SavedNotifications[0]
		assert.Equal(model.TypeUpcomingEvent, saved.Type, "incorrect notification type")
		assert.Equal("Career Fair starts in 1 hour at TBA", saved.Message, "incorrect message")
		assert.Equal("1594336370706", saved.Data.StartDate, "incorrect start date in the data document")
	}
}

func TestNotifyAdminsPendingOrganizer(t *testing.T) {
	assert := assert.New(t)

	databaseClient := NewMockDatabaseClient()
	databaseClient.Admins = []string{"admin1", "admin2"}
	messagingClient := NewMockMessagingClient()
	dispatcher := New(databaseClient, messagingClient)

	dispatcher.NotifyAdminsPendingOrganizer(context.Background(), "o1", "organizer@example.edu")

	// Verify that every admin was notified.
	if assert.Len(databaseClient.SavedNotifications, 2) {
		saved := databaseClient.SavedNotifications[0]
		assert.Equal("admin1", saved.User, "incorrect recipient")
		assert.Equal(model.TypePendingOrganizer, saved.Type, "incorrect notification type")
		assert.Equal(
			"A new organizer (organizer@example.edu) is awaiting approval",
			saved.Message,
			"incorrect message",
		)
		assert.Equal("o1", saved.Data.OrganizerID, "incorrect organizer ID in the data document")
	}
}

func TestFanOutNoRecipients(t *testing.T) {
	assert := assert.New(t)

	databaseClient := NewMockDatabaseClient()
	messagingClient := NewMockMessagingClient()
	dispatcher := New(databaseClient, messagingClient)

	// Dispatching to an empty recipient set should not touch the database.
	dispatcher.NotifyEventCancellation(context.Background(), nil, "E1", "Career Fair", "Dr. Lee")

	assert.Zero(databaseClient.BeginCount, "a database transaction was started for an empty recipient set")
	assert.Empty(messagingClient.PublishedMessages, "notifications were published for an empty recipient set")
}
