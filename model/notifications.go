package model

import "time"

// Notification type names. These match the `name` column in the
// notification_types table and the `type` field of published messages.
const (
	TypeEventCreated     = "event_created"
	TypeEventUpdated     = "event_updated"
	TypeEventCancelled   = "event_cancelled"
	TypePendingOrganizer = "pending_organizer"
	TypeUpcomingEvent    = "upcoming_event"
	TypePersonnelAdded   = "personnel_added"
	TypeEventReminder    = "event_reminder"
)

// NotificationTypes lists every notification type known to this service.
var NotificationTypes = []string{
	TypeEventCreated,
	TypeEventUpdated,
	TypeEventCancelled,
	TypePendingOrganizer,
	TypeUpcomingEvent,
	TypePersonnelAdded,
	TypeEventReminder,
}

// NotificationRetention is how long a notification is kept before the expiry
// sweep removes it.
const NotificationRetention = 30 * 24 * time.Hour

// NotificationData carries enough information to deep-link a notification back
// to its source event. StartDate is a millisecond-precision Unix timestamp
// formatted as a string.
type NotificationData struct {
	EventID       string `json:"eventId,omitempty"`
	EventName     string `json:"eventName,omitempty"`
	OrganizerID   string `json:"organizerId,omitempty"`
	OrganizerName string `json:"organizerName,omitempty"`
	StartDate     string `json:"startDate,omitempty"`
	Location      string `json:"location,omitempty"`
	ChangeDetails string `json:"changeDetails,omitempty"`
}

// Notification represents a single notification to be recorded in the database.
type Notification struct {
	ID          string           `json:"id"`
	Type        string           `json:"type"`
	User        string           `json:"userId"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	Read        bool             `json:"read"`
	TimeCreated time.Time        `json:"createdAt"`
	TimeExpires time.Time        `json:"expiresAt"`
	Data        NotificationData `json:"data"`
}
