package model

import "time"

// Event represents a campus event as stored in the events table. Saves holds
// the IDs of users who saved the event and want to be reminded before it
// starts; Hearts holds the IDs of users who liked it.
type Event struct {
	ID             string
	Name           string
	StartDate      time.Time
	EndDate        time.Time
	Location       string
	Department     string
	CreatedBy      string
	OrganizerName  string
	OrganizerEmail string
	Saves          []string
	Hearts         []string
}
