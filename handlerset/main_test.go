package handlerset

import "testing"

func TestMessageCategory(t *testing.T) {
	testCases := map[string]string{
		"events.campus.created":           "created",
		"events.campus.updated":           "updated",
		"events.campus.cancelled":         "cancelled",
		"events.campus.personnel-added":   "personnel-added",
		"events.campus.organizer-pending": "organizer-pending",
		"created":                         "created",
	}
	for routingKey, expected := range testCases {
		actual := messageCategory(routingKey)
		if actual != expected {
			t.Errorf("unexpected category for `%s`: got '%s' instead of '%s'", routingKey, actual, expected)
		}
	}
}
