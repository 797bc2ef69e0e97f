package common

import (
	"fmt"
	"regexp"
	"time"
)

// millisecondTimestampRegexp matches timestamps that are already expressed as
// milliseconds since the epoch.
var millisecondTimestampRegexp = regexp.MustCompile(`^\d+$`)

// FormatTimestamp formats a timestamp as milliseconds since the epoch. This is
// the format used for timestamps in published notification messages and in the
// `data` document of a stored notification.
func FormatTimestamp(timestamp time.Time) string {
	return fmt.Sprintf("%d", timestamp.UnixNano()/1000000)
}

// FixTimestamp converts a timestamp to milliseconds since the epoch. Incoming
// event messages may express timestamps either in that format already or as
// RFC3339, with or without subsecond precision. An empty string is passed
// through unchanged so that optional timestamps remain optional.
func FixTimestamp(timestamp string) (string, error) {
	if timestamp == "" {
		return "", nil
	}
	if millisecondTimestampRegexp.MatchString(timestamp) {
		return timestamp, nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		return "", err
	}
	return FormatTimestamp(parsed), nil
}
