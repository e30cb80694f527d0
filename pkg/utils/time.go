package utils

import "time"

// Now returns the current time in UTC. Every timestamp the system persists or
// publishes goes through here so rows and events compare cleanly.
func Now() time.Time {
	return time.Now().UTC()
}

// UnixToTime converts an epoch-seconds timestamp to UTC. Zero and negative
// values mean "not provided" and map to the zero time.
func UnixToTime(timestamp int64) time.Time {
	if timestamp <= 0 {
		return time.Time{}
	}
	return time.Unix(timestamp, 0).UTC()
}

// FormatISO8601 renders a time in RFC 3339 UTC for payloads and logs.
func FormatISO8601(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
