// Package hubcodes holds the endpoint names of the admin dashboard feed, shared with the browser.
package hubcodes

const (
	// EndpointConnected is sent once to a dashboard right after it connects.
	EndpointConnected = "CONNECTED"

	// EndpointAttendanceMarked carries a record that was just committed.
	EndpointAttendanceMarked = "ATTENDANCE_MARKED"

	// EndpointDaySummary carries the presence summary of a day. Dashboards send it with a date
	// to ask for that day; the hub also broadcasts today's summary periodically.
	EndpointDaySummary = "DAY_SUMMARY"

	// EndpointPing lets a dashboard check the feed is alive.
	EndpointPing = "PING"
)
