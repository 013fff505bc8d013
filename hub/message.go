package hub

import "attendserver/attendance"

const (
	routeBroadcast = "BROADCAST"
	routeOrigin    = "ORIGIN"
)

// Message defines the Websocket message between an admin dashboard and this server
type Message struct {
	UID      string   `json:"uid"`
	Endpoint string   `json:"endpoint"`
	Route    []string `json:"route"`
	Status   string   `json:"status,omitempty"`
	Text     string   `json:"text,omitempty"`

	// Date selects the day of a DAY_SUMMARY request.
	Date string `json:"date,omitempty"`

	Summary *attendance.DaySummary `json:"summary,omitempty"`
	Event   *attendance.Event      `json:"event,omitempty"`

	client *Client
}
