// Package hub contains the live admin dashboard feed: connected dashboards receive every
// committed attendance record as it happens and a periodic summary of today.
package hub

import (
	"context"
	"sync/atomic"
	"time"

	"attendserver/attendance"
	log "attendserver/cloudlog"
	"attendserver/hubcodes"
	"attendserver/websocketcodes"

	"github.com/sirupsen/logrus"
)

// DefaultUpdateInterval is the time between DAY_SUMMARY broadcasts.
const DefaultUpdateInterval = 30 * time.Second

// Type definitions mostly to facilitate testing; can drop in a faked struct without relying on
// the underlying Firestore dependencies.
type summarySource interface {
	Dashboard(ctx context.Context, date string) (attendance.DaySummary, error)
}

// Hub maintains the set of active dashboards and sends messages to them.
type Hub struct {
	// Registered clients. Only touched from the Run goroutine.
	clients map[*Client]bool

	// Number of registered clients, readable outside Run.
	count int32

	// Inbound messages from the clients.
	inbound chan *Message

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Messages produced outside the Run goroutine (events, summaries) waiting to be routed.
	outbound chan *Message

	// Closed once Run returns.
	done chan struct{}

	db       summarySource
	interval time.Duration
}

// NewHub returns a hub reading summaries from db. Run must be called before clients connect.
func NewHub(db summarySource, interval time.Duration) *Hub {
	if interval <= 0 {
		interval = DefaultUpdateInterval
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		inbound:    make(chan *Message),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		outbound:   make(chan *Message, 64),
		done:       make(chan struct{}),
		db:         db,
		interval:   interval,
	}
}

// Run starts the hub and listens on all channels for messages until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	log.Print("start dashboard hub")
	go h.startPeriodicUpdates(ctx)
	defer func() {
		for client := range h.clients {
			h.removeClient(client)
		}
		close(h.done)
		log.Print("close dashboard hub")
	}()
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			atomic.AddInt32(&h.count, 1)
			h.sendMessage(client, &Message{
				Endpoint: hubcodes.EndpointConnected,
				Route:    []string{routeOrigin},
				Status:   websocketcodes.StatusSuccess,
			})
			go h.sendSummary(ctx, client, "", "")
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.removeClient(client)
			}
		case message := <-h.inbound:
			retMessage := h.processMessage(ctx, message)
			h.handleSendMessage(retMessage, message.client)
		case message := <-h.outbound:
			h.handleSendMessage(message, message.client)
		case <-ctx.Done():
			return
		}
	}
}

// Notify broadcasts a committed record to every dashboard.
func (h *Hub) Notify(ctx context.Context, event attendance.Event) {
	h.enqueue(ctx, &Message{
		Endpoint: hubcodes.EndpointAttendanceMarked,
		Route:    []string{routeBroadcast},
		Event:    &event,
	})
}

// Clients gives the number of connected dashboards.
func (h *Hub) Clients() int {
	return int(atomic.LoadInt32(&h.count))
}

func (h *Hub) enqueue(ctx context.Context, message *Message) {
	select {
	case h.outbound <- message:
	case <-h.done:
	case <-ctx.Done():
	}
}

// attach hands the client the hub's channels; it must happen before the client's pumps start.
func (h *Hub) attach(client *Client) {
	client.attach(h.inbound, h.unregister)
}

// registerClient queues client for registration, giving up if the hub has stopped.
func (h *Hub) registerClient(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// determines where to send the message based on message.Route
func (h *Hub) handleSendMessage(message *Message, origin *Client) {
	if message == nil {
		// No op
		return
	}
	if len(message.Route) == 0 {
		return
	}
	switch message.Route[0] {
	case routeBroadcast:
		for client := range h.clients {
			h.sendMessage(client, message)
		}
	case routeOrigin:
		h.sendMessage(origin, message)
	default:
		routes := make(map[string]bool)
		for _, dest := range message.Route {
			routes[dest] = true
		}
		for client := range h.clients {
			if _, ok := routes[client.userID]; ok {
				h.sendMessage(client, message)
			}
		}
	}
}

// sendMessage first checks if the message can be sent to the client.
func (h *Hub) sendMessage(client *Client, message *Message) {
	if client == nil {
		return
	}
	if _, ok := h.clients[client]; !ok {
		return
	}
	select {
	case client.send <- message:
	default:
		log.WithFields(logrus.Fields{"uid": client.userID}).Warn("Dashboard not keeping up, disconnecting")
		h.removeClient(client)
	}
}

func (h *Hub) removeClient(client *Client) {
	close(client.stopCh)
	close(client.send)
	delete(h.clients, client)
	atomic.AddInt32(&h.count, -1)
}

// sendSummary computes the summary for date (today when empty) and routes it to client, or to
// every client when client is nil.
func (h *Hub) sendSummary(ctx context.Context, client *Client, date, uid string) {
	message := &Message{
		UID:      uid,
		Endpoint: hubcodes.EndpointDaySummary,
		Route:    []string{routeBroadcast},
		client:   client,
	}
	if client != nil {
		message.Route = []string{routeOrigin}
	}
	summary, err := h.db.Dashboard(ctx, date)
	if err != nil {
		log.WithFields(logrus.Fields{"date": date}).WithError(err).Warn("Failed to build day summary")
		if client == nil {
			return
		}
		message.Status = websocketcodes.StatusFailure
		message.Text = err.Error()
	} else {
		message.Status = websocketcodes.StatusSuccess
		message.Summary = &summary
	}
	h.enqueue(ctx, message)
}

// startPeriodicUpdates broadcasts today's summary to connected dashboards.
func (h *Hub) startPeriodicUpdates(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if h.Clients() == 0 {
				break
			}
			h.sendSummary(ctx, nil, "", "")
		case <-ctx.Done():
			return
		}
	}
}
