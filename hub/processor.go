package hub

import (
	"context"

	"attendserver/attendance"
	log "attendserver/cloudlog"
	"attendserver/hubcodes"
	wscodes "attendserver/websocketcodes"
)

func (h *Hub) processMessage(ctx context.Context, message *Message) *Message {
	switch message.Endpoint {
	case hubcodes.EndpointPing:
		return toOriginWithStatus(message, wscodes.StatusSuccess, "pong")
	case hubcodes.EndpointDaySummary:
		return h.handleDaySummary(ctx, message)
	default:
		log.Printf("Message endpoint: %s is not supported", message.Endpoint)
		return toOriginWithStatus(message, wscodes.StatusEndpointNotValid, "")
	}
}

// handleDaySummary answers asynchronously since the summary needs a Firestore read.
func (h *Hub) handleDaySummary(ctx context.Context, message *Message) *Message {
	if message.Date != "" && !attendance.ValidDate(message.Date) {
		return toOriginWithStatus(message, wscodes.StatusInvalidDate, "date must be YYYY-MM-DD")
	}
	go h.sendSummary(ctx, message.client, message.Date, message.UID)
	return nil
}

func toOriginWithStatus(message *Message, status string, text string) *Message {
	return &Message{
		UID:      message.UID,
		Status:   status,
		Text:     text,
		Endpoint: message.Endpoint,
		Route:    append([]string{}, routeOrigin),
	}
}
