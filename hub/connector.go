package hub

import (
	"net/http"

	log "attendserver/cloudlog"

	"github.com/sirupsen/logrus"
)

// ServeWs upgrades the request to a websocket and registers it as a dashboard of userID.
// The caller has already checked that userID may view the roster.
func (h *Hub) ServeWs(userID string, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithFields(logrus.Fields{"uid": userID}).WithError(err).Warn("Websocket upgrade failed")
		return
	}

	client := NewClient(userID, conn)
	h.attach(client)
	if !h.registerClient(client) {
		conn.Close()
		return
	}
	client.Start()
}
