package hub

import (
	"encoding/json"
	"errors"
	"time"

	log "attendserver/cloudlog"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Dashboards only send pings and summary requests.
	maxMessageSize = 4096

	// Outbound messages buffered per client before it is considered stuck.
	sendQueueSize = 32
)

var (
	errNoHub   = errors.New("client is not attached to a hub")
	errStopped = errors.New("hub has dropped the client")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Client is one admin dashboard connection.
type Client struct {
	userID string
	conn   *websocket.Conn

	// Outbound messages. Only the hub sends on it, and closes it when dropping the client.
	send chan *Message

	// Set by Hub.attach.
	inbound    chan<- *Message
	unregister chan<- *Client
	// Closed by the hub when it drops the client; nothing is sent on inbound or unregister after.
	stopCh chan struct{}
}

// NewClient wraps conn. The client must be attached to a hub before Start.
func NewClient(userID string, conn *websocket.Conn) *Client {
	return &Client{userID: userID, conn: conn, send: make(chan *Message, sendQueueSize)}
}

func (c *Client) attach(inbound chan<- *Message, unregister chan<- *Client) {
	c.inbound = inbound
	c.unregister = unregister
	c.stopCh = make(chan struct{})
}

func (c *Client) stopped() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

// Unregister asks the hub to drop the client.
func (c *Client) Unregister() error {
	if c.unregister == nil {
		return errNoHub
	}
	// Prefer the stop signal when both cases are ready.
	if c.stopped() {
		return errStopped
	}
	select {
	case <-c.stopCh:
		return errStopped
	case c.unregister <- c:
		return nil
	}
}

func (c *Client) forward(message *Message) error {
	if c.inbound == nil {
		return errNoHub
	}
	if c.stopped() {
		return errStopped
	}
	message.client = c
	select {
	case <-c.stopCh:
		return errStopped
	case c.inbound <- message:
		return nil
	}
}

// readLoop forwards dashboard requests to the hub until the connection fails. A frame that is
// not a JSON message is forwarded without an endpoint so the dashboard gets an error reply.
func (c *Client) readLoop() {
	fields := logrus.Fields{"uid": c.userID}
	defer func() {
		c.Unregister()
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.WithFields(fields).WithError(err).Warn("Dashboard connection lost")
			}
			return
		}
		message := &Message{}
		if err := json.Unmarshal(data, message); err != nil {
			log.WithFields(fields).WithError(err).Debug("Malformed dashboard message")
			message = &Message{}
		}
		if err := c.forward(message); err != nil {
			return
		}
	}
}

// writeLoop is the connection's only writer: queued messages and keepalive pings.
func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				log.WithFields(logrus.Fields{"uid": c.userID, "endpoint": message.Endpoint}).WithError(err).Debug("Dashboard write failed")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start runs the connection's reader and writer.
func (c *Client) Start() {
	go c.writeLoop()
	go c.readLoop()
}
