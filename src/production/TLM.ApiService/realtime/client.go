package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	telemetry_models "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Models/telemetry"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	ownershipTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins for dashboard access
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	ID     string
	UserID string

	hub  *Hub
	conn *websocket.Conn

	// Buffered channel of outbound frames.
	send chan []byte

	// Rooms joined, guarded by hub.mu
	rooms map[string]struct{}
}

// NewClient creates a client; userID is empty for anonymous connections
func NewClient(hub *Hub, conn *websocket.Conn, userID string, buffer int) *Client {
	if buffer < 1 {
		buffer = 256
	}
	return &Client{
		ID:     uuid.New().String(),
		UserID: userID,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, buffer),
		rooms:  make(map[string]struct{}),
	}
}

// ServeWs upgrades the request and runs the client until the connection closes
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request, userID string, buffer int) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	client := NewClient(hub, conn, userID, buffer)
	client.start()

	go client.writePump()
	go client.readPump()
}

// start registers the client and greets authenticated users
func (c *Client) start() {
	c.hub.Register(c)
	if c.UserID == "" {
		return
	}
	c.hub.Join(c, telemetry_models.UserRoom(c.UserID))
	c.hub.send(c, telemetry_models.EventConnected, connectedPayload{UserID: c.UserID, Timestamp: c.hub.now()})
}

// readPump pumps messages from the websocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Logger.Debug().Err(err).Str("client", c.ID).Msg("Websocket closed unexpectedly")
			}
			break
		}
		c.handleMessage(message)
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
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
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

// handleMessage dispatches one client frame
func (c *Client) handleMessage(raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.sendError("Malformed message")
		return
	}

	switch env.Event {
	case telemetry_models.MessageSubscribeDevice:
		deviceID, ok := c.deviceIDFrom(env.Data)
		if !ok {
			return
		}
		if !c.mayAccess(deviceID) {
			c.sendError("Device not found or access denied")
			return
		}
		room := telemetry_models.DeviceRoom(deviceID)
		c.hub.Join(c, room)
		c.hub.send(c, telemetry_models.EventSubscribed, subscriptionPayload{DeviceID: deviceID, Room: room, Timestamp: c.hub.now()})

	case telemetry_models.MessageUnsubscribeDevice:
		deviceID, ok := c.deviceIDFrom(env.Data)
		if !ok {
			return
		}
		room := telemetry_models.DeviceRoom(deviceID)
		c.hub.Leave(c, room)
		c.hub.send(c, telemetry_models.EventUnsubscribed, subscriptionPayload{DeviceID: deviceID, Room: room, Timestamp: c.hub.now()})

	case telemetry_models.MessagePing:
		c.hub.send(c, telemetry_models.EventPong, pongPayload{Timestamp: c.hub.now()})

	default:
		c.sendError("Unknown event: " + env.Event)
	}
}

func (c *Client) deviceIDFrom(data json.RawMessage) (string, bool) {
	var req deviceRequest
	if len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			c.sendError("Malformed message")
			return "", false
		}
	}
	if req.DeviceID == "" {
		c.sendError("deviceId is required")
		return "", false
	}
	return req.DeviceID, true
}

// mayAccess checks ownership for authenticated connections only
func (c *Client) mayAccess(deviceID string) bool {
	if c.UserID == "" || c.hub.owners == nil {
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), ownershipTimeout)
	defer cancel()

	owns, err := c.hub.owners.OwnsDevice(ctx, c.UserID, deviceID)
	if err != nil {
		c.hub.logger.Logger.Error().Err(err).Str("device_id", deviceID).Str("user_id", c.UserID).Msg("Ownership check failed")
		return false
	}
	return owns
}

func (c *Client) sendError(message string) {
	c.hub.send(c, telemetry_models.EventError, errorPayload{Message: message})
}
