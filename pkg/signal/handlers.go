package signal

import (
	"time"

	"github.com/gorilla/websocket"
)

// readPump reads messages from the WebSocket and routes them in arrival order
func (c *Client) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.conn.Close()
	}()

	cfg := c.server.cfg
	c.conn.SetReadLimit(cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait.Duration))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait.Duration))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket error", "err", err)
			}
			break
		}

		var msg Message
		if err := c.codec.Decode(data, &msg); err != nil {
			c.logger.Warn("invalid message format", "err", err)
			c.reply(Message{Event: MsgError, Error: "invalid message format"})
			continue
		}

		c.handleMessage(msg)
	}
}

// writePump sends queued messages and keeps the connection alive with pings
func (c *Client) writePump() {
	cfg := c.server.cfg
	ticker := time.NewTicker(cfg.PingPeriod())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait.Duration))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := c.codec.Encode(msg)
			if err != nil {
				c.logger.Error("failed to encode message", "event", msg.Event, "err", err)
				continue
			}
			if err := c.conn.WriteMessage(c.codec.FrameType(), data); err != nil {
				c.logger.Warn("websocket write error", "err", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait.Duration))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage is the single router for one connection
func (c *Client) handleMessage(msg Message) {
	switch msg.Event {
	case MsgJoinRoom:
		c.handleJoin(msg)
	case MsgLeaveRoom:
		c.handleLeave(msg)
	case MsgSignal:
		c.handleSignal(msg)
	case MsgStopBroadcast:
		c.handleStop(msg)
	case MsgContentUpdate:
		c.handleContentUpdate(msg)
	default:
		c.logger.Warn("unknown message type", "event", msg.Event)
		c.reply(Message{Event: MsgError, Error: "unknown event: " + msg.Event})
	}
}

// handleJoin moves the connection into a room and acknowledges it
func (c *Client) handleJoin(msg Message) {
	room := msg.Room
	c.server.registry.Join(c.id, room)
	c.logger.Info("joined room", "room", room, "members", len(c.server.registry.Members(room)))
	c.reply(Message{Event: MsgJoined, Room: room, ID: c.id})
}

func (c *Client) handleLeave(msg Message) {
	room := msg.Room
	c.server.registry.Leave(c.id, room)
	c.logger.Debug("left room", "room", room)
}

// handleSignal forwards a negotiation payload to everyone else in the target room
func (c *Client) handleSignal(msg Message) {
	if msg.Signal == nil {
		c.reply(Message{Event: MsgError, Error: "signal without payload"})
		return
	}

	room := msg.Signal.TargetRoom
	sig := *msg.Signal
	out := Message{Event: MsgSignal, Signal: &sig, From: c.id}

	peers := c.server.registry.MembersExcept(room, c.id)
	n := c.server.deliver(peers, out)
	c.logger.Debug("relayed signal", "kind", sig.Kind, "room", room, "peers", len(peers), "delivered", n)
}

// handleStop tells every member of the room, sender included, that the
// broadcast ended
func (c *Client) handleStop(msg Message) {
	room := msg.Room
	out := Message{Event: MsgStopBroadcast, Room: room, From: c.id}
	members := c.server.registry.Members(room)
	c.server.deliver(members, out)
	c.logger.Info("broadcast stopped", "room", room, "members", len(members))
}

// handleContentUpdate forwards a static content URL to the other members
func (c *Client) handleContentUpdate(msg Message) {
	room := msg.Room
	out := Message{Event: MsgContentUpdate, Room: room, URL: msg.URL, From: c.id}
	c.server.deliver(c.server.registry.MembersExcept(room, c.id), out)
}

// reply queues a message for this connection only
func (c *Client) reply(msg Message) {
	c.server.deliver([]string{c.id}, msg)
}
