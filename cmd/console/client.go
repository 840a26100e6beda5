package main

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"livestock.tv/internal/protocol"
)

// client owns one websocket session. Incoming messages are decoded on a
// reader goroutine and handed to the UI through Inbox; writes are
// serialised by mu.
type client struct {
	conn  *websocket.Conn
	mu    sync.Mutex
	Inbox chan any
}

func dial(url string) (*client, error) {
	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := d.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	c := &client{conn: conn, Inbox: make(chan any, 64)}
	go c.readLoop()
	return c, nil
}

func (c *client) readLoop() {
	defer close(c.Inbox)
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			c.Inbox <- err
			return
		}
		v, err := decode(msg)
		if err != nil || v == nil {
			continue
		}
		select {
		case c.Inbox <- v:
		default:
			// Frames are full snapshots; anything else must arrive.
			if _, ok := v.(protocol.FrameMsg); !ok {
				c.Inbox <- v
			}
		}
	}
}

// decode returns a WelcomeMsg, FrameMsg or ErrorMsg, or nil for message
// types the console does not know.
func decode(b []byte) (any, error) {
	base, err := protocol.DecodeBase(b)
	if err != nil {
		return nil, err
	}
	switch base.Type {
	case protocol.TypeWelcome:
		var m protocol.WelcomeMsg
		err = json.Unmarshal(b, &m)
		return m, err
	case protocol.TypeFrame:
		var m protocol.FrameMsg
		err = json.Unmarshal(b, &m)
		return m, err
	case protocol.TypeError:
		var m protocol.ErrorMsg
		err = json.Unmarshal(b, &m)
		return m, err
	}
	return nil, nil
}

func (c *client) Send(m protocol.ControlMsg) error {
	m.Type = protocol.TypeControl
	m.ProtocolVersion = protocol.Version
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if err := c.conn.WriteJSON(m); err != nil {
		return fmt.Errorf("send %s: %w", m.Action, err)
	}
	return nil
}

func (c *client) Close() error {
	c.mu.Lock()
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.mu.Unlock()
	return c.conn.Close()
}
