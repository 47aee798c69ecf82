package devtools

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ServeWS upgrades r to a websocket connection, registers it with the
// hub, and pumps queued events to the client until it disconnects. Wire
// it to an http.ServeMux as the handler for the devtools stream
// endpoint.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("devtools: websocket upgrade failed: %v", err)
		return
	}

	c := &client{id: uuid.New(), conn: conn, send: make(chan []byte, 64)}
	h.register <- c
	defer func() { h.unregister <- c.id }()

	h.logger.Printf("devtools: client %s connected", c.id)

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	done := make(chan struct{})
	go h.writePump(c, done)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Printf("devtools: client %s read error: %v", c.id, err)
			}
			close(done)
			return
		}
	}
}

// writePump drains c.send (closed by removeClient on disconnect) and
// sends a ping on a separate cadence to detect dead connections.
func (h *Hub) writePump(c *client, done <-chan struct{}) {
	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()
	defer c.conn.Close()

	for {
		select {
		case <-done:
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Printf("devtools: client %s write error: %v", c.id, err)
				return
			}
		case <-pingTicker.C:
			c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
