package services

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"travelPlannerAPI/internal/itinerary"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

type BucketMessage struct {
	Type   string           `json:"type"`
	Bucket itinerary.Bucket `json:"bucket"`
}

// BucketStream pushes the snapshots of a BucketWatch to one websocket
// connection. The peer only needs to answer pings.
type BucketStream struct {
	Conn  *websocket.Conn
	Watch *BucketWatch
}

func NewBucketStream(conn *websocket.Conn, watch *BucketWatch) *BucketStream {
	return &BucketStream{Conn: conn, Watch: watch}
}

// Run blocks until the peer goes away or the watch ends.
func (c *BucketStream) Run() {
	go c.WritePump()
	c.ReadPump()
}

// ReadPump drains the connection so control frames are handled, and
// cancels the watch when the peer disconnects.
func (c *BucketStream) ReadPump() {
	defer func() {
		c.Watch.Cancel()
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[BucketStream] read error: %v", err)
			}
			return
		}
	}
}

// WritePump sends every snapshot, and pings the peer between them.
func (c *BucketStream) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case bucket, ok := <-c.Watch.Snapshots():
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The watch was cancelled.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(BucketMessage{Type: "snapshot", Bucket: bucket})
			if err != nil {
				log.Printf("[BucketStream] failed to encode snapshot: %v", err)
				continue
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
