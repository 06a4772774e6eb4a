package extension

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// IsUpgrade reports whether r asks for a websocket upgrade.
func IsUpgrade(r *http.Request) bool { return websocket.IsWebSocketUpgrade(r) }

// Channel is one upgraded connection. Sends are safe for concurrent use;
// Receive must be called from one goroutine.
type Channel struct {
	conn *websocket.Conn
	wmu  sync.Mutex
	once sync.Once
}

// Accept completes the upgrade handshake on w.
func Accept(w http.ResponseWriter, r *http.Request) (*Channel, error) {
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return &Channel{conn: c}, nil
}

// Receive blocks for the next message. Cancelling ctx closes the channel.
func (c *Channel) Receive(ctx context.Context) (text bool, data []byte, err error) {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()
	mt, data, err := c.conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return false, nil, ctx.Err()
		}
		return false, nil, err
	}
	return mt == websocket.TextMessage, data, nil
}

func (c *Channel) SendText(s string) error { return c.write(websocket.TextMessage, []byte(s)) }
func (c *Channel) SendBinary(b []byte) error { return c.write(websocket.BinaryMessage, b) }

func (c *Channel) write(mt int, b []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(mt, b)
}

// Close sends a normal closure frame and closes the connection. It is safe
// to call more than once.
func (c *Channel) Close() error {
	var err error
	c.once.Do(func() {
		c.wmu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.wmu.Unlock()
		err = c.conn.Close()
	})
	return err
}

// IsClosed reports whether err is a normal end of the channel.
func IsClosed(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
}
