package server

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hsg8-commits/ripple/internal/chat"
	"github.com/hsg8-commits/ripple/internal/metrics"
	"github.com/hsg8-commits/ripple/pkg/json"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 20 * time.Second
	readLimit  = 1 << 20

	sendBuffer = 256
)

// Client is one websocket connection. It implements chat.Conn; everything the
// core delivers goes through the buffered send channel and out the write
// pump, which adapts batching and compression to the measured link quality.
type Client struct {
	id     string
	conn   *websocket.Conn
	router *Router
	log    *zap.Logger

	send      chan []byte
	closeOnce sync.Once

	mu     sync.RWMutex
	userID string
	closed bool

	rttNanos atomic.Int64
}

func newClient(id string, conn *websocket.Conn, router *Router, log *zap.Logger) *Client {
	return &Client{
		id:     id,
		conn:   conn,
		router: router,
		log:    log.With(zap.String("conn", id)),
		send:   make(chan []byte, sendBuffer),
	}
}

// ID implements chat.Conn.
func (c *Client) ID() string { return c.id }

// UserID implements chat.Conn. Empty until register-user arrives.
func (c *Client) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Client) setUserID(id string) {
	c.mu.Lock()
	c.userID = id
	c.mu.Unlock()
}

// Quality reports the link bucket from the last measured ping round trip.
// Unmeasured connections count as excellent.
func (c *Client) Quality() Quality {
	return QualityForRTT(time.Duration(c.rttNanos.Load()))
}

// Deliver implements chat.Conn. Marshals the event into a frame and queues
// it; a full queue drops the frame rather than stalling the room broadcast.
func (c *Client) Deliver(event string, payload interface{}) bool {
	body, err := json.Marshal(payload)
	if err != nil {
		c.log.Warn("encoding outbound payload failed", zap.String("event", event), zap.Error(err))
		return false
	}
	frame, err := json.Marshal(chat.Frame{Type: event, Payload: body})
	if err != nil {
		c.log.Warn("encoding outbound frame failed", zap.String("event", event), zap.Error(err))
		return false
	}
	return c.enqueue(frame)
}

// enqueue holds the read lock so a concurrent close cannot shut the channel
// mid-send.
func (c *Client) enqueue(frame []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		c.log.Warn("send buffer full, dropping frame")
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()
	})
}

// readPump pumps inbound frames to the router until the connection dies.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.router.connectionClosed(ctx, c)
		c.close()
		c.conn.Close()
		metrics.ConnectionsActive.Dec()
		c.log.Info("Client disconnected", zap.String("user", c.UserID()))
	}()
	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.recordPong(appData)
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("Error reading from client", zap.Error(err))
			}
			return
		}
		c.router.Dispatch(ctx, c, msg)
	}
}

// recordPong derives RTT from the echoed ping payload, which carries the send
// time in unix nanos.
func (c *Client) recordPong(appData string) {
	sent, err := strconv.ParseInt(appData, 10, 64)
	if err != nil {
		return
	}
	rtt := time.Now().UnixNano() - sent
	if rtt < 0 {
		return
	}
	c.rttNanos.Store(rtt)
}

// writePump pumps queued frames to the connection and keeps the link alive
// with timestamped pings. On poor links it holds each frame for the quality's
// batch window, flushes everything collected as one batch, and gzips batches
// past the size threshold.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.writeAdaptive(frame); err != nil {
				c.log.Warn("Write error", zap.Error(err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			stamp := strconv.FormatInt(time.Now().UnixNano(), 10)
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte(stamp)); err != nil {
				c.log.Warn("Ping error", zap.Error(err))
				return
			}
		}
	}
}

func (c *Client) writeAdaptive(first []byte) error {
	window := c.Quality().BatchWindow()
	if window == 0 {
		return c.conn.WriteMessage(websocket.TextMessage, first)
	}

	frames := [][]byte{first}
	hold := time.NewTimer(window)
	defer hold.Stop()
collect:
	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				break collect
			}
			frames = append(frames, frame)
		case <-hold.C:
			break collect
		}
	}

	out, err := encodeBatch(frames)
	if err != nil {
		return err
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if len(out) >= compressThreshold {
		compressed, err := compressFrame(out)
		if err == nil {
			return c.conn.WriteMessage(websocket.BinaryMessage, compressed)
		}
		c.log.Warn("batch compression failed, sending plain", zap.Error(err))
	}
	return c.conn.WriteMessage(websocket.TextMessage, out)
}
