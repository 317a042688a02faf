// Package realtime owns the two websocket channels (messaging and call
// signalling), translates inbound frames into bus events and exposes the
// outbound operations of each channel.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/matheus3301/parley/internal/wire"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMessage = 1 << 20
)

const sendBuffer = 128

var (
	ErrNotConnected  = errors.New("realtime: channel not connected")
	ErrSendQueueFull = errors.New("realtime: send queue full")
)

// Conn is one authenticated websocket channel. Frames are decoded on a
// read goroutine and handed to the frame callback; writes go through a
// buffered queue drained by a write pump that also keeps the link alive.
type Conn struct {
	name    string
	url     string
	token   string
	logger  *zap.Logger
	dialer  websocket.Dialer
	onFrame func(wire.Envelope)
	onDrop  func(error)

	mu   sync.Mutex
	link *link
}

type link struct {
	ws        *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	// closing is set for deliberate closes so the drop callback stays quiet.
	closing bool
}

func (l *link) close() {
	l.closeOnce.Do(func() {
		close(l.done)
		_ = l.ws.Close()
	})
}

// NewConn creates an unconnected channel. onFrame is called from the read
// goroutine for every decodable frame; onDrop is called once when an
// established link is lost without Close having been called.
func NewConn(name, url, token string, logger *zap.Logger, onFrame func(wire.Envelope), onDrop func(error)) *Conn {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Conn{
		name:   name,
		url:    url,
		token:  token,
		logger: logger.With(zap.String("channel", name)),
		dialer: websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			NetDialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
		},
		onFrame: onFrame,
		onDrop:  onDrop,
	}
}

// Name returns the channel name used in logs.
func (c *Conn) Name() string { return c.name }

// Connect dials the channel. Connecting an already connected channel is a
// no-op.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.link != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	ws, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s channel: %w (status %d)", c.name, err, resp.StatusCode)
		}
		return fmt.Errorf("dial %s channel: %w", c.name, err)
	}

	l := &link{
		ws:   ws,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}

	c.mu.Lock()
	if c.link != nil {
		// Lost a race with a concurrent Connect.
		c.mu.Unlock()
		_ = ws.Close()
		return nil
	}
	c.link = l
	c.mu.Unlock()

	ws.SetReadLimit(maxMessage)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.writePump(l)
	go c.readLoop(l)

	c.logger.Info("channel connected", zap.String("url", c.url))
	return nil
}

// Connected reports whether the channel currently has a live link.
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link != nil
}

// Send encodes a frame and queues it for writing.
func (c *Conn) Send(ctx context.Context, typ, to string, payload any) error {
	b, err := wire.Encode(typ, to, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", typ, err)
	}

	c.mu.Lock()
	l := c.link
	c.mu.Unlock()
	if l == nil {
		return ErrNotConnected
	}

	select {
	case <-l.done:
		return ErrNotConnected
	default:
	}

	select {
	case l.send <- b:
		return nil
	case <-l.done:
		return ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrSendQueueFull
	}
}

// Close shuts the channel down without triggering the drop callback.
func (c *Conn) Close() {
	c.mu.Lock()
	l := c.link
	c.link = nil
	if l != nil {
		l.closing = true
	}
	c.mu.Unlock()
	if l == nil {
		return
	}
	_ = l.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client shutdown"),
		time.Now().Add(writeWait),
	)
	l.close()
	c.logger.Info("channel closed")
}

func (c *Conn) readLoop(l *link) {
	defer c.lost(l)
	for {
		_, raw, err := l.ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			deliberate := l.closing
			c.mu.Unlock()
			if !deliberate {
				c.logger.Warn("channel read failed", zap.Error(err))
			}
			return
		}
		env, err := wire.DecodeEnvelope(raw)
		if err != nil {
			c.logger.Debug("dropping undecodable frame", zap.Error(err), zap.Int("bytes", len(raw)))
			continue
		}
		if c.onFrame != nil {
			c.onFrame(env)
		}
	}
}

func (c *Conn) writePump(l *link) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case msg := <-l.send:
			_ = l.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.Info("channel write failed", zap.Error(err))
				l.close()
				return
			}
		case <-ticker.C:
			_ = l.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				l.close()
				return
			}
		}
	}
}

// lost detaches l and reports the drop unless the close was deliberate.
func (c *Conn) lost(l *link) {
	l.close()
	c.mu.Lock()
	deliberate := l.closing
	if c.link == l {
		c.link = nil
	}
	c.mu.Unlock()
	if !deliberate && c.onDrop != nil {
		c.onDrop(fmt.Errorf("%s channel lost", c.name))
	}
}
