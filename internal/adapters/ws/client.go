package ws

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/dkeye/Canvas/internal/domain"
	"github.com/dkeye/Canvas/internal/relay"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Client is the participant side of the relay link. Send never blocks; a
// full queue drops the message.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	opts Options

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	log zerolog.Logger
}

// Dial connects to the relay as author.
func Dial(ctx context.Context, rawURL string, author domain.AuthorID, opts Options) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("relay url: %w", err)
	}
	q := u.Query()
	q.Set("author", string(author))
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}
	opts = opts.withDefaults()
	conn.SetReadLimit(opts.ReadLimit)
	c := &Client{
		conn: conn,
		send: make(chan []byte, opts.SendBuffer),
		opts: opts,
		done: make(chan struct{}),
		log:  log.With().Str("module", "adapters.ws").Str("author", string(author)).Logger(),
	}
	go c.writePump()
	return c, nil
}

func (c *Client) Send(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return relay.ErrClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return relay.ErrBackpressure
	}
}

// Run delivers every incoming message to handle until the connection or
// ctx ends. handle runs on the read goroutine.
func (c *Client) Run(ctx context.Context, handle func(data []byte)) error {
	stop := context.AfterFunc(ctx, c.Close)
	defer stop()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.RLock()
			closed := c.closed
			c.mu.RUnlock()
			c.Close()
			if closed || ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("relay read: %w", err)
		}
		handle(data)
	}
}

// Close flushes what is queued, for at most WriteWait, then hangs up.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	t := time.NewTimer(c.opts.WriteWait)
	defer t.Stop()
	select {
	case <-c.done:
	case <-t.C:
	}
	_ = c.conn.Close()
}

func (c *Client) writePump() {
	defer close(c.done)
	for data := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait)); err != nil {
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			c.log.Error().Err(err).Msg("write")
			return
		}
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.opts.WriteWait))
}
