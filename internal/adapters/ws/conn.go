// Package ws carries relay messages over gorilla/websocket, both on the
// relay side (Conn, Serve) and on the participant side (Client).
package ws

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/Canvas/internal/domain"
	"github.com/dkeye/Canvas/internal/relay"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	WriteWait  time.Duration
	SendBuffer int
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 8 << 20
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = 54 * time.Second
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 5 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	return o
}

// pongWait must exceed PingPeriod so one lost pong does not kill the conn.
func (o Options) pongWait() time.Duration { return o.PingPeriod * 10 / 9 }

// Conn is the relay side of one participant websocket.
type Conn struct {
	id     domain.ConnID
	author domain.AuthorID
	conn   *websocket.Conn
	send   chan []byte
	opts   Options

	mu     sync.RWMutex
	closed bool

	log zerolog.Logger
}

func NewConn(ws *websocket.Conn, author domain.AuthorID, opts Options) *Conn {
	opts = opts.withDefaults()
	id := domain.NewConnID()
	return &Conn{
		id:     id,
		author: author,
		conn:   ws,
		send:   make(chan []byte, opts.SendBuffer),
		opts:   opts,
		log:    log.With().Str("module", "adapters.ws").Str("conn", string(id)).Str("author", string(author)).Logger(),
	}
}

func (c *Conn) ID() domain.ConnID       { return c.id }
func (c *Conn) Author() domain.AuthorID { return c.author }

func (c *Conn) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return relay.ErrClosed
	}
	select {
	case c.send <- data:
	default:
		return relay.ErrBackpressure
	}
	return nil
}

func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
}

// Hub is what a served connection talks to.
type Hub interface {
	Register(c relay.Conn)
	Unregister(id domain.ConnID)
	Dispatch(ctx context.Context, from relay.Conn, data []byte)
}

// Serve registers c with hub and pumps it until either side goes away. It
// blocks until the read side ends.
func Serve(ctx context.Context, hub Hub, c *Conn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hub.Register(c)
	defer func() {
		hub.Unregister(c.id)
		c.Close()
	}()

	go c.writePump(ctx)
	c.readPump(ctx, hub)
}

func (c *Conn) readPump(ctx context.Context, hub Hub) {
	c.conn.SetReadLimit(c.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.pongWait()))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.opts.pongWait()))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Error().Err(err).Msg("readPump read error")
			} else {
				c.log.Info().Msg("readPump closing")
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		hub.Dispatch(ctx, c, data)
	}
}

func (c *Conn) writePump(ctx context.Context) {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.Close()
			return
		case data, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(c.opts.WriteWait))
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait)); err != nil {
				c.log.Error().Err(err).Msg("writePump set deadline")
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Error().Err(err).Msg("writePump write error")
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteWait)); err != nil {
				c.log.Warn().Err(err).Msg("ping")
				c.Close()
				return
			}
		}
	}
}
