// Package relay is the server side fan-out hub. It forwards every message
// to everyone but its sender and arbitrates the single screen-share
// broadcaster. Message bytes pass through untouched.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/Canvas/internal/domain"
	"github.com/dkeye/Canvas/internal/wire"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

// Conn is one participant's transport handle. TrySend must not block: it
// returns ErrBackpressure when the outbound queue is full and ErrClosed
// once the connection is gone.
type Conn interface {
	ID() domain.ConnID
	Author() domain.AuthorID
	TrySend(data []byte) error
	Close()
}

// Message is what the hub hands to other relay instances.
type Message struct {
	From domain.AuthorID `json:"from"`
	To   domain.AuthorID `json:"to,omitempty"`
	Data json.RawMessage `json:"data"`
}

// Publisher carries forwarded messages to other relay instances.
type Publisher interface {
	Publish(ctx context.Context, m Message) error
}

type Participant struct {
	Conn   domain.ConnID   `json:"conn"`
	Author domain.AuthorID `json:"author"`
}

var stopFrame = mustEncode(wire.TypeStopShare)

func mustEncode(t wire.Type) []byte {
	raw, err := wire.Encode(t, "", nil)
	if err != nil {
		panic(err)
	}
	return raw
}

type Option func(*Hub)

func WithPolicy(p Policy) Option {
	return func(h *Hub) { h.policy = p }
}

// WithScreenshotLimit bounds full-resolution screenshots per connection.
func WithScreenshotLimit(limit int, interval time.Duration) Option {
	return func(h *Hub) { h.shots = NewRateLimiter(limit, interval) }
}

func WithPublisher(p Publisher) Option {
	return func(h *Hub) { h.pub = p }
}

// Hub holds the connection set and the broadcaster pointer under one
// lock, so removing the broadcaster and clearing the role happen together.
type Hub struct {
	mu          sync.Mutex
	conns       map[domain.ConnID]Conn
	broadcaster domain.ConnID

	policy Policy
	shots  *RateLimiter
	pub    Publisher
	log    zerolog.Logger
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		conns:  make(map[domain.ConnID]Conn),
		policy: DropPolicy{},
		shots:  NewRateLimiter(0, 0),
		log:    log.With().Str("module", "relay").Logger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) Register(c Conn) {
	h.mu.Lock()
	h.conns[c.ID()] = c
	n := len(h.conns)
	h.mu.Unlock()
	h.log.Info().Str("conn", string(c.ID())).Str("author", string(c.Author())).Int("conns", n).Msg("conn registered")
}

// Unregister removes a connection. If it was the broadcaster, everyone
// left gets one stopShare. Calling it twice is harmless.
func (h *Hub) Unregister(id domain.ConnID) {
	h.mu.Lock()
	c, ok := h.conns[id]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, id)
	var failed []Conn
	wasBroadcaster := h.broadcaster == id
	if wasBroadcaster {
		h.broadcaster = ""
		failed = h.fanoutLocked(stopFrame, everyone)
	}
	h.mu.Unlock()

	h.shots.Forget(id)
	h.log.Info().Str("conn", string(id)).Str("author", string(c.Author())).Bool("broadcaster", wasBroadcaster).Msg("conn removed")
	if wasBroadcaster {
		h.publish(context.Background(), Message{From: c.Author(), Data: stopFrame})
	}
	h.drop(failed)
}

// Dispatch routes one message from a connection.
func (h *Hub) Dispatch(ctx context.Context, from Conn, data []byte) {
	env, err := wire.Parse(data)
	if err != nil {
		h.log.Warn().Err(err).Str("conn", string(from.ID())).Msg("dropping message")
		return
	}
	id := from.ID()
	lg := h.log.With().Str("conn", string(id)).Str("type", string(env.Type)).Logger()

	var failed []Conn
	forward := true

	h.mu.Lock()
	switch env.Type {
	case wire.TypeStartShare:
		if prev := h.broadcaster; prev != "" && prev != id {
			lg.Info().Str("previous", string(prev)).Msg("broadcaster replaced")
		}
		h.broadcaster = id
		forward = false
	case wire.TypeStopShare:
		if h.broadcaster != id {
			forward = false
			break
		}
		h.broadcaster = ""
		failed = h.fanoutLocked(data, allBut(id))
	case wire.TypeScreenShare:
		if h.broadcaster != id {
			forward = false
			break
		}
		failed = h.fanoutLocked(data, allBut(id))
	case wire.TypeScreenshot:
		if !h.shots.Allow(id) {
			forward = false
			break
		}
		failed = h.fanoutLocked(data, allBut(id))
	case wire.TypeSignal:
		failed = h.fanoutLocked(data, addressed(id, env.To))
	default:
		failed = h.fanoutLocked(data, allBut(id))
	}
	h.mu.Unlock()

	if !forward {
		lg.Debug().Msg("not forwarded")
	} else {
		h.publish(ctx, Message{From: from.Author(), To: env.To, Data: data})
	}
	h.drop(failed)
}

// Deliver hands a message from another relay instance to local
// connections. Its sender lives elsewhere, so authors stand in for conns.
func (h *Hub) Deliver(m Message) {
	match := func(c Conn) bool {
		if c.Author() == m.From {
			return false
		}
		return m.To == "" || c.Author() == m.To
	}
	h.mu.Lock()
	failed := h.fanoutLocked(m.Data, match)
	h.mu.Unlock()
	h.drop(failed)
}

func (h *Hub) Participants() []Participant {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Participant, 0, len(h.conns))
	for id, c := range h.conns {
		out = append(out, Participant{Conn: id, Author: c.Author()})
	}
	return out
}

// Broadcaster reports the current screen-share source, if any.
func (h *Hub) Broadcaster() (Participant, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[h.broadcaster]
	if !ok {
		return Participant{}, false
	}
	return Participant{Conn: c.ID(), Author: c.Author()}, true
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close disconnects everyone.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	clear(h.conns)
	h.broadcaster = ""
	h.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}

func everyone(Conn) bool { return true }

func allBut(id domain.ConnID) func(Conn) bool {
	return func(c Conn) bool { return c.ID() != id }
}

func addressed(from domain.ConnID, to domain.AuthorID) func(Conn) bool {
	return func(c Conn) bool {
		return c.ID() != from && (to == "" || c.Author() == to)
	}
}

// fanoutLocked sends data to every matching conn and returns the ones that
// must be removed.
func (h *Hub) fanoutLocked(data []byte, match func(Conn) bool) []Conn {
	var failed []Conn
	sent, dropped := 0, 0
	for _, c := range h.conns {
		if !match(c) {
			continue
		}
		err := c.TrySend(data)
		switch {
		case err == nil:
			sent++
		case errors.Is(err, ErrBackpressure) && h.policy.OnBackpressure(c) == DropMessage:
			dropped++
		default:
			failed = append(failed, c)
		}
	}
	h.log.Debug().Int("sent_to", sent).Int("dropped", dropped).Int("failed", len(failed)).Msg("fanout")
	return failed
}

func (h *Hub) drop(failed []Conn) {
	for _, c := range failed {
		h.log.Warn().Str("conn", string(c.ID())).Msg("send failed, removing conn")
		c.Close()
		h.Unregister(c.ID())
	}
}

func (h *Hub) publish(ctx context.Context, m Message) {
	if h.pub == nil {
		return
	}
	if err := h.pub.Publish(ctx, m); err != nil {
		h.log.Error().Err(err).Msg("bus publish")
	}
}
