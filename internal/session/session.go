// Package session is the participant side of the canvas: it turns local
// pointer input and relay messages into StrokeStore and BoxIndex mutations,
// renders them, and emits wire messages.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/Canvas/internal/canvas"
	"github.com/dkeye/Canvas/internal/domain"
	"github.com/dkeye/Canvas/internal/recognition"
	"github.com/dkeye/Canvas/internal/wire"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Author       domain.AuthorID
	Color        string
	BrushSize    float64
	CanvasWidth  float64
	CanvasHeight float64
	Language     string
	// LabelOffset lifts recognized labels above the trace centroid.
	LabelOffset float64
	StrictMerge bool
	// ShareInterval paces screen-share captures.
	ShareInterval time.Duration
	// RecognitionTimeout bounds one classifier call; zero means none.
	RecognitionTimeout time.Duration

	OnScreenshot func(author domain.AuthorID, image string)
	OnSignal     func(from domain.AuthorID, data wire.SignalData)
	// OnLabel sees every new label, local or remote, once.
	OnLabel func(l Label)
}

func (o *Options) defaults() {
	if o.Author == "" {
		o.Author = domain.NewAuthorID()
	}
	if o.Color == "" {
		o.Color = "#000000"
	}
	if o.BrushSize <= 0 {
		o.BrushSize = 2
	}
	if o.Language == "" {
		o.Language = "en"
	}
	if o.ShareInterval <= 0 {
		o.ShareInterval = time.Second / 10
	}
}

// Label is a recognized word anchored on the canvas.
type Label struct {
	Author domain.AuthorID
	Text   string
	X, Y   float64
}

type point struct{ x, y float64 }

// remoteBrush tracks where a remote author's pen currently is.
type remoteBrush struct {
	last  point
	color string
	size  float64
}

// Session owns one participant's canvas state. Input handlers, relay
// messages and recognition results may arrive on different goroutines; mu
// applies them one at a time in arrival order, so no intermediate state is
// ever rendered.
type Session struct {
	mu sync.Mutex

	opts      Options
	transport Transport
	surface   Surface
	gateway   recognition.Gateway

	store *canvas.StrokeStore
	boxes *canvas.BoxIndex
	undo  *canvas.Undo

	labels     []Label
	background string
	remote     map[domain.AuthorID]*remoteBrush

	enabled bool
	last    point
	closed  bool

	sharing atomic.Bool
	pending sync.WaitGroup

	log zerolog.Logger
}

// New builds a session. gateway and surface may be nil.
func New(transport Transport, surface Surface, gateway recognition.Gateway, opts Options) *Session {
	opts.defaults()
	if surface == nil {
		surface = nopSurface{}
	}
	s := &Session{
		opts:      opts,
		transport: transport,
		surface:   surface,
		gateway:   gateway,
		store:     canvas.NewStrokeStore(),
		boxes:     canvas.NewBoxIndex(canvas.WithStrictMerge(opts.StrictMerge)),
		remote:    make(map[domain.AuthorID]*remoteBrush),
		enabled:   true,
		log:       log.With().Str("module", "session").Str("author", string(opts.Author)).Logger(),
	}
	s.undo = canvas.NewUndo(s.store, s.boxes, s.redrawLocked)
	return s
}

func (s *Session) Author() domain.AuthorID { return s.opts.Author }

func (s *Session) SetBrush(color string, size float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if color != "" {
		s.opts.Color = color
	}
	if size > 0 {
		s.opts.BrushSize = size
	}
}

// SetDrawingEnabled gates pointer input. A stroke already open still closes
// on PointerUp.
func (s *Session) SetDrawingEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

func (s *Session) DrawingEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// PointerDown opens a local stroke at (x, y).
func (s *Session) PointerDown(x, y float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled || s.closed {
		return nil
	}
	if err := s.store.BeginStroke(s.opts.Author); err != nil {
		return err
	}
	s.last = point{x, y}
	s.send(wire.TypeDrawStart, wire.DrawStart{
		X:         x,
		Y:         y,
		Color:     s.opts.Color,
		BrushSize: wire.BrushSize(s.opts.BrushSize),
	})
	return nil
}

// PointerMove extends the open local stroke. Moves without a held button
// are ignored.
func (s *Session) PointerMove(x, y float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled || s.closed || !s.store.HasOpenStroke(s.opts.Author) {
		return nil
	}
	seg := domain.Segment{
		PrevX: s.last.x,
		PrevY: s.last.y,
		X:     x,
		Y:     y,
		Width: s.opts.BrushSize,
		Color: s.opts.Color,
	}
	if err := s.store.AppendSegment(s.opts.Author, seg); err != nil {
		return err
	}
	s.last = point{x, y}
	s.surface.DrawSegment(seg)
	s.send(wire.TypeDraw, wire.DrawFromSegment(seg))
	return nil
}

// PointerUp commits the open local stroke, boxes it and submits its trace
// for recognition. Without an open stroke it does nothing, so pointer-out
// can call it freely.
func (s *Session) PointerUp() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.store.HasOpenStroke(s.opts.Author) {
		return nil
	}
	trace, err := s.store.EndStroke(s.opts.Author)
	if err != nil {
		return err
	}
	s.send(wire.TypeDrawEnd, nil)
	if len(trace) == 0 {
		return nil
	}
	s.commitBoxLocked(trace)
	s.submitLocked(trace)
	return nil
}

// Undo removes the last local stroke. It is never broadcast.
func (s *Session) Undo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.undo.Undo(s.opts.Author)
}

// Clear wipes all local ink and tells everyone else to do the same.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
	s.send(wire.TypeClearDrawing, nil)
}

// ToggleBoxes flips box rendering and redraws.
func (s *Session) ToggleBoxes() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.boxes.ToggleVisibility()
	s.redrawLocked()
	return v
}

// SendSignal passes a negotiation payload through the relay, to one author
// or to everyone when to is empty.
func (s *Session) SendSignal(to domain.AuthorID, data wire.SignalData) error {
	raw, err := wire.EncodeSignal(s.opts.Author, to, data)
	if err != nil {
		return err
	}
	return s.transport.Send(raw)
}

// Close stops sharing and drops any recognition result that arrives later.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.sharing.Store(false)
}

// Wait blocks until every submitted recognition has finished.
func (s *Session) Wait() { s.pending.Wait() }

// Strokes returns the committed strokes in authoring order.
func (s *Session) Strokes() []domain.Stroke {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Stroke, 0, s.store.Len())
	for _, st := range s.store.All() {
		out = append(out, st)
	}
	return out
}

func (s *Session) Boxes() []domain.BoundingBox {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boxes.Boxes()
}

func (s *Session) Labels() []Label {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Label, len(s.labels))
	copy(out, s.labels)
	return out
}

func (s *Session) Background() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.background
}

func (s *Session) commitBoxLocked(trace []domain.TracePoint) {
	box, err := canvas.ComputeBox(trace)
	if err != nil {
		s.log.Warn().Err(err).Msg("box for committed stroke")
		return
	}
	s.boxes.Merge(box)
	if s.boxes.Visible() {
		s.redrawLocked()
	}
}

func (s *Session) clearLocked() {
	s.store.Clear()
	s.boxes.Clear()
	s.undo.Clear()
	s.labels = nil
	clear(s.remote)
	s.redrawLocked()
}

// redrawLocked repaints everything: background first, ink above it.
func (s *Session) redrawLocked() {
	s.surface.Clear()
	if s.background != "" {
		s.surface.DrawBackground(s.background)
	}
	for _, st := range s.store.All() {
		for _, seg := range st.Segments {
			s.surface.DrawSegment(seg)
		}
	}
	for seg := range s.store.OpenSegments() {
		s.surface.DrawSegment(seg)
	}
	if s.boxes.Visible() {
		for _, b := range s.boxes.Boxes() {
			s.surface.DrawBox(b)
		}
	}
	for _, l := range s.labels {
		s.surface.DrawLabel(l.Text, l.X, l.Y)
	}
}

func (s *Session) addLabelLocked(l Label) {
	s.labels = append(s.labels, l)
	s.surface.DrawLabel(l.Text, l.X, l.Y)
	if s.opts.OnLabel != nil {
		s.opts.OnLabel(l)
	}
}

func (s *Session) send(t wire.Type, payload any) {
	raw, err := wire.Encode(t, s.opts.Author, payload)
	if err != nil {
		s.log.Error().Err(err).Str("type", string(t)).Msg("encode")
		return
	}
	if err := s.transport.Send(raw); err != nil {
		s.log.Warn().Err(err).Str("type", string(t)).Msg("send dropped")
	}
}

// submitLocked hands trace to the gateway without blocking drawing. The
// result is bound to this trace, whatever order results come back in.
func (s *Session) submitLocked(trace []domain.TracePoint) {
	if s.gateway == nil {
		return
	}
	req := recognition.BuildRequest(trace, s.opts.CanvasWidth, s.opts.CanvasHeight, s.opts.Language)
	x, y := recognition.Centroid(trace, s.opts.LabelOffset)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx := context.Background()
		if s.opts.RecognitionTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.opts.RecognitionTimeout)
			defer cancel()
		}
		words, err := s.gateway.Recognize(ctx, req)
		if err != nil {
			if errors.Is(err, recognition.ErrNoResult) {
				s.log.Debug().Msg("no recognition result")
			} else {
				s.log.Warn().Err(err).Msg("recognition failed")
			}
			return
		}
		word, ok := recognition.Best(words)
		if !ok {
			s.log.Debug().Strs("alternatives", words).Msg("recognition rejected")
			return
		}
		s.applyRecognition(Label{Author: s.opts.Author, Text: word, X: x, Y: y})
	}()
}

func (s *Session) applyRecognition(l Label) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.addLabelLocked(l)
	s.send(wire.TypeRecognizedText, wire.RecognizedText{Text: l.Text, X: l.X, Y: l.Y})
}
