package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Canvas/internal/domain"
	"github.com/dkeye/Canvas/internal/recognition"
	"github.com/dkeye/Canvas/internal/wire"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSurface struct {
	mu       sync.Mutex
	ops      []string
	segments []domain.Segment
	boxes    []domain.BoundingBox
	labels   []string
	bg       string
}

func (r *recordingSurface) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, "clear")
	r.segments, r.boxes, r.labels, r.bg = nil, nil, nil, ""
}

func (r *recordingSurface) DrawBackground(image string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, "background")
	r.bg = image
}

func (r *recordingSurface) DrawSegment(seg domain.Segment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, "segment")
	r.segments = append(r.segments, seg)
}

func (r *recordingSurface) DrawBox(box domain.BoundingBox) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, "box")
	r.boxes = append(r.boxes, box)
}

func (r *recordingSurface) DrawLabel(text string, x, y float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, "label")
	r.labels = append(r.labels, text)
}

func (r *recordingSurface) Segments() []domain.Segment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Segment(nil), r.segments...)
}

type memTransport struct {
	mu   sync.Mutex
	sent []wire.Envelope
	err  error
}

func (m *memTransport) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	env, err := wire.Parse(data)
	if err != nil {
		return err
	}
	m.sent = append(m.sent, env)
	return nil
}

func (m *memTransport) Types() []wire.Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]wire.Type, 0, len(m.sent))
	for _, e := range m.sent {
		out = append(out, e.Type)
	}
	return out
}

func (m *memTransport) Last(t wire.Type) (wire.Envelope, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].Type == t {
			return m.sent[i], true
		}
	}
	return wire.Envelope{}, false
}

func (m *memTransport) Count(t wire.Type) int {
	n := 0
	for _, tt := range m.Types() {
		if tt == t {
			n++
		}
	}
	return n
}

type gatewayFunc func(ctx context.Context, req recognition.Request) ([]string, error)

func (f gatewayFunc) Recognize(ctx context.Context, req recognition.Request) ([]string, error) {
	return f(ctx, req)
}

func words(ws ...string) recognition.Gateway {
	return gatewayFunc(func(context.Context, recognition.Request) ([]string, error) { return ws, nil })
}

func newSession(t *testing.T, gw recognition.Gateway) (*Session, *memTransport, *recordingSurface) {
	t.Helper()
	tr := &memTransport{}
	surf := &recordingSurface{}
	s := New(tr, surf, gw, Options{
		Author:       "me",
		Color:        "#000",
		BrushSize:    2,
		CanvasWidth:  800,
		CanvasHeight: 600,
		LabelOffset:  20,
	})
	return s, tr, surf
}

func remote(t *testing.T, typ wire.Type, author domain.AuthorID, payload any) []byte {
	t.Helper()
	raw, err := wire.Encode(typ, author, payload)
	require.NoError(t, err)
	return raw
}

func TestSession_DrawStroke(t *testing.T) {
	s, tr, surf := newSession(t, words("ok"))

	require.NoError(t, s.PointerDown(0, 0))
	require.NoError(t, s.PointerMove(10, 10))
	require.NoError(t, s.PointerUp())
	s.Wait()

	assert.Equal(t, []wire.Type{wire.TypeDrawStart, wire.TypeDraw, wire.TypeDrawEnd, wire.TypeRecognizedText}, tr.Types())

	env, ok := tr.Last(wire.TypeDraw)
	require.True(t, ok)
	assert.Equal(t, domain.AuthorID("me"), env.AuthorID)
	var d wire.Draw
	require.NoError(t, env.Decode(&d))
	assert.Equal(t, wire.Draw{FromX: 0, FromY: 0, ToX: 10, ToY: 10, Color: "#000", BrushSize: 2}, d)

	strokes := s.Strokes()
	require.Len(t, strokes, 1)
	assert.Len(t, strokes[0].Segments, 1)
	assert.Equal(t, []domain.BoundingBox{{X: -2, Y: -2, Width: 14, Height: 14}}, s.Boxes())

	env, ok = tr.Last(wire.TypeRecognizedText)
	require.True(t, ok)
	var rt wire.RecognizedText
	require.NoError(t, env.Decode(&rt))
	assert.Equal(t, wire.RecognizedText{Text: "ok", X: 5, Y: -15}, rt)
	assert.Contains(t, surf.labels, "ok")
}

func TestSession_RejectedRecognition(t *testing.T) {
	s, tr, _ := newSession(t, words("."))

	require.NoError(t, s.PointerDown(0, 0))
	require.NoError(t, s.PointerMove(5, 5))
	require.NoError(t, s.PointerUp())
	s.Wait()

	assert.Zero(t, tr.Count(wire.TypeRecognizedText))
	assert.Empty(t, s.Labels())
}

func TestSession_RecognitionFailureIsSilent(t *testing.T) {
	gw := gatewayFunc(func(context.Context, recognition.Request) ([]string, error) {
		return nil, recognition.ErrUnavailable
	})
	s, tr, _ := newSession(t, gw)

	require.NoError(t, s.PointerDown(0, 0))
	require.NoError(t, s.PointerMove(5, 5))
	require.NoError(t, s.PointerUp())
	s.Wait()

	assert.Zero(t, tr.Count(wire.TypeRecognizedText))
	assert.Len(t, s.Strokes(), 1)
}

func TestSession_TapIsDiscarded(t *testing.T) {
	s, tr, _ := newSession(t, words("x"))

	require.NoError(t, s.PointerDown(3, 3))
	require.NoError(t, s.PointerUp())
	s.Wait()

	assert.Empty(t, s.Strokes())
	assert.Empty(t, s.Boxes())
	assert.Equal(t, []wire.Type{wire.TypeDrawStart, wire.TypeDrawEnd}, tr.Types())
}

func TestSession_PointerUpWithoutStroke(t *testing.T) {
	s, tr, _ := newSession(t, nil)

	require.NoError(t, s.PointerUp())
	require.NoError(t, s.PointerMove(1, 1))
	assert.Empty(t, tr.Types())
}

func TestSession_RecognitionOutOfOrder(t *testing.T) {
	release := map[float64]chan struct{}{
		0:   make(chan struct{}),
		100: make(chan struct{}),
	}
	gw := gatewayFunc(func(ctx context.Context, req recognition.Request) ([]string, error) {
		first := req.Requests[0].Ink[0][0][0]
		<-release[first]
		if first == 0 {
			return []string{"first"}, nil
		}
		return []string{"second"}, nil
	})
	s, _, _ := newSession(t, gw)

	require.NoError(t, s.PointerDown(0, 0))
	require.NoError(t, s.PointerMove(10, 0))
	require.NoError(t, s.PointerUp())
	require.NoError(t, s.PointerDown(100, 0))
	require.NoError(t, s.PointerMove(110, 0))
	require.NoError(t, s.PointerUp())

	close(release[100])
	require.Eventually(t, func() bool { return len(s.Labels()) == 1 }, time.Second, 5*time.Millisecond)
	close(release[0])
	s.Wait()

	labels := s.Labels()
	require.Len(t, labels, 2)
	assert.Equal(t, "second", labels[0].Text)
	assert.InDelta(t, 105, labels[0].X, 1e-9)
	assert.Equal(t, "first", labels[1].Text)
	assert.InDelta(t, 5, labels[1].X, 1e-9)
}

func TestSession_LateRecognitionAfterClose(t *testing.T) {
	release := make(chan struct{})
	gw := gatewayFunc(func(context.Context, recognition.Request) ([]string, error) {
		<-release
		return []string{"late"}, nil
	})
	s, tr, _ := newSession(t, gw)

	require.NoError(t, s.PointerDown(0, 0))
	require.NoError(t, s.PointerMove(1, 1))
	require.NoError(t, s.PointerUp())
	s.Close()
	close(release)
	s.Wait()

	assert.Zero(t, tr.Count(wire.TypeRecognizedText))
}

func TestSession_UndoIsLocal(t *testing.T) {
	s, tr, surf := newSession(t, nil)

	require.NoError(t, s.PointerDown(0, 0))
	require.NoError(t, s.PointerMove(10, 10))
	require.NoError(t, s.PointerUp())
	before := len(tr.Types())

	assert.True(t, s.Undo())
	assert.False(t, s.Undo())
	assert.Len(t, tr.Types(), before)
	assert.Empty(t, s.Strokes())
	assert.Empty(t, s.Boxes())
	assert.Empty(t, surf.Segments())
}

func TestSession_UndoKeepsRemoteInk(t *testing.T) {
	s, _, _ := newSession(t, nil)

	s.HandleMessage(remote(t, wire.TypeDrawStart, "bob", wire.DrawStart{X: 50, Y: 50}))
	s.HandleMessage(remote(t, wire.TypeDraw, "bob", wire.Draw{FromX: 50, FromY: 50, ToX: 60, ToY: 60}))
	s.HandleMessage(remote(t, wire.TypeDrawEnd, "bob", nil))
	require.NoError(t, s.PointerDown(0, 0))
	require.NoError(t, s.PointerMove(1, 1))
	require.NoError(t, s.PointerUp())

	assert.True(t, s.Undo())
	strokes := s.Strokes()
	require.Len(t, strokes, 1)
	assert.Equal(t, domain.AuthorID("bob"), strokes[0].Author)
	assert.False(t, s.Undo(), "remote strokes are not undoable")
}

func TestSession_ClearIsBroadcast(t *testing.T) {
	s, tr, _ := newSession(t, words("hi"))

	require.NoError(t, s.PointerDown(0, 0))
	require.NoError(t, s.PointerMove(10, 10))
	require.NoError(t, s.PointerUp())
	s.Wait()
	s.HandleMessage(remote(t, wire.TypeScreenShare, "bob", wire.Frame{Image: "data:bg"}))

	s.Clear()

	assert.Equal(t, 1, tr.Count(wire.TypeClearDrawing))
	assert.Empty(t, s.Strokes())
	assert.Empty(t, s.Boxes())
	assert.Empty(t, s.Labels())
	assert.Equal(t, "data:bg", s.Background(), "clear keeps the shared screen")
	assert.False(t, s.Undo())
}

func TestSession_RemoteClear(t *testing.T) {
	s, tr, _ := newSession(t, nil)

	require.NoError(t, s.PointerDown(0, 0))
	require.NoError(t, s.PointerMove(10, 10))
	require.NoError(t, s.PointerUp())
	s.HandleMessage(remote(t, wire.TypeClearDrawing, "bob", nil))

	assert.Empty(t, s.Strokes())
	assert.Zero(t, tr.Count(wire.TypeClearDrawing), "remote clear is not echoed")
}

func TestSession_InkSurvivesFrames(t *testing.T) {
	s, _, surf := newSession(t, nil)

	require.NoError(t, s.PointerDown(0, 0))
	require.NoError(t, s.PointerMove(10, 10))
	require.NoError(t, s.PointerUp())

	s.HandleMessage(remote(t, wire.TypeScreenShare, "bob", wire.Frame{Image: "data:f1"}))
	s.HandleMessage(remote(t, wire.TypeScreenShare, "bob", wire.Frame{Image: "data:f2"}))

	assert.Equal(t, "data:f2", s.Background())
	assert.Equal(t, "data:f2", surf.bg)
	assert.Len(t, surf.Segments(), 1)

	surf.mu.Lock()
	ops := append([]string(nil), surf.ops...)
	surf.mu.Unlock()
	last := ops[len(ops)-4:]
	assert.Equal(t, []string{"clear", "background", "segment", "box"}, last)

	s.HandleMessage(remote(t, wire.TypeStopShare, "", nil))
	assert.Empty(t, s.Background())
	assert.Len(t, surf.Segments(), 1)
}

func TestSession_DrawingToggle(t *testing.T) {
	s, tr, _ := newSession(t, nil)

	s.SetDrawingEnabled(false)
	assert.False(t, s.DrawingEnabled())
	require.NoError(t, s.PointerDown(0, 0))
	require.NoError(t, s.PointerMove(10, 10))
	require.NoError(t, s.PointerUp())
	assert.Empty(t, tr.Types())
	assert.Empty(t, s.Strokes())

	s.SetDrawingEnabled(true)
	require.NoError(t, s.PointerDown(0, 0))
	require.NoError(t, s.PointerMove(10, 10))
	require.NoError(t, s.PointerUp())
	assert.Len(t, s.Strokes(), 1)
}

func TestSession_ToggleBoxes(t *testing.T) {
	s, _, surf := newSession(t, nil)

	require.NoError(t, s.PointerDown(0, 0))
	require.NoError(t, s.PointerMove(10, 10))
	require.NoError(t, s.PointerUp())

	assert.False(t, s.ToggleBoxes())
	assert.Empty(t, surf.boxes)
	assert.Len(t, s.Boxes(), 1, "hiding boxes does not drop them")
	assert.True(t, s.ToggleBoxes())
	assert.Len(t, surf.boxes, 1)
}

func TestSession_RemoteStrokes(t *testing.T) {
	s, tr, surf := newSession(t, nil)

	s.HandleMessage(remote(t, wire.TypeDrawStart, "bob", wire.DrawStart{X: 0, Y: 0, Color: "#f00", BrushSize: 3}))
	s.HandleMessage(remote(t, wire.TypeDrawStart, "eve", wire.DrawStart{X: 100, Y: 100}))
	s.HandleMessage(remote(t, wire.TypeDraw, "bob", wire.Draw{FromX: 0, FromY: 0, ToX: 10, ToY: 10, Color: "#f00", BrushSize: 3}))
	s.HandleMessage(remote(t, wire.TypeDraw, "eve", wire.Draw{FromX: 100, FromY: 100, ToX: 110, ToY: 110}))
	s.HandleMessage(remote(t, wire.TypeDrawEnd, "eve", nil))
	s.HandleMessage(remote(t, wire.TypeDrawEnd, "bob", nil))

	strokes := s.Strokes()
	require.Len(t, strokes, 2)
	assert.Equal(t, domain.AuthorID("eve"), strokes[0].Author)
	assert.Equal(t, domain.AuthorID("bob"), strokes[1].Author)
	assert.Len(t, s.Boxes(), 2)
	assert.Len(t, surf.Segments(), 2)
	assert.Empty(t, tr.Types(), "remote input is never re-broadcast")
}

func TestSession_RemoteLostMessages(t *testing.T) {
	s, _, _ := newSession(t, nil)

	// draw without drawStart
	s.HandleMessage(remote(t, wire.TypeDraw, "bob", wire.Draw{FromX: 0, FromY: 0, ToX: 5, ToY: 5}))
	// drawStart while the previous stroke is still open
	s.HandleMessage(remote(t, wire.TypeDrawStart, "bob", wire.DrawStart{X: 50, Y: 50}))
	s.HandleMessage(remote(t, wire.TypeDraw, "bob", wire.Draw{FromX: 50, FromY: 50, ToX: 60, ToY: 60}))
	s.HandleMessage(remote(t, wire.TypeDrawEnd, "bob", nil))
	// drawEnd with nothing open
	s.HandleMessage(remote(t, wire.TypeDrawEnd, "bob", nil))

	assert.Len(t, s.Strokes(), 2)
}

func TestSession_IgnoresMalformedAndEcho(t *testing.T) {
	s, _, surf := newSession(t, nil)

	s.HandleMessage([]byte(`not json`))
	s.HandleMessage([]byte(`{"type":"bogus"}`))
	s.HandleMessage([]byte(`{"type":"draw","authorId":"bob","data":{"brushSize":{}}}`))
	s.HandleMessage(remote(t, wire.TypeDrawStart, "me", wire.DrawStart{}))
	s.HandleMessage(remote(t, wire.TypeDraw, "me", wire.Draw{ToX: 1, ToY: 1}))

	assert.Empty(t, s.Strokes())
	assert.Empty(t, surf.Segments())
}

func TestSession_RemoteLabelsAndCallbacks(t *testing.T) {
	var shot string
	var sig wire.SignalData
	tr := &memTransport{}
	s := New(tr, nil, nil, Options{
		Author:       "me",
		OnScreenshot: func(_ domain.AuthorID, image string) { shot = image },
		OnSignal:     func(_ domain.AuthorID, d wire.SignalData) { sig = d },
	})

	s.HandleMessage(remote(t, wire.TypeRecognizedText, "bob", wire.RecognizedText{Text: "hey", X: 1, Y: 2}))
	s.HandleMessage(remote(t, wire.TypeScreenshot, "bob", wire.Frame{Image: "data:shot"}))
	raw, err := wire.EncodeSignal("bob", "me", wire.SignalData{Candidate: candidate()})
	require.NoError(t, err)
	s.HandleMessage(raw)

	require.Len(t, s.Labels(), 1)
	assert.Equal(t, Label{Author: "bob", Text: "hey", X: 1, Y: 2}, s.Labels()[0])
	assert.Equal(t, "data:shot", shot)
	require.NotNil(t, sig.Candidate)
	assert.Equal(t, candidate().Candidate, sig.Candidate.Candidate)
	assert.Empty(t, tr.Types())
}

func TestSession_SendSignal(t *testing.T) {
	s, tr, _ := newSession(t, nil)

	offer := &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}
	require.NoError(t, s.SendSignal("bob", wire.SignalData{SDP: offer}))
	require.Error(t, s.SendSignal("bob", wire.SignalData{}))

	env, ok := tr.Last(wire.TypeSignal)
	require.True(t, ok)
	assert.Equal(t, domain.AuthorID("me"), env.AuthorID)
	assert.Equal(t, domain.AuthorID("bob"), env.To)
	data, err := wire.DecodeSignal(env)
	require.NoError(t, err)
	require.NotNil(t, data.SDP)
	assert.Equal(t, webrtc.SDPTypeOffer, data.SDP.Type)
	assert.Equal(t, 1, tr.Count(wire.TypeSignal))
}

func candidate() *webrtc.ICECandidateInit {
	return &webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 2130706431 10.0.0.1 5000 typ host"}
}

type staticFrames struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *staticFrames) Capture(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "data:frame", nil
}

func TestSession_Share(t *testing.T) {
	tr := &memTransport{}
	s := New(tr, nil, nil, Options{Author: "me", ShareInterval: time.Millisecond})
	src := &staticFrames{}

	require.True(t, s.StartShare(context.Background(), src))
	assert.False(t, s.StartShare(context.Background(), src), "already sharing")
	require.Eventually(t, func() bool { return tr.Count(wire.TypeScreenShare) >= 2 }, time.Second, time.Millisecond)

	require.True(t, s.StopShare())
	assert.False(t, s.StopShare())
	assert.False(t, s.Sharing())

	types := tr.Types()
	assert.Equal(t, wire.TypeStartShare, types[0])
	assert.Equal(t, 1, tr.Count(wire.TypeStopShare))

	env, ok := tr.Last(wire.TypeScreenShare)
	require.True(t, ok)
	var f wire.Frame
	require.NoError(t, env.Decode(&f))
	assert.Equal(t, "data:frame", f.Image)
}

func TestSession_ShareStopsOnCancel(t *testing.T) {
	tr := &memTransport{}
	s := New(tr, nil, nil, Options{Author: "me", ShareInterval: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())

	require.True(t, s.StartShare(ctx, &staticFrames{}))
	cancel()
	require.Eventually(t, func() bool { return !s.Sharing() }, time.Second, time.Millisecond)
	assert.Equal(t, 1, tr.Count(wire.TypeStopShare))
}

func TestSession_Screenshot(t *testing.T) {
	tr := &memTransport{}
	s := New(tr, nil, nil, Options{Author: "me"})

	require.NoError(t, s.Screenshot(context.Background(), &staticFrames{}))
	assert.Equal(t, 1, tr.Count(wire.TypeScreenshot))

	boom := errors.New("no display")
	assert.ErrorIs(t, s.Screenshot(context.Background(), &staticFrames{err: boom}), boom)
}

func TestSession_SendFailureDoesNotBreakDrawing(t *testing.T) {
	tr := &memTransport{err: errors.New("link down")}
	s := New(tr, nil, nil, Options{Author: "me"})

	require.NoError(t, s.PointerDown(0, 0))
	require.NoError(t, s.PointerMove(10, 10))
	require.NoError(t, s.PointerUp())
	assert.Len(t, s.Strokes(), 1)
}
