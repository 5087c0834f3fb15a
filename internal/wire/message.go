// Package wire defines the JSON messages exchanged between participants
// and the relay. Every message is an Envelope tagged by Type; the payload
// travels in Data.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/dkeye/Canvas/internal/domain"
)

var ErrMalformedMessage = errors.New("malformed message")

type Type string

const (
	TypeDrawStart      Type = "drawStart"
	TypeDraw           Type = "draw"
	TypeDrawEnd        Type = "drawEnd"
	TypeClearDrawing   Type = "clearDrawing"
	TypeScreenShare    Type = "screenShare"
	TypeScreenshot     Type = "screenshot"
	TypeRecognizedText Type = "recognizedText"
	TypeStartShare     Type = "startShare"
	TypeStopShare      Type = "stopShare"
	TypeSignal         Type = "signal"
)

// Known reports whether t is part of the protocol.
func (t Type) Known() bool {
	switch t {
	case TypeDrawStart, TypeDraw, TypeDrawEnd, TypeClearDrawing,
		TypeScreenShare, TypeScreenshot, TypeRecognizedText,
		TypeStartShare, TypeStopShare, TypeSignal:
		return true
	}
	return false
}

type Envelope struct {
	Type     Type            `json:"type"`
	AuthorID domain.AuthorID `json:"authorId,omitempty"`
	// To addresses a signal to one author; empty means everyone else.
	To   domain.AuthorID `json:"to,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// BrushSize accepts both a JSON number and a numeric string.
type BrushSize float64

func (b *BrushSize) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*b = BrushSize(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("brush size: %w", err)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("brush size %q: %w", s, err)
	}
	*b = BrushSize(f)
	return nil
}

type DrawStart struct {
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Color     string    `json:"color"`
	BrushSize BrushSize `json:"brushSize"`
}

type Draw struct {
	FromX     float64   `json:"fromX"`
	FromY     float64   `json:"fromY"`
	ToX       float64   `json:"toX"`
	ToY       float64   `json:"toY"`
	Color     string    `json:"color"`
	BrushSize BrushSize `json:"brushSize"`
	// Stroke is the alternative segment form some clients send instead of
	// the flat fields.
	Stroke *domain.Segment `json:"stroke,omitempty"`
}

// Segment normalizes both draw forms.
func (d Draw) Segment() domain.Segment {
	if d.Stroke != nil {
		return *d.Stroke
	}
	return domain.Segment{
		PrevX: d.FromX,
		PrevY: d.FromY,
		X:     d.ToX,
		Y:     d.ToY,
		Width: float64(d.BrushSize),
		Color: d.Color,
	}
}

func DrawFromSegment(s domain.Segment) Draw {
	return Draw{
		FromX:     s.PrevX,
		FromY:     s.PrevY,
		ToX:       s.X,
		ToY:       s.Y,
		Color:     s.Color,
		BrushSize: BrushSize(s.Width),
	}
}

// Frame carries an encoded image as a data-URL. Used by both screenShare
// and screenshot.
type Frame struct {
	Image string `json:"image"`
}

type RecognizedText struct {
	Text string  `json:"text"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// Parse decodes the envelope only; payloads stay raw until Decode.
func Parse(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}
	if !env.Type.Known() {
		return env, fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, env.Type)
	}
	return env, nil
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%w: %s without data", ErrMalformedMessage, e.Type)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformedMessage, e.Type, err)
	}
	return nil
}

// Encode builds a message. payload may be nil for types without data.
func Encode(t Type, author domain.AuthorID, payload any) ([]byte, error) {
	env := Envelope{Type: t, AuthorID: author}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", t, err)
		}
		env.Data = raw
	}
	return json.Marshal(env)
}
