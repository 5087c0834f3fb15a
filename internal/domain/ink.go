package domain

import "time"

// TracePoint is one raw timestamped pointer sample backing a stroke.
type TracePoint struct {
	X float64
	Y float64
	T time.Time
}

// Segment is one rendered line piece between two consecutive points.
type Segment struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	PrevX float64 `json:"prevX"`
	PrevY float64 `json:"prevY"`
	Width float64 `json:"lineWidth"`
	Color string  `json:"color"`
}

// Stroke is one pointer-down-to-pointer-up ink path of a single author.
type Stroke struct {
	Author   AuthorID
	Seq      uint64
	Segments []Segment
	Trace    []TracePoint
}

// BoundingBox is axis-aligned; Right and Bottom are X+Width and Y+Height.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (b BoundingBox) Right() float64  { return b.X + b.Width }
func (b BoundingBox) Bottom() float64 { return b.Y + b.Height }
