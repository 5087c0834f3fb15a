// Package recognition packages finished traces for an external handwriting
// classifier and interprets its ranked answers. Recognition is best effort:
// callers log failures and move on.
package recognition

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/dkeye/Canvas/internal/domain"
)

var (
	ErrUnavailable = errors.New("recognition unavailable")
	ErrNoResult    = errors.New("no recognition result")
)

// Gateway classifies one request and returns ranked alternatives, best first.
type Gateway interface {
	Recognize(ctx context.Context, req Request) ([]string, error)
}

type WritingGuide struct {
	Width  float64 `json:"writing_area_width"`
	Height float64 `json:"writing_area_height"`
}

// StrokeInk is the parallel-array form of one stroke: xs, ys, timestamps.
type StrokeInk [3][]float64

type InkRequest struct {
	WritingGuide WritingGuide `json:"writing_guide"`
	Ink          []StrokeInk  `json:"ink"`
	Language     string       `json:"language"`
}

type Request struct {
	Requests []InkRequest `json:"requests"`
}

// BuildRequest packages trace for a canvas of the given size. Timestamps are
// milliseconds since the first point.
func BuildRequest(trace []domain.TracePoint, width, height float64, language string) Request {
	ink := StrokeInk{
		make([]float64, 0, len(trace)),
		make([]float64, 0, len(trace)),
		make([]float64, 0, len(trace)),
	}
	var start time.Time
	if len(trace) > 0 {
		start = trace[0].T
	}
	for _, p := range trace {
		ink[0] = append(ink[0], p.X)
		ink[1] = append(ink[1], p.Y)
		ink[2] = append(ink[2], float64(p.T.Sub(start).Milliseconds()))
	}
	return Request{Requests: []InkRequest{{
		WritingGuide: WritingGuide{Width: width, Height: height},
		Ink:          []StrokeInk{ink},
		Language:     language,
	}}}
}

var denylist = map[string]struct{}{
	".": {}, ",": {}, "-": {}, "_": {}, "'": {}, "\"": {},
	"`": {}, "|": {}, "/": {}, "\\": {}, "~": {}, "^": {},
}

// Accept reports whether word is a real answer. Known non-answers and
// punctuation-only strings are rejected.
func Accept(word string) bool {
	word = strings.TrimSpace(word)
	if word == "" {
		return false
	}
	if _, ok := denylist[word]; ok {
		return false
	}
	for _, r := range word {
		if !unicode.IsPunct(r) && !unicode.IsSymbol(r) {
			return true
		}
	}
	return false
}

// Best returns the first alternative if it is accepted.
func Best(alternatives []string) (string, bool) {
	if len(alternatives) == 0 {
		return "", false
	}
	best := strings.TrimSpace(alternatives[0])
	return best, Accept(best)
}

// Centroid is where a label for trace is anchored: mean x, and mean y
// lifted by offset.
func Centroid(trace []domain.TracePoint, offset float64) (x, y float64) {
	if len(trace) == 0 {
		return 0, 0
	}
	for _, p := range trace {
		x += p.X
		y += p.Y
	}
	n := float64(len(trace))
	return x / n, y/n - offset
}
