// Package canvas holds the per-session drawing state: committed stroke
// history, the bounding-box index built over it, and local undo.
//
// Nothing in this package locks. A session owns one instance of each type
// and serializes every mutation itself.
package canvas

import (
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/dkeye/Canvas/internal/domain"
)

var (
	ErrInvalidState = errors.New("invalid state")
	ErrNoOpenStroke = errors.New("no open stroke")
	ErrEmpty        = errors.New("no committed strokes")
	ErrEmptyTrace   = errors.New("empty trace")
)

// StrokeStore maps each author to its committed strokes in authoring order.
// An in-progress stroke lives apart from history until EndStroke.
type StrokeStore struct {
	history map[domain.AuthorID][]domain.Stroke
	open    map[domain.AuthorID]*domain.Stroke
	seq     uint64
	now     func() time.Time
}

func NewStrokeStore() *StrokeStore {
	return &StrokeStore{
		history: make(map[domain.AuthorID][]domain.Stroke),
		open:    make(map[domain.AuthorID]*domain.Stroke),
		now:     time.Now,
	}
}

// BeginStroke opens a new empty stroke for author.
func (s *StrokeStore) BeginStroke(author domain.AuthorID) error {
	if _, ok := s.open[author]; ok {
		return fmt.Errorf("begin stroke for %s: %w", author, ErrInvalidState)
	}
	s.open[author] = &domain.Stroke{Author: author}
	return nil
}

// HasOpenStroke reports whether author is between BeginStroke and EndStroke.
func (s *StrokeStore) HasOpenStroke(author domain.AuthorID) bool {
	_, ok := s.open[author]
	return ok
}

// AppendSegment extends the open stroke of author. The first segment also
// records its starting point in the trace.
func (s *StrokeStore) AppendSegment(author domain.AuthorID, seg domain.Segment) error {
	st, ok := s.open[author]
	if !ok {
		return fmt.Errorf("append segment for %s: %w", author, ErrNoOpenStroke)
	}
	t := s.now()
	if len(st.Trace) == 0 {
		st.Trace = append(st.Trace, domain.TracePoint{X: seg.PrevX, Y: seg.PrevY, T: t})
	}
	st.Segments = append(st.Segments, seg)
	st.Trace = append(st.Trace, domain.TracePoint{X: seg.X, Y: seg.Y, T: t})
	return nil
}

// EndStroke closes the open stroke of author and commits it to history,
// returning its trace. A stroke without segments renders nothing and is
// discarded instead of committed; its trace is then empty.
func (s *StrokeStore) EndStroke(author domain.AuthorID) ([]domain.TracePoint, error) {
	st, ok := s.open[author]
	if !ok {
		return nil, fmt.Errorf("end stroke for %s: %w", author, ErrNoOpenStroke)
	}
	delete(s.open, author)
	if len(st.Segments) == 0 {
		return nil, nil
	}
	s.seq++
	st.Seq = s.seq
	s.history[author] = append(s.history[author], *st)
	return st.Trace, nil
}

// PopLast removes and returns the most recently committed stroke of author.
func (s *StrokeStore) PopLast(author domain.AuthorID) (domain.Stroke, error) {
	strokes := s.history[author]
	if len(strokes) == 0 {
		return domain.Stroke{}, fmt.Errorf("pop last for %s: %w", author, ErrEmpty)
	}
	last := strokes[len(strokes)-1]
	strokes = strokes[:len(strokes)-1]
	if len(strokes) == 0 {
		delete(s.history, author)
	} else {
		s.history[author] = strokes
	}
	return last, nil
}

// Count returns the number of committed strokes of author.
func (s *StrokeStore) Count(author domain.AuthorID) int {
	return len(s.history[author])
}

// Len returns the number of committed strokes across all authors.
func (s *StrokeStore) Len() int {
	n := 0
	for _, strokes := range s.history {
		n += len(strokes)
	}
	return n
}

// OpenSegments yields the segments of every in-progress stroke so a redraw
// keeps ink that is still being drawn.
func (s *StrokeStore) OpenSegments() iter.Seq[domain.Segment] {
	return func(yield func(domain.Segment) bool) {
		for _, st := range s.open {
			for _, seg := range st.Segments {
				if !yield(seg) {
					return
				}
			}
		}
	}
}

// All yields committed (author, stroke) pairs in authoring order across
// all authors. The sequence is lazy and can be ranged over repeatedly; it
// must not be held across mutations.
func (s *StrokeStore) All() iter.Seq2[domain.AuthorID, domain.Stroke] {
	return func(yield func(domain.AuthorID, domain.Stroke) bool) {
		heads := make(map[domain.AuthorID]int, len(s.history))
		for {
			var (
				next  domain.AuthorID
				found bool
				best  uint64
			)
			for author, strokes := range s.history {
				i := heads[author]
				if i >= len(strokes) {
					continue
				}
				if !found || strokes[i].Seq < best {
					next, best, found = author, strokes[i].Seq, true
				}
			}
			if !found {
				return
			}
			st := s.history[next][heads[next]]
			heads[next]++
			if !yield(next, st) {
				return
			}
		}
	}
}

// Clear drops all history and open strokes.
func (s *StrokeStore) Clear() {
	clear(s.history)
	clear(s.open)
}
