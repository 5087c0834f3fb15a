package canvas

import "github.com/dkeye/Canvas/internal/domain"

// Undo removes whole strokes from a StrokeStore and rebuilds the box index.
// There is no redo, and undo never leaves the local session.
type Undo struct {
	store  *StrokeStore
	boxes  *BoxIndex
	stacks map[domain.AuthorID][]domain.Stroke
	redraw func()
}

// NewUndo wires undo to store and boxes. redraw, if not nil, runs once after
// every effective undo, when store and boxes are already consistent.
func NewUndo(store *StrokeStore, boxes *BoxIndex, redraw func()) *Undo {
	return &Undo{
		store:  store,
		boxes:  boxes,
		stacks: make(map[domain.AuthorID][]domain.Stroke),
		redraw: redraw,
	}
}

// Undo pops the last committed stroke of author. It reports false and does
// nothing when author has no committed stroke.
func (u *Undo) Undo(author domain.AuthorID) bool {
	st, err := u.store.PopLast(author)
	if err != nil {
		return false
	}
	u.stacks[author] = append(u.stacks[author], st)
	u.boxes.Rebuild(u.store)
	if u.redraw != nil {
		u.redraw()
	}
	return true
}

// Undone returns the strokes removed for author, oldest first.
func (u *Undo) Undone(author domain.AuthorID) []domain.Stroke {
	stack := u.stacks[author]
	out := make([]domain.Stroke, len(stack))
	copy(out, stack)
	return out
}

func (u *Undo) Clear() { clear(u.stacks) }
