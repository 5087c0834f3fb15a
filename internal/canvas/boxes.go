package canvas

import (
	"fmt"
	"math"

	"github.com/dkeye/Canvas/internal/domain"
)

// BoxPadding is added around the extreme points of a trace on every side.
const BoxPadding = 2.0

// BoxIndex keeps a set of axis-aligned boxes covering committed ink.
//
// In the default mode Merge stops after the first overlap it finds, so a
// grown box may end up overlapping a third one. Strict mode keeps merging
// until the set is disjoint.
type BoxIndex struct {
	boxes   []domain.BoundingBox
	strict  bool
	visible bool
}

type BoxOption func(*BoxIndex)

// WithStrictMerge makes Merge collapse overlaps transitively.
func WithStrictMerge(strict bool) BoxOption {
	return func(ix *BoxIndex) { ix.strict = strict }
}

func NewBoxIndex(opts ...BoxOption) *BoxIndex {
	ix := &BoxIndex{visible: true}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// ComputeBox returns the padded min/max box over trace.
func ComputeBox(trace []domain.TracePoint) (domain.BoundingBox, error) {
	if len(trace) == 0 {
		return domain.BoundingBox{}, fmt.Errorf("compute box: %w", ErrEmptyTrace)
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range trace {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	return domain.BoundingBox{
		X:      minX - BoxPadding,
		Y:      minY - BoxPadding,
		Width:  maxX - minX + 2*BoxPadding,
		Height: maxY - minY + 2*BoxPadding,
	}, nil
}

// Overlaps treats touching edges as overlapping.
func Overlaps(a, b domain.BoundingBox) bool {
	return !(a.Right() < b.X || b.Right() < a.X || a.Bottom() < b.Y || b.Bottom() < a.Y)
}

// Union returns the smallest box covering a and b.
func Union(a, b domain.BoundingBox) domain.BoundingBox {
	x := math.Min(a.X, b.X)
	y := math.Min(a.Y, b.Y)
	return domain.BoundingBox{
		X:      x,
		Y:      y,
		Width:  math.Max(a.Right(), b.Right()) - x,
		Height: math.Max(a.Bottom(), b.Bottom()) - y,
	}
}

// Merge folds box into the index.
func (ix *BoxIndex) Merge(box domain.BoundingBox) {
	cur := box
	for {
		i := ix.firstOverlap(cur)
		if i < 0 {
			ix.boxes = append(ix.boxes, cur)
			return
		}
		cur = Union(ix.boxes[i], cur)
		if !ix.strict {
			ix.boxes[i] = cur
			return
		}
		ix.boxes = append(ix.boxes[:i], ix.boxes[i+1:]...)
	}
}

func (ix *BoxIndex) firstOverlap(box domain.BoundingBox) int {
	for i, b := range ix.boxes {
		if Overlaps(b, box) {
			return i
		}
	}
	return -1
}

// Rebuild discards every box and re-merges one box per committed stroke in
// authoring order.
func (ix *BoxIndex) Rebuild(store *StrokeStore) {
	ix.boxes = ix.boxes[:0]
	for _, st := range store.All() {
		box, err := ComputeBox(st.Trace)
		if err != nil {
			continue
		}
		ix.Merge(box)
	}
}

// Boxes returns a copy of the current set.
func (ix *BoxIndex) Boxes() []domain.BoundingBox {
	out := make([]domain.BoundingBox, len(ix.boxes))
	copy(out, ix.boxes)
	return out
}

func (ix *BoxIndex) Len() int { return len(ix.boxes) }

func (ix *BoxIndex) Clear() { ix.boxes = ix.boxes[:0] }

func (ix *BoxIndex) Strict() bool { return ix.strict }

// ToggleVisibility flips the render-time filter and returns the new value.
func (ix *BoxIndex) ToggleVisibility() bool {
	ix.visible = !ix.visible
	return ix.visible
}

func (ix *BoxIndex) Visible() bool { return ix.visible }
