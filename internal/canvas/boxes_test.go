package canvas

import (
	"testing"

	"github.com/dkeye/Canvas/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func box(x, y, w, h float64) domain.BoundingBox {
	return domain.BoundingBox{X: x, Y: y, Width: w, Height: h}
}

func TestComputeBox(t *testing.T) {
	trace := []domain.TracePoint{{X: 10, Y: 20}, {X: 30, Y: 5}, {X: 15, Y: 40}}
	b, err := ComputeBox(trace)
	require.NoError(t, err)
	assert.Equal(t, box(8, 3, 24, 39), b)

	t.Run("single point", func(t *testing.T) {
		b, err := ComputeBox([]domain.TracePoint{{X: 5, Y: 5}})
		require.NoError(t, err)
		assert.Equal(t, box(3, 3, 4, 4), b)
	})

	t.Run("empty trace", func(t *testing.T) {
		_, err := ComputeBox(nil)
		assert.ErrorIs(t, err, ErrEmptyTrace)
	})
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b domain.BoundingBox
		want bool
	}{
		{"partial", box(0, 0, 10, 10), box(5, 5, 10, 10), true},
		{"contained", box(0, 0, 50, 50), box(10, 10, 5, 5), true},
		{"touching edge", box(0, 0, 10, 10), box(10, 0, 5, 5), true},
		{"apart horizontally", box(0, 0, 5, 5), box(6, 0, 5, 5), false},
		{"apart vertically", box(0, 0, 5, 5), box(0, 6, 5, 5), false},
		{"far", box(0, 0, 5, 5), box(100, 100, 5, 5), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Overlaps(tt.a, tt.b))
			assert.Equal(t, tt.want, Overlaps(tt.b, tt.a))
		})
	}
}

func TestMerge_ContainedIsIdempotent(t *testing.T) {
	ix := NewBoxIndex()
	ix.Merge(box(0, 0, 50, 50))
	ix.Merge(box(10, 10, 5, 5))

	assert.Equal(t, []domain.BoundingBox{box(0, 0, 50, 50)}, ix.Boxes())
}

func TestMerge_OverlappingUnion(t *testing.T) {
	ix := NewBoxIndex()
	ix.Merge(box(0, 0, 10, 10))
	ix.Merge(box(5, 5, 10, 10))

	assert.Equal(t, []domain.BoundingBox{box(0, 0, 15, 15)}, ix.Boxes())
}

func TestMerge_DisjointStaySeparate(t *testing.T) {
	ix := NewBoxIndex()
	ix.Merge(box(0, 0, 5, 5))
	ix.Merge(box(100, 100, 5, 5))

	assert.Equal(t, []domain.BoundingBox{box(0, 0, 5, 5), box(100, 100, 5, 5)}, ix.Boxes())
}

// A bridge box touching two disjoint boxes only collapses fully in strict mode.
func TestMerge_BridgeLegacyVersusStrict(t *testing.T) {
	seed := func(ix *BoxIndex) {
		ix.Merge(box(0, 0, 10, 10))
		ix.Merge(box(20, 0, 10, 10))
		ix.Merge(box(8, 0, 14, 10))
	}

	legacy := NewBoxIndex()
	seed(legacy)
	require.Equal(t, 2, legacy.Len())
	got := legacy.Boxes()
	assert.Equal(t, box(0, 0, 22, 10), got[0])
	assert.True(t, Overlaps(got[0], got[1]), "single pass leaves an overlap behind")

	strict := NewBoxIndex(WithStrictMerge(true))
	seed(strict)
	assert.True(t, strict.Strict())
	assert.Equal(t, []domain.BoundingBox{box(0, 0, 30, 10)}, strict.Boxes())
}

func TestRebuild(t *testing.T) {
	s := NewStrokeStore()
	commit(t, s, "a", seg(0, 0, 10, 10))
	commit(t, s, "b", seg(100, 100, 110, 110))
	commit(t, s, "a", seg(5, 5, 12, 12))

	ix := NewBoxIndex()
	ix.Merge(box(500, 500, 1, 1))
	ix.Rebuild(s)

	assert.Equal(t, []domain.BoundingBox{box(-2, -2, 16, 16), box(98, 98, 14, 14)}, ix.Boxes())
}

func TestVisibility(t *testing.T) {
	ix := NewBoxIndex()
	assert.True(t, ix.Visible())
	assert.False(t, ix.ToggleVisibility())
	assert.False(t, ix.Visible())
	assert.True(t, ix.ToggleVisibility())
}
