package viewshed

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOperatorCombineOr(t *testing.T) {
	op := Or
	assert.Equal(t, 1.0, op.Combine(math.NaN(), 1))
	assert.Equal(t, 0.0, op.Combine(math.NaN(), 0))
	assert.Equal(t, 1.0, op.Combine(1, 0))
	assert.True(t, op.Idempotent())
}

func TestOperatorCombineAnd(t *testing.T) {
	op := And
	assert.Equal(t, 1.0, op.Combine(math.NaN(), 1))
	assert.Equal(t, 0.0, op.Combine(1, 0))
	assert.Equal(t, 1.0, op.Combine(1, 1))
}

func TestOperatorCombineSumNotIdempotent(t *testing.T) {
	op := Sum
	first := op.Combine(math.NaN(), 1)
	second := op.Combine(first, 1)
	assert.Equal(t, 1.0, first)
	assert.Equal(t, 2.0, second, "sum must accumulate duplicate passes, unlike Or/And")
	assert.False(t, op.Idempotent())
}

func TestOperatorCombineDebugOverwrites(t *testing.T) {
	op := Debug
	assert.Equal(t, 5.0, op.Combine(1, 5))
}

func TestVisibilityTileStartsAllNaN(t *testing.T) {
	vt := NewVisibilityTile(3, 2)
	for r := 0; r < 2; r++ {
		for c := 0; c < 3; c++ {
			assert.True(t, math.IsNaN(vt.At(c, r)))
		}
	}
}

func TestVisibilityTileApplyUsesOperator(t *testing.T) {
	vt := NewVisibilityTile(2, 2)
	vt.Apply(0, 0, Or, 0)
	vt.Apply(0, 0, Or, 1)
	assert.Equal(t, 1.0, vt.At(0, 0))
}

func TestKeyBoundsContainsAndKeys(t *testing.T) {
	b := KeyBounds{Min: TileKey{Col: 0, Row: 0}, Max: TileKey{Col: 1, Row: 1}}
	assert.True(t, b.Valid())
	assert.True(t, b.Contains(TileKey{Col: 1, Row: 0}))
	assert.False(t, b.Contains(TileKey{Col: 2, Row: 0}))
	assert.Len(t, b.Keys(), 4)
}

func TestMetadataMapTransformRoundTrip(t *testing.T) {
	md := Metadata{
		Layout: Layout{TileCols: 10, TileRows: 10, TotalCols: 20, TotalRows: 20},
		Extent: Extent{XMin: 0, YMin: 0, XMax: 2, YMax: 2},
		Bounds: KeyBounds{Min: TileKey{0, 0}, Max: TileKey{1, 1}},
	}

	key, col, row, err := md.MapTransform(1.05, 1.05)
	assert.NoError(t, err)
	assert.Equal(t, TileKey{Col: 1, Row: 0}, key)
	assert.Equal(t, 0, col)
	assert.Equal(t, 9, row)
}

func TestMetadataMapTransformOutOfLayout(t *testing.T) {
	md := Metadata{
		Layout: Layout{TileCols: 10, TileRows: 10, TotalCols: 10, TotalRows: 10},
		Extent: Extent{XMin: 0, YMin: 0, XMax: 1, YMax: 1},
		Bounds: KeyBounds{Min: TileKey{0, 0}, Max: TileKey{0, 0}},
	}

	_, _, _, err := md.MapTransform(5, 5)
	assert.ErrorIs(t, err, ErrObserverOutOfLayout)
}
