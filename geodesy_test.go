package viewshed

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolutionRejectsInvalidLayer(t *testing.T) {
	_, err := Resolution(Metadata{})
	assert.ErrorIs(t, err, ErrInvalidLayer)
}

func TestResolutionApproximatesMetresPerPixel(t *testing.T) {
	md := Metadata{
		Layout: Layout{TileCols: 100, TileRows: 100, TotalCols: 100, TotalRows: 100},
		Extent: Extent{XMin: 0, YMin: 0, XMax: 1, YMax: 1},
		Bounds: KeyBounds{Min: TileKey{0, 0}, Max: TileKey{0, 0}},
	}

	res, err := Resolution(md)
	assert.NoError(t, err)
	// one degree of longitude at the equator is roughly 111.3km; one
	// tile spans 1 degree over 100 pixels.
	assert.InDelta(t, 1113.19, res, 1.0)
}

func TestCurvatureDropIsMonotonic(t *testing.T) {
	near := CurvatureDrop(1000)
	far := CurvatureDrop(10000)
	assert.Less(t, near, far)
	assert.Equal(t, 0.0, CurvatureDrop(0))
}
