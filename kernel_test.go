package viewshed

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flatElevation(cols, rows int, height float64) *ElevationTile {
	t := NewElevationTile(cols, rows)
	for i := range t.Data {
		t.Data[i] = height
	}
	return t
}

func TestAxisUnitSnapsCardinalDirections(t *testing.T) {
	east, south := axisUnit(0, 1e-6)
	assert.Equal(t, 0.0, east)
	assert.Equal(t, -1.0, south)

	east, south = axisUnit(math.Pi/2, 1e-6)
	assert.InDelta(t, 1.0, east, 1e-9)
	assert.Equal(t, 0.0, south)
}

func TestWithinFOVOmnidirectional(t *testing.T) {
	assert.True(t, withinFOV(3.0, 0, Omnidirectional))
}

func TestWithinFOVRestricts(t *testing.T) {
	assert.True(t, withinFOV(0.1, 0, math.Pi/2))
	assert.False(t, withinFOV(math.Pi, 0, math.Pi/2))
}

func TestRunKernelFromInsideFlatTerrainMarksEverythingVisible(t *testing.T) {
	elev := flatElevation(11, 11, 0)
	vis := NewVisibilityTile(11, 11)
	params := KernelParams{
		Resolution:  1,
		MaxDistance: 100,
		Operator:    Or,
		CameraFOV:   Omnidirectional,
		Epsilon:     DefaultEpsilon,
		Altitude:    TerrainAltitude,
	}

	var bundles []Bundle
	RunKernel(elev, vis, 5, 5, 10, FromInside, nil, params, func(b Bundle) {
		bundles = append(bundles, b)
	})

	// every cell other than the origin sits strictly below the observer's
	// line of sight over flat terrain, so every touched cell is visible.
	visible := 0
	touched := 0
	for r := 0; r < 11; r++ {
		for c := 0; c < 11; c++ {
			if c == 5 && r == 5 {
				continue
			}
			v := vis.At(c, r)
			if math.IsNaN(v) {
				continue
			}
			touched++
			if v == 1 {
				visible++
			}
		}
	}
	assert.Greater(t, touched, 0)
	assert.Equal(t, touched, visible)
}

func TestRunKernelFromInsideOutOfBoundsOriginEmitsNothing(t *testing.T) {
	elev := flatElevation(5, 5, 0)
	vis := NewVisibilityTile(5, 5)
	params := KernelParams{Resolution: 1, MaxDistance: 100, CameraFOV: Omnidirectional, Epsilon: DefaultEpsilon, Altitude: TerrainAltitude}

	called := false
	RunKernel(elev, vis, -10, -10, 10, FromInside, nil, params, func(b Bundle) {
		called = true
		assert.Empty(t, b)
	})
	require.True(t, called, "emit must still be invoked, with an empty bundle")

	for i := range vis.Data {
		assert.True(t, math.IsNaN(vis.Data[i]))
	}
}

func TestRunKernelEnteringRaysRespectCount(t *testing.T) {
	elev := flatElevation(4, 4, 0)
	vis := NewVisibilityTile(4, 4)
	params := KernelParams{Resolution: 1, MaxDistance: 100, CameraFOV: Omnidirectional, Epsilon: DefaultEpsilon, Altitude: TerrainAltitude}

	rays := []Ray{{Theta: math.Pi, Alpha: math.Inf(-1)}}
	RunKernel(elev, vis, 0, -1, 10, FromNorth, rays, params, func(Bundle) {})

	// exactly one entry pixel (col 0 on the north edge) should have been
	// touched; the rest of the north row must remain untouched (NaN).
	touched := 0
	for c := 0; c < 4; c++ {
		if !math.IsNaN(vis.At(c, 0)) {
			touched++
		}
	}
	assert.Equal(t, 1, touched)
}

func TestEntryPixelIsGeometricNotPositional(t *testing.T) {
	// Origin sits north of the tile at (col=2,row=-10). The true entry
	// column on the north edge is where the line through the origin at
	// each theta crosses row 0, which descends as theta increases past
	// pi: {pi-0.05, pi, pi+0.05} -> {3, 2, 1}, not the ascending {0,1,2}
	// a theta-sorted, index-zipped mapping would produce. A small epsilon
	// keeps axisUnit from snapping these near-vertical rays to exact vertical
	// (DefaultEpsilon would send all three through col 2).
	const eps = 1e-6
	cases := []struct {
		theta    float64
		wantCol  int
	}{
		{math.Pi - 0.05, 3},
		{math.Pi, 2},
		{math.Pi + 0.05, 1},
	}
	for _, c := range cases {
		px := entryPixel(FromNorth, 2, -10, c.theta, eps, 6, 6)
		assert.Equal(t, pixelPos{c.wantCol, 0}, px, "theta=%v", c.theta)
	}
}

func TestRunKernelEnteringRaysTraceFromGeometricEntryPoint(t *testing.T) {
	elev := flatElevation(6, 6, 0)
	vis := NewVisibilityTile(6, 6)
	// small epsilon: see TestEntryPixelIsGeometricNotPositional.
	params := KernelParams{Resolution: 1, MaxDistance: 1000, CameraFOV: Omnidirectional, Epsilon: 1e-6, Altitude: TerrainAltitude}

	rays := []Ray{
		{Theta: math.Pi - 0.05, Alpha: math.Inf(-1)},
		{Theta: math.Pi, Alpha: math.Inf(-1)},
		{Theta: math.Pi + 0.05, Alpha: math.Inf(-1)},
	}
	RunKernel(elev, vis, 2, -10, 5, FromNorth, rays, params, func(Bundle) {})

	for _, col := range []int{1, 2, 3} {
		assert.Falsef(t, math.IsNaN(vis.At(col, 0)), "col %d,row 0 should be touched", col)
	}
	// an index-zipped mapping would have anchored the first ray at col 0;
	// no ray of this geometry reaches col 0.
	assert.True(t, math.IsNaN(vis.At(0, 0)), "col 0,row 0 must not be touched")
}

func TestExitTagIsInvolution(t *testing.T) {
	for _, d := range []Direction{FromNorth, FromSouth, FromEast, FromWest} {
		assert.Equal(t, d, exitTag(exitTag(d)))
	}
}
