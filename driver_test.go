package viewshed

import (
	"context"
	"math"
	"testing"

	"github.com/alitto/pond"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLayer struct {
	md    Metadata
	tiles map[TileKey]*ElevationTile
}

func (f *fakeLayer) Metadata() (Metadata, error) { return f.md, nil }

func (f *fakeLayer) ReadTile(key TileKey) (*ElevationTile, error) {
	tile, ok := f.tiles[key]
	if !ok {
		return nil, ErrTileNotFound
	}
	return tile, nil
}

func (f *fakeLayer) ElevationAt(key TileKey, col, row int) (float64, error) {
	tile, err := f.ReadTile(key)
	if err != nil {
		return 0, err
	}
	if !tile.InBounds(col, row) {
		return 0, ErrObserverOutOfLayout
	}
	return tile.At(col, row), nil
}

func singleTileLayer(size int) *fakeLayer {
	tile := flatElevation(size, size, 0)
	return &fakeLayer{
		md: Metadata{
			Layout: Layout{TileCols: size, TileRows: size, TotalCols: size, TotalRows: size},
			Extent: Extent{XMin: 0, YMin: 0, XMax: float64(size), YMax: float64(size)},
			Bounds: KeyBounds{Min: TileKey{0, 0}, Max: TileKey{0, 0}},
		},
		tiles: map[TileKey]*ElevationTile{{0, 0}: tile},
	}
}

func TestViewshedSingleTileTerminates(t *testing.T) {
	layer := singleTileLayer(9)
	points := []Point6D{{X: 4.5, Y: 4.5, ViewHeight: 2}}
	// the 9-unit extent is read as degrees, so one pixel spans ~111 km;
	// maxDistance must exceed that for any cell beyond the origin to be reached.
	opts := DefaultOptions(1e6)
	opts.TouchedKeys = NewTouchedKeys()

	result, md, err := Viewshed(context.Background(), layer, points, opts)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, layer.md.Bounds, md.Bounds)

	vis := result[TileKey{0, 0}]
	touched := 0
	for _, v := range vis.Data {
		if !math.IsNaN(v) {
			touched++
		}
	}
	assert.Greater(t, touched, 0)
	assert.Contains(t, opts.TouchedKeys.Keys(), TileKey{0, 0})
}

func TestViewshedRejectsInvalidLayer(t *testing.T) {
	layer := &fakeLayer{md: Metadata{}}
	_, _, err := Viewshed(context.Background(), layer, nil, DefaultOptions(10))
	assert.ErrorIs(t, err, ErrInvalidLayer)
}

func TestViewshedRejectsObserverOutOfLayout(t *testing.T) {
	layer := singleTileLayer(4)
	points := []Point6D{{X: 1000, Y: 1000}}
	_, _, err := Viewshed(context.Background(), layer, points, DefaultOptions(10))
	assert.ErrorIs(t, err, ErrObserverOutOfLayout)
}

func TestViewshedDuplicateObserverIndexIsImpossibleBySliceConstruction(t *testing.T) {
	// ResolvePoints derives Index from slice position, so two distinct
	// Point6D entries can never collide; BuildObserverTables only ever
	// rejects a hand-built []PointInfo.
	infos, err := ResolvePoints(singleTileLayer(4).md, []Point6D{{X: 1, Y: 1}, {X: 1, Y: 1}})
	require.NoError(t, err)
	assert.Equal(t, 0, infos[0].Index)
	assert.Equal(t, 1, infos[1].Index)
	_, err = BuildObserverTables(infos)
	assert.NoError(t, err)

	_, err = BuildObserverTables([]PointInfo{{Index: 0}, {Index: 0}})
	assert.ErrorIs(t, err, ErrDuplicateObserverIndex)
}

// TestStepTranslatesEnteringRaysToGeometricEntryPoint drives
// driverState.step directly with a hand-built cross-tile Message so the
// causal observer's host tile (0,-2) is two tiles north of the message's
// target (0,0) — the general multi-tile case, not the single-tile
// degenerate one. It reproduces the same entry geometry as
// TestEntryPixelIsGeometricNotPositional but through the driver's own
// frame-translation path (driver.go's step, not a direct RunKernel call).
func TestStepTranslatesEnteringRaysToGeometricEntryPoint(t *testing.T) {
	layer := singleTileLayer(6)
	state := &driverState{
		reader: layer,
		md:     layer.md,
		layout: layer.md.Layout,
		tables: ObserverTables{
			ByIndex: map[int]PointInfo{
				0: {Index: 0, Key: TileKey{Col: 0, Row: -2}, Col: 2, Row: 2, Fov: Omnidirectional, Alt: TerrainAltitude},
			},
		},
		heights: map[int]float64{0: 5},
		// a small epsilon keeps axisUnit from snapping these near-vertical
		// rays (0.05 rad off south) to exact vertical.
		params: KernelParams{
			Resolution: 1, MaxDistance: 1000, Operator: Or,
			CameraFOV: Omnidirectional, Epsilon: 1e-6, Altitude: TerrainAltitude,
		},
		opts:       Options{},
		elevations: map[TileKey]*ElevationTile{},
		visibility: map[TileKey]*VisibilityTile{},
		pool:       pond.New(2, 0, pond.MinWorkers(2)),
	}
	defer state.pool.StopAndWait()
	// layer.md.Bounds only contains (0,0); that's the message's sole target.
	layer.md.Bounds = KeyBounds{Min: TileKey{0, 0}, Max: TileKey{0, 0}}
	state.md = layer.md

	bus := NewBus()
	msgs := []Message{{
		TargetKey:           TileKey{0, 0},
		CausalObserverIndex: 0,
		Direction:           FromNorth,
		Rays: []Ray{
			{Theta: math.Pi - 0.05, Alpha: math.Inf(-1)},
			{Theta: math.Pi, Alpha: math.Inf(-1)},
			{Theta: math.Pi + 0.05, Alpha: math.Inf(-1)},
		},
	}}

	err := state.step(bus, msgs)
	require.NoError(t, err)

	vis := state.visibility[TileKey{0, 0}]
	require.NotNil(t, vis)
	for _, col := range []int{1, 2, 3} {
		assert.Falsef(t, math.IsNaN(vis.At(col, 0)), "col %d,row 0 should be touched", col)
	}
	assert.True(t, math.IsNaN(vis.At(0, 0)), "col 0,row 0 must not be touched by an index-zipped entry mapping")
}

func TestTouchedKeysAddIsConcurrentSafe(t *testing.T) {
	tk := NewTouchedKeys()
	done := make(chan struct{})
	for i := 0; i < 50; i++ {
		go func(i int) {
			tk.Add(TileKey{Col: i, Row: 0})
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < 50; i++ {
		<-done
	}
	assert.Len(t, tk.Keys(), 50)
}
