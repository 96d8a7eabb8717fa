package viewshed

import (
	"context"
	"errors"
	"log"
	"runtime"
	"sync"

	"github.com/alitto/pond"
	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
)

const defaultCellType = "float64-nan"

// Options carries the scalar knobs of the Input API (spec §6):
// viewshed(elevation, points, maxDistance, curvature=true, operator=Or,
// epsilon=1/pi, touchedKeys?=null).
type Options struct {
	MaxDistance     float64
	Curvature       bool
	Operator        Operator
	Epsilon         float64
	Altitude        float64 // TerrainAltitude sentinel by default
	CameraDirection float64
	CameraFOV       float64 // Omnidirectional by default
	TouchedKeys     *TouchedKeys
	Workers         int // 0 means runtime.NumCPU()*2, matching the teacher's pool sizing
}

// DefaultOptions returns the spec's documented defaults, leaving
// MaxDistance at the caller's responsibility (spec §6 has no default for
// it).
func DefaultOptions(maxDistance float64) Options {
	return Options{
		MaxDistance:     maxDistance,
		Curvature:       true,
		Operator:        Or,
		Epsilon:         DefaultEpsilon,
		Altitude:        TerrainAltitude,
		CameraDirection: 0,
		CameraFOV:       Omnidirectional,
	}
}

// TouchedKeys is the thread-safe progress-monitoring set described in spec
// §4.E: "A caller-provided optional touchedKeys set accumulates every tile
// key ever addressed".
type TouchedKeys struct {
	mu   sync.Mutex
	keys map[TileKey]struct{}
}

// NewTouchedKeys constructs an empty TouchedKeys set.
func NewTouchedKeys() *TouchedKeys {
	return &TouchedKeys{keys: make(map[TileKey]struct{})}
}

// Add records k as touched.
func (t *TouchedKeys) Add(k TileKey) {
	t.mu.Lock()
	t.keys[k] = struct{}{}
	t.mu.Unlock()
}

// Keys returns every key recorded so far.
func (t *TouchedKeys) Keys() []TileKey {
	t.mu.Lock()
	defer t.mu.Unlock()
	return lo.Keys(t.keys)
}

// driverState is the mutable per-call state the Iteration Driver threads
// through seed, loop and finalize.
type driverState struct {
	reader  LayerReader
	md      Metadata
	layout  Layout
	tables  ObserverTables
	heights map[int]float64
	params  KernelParams
	opts    Options

	mu         sync.Mutex
	elevations map[TileKey]*ElevationTile
	visibility map[TileKey]*VisibilityTile

	pool *pond.WorkerPool
}

// Viewshed runs the full iterative distributed viewshed computation (spec
// §4.E) over elevation, producing a visibility layer of identical shape.
// It is the Input API's `viewshed(...)` entry point (spec §6).
func Viewshed(ctx context.Context, elevation LayerReader, points []Point6D, opts Options) (map[TileKey]*VisibilityTile, Metadata, error) {
	md, err := elevation.Metadata()
	if err != nil {
		return nil, Metadata{}, err
	}
	if !md.Bounds.Valid() {
		return nil, Metadata{}, ErrInvalidLayer
	}

	resolution, err := Resolution(md)
	if err != nil {
		return nil, Metadata{}, err
	}

	infos, err := ResolvePoints(md, points)
	if err != nil {
		return nil, Metadata{}, err
	}

	heights, err := EffectiveHeights(elevation, infos)
	if err != nil {
		return nil, Metadata{}, err
	}

	tables, err := BuildObserverTables(infos)
	if err != nil {
		return nil, Metadata{}, err
	}

	if opts.Epsilon == 0 {
		opts.Epsilon = DefaultEpsilon
	}
	if opts.CameraFOV == 0 {
		opts.CameraFOV = Omnidirectional
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU() * 2
	}

	state := &driverState{
		reader:  elevation,
		md:      md,
		layout:  md.Layout,
		tables:  tables,
		heights: heights,
		opts:    opts,
		params: KernelParams{
			Resolution:      resolution,
			MaxDistance:     opts.MaxDistance,
			Curvature:       opts.Curvature,
			Altitude:        opts.Altitude,
			Operator:        opts.Operator,
			CameraDirection: opts.CameraDirection,
			CameraFOV:       opts.CameraFOV,
			Epsilon:         opts.Epsilon,
		},
		elevations: make(map[TileKey]*ElevationTile),
		visibility: make(map[TileKey]*VisibilityTile),
		pool:       pond.New(workers, 0, pond.MinWorkers(workers)),
	}
	defer state.pool.StopAndWait()

	bus := NewBus()

	if err := state.seed(bus); err != nil {
		return nil, Metadata{}, err
	}

	iteration := 0
	for {
		msgs := bus.Value()
		bus.Reset()
		if len(msgs) == 0 {
			break
		}
		iteration++
		log.Printf("iteration %d: draining %s messages", iteration, humanize.Comma(int64(len(msgs))))

		if err := state.step(bus, msgs); err != nil {
			return nil, Metadata{}, err
		}
	}

	return state.visibility, Metadata{
		CellType: defaultCellType,
		Layout:   md.Layout,
		Extent:   md.Extent,
		Crs:      md.Crs,
		Bounds:   md.Bounds,
	}, nil
}

// tile lazily loads and caches the elevation tile and its (possibly brand
// new) visibility tile for key.
func (s *driverState) tile(key TileKey) (*ElevationTile, *VisibilityTile, error) {
	s.mu.Lock()
	elev, hasElev := s.elevations[key]
	vis, hasVis := s.visibility[key]
	s.mu.Unlock()

	if !hasElev {
		var err error
		elev, err = s.reader.ReadTile(key)
		if err != nil {
			return nil, nil, err
		}
		s.mu.Lock()
		s.elevations[key] = elev
		s.mu.Unlock()
	}
	if !hasVis {
		vis = NewVisibilityTile(s.layout.TileCols, s.layout.TileRows)
		s.mu.Lock()
		s.visibility[key] = vis
		s.mu.Unlock()
	}
	return elev, vis, nil
}

// seed bootstraps every tile that hosts at least one observer, running the
// kernel with direction=FromInside (spec §4.E "seed").
func (s *driverState) seed(bus *Bus) error {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var seedErr error

	for key, infos := range s.tables.ByTile {
		key, infos := key, infos
		wg.Add(1)
		s.pool.Submit(func() {
			defer wg.Done()

			elev, vis, err := s.tile(key)
			if err != nil {
				mu.Lock()
				if seedErr == nil {
					seedErr = err
				}
				mu.Unlock()
				return
			}
			if s.opts.TouchedKeys != nil {
				s.opts.TouchedKeys.Add(key)
			}

			// ascending index order within a tile task (spec §4.E "Tie-breaking").
			ordered := append([]PointInfo(nil), infos...)
			sortPointInfoByIndex(ordered)

			for _, info := range ordered {
				height := s.heights[info.Index]
				params := s.params
				params.CameraDirection = info.Angle
				params.CameraFOV = info.Fov
				params.Altitude = info.Alt

				RunKernel(elev, vis, info.Col, info.Row, height, FromInside, nil, params, func(bundle Bundle) {
					emitBundle(bus, key, info.Index, bundle)
				})
			}
		})
	}
	wg.Wait()

	if seedErr != nil {
		return errors.Join(ErrSubstrateFailure, seedErr)
	}
	return nil
}

// step processes one iteration's drained messages: groups them by target
// tile, translates each causal observer's origin into the target tile's
// local frame, and re-runs the kernel (spec §4.E "loop").
func (s *driverState) step(bus *Bus, msgs []Message) error {
	byTarget := lo.GroupBy(msgs, func(m Message) TileKey { return m.TargetKey })

	var wg sync.WaitGroup
	var mu sync.Mutex
	var stepErr error

	for key, group := range byTarget {
		key, group := key, group
		wg.Add(1)
		s.pool.Submit(func() {
			defer wg.Done()

			if s.opts.TouchedKeys != nil {
				s.opts.TouchedKeys.Add(key)
			}

			if !s.md.Bounds.Contains(key) {
				// A ray that would leave the covered extent simply never
				// arrives anywhere; it is dropped rather than erroring,
				// since maxDistance already bounds ray life and the spec's
				// Containment invariant only constrains in-bounds targets.
				return
			}

			elev, vis, err := s.tile(key)
			if err != nil {
				mu.Lock()
				if stepErr == nil {
					stepErr = err
				}
				mu.Unlock()
				return
			}

			byObserver := lo.GroupBy(group, func(m Message) int { return m.CausalObserverIndex })
			indices := lo.Keys(byObserver)
			sortInts(indices)

			for _, idx := range indices {
				info, ok := s.tables.ByIndex[idx]
				if !ok {
					mu.Lock()
					if stepErr == nil {
						stepErr = ErrObserverUnknownIndex
					}
					mu.Unlock()
					return
				}

				startCol := (info.Key.Col-key.Col)*s.layout.TileCols + info.Col
				startRow := (info.Key.Row-key.Row)*s.layout.TileRows + info.Row
				height := s.heights[idx]

				params := s.params
				params.CameraDirection = info.Angle
				params.CameraFOV = info.Fov
				params.Altitude = info.Alt

				for _, dir := range fixedDirectionOrder {
					var rays []Ray
					for _, m := range byObserver[idx] {
						if m.Direction == dir {
							rays = append(rays, m.Rays...)
						}
					}
					if len(rays) == 0 {
						continue
					}
					sortRaysByTheta(rays)

					RunKernel(elev, vis, startCol, startRow, height, dir, rays, params, func(bundle Bundle) {
						emitBundle(bus, key, idx, bundle)
					})
				}
			}
		})
	}
	wg.Wait()

	if stepErr != nil {
		return errors.Join(ErrSubstrateFailure, stepErr)
	}
	return nil
}

// fixedDirectionOrder is the spec's required N, E, S, W processing order
// within one observer (spec §4.E "Tie-breaking and ordering").
var fixedDirectionOrder = []Direction{FromNorth, FromEast, FromSouth, FromWest}

// emitBundle turns one kernel invocation's outgoing Bundle into Messages
// addressed to the relevant neighbor tiles and adds them to bus. bundle's
// keys are already entry-direction tags for the neighbor (kernel.go's
// exitTag); exitTag is its own inverse, so applying it again recovers the
// edge of the current tile the ray left through, i.e. which neighbor to
// address.
func emitBundle(bus *Bus, key TileKey, observerIndex int, bundle Bundle) {
	for dir, rays := range bundle {
		if len(rays) == 0 {
			continue
		}
		bus.Add(Message{
			TargetKey:           key.Neighbor(exitTag(dir)),
			CausalObserverIndex: observerIndex,
			Direction:           dir,
			Rays:                rays,
		})
	}
}

func sortPointInfoByIndex(infos []PointInfo) {
	for i := 1; i < len(infos); i++ {
		for j := i; j > 0 && infos[j].Index < infos[j-1].Index; j-- {
			infos[j], infos[j-1] = infos[j-1], infos[j]
		}
	}
}

func sortInts(xs []int) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j] < xs[j-1]; j-- {
			xs[j], xs[j-1] = xs[j-1], xs[j]
		}
	}
}

func sortRaysByTheta(rays []Ray) {
	for i := 1; i < len(rays); i++ {
		for j := i; j > 0 && rays[j].Theta < rays[j-1].Theta; j-- {
			rays[j], rays[j-1] = rays[j-1], rays[j]
		}
	}
}
