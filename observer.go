package viewshed

import (
	"github.com/samber/lo"
)

// ElevationSource is the minimal read access the Observer Resolver needs
// from the elevation layer: looking up a single pixel's elevation without
// materialising a whole tile. A LayerReader satisfies this trivially.
type ElevationSource interface {
	ElevationAt(key TileKey, col, row int) (float64, error)
}

// ResolvePoints elaborates a slice of wire-format Point6D observers into
// PointInfo records (spec §4.B step 1-3). Observer index i is its position
// in points. Duplicate index is impossible here by construction (index is
// the slice position), but ResolvePoints still returns
// ErrObserverOutOfLayout for any point landing outside md's bounds.
func ResolvePoints(md Metadata, points []Point6D) ([]PointInfo, error) {
	infos := make([]PointInfo, len(points))
	for i, p := range points {
		key, col, row, err := md.MapTransform(p.X, p.Y)
		if err != nil {
			return nil, err
		}
		infos[i] = PointInfo{
			Index:      i,
			Key:        key,
			Col:        col,
			Row:        row,
			ViewHeight: p.ViewHeight,
			Angle:      p.Angle,
			Fov:        p.FieldOfView,
			Alt:        p.Altitude,
		}
	}
	return infos, nil
}

// EffectiveHeights computes, for each resolved observer, the absolute
// height above the ellipsoid/geoid used by the R2 kernel as the sighting
// origin's elevation (spec §4.B): ground elevation plus ViewHeight when
// ViewHeight is non-negative, or the absolute value of ViewHeight when it
// is negative.
//
// The elevation lookup is distributed in the general case (tiles live
// across many partitions); ElevationSource abstracts that away so the
// resulting {index -> height} map can be built uniformly whether the
// source is a local in-memory dataset or a broadcast-backed reader.
func EffectiveHeights(src ElevationSource, infos []PointInfo) (map[int]float64, error) {
	heights := make(map[int]float64, len(infos))
	for _, info := range infos {
		e, err := src.ElevationAt(info.Key, info.Col, info.Row)
		if err != nil {
			return nil, err
		}
		if info.ViewHeight >= 0 {
			heights[info.Index] = e + info.ViewHeight
		} else {
			heights[info.Index] = -info.ViewHeight
		}
	}
	return heights, nil
}

// ObserverTables holds the two broadcast-ready lookup tables built from a
// resolved observer set (spec §4.B): observers grouped by host tile, and
// observers keyed by their stable index.
type ObserverTables struct {
	ByTile  map[TileKey][]PointInfo
	ByIndex map[int]PointInfo
}

// BuildObserverTables groups infos by host tile and indexes them by their
// Index field, failing with ErrDuplicateObserverIndex if two observers
// share an index (spec §9 Open Question: the spec requires uniqueness).
func BuildObserverTables(infos []PointInfo) (ObserverTables, error) {
	byIndex := make(map[int]PointInfo, len(infos))
	for _, info := range infos {
		if _, exists := byIndex[info.Index]; exists {
			return ObserverTables{}, ErrDuplicateObserverIndex
		}
		byIndex[info.Index] = info
	}

	byTile := lo.GroupBy(infos, func(info PointInfo) TileKey {
		return info.Key
	})

	return ObserverTables{ByTile: byTile, ByIndex: byIndex}, nil
}
