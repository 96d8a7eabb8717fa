package viewshed

import (
	"math"
)

// EquatorialCircumference is 2*pi*EarthRadius metres, used to approximate
// the ground distance spanned by one degree of longitude at the equator.
// See https://en.wikipedia.org/wiki/Earth%27s_circumference for background.
const EquatorialCircumference = 2.0 * math.Pi * EarthRadius

// Resolution computes the meters-per-pixel scalar used uniformly by the R2
// kernel (spec §4.A). It picks any one TileKey from the layer's bounds,
// measures that tile's extent width, approximates it in metres via the
// equatorial circumference, and divides by the tile's column count.
//
// The design assumes a near-equidistant layout and does not re-estimate
// per tile; callers with layers spanning large latitude ranges should treat
// the result as a single representative scale, not a per-tile exact value.
func Resolution(md Metadata) (float64, error) {
	if !md.Bounds.Valid() {
		return 0, ErrInvalidLayer
	}
	if md.Layout.TileCols <= 0 || md.Layout.TileRows <= 0 {
		return 0, ErrInvalidLayer
	}

	ext := md.TileExtent(md.Bounds.Min)
	degWidth := ext.Width()
	if degWidth <= 0 {
		return 0, ErrInvalidLayer
	}

	metresWidth := degWidth / 360.0 * EquatorialCircumference
	return metresWidth / float64(md.Layout.TileCols), nil
}

// CurvatureDrop returns the Earth-curvature correction, in metres, for a
// planimetric distance d (metres): d^2 / (2*R).
func CurvatureDrop(d float64) float64 {
	return (d * d) / (2.0 * EarthRadius)
}
