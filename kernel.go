package viewshed

import (
	"math"
)

// KernelParams carries the scalar parameters shared by every kernel
// invocation in one viewshed() call (spec §4.C, §6).
type KernelParams struct {
	Resolution      float64 // metres per pixel, from geodesy.go's Resolution()
	MaxDistance     float64
	Curvature       bool
	Altitude        float64 // TerrainAltitude sentinel means "sight to terrain"
	Operator        Operator
	CameraDirection float64 // radians; ignored when CameraFOV is Omnidirectional
	CameraFOV       float64 // full angle in radians (rays within CameraDirection +/- CameraFOV/2); Omnidirectional (<0) disables the filter
	Epsilon         float64
}

// Bundle groups outgoing rays by the direction tag under which the
// receiving neighbor tile should treat them as entering rays (spec §4.C
// Emission: "tagged by the side they enter next").
type Bundle map[Direction][]Ray

// exitTag maps the tile edge a ray left through to the Direction tag the
// neighbor receiving it should use, matching spec §8's round-trip example:
// a ray exiting east enters the neighbor FromWest.
func exitTag(edge Direction) Direction {
	switch edge {
	case FromNorth:
		return FromSouth
	case FromSouth:
		return FromNorth
	case FromEast:
		return FromWest
	case FromWest:
		return FromEast
	default:
		return edge
	}
}

// axisUnit returns the (east, south) unit-step components of a ray fired at
// azimuth theta (radians clockwise from north), snapping near-cardinal
// angles to exact 0/±1 components within params.Epsilon to avoid
// trigonometric instability at the cardinal directions (spec §4.C
// "Horizontal/vertical epsilon").
func axisUnit(theta, epsilon float64) (east, south float64) {
	east = math.Sin(theta)
	south = -math.Cos(theta)

	if math.Abs(east) < epsilon {
		east = 0
	}
	if math.Abs(south) < epsilon {
		south = 0
	}
	return east, south
}

// withinFOV reports whether theta lies within cameraDirection +/- fov/2,
// treating fov < 0 as omnidirectional (spec §9 Open Question resolution).
func withinFOV(theta, cameraDirection, fov float64) bool {
	if fov < 0 {
		return true
	}
	diff := math.Mod(theta-cameraDirection, 2*math.Pi)
	if diff > math.Pi {
		diff -= 2 * math.Pi
	}
	if diff < -math.Pi {
		diff += 2 * math.Pi
	}
	return math.Abs(diff) <= fov/2
}

// pixelPos is a plain (col,row) cell address.
type pixelPos struct {
	col, row int
}

// edgePixel is a perimeter cell paired with the exit-tag direction a ray
// leaving the tile through it would carry.
type edgePixel struct {
	pixelPos
	edge Direction
}

// perimeterPixels enumerates every cell on the four edges of a cols x rows
// tile, paired with the exit-tag direction a ray leaving through that cell
// would carry (spec §4.C step 1: "target pixel on the tile boundary").
func perimeterPixels(cols, rows int) []edgePixel {
	pixels := make([]edgePixel, 0, 2*cols+2*rows)

	for c := 0; c < cols; c++ {
		pixels = append(pixels, edgePixel{pixelPos{c, 0}, FromNorth})
		pixels = append(pixels, edgePixel{pixelPos{c, rows - 1}, FromSouth})
	}
	for r := 1; r < rows-1; r++ {
		pixels = append(pixels, edgePixel{pixelPos{0, r}, FromWest})
		pixels = append(pixels, edgePixel{pixelPos{cols - 1, r}, FromEast})
	}
	return pixels
}

// clampInt confines v to [lo,hi], guarding the rounding in entryPixel
// against a ray whose theta puts its edge intersection a fraction of a
// pixel outside the tile it is, by construction, entering.
func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// entryPixel finds the cell where a ray of azimuth theta, anchored at
// (startCol,startRow) in this tile's local frame, crosses the edge dir
// enters through. It intersects the ray's line equation with that edge's
// fixed coordinate (row 0/rows-1 for north/south, col 0/cols-1 for
// east/west) using the same dominant-axis line equation sweepRay steps
// along, rather than assuming entering rays line up one-to-one with the
// edge's pixels in index order (spec §4.C step 1's boundary-pixel
// selection is geometric, not positional).
func entryPixel(dir Direction, startCol, startRow, theta, epsilon float64, cols, rows int) pixelPos {
	east, south := axisUnit(theta, epsilon)

	switch dir {
	case FromNorth, FromSouth:
		row := 0
		if dir == FromSouth {
			row = rows - 1
		}
		col := startCol
		if south != 0 {
			col = startCol + (float64(row)-startRow)*(east/south)
		}
		return pixelPos{clampInt(int(math.Round(col)), 0, cols-1), row}
	case FromWest, FromEast:
		col := 0
		if dir == FromEast {
			col = cols - 1
		}
		row := startRow
		if east != 0 {
			row = startRow + (float64(col)-startCol)*(south/east)
		}
		return pixelPos{col, clampInt(int(math.Round(row)), 0, rows-1)}
	default:
		return pixelPos{clampInt(int(math.Round(startCol)), 0, cols-1), clampInt(int(math.Round(startRow)), 0, rows-1)}
	}
}

// sweepOutcome is the result of tracing one ray across the tile.
type sweepOutcome struct {
	exited bool
	edge   Direction
	ray    Ray
}

// sweepRay traces a single straight ray of azimuth theta, anchored at the
// true observer origin (originCol, originRow) in this tile's local frame
// (which may lie far outside [0,cols)x[0,rows)), starting at the concrete
// cell (col,row) already inside the tile. It walks cell by cell along the
// dominant axis (spec §4.C step 1: "stepping in the cell the line last
// touches per column (or row) increment"), updating vis in place and
// tracking the running maximum tangent alphaMax, until the ray leaves the
// tile bounds or its cumulative metric distance reaches params.MaxDistance.
func sweepRay(
	elevation *ElevationTile,
	vis *VisibilityTile,
	theta float64,
	originCol, originRow float64,
	col, row int,
	alphaMax float64,
	observerHeight float64,
	params KernelParams,
) sweepOutcome {
	east, south := axisUnit(theta, params.Epsilon)
	cols, rows := elevation.Cols, elevation.Rows

	// Dominant axis: whichever component is larger drives integer stepping;
	// the other coordinate is derived from the line equation each step.
	colDominant := math.Abs(east) >= math.Abs(south)

	var colStep, rowStep int
	switch {
	case colDominant && east >= 0:
		colStep = 1
	case colDominant:
		colStep = -1
	case !colDominant && south >= 0:
		rowStep = 1
	case !colDominant:
		rowStep = -1
	}

	fcol, frow := float64(col), float64(row)

	for {
		if col < 0 || col >= cols || row < 0 || row >= rows {
			var edge Direction
			switch {
			case col < 0:
				edge = FromWest
			case col >= cols:
				edge = FromEast
			case row < 0:
				edge = FromNorth
			default:
				edge = FromSouth
			}
			return sweepOutcome{
				exited: true,
				edge:   edge,
				ray:    Ray{Theta: theta, Alpha: alphaMax, Metric0: params.Resolution * math.Hypot(fcol-originCol, frow-originRow)},
			}
		}

		dx := fcol - originCol
		dy := frow - originRow
		horiz := params.Resolution * math.Hypot(dx, dy)

		if horiz > 0 {
			if horiz >= params.MaxDistance {
				return sweepOutcome{exited: false}
			}

			targetHeight := elevation.At(col, row)
			if !math.IsInf(params.Altitude, -1) {
				targetHeight = params.Altitude
			}
			drop := 0.0
			if params.Curvature {
				drop = CurvatureDrop(horiz)
			}

			alphaCur := (targetHeight - drop - observerHeight) / horiz

			verdict := 0.0
			if alphaCur >= alphaMax-params.Epsilon {
				verdict = 1.0
			}
			vis.Apply(col, row, params.Operator, verdict)

			if alphaCur > alphaMax {
				alphaMax = alphaCur
			}
		}

		// advance to the next cell along the dominant axis
		if colDominant {
			col += colStep
			fcol = float64(col)
			if east != 0 {
				frow = originRow + (fcol-originCol)*(south/east)
			}
			row = int(math.Round(frow))
		} else {
			row += rowStep
			frow = float64(row)
			if south != 0 {
				fcol = originCol + (frow-originRow)*(east/south)
			}
			col = int(math.Round(fcol))
		}
	}
}

// RunKernel executes the single-tile R2 sweep (spec §4.C). It shoots rays
// from (startCol,startRow) when dir == FromInside, covering the whole tile,
// or continues the caller-supplied entering rays otherwise, updating vis in
// place and invoking emit at most once with every outgoing ray bundled by
// the direction tag its receiving neighbor should use.
//
// startCol/startRow may lie outside [0,cols)x[0,rows) when the causal
// observer lives in a neighboring tile (spec §9 "Per-observer frame
// translation"); RunKernel accepts that and traces only the portion of
// each ray intersecting this tile.
func RunKernel(
	elevation *ElevationTile,
	vis *VisibilityTile,
	startCol, startRow int,
	observerHeight float64,
	dir Direction,
	entering []Ray,
	params KernelParams,
	emit func(Bundle),
) {
	bundle := make(Bundle)
	addOutgoing := func(edge Direction, ray Ray) {
		tag := exitTag(edge)
		bundle[tag] = append(bundle[tag], ray)
	}

	if dir == FromInside && elevation.InBounds(startCol, startRow) {
		for _, px := range perimeterPixels(elevation.Cols, elevation.Rows) {
			theta := math.Atan2(float64(px.col-startCol), float64(startRow-px.row))
			if theta < 0 {
				theta += 2 * math.Pi
			}
			if !withinFOV(theta, params.CameraDirection, params.CameraFOV) {
				continue
			}

			out := sweepRay(elevation, vis, theta, float64(startCol), float64(startRow), startCol, startRow, math.Inf(-1), observerHeight, params)
			if out.exited {
				addOutgoing(out.edge, out.ray)
			}
		}
	} else if dir != FromInside {
		for _, ray := range entering {
			if !withinFOV(ray.Theta, params.CameraDirection, params.CameraFOV) {
				continue
			}
			px := entryPixel(dir, float64(startCol), float64(startRow), ray.Theta, params.Epsilon, elevation.Cols, elevation.Rows)
			out := sweepRay(elevation, vis, ray.Theta, float64(startCol), float64(startRow), px.col, px.row, ray.Alpha, observerHeight, params)
			if out.exited {
				addOutgoing(out.edge, out.ray)
			}
		}
	}

	emit(bundle)
}
