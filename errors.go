package viewshed

import (
	"errors"
)

// Domain error kinds (spec §7).

// ErrInvalidLayer indicates the elevation layer's metadata is missing,
// empty, or its key bounds do not form a rectangle.
var ErrInvalidLayer = errors.New("invalid layer")

// ErrObserverOutOfLayout indicates an observer coordinate did not map to a
// single tile inside the layer's layout.
var ErrObserverOutOfLayout = errors.New("observer out of layout")

// ErrDuplicateObserverIndex indicates two PointInfo records passed to
// BuildObserverTables share the same index; the spec requires indices to be
// unique. ResolvePoints never produces such records, since it derives each
// index from the observer's slice position.
var ErrDuplicateObserverIndex = errors.New("duplicate observer index")

// ErrObserverUnknownIndex indicates a causal observer index referenced by a
// message was absent from the broadcast observer tables. This is always a
// programming-error invariant violation, never a user-input error.
var ErrObserverUnknownIndex = errors.New("observer index absent from broadcast tables")

// ErrSubstrateFailure wraps any fault surfaced by the partitioned-dataset or
// broadcast substrate (see adapters.go).
var ErrSubstrateFailure = errors.New("substrate failure")

// ErrTileNotFound indicates a LayerReader/LayerWriter could not locate a
// tile for a given key.
var ErrTileNotFound = errors.New("tile not found")

// ErrMismatchedShape indicates two tiles that are expected to share shape
// (tileCols, tileRows) do not.
var ErrMismatchedShape = errors.New("mismatched tile shape")

// TileDB plumbing errors (adapted from the teacher's tiledb.go; kept under
// the names it used there since tiledb.go's CreateAttr/setStructFieldBuffers
// helpers are carried over near-verbatim).
var ErrAddFilters = errors.New("error adding filter to filter list")
var ErrDims = errors.New("error: dims is > 2")
var ErrDtype = errors.New("error: slice datatype is unexpected")
var ErrSetBuff = errors.New("error setting tiledb buffer")
var ErrFiltList = errors.New("error creating tiledb filter list")
var ErrNewAttr = errors.New("error creating tiledb attribute")
var ErrNewFilt = errors.New("error creating tiledb filter")
var ErrSetFiltList = errors.New("error setting tiledb filter list")
var ErrAddAttr = errors.New("error adding tiledb attribute")
var ErrZstdFilt = errors.New("error creating tiledb zstandard filter")
var ErrCreateSchemaTdb = errors.New("error creating tiledb schema")
var ErrCreateDimTdb = errors.New("error creating tiledb dimension")
var ErrCreateAttributeTdb = errors.New("error creating attribute for tiledb array")
var ErrCreateLayerTdb = errors.New("error creating layer tiledb array")
var ErrWriteLayerTdb = errors.New("error writing layer tiledb array")
