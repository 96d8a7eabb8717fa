package viewshed

import (
	"encoding/binary"
	"io"
	"math"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
)

// FlatLayerReader is a LayerReader over a single flat, row-major, big-endian
// float64 raster band covering the whole layer (an exported .bil-style DEM,
// as opposed to TiledbLayer's per-tile dense arrays). It reads through
// Stream/GenericStream (reader.go) so the same tile-extraction code runs
// whether the band lives on local disk, an object store TileDB's VFS
// understands, or is small enough to pull entirely into memory first.
type FlatLayerReader struct {
	ctx      *tiledb.Context
	config   *tiledb.Config
	vfs      *tiledb.VFS
	uri      string
	md       Metadata
	inMemory bool
}

// OpenFlatLayer opens the raster band at uri, described by md (Layout gives
// the tile grid and TotalCols/TotalRows the full band's shape). inMemory
// selects GenericStream's eager-load path: each ReadTile call reads the whole
// band into memory in one read and takes the tile's rows from that buffer
// instead of seeking row by row through VFS. The buffer is not kept between
// ReadTile calls.
func OpenFlatLayer(uri, configURI string, md Metadata, inMemory bool) (*FlatLayerReader, error) {
	if !md.Bounds.Valid() {
		return nil, ErrInvalidLayer
	}

	config, err := loadTiledbConfig(configURI)
	if err != nil {
		return nil, err
	}
	ctx, err := tiledb.NewContext(config)
	if err != nil {
		config.Free()
		return nil, err
	}
	vfs, err := tiledb.NewVFS(ctx, config)
	if err != nil {
		ctx.Free()
		config.Free()
		return nil, err
	}

	return &FlatLayerReader{ctx: ctx, config: config, vfs: vfs, uri: uri, md: md, inMemory: inMemory}, nil
}

// Close releases the underlying TileDB handles.
func (l *FlatLayerReader) Close() {
	l.vfs.Free()
	l.ctx.Free()
	l.config.Free()
}

// Metadata implements LayerReader.
func (l *FlatLayerReader) Metadata() (Metadata, error) {
	if !l.md.Bounds.Valid() {
		return Metadata{}, ErrInvalidLayer
	}
	return l.md, nil
}

// ReadTile implements LayerReader, seeking row by row into the flat band so
// only the tile's own rows are pulled off the stream rather than the whole
// band's width.
func (l *FlatLayerReader) ReadTile(key TileKey) (*ElevationTile, error) {
	if !l.md.Bounds.Contains(key) {
		return nil, ErrTileNotFound
	}

	cols, rows := l.md.Layout.TileCols, l.md.Layout.TileRows
	totalCols := l.md.Layout.TotalCols
	originCol := key.Col * cols
	originRow := key.Row * rows

	fh, err := l.vfs.Open(l.uri, tiledb.TILEDB_VFS_READ)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	size, err := l.vfs.FileSize(l.uri)
	if err != nil {
		return nil, err
	}

	stream, err := GenericStream(fh, uint64(size), l.inMemory)
	if err != nil {
		return nil, err
	}

	data := make([]float64, cols*rows)
	rowBuf := make([]byte, cols*8)
	for r := 0; r < rows; r++ {
		offset := int64(((originRow+r)*totalCols + originCol) * 8)
		if _, err := stream.Seek(offset, io.SeekStart); err != nil {
			return nil, err
		}
		if _, err := io.ReadFull(stream, rowBuf); err != nil {
			return nil, err
		}
		for c := 0; c < cols; c++ {
			bits := binary.BigEndian.Uint64(rowBuf[c*8:])
			data[r*cols+c] = math.Float64frombits(bits)
		}
	}

	return &ElevationTile{Cols: cols, Rows: rows, Data: data}, nil
}

// ElevationAt implements LayerReader.
func (l *FlatLayerReader) ElevationAt(key TileKey, col, row int) (float64, error) {
	tile, err := l.ReadTile(key)
	if err != nil {
		return 0, err
	}
	if !tile.InBounds(col, row) {
		return 0, ErrObserverOutOfLayout
	}
	return tile.At(col, row), nil
}
