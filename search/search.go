// Package search locates tile arrays belonging to a layer written by
// TiledbLayer (see tiledb.go), searching either a local filesystem or an
// object store through TileDB's VFS bindings.
package search

import (
	"path/filepath"
	"regexp"
	"strconv"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
)

// tileDirPattern matches the "<col>_<row>" tile array naming scheme
// TiledbLayer.tileURI uses.
var tileDirPattern = regexp.MustCompile(`^(-?\d+)_(-?\d+)$`)

// TileKey mirrors the viewshed package's TileKey without importing it,
// keeping this package usable standalone against any TileDB layer tree
// that follows the same naming convention.
type TileKey struct {
	Col int
	Row int
}

// trawl recursively lists every entry under uri, collecting TileKeys for
// any basename matching tileDirPattern.
func trawl(vfs *tiledb.VFS, uri string, keys []TileKey) ([]TileKey, error) {
	dirs, files, err := vfs.List(uri)
	if err != nil {
		return keys, err
	}

	for _, entry := range append(dirs, files...) {
		base := filepath.Base(entry)
		if m := tileDirPattern.FindStringSubmatch(base); m != nil {
			col, errCol := strconv.Atoi(m[1])
			row, errRow := strconv.Atoi(m[2])
			if errCol == nil && errRow == nil {
				keys = append(keys, TileKey{Col: col, Row: row})
			}
		}
	}

	for _, dir := range dirs {
		keys, err = trawl(vfs, dir, keys)
		if err != nil {
			return keys, err
		}
	}

	return keys, nil
}

// FindTiles recursively searches uri for tile arrays and returns every
// TileKey found. configURI selects a TileDB config for object stores
// requiring credentials; an empty string uses the default config.
func FindTiles(uri string, configURI string) ([]TileKey, error) {
	config, err := loadConfig(configURI)
	if err != nil {
		return nil, err
	}
	defer config.Free()

	ctx, err := tiledb.NewContext(config)
	if err != nil {
		return nil, err
	}
	defer ctx.Free()

	vfs, err := tiledb.NewVFS(ctx, config)
	if err != nil {
		return nil, err
	}
	defer vfs.Free()

	return trawl(vfs, uri, make([]TileKey, 0))
}

func loadConfig(configURI string) (*tiledb.Config, error) {
	if configURI == "" {
		return tiledb.NewConfig()
	}
	return tiledb.LoadConfig(configURI)
}
