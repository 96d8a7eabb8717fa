package viewshed

import (
	"encoding/json"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
)

// WriteJson serialises data to a JSON file. The output location can be local
// or an object store such as s3, via TileDB's VFS.
func WriteJson(fileURI string, configURI string, data any) (int, error) {
	config, err := loadTiledbConfig(configURI)
	if err != nil {
		return 0, err
	}
	defer config.Free()

	ctx, err := tiledb.NewContext(config)
	if err != nil {
		return 0, err
	}
	defer ctx.Free()

	vfs, err := tiledb.NewVFS(ctx, config)
	if err != nil {
		return 0, err
	}
	defer vfs.Free()

	// the vfs api auto checks for a file's existence and removes it if we are wanting to write
	stream, err := vfs.Open(fileURI, tiledb.TILEDB_VFS_WRITE)
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	jsn, err := json.MarshalIndent(data, "", "    ")
	if err != nil {
		return 0, err
	}

	bytesWritten, err := stream.Write(jsn)
	if err != nil {
		return 0, err
	}

	return bytesWritten, nil
}

// ReadJson reads the full contents of a JSON file at fileURI via TileDB's
// VFS, the read-side counterpart WriteJson's layer never needed (the
// teacher only ever wrote its JSON sidecars; a viewshed run must also read
// layer metadata back in).
func ReadJson(fileURI string, configURI string) ([]byte, error) {
	config, err := loadTiledbConfig(configURI)
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

	size, err := vfs.FileSize(fileURI)
	if err != nil {
		return nil, err
	}

	stream, err := vfs.Open(fileURI, tiledb.TILEDB_VFS_READ)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	buf := make([]byte, size)
	if _, err := stream.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// jsonUnmarshal is a thin wrapper kept so tiledb.go depends only on this
// file's two exported entry points plus unmarshalling, not on
// encoding/json directly.
func jsonUnmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// JsonDumps constructs a JSON string of the supplied data.
func JsonDumps(data any) (string, error) {
	jsn, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	return string(jsn), nil
}

// JsonIndentDumps constructs a json string of the supplied data using an
// indentation of four spaces.
func JsonIndentDumps(data any) (string, error) {
	jsn, err := json.MarshalIndent(data, "", "    ")
	if err != nil {
		return "", err
	}

	return string(jsn), nil
}
