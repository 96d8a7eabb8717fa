package viewshed

import (
	"errors"
	"reflect"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
	stgpsr "github.com/yuin/stagparser"
)

// CreateAttr creates a TileDB attribute plus its compression filter
// pipeline from a struct field's tags, adapted from the teacher's
// tiledb.go of the same name. Tags for tiledb include dtype and ftype;
// CreateAttr reads only dtype and always creates an attribute, so callers
// skip dim fields themselves (observerColumnsSchema skips Index, which it
// adds to the domain separately). Tags for filters name a compression
// filter; only zstd is needed by this module's fixed-level columnar schema.
func CreateAttr(fieldName string, filterDefs []stgpsr.Definition, tiledbDefs map[string]stgpsr.Definition, schema *tiledb.ArraySchema, ctx *tiledb.Context) error {
	def, ok := tiledbDefs["dtype"]
	if !ok {
		return errors.Join(ErrCreateAttributeTdb, errors.New("dtype tag not found"))
	}
	dtypeAttr, _ := def.Attribute("dtype")

	var tdbDtype tiledb.Datatype
	switch dtypeAttr {
	case "int32":
		tdbDtype = tiledb.TILEDB_INT32
	case "int64":
		tdbDtype = tiledb.TILEDB_INT64
	case "float32":
		tdbDtype = tiledb.TILEDB_FLOAT32
	case "float64":
		tdbDtype = tiledb.TILEDB_FLOAT64
	default:
		return errors.Join(ErrDtype, errors.New(dtypeAttr.(string)))
	}

	filterList, err := tiledb.NewFilterList(ctx)
	if err != nil {
		return errors.Join(ErrFiltList, err)
	}
	defer filterList.Free()

	for _, filt := range filterDefs {
		if filt.Name() != "zstd" {
			continue
		}
		level, ok := filt.Attribute("level")
		if !ok {
			return errors.Join(ErrNewFilt, errors.New("zstd level not defined"))
		}
		f, err := ZstdFilter(ctx, int32(level.(int64)))
		if err != nil {
			return errors.Join(ErrNewFilt, err)
		}
		defer f.Free()
		if err := AddFilters(filterList, f); err != nil {
			return err
		}
	}

	attr, err := tiledb.NewAttribute(ctx, fieldName, tdbDtype)
	if err != nil {
		return errors.Join(ErrNewAttr, err)
	}
	defer attr.Free()

	if err := AttachFilters(filterList, attr); err != nil {
		return err
	}

	if err := schema.AddAttributes(attr); err != nil {
		return errors.Join(ErrAddAttr, err)
	}

	return nil
}

// setStructFieldBuffers binds every exported slice field of t (a pointer to
// a columnar struct such as *PointInfoColumns) as a TileDB query buffer,
// adapted from the teacher's tiledb.go helper of the same name but
// simplified to the flat int32/float64 columns this module actually
// persists — no variable-length or time fields.
func setStructFieldBuffers(query *tiledb.Query, t any) error {
	values := reflect.ValueOf(t).Elem()
	types := reflect.TypeOf(t).Elem()

	for i := 0; i < values.NumField(); i++ {
		field := types.Field(i)
		if !field.IsExported() {
			continue
		}
		fld := values.Field(i)

		switch slc := fld.Interface().(type) {
		case []int32:
			if _, err := query.SetDataBuffer(field.Name, slc); err != nil {
				return errors.Join(ErrSetBuff, err, errors.New(field.Name))
			}
		case []float64:
			if _, err := query.SetDataBuffer(field.Name, slc); err != nil {
				return errors.Join(ErrSetBuff, err, errors.New(field.Name))
			}
		default:
			return errors.Join(ErrDtype, errors.New(field.Name))
		}
	}

	return nil
}

// observerColumnsSchema builds a sparse TileDB schema over PointInfoColumns,
// with Index as the single dimension, driven entirely by the struct's
// tiledb/filters tags via stagparser, mirroring how the teacher drives
// CreateAttr from BeamArray's tags in schema.go.
func observerColumnsSchema(ctx *tiledb.Context, n int) (*tiledb.ArraySchema, error) {
	domain, err := tiledb.NewDomain(ctx)
	if err != nil {
		return nil, errors.Join(ErrCreateDimTdb, err)
	}
	defer domain.Free()

	tileExtent := int32(n)
	if tileExtent < 1 {
		tileExtent = 1
	}
	dim, err := tiledb.NewDimension(ctx, "Index", tiledb.TILEDB_INT32, []int32{0, int32(1 << 20)}, tileExtent)
	if err != nil {
		return nil, errors.Join(ErrCreateDimTdb, err)
	}
	defer dim.Free()

	if err := domain.AddDimensions(dim); err != nil {
		return nil, errors.Join(ErrCreateDimTdb, err)
	}

	schema, err := tiledb.NewArraySchema(ctx, tiledb.TILEDB_SPARSE)
	if err != nil {
		return nil, errors.Join(ErrCreateSchemaTdb, err)
	}
	if err := schema.SetDomain(domain); err != nil {
		return nil, errors.Join(ErrCreateSchemaTdb, err)
	}

	cols := PointInfoColumns{}
	filtDefs, _ := stgpsr.ParseStruct(cols, "filters")
	tdbDefs, _ := stgpsr.ParseStruct(cols, "tiledb")

	types := reflect.TypeOf(cols)
	for i := 0; i < types.NumField(); i++ {
		name := types.Field(i).Name
		if name == "Index" {
			continue // the dimension, already added to the domain above
		}
		if err := CreateAttr(name, filtDefs[name], tdbDefs[name], schema, ctx); err != nil {
			return nil, err
		}
	}

	return schema, nil
}

// WriteObserverTable checkpoints a resolved observer set to a TileDB sparse
// array at uri, the Observer Resolver's persistence boundary (spec §4.B):
// a long-running distributed job can re-broadcast {index -> PointInfo}
// from here instead of re-running ResolvePoints after a restart.
func WriteObserverTable(uri, configURI string, infos []PointInfo) error {
	config, err := loadTiledbConfig(configURI)
	if err != nil {
		return err
	}
	defer config.Free()

	ctx, err := tiledb.NewContext(config)
	if err != nil {
		return err
	}
	defer ctx.Free()

	schema, err := observerColumnsSchema(ctx, len(infos))
	if err != nil {
		return errors.Join(ErrCreateLayerTdb, err)
	}
	defer schema.Free()

	array, err := tiledb.NewArray(ctx, uri)
	if err != nil {
		return errors.Join(ErrCreateLayerTdb, err)
	}
	defer array.Free()
	_ = array.Create(schema)

	if err := array.Open(tiledb.TILEDB_WRITE); err != nil {
		return errors.Join(ErrWriteLayerTdb, err)
	}
	defer array.Close()

	query, err := tiledb.NewQuery(ctx, array)
	if err != nil {
		return errors.Join(ErrWriteLayerTdb, err)
	}
	defer query.Free()

	if err := query.SetLayout(tiledb.TILEDB_UNORDERED); err != nil {
		return errors.Join(ErrWriteLayerTdb, err)
	}

	cols := ToColumns(infos)
	if err := setStructFieldBuffers(query, &cols); err != nil {
		return err
	}

	if err := query.Submit(); err != nil {
		return errors.Join(ErrWriteLayerTdb, err)
	}

	return nil
}

// ReadObserverTable reads back a checkpointed observer set written by
// WriteObserverTable.
func ReadObserverTable(uri, configURI string, n int) ([]PointInfo, error) {
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

	array, err := ArrayOpen(ctx, uri, tiledb.TILEDB_READ)
	if err != nil {
		return nil, errors.Join(ErrTileNotFound, err)
	}
	defer array.Free()
	defer array.Close()

	query, err := tiledb.NewQuery(ctx, array)
	if err != nil {
		return nil, err
	}
	defer query.Free()

	if err := query.SetLayout(tiledb.TILEDB_UNORDERED); err != nil {
		return nil, err
	}

	cols := PointInfoColumns{
		Index:      make([]int32, n),
		KeyCol:     make([]int32, n),
		KeyRow:     make([]int32, n),
		Col:        make([]int32, n),
		Row:        make([]int32, n),
		ViewHeight: make([]float64, n),
		Angle:      make([]float64, n),
		Fov:        make([]float64, n),
		Alt:        make([]float64, n),
	}
	if err := setStructFieldBuffers(query, &cols); err != nil {
		return nil, err
	}

	if err := query.Submit(); err != nil {
		return nil, err
	}

	return FromColumns(cols), nil
}
