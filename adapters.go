package viewshed

import (
	"context"
)

// PersistLevel names a storage tier a PartitionedDataset may be asked to
// persist at (spec §4.F). The in-memory substrate (memdataset.go) treats
// every level as "keep in process memory"; a real cluster substrate would
// map these onto its own tiers (memory-only, memory-and-disk, disk-only).
type PersistLevel uint8

const (
	PersistMemoryOnly PersistLevel = iota
	PersistMemoryAndDisk
	PersistDiskOnly
)

// TileEntry pairs a TileKey with its elevation tile and the visibility tile
// accumulated for it so far, as an element type for a PartitionedDataset of
// tiles. driver.go does not use it: the driver keeps its tiles in its own
// maps keyed by TileKey.
type TileEntry struct {
	Key        TileKey
	Elevation  *ElevationTile
	Visibility *VisibilityTile
}

// PartitionedDataset is the abstract cluster-wide collection interface for
// running tile tasks (spec §4.F, §6 "Cluster-wide data-parallel runtime
// primitives"). Map and FlatMap run f concurrently across partitions; the
// returned dataset need not preserve ordering. The Iteration Driver in
// driver.go does not run over this interface; it schedules its tile tasks on
// a pond worker pool directly.
type PartitionedDataset[T any] interface {
	Map(ctx context.Context, f func(T) (T, error)) (PartitionedDataset[T], error)
	FlatMap(ctx context.Context, f func(T) ([]Message, error)) ([]Message, error)
	First() (T, bool)
	Collect() []T
	Persist(level PersistLevel)
	Unpersist()
	Count() int
}

// Broadcast is a one-writer, many-reader read-only snapshot distributed to
// every worker, consistent for the lifetime of one iteration (spec §4.F,
// §9 "Broadcast-table coupling").
type Broadcast[T any] interface {
	Value() T
}

// Accumulator is the generic shape of the Ray Packet Bus contract (spec
// §4.D): E is the element type added by tasks, C is the drained collection
// type. Bus implements Accumulator[Message, []Message].
type Accumulator[E any, C any] interface {
	Add(e E)
	Value() C
	Reset()
}

// LayerReader loads a (TileKey -> Tile) layer plus its metadata from
// storage. Implementations live at the system boundary (spec §1 "Input
// tile I/O" is out of scope for the algorithm itself, but the interface it
// must satisfy is in scope).
type LayerReader interface {
	Metadata() (Metadata, error)
	ReadTile(key TileKey) (*ElevationTile, error)
	ElevationAt(key TileKey, col, row int) (float64, error)
}

// LayerWriter stores a (TileKey -> VisibilityTile) layer plus metadata.
type LayerWriter interface {
	WriteMetadata(md Metadata) error
	WriteTile(key TileKey, tile *VisibilityTile) error
}
