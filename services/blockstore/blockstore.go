// Package blockstore is the block storage driver contract: the stable
// UUID and top-level message shapes a block driver registers under.
// Concrete drivers (and their on-media formats) live with the individual
// platforms; only this surface matters to the kernel core.
package blockstore

import (
	"github.com/google/uuid"

	"github.com/ehrlich-b/kestrel/registry"
)

// Service is the registered driver type.
type Service struct{}

// UUID implements registry.Driver.
func (Service) UUID() uuid.UUID { return registry.BlockStoreUUID }

// Op selects a block operation.
type Op int

const (
	OpRead Op = iota
	OpWrite
	OpFlush
	OpSize
)

// Request is one block operation.
type Request struct {
	Op     Op
	Offset int64
	Data   []byte // write payload
	Len    int    // read length
}

// Response carries the operation result.
type Response struct {
	Data []byte // read payload
	Size int64  // device size for OpSize
}
