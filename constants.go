package hound

import "github.com/behrlich/hound/internal/constants"

// Re-exported tunables, kept as a single source of truth in
// internal/constants so internal packages can use them without importing
// the public API package.
const (
	DefaultQueueLen       = constants.DefaultQueueLen
	MaxDataRequests       = constants.MaxDataRequests
	MaxRecordsPerCall     = constants.MaxRecordsPerCall
	DefaultScratchBufSize = constants.DefaultScratchBufSize
)

// Reference data_ids for the bundled nop/file drivers and their schema
// fixtures. Every id is distinct; the schema loader rejects any document
// that reuses one.
const (
	DataAccel = constants.DataAccel
	DataGyro  = constants.DataGyro
	DataGPS   = constants.DataGPS
	DataOBD   = constants.DataOBD
)
