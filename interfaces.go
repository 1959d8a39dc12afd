package hound

import (
	"github.com/behrlich/hound/internal/interfaces"
	"github.com/behrlich/hound/internal/schema"
)

// Ops is the contract every driver implements. A driver declares itself
// push by also implementing ParseOps, pull by implementing PollOps;
// exactly one of the two must hold.
type Ops = interfaces.Ops

// ParseOps is implemented by push drivers.
type ParseOps = interfaces.ParseOps

// PollOps is implemented by pull drivers.
type PollOps = interfaces.PollOps

// Alloc is the symmetric allocate/free pair a driver exposes for its
// record payloads.
type Alloc = interfaces.Alloc

// RecordOut is one record a driver emits from Parse or Poll.
type RecordOut = interfaces.RecordOut

// DataRequest is one (data_id, period) pair a context subscribes to.
type DataRequest = interfaces.DataRequest

// DriverDatadesc pairs a parsed schema descriptor with a driver's
// enable/period decision for it.
type DriverDatadesc = interfaces.DriverDatadesc

// Kind is a driver's derived push/pull classification.
type Kind = interfaces.Kind

const (
	KindPush = interfaces.KindPush
	KindPull = interfaces.KindPull
)

// Desc, FieldFmt, Unit and Type mirror the YAML schema vocabulary so a
// driver never needs to import internal/schema directly.
type (
	Desc     = schema.Desc
	FieldFmt = schema.FieldFmt
	Unit     = schema.Unit
	Type     = schema.Type
)

const (
	UnitDegree    = schema.UnitDegree
	UnitKelvin    = schema.UnitKelvin
	UnitKgPerSec  = schema.UnitKgPerSec
	UnitMeter     = schema.UnitMeter
	UnitMeterPerS = schema.UnitMeterPerS
	UnitAccel     = schema.UnitAccel
	UnitNone      = schema.UnitNone
	UnitPascal    = schema.UnitPascal
	UnitPercent   = schema.UnitPercent
	UnitRadian    = schema.UnitRadian
	UnitRadPerS   = schema.UnitRadPerS
	UnitNanosec   = schema.UnitNanosec
)

const (
	TypeF32   = schema.TypeF32
	TypeF64   = schema.TypeF64
	TypeI8    = schema.TypeI8
	TypeU8    = schema.TypeU8
	TypeI16   = schema.TypeI16
	TypeU16   = schema.TypeU16
	TypeI32   = schema.TypeI32
	TypeU32   = schema.TypeU32
	TypeI64   = schema.TypeI64
	TypeU64   = schema.TypeU64
	TypeBytes = schema.TypeBytes
)
