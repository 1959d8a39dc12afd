package hound

// DataDesc is one entry in the cross product of (driver instance, enabled
// schema descriptor) that GetDataDesc enumerates.
type DataDesc struct {
	DataID  uint32
	DevID   uint32
	Name    string
	Periods []uint64
	Fmt     []FieldFmt
}

// GetDataDesc enumerates every enabled data descriptor across every live
// driver instance.
func (e *Engine) GetDataDesc() []DataDesc {
	raw := e.registry.GetDataDesc()
	out := make([]DataDesc, len(raw))
	for i, d := range raw {
		out[i] = DataDesc{
			DataID:  d.DataID,
			DevID:   d.DevID,
			Name:    d.Name,
			Periods: d.Periods,
			Fmt:     d.Fmt,
		}
	}
	return out
}

// GetDevName looks up the cached device name for devID. ok is false if no
// live instance has that dev_id.
func (e *Engine) GetDevName(devID uint32) (name string, ok bool) {
	return e.registry.GetDevName(devID)
}
