// Package registry implements the two mutex-protected maps at the heart
// of driver lifecycle: a name→factory table populated once at startup,
// and a path→instance table mutated as drivers are created and
// destroyed. It has no notion of the public error-code enumeration; the
// engine package translates these sentinel errors into the closed set
// callers see.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/behrlich/hound/internal/interfaces"
	"github.com/behrlich/hound/internal/logging"
	"github.com/behrlich/hound/internal/schema"
)

var (
	ErrAlreadyRegistered = errors.New("registry: driver name already registered")
	ErrNotRegistered     = errors.New("registry: driver name not registered")
	ErrAlreadyPresent    = errors.New("registry: path already has an instance")
	ErrInUse             = errors.New("registry: driver has active subscriptions")
	ErrDataIDNotFound    = errors.New("registry: no driver enables this data_id")
	ErrConflicting       = errors.New("registry: more than one driver enables this data_id")
	ErrInvalidDatadesc   = errors.New("registry: driver returned an invalid datadesc")
	ErrNotFound          = errors.New("registry: no instance at this path")
)

// Factory builds a fresh Ops for one driver instance. Registered once per
// driver name before any context is created.
type Factory func() interfaces.Ops

// Registry is the driver name table plus the live instance table.
type Registry struct {
	loop        interfaces.IOLoop
	log         *logging.Logger
	onSubChange func(path string, unionSize int)

	mu    sync.Mutex
	names map[string]Factory
	insts map[string]*Instance

	nextDevID uint32
}

// New creates a Registry that mutates loop's fd/queue set as subscriptions
// change. log defaults to logging.Default() and tags every line with the
// instance's path via Logger.WithDriver.
func New(loop interfaces.IOLoop, log *logging.Logger) *Registry {
	if log == nil {
		log = logging.Default()
	}
	return &Registry{
		loop:  loop,
		log:   log,
		names: make(map[string]Factory),
		insts: make(map[string]*Instance),
	}
}

// SetSubscriptionObserver installs a callback invoked with a driver's
// path and the size of its new subscription union every time that union
// changes. Nil disables it.
func (r *Registry) SetSubscriptionObserver(f func(path string, unionSize int)) {
	r.mu.Lock()
	r.onSubChange = f
	r.mu.Unlock()
}

// Register adds name to the driver name table. Fails with
// ErrAlreadyRegistered if name is already present. Pure registration: no
// device is touched.
func (r *Registry) Register(name string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.names[name]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, name)
	}
	r.names[name] = f
	return nil
}

// Init resolves name, refuses if path already has an instance, parses
// schemaPath, and walks the driver through Init/DeviceName/Datadesc,
// rolling back every prior step if any one fails. On success the instance
// is registered under path with a freshly assigned dev_id.
func (r *Registry) Init(name, path, schemaPath, args string) (inst *Instance, err error) {
	r.mu.Lock()
	factory, ok := r.names[name]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	if _, exists := r.insts[path]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyPresent, path)
	}
	r.mu.Unlock()

	descs, err := schema.LoadFile(schemaPath)
	if err != nil {
		return nil, err
	}

	dlog := r.log.WithDriver(path)

	ops := factory()
	kind, ok := interfaces.KindOf(ops)
	if !ok {
		return nil, fmt.Errorf("%w: %s must implement exactly one of ParseOps/PollOps", ErrInvalidDatadesc, name)
	}

	if err := ops.Init(path, args); err != nil {
		dlog.Warnf("init failed: %v", err)
		return nil, err
	}

	datadescs := ops.Datadesc(descs)
	if err := validateDatadescs(descs, datadescs); err != nil {
		dlog.Warnf("rolling back after invalid datadesc: %v", err)
		ops.Destroy()
		return nil, err
	}

	devName := ops.DeviceName()

	r.mu.Lock()
	defer r.mu.Unlock()
	// Re-check under lock: another Init for the same path could have
	// raced between the unlock above and here.
	if _, exists := r.insts[path]; exists {
		dlog.Warnf("rolling back after a racing init won %s", path)
		ops.Destroy()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyPresent, path)
	}
	r.nextDevID++
	devID := r.nextDevID

	inst = &Instance{
		name:    name,
		path:    path,
		devID:   devID,
		devName: devName,
		token:   uuid.New(),
		kind:    kind,
		descs:   datadescs,
		ops:     ops,
	}
	r.insts[path] = inst
	dlog.Infof("driver initialized name=%s dev_id=%d kind=%s token=%s", name, devID, kind, inst.token)
	return inst, nil
}

func validateDatadescs(descs []schema.Desc, datadescs []interfaces.DriverDatadesc) error {
	known := make(map[uint32]bool, len(descs))
	for _, d := range descs {
		known[d.DataID] = true
	}
	for _, dd := range datadescs {
		if !dd.Enabled {
			continue
		}
		if !known[dd.Desc.DataID] {
			return fmt.Errorf("%w: data_id %d not present in parsed schema", ErrInvalidDatadesc, dd.Desc.DataID)
		}
		if len(dd.AvailPeriods) == 0 {
			return fmt.Errorf("%w: data_id %d enabled with no avail_periods", ErrInvalidDatadesc, dd.Desc.DataID)
		}
	}
	return nil
}

// Destroy removes the instance at path. Refuses with ErrInUse if any
// subscription is still active.
func (r *Registry) Destroy(path string) error {
	r.mu.Lock()
	inst, ok := r.insts[path]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if inst.inUse() {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrInUse, path)
	}
	delete(r.insts, path)
	r.mu.Unlock()

	r.log.WithDriver(path).Infof("driver destroyed dev_id=%d token=%s", inst.devID, inst.token)
	inst.ops.Destroy()
	return nil
}

// Get finds the single instance that enables dataID. Fails with
// ErrDataIDNotFound if none match, ErrConflicting if more than one does.
func (r *Registry) Get(dataID uint32) (*Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var match *Instance
	for _, inst := range r.insts {
		if _, ok := inst.HasEnabledDataID(dataID); ok {
			if match != nil {
				return nil, fmt.Errorf("%w: data_id %d", ErrConflicting, dataID)
			}
			match = inst
		}
	}
	if match == nil {
		return nil, fmt.Errorf("%w: data_id %d", ErrDataIDNotFound, dataID)
	}
	return match, nil
}

// Ref adds one reference for each (data_id, period) in reqs against inst,
// recomputes the subscription union, and applies it: calling SetData,
// and Start/registering the fd with the loop if this is the first
// subscription. It then adds q to the fd's queue set.
func (r *Registry) Ref(inst *Instance, q interfaces.QueuePusher, reqs []interfaces.DataRequest) error {
	for _, rq := range reqs {
		inst.addRef(rq.DataID, rq.PeriodNs)
	}
	if err := r.applyUnion(inst); err != nil {
		for _, rq := range reqs {
			inst.removeRef(rq.DataID, rq.PeriodNs)
		}
		return err
	}
	if fd, ok := inst.currentFd(); ok {
		return r.loop.AddQueue(fd, q)
	}
	return nil
}

// Unref mirrors Ref: drops one reference for each (data_id, period),
// removes q from the fd's queue set, and stops the driver if the union
// becomes empty.
func (r *Registry) Unref(inst *Instance, q interfaces.QueuePusher, reqs []interfaces.DataRequest) error {
	if fd, ok := inst.currentFd(); ok {
		if err := r.loop.RemoveQueue(fd, q); err != nil {
			return err
		}
	}
	for _, rq := range reqs {
		inst.removeRef(rq.DataID, rq.PeriodNs)
	}
	return r.applyUnion(inst)
}

// applyUnion recomputes inst's subscription union and pushes it through
// SetData, starting or stopping the driver's fd as the union transitions
// to/from empty.
func (r *Registry) applyUnion(inst *Instance) error {
	union := inst.union()

	if err := inst.ops.SetData(union); err != nil {
		return err
	}

	r.mu.Lock()
	onSubChange := r.onSubChange
	r.mu.Unlock()
	if onSubChange != nil {
		onSubChange(inst.path, len(union))
	}

	dlog := r.log.WithDriver(inst.path)

	_, hasFd := inst.currentFd()
	switch {
	case len(union) > 0 && !hasFd:
		fd, err := inst.ops.Start()
		if err != nil {
			dlog.Warnf("start failed: %v", err)
			return err
		}
		inst.setFd(fd)
		if err := r.loop.AddFd(fd, inst); err != nil {
			dlog.Warnf("add fd=%d failed: %v", fd, err)
			return err
		}
		dlog.Infof("driver started fd=%d", fd)
	case len(union) == 0 && hasFd:
		fd, _ := inst.currentFd()
		if err := r.loop.RemoveFd(fd); err != nil {
			dlog.Warnf("remove fd=%d failed: %v", fd, err)
			return err
		}
		if err := inst.ops.Stop(); err != nil {
			dlog.Warnf("stop failed: %v", err)
			return err
		}
		inst.clearFd()
		dlog.Infof("driver stopped fd=%d", fd)
	}
	return nil
}

// PauseQueue removes q from inst's current fd without touching
// subscription refcounts or the driver's start/stop state. Used to
// temporarily halt delivery to a queue whose context has been stopped
// while leaving its subscriptions intact.
func (r *Registry) PauseQueue(inst *Instance, q interfaces.QueuePusher) error {
	fd, ok := inst.currentFd()
	if !ok {
		return nil
	}
	return r.loop.RemoveQueue(fd, q)
}

// ResumeQueue re-adds q to inst's current fd. Mirrors PauseQueue.
func (r *Registry) ResumeQueue(inst *Instance, q interfaces.QueuePusher) error {
	fd, ok := inst.currentFd()
	if !ok {
		return nil
	}
	return r.loop.AddQueue(fd, q)
}

// DataDesc is one entry GetDataDesc returns.
type DataDesc struct {
	DataID  uint32
	DevID   uint32
	Name    string
	Periods []uint64
	Fmt     []schema.FieldFmt
}

// GetDataDesc enumerates, across every live instance, the cross product
// of (instance, enabled schema entry).
func (r *Registry) GetDataDesc() []DataDesc {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []DataDesc
	for _, inst := range r.insts {
		for _, dd := range inst.descs {
			if !dd.Enabled {
				continue
			}
			out = append(out, DataDesc{
				DataID:  dd.Desc.DataID,
				DevID:   inst.devID,
				Name:    dd.Desc.Name,
				Periods: dd.AvailPeriods,
				Fmt:     dd.Desc.Fmt,
			})
		}
	}
	// The instance map iterates in random order; sort so repeated calls
	// enumerate identically.
	sort.Slice(out, func(a, b int) bool {
		if out[a].DataID != out[b].DataID {
			return out[a].DataID < out[b].DataID
		}
		return out[a].DevID < out[b].DevID
	})
	return out
}

// GetDevName looks up the cached device name for devID. ok is false if no
// live instance has that dev_id.
func (r *Registry) GetDevName(devID uint32) (name string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inst := range r.insts {
		if inst.devID == devID {
			return inst.devName, true
		}
	}
	return "", false
}
