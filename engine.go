package hound

import (
	"errors"
	"sync"

	"github.com/behrlich/hound/internal/ioloop"
	"github.com/behrlich/hound/internal/logging"
	"github.com/behrlich/hound/internal/registry"
	"github.com/behrlich/hound/internal/schema"
)

// Engine owns one I/O loop goroutine and one driver registry as a single
// handle rather than hidden process-wide globals. Default() exposes a
// process-wide singleton for callers that want global-state ergonomics;
// tests should prefer constructing their own Engine with New.
type Engine struct {
	log      *logging.Logger
	observer Observer
	loop     *ioloop.Loop
	registry *registry.Registry
}

// New creates an Engine with its own I/O loop goroutine. log defaults to
// logging.Default(); observer defaults to NoOpObserver.
func New(log *logging.Logger, observer Observer) (*Engine, error) {
	if log == nil {
		log = logging.Default()
	}
	if observer == nil {
		observer = NoOpObserver{}
	}
	loop, err := ioloop.New(log, observer)
	if err != nil {
		return nil, newError(ErrOutOfMemory, "engine_new", err)
	}
	reg := registry.New(loop, log)
	reg.SetSubscriptionObserver(observer.SubscriptionChanged)
	e := &Engine{
		log:      log,
		observer: observer,
		loop:     loop,
		registry: reg,
	}
	go e.loop.Run()
	return e, nil
}

// Close stops the engine's I/O loop. It does not wait for any in-flight
// driver callback to finish.
func (e *Engine) Close() error {
	return e.loop.Close()
}

var (
	defaultEngine *Engine
	defaultOnce   sync.Once
	defaultErr    error
)

// Default returns the process-wide singleton Engine, creating it on
// first use. Construction only fails if the platform cannot hand out a
// pipe, which is not a condition a caller can meaningfully recover from;
// Default panics in that case rather than threading an error through
// every package-level convenience function.
func Default() *Engine {
	defaultOnce.Do(func() {
		defaultEngine, defaultErr = New(nil, nil)
	})
	if defaultErr != nil {
		panic(defaultErr)
	}
	return defaultEngine
}

// RegisterDriver adds name to the driver name table. Must happen before
// any InitDriver call for that name.
func (e *Engine) RegisterDriver(name string, factory func() Ops) error {
	if err := e.registry.Register(name, registry.Factory(factory)); err != nil {
		return newError(ErrDriverAlreadyRegistered, "register", err)
	}
	return nil
}

// InitDriver resolves name, walks it through Init/DeviceName/Datadesc,
// and registers the resulting instance under path.
func (e *Engine) InitDriver(name, path, schemaPath, args string) (*registry.Instance, error) {
	inst, err := e.registry.Init(name, path, schemaPath, args)
	if err != nil {
		return nil, translateRegistryErr("driver_init", err)
	}
	return inst, nil
}

// DestroyDriver removes the instance at path. Fails with ErrDriverInUse
// if any subscription is still active.
func (e *Engine) DestroyDriver(path string) error {
	if err := e.registry.Destroy(path); err != nil {
		return translateRegistryErr("driver_destroy", err)
	}
	return nil
}

// translateRegistryErr maps the registry package's sentinel errors onto
// the closed ErrorCode enumeration callers see. Registry has no notion of
// that enumeration itself so the mapping lives here, at the boundary.
func translateRegistryErr(op string, err error) error {
	switch {
	case errors.Is(err, registry.ErrAlreadyRegistered):
		return newError(ErrDriverAlreadyRegistered, op, err)
	case errors.Is(err, registry.ErrNotRegistered), errors.Is(err, registry.ErrNotFound):
		return newError(ErrDriverNotRegistered, op, err)
	case errors.Is(err, registry.ErrAlreadyPresent):
		return newError(ErrDriverAlreadyPresent, op, err)
	case errors.Is(err, registry.ErrInUse):
		return newError(ErrDriverInUse, op, err)
	case errors.Is(err, registry.ErrDataIDNotFound):
		return newError(ErrDataIDDoesNotExist, op, err)
	case errors.Is(err, registry.ErrConflicting):
		return newError(ErrConflictingDrivers, op, err)
	case errors.Is(err, schema.ErrDuplicateDataID):
		return newError(ErrDescriptorDuplicate, op, err)
	case errors.Is(err, schema.ErrInvalidUnit), errors.Is(err, schema.ErrInvalidType), errors.Is(err, schema.ErrMissingName):
		return newError(ErrInvalidValue, op, err)
	case errors.Is(err, registry.ErrInvalidDatadesc):
		return newError(ErrIDNotInSchema, op, err)
	default:
		return newError(ErrDriverFail, op, err)
	}
}
