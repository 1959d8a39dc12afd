package hound

import (
	"sync"
	"time"
)

// MockOps is a configurable Ops implementation for tests: every method
// delegates to an optional func field, falling back to an inert default
// when unset. Embed it in a driver-specific fake to override only the
// methods that matter for a given test.
type MockOps struct {
	InitFunc       func(path, args string) error
	DestroyFunc    func()
	DeviceNameFunc func() string
	DatadescFunc   func(descs []Desc) []DriverDatadesc
	SetDataFunc    func(reqs []DataRequest) error
	StartFunc      func() (fd int, err error)
	StopFunc       func() error
	NextFunc       func(dataID uint32, n int) error
	AllocFunc      func() Alloc

	mu        sync.Mutex
	destroyed bool
}

func (m *MockOps) Init(path, args string) error {
	if m.InitFunc != nil {
		return m.InitFunc(path, args)
	}
	return nil
}

func (m *MockOps) Destroy() {
	m.mu.Lock()
	m.destroyed = true
	m.mu.Unlock()
	if m.DestroyFunc != nil {
		m.DestroyFunc()
	}
}

func (m *MockOps) Destroyed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.destroyed
}

func (m *MockOps) DeviceName() string {
	if m.DeviceNameFunc != nil {
		return m.DeviceNameFunc()
	}
	return "mock"
}

func (m *MockOps) Datadesc(descs []Desc) []DriverDatadesc {
	if m.DatadescFunc != nil {
		return m.DatadescFunc(descs)
	}
	out := make([]DriverDatadesc, len(descs))
	for i, d := range descs {
		out[i] = DriverDatadesc{Desc: d, Enabled: true, AvailPeriods: []uint64{0}}
	}
	return out
}

func (m *MockOps) SetData(reqs []DataRequest) error {
	if m.SetDataFunc != nil {
		return m.SetDataFunc(reqs)
	}
	return nil
}

func (m *MockOps) Start() (int, error) {
	if m.StartFunc != nil {
		return m.StartFunc()
	}
	return 0, nil
}

func (m *MockOps) Stop() error {
	if m.StopFunc != nil {
		return m.StopFunc()
	}
	return nil
}

func (m *MockOps) Next(dataID uint32, n int) error {
	if m.NextFunc != nil {
		return m.NextFunc(dataID, n)
	}
	return nil
}

func (m *MockOps) Alloc() Alloc {
	if m.AllocFunc != nil {
		return m.AllocFunc()
	}
	return nil
}

// MockPushOps adds a Parse method to MockOps, declaring it a push driver.
type MockPushOps struct {
	MockOps
	ParseFunc func(buf []byte) (consumed int, records []RecordOut, err error)
}

func (m *MockPushOps) Parse(buf []byte) (int, []RecordOut, error) {
	if m.ParseFunc != nil {
		return m.ParseFunc(buf)
	}
	return 0, nil, nil
}

// MockPullOps adds a Poll method to MockOps, declaring it a pull driver.
type MockPullOps struct {
	MockOps
	PollFunc func() (records []RecordOut, timeout time.Duration, timeoutEnabled bool, err error)
}

func (m *MockPullOps) Poll() ([]RecordOut, time.Duration, bool, error) {
	if m.PollFunc != nil {
		return m.PollFunc()
	}
	return nil, 0, false, nil
}
