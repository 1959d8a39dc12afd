package interfaces

import "github.com/behrlich/hound/internal/record"

// Driver is the minimal view of a driver instance the I/O loop needs: its
// ops, a stable device id for stamping records, and a source of the next
// sequence number. registry.Instance implements this; the loop package
// never imports the registry package to get it.
type Driver interface {
	Ops() Ops
	DevID() uint32
	NextSeqno() uint64
}

// QueuePusher is the push-only view of a bounded queue the loop needs.
// internal/queue.Queue satisfies it structurally.
type QueuePusher interface {
	Push(e *record.Envelope)
}

// IOLoop is the control surface the registry needs to mutate the fd/queue
// set as subscriptions change. internal/ioloop.Loop implements it.
type IOLoop interface {
	AddFd(fd int, d Driver) error
	RemoveFd(fd int) error
	AddQueue(fd int, q QueuePusher) error
	RemoveQueue(fd int, q QueuePusher) error
}
