package hub

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Viewer is one connected client. The hub is the only writer to the
// outbox; the transport drains it.
type Viewer struct {
	id     string
	outbox chan []byte
	done   chan struct{}
	state  atomic.Int32
	once   sync.Once
}

func newViewer(queue int) *Viewer {
	v := &Viewer{
		id:     uuid.NewString(),
		outbox: make(chan []byte, queue),
		done:   make(chan struct{}),
	}
	v.state.Store(int32(StateConnecting))
	return v
}

func (v *Viewer) ID() string { return v.id }

func (v *Viewer) State() State { return State(v.state.Load()) }

// Outbox yields encoded messages in send order. The first message is
// always the init snapshot.
func (v *Viewer) Outbox() <-chan []byte { return v.outbox }

// Done is closed when the viewer leaves the live set.
func (v *Viewer) Done() <-chan struct{} { return v.done }

// enqueue never blocks. A false return means the viewer fell behind.
func (v *Viewer) enqueue(msg []byte) bool {
	select {
	case v.outbox <- msg:
		return true
	default:
		return false
	}
}

// close must be called with the hub lock held so no enqueue races the
// channel close.
func (v *Viewer) close() {
	v.once.Do(func() {
		v.state.Store(int32(StateClosed))
		close(v.done)
		close(v.outbox)
	})
}
