package audit

import (
	"context"
	"time"

	"github.com/MrEthical07/lexauth/internal/queue"
)

// Config controls dispatcher buffering.
type Config struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	// DropIfFull discards events on a full buffer instead of making the
	// request wait for room.
	DropIfFull bool `yaml:"drop_if_full"`
}

// Dispatcher stamps events and hands them to a sink off the request path.
// A nil Dispatcher discards everything.
type Dispatcher struct {
	lossy   bool
	now     func() time.Time
	backlog *queue.Queue[Event]
}

// NewDispatcher returns nil when cfg.Enabled is false.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	return &Dispatcher{
		lossy:   cfg.DropIfFull,
		now:     time.Now,
		backlog: queue.New(cfg.BufferSize, 0, sink.Emit),
	}
}

// Emit queues event. Lossy dispatchers never block; otherwise Emit waits
// for buffer space until ctx ends.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	event.Stamp(d.now())
	if d.lossy {
		d.backlog.Offer(event)
		return
	}
	d.backlog.Put(ctx, event)
}

// Close delivers what is buffered. Later events are ignored.
func (d *Dispatcher) Close() {
	if d != nil {
		d.backlog.Close()
	}
}

// Dropped counts events lost to a full buffer.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.backlog.Dropped()
}
