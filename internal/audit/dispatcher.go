package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// Dispatcher asynchronously forwards audit records to a sink. A nil
// *Dispatcher is valid and discards everything.
type Dispatcher[T any] struct {
	cfg       Config
	sink      Sink[T]
	ch        chan T
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func NewDispatcher[T any](cfg Config, sink Sink[T]) *Dispatcher[T] {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink[T]{}
	}

	d := &Dispatcher[T]{
		cfg:  cfg,
		sink: sink,
		ch:   make(chan T, cfg.BufferSize),
		done: make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher[T]) run() {
	defer d.wg.Done()

	for {
		select {
		case record := <-d.ch:
			d.sink.Emit(context.Background(), record)
		case <-d.done:
			for {
				select {
				case record := <-d.ch:
					d.sink.Emit(context.Background(), record)
				default:
					return
				}
			}
		}
	}
}

// Emit queues record. With DropIfFull a full buffer drops the record and
// bumps the drop counter; otherwise Emit blocks until there is room, ctx
// ends or the dispatcher closes.
func (d *Dispatcher[T]) Emit(ctx context.Context, record T) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- record:
		case <-d.done:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.ch <- record:
	case <-ctx.Done():
	case <-d.done:
	}
}

// Close stops accepting records, drains the buffer and waits for the
// worker to exit.
func (d *Dispatcher[T]) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

func (d *Dispatcher[T]) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
