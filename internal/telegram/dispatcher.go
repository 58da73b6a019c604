package telegram

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ashureev/taskmarket/internal/chat"
)

// Handler processes one event.
type Handler func(ctx context.Context, ev chat.Event)

// Dispatcher fans events out to a fixed set of workers. All events of one
// user land on the same worker, so they are handled in arrival order.
type Dispatcher struct {
	shards  []chan chat.Event
	handler Handler
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher with n workers, each buffering up to
// queue events.
func NewDispatcher(n, queue int, handler Handler, logger *slog.Logger) *Dispatcher {
	if n <= 0 {
		n = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		shards:  make([]chan chat.Event, n),
		handler: handler,
		logger:  logger.With("module", "dispatcher"),
	}
	for i := range d.shards {
		d.shards[i] = make(chan chat.Event, queue)
	}
	return d
}

// Start launches the workers. They exit once Stop is called and their
// queues drain.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.shards {
		d.wg.Add(1)
		go func(shard int, ch <-chan chat.Event) {
			defer d.wg.Done()
			for ev := range ch {
				d.handle(ctx, shard, ev)
			}
		}(i, ch)
	}
}

func (d *Dispatcher) handle(ctx context.Context, shard int, ev chat.Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Handler panicked", "shard", shard, "user_id", ev.UserID, "panic", r)
		}
	}()
	d.handler(ctx, ev)
}

// Dispatch queues an event on its user's worker. It blocks while that
// worker's queue is full.
func (d *Dispatcher) Dispatch(ev chat.Event) {
	d.shards[d.shardOf(ev.UserID)] <- ev
}

func (d *Dispatcher) shardOf(userID int64) int {
	return int(uint64(userID) % uint64(len(d.shards)))
}

// Stop closes the queues and waits for in-flight events to finish.
func (d *Dispatcher) Stop() {
	for _, ch := range d.shards {
		close(ch)
	}
	d.wg.Wait()
}
