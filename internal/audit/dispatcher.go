package audit

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Config controls dispatcher buffering.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events when the buffer is full instead of waiting.
	DropIfFull bool
	// Critical lists event types that are never dropped for a full buffer, even with
	// DropIfFull. They wait for space until the emitting context ends.
	Critical []string
}

// Dispatcher relays session events to a sink from one goroutine, in emission order.
type Dispatcher struct {
	sink       Sink
	now        func() time.Time
	dropIfFull bool
	critical   map[string]bool

	queue     chan Event
	stop      chan struct{}
	finished  chan struct{}
	closing   atomic.Bool
	closeOnce sync.Once

	dropped atomic.Uint64
	dropMu  sync.Mutex
	byType  map[string]uint64
}

// NewDispatcher returns nil when cfg.Enabled is false; a nil *Dispatcher accepts and
// discards events.
func NewDispatcher(cfg Config, sink Sink, now func() time.Time) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if now == nil {
		now = time.Now
	}

	d := &Dispatcher{
		sink:       sink,
		now:        now,
		dropIfFull: cfg.DropIfFull,
		critical:   make(map[string]bool, len(cfg.Critical)),
		queue:      make(chan Event, max(cfg.BufferSize, 1)),
		stop:       make(chan struct{}),
		finished:   make(chan struct{}),
		byType:     make(map[string]uint64),
	}
	for _, t := range cfg.Critical {
		d.critical[t] = true
	}
	go d.relay()
	return d
}

func (d *Dispatcher) relay() {
	defer close(d.finished)
	for {
		select {
		case ev := <-d.queue:
			d.sink.Emit(context.Background(), ev)
		case <-d.stop:
			for {
				select {
				case ev := <-d.queue:
					d.sink.Emit(context.Background(), ev)
				default:
					return
				}
			}
		}
	}
}

// Emit fills in a missing ID and timestamp and queues the event.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closing.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = d.now().UTC()
	}

	if d.dropIfFull && !d.critical[event.EventType] {
		select {
		case d.queue <- event:
		case <-d.stop:
		default:
			d.drop(event.EventType)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.drop(event.EventType)
	case <-d.stop:
	}
}

func (d *Dispatcher) drop(eventType string) {
	d.dropped.Add(1)
	d.dropMu.Lock()
	d.byType[eventType]++
	d.dropMu.Unlock()
}

// Close stops accepting events and returns once the buffered ones reached the sink.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closing.Store(true)
		close(d.stop)
		<-d.finished
	})
}

// Dropped reports the total number of events that never reached the sink.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// DroppedByType returns a copy of the drop counts keyed by event type.
func (d *Dispatcher) DroppedByType() map[string]uint64 {
	if d == nil {
		return map[string]uint64{}
	}
	d.dropMu.Lock()
	defer d.dropMu.Unlock()
	return maps.Clone(d.byType)
}
