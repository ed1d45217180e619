package loader

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Loader drains a Source in bounded increments. The first Resume starts a
// background producer; every Resume drains the shared buffer until the
// source is exhausted, the time budget or paging limit of the call is spent,
// or the cancellation scope is triggered.
//
// Only one Resume may be in flight at a time. Cancel and Reset are safe to
// call from any goroutine.
type Loader[T any] struct {
	logger *slog.Logger
	buf    *buffer[T]

	mu          sync.Mutex
	state       State
	source      Source[T]
	timeout     time.Duration
	paging      int
	ctx         context.Context
	cancel      context.CancelFunc
	utilizers   []Utilizer[T]
	collectors  []func(T)
	onResume    []func()
	onReset     []func()
	prod        *producer[T]
	running     chan struct{}
	fault       error
	checkpoints []Checkpoint
}

// NewLoader creates a Loader in the New state.
func NewLoader[T any](opts ...Option) *Loader[T] {
	s := settings{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&s)
	}
	logger := s.logger
	if s.name != "" {
		logger = logger.With("loader", s.name)
	}
	return &Loader[T]{
		logger: logger,
		buf:    newBuffer[T](),
	}
}

// Configure sets the data source and the per-call budgets. A non-positive
// timeout or paging disables that bound. ctx is the external half of the
// cancellation scope: canceling it has the same effect as Cancel.
func (l *Loader[T]) Configure(ctx context.Context, src Source[T], timeout time.Duration, paging int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := expectState("configure", l.state, New); err != nil {
		return err
	}
	if src == nil {
		return fmt.Errorf("loader: configure: nil source: %w", ErrInvalidArgument)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if l.cancel != nil {
		l.cancel()
	}

	l.ctx, l.cancel = context.WithCancel(ctx)
	l.source = src
	l.timeout = timeout
	l.paging = paging
	return nil
}

// AddUtilizer appends u to the processing pipeline. Registration is only
// allowed between calls, in the New or Partial state.
func (l *Loader[T]) AddUtilizer(u Utilizer[T]) error {
	if u == nil {
		return fmt.Errorf("loader: add utilizer: nil utilizer: %w", ErrInvalidArgument)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := expectState("add utilizer", l.state, New, Partial); err != nil {
		return err
	}
	l.utilizers = append(l.utilizers, u)
	return nil
}

// State returns the current state.
func (l *Loader[T]) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Err returns the source fault of a Faulted loader, nil otherwise.
func (l *Loader[T]) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fault
}

// Buffered returns the number of produced items not yet delivered.
func (l *Loader[T]) Buffered() int {
	return l.buf.len()
}

// Checkpoints returns the points at which cancellation was observed since
// the last Reset, in observation order.
func (l *Loader[T]) Checkpoints() []Checkpoint {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.checkpoints)
}

// Cancel triggers the internal half of the cancellation scope. It is
// cooperative: the producer and the drain loop observe it at their next
// check point. Cancel before Configure is a no-op and Cancel on a
// terminal loader does not change its state.
func (l *Loader[T]) Cancel() {
	l.mu.Lock()
	cancel := l.cancel
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// run is the snapshot of loader configuration a single Resume works with.
type run[T any] struct {
	ctx        context.Context
	prod       *producer[T]
	timeout    time.Duration
	paging     int
	utilizers  []Utilizer[T]
	collectors []func(T)
}

// Resume starts production on the first call and drains the buffer under
// the configured budgets. It returns the outbound state: Partial when a
// budget was spent, Full when the source is exhausted and every item was
// delivered, Canceled when the scope was triggered, or Faulted together
// with the source error.
func (l *Loader[T]) Resume() (State, error) {
	l.mu.Lock()
	switch l.state {
	case New:
		if l.source == nil {
			l.mu.Unlock()
			return New, ErrNotConfigured
		}
		if l.ctx.Err() != nil {
			l.state = Canceled
			l.checkpoints = append(l.checkpoints, CheckpointBeforeStart)
			l.mu.Unlock()
			l.logger.Debug("loader canceled before start", "checkpoint", CheckpointBeforeStart.String())
			return Canceled, nil
		}
		l.state = Started
		l.prod = startProducer(l.ctx, l.source, l.buf)
	case Partial:
		l.state = Continued
	default:
		st := l.state
		l.mu.Unlock()
		return st, &StateError{Op: "resume", Expected: []State{New, Partial}, Actual: st}
	}

	r := run[T]{
		ctx:        l.ctx,
		prod:       l.prod,
		timeout:    l.timeout,
		paging:     l.paging,
		utilizers:  slices.Clone(l.utilizers),
		collectors: slices.Clone(l.collectors),
	}
	hooks := slices.Clone(l.onResume)
	running := make(chan struct{})
	l.running = running
	inbound := l.state
	l.mu.Unlock()

	l.logger.Debug("loader resumed", "state", inbound.String())
	for _, h := range hooks {
		h()
	}

	start := time.Now()
	outbound, err := l.drain(&r)

	l.mu.Lock()
	l.state = outbound
	if err != nil {
		l.fault = err
	}
	l.running = nil
	close(running)
	l.mu.Unlock()

	if err != nil {
		l.logger.Warn("loader source failed", "error", err)
	}
	l.logger.Debug("loader yielded",
		"state", outbound.String(),
		"buffered", l.buf.len(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return outbound, err
}

// drain is the bounded draining loop of one Resume call.
func (l *Loader[T]) drain(r *run[T]) (State, error) {
	start := time.Now()
	delivered := 0

	// Items left behind by a previous boundary have no pending wake token.
	if l.buf.len() > 0 {
		l.buf.signal()
	}

	for !r.prod.finished() {
		var expired <-chan time.Time
		var timer *time.Timer
		if r.timeout > 0 {
			remaining := r.timeout - time.Since(start)
			if remaining <= 0 {
				if r.ctx.Err() != nil {
					return l.canceled(r, CheckpointBudget)
				}
				return Partial, nil
			}
			timer = time.NewTimer(remaining)
			expired = timer.C
		}
		if r.ctx.Err() != nil {
			if timer != nil {
				timer.Stop()
			}
			return l.canceled(r, CheckpointWait)
		}

		select {
		case <-l.buf.ready:
		case <-r.prod.done:
		case <-expired:
		case <-r.ctx.Done():
		}
		if timer != nil {
			timer.Stop()
		}

		if r.ctx.Err() != nil {
			return l.canceled(r, CheckpointWait)
		}
		if l.deliver(r, start, &delivered) {
			return l.boundary(r)
		}
	}

	if r.ctx.Err() != nil {
		return l.canceled(r, CheckpointTail)
	}
	if l.deliver(r, start, &delivered) {
		return l.boundary(r)
	}
	return l.finish(r)
}

// deliver moves buffered items through the pipeline. It reports true when
// the paging limit or the time budget is reached; the item that reaches
// the bound is delivered first.
func (l *Loader[T]) deliver(r *run[T], start time.Time, delivered *int) bool {
	for {
		item, ok := l.buf.pop()
		if !ok {
			return false
		}
		for _, u := range r.utilizers {
			item = u(item)
		}
		for _, c := range r.collectors {
			c(item)
		}
		*delivered++

		if r.paging > 0 && *delivered >= r.paging {
			return true
		}
		if r.timeout > 0 && time.Since(start) >= r.timeout {
			return true
		}
	}
}

// boundary decides the outbound state once a budget was spent. A boundary
// that coincides with the end of the data reports the terminal state
// instead of leaving an empty trailing call.
func (l *Loader[T]) boundary(r *run[T]) (State, error) {
	if r.prod.finished() && l.buf.len() == 0 {
		return l.finish(r)
	}
	return Partial, nil
}

func (l *Loader[T]) finish(r *run[T]) (State, error) {
	if err := r.prod.fault(); err != nil {
		return Faulted, err
	}
	if r.ctx.Err() != nil {
		return l.canceled(r, CheckpointTail)
	}
	return Full, nil
}

// canceled joins the producer and reports Canceled.
func (l *Loader[T]) canceled(r *run[T], cp Checkpoint) (State, error) {
	r.prod.wait()

	l.mu.Lock()
	if r.prod.canceled {
		l.checkpoints = append(l.checkpoints, CheckpointProducer)
	}
	l.checkpoints = append(l.checkpoints, cp)
	l.mu.Unlock()

	l.logger.Debug("loader canceled", "checkpoint", cp.String(), "producer_stopped_early", r.prod.canceled)
	return Canceled, nil
}

// Reset cancels and joins a running producer, waits for an in-flight
// Resume to return, and discards all session data. Registered accumulators
// stay attached with their contents cleared.
func (l *Loader[T]) Reset() {
	l.mu.Lock()
	for {
		if l.cancel != nil {
			l.cancel()
		}
		running := l.running
		if running == nil {
			break
		}
		l.mu.Unlock()
		<-running
		l.mu.Lock()
	}
	defer l.mu.Unlock()

	if l.prod != nil {
		l.prod.wait()
	}

	l.buf.clear()
	l.state = New
	l.source = nil
	l.timeout = 0
	l.paging = 0
	l.ctx = nil
	l.cancel = nil
	l.utilizers = nil
	l.prod = nil
	l.fault = nil
	l.checkpoints = nil
	for _, h := range l.onReset {
		h()
	}
	l.logger.Debug("loader reset")
}

// attach registers an accumulator. Collectors run after the utilizers and,
// unlike utilizers, survive Reset.
func (l *Loader[T]) attach(collect func(T), onResume, onReset func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.collectors = append(l.collectors, collect)
	if onResume != nil {
		l.onResume = append(l.onResume, onResume)
	}
	if onReset != nil {
		l.onReset = append(l.onReset, onReset)
	}
}
