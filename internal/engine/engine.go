package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/seantiz/partload/internal/jsonstream"
	"github.com/seantiz/partload/internal/loader"
	"github.com/seantiz/partload/internal/model"
	"github.com/seantiz/partload/internal/session"
	"github.com/seantiz/partload/internal/source"
	"github.com/seantiz/partload/internal/store"
)

var (
	// ErrSessionNotFound is returned when no live session has the given ID.
	ErrSessionNotFound = errors.New("session not found")
	// ErrCanceled is returned by Load when the load was canceled before
	// the source was exhausted.
	ErrCanceled = errors.New("load canceled")
)

// StartRequest describes a new session.
type StartRequest struct {
	Source  string
	Params  source.Params
	Timeout time.Duration
	Paging  int
}

// Call is the outcome of one call against a session.
type Call struct {
	SessionID string
	Seq       int
	State     loader.State
	Items     []any
	Duration  time.Duration
	// Err is the source fault of a Faulted call.
	Err error
}

// live is a session kept between calls. mu serializes calls on it; busy is
// set while a call runs so the janitor never expires a session mid-call.
type live struct {
	mu        sync.Mutex
	busy      atomic.Bool
	id        string
	source    string
	loader    *loader.ChunkLoader[any]
	sink      *jsonstream.Sink[any]
	delivered int
	done      bool
	last      *Call
}

// Engine orchestrates partial loading sessions.
type Engine struct {
	store    store.Store
	sources  *source.Registry
	sessions *session.Registry[*live]
	logger   *slog.Logger
	broker   *EventBroker
	wg       sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewEngine creates a new session engine.
func NewEngine(s store.Store, sources *source.Registry, logger *slog.Logger) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		store:    s,
		sources:  sources,
		sessions: session.NewRegistry[*live](),
		logger:   logger,
		broker:   NewEventBroker(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Broker returns the engine's event broker for SSE subscription.
func (e *Engine) Broker() *EventBroker {
	return e.broker
}

// Sources returns the source registry sessions are started against.
func (e *Engine) Sources() *source.Registry {
	return e.sources
}

// Active returns the number of sessions kept between calls.
func (e *Engine) Active() int {
	return e.sessions.Len()
}

// Start creates a session and makes its first call. When w is not nil the
// delivered items are also streamed to it as they arrive. The session is
// kept for Continue only while the call ends Partial.
func (e *Engine) Start(ctx context.Context, req StartRequest, w io.Writer) (*Call, error) {
	src, err := e.sources.Resolve(req.Source, req.Params)
	if err != nil {
		return nil, err
	}

	id := model.NewID()
	l := loader.NewChunkLoader[any](
		loader.WithLogger(e.logger.With("session_id", id)),
		loader.WithName(req.Source),
	)
	if err := l.Configure(e.ctx, src, req.Timeout, req.Paging); err != nil {
		return nil, err
	}

	lv := &live{id: id, source: req.Source, loader: l, sink: &jsonstream.Sink[any]{}}
	if err := l.AddUtilizer(loader.Tap(func(any) { lv.delivered++ })); err != nil {
		return nil, err
	}
	if err := l.AddUtilizer(lv.sink.Utilizer()); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := e.store.CreateSession(ctx, &model.Session{
		ID:        id,
		Source:    req.Source,
		State:     model.StateStarted,
		Count:     req.Params.Count,
		DelayMS:   int(req.Params.Delay.Milliseconds()),
		TimeoutMS: int(req.Timeout.Milliseconds()),
		Paging:    req.Paging,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		l.Reset()
		return nil, fmt.Errorf("create session: %w", err)
	}

	lv.mu.Lock()
	defer lv.mu.Unlock()
	e.sessions.Store(id, lv)
	sessionsActive.Set(float64(e.sessions.Len()))

	e.logger.Info("session started",
		"session_id", id,
		"source", req.Source,
		"timeout_ms", req.Timeout.Milliseconds(),
		"paging", req.Paging,
	)
	return e.call(ctx, lv, w)
}

// Continue makes the next call of a Partial session.
func (e *Engine) Continue(ctx context.Context, id string, w io.Writer) (*Call, error) {
	lv, ok := e.sessions.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	lv.mu.Lock()
	defer lv.mu.Unlock()
	if lv.done {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return e.call(ctx, lv, w)
}

// Cancel cancels a session. A call in flight on the session returns
// Canceled; an idle Partial session is finished with a Canceled call. If
// the session ended before the cancellation was observed, its last call is
// returned unchanged.
func (e *Engine) Cancel(id string) (*Call, error) {
	lv, ok := e.sessions.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	lv.loader.Cancel()

	lv.mu.Lock()
	defer lv.mu.Unlock()
	if lv.done {
		return lv.last, nil
	}
	return e.call(context.Background(), lv, nil)
}

// call resumes the loader of lv and records the outcome. Callers hold lv.mu.
func (e *Engine) call(ctx context.Context, lv *live, w io.Writer) (*Call, error) {
	if w != nil {
		if err := lv.sink.Begin(w); err != nil {
			e.logger.Warn("stream chunk", "session_id", lv.id, "error", err)
		}
	}
	lv.delivered = 0
	lv.busy.Store(true)
	defer func() {
		e.sessions.Touch(lv.id)
		lv.busy.Store(false)
	}()

	// A caller that goes away mid-call cancels the session.
	stop := context.AfterFunc(ctx, lv.loader.Cancel)
	start := time.Now()
	st, err := lv.loader.Resume()
	dur := time.Since(start)
	stop()

	if w != nil {
		if serr := lv.sink.End(st); serr != nil {
			e.logger.Warn("stream chunk", "session_id", lv.id, "error", serr)
		}
	}
	if err != nil && !errors.Is(err, loader.ErrSourceFailed) {
		return nil, err
	}

	c := &Call{
		SessionID: lv.id,
		State:     st,
		Items:     []any{},
		Duration:  dur,
		Err:       err,
	}
	if items, cerr := lv.loader.Chunk(); cerr == nil {
		c.Items = items
	}

	rec := &model.Chunk{
		SessionID:  lv.id,
		Size:       lv.delivered,
		State:      strings.ToLower(st.String()),
		DurationMS: int(dur.Milliseconds()),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if serr := e.store.RecordChunk(context.WithoutCancel(ctx), rec); serr != nil {
		e.logger.Error("failed to record chunk", "session_id", lv.id, "error", serr)
	}
	c.Seq = rec.Seq

	callsTotal.WithLabelValues(lv.source, rec.State).Inc()
	itemsDelivered.WithLabelValues(lv.source).Add(float64(rec.Size))
	callDuration.WithLabelValues(lv.source).Observe(dur.Seconds())

	e.broker.Publish(Event{
		SessionID:  lv.id,
		Seq:        rec.Seq,
		State:      rec.State,
		Size:       rec.Size,
		DurationMS: rec.DurationMS,
		Error:      rec.Error,
	})
	lv.last = c

	if st.Terminal() {
		e.finish(lv)
		e.logger.Info("session finished",
			"session_id", lv.id,
			"state", rec.State,
			"calls", rec.Seq,
			"checkpoints", fmt.Sprint(lv.loader.Checkpoints()),
		)
		lv.loader.Reset()
	}
	return c, nil
}

// finish drops a terminal session. Callers hold lv.mu.
func (e *Engine) finish(lv *live) {
	lv.done = true
	e.sessions.Remove(lv.id)
	sessionsActive.Set(float64(e.sessions.Len()))
	e.broker.Close(lv.id)
}

// Load drains the named source in a single unbounded call and returns the
// whole sequence.
func (e *Engine) Load(ctx context.Context, name string, p source.Params) ([]any, error) {
	src, err := e.sources.Resolve(name, p)
	if err != nil {
		return nil, err
	}

	l := loader.NewResultLoader[any](loader.WithLogger(e.logger), loader.WithName(name))
	defer l.Reset()
	if err := l.Configure(ctx, src, 0, 0); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(e.ctx, l.Cancel)
	defer stop()

	start := time.Now()
	st, err := l.Resume()
	callsTotal.WithLabelValues(name, strings.ToLower(st.String())).Inc()
	callDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	if st != loader.Full {
		return nil, fmt.Errorf("%s: %w", name, ErrCanceled)
	}

	items, err := l.Result()
	if err != nil {
		return nil, err
	}
	itemsDelivered.WithLabelValues(name).Add(float64(len(items)))
	return items, nil
}

// Sweep cancels every session idle for longer than idle and returns how
// many were canceled. Idle time counts from the end of the last call;
// sessions with a call in flight are never swept. Event topics of sessions
// that finished more than idle ago are dropped as well.
func (e *Engine) Sweep(idle time.Duration) int {
	evicted := e.sessions.Sweep(idle, func(lv *live) bool { return lv.busy.Load() })
	for id, lv := range evicted {
		e.expire(lv)
		sessionsExpired.Inc()
		e.logger.Info("session expired", "session_id", id)
	}
	sessionsActive.Set(float64(e.sessions.Len()))
	e.broker.Prune(idle)
	return len(evicted)
}

func (e *Engine) expire(lv *live) {
	lv.loader.Cancel()
	lv.mu.Lock()
	defer lv.mu.Unlock()
	if lv.done {
		return
	}
	if _, err := e.call(context.Background(), lv, nil); err != nil {
		e.logger.Error("failed to cancel session", "session_id", lv.id, "error", err)
	}
}

// StartJanitor sweeps idle sessions every interval until Shutdown.
func (e *Engine) StartJanitor(interval, idle time.Duration) {
	e.wg.Go(func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-e.ctx.Done():
				return
			case <-ticker.C:
				if n := e.Sweep(idle); n > 0 {
					e.logger.Info("expired idle sessions", "count", n)
				}
			}
		}
	})
}

// Shutdown stops the janitor and cancels every live session, waiting for
// their producers to stop.
func (e *Engine) Shutdown() {
	e.cancel()
	e.wg.Wait()
	for _, lv := range e.sessions.Drain() {
		e.expire(lv)
	}
	sessionsActive.Set(0)
}
