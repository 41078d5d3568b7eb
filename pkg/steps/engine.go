package steps

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Handler processes one event payload delivered to a registered step.
type Handler func(ctx context.Context, payload any)

// Engine is a minimal in-process step engine: named steps, event routes,
// and a single dispatcher goroutine consuming an ordered queue. The
// single consumer is deliberate — downstream steps like the thread
// orchestrator rely on events for one conversation not interleaving.
type Engine struct {
	log *zerolog.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
	routes   map[string][]string

	queue chan event

	ovMu     sync.Mutex
	overflow []event
}

type event struct {
	name    string
	payload any
}

// NewEngine creates an engine. The queue channel is sized for the
// common case; bursts past its capacity spill into overflow.
func NewEngine(log *zerolog.Logger) *Engine {
	logger := log.With().Str("component", "step_engine").Logger()
	return &Engine{
		log:      &logger,
		handlers: make(map[string]Handler),
		routes:   make(map[string][]string),
		queue:    make(chan event, 256),
	}
}

// Register adds a named step. Registering a duplicate name replaces the
// handler; wiring happens once at startup.
func (e *Engine) Register(name string, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[name] = h
}

// RouteEvent routes eventName to the named step. from identifies the
// emitting step for wiring legibility; delivery is keyed on the event
// name alone.
func (e *Engine) RouteEvent(from, eventName, to string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.routes[eventName] = append(e.routes[eventName], to)
	e.log.Debug().Str("from", from).Str("event", eventName).Str("to", to).Msg("Routed event")
}

// Emit enqueues an event for dispatch. Emit never blocks: when the
// queue is full, events spill into an overflow list that the dispatcher
// drains once the queue empties. Handlers may therefore emit from
// inside the dispatch loop itself without wedging it.
func (e *Engine) Emit(eventName string, payload any) {
	ev := event{name: eventName, payload: payload}

	// Once overflow is in use, every emit lands there until the
	// dispatcher drains it. Queue contents always predate overflow
	// contents, so draining queue-first keeps emission order.
	e.ovMu.Lock()
	if len(e.overflow) > 0 {
		e.overflow = append(e.overflow, ev)
		e.ovMu.Unlock()
		return
	}
	e.ovMu.Unlock()

	select {
	case e.queue <- ev:
	default:
		e.ovMu.Lock()
		e.overflow = append(e.overflow, ev)
		e.ovMu.Unlock()
	}
}

// Run dispatches events until ctx is cancelled. Exactly one Run loop may
// be active per engine.
func (e *Engine) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		select {
		case ev := <-e.queue:
			e.dispatch(ctx, ev)
			continue
		default:
		}

		if ev, ok := e.popOverflow(); ok {
			e.dispatch(ctx, ev)
			continue
		}

		// Overflow only fills while the queue is full, so a pending
		// overflow event implies the queue is (or was) non-empty and
		// this receive cannot miss it.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-e.queue:
			e.dispatch(ctx, ev)
		}
	}
}

func (e *Engine) popOverflow() (event, bool) {
	e.ovMu.Lock()
	defer e.ovMu.Unlock()
	if len(e.overflow) == 0 {
		return event{}, false
	}
	ev := e.overflow[0]
	e.overflow = e.overflow[1:]
	if len(e.overflow) == 0 {
		e.overflow = nil
	}
	return ev, true
}

func (e *Engine) dispatch(ctx context.Context, ev event) {
	e.mu.RLock()
	targets := e.routes[ev.name]
	e.mu.RUnlock()

	if len(targets) == 0 {
		e.log.Warn().Str("event", ev.name).Msg("Event has no route")
		return
	}
	for _, name := range targets {
		e.mu.RLock()
		h, ok := e.handlers[name]
		e.mu.RUnlock()
		if !ok {
			e.log.Error().Str("event", ev.name).Str("step", name).Msg("Route targets unregistered step")
			continue
		}
		h(ctx, ev.payload)
	}
}
