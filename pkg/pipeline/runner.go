package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mailrake/mailrake/pkg/llm"
	"github.com/mailrake/mailrake/pkg/mail"
	"github.com/mailrake/mailrake/pkg/reliability"
	"github.com/mailrake/mailrake/pkg/steps"
	"github.com/mailrake/mailrake/pkg/store"
	"github.com/mailrake/mailrake/pkg/thread"
)

const (
	defaultScanInterval = 5 * time.Second
	defaultWorkers      = 4
	perFileTimeout      = 30 * time.Second
)

// Options tune the downstream loop.
type Options struct {
	// ScanInterval is the pause between raw-store scans.
	ScanInterval time.Duration
	// Workers bounds how many raw files are decoded concurrently.
	Workers int
}

// Runner is the downstream watch-and-process loop: it scans the raw
// store, feeds messages into the step engine, and hosts the wiring
// between the thread orchestrator, the summarizer and the processed
// store. Ordering across files is not assumed; every file it sees
// already passed the skip-dedup check at write time.
type Runner struct {
	store  *store.Store
	engine *steps.Engine
	orch   *thread.Orchestrator
	log    *zerolog.Logger

	scanInterval time.Duration
	workers      int

	mu      sync.Mutex
	emitted map[string]struct{}
}

// NewRunner builds the runner and wires the downstream steps onto the
// engine.
func NewRunner(st *store.Store, engine *steps.Engine, completer llm.Completer, log *zerolog.Logger, opts Options) *Runner {
	if opts.ScanInterval <= 0 {
		opts.ScanInterval = defaultScanInterval
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	logger := log.With().Str("component", "pipeline").Logger()

	r := &Runner{
		store:        st,
		engine:       engine,
		log:          &logger,
		scanInterval: opts.ScanInterval,
		workers:      opts.Workers,
		emitted:      make(map[string]struct{}),
	}

	// Chains the orchestrator declares ready flow to the summarizer; its
	// results loop back into the orchestrator and land in the processed
	// store.
	r.orch = thread.NewOrchestrator(thread.RequesterFunc(func(chain []*mail.Message) {
		engine.Emit(EventRequestSummary, chain)
	}), log)
	summarizer := NewSummarizer(completer, engine, log)

	engine.Register(stepNewEmail, func(ctx context.Context, payload any) {
		if msg, ok := payload.(*mail.Message); ok {
			r.orch.HandleNewMessage(msg)
		}
	})
	engine.Register(stepNewSummary, func(ctx context.Context, payload any) {
		if msg, ok := payload.(*mail.Message); ok {
			r.orch.HandleNewSummary(msg)
		}
	})
	engine.Register(stepSummarize, summarizer.Handle)
	engine.Register(stepSaveProcessed, r.saveProcessed)

	engine.RouteEvent("runner", EventNewEmail, stepNewEmail)
	engine.RouteEvent(stepNewEmail, EventRequestSummary, stepSummarize)
	engine.RouteEvent(stepSummarize, EventMessageSummarized, stepNewSummary)
	engine.RouteEvent(stepSummarize, EventMessageSummarized, stepSaveProcessed)

	return r
}

// Run scans until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info().Dur("interval", r.scanInterval).Msg("Pipeline runner started")
	ticker := time.NewTicker(r.scanInterval)
	defer ticker.Stop()

	for {
		r.scanOnce(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// scanOnce lists raw files and emits each one not yet emitted, with
// bounded parallelism for the decode.
func (r *Runner) scanOnce(ctx context.Context) {
	paths, err := r.store.ListRaw()
	if err != nil {
		r.log.Error().Err(err).Msg("Raw store scan failed")
		return
	}

	sem := make(chan struct{}, r.workers)
	var wg sync.WaitGroup
	for _, path := range paths {
		if ctx.Err() != nil {
			break
		}
		if r.alreadyEmitted(path) {
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(path string) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := reliability.WithTimeout(ctx, perFileTimeout, func(ctx context.Context) error {
				return r.processFile(ctx, path)
			}); err != nil {
				r.log.Warn().Err(err).Str("file", path).Msg("Failed to process raw file")
			}
		}(path)
	}
	wg.Wait()

	r.pruneEmitted(paths)
	r.store.SweepEmptyDirs()
}

func (r *Runner) processFile(ctx context.Context, path string) error {
	msg, err := r.store.LoadRaw(path)
	if err != nil {
		return err
	}
	r.markEmitted(path)
	r.engine.Emit(EventNewEmail, msg)
	return nil
}

// saveProcessed persists the summarized message and clears its raw copy
// so the next scan stops seeing it.
func (r *Runner) saveProcessed(ctx context.Context, payload any) {
	msg, ok := payload.(*mail.Message)
	if !ok {
		r.log.Error().Msg("Save step received unexpected payload")
		return
	}
	if err := r.store.SaveProcessed(ctx, msg); err != nil {
		r.log.Error().Err(err).Str("message_id", msg.MessageID).Msg("Failed to save processed message")
		return
	}
	r.store.DeleteRaw(msg)
}

// alreadyEmitted reports whether the file was already fed into the
// engine this process lifetime. Raw files stay on disk until their
// summary lands, so the scan would otherwise re-emit them every tick.
func (r *Runner) alreadyEmitted(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.emitted[path]
	return ok
}

func (r *Runner) markEmitted(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emitted[path] = struct{}{}
}

// pruneEmitted drops bookkeeping for files that no longer exist.
func (r *Runner) pruneEmitted(current []string) {
	live := make(map[string]struct{}, len(current))
	for _, p := range current {
		live[p] = struct{}{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for p := range r.emitted {
		if _, ok := live[p]; !ok {
			delete(r.emitted, p)
		}
	}
}
