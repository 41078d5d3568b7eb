package watcher

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mailrake/mailrake/pkg/browser"
	"github.com/mailrake/mailrake/pkg/mail"
	"github.com/mailrake/mailrake/pkg/outlook"
)

const (
	defaultSessionBudget = 30 * time.Minute
	defaultRestartDelay  = 2 * time.Second
	evictionCacheSize    = 100
)

// MessageStore is the persistence surface the watcher streams messages
// through.
type MessageStore interface {
	Save(ctx context.Context, msg *mail.Message) error
	ShouldSkip(conversationID, messageID string, ts time.Time) bool
}

// Options tune the session lifecycle.
type Options struct {
	// SessionBudget is the wall-clock lifetime of one browser session.
	// Recycling bounds memory and DOM drift in the underlying browser.
	SessionBudget time.Duration
	// RestartDelay is the pause before relaunching after a session dies.
	RestartDelay time.Duration
}

// Watcher owns the browser session lifecycle and the outer control loop
// tying extraction, persistence and conversation moving together. One
// logical page is driven at a time; all DOM work is strictly sequential.
type Watcher struct {
	launcher  browser.Launcher
	pages     *outlook.PageHelper
	extractor *outlook.Extractor
	mover     *outlook.Mover
	store     MessageStore
	log       *zerolog.Logger

	sessionBudget time.Duration
	restartDelay  time.Duration
	processed     *evictionCache
}

// New creates a watcher.
func New(launcher browser.Launcher, pages *outlook.PageHelper, extractor *outlook.Extractor, mover *outlook.Mover, store MessageStore, log *zerolog.Logger, opts Options) *Watcher {
	if opts.SessionBudget <= 0 {
		opts.SessionBudget = defaultSessionBudget
	}
	if opts.RestartDelay <= 0 {
		opts.RestartDelay = defaultRestartDelay
	}
	logger := log.With().Str("component", "watcher").Logger()
	return &Watcher{
		launcher:      launcher,
		pages:         pages,
		extractor:     extractor,
		mover:         mover,
		store:         store,
		log:           &logger,
		sessionBudget: opts.SessionBudget,
		restartDelay:  opts.RestartDelay,
		processed:     newEvictionCache(evictionCacheSize),
	}
}

// Run drives sessions until ctx is cancelled. Any error escaping a
// session is logged and followed by a fresh session after a fixed delay;
// this loop never terminates on its own.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.runSession(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			w.log.Error().Err(err).Msg("Session failed, restarting")
			select {
			case <-time.After(w.restartDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// runSession opens one browser session and processes conversations until
// the session budget elapses, the context is cancelled, or an error
// escapes page-level recovery.
func (w *Watcher) runSession(ctx context.Context) error {
	b, err := w.launcher.Launch(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	sessionLog := w.log.With().Str("session", uuid.NewString()[:8]).Logger()
	started := time.Now()

	page, err := b.NewPage(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = page.Close()
	}()

	if err := w.pages.Refresh(ctx, page); err != nil {
		return err
	}
	sessionLog.Info().Msg("Session started")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if time.Since(started) > w.sessionBudget {
			sessionLog.Info().Dur("age", time.Since(started)).Msg("Session budget elapsed, recycling")
			return nil
		}

		if err := w.processNext(ctx, page); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// One conversation failing costs a page, not the session.
			// The conversation was never cached, so a later scan pass
			// picks it up again.
			sessionLog.Warn().Err(err).Msg("Failed to process conversation, reopening page")
			if closeErr := page.Close(); closeErr != nil {
				sessionLog.Warn().Err(closeErr).Msg("Failed to close page")
			}
			page, err = b.NewPage(ctx)
			if err != nil {
				return err
			}
			if err := w.pages.Refresh(ctx, page); err != nil {
				return err
			}
		}
	}
}

// processNext handles at most one conversation: find, extract, persist,
// move, cache.
func (w *Watcher) processNext(ctx context.Context, page browser.Page) error {
	conversationID, err := w.extractor.FindNextConversation(ctx, page, w.processed.Snapshot())
	if err != nil {
		return err
	}
	if conversationID == "" {
		return nil
	}

	err = w.extractor.ExtractMessages(ctx, page, conversationID, w.store.ShouldSkip, func(msg *mail.Message) error {
		return w.store.Save(ctx, msg)
	})
	if err != nil {
		return err
	}

	if w.mover.MoveToProcessed(ctx, page, conversationID) {
		w.processed.Add(conversationID)
	}
	return nil
}
