package pipeline

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailrake/mailrake/pkg/llm"
	"github.com/mailrake/mailrake/pkg/mail"
	"github.com/mailrake/mailrake/pkg/reliability"
	"github.com/mailrake/mailrake/pkg/steps"
	"github.com/mailrake/mailrake/pkg/store"
)

type runnerHarness struct {
	runner *Runner
	store  *store.Store
	calls  *atomic.Int32
	stop   func()
}

func newRunnerHarness(t *testing.T) *runnerHarness {
	t.Helper()
	log := zerolog.Nop()
	st, err := store.New(filepath.Join(t.TempDir(), "raw"), filepath.Join(t.TempDir(), "processed"), &log, reliability.NewRegistry())
	require.NoError(t, err)

	calls := new(atomic.Int32)
	completer := llm.CompleterFunc(func(ctx context.Context, prompt string, vars map[string]any, schema json.RawMessage) (json.RawMessage, error) {
		calls.Add(1)
		return json.RawMessage(`{"summary":"summarized","images":{}}`), nil
	})

	engine := steps.NewEngine(&log)
	r := NewRunner(st, engine, completer, &log, Options{ScanInterval: 10 * time.Millisecond, Workers: 2})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = engine.Run(ctx)
	}()

	return &runnerHarness{
		runner: r,
		store:  st,
		calls:  calls,
		stop: func() {
			cancel()
			<-done
		},
	}
}

func rawMessage(id, prev string, ts time.Time) *mail.Message {
	return &mail.Message{
		ConversationID:    "conv1",
		MessageID:         id,
		PreviousMessageID: prev,
		Subject:           "thread",
		Timestamp:         ts,
		Body:              "<p>body " + id + "</p>",
		From:              []mail.Person{{Email: "alice@example.com"}},
	}
}

func TestRunner_ProcessesChainEndToEnd(t *testing.T) {
	h := newRunnerHarness(t)
	defer h.stop()
	ctx := context.Background()

	t0 := time.Date(2025, 4, 11, 14, 7, 0, 0, time.UTC)
	root := rawMessage("aaa111", "", t0)
	reply := rawMessage("bbb222", "aaa111", t0.Add(time.Hour))
	require.NoError(t, h.store.Save(ctx, root))
	require.NoError(t, h.store.Save(ctx, reply))

	h.runner.scanOnce(ctx)

	// Both messages end up summarized in the processed root with their
	// raw copies cleaned up.
	require.Eventually(t, func() bool {
		paths, err := h.store.ListRaw()
		return err == nil && len(paths) == 0
	}, 5*time.Second, 10*time.Millisecond, "raw files should drain")

	assert.False(t, h.store.ShouldSkip("conv1", "zzz999", t0), "unrelated ids stay ingestible")
	assert.True(t, h.store.ShouldSkip("conv1", "aaa111", t0), "processed artifact gates the root")
	assert.True(t, h.store.ShouldSkip("conv1", "bbb222", t0.Add(time.Hour)), "processed artifact gates the reply")
}

func TestRunner_DoesNotReEmitPendingFiles(t *testing.T) {
	h := newRunnerHarness(t)
	defer h.stop()
	ctx := context.Background()

	// An orphaned reply: its ancestor never arrives, so its summary never
	// lands and its raw file stays on disk.
	orphan := rawMessage("bbb222", "missing", time.Now())
	require.NoError(t, h.store.Save(ctx, orphan))

	h.runner.scanOnce(ctx)
	h.runner.scanOnce(ctx)
	h.runner.scanOnce(ctx)

	time.Sleep(50 * time.Millisecond)

	h.runner.mu.Lock()
	emitted := len(h.runner.emitted)
	h.runner.mu.Unlock()
	assert.Equal(t, 1, emitted, "one pending file is tracked exactly once")
	assert.Zero(t, h.calls.Load(), "an incomplete chain never reaches the completer")

	paths, err := h.store.ListRaw()
	require.NoError(t, err)
	assert.Len(t, paths, 1, "the orphan stays until its chain completes")
}

func TestRunner_PruneForgetsDeletedFiles(t *testing.T) {
	h := newRunnerHarness(t)
	defer h.stop()

	h.runner.markEmitted("/gone/file.json")
	h.runner.pruneEmitted([]string{"/still/here.json"})

	h.runner.mu.Lock()
	defer h.runner.mu.Unlock()
	assert.Empty(t, h.runner.emitted)
}
