package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailrake/mailrake/pkg/llm"
	"github.com/mailrake/mailrake/pkg/mail"
	"github.com/mailrake/mailrake/pkg/steps"
)

// capture collects messages delivered to a step.
type capture struct {
	mu   sync.Mutex
	msgs []*mail.Message
}

func (c *capture) handler(ctx context.Context, payload any) {
	if msg, ok := payload.(*mail.Message); ok {
		c.mu.Lock()
		c.msgs = append(c.msgs, msg)
		c.mu.Unlock()
	}
}

func (c *capture) get() []*mail.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*mail.Message, len(c.msgs))
	copy(out, c.msgs)
	return out
}

func summarizerHarness(t *testing.T, completer llm.Completer) (*Summarizer, *capture, func()) {
	t.Helper()
	log := zerolog.Nop()
	engine := steps.NewEngine(&log)
	sink := &capture{}
	engine.Register("capture", sink.handler)
	engine.RouteEvent(stepSummarize, EventMessageSummarized, "capture")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = engine.Run(ctx)
	}()

	return NewSummarizer(completer, engine, &log), sink, func() {
		cancel()
		<-done
	}
}

func chainOf(summaries ...string) []*mail.Message {
	msgs := make([]*mail.Message, len(summaries))
	for i, s := range summaries {
		msgs[i] = &mail.Message{
			ConversationID: "conv1",
			MessageID:      string(rune('a' + i)),
			Body:           "<p>body</p>",
			Summary:        s,
		}
	}
	return msgs
}

func TestSummarizerHandle_SummarizesLastUnsummarizedMember(t *testing.T) {
	var gotSchema json.RawMessage
	completer := llm.CompleterFunc(func(ctx context.Context, prompt string, vars map[string]any, schema json.RawMessage) (json.RawMessage, error) {
		gotSchema = schema
		return json.RawMessage(`{"summary":"the reply","images":{"img001":"a revenue chart"}}`), nil
	})
	s, sink, stop := summarizerHarness(t, completer)
	defer stop()

	chain := chainOf("root summary", "")
	chain[1].Images = []mail.InlineImage{{ContentID: "img001"}}
	s.Handle(context.Background(), chain)

	require.Eventually(t, func() bool { return len(sink.get()) == 1 }, time.Second, 5*time.Millisecond)

	updated := sink.get()[0]
	assert.Equal(t, chain[1].MessageID, updated.MessageID)
	assert.Equal(t, "the reply", updated.Summary)
	assert.Equal(t, "a revenue chart", updated.Images[0].Summary)
	assert.Empty(t, chain[1].Summary, "the chain's own copy stays untouched")

	// The response schema demands one entry per image cid.
	assert.Contains(t, string(gotSchema), `"img001"`)
}

func TestSummarizerHandle_FullySummarizedChainIsNoOp(t *testing.T) {
	calls := 0
	completer := llm.CompleterFunc(func(ctx context.Context, prompt string, vars map[string]any, schema json.RawMessage) (json.RawMessage, error) {
		calls++
		return json.RawMessage(`{}`), nil
	})
	s, sink, stop := summarizerHarness(t, completer)
	defer stop()

	s.Handle(context.Background(), chainOf("done", "also done"))

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, calls)
	assert.Empty(t, sink.get())
}

func TestSummarizerHandle_MalformedCompletionIsDropped(t *testing.T) {
	completer := llm.CompleterFunc(func(ctx context.Context, prompt string, vars map[string]any, schema json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{{{not json`), nil
	})
	s, sink, stop := summarizerHarness(t, completer)
	defer stop()

	s.Handle(context.Background(), chainOf(""))

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, sink.get(), "malformed output must not produce a summarized event")
}

func TestSummarizerHandle_EmptySummaryIsDropped(t *testing.T) {
	completer := llm.CompleterFunc(func(ctx context.Context, prompt string, vars map[string]any, schema json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{"summary":"  ","images":{}}`), nil
	})
	s, sink, stop := summarizerHarness(t, completer)
	defer stop()

	s.Handle(context.Background(), chainOf(""))

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, sink.get())
}

func TestSummarizerHandle_BadPayload(t *testing.T) {
	completer := llm.CompleterFunc(func(ctx context.Context, prompt string, vars map[string]any, schema json.RawMessage) (json.RawMessage, error) {
		t.Fatal("completer must not be called")
		return nil, nil
	})
	s, _, stop := summarizerHarness(t, completer)
	defer stop()

	s.Handle(context.Background(), "not a chain")
	s.Handle(context.Background(), []*mail.Message{})
}

func TestSummarySchema_DedupesCids(t *testing.T) {
	msg := &mail.Message{Images: []mail.InlineImage{
		{ContentID: "img001"},
		{ContentID: "img001"},
		{ContentID: "img002"},
		{ContentID: ""},
	}}
	raw := summarySchema(msg)

	var schema struct {
		Properties struct {
			Images struct {
				Required []string `json:"required"`
			} `json:"images"`
		} `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(raw, &schema))
	assert.Equal(t, []string{"img001", "img002"}, schema.Properties.Images.Required)
}
