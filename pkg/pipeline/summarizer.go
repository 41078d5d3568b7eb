package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mailrake/mailrake/pkg/llm"
	"github.com/mailrake/mailrake/pkg/mail"
	"github.com/mailrake/mailrake/pkg/steps"
)

// summaryPrompt instructs the model to summarize the newest unsummarized
// message of a chain, treating earlier summaries as ground truth.
const summaryPrompt = `You are an assistant that summarizes email threads. For each message, output a JSON object with:
- a "summary" of the message body
- an "images" object mapping each image cid to a description of that image

If a message or image has already been summarized, treat the existing summary as ground truth and do not repeat it. For images that are graphs, charts, or diagrams, include the key insights or data points they show.`

// Summarizer produces summaries for the last unsummarized member of a
// chain via the completion service.
type Summarizer struct {
	completer llm.Completer
	engine    *steps.Engine
	log       *zerolog.Logger
}

// NewSummarizer creates a summarizer step.
func NewSummarizer(completer llm.Completer, engine *steps.Engine, log *zerolog.Logger) *Summarizer {
	logger := log.With().Str("component", "summarizer").Logger()
	return &Summarizer{completer: completer, engine: engine, log: &logger}
}

// summaryResult is the schema-shaped completion payload.
type summaryResult struct {
	Summary string            `json:"summary"`
	Images  map[string]string `json:"images"`
}

// Handle processes an EventRequestSummary payload ([]*mail.Message,
// oldest first, last member unsummarized).
func (s *Summarizer) Handle(ctx context.Context, payload any) {
	chain, ok := payload.([]*mail.Message)
	if !ok || len(chain) == 0 {
		s.log.Error().Msg("Summarize step received unexpected payload")
		return
	}

	// The chain prefix ends at the target; everything before it provides
	// context the model treats as already settled.
	var current *mail.Message
	for i := len(chain) - 1; i >= 0; i-- {
		if chain[i].Summary == "" {
			current = chain[i]
			break
		}
	}
	if current == nil {
		return
	}

	out, err := s.completer.CompleteStructured(ctx, summaryPrompt, promptVars(chain), summarySchema(current))
	if err != nil {
		s.log.Error().Err(err).Str("message_id", current.MessageID).Msg("Summarization failed")
		return
	}

	var result summaryResult
	if err := json.Unmarshal(out, &result); err != nil {
		s.log.Error().Err(err).Str("message_id", current.MessageID).Msg("Completion returned malformed JSON")
		return
	}
	if strings.TrimSpace(result.Summary) == "" {
		s.log.Warn().Str("message_id", current.MessageID).Msg("Completion returned empty summary")
		return
	}

	updated := *current
	updated.Summary = result.Summary
	for i := range updated.Images {
		if imgSummary, ok := result.Images[updated.Images[i].ContentID]; ok {
			updated.Images[i].Summary = imgSummary
		}
	}

	s.log.Info().Str("message_id", updated.MessageID).Msg("Summarized message")
	s.engine.Emit(EventMessageSummarized, &updated)
}

// promptVars exposes the chain to the prompt template.
func promptVars(chain []*mail.Message) map[string]any {
	msgs := make([]map[string]any, 0, len(chain))
	for _, m := range chain {
		imgs := make([]map[string]any, 0, len(m.Images))
		for _, img := range m.Images {
			imgs = append(imgs, map[string]any{
				"cid":     img.ContentID,
				"alt":     img.AltText,
				"uri":     img.SourceURI,
				"summary": img.Summary,
			})
		}
		msgs = append(msgs, map[string]any{
			"body":    m.Body,
			"summary": m.Summary,
			"images":  imgs,
		})
	}
	return map[string]any{"messages": msgs}
}

// summarySchema builds the response schema: a summary string plus one
// required entry per distinct image cid of the target message.
func summarySchema(current *mail.Message) json.RawMessage {
	cids := make([]string, 0, len(current.Images))
	seen := make(map[string]struct{}, len(current.Images))
	for _, img := range current.Images {
		if img.ContentID == "" {
			continue
		}
		if _, dup := seen[img.ContentID]; dup {
			continue
		}
		seen[img.ContentID] = struct{}{}
		cids = append(cids, img.ContentID)
	}

	imageProps := make(map[string]any, len(cids))
	for _, cid := range cids {
		imageProps[cid] = map[string]any{"type": "string"}
	}
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"summary": map[string]any{"type": "string"},
			"images": map[string]any{
				"type":       "object",
				"properties": imageProps,
				"required":   cids,
			},
		},
		"required": []string{"summary", "images"},
	}

	data, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("pipeline: marshal summary schema: %v", err))
	}
	return data
}
