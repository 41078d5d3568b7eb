package thread

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mailrake/mailrake/pkg/mail"
)

// SummaryRequester receives chains that are ready for downstream
// summarization, ordered oldest first and ending at the oldest
// unsummarized member.
type SummaryRequester interface {
	RequestSummary(chain []*mail.Message)
}

// RequesterFunc adapts a function to SummaryRequester.
type RequesterFunc func(chain []*mail.Message)

func (f RequesterFunc) RequestSummary(chain []*mail.Message) { f(chain) }

// Orchestrator assembles ancestor chains from messages that may arrive in
// any order and decides when a chain is ready for summarization. Messages
// are held in memory for the lifetime of the process; retention is
// bounded only by total mailbox volume, which is modest for the intended
// deployments.
//
// The chain walk and the resulting request form one read-modify-decide
// sequence, so both handlers run under a single lock: events may be
// delivered from any goroutine but are processed one at a time.
type Orchestrator struct {
	mu        sync.Mutex
	messages  map[string]*mail.Message
	requester SummaryRequester
	log       *zerolog.Logger
}

// NewOrchestrator creates an orchestrator that reports ready chains to
// requester.
func NewOrchestrator(requester SummaryRequester, log *zerolog.Logger) *Orchestrator {
	logger := log.With().Str("component", "thread_orchestrator").Logger()
	return &Orchestrator{
		messages:  make(map[string]*mail.Message),
		requester: requester,
		log:       &logger,
	}
}

// HandleNewMessage stores the message and, if its ancestor chain is
// complete back to the conversation root, requests summarization for the
// prefix ending at the oldest member still lacking a summary. A chain
// with a missing ancestor is left alone: the ancestor is expected to
// arrive later and is not an error.
func (o *Orchestrator) HandleNewMessage(msg *mail.Message) {
	if msg == nil || msg.MessageID == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	stored := *msg
	o.messages[msg.MessageID] = &stored

	chain, complete := o.buildChain(&stored)
	if !complete {
		o.log.Debug().
			Str("message_id", msg.MessageID).
			Msg("Ancestor not yet present, chain incomplete")
		return
	}
	o.requestOldestUnsummarized(chain)
}

// HandleNewSummary merges a freshly produced summary into the stored copy
// and moves the conversation forward: every direct child of the updated
// message that still lacks a summary gets its chain rebuilt and, when
// complete, re-requested — earliest child first. The child relation is
// one-to-many by construction even though linear chains are the norm.
func (o *Orchestrator) HandleNewSummary(updated *mail.Message) {
	if updated == nil || updated.MessageID == "" || updated.Summary == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	if existing, ok := o.messages[updated.MessageID]; ok {
		existing.Summary = updated.Summary
		for i := range updated.Images {
			if updated.Images[i].Summary == "" {
				continue
			}
			for j := range existing.Images {
				if existing.Images[j].ContentID == updated.Images[i].ContentID {
					existing.Images[j].Summary = updated.Images[i].Summary
				}
			}
		}
	} else {
		stored := *updated
		o.messages[updated.MessageID] = &stored
	}

	for _, child := range o.childrenOf(updated.MessageID) {
		if child.Summary != "" {
			continue
		}
		chain, complete := o.buildChain(child)
		if !complete {
			continue
		}
		o.requestOldestUnsummarized(chain)
	}
}

// Len returns the number of messages currently held.
func (o *Orchestrator) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.messages)
}

// buildChain walks backward from leaf via PreviousMessageID and returns
// the chain oldest first. complete is false when a referenced ancestor
// has not arrived yet. Raw files are operator-editable, so a corrupted
// ancestor loop is treated the same way as a missing ancestor instead
// of spinning under the lock.
func (o *Orchestrator) buildChain(leaf *mail.Message) ([]*mail.Message, bool) {
	var chain []*mail.Message
	visited := make(map[string]struct{})
	current := leaf
	for {
		if _, seen := visited[current.MessageID]; seen {
			o.log.Warn().
				Str("message_id", current.MessageID).
				Msg("Ancestor cycle detected, treating chain as incomplete")
			return nil, false
		}
		visited[current.MessageID] = struct{}{}

		chain = append([]*mail.Message{current}, chain...)
		if current.PreviousMessageID == "" {
			return chain, true
		}
		prev, ok := o.messages[current.PreviousMessageID]
		if !ok {
			return nil, false
		}
		current = prev
	}
}

// requestOldestUnsummarized finds the oldest chain member lacking a
// summary and requests summarization for the prefix through it. A fully
// summarized chain needs nothing.
func (o *Orchestrator) requestOldestUnsummarized(chain []*mail.Message) {
	for i, m := range chain {
		if m.Summary == "" {
			prefix := make([]*mail.Message, i+1)
			copy(prefix, chain[:i+1])
			o.log.Debug().
				Str("message_id", m.MessageID).
				Int("chain_len", len(prefix)).
				Msg("Requesting summarization")
			o.requester.RequestSummary(prefix)
			return
		}
	}
}

// childrenOf returns the stored messages whose PreviousMessageID is id,
// earliest timestamp first.
func (o *Orchestrator) childrenOf(id string) []*mail.Message {
	var children []*mail.Message
	for _, m := range o.messages {
		if m.PreviousMessageID == id {
			children = append(children, m)
		}
	}
	sort.Slice(children, func(i, j int) bool {
		return children[i].Timestamp.Before(children[j].Timestamp)
	})
	return children
}
