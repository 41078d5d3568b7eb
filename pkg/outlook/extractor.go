package outlook

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mailrake/mailrake/pkg/browser"
	"github.com/mailrake/mailrake/pkg/logging"
	"github.com/mailrake/mailrake/pkg/mail"
	"github.com/mailrake/mailrake/pkg/reliability"
)

// idleScanWait is how long FindNextConversation blocks when every listed
// conversation has already been seen.
const idleScanWait = 30 * time.Second

// SkipFunc decides whether a message has already been fully processed and
// must not be re-ingested.
type SkipFunc func(conversationID, messageID string, ts time.Time) bool

// EmitFunc receives each extracted message in chain order. Returning an
// error stops the walk and propagates to the caller.
type EmitFunc func(msg *mail.Message) error

// timestampRE tolerantly matches datetimes like "Fri 4/11/2025 2:07 PM"
// inside the sent/received label.
var timestampRE = regexp.MustCompile(`(?i)\b(?:Mon|Tue|Wed|Thu|Fri|Sat|Sun)?\s*(\d{1,2}/\d{1,2}/\d{4})\s+(\d{1,2}:\d{2})\s*(AM|PM)?`)

// Extractor walks an opened conversation and yields ordered,
// content-addressed message records.
type Extractor struct {
	people        *PersonExtractor
	images        *ImageExtractor
	log           *zerolog.Logger
	elementPolicy reliability.Policy
}

// NewExtractor creates a message extractor.
func NewExtractor(people *PersonExtractor, images *ImageExtractor, log *zerolog.Logger, registry *reliability.Registry) *Extractor {
	logger := log.With().Str("component", "message_extractor").Logger()
	return &Extractor{
		people:        people,
		images:        images,
		log:           &logger,
		elementPolicy: registry.Get(reliability.PolicyElementTransient),
	}
}

// FindNextConversation scans the conversation list top-down and returns
// the id of the first row not in seen. When every row has been seen it
// blocks for a scan interval and returns empty; the caller loops.
func (e *Extractor) FindNextConversation(ctx context.Context, page browser.Page, seen map[string]bool) (string, error) {
	rows, err := page.FindAll(ctx, selConversationRows)
	if err != nil {
		return "", fmt.Errorf("list conversations: %w", err)
	}
	for _, row := range rows {
		id, err := row.GetAttribute(ctx, attrConversationID)
		if err != nil {
			return "", err
		}
		if id != "" && !seen[id] {
			return id, nil
		}
	}

	select {
	case <-time.After(idleScanWait):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return "", nil
}

// ExtractMessages opens the conversation and emits its messages oldest
// first. The walk threads one previous-id accumulator across both the
// skip and emit branches so the chain stays intact when earlier runs
// already persisted a prefix of the conversation. Data-integrity failures
// (unparseable timestamp, empty body) abort the walk and propagate; the
// conversation stays eligible for a later scan pass.
func (e *Extractor) ExtractMessages(ctx context.Context, page browser.Page, conversationID string, shouldSkip SkipFunc, emit EmitFunc) error {
	if err := e.openConversation(ctx, page, conversationID); err != nil {
		e.log.Warn().Err(err).Str("conversation_id", conversationID).Msg("Conversation could not be interacted with")
		return err
	}

	if err := page.WaitForSelector(ctx, selMessageContainers, 30*time.Second); err != nil {
		return fmt.Errorf("wait for message containers: %w", err)
	}

	subjectEl, err := page.FindOne(ctx, selSubject)
	if err != nil {
		return fmt.Errorf("find subject: %w", err)
	}
	subject, err := subjectEl.InnerText(ctx)
	if err != nil {
		return fmt.Errorf("read subject: %w", err)
	}

	containers, err := page.FindAll(ctx, selMessageContainers)
	if err != nil {
		return fmt.Errorf("list message containers: %w", err)
	}
	// The UI presents newest first; the chain is built oldest first.
	reverseElements(containers)

	previousMessageID := ""
	for _, container := range containers {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := e.expandIfCollapsed(ctx, container); err != nil {
			return err
		}

		blocks, err := container.FindAll(ctx, selContentBlocks)
		if err != nil {
			return err
		}
		if len(blocks) == 0 {
			e.log.Debug().
				Str("conversation_id", conversationID).
				Msg("Message container has no content blocks, skipping")
			continue
		}

		ts, err := e.parseTimestamp(ctx, container, conversationID)
		if err != nil {
			return err
		}

		var body strings.Builder
		for _, block := range blocks {
			html, err := block.InnerHTML(ctx)
			if err != nil {
				return fmt.Errorf("read message body: %w", err)
			}
			body.WriteString(html)
		}

		from, err := e.people.ExtractFrom(ctx, page, blocks[0])
		if err != nil {
			return fmt.Errorf("extract senders: %w", err)
		}

		messageID := mail.ComputeMessageID(conversationID, mail.SenderEmails(from), ts)

		if shouldSkip(conversationID, messageID, ts) {
			e.log.Info().
				Str("message_id", messageID).
				Str("conversation_id", conversationID).
				Msg("Skipping message")
			previousMessageID = messageID
			continue
		}

		to, err := e.people.ExtractRecipients(ctx, page, blocks[0], FieldTo)
		if err != nil {
			return fmt.Errorf("extract recipients: %w", err)
		}
		cc, err := e.people.ExtractRecipients(ctx, page, blocks[0], FieldCc)
		if err != nil {
			return fmt.Errorf("extract cc recipients: %w", err)
		}
		images, err := e.images.ExtractInlineImages(ctx, page, blocks[0])
		if err != nil {
			return fmt.Errorf("extract inline images: %w", err)
		}

		if strings.TrimSpace(body.String()) == "" {
			return fmt.Errorf("message %s in conversation %s has an empty body", messageID, conversationID)
		}

		msg := &mail.Message{
			ConversationID:    conversationID,
			MessageID:         messageID,
			PreviousMessageID: previousMessageID,
			Subject:           subject,
			Timestamp:         ts,
			Body:              body.String(),
			From:              from,
			To:                to,
			Cc:                cc,
			Images:            images,
		}
		if err := emit(msg); err != nil {
			return err
		}
		previousMessageID = messageID
	}
	return nil
}

func (e *Extractor) openConversation(ctx context.Context, page browser.Page, conversationID string) error {
	return e.elementPolicy.Execute(ctx, func() error {
		row, err := page.FindOne(ctx, fmt.Sprintf(selConversationByID, conversationID))
		if err != nil {
			return fmt.Errorf("find conversation %s: %w", conversationID, err)
		}
		return row.Click(ctx, browser.ClickOptions{ScrollIntoView: true})
	})
}

func (e *Extractor) expandIfCollapsed(ctx context.Context, container browser.Element) error {
	expanded, err := container.GetAttribute(ctx, "aria-expanded")
	if err != nil || expanded != "false" {
		return nil
	}
	if err := container.Click(ctx, browser.ClickOptions{}); err != nil {
		return fmt.Errorf("expand message card: %w", err)
	}
	if err := container.WaitStable(ctx); err != nil {
		return err
	}
	return container.WaitForSelector(ctx, selExpandedBody, 10*time.Second)
}

// parseTimestamp reads the sent/received label and parses a tolerant
// M/D/YYYY H:MM [AM|PM] datetime out of it. An unparseable timestamp is
// fatal for the conversation: without it the message has no identity.
func (e *Extractor) parseTimestamp(ctx context.Context, container browser.Element, conversationID string) (time.Time, error) {
	tsEl, err := container.FindOne(ctx, selTimestamp)
	if err != nil {
		return time.Time{}, &browser.NotAttachedError{Selector: selTimestamp}
	}
	rawText, err := tsEl.InnerText(ctx)
	if err != nil {
		return time.Time{}, err
	}

	ts, ok := parseUITimestamp(rawText)
	if !ok {
		return time.Time{}, fmt.Errorf("message in conversation %s has unparseable timestamp: %q",
			conversationID, logging.BoundAndClean(rawText, 80))
	}
	return ts, nil
}

// parseUITimestamp extracts the first datetime-like substring and parses
// it, with and without the meridiem.
func parseUITimestamp(raw string) (time.Time, bool) {
	m := timestampRE.FindStringSubmatch(raw)
	if m == nil {
		return time.Time{}, false
	}
	date, clock, meridiem := m[1], m[2], strings.ToUpper(m[3])

	if meridiem != "" {
		if ts, err := time.ParseInLocation("1/2/2006 3:04 PM", date+" "+clock+" "+meridiem, time.Local); err == nil {
			return ts, true
		}
	}
	if ts, err := time.ParseInLocation("1/2/2006 15:04", date+" "+clock, time.Local); err == nil {
		return ts, true
	}
	return time.Time{}, false
}

func reverseElements(els []browser.Element) {
	for i, j := 0, len(els)-1; i < j; i, j = i+1, j-1 {
		els[i], els[j] = els[j], els[i]
	}
}
