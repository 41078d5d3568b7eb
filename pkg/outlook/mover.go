package outlook

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mailrake/mailrake/pkg/browser"
	"github.com/mailrake/mailrake/pkg/reliability"
)

// Mover marks conversations processed in the source mailbox by moving
// them to a target folder. Moving is best-effort: ingestion correctness
// never depends on it succeeding.
type Mover struct {
	log           *zerolog.Logger
	elementPolicy reliability.Policy
	targetFolder  string
}

// NewMover creates a conversation mover targeting the named folder.
func NewMover(log *zerolog.Logger, registry *reliability.Registry, targetFolder string) *Mover {
	logger := log.With().Str("component", "mover").Logger()
	if targetFolder == "" {
		targetFolder = "Processed"
	}
	return &Mover{
		log:           &logger,
		elementPolicy: registry.Get(reliability.PolicyElementTransient),
		targetFolder:  targetFolder,
	}
}

// MoveToProcessed opens the conversation's context menu and moves it to
// the target folder. Returns false on unrecoverable failure; the error is
// logged, never propagated.
func (m *Mover) MoveToProcessed(ctx context.Context, page browser.Page, conversationID string) bool {
	err := m.elementPolicy.Execute(ctx, func() error {
		row, err := page.FindOne(ctx, fmt.Sprintf(selConversationByID, conversationID))
		if err != nil {
			m.log.Warn().Str("conversation_id", conversationID).Msg("Conversation not found in DOM")
			// Rows detach while the list re-renders; retryable.
			return &browser.NotAttachedError{Selector: fmt.Sprintf(selConversationByID, conversationID)}
		}
		if err := row.Click(ctx, browser.ClickOptions{Button: browser.ButtonRight}); err != nil {
			return err
		}

		if err := page.WaitForSelector(ctx, selMoveMenuItem, 10*time.Second); err != nil {
			return err
		}
		moveItem, err := page.FindOne(ctx, selMoveMenuItem)
		if err != nil {
			return fmt.Errorf("move menu not found: %w", err)
		}
		if err := moveItem.Click(ctx, browser.ClickOptions{}); err != nil {
			return err
		}

		if err := page.WaitForSelector(ctx, selFolderSearch, 10*time.Second); err != nil {
			return err
		}
		searchBox, err := page.FindOne(ctx, selFolderSearch)
		if err != nil {
			return fmt.Errorf("folder search box not found: %w", err)
		}
		if err := searchBox.Fill(ctx, m.targetFolder); err != nil {
			return err
		}

		folderSel := fmt.Sprintf(selFolderByTitle, m.targetFolder)
		if err := page.WaitForSelector(ctx, folderSel, 10*time.Second); err != nil {
			return err
		}
		folder, err := page.FindOne(ctx, folderSel)
		if err != nil {
			return fmt.Errorf("target folder not found: %w", err)
		}
		return folder.Click(ctx, browser.ClickOptions{})
	})
	if err != nil {
		m.log.Warn().Err(err).Str("conversation_id", conversationID).Msg("Failed to move conversation")
		return false
	}

	m.log.Info().Str("conversation_id", conversationID).Str("folder", m.targetFolder).Msg("Moved conversation")
	return true
}
