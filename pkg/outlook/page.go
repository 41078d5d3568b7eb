package outlook

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mailrake/mailrake/pkg/browser"
	"github.com/mailrake/mailrake/pkg/reliability"
)

// PageHelper brings a page into a state where conversation rows are
// queryable.
type PageHelper struct {
	log           *zerolog.Logger
	refreshPolicy reliability.Policy
	inboxURL      string
}

// NewPageHelper creates a page helper targeting the given mailbox URL.
func NewPageHelper(log *zerolog.Logger, registry *reliability.Registry, inboxURL string) *PageHelper {
	logger := log.With().Str("component", "page_helper").Logger()
	if inboxURL == "" {
		inboxURL = InboxURL
	}
	return &PageHelper{
		log:           &logger,
		refreshPolicy: registry.Get(reliability.PolicyPageRefresh),
		inboxURL:      inboxURL,
	}
}

// Refresh navigates to the mailbox inbox view, waits for the conversation
// list to exist and hides the notification pane. After a successful
// return the page is ready for conversation scans.
func (h *PageHelper) Refresh(ctx context.Context, page browser.Page) error {
	return h.refreshPolicy.Execute(ctx, func() error {
		h.log.Info().Msg("Refreshing mailbox view")

		if err := page.Navigate(ctx, h.inboxURL); err != nil {
			return fmt.Errorf("navigate to inbox: %w", err)
		}
		if err := page.WaitForSelector(ctx, selConversationRows, 30*time.Second); err != nil {
			return fmt.Errorf("wait for conversation list: %w", err)
		}
		if err := page.AddStyle(ctx, notificationPaneCSS); err != nil {
			return fmt.Errorf("suppress notification pane: %w", err)
		}

		h.log.Info().Msg("Page refresh succeeded")
		return nil
	})
}
