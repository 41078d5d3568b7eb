package outlook

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mailrake/mailrake/pkg/browser"
	"github.com/mailrake/mailrake/pkg/logging"
	"github.com/mailrake/mailrake/pkg/mail"
	"github.com/mailrake/mailrake/pkg/reliability"
)

// Recipient field labels understood by ExtractRecipients.
const (
	FieldFrom = "From:"
	FieldTo   = "To:"
	FieldCc   = "Cc:"
)

// PersonExtractor resolves display-name/email pairs from the participant
// widgets of a message card. Each chip's open/read/dismiss round trip is
// retried individually so one flaky chip does not abort the whole field.
type PersonExtractor struct {
	log           *zerolog.Logger
	elementPolicy reliability.Policy
}

// NewPersonExtractor creates a participant extractor.
func NewPersonExtractor(log *zerolog.Logger, registry *reliability.Registry) *PersonExtractor {
	logger := log.With().Str("component", "person_extractor").Logger()
	return &PersonExtractor{
		log:           &logger,
		elementPolicy: registry.Get(reliability.PolicyElementTransient),
	}
}

// ExtractFrom resolves the sender(s) of a message card.
func (e *PersonExtractor) ExtractFrom(ctx context.Context, page browser.Page, msg browser.Element) ([]mail.Person, error) {
	var people []mail.Person

	err := e.elementPolicy.Execute(ctx, func() error {
		people = people[:0]
		chips, err := msg.FindAll(ctx, fmt.Sprintf(selSenderChips, FieldFrom))
		if err != nil {
			return err
		}
		if len(chips) == 0 {
			e.log.Warn().Str("field", FieldFrom).Msg("Could not find container for field")
			return nil
		}

		for _, chip := range chips {
			name, err := chip.InnerText(ctx)
			if err != nil {
				return err
			}
			email := e.resolveEmail(ctx, page, chip)

			if name != "" || email != "" {
				people = append(people, mail.Person{DisplayName: name, Email: email})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dedupePeople(people), nil
}

// ExtractRecipients resolves the people of one recipient field
// (FieldTo or FieldCc). A missing Cc container is normal and yields an
// empty list; a missing To container is logged but not an error.
func (e *PersonExtractor) ExtractRecipients(ctx context.Context, page browser.Page, msg browser.Element, field string) ([]mail.Person, error) {
	var people []mail.Person

	err := e.elementPolicy.Execute(ctx, func() error {
		people = people[:0]
		container, err := msg.FindOne(ctx, fmt.Sprintf(selRecipientField, field))
		if err == browser.ErrNotFound {
			if field != FieldCc {
				e.log.Warn().Str("field", field).Msg("Could not find container for field")
			}
			return nil
		}
		if err != nil {
			return err
		}

		if expand, err := container.FindOne(ctx, selExpandOthers); err == nil {
			if err := expand.Click(ctx, browser.ClickOptions{}); err != nil {
				return err
			}
			if err := expand.WaitStable(ctx); err != nil {
				return err
			}
		}

		chips, err := container.FindAll(ctx, selRecipientChips)
		if err != nil {
			return err
		}
		for _, chip := range chips {
			name, err := chip.GetAttribute(ctx, "aria-label")
			if err != nil {
				return err
			}
			email := e.resolveEmail(ctx, page, chip)

			if name != "" || email != "" {
				people = append(people, mail.Person{DisplayName: name, Email: email})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dedupePeople(people), nil
}

// resolveEmail opens a chip's contact card, reads the titled email field
// and dismisses the card again. Failures leave the email empty; the chip
// still contributes its display name.
func (e *PersonExtractor) resolveEmail(ctx context.Context, page browser.Page, chip browser.Element) string {
	var email string
	err := e.elementPolicy.Execute(ctx, func() error {
		defer func() {
			// The card swallows focus until dismissed.
			_ = page.PressKey(ctx, "Escape")
		}()

		if err := chip.Click(ctx, browser.ClickOptions{}); err != nil {
			return err
		}
		if err := page.WaitForSelector(ctx, selContactCard, 10*time.Second); err != nil {
			return err
		}

		card, err := page.FindOne(ctx, selContactCard)
		if err != nil {
			return err
		}
		span, err := card.FindOne(ctx, selContactEmail)
		if err != nil {
			return err
		}
		title, err := span.GetAttribute(ctx, "title")
		if err != nil {
			return err
		}
		if strings.TrimSpace(title) == "" {
			return fmt.Errorf("contact card email title was empty")
		}
		email = strings.TrimSpace(title)
		return nil
	})
	if err != nil {
		e.log.Debug().Err(err).Msg("Could not resolve email from contact card")
	}
	if email != "" {
		e.log.Debug().Str("email", logging.MaskEmail(email)).Msg("Resolved participant email")
	}
	return email
}

// dedupePeople drops duplicate (email, displayName) pairs case
// insensitively and entries with both fields empty.
func dedupePeople(people []mail.Person) []mail.Person {
	seen := make(map[string]struct{}, len(people))
	out := people[:0]
	for _, p := range people {
		if strings.TrimSpace(p.Email) == "" && strings.TrimSpace(p.DisplayName) == "" {
			continue
		}
		key := strings.ToLower(p.Email) + "|" + strings.ToLower(p.DisplayName)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return out
}
