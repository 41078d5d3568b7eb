package mail

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// Person is one participant of a message. At least one of the two fields
// is present; the UI sometimes only exposes a display name.
type Person struct {
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
}

// InlineImage is an embedded image referenced from the message body by
// content-id. Bytes are never serialized with the message; the store
// writes them as separate files.
type InlineImage struct {
	ContentID     string `json:"cid"`
	AltText       string `json:"alt"`
	SourceURI     string `json:"uri"`
	Bytes         []byte `json:"-"`
	FileExtension string `json:"fileExtension"`
	Summary       string `json:"summary,omitempty"`
}

// FileName returns the name the image bytes are stored under.
func (img *InlineImage) FileName() string {
	return img.ContentID + img.FileExtension
}

// Message is the unit of work: one message of one webmail conversation.
type Message struct {
	ConversationID    string        `json:"conversationId"`
	MessageID         string        `json:"messageId"`
	PreviousMessageID string        `json:"previousMessageId,omitempty"`
	Subject           string        `json:"subject"`
	Timestamp         time.Time     `json:"timestamp"`
	Body              string        `json:"body"`
	From              []Person      `json:"from"`
	To                []Person      `json:"to"`
	Cc                []Person      `json:"cc,omitempty"`
	Images            []InlineImage `json:"images,omitempty"`
	Summary           string        `json:"summary,omitempty"`
}

// ComputeMessageID derives the content-addressed message id. It is a pure
// function of the conversation id, the sender addresses and the message
// timestamp, so re-extracting an unchanged conversation reproduces the
// same ids across runs and process restarts. Sender emails are lowercased
// and sorted first so the digest does not depend on the order the UI
// happened to list them in.
func ComputeMessageID(conversationID string, senderEmails []string, ts time.Time) string {
	emails := make([]string, 0, len(senderEmails))
	for _, e := range senderEmails {
		emails = append(emails, strings.ToLower(strings.TrimSpace(e)))
	}
	sort.Strings(emails)

	sum := sha256.Sum256([]byte(conversationID + "|" + strings.Join(emails, ",") + "|" + ts.Format(time.RFC3339)))
	return hex.EncodeToString(sum[:])[:6]
}

// SenderEmails returns the email addresses of the From participants,
// skipping entries that only carry a display name.
func SenderEmails(from []Person) []string {
	var emails []string
	for _, p := range from {
		if p.Email != "" {
			emails = append(emails, p.Email)
		}
	}
	return emails
}
