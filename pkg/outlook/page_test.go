package outlook

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailrake/mailrake/pkg/browser/browsertest"
	"github.com/mailrake/mailrake/pkg/reliability"
)

func newTestPageHelper(url string) *PageHelper {
	log := zerolog.Nop()
	return NewPageHelper(&log, reliability.NewRegistry(), url)
}

func TestRefresh_NavigatesAndSuppressesNotifications(t *testing.T) {
	h := newTestPageHelper("https://outlook.example.com/mail")
	page := browsertest.NewPage(conversationRow("conv1"))

	require.NoError(t, h.Refresh(context.Background(), page))

	require.Len(t, page.Navigations, 1)
	assert.Equal(t, "https://outlook.example.com/mail", page.Navigations[0])
	require.Len(t, page.Styles, 1)
	assert.Contains(t, page.Styles[0], "NotificationPane")
}

func TestRefresh_DefaultsToInboxURL(t *testing.T) {
	h := newTestPageHelper("")
	page := browsertest.NewPage(conversationRow("conv1"))

	require.NoError(t, h.Refresh(context.Background(), page))
	require.Len(t, page.Navigations, 1)
	assert.Equal(t, InboxURL, page.Navigations[0])
}

func TestRefresh_EmptyListFailsAfterRetries(t *testing.T) {
	h := newTestPageHelper("")
	page := browsertest.NewPage() // conversation list never appears

	err := h.Refresh(context.Background(), page)
	require.Error(t, err)
	assert.Len(t, page.Navigations, 3, "page refresh retries timeouts")
}
