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

func newTestMover(folder string) *Mover {
	log := zerolog.Nop()
	return NewMover(&log, reliability.NewRegistry(), folder)
}

// movePage builds a page where the Move dialog is already rendered, so
// every wait the mover performs resolves immediately.
func movePage(convID, folder string) (*browsertest.Page, *browsertest.Node, *browsertest.Node, *browsertest.Node) {
	row := conversationRow(convID)
	search := &browsertest.Node{Tag: "input", Attrs: map[string]string{"placeholder": "Search for a folder"}}
	folderItem := &browsertest.Node{Tag: "div", Attrs: map[string]string{"role": "menuitem", "title": folder}}
	menu := &browsertest.Node{Tag: "div", Attrs: map[string]string{"role": "menuitem", "aria-label": "Move"}}
	page := browsertest.NewPage(row, menu, search, folderItem)
	return page, row, search, folderItem
}

func TestMoveToProcessed_HappyPath(t *testing.T) {
	m := newTestMover("Archive2025")
	page, row, search, folderItem := movePage("conv1", "Archive2025")

	ok := m.MoveToProcessed(context.Background(), page, "conv1")
	require.True(t, ok)

	assert.Equal(t, 1, row.Clicks, "context menu opened on the row")
	assert.Equal(t, "Archive2025", search.FilledWith, "folder search narrowed to the target")
	assert.Equal(t, 1, folderItem.Clicks, "target folder clicked")
}

func TestMoveToProcessed_DefaultFolder(t *testing.T) {
	m := newTestMover("")
	page, _, search, _ := movePage("conv1", "Processed")

	ok := m.MoveToProcessed(context.Background(), page, "conv1")
	require.True(t, ok)
	assert.Equal(t, "Processed", search.FilledWith)
}

func TestMoveToProcessed_MissingRowReturnsFalse(t *testing.T) {
	m := newTestMover("Processed")
	page := browsertest.NewPage() // no rows at all

	ok := m.MoveToProcessed(context.Background(), page, "conv1")
	assert.False(t, ok, "failure is reported, never propagated")
}

func TestMoveToProcessed_MissingDialogReturnsFalse(t *testing.T) {
	m := newTestMover("Processed")
	page := browsertest.NewPage(conversationRow("conv1"))

	ok := m.MoveToProcessed(context.Background(), page, "conv1")
	assert.False(t, ok)
}
