package browsertest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatches_TagAndAttributes(t *testing.T) {
	row := &Node{Tag: "div", Attrs: map[string]string{
		"role":               "option",
		"data-focusable-row": "true",
		"data-convid":        "abc123",
	}}

	assert.True(t, Matches(row, "div[role='option'][data-focusable-row='true']"))
	assert.True(t, Matches(row, "div[data-convid='abc123']"))
	assert.False(t, Matches(row, "div[data-convid='zzz']"))
	assert.False(t, Matches(row, "span[role='option']"))
	assert.True(t, Matches(row, "div[data-convid]"), "bare attribute matches on presence")
}

func TestMatches_PrefixAttribute(t *testing.T) {
	chip := &Node{Tag: "span", Attrs: map[string]string{
		"aria-label":    "From: Alice Smith",
		"role":          "button",
		"aria-haspopup": "dialog",
	}}

	assert.True(t, Matches(chip, "span[aria-label^='From:'][role='button']"))
	assert.False(t, Matches(chip, "span[aria-label^='To:']"))
}

func TestMatches_Not(t *testing.T) {
	active := &Node{Tag: "span", Attrs: map[string]string{"role": "button"}}
	inert := &Node{Tag: "span", Attrs: map[string]string{"role": "button", "tabindex": "-1"}}

	sel := "span[role='button']:not([tabindex='-1'])"
	assert.True(t, Matches(active, sel))
	assert.False(t, Matches(inert, sel))
}

func TestMatches_CommaAlternatives(t *testing.T) {
	host := &Node{Tag: "div", Classes: []string{"wide-content-host"}}
	doc := &Node{Tag: "div", Attrs: map[string]string{"role": "document"}}
	other := &Node{Tag: "div"}

	sel := "div.wide-content-host, div[role='document']"
	assert.True(t, Matches(host, sel))
	assert.True(t, Matches(doc, sel))
	assert.False(t, Matches(other, sel))
}

func TestMatches_CombinatorUsesLastSimple(t *testing.T) {
	// Only the last simple selector of a chain is evaluated.
	card := &Node{Tag: "div", Attrs: map[string]string{"aria-expanded": "true"}}
	assert.True(t, Matches(card, "div[data-app-section='ConversationContainer'] > div > div > div[aria-expanded]"))

	span := &Node{Tag: "span", Attrs: map[string]string{"title": "a@b.c"}}
	assert.True(t, Matches(span, "button span[title]"))
}

func TestMatches_IDAndClass(t *testing.T) {
	n := &Node{Tag: "div", ID: "extendedCardFullViewCollapsableWrapperBodyCustomScrollBar"}
	assert.True(t, Matches(n, "div#extendedCardFullViewCollapsableWrapperBodyCustomScrollBar"))
	assert.False(t, Matches(n, "div#other"))

	b := &Node{Tag: "button", ID: "plusOthersButton", Attrs: map[string]string{"id": "plusOthersButton"}}
	assert.True(t, Matches(b, "button[id='plusOthersButton']"))
}
