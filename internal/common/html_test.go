package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanHTML_EmptyInput(t *testing.T) {
	assert.Equal(t, "", CleanHTML(""))
}

func TestCleanHTML_BlockElements(t *testing.T) {
	input := `<p>First paragraph</p><div>A div</div><span>Inline span</span>`

	result := CleanHTML(input)

	assert.Equal(t, "First paragraph\nA div\nInline span", result)
}

func TestCleanHTML_ListItemsGetBullets(t *testing.T) {
	input := `<li>one</li><li>two</li>`

	result := CleanHTML(input)

	assert.Equal(t, "• one\n• two", result)
}

func TestCleanHTML_HeadingsGetBoldMarkers(t *testing.T) {
	input := `<h1>Title</h1><p>Body</p><h3>Sub</h3>`

	result := CleanHTML(input)

	assert.Equal(t, "**Title**\nBody\n**Sub**", result)
}

func TestCleanHTML_DocumentOrder(t *testing.T) {
	input := `<p>a</p><li>b</li><h2>c</h2><p>d</p>`

	assert.Equal(t, "a\n• b\n**c**\nd", CleanHTML(input))
}

func TestCleanHTML_EmptyElementsDropped(t *testing.T) {
	input := `<p>kept</p><p>   </p><p></p><p>also kept</p>`

	assert.Equal(t, "kept\nalso kept", CleanHTML(input))
}

func TestCleanHTML_TextOutsideSelectorsIsDropped(t *testing.T) {
	// Raw text not inside a matched element does not survive cleaning
	input := `stray text <p>inside</p> more stray`

	assert.Equal(t, "inside", CleanHTML(input))
}

func TestCleanHTML_MultilineTextPreserved(t *testing.T) {
	input := "<p>Do X</p><p>Acceptance Criteria:\nmust do X\nmust log Y</p>"

	result := CleanHTML(input)

	assert.Equal(t, "Do X\nAcceptance Criteria:\nmust do X\nmust log Y", result)
}

func TestExtractText_NestedNodes(t *testing.T) {
	input := `<p>outer <b>bold</b> tail</p>`

	assert.Equal(t, "outer bold tail", CleanHTML(input))
}
