package parser

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSplitParagraphs(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"empty", "", nil},
		{"whitespace only", " \n\t\n  ", nil},
		{"single", "  Matter is made of atoms.  ", []string{"Matter is made of atoms."}},
		{
			"blank lines separate",
			"First para.\n\n  \nSecond\nline.\r\n\r\nThird",
			[]string{"First para.", "Second\nline.", "Third"},
		},
		{"leading breaks", "\n\n\nOnly one", []string{"Only one"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitParagraphs(tt.text, 0, 0))
		})
	}
}

func TestSplitParagraphsLongParagraph(t *testing.T) {
	got := splitParagraphs("abcdefghij\n\ntiny", 4, 1)
	assert.Equal(t, []string{"abcd", "defg", "ghij", "tiny"}, got)
}

func TestChunkContent(t *testing.T) {
	assert.Nil(t, chunkContent("anything", 0, 0))
	assert.Nil(t, chunkContent("   ", 10, 2))
	assert.Equal(t, []string{"short"}, chunkContent(" short ", 10, 2))

	long := strings.Repeat("é", 25)
	pieces := chunkContent(long, 10, 3)
	for _, p := range pieces {
		assert.True(t, utf8.ValidString(p))
		assert.LessOrEqual(t, utf8.RuneCountInString(p), 10)
	}
	assert.Equal(t, []string{strings.Repeat("é", 10), strings.Repeat("é", 10), strings.Repeat("é", 10), strings.Repeat("é", 4)}, pieces)
}

func TestChunkContentPrefersWordBoundary(t *testing.T) {
	content := strings.Repeat("word ", 40)
	for _, p := range chunkContent(content, 50, 10) {
		assert.False(t, strings.HasPrefix(p, " "))
		assert.NotContains(t, p, "wo rd")
	}
}

func TestChunkContentKeepsTextBeforeCut(t *testing.T) {
	content := strings.Repeat("a", 18) + " Bonds form between atoms"
	assert.Equal(t,
		[]string{strings.Repeat("a", 18), "Bonds form between", "atoms"},
		chunkContent(content, 20, 0))

	// without overlap the pieces tile the text exactly
	text := "Matter is made of atoms. Atoms of one element are identical in mass and properties."
	squash := func(s string) string { return strings.Join(strings.Fields(s), "") }
	assert.Equal(t, squash(text), squash(strings.Join(chunkContent(text, 20, 0), "")))
}
