package parser

import (
	"os"
	"strings"

	"docqa/internal/models"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// extractMarkdown turns each top-level block into a text chunk and each GFM
// table into a table chunk.
func (e *Extractor) extractMarkdown(path string) ([]models.Chunk, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var paragraphs []string
	var tables [][][]string
	doc := markdown.Parser().Parse(text.NewReader(src))
	for block := doc.FirstChild(); block != nil; block = block.NextSibling() {
		if table, ok := block.(*extast.Table); ok {
			tables = append(tables, tableRows(table, src))
			continue
		}
		if s := strings.TrimSpace(blockText(block, src)); s != "" {
			paragraphs = append(paragraphs, s)
		}
	}

	var chunks []models.Chunk
	for _, p := range paragraphs {
		chunks = append(chunks, e.textChunks(path, defaultPageNumber, p)...)
	}
	return renumber(append(chunks, tableChunks(path, defaultPageNumber, tables)...)), nil
}

func tableRows(table *extast.Table, src []byte) [][]string {
	var rows [][]string
	for row := table.FirstChild(); row != nil; row = row.NextSibling() {
		var cells []string
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			cells = append(cells, strings.TrimSpace(inlineText(cell, src)))
		}
		rows = append(rows, cells)
	}
	return rows
}

// blockText collects the text of a block and its descendants, one line per
// leaf block.
func blockText(block ast.Node, src []byte) string {
	var lines []string
	_ = ast.Walk(block, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case ast.KindParagraph, ast.KindHeading, ast.KindTextBlock:
			lines = append(lines, inlineText(n, src))
			return ast.WalkSkipChildren, nil
		case ast.KindFencedCodeBlock, ast.KindCodeBlock:
			segments := n.Lines()
			for i := 0; i < segments.Len(); i++ {
				seg := segments.At(i)
				lines = append(lines, strings.TrimRight(string(seg.Value(src)), "\n"))
			}
			return ast.WalkSkipChildren, nil
		case ast.KindHTMLBlock:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return strings.Join(lines, "\n")
}

func inlineText(n ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := n.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte('\n')
			}
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}
