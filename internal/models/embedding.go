package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ChunkType tags the content class a chunk was extracted from.
type ChunkType string

const (
	ChunkTypeText  ChunkType = "text"
	ChunkTypeTable ChunkType = "table"
	ChunkTypeOCR   ChunkType = "ocr"
)

// ContentKind discriminates the two shapes a chunk payload can take.
type ContentKind int

const (
	TextContent ContentKind = iota
	TableContent
)

// Content is either a plain string or a rectangular table of cells.
type Content struct {
	kind ContentKind
	text string
	rows [][]string
}

// NewTextContent wraps a plain string payload.
func NewTextContent(s string) Content {
	return Content{kind: TextContent, text: s}
}

// NewTableContent wraps a row/cell matrix. Ragged rows are padded to the
// widest row so the table stays rectangular.
func NewTableContent(rows [][]string) Content {
	width := 0
	for _, row := range rows {
		width = max(width, len(row))
	}
	table := make([][]string, len(rows))
	for i, row := range rows {
		cells := make([]string, width)
		copy(cells, row)
		table[i] = cells
	}
	return Content{kind: TableContent, rows: table}
}

func (c Content) Kind() ContentKind { return c.kind }

// Text returns the string payload; empty for tables.
func (c Content) Text() string { return c.text }

// Rows returns the table payload; nil for text.
func (c Content) Rows() [][]string { return c.rows }

// IsEmpty reports whether the payload carries no usable content: a blank
// string, or a table without a single non-blank row.
func (c Content) IsEmpty() bool {
	switch c.kind {
	case TextContent:
		return strings.TrimSpace(c.text) == ""
	case TableContent:
		for _, row := range c.rows {
			for _, cell := range row {
				if strings.TrimSpace(cell) != "" {
					return false
				}
			}
		}
		return true
	default:
		panic(fmt.Sprintf("models: unknown content kind %d", c.kind))
	}
}

// Flatten projects the payload onto the single string handed to the
// embedder. Tables are rendered row-major with CellSeparator between cells
// and RowSeparator between rows.
func (c Content) Flatten() string {
	switch c.kind {
	case TextContent:
		return c.text
	case TableContent:
		lines := make([]string, 0, len(c.rows))
		for _, row := range c.rows {
			if rowIsBlank(row) {
				continue
			}
			lines = append(lines, strings.Join(row, CellSeparator))
		}
		return strings.Join(lines, RowSeparator)
	default:
		panic(fmt.Sprintf("models: unknown content kind %d", c.kind))
	}
}

// Render returns the human-readable form used in prompts and previews.
func (c Content) Render() string {
	switch c.kind {
	case TextContent:
		return strings.TrimSpace(c.text)
	case TableContent:
		return c.Flatten()
	default:
		panic(fmt.Sprintf("models: unknown content kind %d", c.kind))
	}
}

func (c Content) MarshalJSON() ([]byte, error) {
	switch c.kind {
	case TextContent:
		return json.Marshal(c.text)
	case TableContent:
		rows := c.rows
		if rows == nil {
			rows = [][]string{}
		}
		return json.Marshal(rows)
	default:
		return nil, fmt.Errorf("unknown content kind %d", c.kind)
	}
}

func (c *Content) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = NewTextContent(s)
		return nil
	}
	var rows [][]string
	if err := json.Unmarshal(data, &rows); err != nil {
		return fmt.Errorf("content is neither a string nor a table: %w", err)
	}
	*c = NewTableContent(rows)
	return nil
}

func rowIsBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// Chunk is the atomic unit of retrievable content.
type Chunk struct {
	SourceID string    `json:"source_id"`
	Page     int       `json:"page"`
	LocalID  string    `json:"local_id"`
	Type     ChunkType `json:"type"`
	Content  Content   `json:"content"`
}

// NewChunk builds a chunk whose local id is "<type>_<index>".
func NewChunk(sourceID string, page int, chunkType ChunkType, index int, content Content) Chunk {
	return Chunk{
		SourceID: sourceID,
		Page:     page,
		LocalID:  fmt.Sprintf("%s_%d", chunkType, index),
		Type:     chunkType,
		Content:  content,
	}
}

func (c Chunk) IsEmpty() bool { return c.Content.IsEmpty() }

// Key identifies a chunk within a corpus.
func (c Chunk) Key() string {
	return fmt.Sprintf("%s#p%d/%s", c.SourceID, c.Page, c.LocalID)
}

// SearchResult pairs a retrieved chunk with its distance to the query.
type SearchResult struct {
	Chunk    Chunk
	Distance float32
}

type PromptResponse struct {
	Query   string
	Prompt  string
	Source  string
	Content string
	Chunks  []SearchResult
}
