package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentIsEmpty(t *testing.T) {
	tests := []struct {
		name    string
		content Content
		want    bool
	}{
		{"blank text", NewTextContent("  \n\t"), true},
		{"text", NewTextContent("atoms"), false},
		{"no rows", NewTableContent(nil), true},
		{"blank rows", NewTableContent([][]string{{"", " "}, {"\n"}}), true},
		{"one cell", NewTableContent([][]string{{"", ""}, {"", "x"}}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.content.IsEmpty())
		})
	}
}

func TestTableFlatten(t *testing.T) {
	c := NewTableContent([][]string{{"A", "B"}, {"C", "D"}})
	assert.Equal(t, "A | B\nC | D", c.Flatten())
	assert.Equal(t, "A | B\nC | D", c.Render())
	assert.Equal(t, [][]string{{"A", "B"}, {"C", "D"}}, c.Rows())
}

func TestTableFlattenSkipsBlankRowsAndPads(t *testing.T) {
	c := NewTableContent([][]string{{"A", "B", "C"}, {"", ""}, {"D"}})
	assert.Equal(t, "A | B | C\nD |  | ", c.Flatten())
	assert.Len(t, c.Rows()[2], 3)
}

func TestChunkJSONLayout(t *testing.T) {
	table := NewChunk("report.pdf", 2, ChunkTypeTable, 0, NewTableContent([][]string{{"A", "B"}}))
	data, err := json.Marshal(table)
	require.NoError(t, err)
	assert.JSONEq(t, `{"source_id":"report.pdf","page":2,"local_id":"table_0","type":"table","content":[["A","B"]]}`, string(data))

	var back Chunk
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, TableContent, back.Content.Kind())
	assert.Equal(t, table, back)

	text := NewChunk("report.pdf", 1, ChunkTypeText, 3, NewTextContent("hello"))
	data, err = json.Marshal(text)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"content":"hello"`)
	assert.Equal(t, "text_3", text.LocalID)
}

func TestSnapshotValidate(t *testing.T) {
	s := &Snapshot{
		Manifest: Manifest{Dimension: 2, Count: 1},
		Vectors:  [][]float32{{1, 2}},
		Chunks:   []Chunk{NewChunk("a", 1, ChunkTypeText, 0, NewTextContent("x"))},
	}
	require.NoError(t, s.Validate())

	s.Vectors = append(s.Vectors, []float32{3, 4})
	assert.ErrorIs(t, s.Validate(), ErrStoreCorrupt)

	s.Vectors = [][]float32{{1, 2, 3}}
	assert.ErrorIs(t, s.Validate(), ErrStoreCorrupt)
}
