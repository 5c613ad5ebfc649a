package rag

import (
	"fmt"
	"strings"

	"docqa/internal/models"
)

// AssemblePrompt fills the grounding template with one bullet per chunk and
// the question verbatim.
func AssemblePrompt(question string, chunks []models.Chunk) string {
	lines := make([]string, len(chunks))
	for i, c := range chunks {
		lines[i] = models.ContextBullet + c.Content.Render()
	}
	return fmt.Sprintf(models.PromptTemplate, strings.Join(lines, "\n"), question)
}

// Sources lists where each result came from, one per line.
func Sources(results []models.SearchResult) string {
	lines := make([]string, len(results))
	for i, r := range results {
		lines[i] = fmt.Sprintf("%s p.%d %s", r.Chunk.SourceID, r.Chunk.Page, r.Chunk.LocalID)
	}
	return strings.Join(lines, "\n")
}
