package parser

import (
	"bufio"
	"strings"
)

type paragraphState struct {
	lines    []string
	result   []string
	maxChars int
	overlap  int
}

// splitParagraphs breaks text on blank lines. Paragraphs are trimmed and
// empty ones dropped. With maxChars > 0 longer paragraphs are cut into
// overlapping pieces.
func splitParagraphs(text string, maxChars, overlap int) []string {
	state := paragraphState{maxChars: maxChars, overlap: overlap}

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 4096), max(len(text)+1, bufio.MaxScanTokenSize))
	for scanner.Scan() {
		processLine(strings.TrimSuffix(scanner.Text(), "\r"), &state)
	}
	handleParagraphBreak(&state)
	return state.result
}

func processLine(line string, state *paragraphState) {
	if strings.TrimSpace(line) == "" {
		handleParagraphBreak(state)
		return
	}
	state.lines = append(state.lines, line)
}

// handleParagraphBreak stores the accumulated paragraph, if any.
func handleParagraphBreak(state *paragraphState) {
	if len(state.lines) == 0 {
		return
	}
	paragraph := strings.TrimSpace(strings.Join(state.lines, "\n"))
	state.lines = state.lines[:0]
	if paragraph == "" {
		return
	}
	if state.maxChars <= 0 {
		state.result = append(state.result, paragraph)
		return
	}
	state.result = append(state.result, chunkContent(paragraph, state.maxChars, state.overlap)...)
}

// chunkContent cuts content into pieces of at most maxChars runes, each
// starting maxChars-overlapChars runes after the previous one. Cuts prefer
// a space, newline or full stop within the last tenth of a piece.
func chunkContent(content string, maxChars, overlapChars int) []string {
	if maxChars <= 0 {
		return nil
	}
	if overlapChars < 0 {
		overlapChars = 0
	}
	if overlapChars >= maxChars {
		overlapChars = maxChars / 2
	}

	runes := []rune(strings.TrimSpace(content))
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= maxChars {
		return []string{string(runes)}
	}

	var chunks []string
	for start := 0; start < len(runes); {
		end := min(start+maxChars, len(runes))
		if end < len(runes) {
			lookBack := min(maxChars/10, end-start)
			for i := end - 1; i >= end-lookBack && i > start; i-- {
				if runes[i] == ' ' || runes[i] == '\n' || runes[i] == '.' {
					end = i + 1
					break
				}
			}
		}
		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}
		// the next piece overlaps the actual cut, not the nominal one
		next := end - overlapChars
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}
