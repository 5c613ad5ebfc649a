package parser

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"docqa/internal/config"
	"docqa/internal/models"

	"github.com/rs/zerolog/log"
)

// Recognizer turns an image into the text visible in it.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

type Options struct {
	// MaxParagraphChars splits longer paragraphs into overlapping pieces.
	// Zero keeps paragraphs whole.
	MaxParagraphChars int
	ParagraphOverlap  int
	// Recognizer is used for images embedded in PDFs. Nil disables OCR.
	Recognizer Recognizer
}

// Extractor decomposes documents into text, table and ocr chunks.
type Extractor struct {
	opts Options
}

func New(opts Options) *Extractor {
	return &Extractor{opts: opts}
}

func NewFromConfig(cfg *config.Config, recognizer Recognizer) *Extractor {
	return New(Options{
		MaxParagraphChars: cfg.RAG.ChunkSize,
		ParagraphOverlap:  cfg.RAG.ChunkOverlap,
		Recognizer:        recognizer,
	})
}

var supportedExts = []string{".pdf", ".docx", ".pptx", ".xlsx", ".xlsm", ".xltx", ".xltm", ".md", ".markdown", ".txt"}

func Supported(path string) bool {
	return slices.Contains(supportedExts, strings.ToLower(filepath.Ext(path)))
}

// Extract returns the chunks of one document in page order; within a page
// text chunks come first, then tables, then ocr. Failures inside the
// document are logged and skipped; only an unreadable document is an error.
func (e *Extractor) Extract(ctx context.Context, path string) ([]models.Chunk, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".pdf":
		return e.extractPDF(ctx, path)
	case ".docx":
		return e.extractDOCX(path)
	case ".pptx":
		return e.extractPPTX(path)
	case ".xlsx":
		return extractXLSX(path)
	case ".xlsm", ".xltx", ".xltm":
		return extractWorkbook(path)
	case ".md", ".markdown":
		return e.extractMarkdown(path)
	case ".txt":
		return e.extractText(path)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", ext)
	}
}

func (e *Extractor) extractText(path string) ([]models.Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return e.textChunks(path, 1, string(data)), nil
}

// textChunks splits page text into paragraphs and numbers them text_0..n.
func (e *Extractor) textChunks(sourceID string, page int, text string) []models.Chunk {
	var chunks []models.Chunk
	for _, p := range splitParagraphs(text, e.opts.MaxParagraphChars, e.opts.ParagraphOverlap) {
		chunks = append(chunks, models.NewChunk(sourceID, page, models.ChunkTypeText, len(chunks), models.NewTextContent(p)))
	}
	return chunks
}

func tableChunks(sourceID string, page int, tables [][][]string) []models.Chunk {
	var chunks []models.Chunk
	for _, rows := range tables {
		content := models.NewTableContent(rows)
		if content.IsEmpty() {
			continue
		}
		chunks = append(chunks, models.NewChunk(sourceID, page, models.ChunkTypeTable, len(chunks), content))
	}
	return chunks
}

// ListDocuments expands directories and glob patterns into supported files.
// Expansions are sorted; the order of the inputs themselves is kept and
// duplicates are dropped.
func ListDocuments(inputs []string) ([]string, error) {
	var docs []string
	seen := make(map[string]bool)
	add := func(path string) {
		if seen[path] {
			return
		}
		seen[path] = true
		docs = append(docs, path)
	}

	for _, input := range inputs {
		if strings.ContainsAny(input, "*?[") {
			matches, err := filepath.Glob(input)
			if err != nil {
				return nil, fmt.Errorf("bad pattern %q: %w", input, err)
			}
			slices.Sort(matches)
			for _, m := range matches {
				if Supported(m) {
					add(m)
				}
			}
			continue
		}

		info, err := os.Stat(input)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if !Supported(input) {
				log.Warn().Str("path", input).Msg("skipping unsupported document")
				continue
			}
			add(input)
			continue
		}

		var found []string
		err = filepath.WalkDir(input, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && Supported(path) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		slices.Sort(found)
		for _, f := range found {
			add(f)
		}
	}
	return docs, nil
}
