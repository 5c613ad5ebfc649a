package parser

import (
	"context"
	"fmt"
	"os"
	"strings"

	"docqa/internal/models"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"
)

func (e *Extractor) extractPDF(ctx context.Context, path string) ([]models.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}

	var images map[int][][]byte
	if e.opts.Recognizer != nil {
		images = pageImages(f, path)
	}

	var chunks []models.Chunk
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := readPage(reader, i)
		if err != nil {
			log.Warn().Err(err).Str("source", path).Int("page", i).Msg("skipping malformed page")
		} else {
			chunks = append(chunks, e.pageText(path, i, page)...)
			chunks = append(chunks, pageTables(path, i, page)...)
		}
		chunks = append(chunks, e.pageOCR(ctx, path, i, images[i])...)
	}
	return chunks, nil
}

func readPage(reader *pdf.Reader, n int) (page pdf.Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read page: %v", r)
		}
	}()
	page = reader.Page(n)
	if page.V.IsNull() {
		return page, fmt.Errorf("page %d not found", n)
	}
	return page, nil
}

func (e *Extractor) pageText(sourceID string, n int, page pdf.Page) []models.Chunk {
	text, err := page.GetPlainText(nil)
	if err != nil {
		log.Warn().Err(err).Str("source", sourceID).Int("page", n).Msg("unreadable page text")
		return nil
	}
	return e.textChunks(sourceID, n, text)
}

func pageTables(sourceID string, n int, page pdf.Page) []models.Chunk {
	glyphs, err := pageGlyphs(page)
	if err != nil {
		log.Warn().Err(err).Str("source", sourceID).Int("page", n).Msg("table detection failed")
		return nil
	}
	return tableChunks(sourceID, n, detectTables(glyphs))
}

// pageOCR runs the recognizer over a page's images. The chunk index is the
// image's position on the page, so skipped images leave gaps.
func (e *Extractor) pageOCR(ctx context.Context, sourceID string, n int, images [][]byte) []models.Chunk {
	var chunks []models.Chunk
	skipped := 0
	for i, img := range images {
		if img == nil {
			skipped++
			continue
		}
		text, err := e.opts.Recognizer.Recognize(ctx, img)
		if err != nil {
			log.Warn().Err(err).Str("source", sourceID).Int("page", n).Int("image", i).Msg("ocr failed")
			skipped++
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			skipped++
			continue
		}
		chunks = append(chunks, models.NewChunk(sourceID, n, models.ChunkTypeOCR, i, models.NewTextContent(text)))
	}
	if skipped > 0 {
		log.Debug().Str("source", sourceID).Int("page", n).Int("skipped", skipped).Msg("images without text")
	}
	return chunks
}
