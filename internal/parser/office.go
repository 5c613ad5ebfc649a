package parser

import (
	"archive/zip"
	"cmp"
	"encoding/xml"
	"errors"
	"io"
	"path"
	"slices"
	"strconv"
	"strings"

	"docqa/internal/models"

	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
)

// Office formats have no reliable page model; docx content is reported on
// page 1, slides and sheets use their 1-based number.
const defaultPageNumber = 1

func (e *Extractor) extractDOCX(filePath string) ([]models.Chunk, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	body, err := parseWordXML(r.Editable().GetContent())
	if err != nil {
		log.Warn().Err(err).Str("source", filePath).Msg("document body truncated")
	}

	var chunks []models.Chunk
	for _, p := range body.paragraphs {
		chunks = append(chunks, e.textChunks(filePath, defaultPageNumber, p)...)
	}
	return renumber(append(chunks, tableChunks(filePath, defaultPageNumber, body.tables)...)), nil
}

// renumber reassigns local ids so each class counts from zero.
func renumber(chunks []models.Chunk) []models.Chunk {
	counts := make(map[models.ChunkType]int)
	for i, c := range chunks {
		chunks[i] = models.NewChunk(c.SourceID, c.Page, c.Type, counts[c.Type], c.Content)
		counts[c.Type]++
	}
	return chunks
}

type wordBody struct {
	paragraphs []string
	tables     [][][]string
}

// parseWordXML walks WordprocessingML: top-level <w:p> become paragraphs,
// <w:tbl> become tables whose cells hold their paragraphs' text. Nested
// tables are flattened into the enclosing cell.
func parseWordXML(content string) (wordBody, error) {
	var body wordBody
	var (
		para   strings.Builder
		cell   []string
		row    []string
		table  [][]string
		depth  int
		inText bool
	)

	dec := xml.NewDecoder(strings.NewReader(content))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return body, nil
		}
		if err != nil {
			return body, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				if depth == 0 {
					table = nil
				}
				depth++
			case "tr":
				if depth == 1 {
					row = nil
				}
			case "tc":
				if depth == 1 {
					cell = nil
				}
			case "p":
				para.Reset()
			case "t":
				inText = true
			case "tab":
				para.WriteByte('\t')
			case "br", "cr":
				para.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				text := strings.TrimSpace(para.String())
				para.Reset()
				if text == "" {
					break
				}
				if depth > 0 {
					cell = append(cell, text)
				} else {
					body.paragraphs = append(body.paragraphs, text)
				}
			case "tc":
				if depth == 1 {
					row = append(row, strings.Join(cell, " "))
				}
			case "tr":
				if depth == 1 {
					table = append(table, row)
				}
			case "tbl":
				depth--
				if depth == 0 {
					body.tables = append(body.tables, table)
				}
			}
		}
	}
}

func (e *Extractor) extractPPTX(filePath string) ([]models.Chunk, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	type slide struct {
		num  int
		file *zip.File
	}
	var slides []slide
	for _, file := range f.File {
		dir, name := path.Split(file.Name)
		if dir != "ppt/slides/" || !strings.HasPrefix(name, "slide") || !strings.HasSuffix(name, ".xml") {
			continue
		}
		num, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "slide"), ".xml"))
		if err != nil {
			continue
		}
		slides = append(slides, slide{num: num, file: file})
	}
	slices.SortFunc(slides, func(a, b slide) int { return cmp.Compare(a.num, b.num) })

	var chunks []models.Chunk
	for _, s := range slides {
		text, err := readSlideText(s.file)
		if err != nil {
			log.Warn().Err(err).Str("source", filePath).Int("page", s.num).Msg("skipping unreadable slide")
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		for i, piece := range e.slidePieces(text) {
			chunks = append(chunks, models.NewChunk(filePath, s.num, models.ChunkTypeText, i, models.NewTextContent(piece)))
		}
	}
	return chunks, nil
}

func (e *Extractor) slidePieces(text string) []string {
	if e.opts.MaxParagraphChars <= 0 {
		return []string{strings.TrimSpace(text)}
	}
	return chunkContent(text, e.opts.MaxParagraphChars, e.opts.ParagraphOverlap)
}

// readSlideText joins the <a:t> runs of a slide, one line per <a:p>.
func readSlideText(file *zip.File) (string, error) {
	rc, err := file.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	var lines []string
	var line strings.Builder
	inText := false
	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			inText = t.Name.Local == "t"
		case xml.CharData:
			if inText {
				line.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if s := strings.TrimSpace(line.String()); s != "" {
					lines = append(lines, s)
				}
				line.Reset()
			}
		}
	}
	return strings.Join(lines, "\n"), nil
}

// extractXLSX emits one table chunk per sheet.
func extractXLSX(filePath string) ([]models.Chunk, error) {
	f, err := xlsx.OpenFile(filePath)
	if err != nil {
		return nil, err
	}

	var chunks []models.Chunk
	for sheetNum, sheet := range f.Sheets {
		rows := make([][]string, 0, len(sheet.Rows))
		for _, row := range sheet.Rows {
			if row == nil {
				continue
			}
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				cells = append(cells, strings.TrimSpace(cell.String()))
			}
			rows = append(rows, cells)
		}
		chunks = append(chunks, tableChunks(filePath, sheetNum+1, [][][]string{rows})...)
	}
	return chunks, nil
}

// extractWorkbook covers the macro-enabled and template variants through
// excelize.
func extractWorkbook(filePath string) ([]models.Chunk, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var chunks []models.Chunk
	for sheetNum, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			log.Warn().Err(err).Str("source", filePath).Str("sheet", sheetName).Msg("skipping unreadable sheet")
			continue
		}
		chunks = append(chunks, tableChunks(filePath, sheetNum+1, [][][]string{rows})...)
	}
	return chunks, nil
}
