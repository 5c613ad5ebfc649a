package parser

import (
	"cmp"
	"io"
	"slices"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"
)

// pageImages returns the embedded images of a PDF keyed by 1-based page
// number, each page's images in object order. An image that cannot be read
// keeps its slot as nil so later images keep their index.
func pageImages(rs io.ReadSeeker, sourceID string) map[int][][]byte {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	pages, err := api.ExtractImagesRaw(rs, nil, conf)
	if err != nil {
		log.Warn().Err(err).Str("source", sourceID).Msg("image extraction failed, skipping ocr")
		return nil
	}

	out := make(map[int][][]byte)
	for _, page := range pages {
		images := make([]model.Image, 0, len(page))
		for _, img := range page {
			images = append(images, img)
		}
		slices.SortFunc(images, func(a, b model.Image) int {
			return cmp.Compare(a.ObjNr, b.ObjNr)
		})
		for _, img := range images {
			if img.Reader == nil {
				out[img.PageNr] = append(out[img.PageNr], nil)
				continue
			}
			data, err := io.ReadAll(img)
			if err != nil {
				log.Warn().Err(err).Str("source", sourceID).Int("page", img.PageNr).Str("image", img.Name).Msg("unreadable image")
				data = nil
			}
			out[img.PageNr] = append(out[img.PageNr], data)
		}
	}
	return out
}
