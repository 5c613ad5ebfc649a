package llmservice

import (
	"context"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"

	"docqa/internal/models"
)

// VisionRecognizer reads text out of images with a multimodal model.
type VisionRecognizer struct {
	llm llms.Model
}

func NewVisionRecognizer(llm llms.Model) *VisionRecognizer {
	return &VisionRecognizer{llm: llm}
}

// Recognize returns the text visible in image, trimmed. Non-image payloads
// are rejected before any model call.
func (r *VisionRecognizer) Recognize(ctx context.Context, image []byte) (string, error) {
	mime := mimetype.Detect(image)
	if !strings.HasPrefix(mime.String(), "image/") {
		return "", fmt.Errorf("not an image: %s", mime.String())
	}
	log.Debug().Str("mime", mime.String()).Int("bytes", len(image)).Msg("Running OCR")

	messages := []llms.MessageContent{{
		Role: schema.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{
			llms.BinaryPart(mime.String(), image),
			llms.TextPart(models.OCRPrompt),
		},
	}}
	text, err := GenerateContent(ctx, r.llm, messages, llms.WithTemperature(0))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
