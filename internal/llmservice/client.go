package llmservice

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"docqa/internal/config"
	"docqa/internal/models"
)

// Generator answers a single system instruction plus user prompt.
type Generator interface {
	Generate(ctx context.Context, systemInstruction, prompt string) (string, error)
}

// NewModel builds the langchaingo model named by the config provider.
func NewModel(llmConfig *config.LLMConfig) (llms.Model, error) {
	log.Debug().
		Str("provider", llmConfig.Provider).
		Str("base_url", llmConfig.BaseURL).
		Str("model", llmConfig.Model).
		Msg("Creating LLM client")

	client := &http.Client{Timeout: time.Duration(llmConfig.TimeoutSecs) * time.Second}
	switch llmConfig.Provider {
	case "openai":
		return openai.New(
			openai.WithBaseURL(llmConfig.BaseURL),
			openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
			openai.WithModel(llmConfig.Model),
			openai.WithHTTPClient(client),
		)
	case "ollama", "":
		return ollama.New(
			ollama.WithServerURL(llmConfig.BaseURL),
			ollama.WithModel(llmConfig.Model),
			ollama.WithHTTPClient(client),
		)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", llmConfig.Provider)
	}
}

// call llm
func GenerateContent(ctx context.Context, llm llms.Model, messages []llms.MessageContent, options ...llms.CallOption) (string, error) {
	res, err := llm.GenerateContent(ctx, messages, options...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrCollaborator, err)
	}
	if len(res.Choices) == 0 {
		return "", fmt.Errorf("%w: model returned no choices", models.ErrCollaborator)
	}
	return res.Choices[0].Content, nil
}

// ChatGenerator sends the system instruction and prompt as a two-message chat.
type ChatGenerator struct {
	llm llms.Model
}

func NewChatGenerator(llm llms.Model) *ChatGenerator {
	return &ChatGenerator{llm: llm}
}

var thinkTagRe = regexp.MustCompile(models.ThinkTag)

func (g *ChatGenerator) Generate(ctx context.Context, systemInstruction, prompt string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, systemInstruction),
		llms.TextParts(schema.ChatMessageTypeHuman, prompt),
	}
	answer, err := GenerateContent(ctx, g.llm, messages)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(thinkTagRe.ReplaceAllString(answer, "")), nil
}

var _ Generator = (*ChatGenerator)(nil)
