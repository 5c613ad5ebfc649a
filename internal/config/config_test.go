package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("documents:\n  - ./docs/chemistry.pdf\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"./docs/chemistry.pdf"}, cfg.Documents)
	assert.Equal(t, "ollama", cfg.EmbedLLM.Provider)
	assert.Equal(t, "http://localhost:11434", cfg.EmbedLLM.BaseURL)
	assert.Equal(t, "all-minilm", cfg.EmbedLLM.Model)
	assert.Equal(t, "mistral", cfg.InferenceLLM.Model)
	assert.Equal(t, "llava", cfg.OCRLLM.Model)
	assert.Equal(t, 3, cfg.RAG.TopK)
	assert.Equal(t, "l2", cfg.RAG.Metric)
	assert.Equal(t, "file", cfg.Store.Backend)
	assert.Equal(t, "./index", cfg.Store.Dir)
	assert.Equal(t, "pgdriver", cfg.Database.Driver)
}

func TestParseExpandsEnv(t *testing.T) {
	t.Setenv("DOCQA_TEST_KEY", "Bearer secret")
	cfg, err := Parse([]byte(`
inference_llm:
  provider: openai
  base_url: https://openrouter.ai/api/v1
  model: mistralai/mistral-7b-instruct
  key: ${DOCQA_TEST_KEY}
rag:
  top_k: 5
  metric: cosine
`))
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", cfg.InferenceLLM.Key)
	assert.Equal(t, "openai", cfg.InferenceLLM.Provider)
	assert.Equal(t, 5, cfg.RAG.TopK)
	assert.Equal(t, "cosine", cfg.RAG.Metric)
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown provider", "embed_llm:\n  provider: bard\n"},
		{"unknown metric", "rag:\n  metric: manhattan\n"},
		{"short encryption key", "rag:\n  encryption_key: abc\n"},
		{"postgres without url", "store:\n  backend: postgres\n"},
		{"negative top k", "rag:\n  top_k: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
