package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"docqa/internal/config"
	"docqa/internal/embedding"
	"docqa/internal/helper"
	"docqa/internal/indexer"
	"docqa/internal/llmservice"
	"docqa/internal/models"
	"docqa/internal/parser"
	"docqa/internal/rag"
	"docqa/internal/store"
)

const (
	configFilePath = "./configs/config.yaml"
	previewChars   = 100
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	configPath := flag.String("config", configFilePath, "Path to the YAML config file")
	ingest := flag.Bool("ingest", false, "Rebuild the index from the given documents (or config documents)")
	dryRun := flag.Bool("dry-run", false, "Extract and print chunks, do not embed or save")
	query := flag.String("query", "", "Question to be answered")
	topK := flag.Int("k", 0, "Number of chunks to retrieve (defaults to rag.top_k)")
	chat := flag.Bool("chat", false, "Start an interactive question loop")
	export := flag.String("export", "", "Write the index as an encrypted chromem-go file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("Error reading .env file")
	}

	cfg := loadConfig(*configPath)
	if *topK > 0 {
		cfg.RAG.TopK = *topK
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *ingest || *dryRun {
		inputs := flag.Args()
		if len(inputs) == 0 {
			inputs = cfg.Documents
		}
		if err := ingestDocuments(ctx, cfg, inputs, *dryRun); err != nil {
			log.Fatal().Err(err).Msg(describe(err))
		}
		if *dryRun {
			return
		}
	}

	if *query == "" && !*chat && *export == "" {
		if !*ingest {
			flag.Usage()
		}
		return
	}

	if err := answer(ctx, cfg, *query, *chat, *export); err != nil {
		log.Fatal().Err(err).Msg(describe(err))
	}
}

func loadConfig(path string) *config.Config {
	cfg, err := config.LoadConfig(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn().Str("path", path).Msg("Config file not found, using defaults")
		return config.Default()
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	log.Debug().Interface("config", cfg).Msg("Loaded config")
	return cfg
}

func newExtractor(cfg *config.Config) (*parser.Extractor, error) {
	ocrModel, err := llmservice.NewModel(&cfg.OCRLLM)
	if err != nil {
		return nil, fmt.Errorf("init OCR model: %w", err)
	}
	return parser.NewFromConfig(cfg, llmservice.NewVisionRecognizer(ocrModel)), nil
}

// ingestDocuments rebuilds the index from inputs. With dryRun the extracted
// chunks are printed instead.
func ingestDocuments(ctx context.Context, cfg *config.Config, inputs []string, dryRun bool) error {
	paths, err := parser.ListDocuments(inputs)
	if err != nil {
		return err
	}
	log.Info().Int("documents", len(paths)).Msg("Ingesting documents")

	extractor, err := newExtractor(cfg)
	if err != nil {
		return err
	}
	embedder, err := embedding.NewFromConfig(&cfg.EmbedLLM)
	if err != nil {
		return fmt.Errorf("init embedder: %w", err)
	}
	ix := indexer.New(extractor, embedder, indexer.Options{
		EmbeddingModel: cfg.EmbedLLM.Model,
		Metric:         models.Metric(cfg.RAG.Metric),
	})

	if dryRun {
		chunks, err := ix.Corpus(ctx, paths)
		if err != nil {
			return err
		}
		helper.PrettyPrint(chunks)
		return nil
	}

	backend, err := store.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer backend.Close()

	_, err = ix.Rebuild(ctx, paths, backend)
	return err
}

func answer(ctx context.Context, cfg *config.Config, query string, chat bool, exportPath string) error {
	backend, err := store.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer backend.Close()

	embedder, err := embedding.NewFromConfig(&cfg.EmbedLLM)
	if err != nil {
		return fmt.Errorf("init embedder: %w", err)
	}
	llm, err := llmservice.NewModel(&cfg.InferenceLLM)
	if err != nil {
		return fmt.Errorf("init inference model: %w", err)
	}

	r := rag.NewRAG(backend, embedder, llmservice.NewChatGenerator(llm), rag.Options{
		EmbeddingModel: cfg.EmbedLLM.Model,
		TopK:           cfg.RAG.TopK,
	})
	if err := r.Reload(ctx); err != nil {
		return err
	}

	if exportPath != "" {
		if err := r.Export(ctx, exportPath, cfg.RAG.EncryptionKey); err != nil {
			return err
		}
		log.Info().Str("file", exportPath).Msg("Index exported")
	}

	session, err := rag.NewSession()
	if err != nil {
		return err
	}
	if query != "" {
		if err := ask(ctx, r, session, query); err != nil {
			return err
		}
	}
	if chat {
		return chatLoop(ctx, r, session)
	}
	return nil
}

func ask(ctx context.Context, r *rag.RAG, session *rag.Session, question string) error {
	response, err := r.Query(ctx, session, question)
	if err != nil {
		return err
	}
	if response == nil {
		return nil
	}

	log.Info().Msg("Sources: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	for _, res := range response.Chunks {
		c := res.Chunk
		fmt.Printf("[%s p.%d %s] (%.4f) %s\n", c.SourceID, c.Page, c.LocalID, res.Distance,
			helper.Preview(c.Content.Render(), previewChars))
	}
	fmt.Println()

	log.Info().Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", response.Content)
	return nil
}

// chatLoop reads questions from stdin until "exit" or EOF. Failed questions
// are reported and the loop continues.
func chatLoop(ctx context.Context, r *rag.RAG, session *rag.Session) error {
	log.Info().Str("session", session.ID).Msg("Ask a question (\"exit\" to quit, \":history\" for the transcript)")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		case ":history":
			for i, turn := range session.Turns() {
				fmt.Printf("%d. Q: %s\n   A: %s\n", i+1, turn.Question, helper.Preview(turn.Answer, previewChars))
			}
			continue
		}
		if err := ask(ctx, r, session, line); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Msg(describe(err))
		}
	}
}

// describe turns the typed failures into a message for the user.
func describe(err error) string {
	switch {
	case errors.Is(err, models.ErrIndexUnavailable):
		return "No index found, run with -ingest first"
	case errors.Is(err, models.ErrModelMismatch):
		return "The index was built with a different embedding model, re-run -ingest"
	case errors.Is(err, models.ErrEmptyCorpus):
		return "No content could be extracted from the documents"
	case errors.Is(err, models.ErrStoreCorrupt):
		return "The saved index is damaged, re-run -ingest"
	case errors.Is(err, models.ErrCollaborator):
		return "A model call failed"
	default:
		return "Error"
	}
}
