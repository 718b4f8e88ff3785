package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/docchat/docchat/internal/models"
	"github.com/docchat/docchat/internal/types"
	"github.com/docchat/docchat/pkg/chunker"
	"github.com/docchat/docchat/pkg/config"
	"github.com/docchat/docchat/pkg/extract"
	"github.com/docchat/docchat/pkg/llm"
	"github.com/docchat/docchat/pkg/pipeline"
	"github.com/docchat/docchat/pkg/session"
	"github.com/docchat/docchat/pkg/store"
	"github.com/docchat/docchat/pkg/watcher"
	"github.com/docchat/docchat/server"
)

type components struct {
	engine    *llm.ChatEngine
	ingestor  *pipeline.Ingestor
	retriever *pipeline.Retriever
	extractor *extract.Extractor
	store     types.VectorStore
}

func buildComponents(ctx context.Context, cfg *config.Config) (*components, error) {
	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Model:     cfg.Embedding.Model,
		BaseURL:   cfg.LLM.BaseURL,
		Dimension: cfg.Embedding.Dimension,
		RateLimit: cfg.Embedding.RateLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %v", err)
	}

	var vectorStore types.VectorStore
	if cfg.Database.InMemory {
		vectorStore = store.NewMemoryStore(cfg.Embedding.Dimension)
	} else {
		vectorStore, err = store.NewWithConfig(ctx, store.VectorStoreConfig{
			ConnString: cfg.Database.URL,
			TableName:  cfg.Database.TableName,
			VectorDim:  cfg.Embedding.Dimension,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize vector store: %v", err)
		}
	}

	if err := vectorStore.EnsureCollection(ctx); err != nil {
		vectorStore.Close()
		return nil, fmt.Errorf("failed to prepare vector store: %v", err)
	}

	ingestor := pipeline.NewIngestor(embedder, vectorStore, chunker.Config{
		ChunkSize: cfg.Chunker.ChunkSize,
		Overlap:   cfg.Chunker.Overlap,
	})
	retriever := pipeline.NewRetriever(embedder, vectorStore)

	engine, err := llm.NewWithConfig(llm.ChatConfig{
		Model:         cfg.LLM.Model,
		Temperature:   cfg.LLM.Temperature,
		MaxTokens:     cfg.LLM.MaxTokens,
		BaseURL:       cfg.LLM.BaseURL,
		TopK:          cfg.LLM.TopK,
		HistoryWindow: cfg.Session.HistoryWindow,
	}, retriever)
	if err != nil {
		vectorStore.Close()
		return nil, fmt.Errorf("failed to initialize chat engine: %v", err)
	}

	return &components{
		engine:    engine,
		ingestor:  ingestor,
		retriever: retriever,
		extractor: extract.New(),
		store:     vectorStore,
	}, nil
}

func runServe(cfg *config.Config) error {
	ctx := context.Background()

	c, err := buildComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.store.Close()

	if dir := cfg.Server.WatchDir; dir != "" {
		w, err := watcher.New(c.ingestor, c.extractor, nil)
		if err != nil {
			return fmt.Errorf("failed to initialize watcher: %v", err)
		}
		defer w.Stop()
		if err := w.Watch(ctx, dir); err != nil {
			return fmt.Errorf("failed to watch %s: %v", dir, err)
		}
		color.Blue("Watching %s for documents", dir)
	}

	srv := server.New(c.engine, c.ingestor, c.retriever, c.extractor)
	return srv.ListenAndServe(cfg.Server.Port)
}

func runIngest(cfg *config.Config, paths []string) error {
	if len(paths) == 0 {
		return fmt.Errorf("ingest requires at least one file")
	}

	ctx := context.Background()
	c, err := buildComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.store.Close()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %v", path, err)
		}

		name := filepath.Base(path)
		text, err := c.extractor.Extract(data, name)
		if err != nil {
			return fmt.Errorf("failed to extract %s: %v", name, err)
		}

		bar := getProgressBar(-1, fmt.Sprintf(" Ingesting %s...", name))
		c.ingestor.OnChunk = func(done, total int) {
			bar.ChangeMax(total)
			bar.Set(done)
		}

		result, err := c.ingestor.Ingest(ctx, text, name)
		if err != nil {
			return fmt.Errorf("failed to ingest %s: %v", name, err)
		}
		bar.Finish()
		fmt.Println()
		color.Green("Ingested %s: document %s, %d chunks", name, result.DocumentID, result.NumChunks)
	}

	return nil
}

func runChat(cfg *config.Config) error {
	ctx := context.Background()
	c, err := buildComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.store.Close()

	sessions := session.NewStore()
	sess := sessions.Get("cli")

	color.Cyan("\nChat with your documents (type 'exit' to quit)")

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if strings.ToLower(question) == "exit" {
			break
		}

		history := sess.Window(c.engine.HistoryWindow())
		sess.Append(models.NewChatMessage(models.RoleUser, question))

		assistantPrompt("\nAssistant: ")
		var answer strings.Builder
		for fragment := range c.engine.StreamAnswer(ctx, history, question) {
			answer.WriteString(fragment)
			fmt.Print(fragment)
		}
		fmt.Println()
		// A failed turn arrives as a single "Error: ..." fragment and
		// is recorded like any other assistant reply.
		sess.Append(models.NewChatMessage(models.RoleAssistant, answer.String()))
	}

	return scanner.Err()
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("chunks"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}
