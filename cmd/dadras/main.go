// Package main is the Dadras CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/dadras-ai/dadras/internal/cache"
	"github.com/dadras-ai/dadras/internal/chunker"
	"github.com/dadras-ai/dadras/internal/config"
	"github.com/dadras-ai/dadras/internal/embedding"
	"github.com/dadras-ai/dadras/internal/history"
	"github.com/dadras-ai/dadras/internal/ingest"
	"github.com/dadras-ai/dadras/internal/llm"
	"github.com/dadras-ai/dadras/internal/models"
	"github.com/dadras-ai/dadras/internal/rag"
	"github.com/dadras-ai/dadras/internal/rerank"
	"github.com/dadras-ai/dadras/internal/server"
	"github.com/dadras-ai/dadras/internal/vectorstore"
	"github.com/dadras-ai/dadras/internal/watcher"
	"github.com/dadras-ai/dadras/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/dadras/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists it
// is used, so that "dadras server" from the project dir uses the project's
// config. Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// Provider keys may live in a .env next to the binary during development.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ingest":
		runIngest()
	case "ask":
		runAsk()
	case "sources":
		runSources()
	case "stats":
		runStats()
	case "reset":
		runReset()
	case "version", "--version", "-v":
		fmt.Printf("dadras version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	var watchSvc *watcher.Watcher
	if cfg.Watch.Directory != "" {
		ingestor := components.Ingestor
		watchSvc = watcher.New(cfg.Watch.Directory, cfg.Watch.Extensions, func(path string) {
			report := ingestor.IngestFiles(context.Background(), []string{path})
			for _, sr := range report.Sources {
				if sr.Error != "" {
					logger.Warn("watch ingest failed", zap.String("source", sr.Source), zap.String("error", sr.Error))
				}
			}
		}, logger)
		watchCtx, watchCancel := context.WithCancel(context.Background())
		defer watchCancel()
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start upload watcher", zap.Error(err))
		}
		defer watchSvc.Stop()
		watchSvc.SyncExisting()
	}

	srv := server.NewServer(
		components.Orchestrator,
		components.Ingestor,
		components.Store,
		components.Messages,
		&cfg.Server,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: dadras ingest [flags] <file-or-directory>...")
		os.Exit(1)
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	ctx := context.Background()
	var report models.UploadReport
	for _, path := range fs.Args() {
		info, statErr := os.Stat(path)
		if statErr != nil {
			report.Add(models.SourceReport{Source: path, Error: statErr.Error()})
			continue
		}
		if info.IsDir() {
			dirReport, dirErr := components.Ingestor.IngestDir(ctx, path)
			if dirErr != nil {
				report.Add(models.SourceReport{Source: path, Error: dirErr.Error()})
				continue
			}
			for _, sr := range dirReport.Sources {
				report.Add(sr)
			}
			continue
		}
		fileReport := components.Ingestor.IngestFiles(ctx, []string{path})
		for _, sr := range fileReport.Sources {
			report.Add(sr)
		}
	}

	for _, sr := range report.Sources {
		if sr.Error != "" {
			fmt.Printf("  FAILED %s: %s\n", sr.Source, sr.Error)
			continue
		}
		fmt.Printf("  %s: %d chunk(s)\n", sr.Source, sr.Chunks)
	}
	fmt.Printf("Ingested %d source(s), %d chunk(s); %d failed\n", report.Succeeded, report.TotalChunks, report.Failed)
	if report.Failed > 0 && report.Succeeded == 0 {
		os.Exit(1)
	}
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:4000", "server URL (empty = answer directly without a running server)")
	topK := fs.Int("top-k", 0, "number of passages to retrieve (0 = config default)")
	conversationID := fs.String("conversation", "", "conversation ID for follow-up questions")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: dadras ask [flags] <question>")
		os.Exit(1)
	}
	question := buildQuestion(fs.Args())
	if question == "" {
		fmt.Println("Usage: dadras ask [flags] <question>")
		os.Exit(1)
	}

	req := models.AskRequest{
		Question:       question,
		TopK:           *topK,
		ConversationID: *conversationID,
	}

	var response *models.AskResponse
	if *serverURL != "" {
		resp, err := askViaHTTP(*serverURL, req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
			os.Exit(1)
		}
		response = resp
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()

		components, err := initializeComponents(cfg, logger)
		if err != nil {
			logger.Fatal("Failed to initialize", zap.Error(err))
		}
		defer components.Close()

		if req.TopK == 0 {
			req.TopK = cfg.Retrieval.DefaultTopK
		}
		if cfg.Retrieval.MaxTopK > 0 && req.TopK > cfg.Retrieval.MaxTopK {
			req.TopK = cfg.Retrieval.MaxTopK
		}
		response, err = components.Orchestrator.Ask(context.Background(), req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
			os.Exit(1)
		}
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(response); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Println(response.Answer)
		if len(response.Sources) > 0 {
			fmt.Println()
			for _, src := range response.Sources {
				fmt.Printf("  [%s, chunk %d]\n", src.Source, src.ChunkIndex)
			}
		}
		if response.DomainLabel != "" {
			fmt.Printf("\ndomain: %s\n", response.DomainLabel)
		}
		if response.FromCache {
			fmt.Println("(cached)")
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

// buildQuestion joins all positional args with spaces so multi-word questions
// work the same with or without shell quoting.
func buildQuestion(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func askViaHTTP(serverURL string, req models.AskRequest) (*models.AskResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/ask", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response models.AskResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func runSources() {
	fs := flag.NewFlagSet("sources", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:4000", "server URL (empty = read storage directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var listing models.SourcesResponse
	if *serverURL != "" {
		resp, err := http.Get(*serverURL + "/api/v1/sources")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "Server returned %d: %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
			fmt.Fprintf(os.Stderr, "Decode response failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		components, cleanup := directComponents(*configPath)
		defer cleanup()
		summaries, err := components.Store.ListSources(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "List sources failed: %v\n", err)
			os.Exit(1)
		}
		listing.TotalFiles = len(summaries)
		listing.Sources = summaries
		for _, sm := range summaries {
			listing.TotalChunks += sm.ChunkCount
		}
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(listing); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		for _, sm := range listing.Sources {
			fmt.Printf("%s  %d chunk(s)\n", sm.Source, sm.ChunkCount)
		}
		fmt.Printf("total: %d file(s), %d chunk(s)\n", listing.TotalFiles, listing.TotalChunks)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func runStats() {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:4000", "server URL (empty = read storage directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var stats models.StoreStats
	if *serverURL != "" {
		resp, err := http.Get(*serverURL + "/api/v1/stats")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "Server returned %d: %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
			fmt.Fprintf(os.Stderr, "Decode response failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		components, cleanup := directComponents(*configPath)
		defer cleanup()
		s, err := components.Store.Stats(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Stats failed: %v\n", err)
			os.Exit(1)
		}
		stats = s
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(stats); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("total_entries:   %d\n", stats.TotalEntries)
		fmt.Printf("store_identity:  %s\n", stats.StoreIdentity)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func runReset() {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:4000", "server URL (empty = reset storage directly)")
	source := fs.String("source", "", "reset a single source (empty = everything)")
	_ = fs.Parse(os.Args[2:])

	var deleted int64
	if *serverURL != "" {
		body, _ := json.Marshal(map[string]string{"source": *source})
		resp, err := http.Post(*serverURL+"/api/v1/reset", "application/json", bytes.NewReader(body))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "Reset failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		var out struct {
			Deleted int64 `json:"deleted"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			fmt.Fprintf(os.Stderr, "Decode response failed: %v\n", err)
			os.Exit(1)
		}
		deleted = out.Deleted
	} else {
		components, cleanup := directComponents(*configPath)
		defer cleanup()
		n, err := components.Store.Reset(context.Background(), *source)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Reset failed: %v\n", err)
			os.Exit(1)
		}
		deleted = n
	}
	fmt.Printf("Deleted %d entries\n", deleted)
}

// directComponents loads config and initializes components for commands that
// bypass the HTTP API. Exits on failure.
func directComponents(configPath string) (*Components, func()) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	return components, func() {
		components.Close()
		_ = logger.Sync()
	}
}

// Components holds initialized services.
type Components struct {
	Store        vectorstore.Store
	Embedder     embedding.Embedder
	Cache        cache.Cache
	Messages     *history.MessageStore
	Orchestrator *rag.Orchestrator
	Ingestor     *ingest.Orchestrator
}

func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Cache != nil {
		_ = c.Cache.Close()
	}
	if c.Messages != nil {
		_ = c.Messages.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	embedder := embedding.NewClient(embedding.ClientConfig{
		BaseURL:        cfg.Embedding.BaseURL,
		APIKeyEnv:      cfg.Embedding.APIKeyEnv,
		Model:          cfg.Embedding.Model,
		Dimensions:     cfg.Embedding.Dimensions,
		BatchSize:      cfg.Embedding.BatchSize,
		MaxRetries:     cfg.Embedding.MaxRetries,
		Timeout:        time.Duration(cfg.Embedding.TimeoutSeconds) * time.Second,
		RequestsPerSec: cfg.Embedding.RequestsPerSec,
	})

	store, err := vectorstore.Open(cfg.Storage.VectorDBPath, vectorstore.Options{
		Collection: cfg.Storage.Collection,
		Model:      embedder.ModelID(),
		Dimensions: embedder.Dimensions(),
		MaxBatch:   cfg.Storage.MaxBatch,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}

	var resultCache cache.Cache = cache.NewNoop()
	if cfg.Cache.Enabled {
		bolt, cacheErr := cache.OpenBolt(cfg.Storage.CachePath, logger)
		if cacheErr != nil {
			// Caching is an optimization; a broken cache file must not block startup.
			logger.Warn("result cache unavailable, running without it", zap.Error(cacheErr))
		} else {
			resultCache = bolt
		}
	}

	var reranker rerank.Reranker = rerank.NewLexical()
	if cfg.Rerank.Enabled && cfg.Rerank.BaseURL != "" {
		reranker = rerank.NewCrossEncoder(rerank.CrossEncoderConfig{
			BaseURL:   cfg.Rerank.BaseURL,
			APIKeyEnv: cfg.Rerank.APIKeyEnv,
			Model:     cfg.Rerank.Model,
			Timeout:   time.Duration(cfg.Rerank.TimeoutSeconds) * time.Second,
		})
	}

	var generator llm.Generator
	if cfg.LLM.BaseURL != "" || os.Getenv(cfg.LLM.APIKeyEnv) != "" {
		generator = llm.NewClient(llm.ClientConfig{
			BaseURL:     cfg.LLM.BaseURL,
			APIKeyEnv:   cfg.LLM.APIKeyEnv,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			Timeout:     time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		})
	}

	messages, err := history.Open(cfg.Storage.MessageDBPath)
	if err != nil {
		_ = store.Close()
		_ = resultCache.Close()
		return nil, fmt.Errorf("failed to initialize message store: %w", err)
	}

	ch, err := chunker.New(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap, cfg.Chunking.LegalUnitsOrDefault())
	if err != nil {
		_ = store.Close()
		_ = resultCache.Close()
		_ = messages.Close()
		return nil, fmt.Errorf("failed to initialize chunker: %w", err)
	}

	orchestrator := rag.New(embedder, store, reranker, resultCache, generator, messages, logger, rag.Options{
		ContextBudget: cfg.Retrieval.ContextBudget,
		CacheTTL:      time.Duration(cfg.Cache.TTLSeconds) * time.Second,
		DomainFilter:  cfg.Retrieval.DomainFilterEnabled,
	})
	ingestor := ingest.New(ch, embedder, store, logger)

	return &Components{
		Store:        store,
		Embedder:     embedder,
		Cache:        resultCache,
		Messages:     messages,
		Orchestrator: orchestrator,
		Ingestor:     ingestor,
	}, nil
}

func printUsage() {
	fmt.Println(`dadras - Legal document retrieval and question answering

Usage:
  dadras server [flags]             Start the HTTP server
  dadras ingest [flags] <path>...   Ingest files or directories into the index
  dadras ask [flags] <question>     Ask a question against the index
  dadras sources [flags]            List indexed sources
  dadras stats [flags]              Show index statistics
  dadras reset [flags]              Delete indexed entries
  dadras version                    Show version
  dadras help                       Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/dadras/config.yaml)
  --debug            Enable debug logging

Ask Flags:
  --config string       Config file path (for direct mode)
  --server string       Server URL (default: http://localhost:4000). Use empty (--server "") to answer without a running server.
  --top-k int           Number of passages to retrieve (default from config)
  --conversation string Conversation ID for follow-up questions
  --output string       Output format: text or json (default: text)

Ingest Flags:
  --config string    Config file path

Sources/Stats Flags:
  --server string    Server URL (default: http://localhost:4000). Use empty (--server "") for direct storage.
  --output string    Output format: text or json (default: text)

Reset Flags:
  --server string    Server URL (default: http://localhost:4000). Use empty (--server "") for direct storage.
  --source string    Reset a single source; omit to delete everything

Examples:
  dadras server
  dadras ingest ./laws/
  dadras ask "مهریه چگونه محاسبه می‌شود؟"
  dadras ask --conversation c1 "و در صورت طلاق؟"
  dadras sources
  dadras reset --source laws/family.txt`)
}
