package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"

	"github.com/treesum-io/treesum/internal/chunk"
	"github.com/treesum-io/treesum/internal/common"
	"github.com/treesum-io/treesum/internal/export"
	"github.com/treesum-io/treesum/internal/llm/openai"
	"github.com/treesum-io/treesum/internal/pipeline"
	"github.com/treesum-io/treesum/internal/store"
	"github.com/treesum-io/treesum/internal/token"
)

func main() {
	var (
		inPath     = flag.String("in", "", "input text file (required; '-' for stdin)")
		configPath = flag.String("config", "", "optional JSON config file, overlays env config")
		storeDSN   = flag.String("store", "", "optional run store DSN (sqlite path or postgres:// URL)")
		reportPath = flag.String("report", "", "optional XLSX run report path (requires -store)")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if *inPath == "" {
		logger.Error("usage: treesum -in <file> [-config cfg.json] [-store dsn] [-report out.xlsx]")
		os.Exit(2)
	}
	if *reportPath != "" && *storeDSN == "" && os.Getenv("STORE_DSN") == "" {
		logger.Error("-report requires -store (or STORE_DSN)")
		os.Exit(2)
	}

	cfg := common.LoadConfig()
	if *configPath != "" {
		var err error
		cfg, err = common.LoadConfigFile(*configPath, cfg)
		if err != nil {
			logger.Error("load config file", "path", *configPath, "error", err)
			os.Exit(2)
		}
	}
	if *storeDSN != "" {
		cfg.Store.DSN = *storeDSN
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	text, err := readInput(*inPath)
	if err != nil {
		logger.Error("read input", "path", *inPath, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Optional run store
	var recorder pipeline.Recorder = pipeline.NopRecorder{}
	var st *store.Store
	if cfg.Store.DSN != "" {
		openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		st, err = store.Open(openCtx, cfg.Store.DSN, logger)
		cancel()
		if err != nil {
			logger.Error("open run store", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := st.Close(); err != nil {
				logger.Warn("close run store", "error", err)
			}
		}()
		recorder = st
	}

	counter := token.NewHeuristicCounter()
	segments := chunk.Split(text, cfg.Chunk.ChunkTokens, cfg.Chunk.OverlapTokens, counter, cfg.Chunk.Encoding)
	logger.Info("input segmented",
		"input_bytes", len(text),
		"segments", len(segments),
		"chunk_tokens", cfg.Chunk.ChunkTokens,
		"overlap_tokens", cfg.Chunk.OverlapTokens,
	)

	client := openai.NewClient(openai.Config{
		APIKey:  cfg.Provider.APIKey,
		BaseURL: cfg.Provider.BaseURL,
		Model:   cfg.Provider.Model,
		Timeout: cfg.Provider.Timeout,
	}, logger)

	summarizer := pipeline.NewSummarizer(logger, cfg.Run, client, counter, cfg.Chunk.Encoding, cfg.Provider.Temperature, recorder)

	runID := uuid.New()
	result, err := summarizer.Run(common.WithRunID(ctx, runID.String()), segments)
	if err != nil {
		logger.Error("run failed", "run_id", runID.String(), "error", err)
		os.Exit(1)
	}

	fmt.Println(result)

	if *reportPath != "" && st != nil {
		svc := export.NewService(st, logger)
		reportCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		data, err := svc.ExportRunXLSX(reportCtx, runID)
		if err != nil {
			logger.Error("export report", "error", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*reportPath, data, 0o644); err != nil {
			logger.Error("write report", "path", *reportPath, "error", err)
			os.Exit(1)
		}
		logger.Info("report written", "path", *reportPath, "bytes", len(data))
	}
}

func readInput(path string) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(os.Stdin)
		return string(b), err
	}
	b, err := os.ReadFile(path)
	return string(b), err
}
