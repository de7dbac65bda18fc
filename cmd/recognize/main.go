package main

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"stroycrm/internal/app"
	"stroycrm/internal/service"
	"stroycrm/pkg/config"
	"stroycrm/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	dir := flag.String("dir", filepath.Join("testdata", "invoices"), "directory with invoice files")
	out := flag.String("out", "", "directory for <name>.json results (defaults to -dir)")
	dpi := flag.Int("dpi", 0, "PDF rasterization DPI, 0 for the configured default")
	force := flag.Bool("force", false, "reprocess files already in the cache")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logger.Level); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	appLogger := logger.Get()

	ctx := context.Background()
	pipeline, err := app.NewPipeline(ctx, cfg, nil, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize recognition pipeline", zap.Error(err))
	}
	defer pipeline.Close()

	if *out == "" {
		*out = *dir
	}
	if err := os.MkdirAll(*out, 0o755); err != nil {
		appLogger.Fatal("Failed to create output directory", zap.Error(err))
	}

	cacheFile := filepath.Join(*out, ".recognize_cache.json")
	b := &batch{
		recognition: pipeline.Recognition,
		outDir:      *out,
		dpi:         *dpi,
		force:       *force,
		logger:      appLogger,
	}
	if err := b.run(ctx, *dir, cacheFile); err != nil {
		appLogger.Fatal("Batch recognition failed", zap.Error(err))
	}
}

// ProcessedFile represents a recognized file in cache
type ProcessedFile struct {
	FilePath    string    `json:"file_path"`
	FileHash    string    `json:"file_hash"`
	Outcome     string    `json:"outcome"`
	ProcessedAt time.Time `json:"processed_at"`
}

// CacheData stores information about processed files
type CacheData struct {
	ProcessedFiles map[string]ProcessedFile `json:"processed_files"` // key: file path
}

func loadCache(cacheFile string) (*CacheData, error) {
	cache := &CacheData{
		ProcessedFiles: make(map[string]ProcessedFile),
	}

	data, err := os.ReadFile(cacheFile)
	if os.IsNotExist(err) {
		return cache, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}
	if len(data) == 0 {
		return cache, nil
	}

	if err := json.Unmarshal(data, cache); err != nil {
		return nil, fmt.Errorf("failed to parse cache file: %w", err)
	}
	return cache, nil
}

func saveCache(cacheFile string, cache *CacheData) error {
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}
	if err := os.WriteFile(cacheFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	return nil
}

// calculateFileHash calculates MD5 hash of a file
func calculateFileHash(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	hash := md5.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", fmt.Errorf("failed to calculate hash: %w", err)
	}
	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}

type batch struct {
	recognition *service.RecognitionService
	outDir      string
	dpi         int
	force       bool
	logger      *zap.Logger
}

func (b *batch) run(ctx context.Context, dir, cacheFile string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	cache, err := loadCache(cacheFile)
	if err != nil {
		b.logger.Warn("Failed to load cache, will process all files", zap.Error(err))
		cache = &CacheData{ProcessedFiles: make(map[string]ProcessedFile)}
	}

	var processed, skipped, failed int
	for _, entry := range entries {
		if entry.IsDir() || !supported(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		fileHash, err := calculateFileHash(path)
		if err != nil {
			b.logger.Warn("Failed to calculate file hash, will process anyway", zap.String("path", path), zap.Error(err))
		}
		if cached, ok := cache.ProcessedFiles[path]; ok && !b.force && fileHash != "" && cached.FileHash == fileHash {
			b.logger.Debug("File already recognized, skipping",
				zap.String("path", path),
				zap.Time("processed_at", cached.ProcessedAt),
			)
			skipped++
			continue
		}

		outcome, err := b.recognizeFile(ctx, path)
		if err != nil {
			b.logger.Error("Failed to recognize file", zap.String("path", path), zap.Error(err))
			failed++
			continue
		}

		cache.ProcessedFiles[path] = ProcessedFile{
			FilePath:    path,
			FileHash:    fileHash,
			Outcome:     outcome,
			ProcessedAt: time.Now(),
		}
		processed++
	}

	if err := saveCache(cacheFile, cache); err != nil {
		b.logger.Warn("Failed to save cache", zap.Error(err))
	}

	b.logger.Info("Batch recognition finished",
		zap.Int("processed", processed),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	)
	return nil
}

// recognizeFile writes the response for path to <name>.json. Failures the
// pipeline reports are written too; only I/O errors are returned.
func (b *batch) recognizeFile(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	doc := &service.UploadedDocument{Name: filepath.Base(path), Data: data}
	resp, recErr := b.recognition.Recognize(ctx, doc, service.RecognizeOptions{DPI: b.dpi})

	body, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ".json"
	if err := os.WriteFile(filepath.Join(b.outDir, name), body, 0o644); err != nil {
		return "", fmt.Errorf("failed to write result: %w", err)
	}

	outcome := resp.Outcome
	if recErr != nil {
		outcome = "error"
	}
	b.logger.Info("File recognized",
		zap.String("path", path),
		zap.String("outcome", outcome),
		zap.Int("raw_text_length", resp.RawTextLength),
		zap.NamedError("recognition_error", recErr),
	)
	return outcome, nil
}

func supported(name string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	return slices.Contains(service.AcceptedFormats, ext)
}
