// Package app assembles the recognition pipeline from configuration for
// the server and the batch tool.
package app

import (
	"context"
	"fmt"

	"stroycrm/internal/convert"
	"stroycrm/internal/convert/fitzraster"
	"stroycrm/internal/extract"
	"stroycrm/internal/ocr"
	"stroycrm/internal/ocr/tesseract"
	"stroycrm/internal/service"
	"stroycrm/pkg/config"
	"stroycrm/pkg/logger"

	"go.uber.org/zap"
)

// Pipeline is a ready RecognitionService plus the resources to release
// on shutdown.
type Pipeline struct {
	Recognition *service.RecognitionService
	closers     []func() error
}

func (p *Pipeline) Close() {
	for _, c := range p.closers {
		_ = c()
	}
}

// NewPipeline builds the recognition pipeline. drafts may be nil when
// results are not persisted.
func NewPipeline(ctx context.Context, cfg *config.Config, drafts service.DraftStore, baseLogger *zap.Logger) (*Pipeline, error) {
	p := &Pipeline{}

	ocrLogger := logger.Component(baseLogger, "ocr")
	engine, err := newOCREngine(ctx, &cfg.OCR, ocrLogger)
	if err != nil {
		return nil, err
	}
	recognizer := ocr.NewAdapter(engine, cfg.OCR.Timeout, ocrLogger)

	convLogger := logger.Component(baseLogger, "converter")
	runner := convert.NewExecRunner(cfg.Converter.Timeout, cfg.Converter.MaxProcs, convLogger)
	script := convert.NewScriptConverter(cfg.Converter, runner, convLogger)

	var rasterizer convert.Rasterizer
	switch cfg.Converter.PDFRasterizer {
	case "fitz":
		rasterizer = fitzraster.New(convLogger)
	case "script", "":
		rasterizer = script
	default:
		return nil, fmt.Errorf("unknown PDF rasterizer %q", cfg.Converter.PDFRasterizer)
	}
	office := convert.NewXLSXExtractor(script, convLogger)

	acquisition := service.NewAcquisitionService(recognizer, rasterizer, office, service.AcquisitionConfig{
		MaxFileMB:       cfg.Recognition.MaxFileMB,
		DefaultDPI:      cfg.Converter.PDFDPI,
		MaxPages:        cfg.Converter.PDFMaxPages,
		PageConcurrency: cfg.Converter.PageConcurrency,
		EnhanceImages:   cfg.OCR.EnhanceImages,
	}, logger.Component(baseLogger, "acquisition"))

	anchors, err := extract.LoadAnchors(cfg.Recognition.SupplierAnchorsFile)
	if err != nil {
		baseLogger.Warn("Supplier anchors not loaded, using defaults",
			zap.String("path", cfg.Recognition.SupplierAnchorsFile),
			zap.Error(err),
		)
		anchors = extract.DefaultAnchors()
	}

	var assistant service.FieldAssistant
	if cfg.GigaChat.AssistEnabled && cfg.GigaChat.APIKey != "" {
		assist, err := service.NewAssistService(&cfg.GigaChat, logger.Component(baseLogger, "assist"))
		if err != nil {
			baseLogger.Warn("GigaChat field assist unavailable", zap.Error(err))
		} else {
			assistant = assist
			p.closers = append(p.closers, assist.Close)
		}
	}

	p.Recognition = service.NewRecognitionService(
		acquisition,
		extract.New(anchors),
		assistant,
		drafts,
		cfg.Recognition.RawTextLimit,
		logger.Component(baseLogger, "recognition"),
	)
	return p, nil
}

func newOCREngine(ctx context.Context, cfg *config.OCRConfig, logger *zap.Logger) (ocr.Engine, error) {
	switch cfg.Provider {
	case "vision", "":
		return ocr.NewVisionClient(ctx, *cfg, logger), nil
	case "tesseract":
		return tesseract.New(cfg.Languages, logger), nil
	}
	return nil, fmt.Errorf("unknown OCR provider %q", cfg.Provider)
}
