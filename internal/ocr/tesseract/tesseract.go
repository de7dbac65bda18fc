// Package tesseract is a local ocr.Engine backed by libtesseract.
package tesseract

import (
	"context"
	"fmt"
	"image"

	"stroycrm/internal/ocr"

	"github.com/otiai10/gosseract/v2"
	"go.uber.org/zap"
)

// languageCodes maps the ISO hints used for Vision to tesseract's
// traineddata names.
var languageCodes = map[string]string{
	"ru": "rus",
	"en": "eng",
}

// Engine runs tesseract in-process. A gosseract client is not safe for
// concurrent use, so every Detect call creates and closes its own.
type Engine struct {
	languages []string
	logger    *zap.Logger
}

func New(languages []string, logger *zap.Logger) *Engine {
	langs := make([]string, 0, len(languages))
	for _, l := range languages {
		if code, ok := languageCodes[l]; ok {
			l = code
		}
		langs = append(langs, l)
	}
	if len(langs) == 0 {
		langs = []string{"rus", "eng"}
	}
	logger.Info("Tesseract OCR engine initialized",
		zap.String("version", gosseract.Version()),
		zap.Strings("languages", langs),
	)
	return &Engine{languages: langs, logger: logger}
}

func (e *Engine) Ready() bool {
	return true
}

// Detect maps ocr.ModeDocument to automatic page segmentation and
// ocr.ModeText to sparse-text segmentation.
func (e *Engine) Detect(ctx context.Context, img []byte, mode ocr.Mode) (ocr.Result, error) {
	if err := ctx.Err(); err != nil {
		return ocr.Result{}, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(e.languages...); err != nil {
		return ocr.Result{}, fmt.Errorf("failed to set languages: %w", err)
	}
	psm := gosseract.PSM_AUTO
	if mode == ocr.ModeText {
		psm = gosseract.PSM_SPARSE_TEXT
	}
	if err := client.SetPageSegMode(psm); err != nil {
		return ocr.Result{}, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	if err := client.SetImageFromBytes(img); err != nil {
		return ocr.Result{}, fmt.Errorf("failed to load image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return ocr.Result{}, fmt.Errorf("tesseract recognition failed: %w", err)
	}

	result := ocr.Result{Text: text, Mode: mode}
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		e.logger.Debug("Tesseract word boxes unavailable", zap.Error(err))
		return result, nil
	}
	for _, b := range boxes {
		result.Fragments = append(result.Fragments, ocr.Fragment{
			Text:       b.Word,
			Confidence: b.Confidence / 100,
			Polygon:    polygon(b.Box),
		})
	}
	return result, nil
}

func polygon(r image.Rectangle) []ocr.Point {
	return []ocr.Point{
		{X: r.Min.X, Y: r.Min.Y},
		{X: r.Max.X, Y: r.Min.Y},
		{X: r.Max.X, Y: r.Max.Y},
		{X: r.Min.X, Y: r.Max.Y},
	}
}
