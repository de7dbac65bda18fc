package ocr

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Adapter runs both detection modes against an image and keeps the
// result with more recognized characters.
type Adapter struct {
	engine  Engine
	timeout time.Duration
	logger  *zap.Logger
}

// NewAdapter wraps engine. A zero timeout leaves calls bounded only by
// the caller's context.
func NewAdapter(engine Engine, timeout time.Duration, logger *zap.Logger) *Adapter {
	return &Adapter{
		engine:  engine,
		timeout: timeout,
		logger:  logger,
	}
}

// Ready reports whether the underlying engine is configured.
func (a *Adapter) Ready() bool {
	return a.engine != nil && a.engine.Ready()
}

// Recognize returns the better of the document and text detections of
// image. "Better" is purely the longer text in runes; on a tie the
// document result is kept. An error from one mode is tolerated when the
// other succeeds. Empty text from both modes is a valid, empty Result.
func (a *Adapter) Recognize(ctx context.Context, image []byte) (Result, error) {
	if !a.Ready() {
		return Result{}, ErrNotConfigured
	}
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	var (
		doc, txt       Result
		docErr, txtErr error
	)
	start := time.Now()

	// Each goroutine records its own error; one mode failing must not
	// cancel the other.
	var g errgroup.Group
	g.Go(func() error {
		doc, docErr = a.engine.Detect(ctx, image, ModeDocument)
		doc.Mode = ModeDocument
		return nil
	})
	g.Go(func() error {
		txt, txtErr = a.engine.Detect(ctx, image, ModeText)
		txt.Mode = ModeText
		return nil
	})
	_ = g.Wait()

	switch {
	case docErr != nil && txtErr != nil:
		return Result{}, fmt.Errorf("ocr failed in both modes: %w", docErr)
	case docErr != nil:
		a.logger.Warn("Document detection failed, using text detection", zap.Error(docErr))
		return txt, nil
	case txtErr != nil:
		a.logger.Warn("Text detection failed, using document detection", zap.Error(txtErr))
		return doc, nil
	}

	best := Longer(doc, txt)
	a.logger.Debug("OCR modes compared",
		zap.Int("document_chars", utf8.RuneCountInString(doc.Text)),
		zap.Int("text_chars", utf8.RuneCountInString(txt.Text)),
		zap.String("selected", string(best.Mode)),
		zap.Duration("duration", time.Since(start)),
	)
	return best, nil
}

// Longer returns whichever result has more runes of text, preferring a
// on a tie.
func Longer(a, b Result) Result {
	if utf8.RuneCountInString(b.Text) > utf8.RuneCountInString(a.Text) {
		return b
	}
	return a
}
