// Package ocr turns page images into recognized text.
package ocr

import (
	"context"
	"errors"
)

// Mode is an OCR detection mode.
type Mode string

const (
	// ModeDocument is tuned for dense, structured pages.
	ModeDocument Mode = "document"
	// ModeText is tuned for sparse or scattered text.
	ModeText Mode = "text"
)

// ErrNotConfigured is returned when the engine has no usable credentials.
var ErrNotConfigured = errors.New("ocr engine is not configured")

type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Fragment is one recognized word or block with its location on the page.
type Fragment struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Polygon    []Point `json:"polygon,omitempty"`
}

// Result is the output of one detection call. It is not modified after
// it is returned.
type Result struct {
	Text      string     `json:"text"`
	Fragments []Fragment `json:"fragments,omitempty"`
	Mode      Mode       `json:"mode"`
}

// Engine runs a single detection mode against an image.
type Engine interface {
	Detect(ctx context.Context, image []byte, mode Mode) (Result, error)
	// Ready reports whether the engine can be called at all.
	Ready() bool
}
