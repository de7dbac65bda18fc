package service

import (
	"bytes"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

// maxImageSide bounds the longer side of an image sent to OCR.
const maxImageSide = 3000

// enhanceImage runs one clean-up pass over a photographed document:
// grayscale, contrast, sharpen, brightness and gamma, then fit to
// maxImageSide. Formats imaging cannot decode (HEIC, WebP) are returned
// untouched; the OCR engine reads them directly.
func enhanceImage(data []byte, logger *zap.Logger) []byte {
	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		logger.Debug("Image not decodable, sending as is", zap.Error(err))
		return data
	}

	img := imaging.Grayscale(src)
	img = imaging.AdjustContrast(img, 30)
	img = imaging.Sharpen(img, 1.5)
	img = imaging.AdjustBrightness(img, 10)
	img = imaging.AdjustGamma(img, 1.2)

	b := img.Bounds()
	if b.Dx() > maxImageSide || b.Dy() > maxImageSide {
		img = imaging.Fit(img, maxImageSide, maxImageSide, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		logger.Warn("Failed to encode enhanced image, sending original", zap.Error(err))
		return data
	}
	return buf.Bytes()
}
