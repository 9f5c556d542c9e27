// Package ocr extracts printed text from label images.
package ocr

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/label-copilot/internal/config"
	"github.com/sells-group/label-copilot/internal/reasoning"
)

// Extractor extracts text content from an image.
type Extractor interface {
	ExtractText(ctx context.Context, img reasoning.Image) (string, error)
}

// NewExtractor creates an Extractor based on config.
func NewExtractor(ctx context.Context, cfg config.OCRConfig, aws config.AWSConfig) (Extractor, error) {
	switch cfg.Provider {
	case "tesseract", "":
		return NewTesseract(cfg.TesseractPath), nil
	case "rekognition":
		client, err := NewRekognitionClient(ctx, aws.Region)
		if err != nil {
			return nil, err
		}
		return NewRekognition(client), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}
