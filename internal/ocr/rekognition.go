package ocr

import (
	"context"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/rotisserie/eris"

	"github.com/sells-group/label-copilot/internal/reasoning"
)

// TextDetector is the Rekognition operation used here. *rekognition.Client
// satisfies it.
type TextDetector interface {
	DetectText(ctx context.Context, params *rekognition.DetectTextInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectTextOutput, error)
}

// Rekognition extracts text with AWS Rekognition DetectText.
type Rekognition struct {
	client TextDetector
}

// NewRekognition wraps a Rekognition client.
func NewRekognition(client TextDetector) *Rekognition {
	return &Rekognition{client: client}
}

// NewRekognitionClient builds a Rekognition client from the default AWS
// credential chain.
func NewRekognitionClient(ctx context.Context, region string) (*rekognition.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, eris.Wrap(err, "ocr: load aws config")
	}
	return rekognition.NewFromConfig(cfg), nil
}

// ExtractText returns the LINE detections joined by newlines, top to bottom.
func (r *Rekognition) ExtractText(ctx context.Context, img reasoning.Image) (string, error) {
	out, err := r.client.DetectText(ctx, &rekognition.DetectTextInput{
		Image: &types.Image{Bytes: img.Data},
	})
	if err != nil {
		return "", eris.Wrap(err, "ocr: rekognition detect text")
	}

	lines := make([]types.TextDetection, 0, len(out.TextDetections))
	for _, d := range out.TextDetections {
		if d.Type == types.TextTypesLine && aws.ToString(d.DetectedText) != "" {
			lines = append(lines, d)
		}
	}
	sort.SliceStable(lines, func(i, j int) bool {
		return top(lines[i]) < top(lines[j])
	})

	texts := make([]string, len(lines))
	for i, d := range lines {
		texts[i] = aws.ToString(d.DetectedText)
	}
	return strings.Join(texts, "\n"), nil
}

func top(d types.TextDetection) float32 {
	if d.Geometry == nil || d.Geometry.BoundingBox == nil || d.Geometry.BoundingBox.Top == nil {
		return 0
	}
	return *d.Geometry.BoundingBox.Top
}
