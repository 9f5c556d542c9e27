// Package reasoning defines the model capability the pipeline stages call and
// its vendor implementations.
package reasoning

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ErrMalformedResponse is returned when a structured reply cannot be decoded.
var ErrMalformedResponse = eris.New("reasoning: malformed structured response")

// Service is the reasoning capability shared by all stages.
type Service interface {
	// Invoke sends a text prompt and returns the raw reply.
	Invoke(ctx context.Context, prompt string) (string, error)
	// InvokeStructured asks for a reply matching schema and decodes it into
	// out, which must be a pointer.
	InvokeStructured(ctx context.Context, prompt string, schema Schema, out any) error
	// InvokeVision sends an image alongside a text prompt.
	InvokeVision(ctx context.Context, prompt string, img Image) (string, error)
}

// Schema describes the JSON shape a structured call must return.
type Schema struct {
	Name        string
	Description string
	JSON        map[string]any
}

// Image is an encoded image with its MIME type.
type Image struct {
	Data      []byte
	MediaType string
}

// Options are the generation settings shared by providers.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

type phaseKey struct{}

// WithPhase tags ctx with the stage name used in cost attribution logs.
func WithPhase(ctx context.Context, phase string) context.Context {
	return context.WithValue(ctx, phaseKey{}, phase)
}

// PhaseFrom returns the stage name set by WithPhase, or "".
func PhaseFrom(ctx context.Context) string {
	phase, _ := ctx.Value(phaseKey{}).(string)
	return phase
}

// StructuredPrompt appends the schema instruction to prompt.
func StructuredPrompt(prompt string, schema Schema) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(prompt))
	sb.WriteString("\n\nRespond ONLY with valid JSON")
	if schema.Description != "" {
		sb.WriteString(" (")
		sb.WriteString(schema.Description)
		sb.WriteString(")")
	}
	if len(schema.JSON) > 0 {
		if data, err := json.Marshal(schema.JSON); err == nil {
			sb.WriteString(" matching this JSON schema:\n")
			sb.Write(data)
		}
	}
	sb.WriteString("\nDo not wrap the JSON in markdown or add any commentary.")
	return sb.String()
}

// DecodeStructured locates the JSON value in text and unmarshals it into out.
// Slice targets look for an array, everything else for an object.
func DecodeStructured(text string, out any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return eris.New("reasoning: decode target must be a non-nil pointer")
	}

	var (
		raw string
		ok  bool
	)
	if rv.Elem().Kind() == reflect.Slice {
		raw, ok = ExtractArray(text)
	} else {
		raw, ok = ExtractObject(text)
	}
	if !ok {
		return eris.Wrap(ErrMalformedResponse, "reasoning: no JSON found")
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return eris.Wrapf(ErrMalformedResponse, "reasoning: decode: %v", err)
	}
	return nil
}

// ExtractObject returns the outermost {...} span of text, looking inside a
// markdown code fence when one is present.
func ExtractObject(text string) (string, bool) {
	return extractDelimited(stripFence(text), "{", "}")
}

// ExtractArray returns the outermost [...] span of text, looking inside a
// markdown code fence when one is present.
func ExtractArray(text string) (string, bool) {
	return extractDelimited(stripFence(text), "[", "]")
}

func extractDelimited(text, open, close string) (string, bool) {
	start := strings.Index(text, open)
	end := strings.LastIndex(text, close)
	if start < 0 || end <= start {
		return "", false
	}
	return strings.TrimSpace(text[start : end+1]), true
}

// stripFence returns the body of the first ``` fenced block in text, or text
// unchanged when there is none.
func stripFence(text string) string {
	text = strings.TrimSpace(text)
	start := strings.Index(text, "```")
	if start < 0 {
		return text
	}
	body := text[start+3:]
	// Drop the info string ("json", "JSON", ...) up to the first newline.
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.ContainsAny(body[:nl], "{[") {
		body = body[nl+1:]
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// withTimeout bounds a single provider call when d is positive.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
