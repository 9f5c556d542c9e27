package reasoning

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/label-copilot/pkg/gemini"
)

// GeminiService implements Service over the Gemini API.
type GeminiService struct {
	client gemini.Client
	opts   Options
}

// NewGeminiService wraps a Gemini client.
func NewGeminiService(client gemini.Client, opts Options) *GeminiService {
	return &GeminiService{client: client, opts: opts}
}

// Invoke sends a text prompt.
func (s *GeminiService) Invoke(ctx context.Context, prompt string) (string, error) {
	return s.send(ctx, gemini.GenerateRequest{Prompt: prompt})
}

// InvokeStructured sends prompt in JSON mode and decodes the reply.
func (s *GeminiService) InvokeStructured(ctx context.Context, prompt string, schema Schema, out any) error {
	text, err := s.send(ctx, gemini.GenerateRequest{
		Prompt: StructuredPrompt(prompt, schema),
		JSON:   true,
	})
	if err != nil {
		return err
	}
	return DecodeStructured(text, out)
}

// InvokeVision sends img as an inline part followed by prompt.
func (s *GeminiService) InvokeVision(ctx context.Context, prompt string, img Image) (string, error) {
	if len(img.Data) == 0 {
		return "", eris.New("reasoning: empty image")
	}
	return s.send(ctx, gemini.GenerateRequest{
		Prompt: prompt,
		Images: []gemini.Image{{MIMEType: img.MediaType, Data: img.Data}},
	})
}

func (s *GeminiService) send(ctx context.Context, req gemini.GenerateRequest) (string, error) {
	ctx, cancel := withTimeout(ctx, s.opts.Timeout)
	defer cancel()

	temp := float32(s.opts.Temperature)
	req.Model = s.opts.Model
	req.Temperature = &temp
	req.MaxTokens = int32(s.opts.MaxTokens)

	resp, err := s.client.Generate(ctx, req)
	if err != nil {
		return "", eris.Wrap(err, "reasoning: gemini call")
	}
	resp.Usage.LogCost(s.opts.Model, PhaseFrom(ctx))

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", eris.New("reasoning: gemini returned no text")
	}
	return text, nil
}
