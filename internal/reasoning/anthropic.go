package reasoning

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/label-copilot/pkg/anthropic"
)

// AnthropicService implements Service over the Anthropic Messages API.
type AnthropicService struct {
	client anthropic.Client
	opts   Options
}

// NewAnthropicService wraps an Anthropic client.
func NewAnthropicService(client anthropic.Client, opts Options) *AnthropicService {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4096
	}
	return &AnthropicService{client: client, opts: opts}
}

// Invoke sends a text prompt.
func (s *AnthropicService) Invoke(ctx context.Context, prompt string) (string, error) {
	return s.send(ctx, anthropic.Message{Role: "user", Content: prompt})
}

// InvokeStructured sends prompt with the schema instruction and decodes the reply.
func (s *AnthropicService) InvokeStructured(ctx context.Context, prompt string, schema Schema, out any) error {
	text, err := s.send(ctx, anthropic.Message{Role: "user", Content: StructuredPrompt(prompt, schema)})
	if err != nil {
		return err
	}
	return DecodeStructured(text, out)
}

// InvokeVision sends img as a base64 image block followed by prompt.
func (s *AnthropicService) InvokeVision(ctx context.Context, prompt string, img Image) (string, error) {
	if len(img.Data) == 0 {
		return "", eris.New("reasoning: empty image")
	}
	return s.send(ctx, anthropic.Message{
		Role:    "user",
		Content: prompt,
		Images:  []anthropic.ImageBlock{{MediaType: img.MediaType, Data: img.Data}},
	})
}

func (s *AnthropicService) send(ctx context.Context, msg anthropic.Message) (string, error) {
	ctx, cancel := withTimeout(ctx, s.opts.Timeout)
	defer cancel()

	temp := s.opts.Temperature
	resp, err := s.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       s.opts.Model,
		MaxTokens:   int64(s.opts.MaxTokens),
		Messages:    []anthropic.Message{msg},
		Temperature: &temp,
	})
	if err != nil {
		return "", eris.Wrap(err, "reasoning: anthropic call")
	}
	resp.Usage.LogCost(s.opts.Model, PhaseFrom(ctx))

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", eris.New("reasoning: anthropic returned no text")
	}
	return text, nil
}
