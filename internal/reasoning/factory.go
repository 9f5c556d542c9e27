package reasoning

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/label-copilot/internal/config"
	"github.com/sells-group/label-copilot/pkg/anthropic"
	"github.com/sells-group/label-copilot/pkg/gemini"
)

// New builds the Service selected by cfg.Reasoning.Provider.
func New(ctx context.Context, cfg *config.Config) (Service, error) {
	opts := Options{
		Temperature: cfg.Reasoning.Temperature,
		MaxTokens:   cfg.Reasoning.MaxTokens,
		Timeout:     time.Duration(cfg.Reasoning.TimeoutSecs) * time.Second,
	}

	switch cfg.Reasoning.Provider {
	case "anthropic":
		if len(cfg.Pricing.Anthropic) > 0 {
			rates := make(map[string]anthropic.Pricing, len(cfg.Pricing.Anthropic))
			for model, p := range cfg.Pricing.Anthropic {
				rates[model] = anthropic.Pricing{Input: p.Input, Output: p.Output}
			}
			anthropic.SetPricing(rates)
		}
		var aopts []anthropic.Option
		if cfg.Anthropic.BaseURL != "" {
			aopts = append(aopts, anthropic.WithBaseURL(cfg.Anthropic.BaseURL))
		}
		// Stages never retry; a failed call is handled by the stage policy.
		aopts = append(aopts, anthropic.WithMaxRetries(0))
		opts.Model = cfg.Anthropic.Model
		return NewAnthropicService(anthropic.NewClient(cfg.Anthropic.Key, aopts...), opts), nil

	case "gemini":
		var gopts []gemini.Option
		if cfg.Gemini.BaseURL != "" {
			gopts = append(gopts, gemini.WithBaseURL(cfg.Gemini.BaseURL))
		}
		client, err := gemini.NewClient(ctx, cfg.Gemini.Key, gopts...)
		if err != nil {
			return nil, eris.Wrap(err, "reasoning: gemini client")
		}
		opts.Model = cfg.Gemini.Model
		return NewGeminiService(client, opts), nil

	default:
		return nil, eris.Errorf("reasoning: unknown provider %q", cfg.Reasoning.Provider)
	}
}
