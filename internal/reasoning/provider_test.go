package reasoning

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/label-copilot/internal/config"
	"github.com/sells-group/label-copilot/pkg/anthropic"
	"github.com/sells-group/label-copilot/pkg/gemini"
)

func TestAnthropicService_Invoke(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "claude-test" &&
			req.MaxTokens == 4096 &&
			*req.Temperature == 0.1 &&
			len(req.Messages) == 1 &&
			req.Messages[0].Content == "profile me"
	})).Return(textResponse("  Sodium/Vasoconstrictors  "), nil)

	svc := NewAnthropicService(client, Options{Model: "claude-test", Temperature: 0.1})
	out, err := svc.Invoke(WithPhase(context.Background(), "2_profile"), "profile me")
	require.NoError(t, err)
	assert.Equal(t, "Sodium/Vasoconstrictors", out)
	client.AssertExpectations(t)
}

func TestAnthropicService_InvokeVision(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		imgs := req.Messages[0].Images
		return len(imgs) == 1 && imgs[0].MediaType == "image/png" && string(imgs[0].Data) == "png"
	})).Return(textResponse(`{"brand":"Acme"}`), nil)

	svc := NewAnthropicService(client, Options{Model: "claude-test"})
	out, err := svc.InvokeVision(context.Background(), "read", Image{Data: []byte("png"), MediaType: "image/png"})
	require.NoError(t, err)
	assert.Equal(t, `{"brand":"Acme"}`, out)

	_, err = svc.InvokeVision(context.Background(), "read", Image{})
	assert.Error(t, err)
}

func TestAnthropicService_InvokeStructured(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse("```json\n{\"brand\":\"Acme\",\"ingredients\":[\"salt\"]}\n```"), nil).Once()
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse("sorry, no JSON"), nil).Once()

	svc := NewAnthropicService(client, Options{Model: "claude-test"})

	var out struct {
		Brand       string   `json:"brand"`
		Ingredients []string `json:"ingredients"`
	}
	require.NoError(t, svc.InvokeStructured(context.Background(), "extract", Schema{Name: "label"}, &out))
	assert.Equal(t, "Acme", out.Brand)
	assert.Equal(t, []string{"salt"}, out.Ingredients)

	err := svc.InvokeStructured(context.Background(), "extract", Schema{Name: "label"}, &out)
	assert.True(t, errors.Is(err, ErrMalformedResponse))
}

func TestAnthropicService_Errors(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("overloaded")).Once()
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse("   "), nil).Once()

	svc := NewAnthropicService(client, Options{Model: "claude-test"})
	_, err := svc.Invoke(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reasoning: anthropic call")

	_, err = svc.Invoke(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no text")
}

func TestAnthropicService_AppliesTimeout(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.MatchedBy(func(ctx context.Context) bool {
		deadline, ok := ctx.Deadline()
		return ok && time.Until(deadline) <= 2*time.Second
	}), mock.Anything).Return(textResponse("ok"), nil)

	svc := NewAnthropicService(client, Options{Model: "claude-test", Timeout: 2 * time.Second})
	_, err := svc.Invoke(context.Background(), "x")
	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestGeminiService_Structured(t *testing.T) {
	client := &mockGeminiClient{}
	client.On("Generate", mock.Anything, mock.MatchedBy(func(req gemini.GenerateRequest) bool {
		return req.JSON && req.Model == "gemini-2.5-flash" && *req.Temperature == float32(0.1)
	})).Return(&gemini.GenerateResponse{Text: `[{"name":"salt","nova_score":1}]`}, nil)

	svc := NewGeminiService(client, Options{Model: "gemini-2.5-flash", Temperature: 0.1})
	var out []struct {
		Name string `json:"name"`
		Nova int    `json:"nova_score"`
	}
	require.NoError(t, svc.InvokeStructured(context.Background(), "profiles", Schema{}, &out))
	require.Len(t, out, 1)
	assert.Equal(t, 1, out[0].Nova)
	client.AssertExpectations(t)
}

func TestGeminiService_VisionAndText(t *testing.T) {
	client := &mockGeminiClient{}
	client.On("Generate", mock.Anything, mock.MatchedBy(func(req gemini.GenerateRequest) bool {
		return len(req.Images) == 1 && !req.JSON
	})).Return(&gemini.GenerateResponse{Text: "label text"}, nil).Once()
	client.On("Generate", mock.Anything, mock.MatchedBy(func(req gemini.GenerateRequest) bool {
		return len(req.Images) == 0
	})).Return(nil, errors.New("quota")).Once()

	svc := NewGeminiService(client, Options{Model: "gemini-2.5-flash"})
	out, err := svc.InvokeVision(context.Background(), "read", Image{Data: []byte{1}, MediaType: "image/jpeg"})
	require.NoError(t, err)
	assert.Equal(t, "label text", out)

	_, err = svc.Invoke(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reasoning: gemini call")
}

func TestNew_Providers(t *testing.T) {
	cfg := &config.Config{}
	cfg.Reasoning.Provider = "anthropic"
	cfg.Anthropic.Key = "sk-test"
	cfg.Anthropic.Model = "claude-test"
	svc, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &AnthropicService{}, svc)

	cfg.Reasoning.Provider = "gemini"
	cfg.Gemini.Key = "g-test"
	svc, err = New(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &GeminiService{}, svc)

	cfg.Reasoning.Provider = "other"
	_, err = New(context.Background(), cfg)
	assert.Error(t, err)
}
