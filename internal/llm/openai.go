package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hyperengineering/shopfilter/internal/types"
)

// Compile-time interface check
var _ Generator = (*OpenAI)(nil)

// ChatCompletionsService defines the chat completion call used by OpenAI.
// Tests substitute a mock so no request reaches the real API.
type ChatCompletionsService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Options configures an OpenAI generator.
type Options struct {
	APIKey      string
	Model       string
	BaseURL     string
	Timeout     time.Duration
	Temperature float64
}

// OpenAI generates suggestions with an OpenAI-compatible chat completions API.
type OpenAI struct {
	completions ChatCompletionsService
	model       openai.ChatModel
	timeout     time.Duration
	temperature float64
}

// NewOpenAI creates a generator backed by the OpenAI client.
// The client does not retry; a failed call fails the turn.
func NewOpenAI(opts Options) *OpenAI {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	client := openai.NewClient(reqOpts...)
	return &OpenAI{
		completions: client.Chat.Completions,
		model:       openai.ChatModel(opts.Model),
		timeout:     opts.Timeout,
		temperature: opts.Temperature,
	}
}

// Generate sends the prompt and returns the first choice's content.
func (o *OpenAI) Generate(ctx context.Context, p Prompt) (string, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(p.History)+2)
	messages = append(messages, openai.SystemMessage(p.System))
	for _, m := range p.History {
		if m.Role == types.RoleAssistant {
			messages = append(messages, openai.AssistantMessage(m.Content))
		} else {
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}
	messages = append(messages, openai.UserMessage(p.User))

	resp, err := o.completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:    openai.F(messages),
		Model:       openai.F(o.model),
		Temperature: openai.F(o.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("%w: chat completion failed: %w", ErrUpstream, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: chat completion returned no choices", ErrUpstream)
	}

	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%w: chat completion returned empty content", ErrUpstream)
	}
	return content, nil
}

// ModelName returns the chat model name
func (o *OpenAI) ModelName() string {
	return string(o.model)
}
