package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hyperengineering/shopfilter/internal/types"
)

// mockCompletionsService implements ChatCompletionsService for testing
type mockCompletionsService struct {
	response *openai.ChatCompletion
	err      error
	delay    time.Duration

	callCount    int
	lastMessages int
	lastModel    openai.ChatModel
}

func (m *mockCompletionsService) New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	m.callCount++
	m.lastMessages = len(body.Messages.Value)
	m.lastModel = body.Model.Value
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return m.response, m.err
}

func completion(content string) *openai.ChatCompletion {
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}
}

func newTestClient(mock *mockCompletionsService) *OpenAI {
	return &OpenAI{completions: mock, model: "gpt-4o-mini", temperature: 0.2}
}

func TestGenerate_ReturnsContent(t *testing.T) {
	mock := &mockCompletionsService{response: completion(`{"message":"hi","suggestedChips":[]}`)}
	client := newTestClient(mock)

	got, err := client.Generate(context.Background(), Prompt{
		System:  "sys",
		History: []types.Message{{Role: types.RoleUser, Content: "a"}, {Role: types.RoleAssistant, Content: "b"}},
		User:    "sweaters",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != `{"message":"hi","suggestedChips":[]}` {
		t.Errorf("content = %q", got)
	}
	if mock.lastMessages != 4 {
		t.Errorf("messages sent = %d, want 4", mock.lastMessages)
	}
	if mock.lastModel != "gpt-4o-mini" {
		t.Errorf("model = %q", mock.lastModel)
	}
}

func TestGenerate_WrapsTransportError(t *testing.T) {
	mock := &mockCompletionsService{err: errors.New("connection refused")}
	_, err := newTestClient(mock).Generate(context.Background(), Prompt{User: "x"})
	if !errors.Is(err, ErrUpstream) {
		t.Errorf("err = %v, want ErrUpstream", err)
	}
}

func TestGenerate_NoChoices(t *testing.T) {
	mock := &mockCompletionsService{response: &openai.ChatCompletion{}}
	_, err := newTestClient(mock).Generate(context.Background(), Prompt{User: "x"})
	if !errors.Is(err, ErrUpstream) {
		t.Errorf("err = %v, want ErrUpstream", err)
	}
}

func TestGenerate_EmptyContent(t *testing.T) {
	mock := &mockCompletionsService{response: completion("   ")}
	_, err := newTestClient(mock).Generate(context.Background(), Prompt{User: "x"})
	if !errors.Is(err, ErrUpstream) {
		t.Errorf("err = %v, want ErrUpstream", err)
	}
}

func TestGenerate_Timeout(t *testing.T) {
	mock := &mockCompletionsService{response: completion("{}"), delay: time.Second}
	client := newTestClient(mock)
	client.timeout = 10 * time.Millisecond

	_, err := client.Generate(context.Background(), Prompt{User: "x"})
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want wrapped DeadlineExceeded", err)
	}
}

func TestGenerate_CancelledContext(t *testing.T) {
	mock := &mockCompletionsService{response: completion("{}")}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(mock).Generate(ctx, Prompt{User: "x"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestNewOpenAI_ModelName(t *testing.T) {
	client := NewOpenAI(Options{APIKey: "test", Model: "gpt-4o-mini", BaseURL: "http://localhost:1"})
	if client.ModelName() != "gpt-4o-mini" {
		t.Errorf("ModelName() = %q", client.ModelName())
	}
}
