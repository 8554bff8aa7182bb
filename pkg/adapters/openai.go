package adapters

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/providers"
	"github.com/sashabaranov/go-openai"
)

// OpenAI talks to the OpenAI chat completions API or any server that speaks
// the same protocol, such as a local Ollama or vLLM instance.
type OpenAI struct {
	name   string
	client *openai.Client
}

// NewOpenAI creates an adapter for p. An empty base URL targets api.openai.com.
func NewOpenAI(p providers.Provider, httpClient *http.Client) *OpenAI {
	cfg := openai.DefaultConfig(p.APIKey)
	if p.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(p.BaseURL, "/")
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &OpenAI{
		name:   p.Name,
		client: openai.NewClientWithConfig(cfg),
	}
}

// Complete sends prompt as a single user message.
func (a *OpenAI) Complete(ctx context.Context, model, prompt string, maxTokens int) (Completion, error) {
	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if maxTokens > 0 {
		req.MaxTokens = maxTokens
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Completion{}, a.classify(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, &Error{Provider: a.name, Kind: KindMalformed, Err: errors.New("response has no choices")}
	}

	return Completion{
		Text:       resp.Choices[0].Message.Content,
		TokensUsed: int64(resp.Usage.TotalTokens),
	}, nil
}

func (a *OpenAI) classify(ctx context.Context, err error) *Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &Error{Provider: a.name, Kind: kindForStatus(apiErr.HTTPStatusCode), StatusCode: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &Error{Provider: a.name, Kind: kindForStatus(reqErr.HTTPStatusCode), StatusCode: reqErr.HTTPStatusCode, Err: err}
	}
	return transportError(ctx, a.name, err)
}
