package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/providers"
)

const (
	anthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"

	// Messages API requires max_tokens on every request.
	anthropicDefaultMaxTokens = 1024
)

type anthropicRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	MaxTokens int                `json:"max_tokens"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

// Anthropic talks to the Anthropic Messages API.
type Anthropic struct {
	name    string
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewAnthropic creates an adapter for p.
func NewAnthropic(p providers.Provider, httpClient *http.Client) *Anthropic {
	base := anthropicBaseURL
	if p.BaseURL != "" {
		base = strings.TrimRight(p.BaseURL, "/")
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Anthropic{
		name:    p.Name,
		apiKey:  p.APIKey,
		baseURL: base,
		client:  httpClient,
	}
}

// Complete sends prompt as a single user message.
func (a *Anthropic) Complete(ctx context.Context, model, prompt string, maxTokens int) (Completion, error) {
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}
	body, err := json.Marshal(anthropicRequest{
		Model:     model,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return Completion{}, &Error{Provider: a.name, Kind: KindMalformed, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return Completion{}, &Error{Provider: a.name, Kind: KindMalformed, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.client.Do(req)
	if err != nil {
		return Completion{}, transportError(ctx, a.name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Completion{}, transportError(ctx, a.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return Completion{}, &Error{
			Provider:   a.name,
			Kind:       kindForStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", bytes.TrimSpace(respBody)),
		}
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Completion{}, &Error{Provider: a.name, Kind: KindMalformed, Err: fmt.Errorf("decode response: %w", err)}
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 && len(parsed.Content) == 0 {
		return Completion{}, &Error{Provider: a.name, Kind: KindMalformed, Err: errors.New("response has no content")}
	}

	return Completion{
		Text:       text.String(),
		TokensUsed: parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
	}, nil
}
