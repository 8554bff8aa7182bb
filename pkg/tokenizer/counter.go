package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/providers"
	"github.com/tiktoken-go/tokenizer"
)

// encodingForModel maps OpenAI model names to tiktoken encodings.
var encodingForModel = map[string]tokenizer.Encoding{
	"gpt-4o":        tokenizer.O200kBase,
	"gpt-4o-mini":   tokenizer.O200kBase,
	"o1":            tokenizer.O200kBase,
	"o1-mini":       tokenizer.O200kBase,
	"o3-mini":       tokenizer.O200kBase,
	"gpt-4-turbo":   tokenizer.Cl100kBase,
	"gpt-4":         tokenizer.Cl100kBase,
	"gpt-3.5-turbo": tokenizer.Cl100kBase,
}

var (
	codecMu sync.Mutex
	codecs  = map[tokenizer.Encoding]tokenizer.Codec{}
)

func codecFor(enc tokenizer.Encoding) (tokenizer.Codec, error) {
	codecMu.Lock()
	defer codecMu.Unlock()
	if c, ok := codecs[enc]; ok {
		return c, nil
	}
	c, err := tokenizer.Get(enc)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", enc, err)
	}
	codecs[enc] = c
	return c, nil
}

// CountTokens returns the token count of text for a model served by a
// provider of type typ. OpenAI models are counted with tiktoken; other
// providers use a character-based estimate.
func CountTokens(text string, typ providers.ProviderType, model string) (int64, error) {
	if typ != providers.TypeOpenAI {
		return estimateTokens(text), nil
	}
	if strings.TrimSpace(text) == "" {
		return 0, nil
	}

	enc, ok := encodingForModel[model]
	if !ok {
		enc = tokenizer.Cl100kBase
	}
	codec, err := codecFor(enc)
	if err != nil {
		return 0, err
	}

	ids, _, err := codec.Encode(text)
	if err != nil {
		return 0, fmt.Errorf("encode text: %w", err)
	}
	return int64(len(ids)), nil
}

// estimateTokens assumes four characters per token, rounded up.
func estimateTokens(text string) int64 {
	text = strings.TrimSpace(text)
	if len(text) == 0 {
		return 0
	}
	return int64((len(text) + 3) / 4)
}

// EstimatePrompt returns a provider-neutral token estimate for a prompt plus
// the output budget the caller asked for. It never fails, so it is safe to use
// before a provider has been chosen.
func EstimatePrompt(prompt string, maxTokens int) int64 {
	n, err := CountTokens(prompt, providers.TypeOpenAI, "")
	if err != nil {
		n = estimateTokens(prompt)
	}
	if maxTokens > 0 {
		n += int64(maxTokens)
	}
	return n
}
