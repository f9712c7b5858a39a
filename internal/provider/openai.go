package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/thinhkhuat/scribe/internal/agent/config"
)

const defaultOpenAIBase = "https://api.openai.com/v1"

// OpenAIGenerator implements Generator against the OpenAI chat
// completions API. With a custom endpoint it also serves any
// OpenAI-compatible backend (type "openai_compat").
type OpenAIGenerator struct {
	spec config.ProviderSpec
	http *HTTPClient
}

func NewOpenAIGenerator(spec config.ProviderSpec) (*OpenAIGenerator, error) {
	if spec.APIKey == "" {
		return nil, fmt.Errorf("provider %s: API key not configured", spec.Name)
	}
	if spec.Model == "" {
		return nil, fmt.Errorf("provider %s: model not configured", spec.Name)
	}
	return &OpenAIGenerator{spec: spec, http: NewHTTPClient()}, nil
}

func (g *OpenAIGenerator) Generate(ctx context.Context, req GenRequest) (GenResult, error) {
	type chatMsg struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	type chatReq struct {
		Model       string    `json:"model"`
		Messages    []chatMsg `json:"messages"`
		Temperature float64   `json:"temperature,omitempty"`
		MaxTokens   int       `json:"max_tokens,omitempty"`
	}

	var messages []chatMsg
	if req.System != "" {
		messages = append(messages, chatMsg{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMsg{Role: "user", Content: req.Prompt})

	temperature := g.spec.Temperature
	if req.Temperature > 0 {
		temperature = req.Temperature
	}
	maxTokens := g.spec.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	base := g.spec.Endpoint
	if base == "" {
		base = defaultOpenAIBase
	}
	base = strings.TrimSuffix(base, "/")

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int64 `json:"prompt_tokens"`
			CompletionTokens int64 `json:"completion_tokens"`
		} `json:"usage"`
	}
	headers := map[string]string{"Authorization": "Bearer " + g.spec.APIKey}
	body := chatReq{Model: g.spec.Model, Messages: messages, Temperature: temperature, MaxTokens: maxTokens}
	if err := g.http.DoJSON(ctx, "POST", base+"/chat/completions", headers, body, &out); err != nil {
		return GenResult{}, err
	}
	if len(out.Choices) == 0 {
		return GenResult{}, fmt.Errorf("no choices in response")
	}
	return GenResult{
		Text:         out.Choices[0].Message.Content,
		Model:        g.spec.Model,
		InputTokens:  out.Usage.PromptTokens,
		OutputTokens: out.Usage.CompletionTokens,
	}, nil
}
