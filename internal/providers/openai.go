package providers

import (
	"context"
	"net/http"
	"strings"

	"tiergate/internal/models"
)

const openAIMaxTokens = 2048

type openAIProvider struct{ baseProvider }

type openAIResponse struct {
	Choices []struct {
		Message models.Message `json:"message"`
	} `json:"choices"`
	Usage *models.OpenAIUsage `json:"usage"`
}

func (p *openAIProvider) Complete(ctx context.Context, messages []models.Message, model string) (Result, error) {
	if p.cfg.BaseURL == "" {
		return Result{}, p.fail(http.StatusInternalServerError, "base URL is not configured", nil)
	}
	model = p.model(model)
	payload := map[string]interface{}{
		"model":      model,
		"messages":   messages,
		"max_tokens": openAIMaxTokens,
	}
	key := p.cfg.APIKey
	if key == "" {
		key = "no-key-needed"
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+key)

	data, err := p.postJSON(ctx, strings.TrimRight(p.cfg.BaseURL, "/")+"/chat/completions", payload, header)
	if err != nil {
		return Result{}, err
	}
	var out openAIResponse
	if err := decodeJSON(&p.baseProvider, data, &out); err != nil {
		return Result{}, err
	}
	res := Result{Model: model}
	if len(out.Choices) > 0 {
		res.Output = out.Choices[0].Message.Content
	}
	if out.Usage != nil {
		res.Usage = models.Usage{
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
			TotalTokens:      out.Usage.TotalTokens,
		}
	}
	return res, nil
}
