package providers

import (
	"context"
	"net/http"
	"strings"

	"tiergate/internal/models"
	"tiergate/internal/util"
)

const DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

type geminiProvider struct{ baseProvider }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int64 `json:"promptTokenCount"`
		CandidatesTokenCount int64 `json:"candidatesTokenCount"`
		TotalTokenCount      int64 `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// geminiPrompt flattens the conversation into one labelled prompt.
func geminiPrompt(messages []models.Message) string {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			parts = append(parts, "System: "+m.Content)
		case "user":
			parts = append(parts, "User: "+m.Content)
		case "assistant":
			parts = append(parts, "Assistant: "+m.Content)
		default:
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

func (p *geminiProvider) Complete(ctx context.Context, messages []models.Message, model string) (Result, error) {
	model = p.model(model)
	prompt := geminiPrompt(messages)
	payload := map[string]interface{}{
		"contents": []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
	}
	url := strings.TrimRight(p.cfg.BaseURL, "/") + "/models/" + model + ":generateContent"
	header := http.Header{}
	if p.cfg.APIKey != "" {
		header.Set("x-goog-api-key", p.cfg.APIKey)
	}

	data, err := p.postJSON(ctx, url, payload, header)
	if err != nil {
		return Result{}, err
	}
	var g geminiResponse
	if err := decodeJSON(&p.baseProvider, data, &g); err != nil {
		return Result{}, err
	}

	var sb strings.Builder
	if len(g.Candidates) > 0 {
		for _, part := range g.Candidates[0].Content.Parts {
			sb.WriteString(part.Text)
		}
	}
	output := sb.String()

	var usage models.Usage
	if g.UsageMetadata != nil {
		usage = models.Usage{
			PromptTokens:     g.UsageMetadata.PromptTokenCount,
			CompletionTokens: g.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      g.UsageMetadata.TotalTokenCount,
		}
	} else {
		pt := util.EstimateTokens(len([]rune(prompt)))
		ct := util.EstimateTokens(len([]rune(output)))
		usage = models.Usage{PromptTokens: pt, CompletionTokens: ct, TotalTokens: pt + ct, Estimated: true}
	}
	return Result{Output: output, Model: model, Usage: usage}, nil
}
