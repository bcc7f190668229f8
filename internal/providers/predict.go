package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"tiergate/internal/models"
)

const defaultSystemPrompt = "You are a helpful assistant."

// Sampling parameters sent with every prediction.
const (
	predictMaxTokens   = 2048
	predictTemperature = 0.7
	predictTopP        = 0.9
	predictTopK        = 40
)

// predictProvider talks to a bare model server that takes a single templated
// prompt instead of a message list.
type predictProvider struct{ baseProvider }

type predictInstance struct {
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	TopK        int     `json:"top_k"`
}

type predictResponse struct {
	Predictions []json.RawMessage `json:"predictions"`
}

// chatTemplate renders messages as <|im_start|>role ... <|im_end|> turns and
// leaves an assistant turn open.
func chatTemplate(messages []models.Message) string {
	var sb strings.Builder
	hasSystem := false
	for _, m := range messages {
		if m.Role == "system" {
			hasSystem = true
			break
		}
	}
	if !hasSystem {
		writeTurn(&sb, "system", defaultSystemPrompt)
	}
	for _, m := range messages {
		writeTurn(&sb, m.Role, m.Content)
	}
	sb.WriteString("<|im_start|>assistant\n")
	return sb.String()
}

func writeTurn(sb *strings.Builder, role, content string) {
	sb.WriteString("<|im_start|>")
	sb.WriteString(role)
	sb.WriteString("\n")
	sb.WriteString(content)
	sb.WriteString("<|im_end|>\n")
}

// predictionText reads the first prediction, which servers return either as a
// bare string or as an object with a content or output field.
func predictionText(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var obj struct {
		Content string `json:"content"`
		Output  string `json:"output"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		if obj.Content != "" {
			return obj.Content
		}
		return obj.Output
	}
	return ""
}

// stripEcho drops the prompt echo some servers prepend before "Output:\n".
func stripEcho(text string) string {
	const marker = "Output:\n"
	if i := strings.LastIndex(text, marker); i >= 0 {
		return text[i+len(marker):]
	}
	return text
}

func (p *predictProvider) Complete(ctx context.Context, messages []models.Message, model string) (Result, error) {
	if p.cfg.BaseURL == "" {
		return Result{}, p.fail(http.StatusInternalServerError, "base URL is not configured", nil)
	}
	payload := map[string]interface{}{
		"instances": []predictInstance{{
			Prompt:      chatTemplate(messages),
			MaxTokens:   predictMaxTokens,
			Temperature: predictTemperature,
			TopP:        predictTopP,
			TopK:        predictTopK,
		}},
	}
	header := http.Header{}
	if p.cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	data, err := p.postJSON(ctx, p.cfg.BaseURL, payload, header)
	if err != nil {
		return Result{}, err
	}
	var out predictResponse
	if err := decodeJSON(&p.baseProvider, data, &out); err != nil {
		return Result{}, err
	}
	res := Result{Model: p.model(model)}
	if len(out.Predictions) > 0 {
		res.Output = stripEcho(predictionText(out.Predictions[0]))
	}
	// No usage is reported on this path.
	return res, nil
}
