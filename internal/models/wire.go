package models

// Native endpoint.

type ChatRequest struct {
	Messages []Message      `json:"messages"`
	Tier     Tier           `json:"tier,omitempty"`
	Stream   bool           `json:"stream,omitempty"`
	Meta     map[string]any `json:"meta,omitempty"`
}

type ChatResponse struct {
	RequestID      string         `json:"requestId"`
	UserID         string         `json:"userId"`
	TierUsed       Tier           `json:"tierUsed"`
	Model          string         `json:"model"`
	RoutingReason  RoutingReason  `json:"routingReason"`
	Output         string         `json:"output"`
	Usage          Usage          `json:"usage"`
	LimitsSnapshot LimitsSnapshot `json:"limitsSnapshot"`
	UsageSnapshot  UsageSnapshot  `json:"usageSnapshot"`
	LimitStatus    LimitStatus    `json:"limitStatus"`
	LatencyMS      int64          `json:"latencyMs"`
}

type ErrorBody struct {
	Error        string `json:"error"`
	Message      string `json:"message"`
	RequestID    string `json:"requestId,omitempty"`
	AllowedTiers []Tier `json:"allowedTiers,omitempty"`
}

// OpenAI-compatible endpoint.

type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

type OpenAIUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

type Choice struct {
	Index   int     `json:"index"`
	Message Message `json:"message"`
	Finish  string  `json:"finish_reason"`
}

type ChatCompletionResponse struct {
	ID                string      `json:"id"`
	Object            string      `json:"object"`
	Created           int64       `json:"created"`
	Model             string      `json:"model"`
	SystemFingerprint string      `json:"system_fingerprint"`
	Choices           []Choice    `json:"choices"`
	Usage             OpenAIUsage `json:"usage"`
}

type Delta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

type ChunkChoice struct {
	Index  int     `json:"index"`
	Delta  Delta   `json:"delta"`
	Finish *string `json:"finish_reason"`
}

type ChatCompletionChunk struct {
	ID                string        `json:"id"`
	Object            string        `json:"object"`
	Created           int64         `json:"created"`
	Model             string        `json:"model"`
	SystemFingerprint string        `json:"system_fingerprint,omitempty"`
	Choices           []ChunkChoice `json:"choices"`
	Usage             *OpenAIUsage  `json:"usage,omitempty"`
}

type ErrorDetail struct {
	Message string  `json:"message"`
	Type    string  `json:"type"`
	Param   *string `json:"param"`
	Code    *string `json:"code"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}
