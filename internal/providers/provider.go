package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tiergate/internal/models"
)

const (
	KindGemini  = "gemini"
	KindOpenAI  = "openai"
	KindPredict = "predict"
)

// Adapter completes a chat against one upstream.
type Adapter interface {
	Complete(ctx context.Context, messages []models.Message, model string) (Result, error)
}

type Result struct {
	Output string
	Model  string
	Usage  models.Usage
}

// ProviderError is returned for every transport or upstream failure.
// StatusCode is the upstream status, or 500 when no response was received.
type ProviderError struct {
	StatusCode int
	Message    string
	Tier       models.Tier
	Err        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %d %s", e.Tier, e.StatusCode, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// StatusOf extracts the status code of a provider failure, defaulting to 500.
func StatusOf(err error) int {
	var pe *ProviderError
	if errors.As(err, &pe) && pe.StatusCode > 0 {
		return pe.StatusCode
	}
	return http.StatusInternalServerError
}

// Config describes the upstream serving one tier.
type Config struct {
	Tier    models.Tier   `yaml:"tier"`
	Kind    string        `yaml:"adapter"`
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

type baseProvider struct {
	cfg        Config
	httpClient *http.Client
}

func NewAdapter(cfg Config) (Adapter, error) {
	b := baseProvider{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}
	switch cfg.Kind {
	case KindGemini:
		if cfg.BaseURL == "" {
			b.cfg.BaseURL = DefaultGeminiBaseURL
		}
		return &geminiProvider{b}, nil
	case KindOpenAI, "":
		return &openAIProvider{b}, nil
	case KindPredict:
		return &predictProvider{b}, nil
	default:
		return nil, fmt.Errorf("tier %s: unknown adapter %q", cfg.Tier, cfg.Kind)
	}
}

// Table maps each configured tier to its adapter. It is built once at startup.
type Table map[models.Tier]Adapter

func NewTable(cfgs []Config) (Table, error) {
	t := Table{}
	for _, c := range cfgs {
		a, err := NewAdapter(c)
		if err != nil {
			return nil, err
		}
		t[c.Tier] = a
	}
	return t, nil
}

func (t Table) Get(tier models.Tier) (Adapter, error) {
	a, ok := t[tier]
	if !ok {
		return nil, &ProviderError{StatusCode: http.StatusInternalServerError, Message: "no provider configured", Tier: tier}
	}
	return a, nil
}

func (b *baseProvider) model(requested string) string {
	if requested != "" {
		return requested
	}
	return b.cfg.Model
}

func (b *baseProvider) fail(status int, msg string, err error) *ProviderError {
	return &ProviderError{StatusCode: status, Message: msg, Tier: b.cfg.Tier, Err: err}
}

// postJSON sends payload and returns the response body of a 2xx reply.
func (b *baseProvider) postJSON(ctx context.Context, url string, payload interface{}, header http.Header) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, b.fail(http.StatusInternalServerError, "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, b.fail(http.StatusInternalServerError, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	res, err := b.httpClient.Do(req)
	if err != nil {
		return nil, b.fail(http.StatusInternalServerError, err.Error(), err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, b.fail(http.StatusInternalServerError, "read response", err)
	}
	if res.StatusCode >= 300 {
		return nil, b.fail(res.StatusCode, upstreamMessage(res, data), nil)
	}
	return data, nil
}

// upstreamMessage prefers the {"error":{"message":...}} body both Google and
// OpenAI style servers return.
func upstreamMessage(res *http.Response, body []byte) string {
	var env struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil && env.Error.Message != "" {
		return env.Error.Message
	}
	if s := strings.TrimSpace(string(body)); s != "" && len(s) <= 512 {
		return s
	}
	return res.Status
}

func decodeJSON(b *baseProvider, data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return b.fail(http.StatusBadGateway, "decode response", err)
	}
	return nil
}
