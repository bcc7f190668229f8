package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"tiergate/internal/middleware"
	"tiergate/internal/models"
	"tiergate/internal/pipeline"
	"tiergate/internal/routing"
)

func strPtr(s string) *string { return &s }

func toOpenAIUsage(u models.Usage) models.OpenAIUsage {
	return models.OpenAIUsage{PromptTokens: u.PromptTokens, CompletionTokens: u.CompletionTokens, TotalTokens: u.TotalTokens}
}

// ChatCompletions serves the OpenAI-compatible endpoint. The model name is
// mapped onto a tier hint and the routing reason comes back in
// system_fingerprint.
func (s *Server) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req models.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeOpenAIError(w, http.StatusBadRequest, "request body must be valid JSON", "invalid_request_error", nil, nil)
		return
	}

	resp, err := s.Pipeline.Handle(r.Context(), pipeline.Input{
		UserID:   middleware.UserIDFromContext(r.Context()),
		Messages: req.Messages,
		Tier:     routing.TierFromModel(req.Model),
	})
	if err != nil {
		s.writeOpenAIPipelineError(w, err)
		return
	}

	id := "chatcmpl-" + resp.RequestID
	created := time.Now().Unix()
	if !req.Stream {
		writeJSON(w, models.ChatCompletionResponse{
			ID:                id,
			Object:            "chat.completion",
			Created:           created,
			Model:             resp.Model,
			SystemFingerprint: string(resp.RoutingReason),
			Choices: []models.Choice{{
				Index:   0,
				Message: models.Message{Role: "assistant", Content: resp.Output},
				Finish:  "stop",
			}},
			Usage: toOpenAIUsage(resp.Usage),
		})
		return
	}

	sse, ok := newSSE(w)
	if !ok {
		writeOpenAIError(w, http.StatusInternalServerError, "streaming unsupported", "server_error", nil, strPtr("internal_error"))
		return
	}
	first := models.ChatCompletionChunk{
		ID:                id,
		Object:            "chat.completion.chunk",
		Created:           created,
		Model:             resp.Model,
		SystemFingerprint: string(resp.RoutingReason),
		Choices:           []models.ChunkChoice{{Index: 0, Delta: models.Delta{Role: "assistant", Content: resp.Output}}},
	}
	if err := sse.send(first); err != nil {
		s.Logger.Debug("stream write failed", zap.String("request_id", resp.RequestID), zap.Error(err))
		return
	}
	usage := toOpenAIUsage(resp.Usage)
	_ = sse.send(models.ChatCompletionChunk{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   resp.Model,
		Choices: []models.ChunkChoice{{Index: 0, Finish: strPtr("stop")}},
		Usage:   &usage,
	})
	_ = sse.done()
}

func writeOpenAIError(w http.ResponseWriter, status int, msg, typ string, param, code *string) {
	writeStatus(w, status, models.ErrorResponse{Error: models.ErrorDetail{Message: msg, Type: typ, Param: param, Code: code}})
}

func (s *Server) writeOpenAIPipelineError(w http.ResponseWriter, err error) {
	var perr *pipeline.Error
	if !errors.As(err, &perr) {
		s.Logger.Error("unexpected pipeline error", zap.Error(err))
		writeOpenAIError(w, http.StatusInternalServerError, "internal error", "server_error", nil, strPtr("internal_error"))
		return
	}
	switch perr.Kind {
	case pipeline.KindValidation:
		writeOpenAIError(w, perr.Status, perr.Message, "invalid_request_error", strPtr("messages"), nil)
	case pipeline.KindNotFound:
		if perr.Status == http.StatusNotFound {
			writeOpenAIError(w, perr.Status, perr.Message, "invalid_request_error", strPtr("user"), strPtr(perr.Code))
			return
		}
		writeOpenAIError(w, perr.Status, perr.Message, "api_error", nil, strPtr(perr.Code))
	case pipeline.KindForbidden:
		writeOpenAIError(w, perr.Status, perr.Message, "invalid_request_error", strPtr("model"), strPtr(perr.Code))
	case pipeline.KindLimited:
		writeOpenAIError(w, perr.Status, perr.Message, "rate_limit_error", nil, strPtr("rate_limit_exceeded"))
	case pipeline.KindProvider:
		writeOpenAIError(w, perr.Status, perr.Message, "api_error", nil, strPtr(perr.Code))
	default:
		s.Logger.Error("pipeline failed", zap.String("request_id", perr.RequestID), zap.Error(perr))
		writeOpenAIError(w, perr.Status, "internal error", "server_error", nil, strPtr("internal_error"))
	}
}
