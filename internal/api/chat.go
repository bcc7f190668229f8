package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"tiergate/internal/middleware"
	"tiergate/internal/models"
	"tiergate/internal/pipeline"
)

type outputChunk struct {
	RequestID string `json:"requestId"`
	Output    string `json:"output"`
}

// Chat serves the native endpoint.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}

	resp, err := s.Pipeline.Handle(r.Context(), pipeline.Input{
		UserID:   middleware.UserIDFromContext(r.Context()),
		Messages: req.Messages,
		Tier:     req.Tier,
	})
	if err != nil {
		s.writeNativeError(w, err)
		return
	}
	if !req.Stream {
		writeJSON(w, resp)
		return
	}

	sse, ok := newSSE(w)
	if !ok {
		writeJSON(w, resp)
		return
	}
	if err := sse.send(outputChunk{RequestID: resp.RequestID, Output: resp.Output}); err != nil {
		s.Logger.Debug("stream write failed", zap.String("request_id", resp.RequestID), zap.Error(err))
		return
	}
	_ = sse.send(resp)
	_ = sse.done()
}

func (s *Server) writeNativeError(w http.ResponseWriter, err error) {
	var perr *pipeline.Error
	if !errors.As(err, &perr) {
		s.Logger.Error("unexpected pipeline error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	if perr.Kind == pipeline.KindInternal {
		s.Logger.Error("pipeline failed", zap.String("request_id", perr.RequestID), zap.Error(perr))
	}
	if perr.Limit != nil {
		writeStatus(w, perr.Status, perr.Limit)
		return
	}
	writeStatus(w, perr.Status, models.ErrorBody{
		Error:        perr.Code,
		Message:      perr.Message,
		RequestID:    perr.RequestID,
		AllowedTiers: perr.AllowedTiers,
	})
}
