package stub

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/raaihank/guardbench/internal/invoker"
	"github.com/raaihank/guardbench/internal/wire"
	"go.uber.org/zap"
)

const (
	blockedMessage = "Sorry, the model cannot answer this question."
	maxEchoChars   = 200
)

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// handleInvoke simulates a model call, optionally behind the guardrail
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	cfg := s.currentConfig()
	log := s.logger.With(zap.String("request_id", getRequestID(r.Context())))

	var req wire.InvokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "ValidationException", "malformed request body: "+err.Error())
		return
	}

	prompt := req.Prompt()
	if strings.TrimSpace(prompt) == "" {
		writeError(w, http.StatusBadRequest, "ValidationException", "messages must contain text")
		return
	}

	guardrailID := r.Header.Get(wire.HeaderGuardrailID)
	guarded := guardrailID != ""
	if guarded && !s.knownGuardrail(guardrailID) {
		writeError(w, http.StatusNotFound, "ResourceNotFoundException", "guardrail not found: "+guardrailID)
		return
	}

	delay := cfg.BaseLatency + s.jitter(cfg.Jitter)
	if guarded {
		delay += cfg.GuardrailLatency
	}
	if err := sleep(r.Context(), delay); err != nil {
		return
	}

	if s.shouldFail(cfg.FailureRate) {
		writeError(w, http.StatusServiceUnavailable, "ServiceUnavailableException", "simulated service failure")
		return
	}

	resp := wire.InvokeResponse{StopReason: "end_turn"}
	if guarded {
		if types := s.guardrail.Assess(prompt); len(types) > 0 {
			log.Debug("Guardrail intervened", zap.Strings("entities", types))

			if cfg.BlockMode == "reject" {
				writeError(w, http.StatusBadRequest, "ValidationException",
					"Input blocked by guardrail "+guardrailID+": sensitive information detected")
				return
			}

			resp.StopReason = wire.StopReasonGuardrail
			resp.GuardrailAction = wire.GuardrailActionIntervened
			resp.Output.Message = assistant(blockedMessage)
			resp.Usage = &wire.Usage{InputTokens: countTokens(prompt)}
			writeJSON(w, http.StatusOK, resp)
			return
		}
		resp.GuardrailAction = "NONE"
	}

	answer := "You asked: " + truncate(prompt, maxEchoChars)
	resp.Output.Message = assistant(answer)
	resp.Usage = &wire.Usage{
		InputTokens:  countTokens(prompt),
		OutputTokens: countTokens(answer),
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleApplyGuardrail simulates a standalone guardrail assessment
func (s *Server) handleApplyGuardrail(w http.ResponseWriter, r *http.Request) {
	cfg := s.currentConfig()
	guardrailID := mux.Vars(r)["guardrailId"]
	if !s.knownGuardrail(guardrailID) {
		writeError(w, http.StatusNotFound, "ResourceNotFoundException", "guardrail not found: "+guardrailID)
		return
	}

	var req wire.ApplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "ValidationException", "malformed request body: "+err.Error())
		return
	}

	text := req.Text()
	if strings.TrimSpace(text) == "" {
		writeError(w, http.StatusBadRequest, "ValidationException", "content must contain text")
		return
	}

	if err := sleep(r.Context(), cfg.CheckLatency+s.jitter(cfg.Jitter)); err != nil {
		return
	}

	if s.shouldFail(cfg.FailureRate) {
		writeError(w, http.StatusServiceUnavailable, "ServiceUnavailableException", "simulated service failure")
		return
	}

	resp := wire.ApplyResponse{Action: wire.ApplyActionNone, Assessments: []wire.Assessment{}}
	if types := s.guardrail.Assess(text); len(types) > 0 {
		policy := &wire.SensitiveInformationAssessment{}
		for _, t := range types {
			policy.PIIEntities = append(policy.PIIEntities, wire.PIIEntity{Type: t, Action: "BLOCKED"})
		}
		resp.Action = wire.ApplyActionIntervened
		resp.Assessments = append(resp.Assessments, wire.Assessment{SensitiveInformationPolicy: policy})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) knownGuardrail(id string) bool {
	return s.guardrailID == "" || id == s.guardrailID
}

func assistant(text string) wire.Message {
	return wire.Message{Role: "assistant", Content: []wire.ContentBlock{{Text: text}}}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set(invoker.HeaderErrorType, code)
	writeJSON(w, status, map[string]string{"message": message})
}

func countTokens(text string) int {
	return len(strings.Fields(text))
}

func truncate(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}
