package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"handoff/internal/constants"
	"handoff/internal/errors"
	"handoff/internal/ingress"
	"handoff/internal/models"
	"handoff/internal/tracing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const maxWebhookBodyBytes = constants.DefaultMaxBodyBytes

// handleWebhook ingests one channel webhook delivery. The response contract
// is idempotent from the provider's side: 200 for admitted and duplicate
// events alike, 4xx only for malformed or unauthenticated payloads.
func (s *Server) handleWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		channel := models.Channel(mux.Vars(r)["channel"])
		if !channel.Valid() {
			s.writeError(w, r, errors.NewMalformedPayloadError(string(channel), "unknown channel"))
			return
		}

		body, err := verifySignature(r, s.cfg.Server.WebhookSecret)
		if err != nil {
			s.logger.WithError(err).WithField("channel", string(channel)).Warn("Webhook signature verification failed")
			s.writeError(w, r, errors.New(errors.ErrCodeAuthentication, "invalid webhook signature"))
			return
		}

		msg, err := ingress.Normalize(body, channel)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		result, err := s.engine.Ingest(r.Context(), msg)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		s.writeJSON(w, http.StatusOK, result)
	}
}

type takeoverRequest struct {
	AgentID string `json:"agentId"`
}

func (s *Server) handleTakeover() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req takeoverRequest
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		conv, err := s.engine.Takeover(r.Context(), mux.Vars(r)["id"], req.AgentID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, conv)
	}
}

type handbackRequest struct {
	AgentID        string `json:"agentId"`
	NotifyCustomer bool   `json:"notifyCustomer"`
	Force          bool   `json:"force"`
}

func (s *Server) handleHandback() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req handbackRequest
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		conv, err := s.engine.Handback(r.Context(), mux.Vars(r)["id"], req.AgentID, req.NotifyCustomer, req.Force)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, conv)
	}
}

func (s *Server) handlePause() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conv, err := s.engine.Pause(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, conv)
	}
}

type resumeRequest struct {
	Target  string `json:"target"`
	AgentID string `json:"agentId"`
}

func (s *Server) handleResume() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req resumeRequest
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		conv, err := s.engine.Resume(r.Context(), mux.Vars(r)["id"], models.ControlMode(req.Target), req.AgentID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, conv)
	}
}

func (s *Server) handleClearAttention() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conv, err := s.engine.ClearAttention(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, conv)
	}
}

func (s *Server) handleArchiveConversation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.engine.Archive(r.Context(), mux.Vars(r)["id"]); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleGetConversation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := s.engine.GetConversation(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, view)
	}
}

func (s *Server) handleListConversations() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := models.ConversationFilter{
			TenantID:    q.Get("tenant"),
			ControlMode: models.ControlMode(q.Get("mode")),
		}
		if filter.ControlMode != "" && !filter.ControlMode.Valid() {
			s.writeError(w, r, errors.NewValidationError("mode", "unknown control mode"))
			return
		}
		if attention := q.Get("attention"); attention != "" {
			val, err := strconv.ParseBool(attention)
			if err != nil {
				s.writeError(w, r, errors.NewValidationError("attention", "must be true or false"))
				return
			}
			filter.NeedsAttention = &val
		}
		if archived := q.Get("includeArchived"); archived != "" {
			val, err := strconv.ParseBool(archived)
			if err != nil {
				s.writeError(w, r, errors.NewValidationError("includeArchived", "must be true or false"))
				return
			}
			filter.IncludeArchived = val
		}
		if limit := q.Get("limit"); limit != "" {
			val, err := strconv.Atoi(limit)
			if err != nil || val < 0 {
				s.writeError(w, r, errors.NewValidationError("limit", "must be a non-negative integer"))
				return
			}
			filter.Limit = val
		}

		views, err := s.engine.ListConversations(r.Context(), filter)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, views)
	}
}

// handleHandbackRecommendation is the advisory read path. It may be slow
// (one AI call); callers time out via the request context with no effect on
// conversation state.
func (s *Server) handleHandbackRecommendation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := s.advisor.Recommend(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, rec)
	}
}

func decodeJSON(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxWebhookBodyBytes))
	if err := decoder.Decode(dst); err != nil {
		return errors.New(errors.ErrCodeInvalidInput, "invalid JSON body")
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := tracing.GetRequestID(r.Context())
	status := errors.HTTPStatusCode(err)

	if status >= 500 {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"request_id": requestID,
			"path":       r.URL.Path,
		}).Error("Request failed")
	} else {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"request_id": requestID,
			"path":       r.URL.Path,
		}).Debug("Request rejected")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encodeErr := json.NewEncoder(w).Encode(errors.ToHTTPResponse(err, requestID)); encodeErr != nil {
		s.logger.WithError(encodeErr).Error("Failed to encode error response")
	}
}
