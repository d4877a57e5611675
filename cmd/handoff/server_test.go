package main

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"handoff/internal/constants"
	"handoff/internal/database"
	"handoff/internal/models"
	"handoff/internal/service"
	"handoff/pkg/aiagent"
	"handoff/pkg/circuitbreaker"
	"handoff/pkg/notify"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResponder struct {
	reply      *aiagent.Reply
	assessment *aiagent.HandbackAssessment
	err        error
}

func (s *stubResponder) GenerateReply(ctx context.Context, history []aiagent.TranscriptMessage, customerMessage string) (*aiagent.Reply, error) {
	return s.reply, s.err
}

func (s *stubResponder) SummarizeForHandback(ctx context.Context, history []aiagent.TranscriptMessage) (*aiagent.HandbackAssessment, error) {
	return s.assessment, s.err
}

type stubNotifier struct{}

func (stubNotifier) NotifyOperators(ctx context.Context, event notify.OperatorEvent) error { return nil }
func (stubNotifier) NotifyCustomer(ctx context.Context, msg notify.CustomerMessage) error  { return nil }

type testEnv struct {
	server *Server
	db     *database.Database
	engine *service.Engine
}

func newTestServer(t *testing.T, webhookSecret string, responder *stubResponder) *testEnv {
	t.Helper()

	db, err := database.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	engine := service.NewEngine(db, responder, stubNotifier{}, service.EngineOptions{
		Escalation: models.EscalationConfig{
			HandoffPhrases:            constants.DefaultHandoffPhrases,
			UrgencyKeywords:           constants.DefaultUrgencyKeywords,
			QuoteKeywords:             constants.DefaultQuoteKeywords,
			MisunderstandingThreshold: constants.DefaultMisunderstandingThreshold,
		},
		LeaseTimeout: 500 * time.Millisecond,
	}, logger)

	breaker := circuitbreaker.New("ai_agent", circuitbreaker.Config{MaxFailures: 3, ResetTimeout: time.Minute}, logger)
	advisor := service.NewAdvisor(db, responder, breaker, 0, logger)

	cfg := &models.Config{}
	cfg.Server.WebhookSecret = webhookSecret

	return &testEnv{
		server: NewServer(cfg, engine, advisor, logger),
		db:     db,
		engine: engine,
	}
}

func (env *testEnv) request(t *testing.T, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	env.server.router.ServeHTTP(rec, req)
	return rec
}

func smsPayload(messageSid, body string) []byte {
	payload, _ := json.Marshal(map[string]string{
		"tenantId":   "tenant-1",
		"MessageSid": messageSid,
		"From":       "+15551234567",
		"Body":       body,
	})
	return payload
}

func TestWebhookIngestsAndIsIdempotent(t *testing.T) {
	env := newTestServer(t, "", &stubResponder{reply: &aiagent.Reply{Text: "Hi!", Understood: true}})

	rec := env.request(t, http.MethodPost, "/webhook/sms", smsPayload("SM123", "hello"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var first service.IngestResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.False(t, first.Duplicate)
	assert.NotEmpty(t, first.ConversationID)

	rec = env.request(t, http.MethodPost, "/webhook/sms", smsPayload("SM123", "hello"), nil)
	require.Equal(t, http.StatusOK, rec.Code, "duplicates still answer 200")

	var second service.IngestResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.True(t, second.Duplicate)

	env.engine.Wait()
}

func TestWebhookMalformedPayload(t *testing.T) {
	env := newTestServer(t, "", &stubResponder{})

	payload, _ := json.Marshal(map[string]string{"tenantId": "tenant-1", "From": "+15551234567"})
	rec := env.request(t, http.MethodPost, "/webhook/sms", payload, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookUnknownChannel(t *testing.T) {
	env := newTestServer(t, "", &stubResponder{})
	rec := env.request(t, http.MethodPost, "/webhook/fax", smsPayload("SM1", "hi"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookSignatureVerification(t *testing.T) {
	const secret = "test-webhook-secret"
	env := newTestServer(t, secret, &stubResponder{reply: &aiagent.Reply{Text: "ok", Understood: true}})
	payload := smsPayload("SM200", "hello")

	rec := env.request(t, http.MethodPost, "/webhook/sms", payload, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "missing signature rejected")

	rec = env.request(t, http.MethodPost, "/webhook/sms", payload, map[string]string{
		signatureHeader: "sha256=deadbeef",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "bad signature rejected")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	rec = env.request(t, http.MethodPost, "/webhook/sms", payload, map[string]string{
		signatureHeader: "sha256=" + hex.EncodeToString(mac.Sum(nil)),
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	env.engine.Wait()
}

func TestEscalationFlowOverHTTP(t *testing.T) {
	env := newTestServer(t, "", &stubResponder{})

	rec := env.request(t, http.MethodPost, "/webhook/web", mustJSON(map[string]string{
		"tenantId":  "tenant-1",
		"messageId": "web-1",
		"sessionId": "sess-1",
		"text":      "I want to talk to a person",
	}), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result service.IngestResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Escalated)
	assert.Equal(t, service.ReasonExplicitRequest, result.Reason)
	env.engine.Wait()

	// Agent takes over, then hands back.
	rec = env.request(t, http.MethodPost, "/api/v1/conversations/"+result.ConversationID+"/takeover",
		mustJSON(map[string]string{"agentId": "agent-1"}), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// A second agent's takeover conflicts.
	rec = env.request(t, http.MethodPost, "/api/v1/conversations/"+result.ConversationID+"/takeover",
		mustJSON(map[string]string{"agentId": "agent-2"}), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.request(t, http.MethodPost, "/api/v1/conversations/"+result.ConversationID+"/handback",
		mustJSON(map[string]interface{}{"agentId": "agent-1", "notifyCustomer": false}), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var conv models.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conv))
	assert.Equal(t, models.ControlModeAuto, conv.ControlMode)
	assert.False(t, conv.NeedsHumanAttention)
	env.engine.Wait()
}

func TestPauseAndResumeOverHTTP(t *testing.T) {
	env := newTestServer(t, "", &stubResponder{reply: &aiagent.Reply{Text: "ok", Understood: true}})

	rec := env.request(t, http.MethodPost, "/webhook/sms", smsPayload("SM300", "hello"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var result service.IngestResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	env.engine.Wait()

	rec = env.request(t, http.MethodPost, "/api/v1/conversations/"+result.ConversationID+"/pause", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(t, http.MethodPost, "/api/v1/conversations/"+result.ConversationID+"/resume",
		mustJSON(map[string]string{"target": "auto"}), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var conv models.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conv))
	assert.Equal(t, models.ControlModeAuto, conv.ControlMode)
}

func TestGetConversationNotFound(t *testing.T) {
	env := newTestServer(t, "", &stubResponder{})
	rec := env.request(t, http.MethodGet, "/api/v1/conversations/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListConversationsWithFilters(t *testing.T) {
	env := newTestServer(t, "", &stubResponder{})

	rec := env.request(t, http.MethodPost, "/webhook/web", mustJSON(map[string]string{
		"tenantId":  "tenant-1",
		"messageId": "web-10",
		"sessionId": "sess-10",
		"text":      "this is urgent",
	}), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	env.engine.Wait()

	rec = env.request(t, http.MethodGet, "/api/v1/conversations?tenant=tenant-1&mode=manual&attention=true", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var views []service.ConversationView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.True(t, views[0].NeedsHumanAttention)

	rec = env.request(t, http.MethodGet, "/api/v1/conversations?mode=bogus", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandbackRecommendationDegrades(t *testing.T) {
	env := newTestServer(t, "", &stubResponder{err: fmt.Errorf("model offline")})

	now := time.Now().UTC()
	agent := "agent-1"
	conv := &models.Conversation{
		ID:             "conv-manual",
		TenantID:       "tenant-1",
		Channel:        models.ChannelSMS,
		CustomerHandle: "+15550001111",
		ControlMode:    models.ControlModeManual,
		AssignedAgent:  &agent,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, env.db.CreateConversation(context.Background(), conv))

	rec := env.request(t, http.MethodGet, "/api/v1/conversations/conv-manual/handback-recommendation", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, "advisory failure is never a hard error")

	var recommendation models.HandbackRecommendation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &recommendation))
	assert.False(t, recommendation.ShouldHandback)
	assert.Equal(t, models.ConfidenceLow, recommendation.Confidence)
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestServer(t, "", &stubResponder{})
	rec := env.request(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestServer(t, "", &stubResponder{})
	rec := env.request(t, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
