package aiagent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionServer(t *testing.T, content string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Contains(t, r.URL.Path, "/chat/completions")

		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}

		resp := map[string]interface{}{
			"id":     "chatcmpl-test",
			"model":  "gpt-4o-mini",
			"object": "chat.completion",
			"choices": []map[string]interface{}{
				{
					"index":         0,
					"finish_reason": "stop",
					"message": map[string]interface{}{
						"role":    "assistant",
						"content": content,
					},
				},
			},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 20},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(Options{APIKey: "test-key", BaseURL: baseURL + "/v1"}, nil)
	require.NoError(t, err)
	return client
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(Options{}, nil)
	assert.Error(t, err)
}

func TestGenerateReply(t *testing.T) {
	server := completionServer(t, `{"reply":"We open at 9am.","understood":true}`, http.StatusOK)
	defer server.Close()

	client := newTestClient(t, server.URL)
	reply, err := client.GenerateReply(context.Background(), []TranscriptMessage{
		{Sender: "customer", Body: "hi"},
		{Sender: "ai", Body: "hello, how can I help?"},
	}, "what time do you open?")
	require.NoError(t, err)

	assert.Equal(t, "We open at 9am.", reply.Text)
	assert.True(t, reply.Understood)
}

func TestGenerateReplyNotUnderstood(t *testing.T) {
	server := completionServer(t, `{"reply":"Sorry, could you rephrase that?","understood":false}`, http.StatusOK)
	defer server.Close()

	client := newTestClient(t, server.URL)
	reply, err := client.GenerateReply(context.Background(), nil, "asdf qwerty")
	require.NoError(t, err)
	assert.False(t, reply.Understood)
}

func TestGenerateReplyCodeFenceTolerated(t *testing.T) {
	server := completionServer(t, "```json\n{\"reply\":\"Sure.\",\"understood\":true}\n```", http.StatusOK)
	defer server.Close()

	client := newTestClient(t, server.URL)
	reply, err := client.GenerateReply(context.Background(), nil, "can you help?")
	require.NoError(t, err)
	assert.Equal(t, "Sure.", reply.Text)
}

func TestGenerateReplyBadJSON(t *testing.T) {
	server := completionServer(t, "not json at all", http.StatusOK)
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.GenerateReply(context.Background(), nil, "hello")
	assert.Error(t, err)
}

func TestGenerateReplyServerError(t *testing.T) {
	server := completionServer(t, "", http.StatusInternalServerError)
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.GenerateReply(context.Background(), nil, "hello")
	assert.Error(t, err)
}

func TestSummarizeForHandback(t *testing.T) {
	assessment := `{
		"shouldHandback": true,
		"confidence": "high",
		"reason": "Issue resolved, customer satisfied.",
		"issue": "Reschedule an appointment",
		"customerSentiment": "satisfied",
		"actionsTaken": ["moved appointment to Tuesday"],
		"outstandingItems": [],
		"recommendedAiBehavior": "Confirm the new time if asked."
	}`
	server := completionServer(t, assessment, http.StatusOK)
	defer server.Close()

	client := newTestClient(t, server.URL)
	result, err := client.SummarizeForHandback(context.Background(), []TranscriptMessage{
		{Sender: "customer", Body: "can I move my appointment?"},
		{Sender: "agent", Body: "done, see you Tuesday"},
	})
	require.NoError(t, err)

	assert.True(t, result.ShouldHandback)
	assert.Equal(t, "high", result.Confidence)
	assert.Equal(t, "Reschedule an appointment", result.Issue)
	assert.Len(t, result.ActionsTaken, 1)
}
