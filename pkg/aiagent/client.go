package aiagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

// TranscriptMessage is one turn of conversation history handed to the model.
type TranscriptMessage struct {
	Sender string
	Body   string
}

// Reply is the model's answer to a customer message. Understood reports
// whether the model believes it actually addressed the request; callers use
// it to track consecutive misunderstandings.
type Reply struct {
	Text       string `json:"reply"`
	Understood bool   `json:"understood"`
}

// HandbackAssessment is the model's structured read of a manual conversation,
// used to recommend returning it to automated control.
type HandbackAssessment struct {
	ShouldHandback        bool     `json:"shouldHandback"`
	Confidence            string   `json:"confidence"`
	Reason                string   `json:"reason"`
	Issue                 string   `json:"issue"`
	CustomerSentiment     string   `json:"customerSentiment"`
	ActionsTaken          []string `json:"actionsTaken"`
	OutstandingItems      []string `json:"outstandingItems"`
	RecommendedAIBehavior string   `json:"recommendedAiBehavior"`
}

// Options configures the client.
type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Client talks to an OpenAI-compatible chat completion API for reply
// generation and handback summarization.
type Client struct {
	api         *openai.Client
	model       string
	maxTokens   int
	temperature float32
	logger      *logrus.Logger
}

const (
	defaultModel     = "gpt-4o-mini"
	defaultMaxTokens = 1024
	defaultTimeout   = 30 * time.Second
)

// NewClient creates a client. The API key is required; everything else has
// a sensible default.
func NewClient(opts Options, logger *logrus.Logger) (*Client, error) {
	if opts.APIKey == "" {
		return nil, errors.New("AI agent API key is required")
	}
	if opts.Model == "" {
		opts.Model = defaultModel
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.Timeout == 0 {
		opts.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = logrus.New()
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: opts.Timeout}

	return &Client{
		api:         openai.NewClientWithConfig(cfg),
		model:       opts.Model,
		maxTokens:   opts.MaxTokens,
		temperature: float32(opts.Temperature),
		logger:      logger,
	}, nil
}

const replySystemPrompt = `You are a customer-service assistant for a service business.
Answer the customer's latest message using the conversation history for context.
Respond with a JSON object only: {"reply": "<your answer>", "understood": <true|false>}.
Set "understood" to false when you cannot tell what the customer wants or the request is outside what you can help with.`

// GenerateReply asks the model to answer the latest customer message given
// the recent transcript.
func (c *Client) GenerateReply(ctx context.Context, history []TranscriptMessage, customerMessage string) (*Reply, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: replySystemPrompt,
	})
	for _, m := range history {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    roleFor(m.Sender),
			Content: m.Body,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: customerMessage,
	})

	content, err := c.complete(ctx, messages)
	if err != nil {
		return nil, err
	}

	var reply Reply
	if err := json.Unmarshal([]byte(stripFences(content)), &reply); err != nil {
		return nil, fmt.Errorf("failed to parse reply JSON: %w", err)
	}
	if strings.TrimSpace(reply.Text) == "" {
		return nil, errors.New("model returned an empty reply")
	}
	return &reply, nil
}

const summarizeSystemPrompt = `You review customer-service conversations that a human agent is currently handling and judge whether the AI assistant could take over again.
Respond with a JSON object only, with exactly these fields:
{"shouldHandback": <true|false>, "confidence": "<low|medium|high>", "reason": "<one sentence>", "issue": "<what the customer needed>", "customerSentiment": "<their current mood>", "actionsTaken": ["..."], "outstandingItems": ["..."], "recommendedAiBehavior": "<how the AI should act if it takes over>"}`

// SummarizeForHandback asks the model to assess a manual conversation for
// return to automated control.
func (c *Client) SummarizeForHandback(ctx context.Context, history []TranscriptMessage) (*HandbackAssessment, error) {
	var sb strings.Builder
	for _, m := range history {
		fmt.Fprintf(&sb, "%s: %s\n", m.Sender, m.Body)
	}

	content, err := c.complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: summarizeSystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: sb.String()},
	})
	if err != nil {
		return nil, err
	}

	var assessment HandbackAssessment
	if err := json.Unmarshal([]byte(stripFences(content)), &assessment); err != nil {
		return nil, fmt.Errorf("failed to parse assessment JSON: %w", err)
	}
	return &assessment, nil
}

func (c *Client) complete(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}

	c.logger.WithFields(logrus.Fields{
		"model":      resp.Model,
		"tokens_in":  resp.Usage.PromptTokens,
		"tokens_out": resp.Usage.CompletionTokens,
		"latency_ms": time.Since(start).Milliseconds(),
	}).Debug("AI agent completion finished")

	return resp.Choices[0].Message.Content, nil
}

// roleFor maps transcript senders onto chat roles. Agent and system turns
// become assistant turns so the model sees them as "our side" of the
// conversation.
func roleFor(sender string) string {
	if sender == "customer" {
		return openai.ChatMessageRoleUser
	}
	return openai.ChatMessageRoleAssistant
}

// stripFences tolerates models that wrap JSON in a markdown code fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}
