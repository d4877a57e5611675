package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// OperatorEvent is delivered to the tenant's operator webhook when a
// conversation transition needs human awareness.
type OperatorEvent struct {
	Type           string    `json:"type"`
	TenantID       string    `json:"tenantId"`
	ConversationID string    `json:"conversationId"`
	Channel        string    `json:"channel"`
	CustomerHandle string    `json:"customerHandle"`
	Reason         string    `json:"reason,omitempty"`
	AgentID        string    `json:"agentId,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// CustomerMessage is delivered to the platform's outbound-message webhook,
// which relays it over the conversation's channel.
type CustomerMessage struct {
	TenantID       string `json:"tenantId"`
	ConversationID string `json:"conversationId"`
	Channel        string `json:"channel"`
	CustomerHandle string `json:"customerHandle"`
	Text           string `json:"text"`
}

// Client posts notification payloads to the configured webhook endpoints.
// An empty endpoint URL disables that notification path.
type Client struct {
	operatorURL string
	customerURL string
	client      *http.Client
	logger      *logrus.Logger
}

func NewClient(operatorURL, customerURL string, httpClient *http.Client, logger *logrus.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	return &Client{
		operatorURL: strings.TrimSuffix(operatorURL, "/"),
		customerURL: strings.TrimSuffix(customerURL, "/"),
		client:      httpClient,
		logger:      logger,
	}
}

// SendOperatorEvent notifies operators of a transition.
func (c *Client) SendOperatorEvent(ctx context.Context, event OperatorEvent) error {
	if c.operatorURL == "" {
		c.logger.WithField("type", event.Type).Debug("Operator webhook not configured, dropping event")
		return nil
	}
	return c.post(ctx, c.operatorURL, event)
}

// SendCustomerMessage relays a message to the customer over their channel.
func (c *Client) SendCustomerMessage(ctx context.Context, msg CustomerMessage) error {
	if c.customerURL == "" {
		c.logger.WithField("conversation_id", msg.ConversationID).Debug("Customer webhook not configured, dropping message")
		return nil
	}
	return c.post(ctx, c.customerURL, msg)
}

func (c *Client) post(ctx context.Context, endpoint string, payload interface{}) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notification endpoint returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
