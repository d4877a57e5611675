package ingress

import (
	"encoding/json"
	"strings"
	"time"

	"handoff/internal/errors"
	"handoff/internal/models"
)

// Normalize converts a channel-specific webhook body into the canonical
// InboundMessage. It is a pure mapping: unknown fields are dropped and no
// network or store access happens here. Missing required fields
// (providerMessageId, customerHandle, body) yield a MalformedPayload error.
func Normalize(raw []byte, channel models.Channel) (*models.InboundMessage, error) {
	switch channel {
	case models.ChannelSMS:
		return normalizeSMS(raw)
	case models.ChannelWeb:
		return normalizeWeb(raw)
	case models.ChannelFacebook, models.ChannelInstagram:
		return normalizeMeta(raw, channel)
	case models.ChannelEmail:
		return normalizeEmail(raw)
	default:
		return nil, errors.NewMalformedPayloadError(string(channel), "unknown channel")
	}
}

// smsPayload is the JSON bridge form of a Twilio-style inbound SMS callback.
// The platform's channel bridge adds tenantId before forwarding.
type smsPayload struct {
	TenantID   string `json:"tenantId"`
	MessageSid string `json:"MessageSid"`
	From       string `json:"From"`
	Body       string `json:"Body"`
}

func normalizeSMS(raw []byte) (*models.InboundMessage, error) {
	var p smsPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errors.NewMalformedPayloadError("sms", "invalid JSON")
	}
	return build(models.ChannelSMS, p.TenantID, p.MessageSid, p.From, p.Body, time.Time{})
}

type webPayload struct {
	TenantID  string `json:"tenantId"`
	MessageID string `json:"messageId"`
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
	SentAt    string `json:"sentAt"`
}

func normalizeWeb(raw []byte) (*models.InboundMessage, error) {
	var p webPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errors.NewMalformedPayloadError("web", "invalid JSON")
	}
	return build(models.ChannelWeb, p.TenantID, p.MessageID, p.SessionID, p.Text, parseRFC3339(p.SentAt))
}

// metaPayload covers Facebook Messenger and Instagram DM webhook events,
// which share the Meta messaging envelope. Only the first messaging entry
// is consumed; batched entries arrive as separate deliveries from the
// platform bridge.
type metaPayload struct {
	TenantID string `json:"tenantId"`
	Entry    []struct {
		Messaging []struct {
			Sender struct {
				ID string `json:"id"`
			} `json:"sender"`
			Timestamp int64 `json:"timestamp"`
			Message   struct {
				MID  string `json:"mid"`
				Text string `json:"text"`
			} `json:"message"`
		} `json:"messaging"`
	} `json:"entry"`
}

func normalizeMeta(raw []byte, channel models.Channel) (*models.InboundMessage, error) {
	var p metaPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errors.NewMalformedPayloadError(string(channel), "invalid JSON")
	}
	if len(p.Entry) == 0 || len(p.Entry[0].Messaging) == 0 {
		return nil, errors.NewMalformedPayloadError(string(channel), "no messaging entry")
	}
	m := p.Entry[0].Messaging[0]
	var at time.Time
	if m.Timestamp > 0 {
		at = time.UnixMilli(m.Timestamp).UTC()
	}
	return build(channel, p.TenantID, m.Message.MID, m.Sender.ID, m.Message.Text, at)
}

type emailPayload struct {
	TenantID   string `json:"tenantId"`
	MessageID  string `json:"messageId"`
	From       string `json:"from"`
	Subject    string `json:"subject"`
	TextBody   string `json:"textBody"`
	ReceivedAt string `json:"receivedAt"`
}

func normalizeEmail(raw []byte) (*models.InboundMessage, error) {
	var p emailPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errors.NewMalformedPayloadError("email", "invalid JSON")
	}
	body := strings.TrimSpace(p.TextBody)
	if body == "" {
		body = strings.TrimSpace(p.Subject)
	}
	return build(models.ChannelEmail, p.TenantID, p.MessageID, p.From, body, parseRFC3339(p.ReceivedAt))
}

// build applies the shared required-field checks and assembles the message.
// A zero receivedAt falls back to the time of normalization.
func build(channel models.Channel, tenantID, providerMessageID, customerHandle, body string, receivedAt time.Time) (*models.InboundMessage, error) {
	switch {
	case strings.TrimSpace(tenantID) == "":
		return nil, errors.NewMalformedPayloadError(string(channel), "missing tenantId")
	case strings.TrimSpace(providerMessageID) == "":
		return nil, errors.NewMalformedPayloadError(string(channel), "missing providerMessageId")
	case strings.TrimSpace(customerHandle) == "":
		return nil, errors.NewMalformedPayloadError(string(channel), "missing customerHandle")
	case strings.TrimSpace(body) == "":
		return nil, errors.NewMalformedPayloadError(string(channel), "missing body")
	}
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	return &models.InboundMessage{
		ProviderMessageID: providerMessageID,
		Key: models.ConversationKey{
			TenantID:       tenantID,
			Channel:        channel,
			CustomerHandle: customerHandle,
		},
		Body:       body,
		Sender:     models.SenderCustomer,
		ReceivedAt: receivedAt,
	}, nil
}

func parseRFC3339(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
