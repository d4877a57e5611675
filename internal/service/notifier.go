package service

import (
	"context"

	"handoff/internal/retry"
	"handoff/pkg/notify"

	"github.com/sirupsen/logrus"
)

// WebhookNotifier delivers notifications through pkg/notify with bounded
// retry. Retryable here means any transport failure; the payloads are
// idempotent on the receiving side (keyed by conversation and event type).
type WebhookNotifier struct {
	client  *notify.Client
	backoff *retry.Backoff
	logger  *logrus.Logger
}

func NewWebhookNotifier(client *notify.Client, backoff *retry.Backoff, logger *logrus.Logger) *WebhookNotifier {
	if backoff == nil {
		backoff = retry.NewBackoff(retry.DefaultBackoffConfig())
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &WebhookNotifier{client: client, backoff: backoff, logger: logger}
}

func (n *WebhookNotifier) NotifyOperators(ctx context.Context, event notify.OperatorEvent) error {
	return n.backoff.Retry(ctx, func() error {
		return n.client.SendOperatorEvent(ctx, event)
	})
}

func (n *WebhookNotifier) NotifyCustomer(ctx context.Context, msg notify.CustomerMessage) error {
	return n.backoff.Retry(ctx, func() error {
		return n.client.SendCustomerMessage(ctx, msg)
	})
}
