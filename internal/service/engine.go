package service

import (
	"context"
	"sync"
	"time"

	"handoff/internal/constants"
	"handoff/internal/errors"
	"handoff/internal/metrics"
	"handoff/internal/models"
	"handoff/internal/privacy"
	"handoff/pkg/aiagent"
	"handoff/pkg/notify"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// EngineOptions configures the control-mode engine.
type EngineOptions struct {
	Escalation       models.EscalationConfig
	LeaseTimeout     time.Duration
	TranscriptWindow int
	EffectTimeout    time.Duration
}

// Engine is the one serialization point for conversation state. Inbound
// messages and operator actions enter through it; every transition runs
// under the conversation's exclusive lease and is persisted before its side
// effects run.
type Engine struct {
	store     ConversationStore
	responder AIResponder
	notifier  Notifier
	leases    *leaseRegistry
	opts      EngineOptions
	logger    *logrus.Logger

	// test seams
	newID func() string
	now   func() time.Time

	effectWG sync.WaitGroup
}

func NewEngine(store ConversationStore, responder AIResponder, notifier Notifier, opts EngineOptions, logger *logrus.Logger) *Engine {
	if opts.LeaseTimeout == 0 {
		opts.LeaseTimeout = time.Duration(constants.DefaultLeaseAcquireTimeoutMs) * time.Millisecond
	}
	if opts.TranscriptWindow == 0 {
		opts.TranscriptWindow = constants.DefaultTranscriptWindow
	}
	if opts.EffectTimeout == 0 {
		opts.EffectTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{
		store:     store,
		responder: responder,
		notifier:  notifier,
		leases:    newLeaseRegistry(opts.LeaseTimeout),
		opts:      opts,
		logger:    logger,
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

// Wait blocks until all in-flight asynchronous effects (AI replies,
// notifications) have finished. Called on shutdown.
func (e *Engine) Wait() {
	e.effectWG.Wait()
}

// IngestResult reports what ingestion did with a webhook event.
type IngestResult struct {
	ConversationID string           `json:"conversationId"`
	Duplicate      bool             `json:"duplicate"`
	Escalated      bool             `json:"escalated"`
	Reason         EscalationReason `json:"reason,omitempty"`
}

// Ingest processes one normalized inbound message. Dedup admission happens
// first and is independent of the per-conversation lease, so duplicate
// deliveries for different conversations never contend on the same lock.
// Duplicates are a no-op, not an error. If ingestion fails after admission
// (lease timeout, store error), the admission is rolled back before the
// error is returned: the provider retries failed deliveries, and a key left
// behind would turn that retry into a silent duplicate.
func (e *Engine) Ingest(ctx context.Context, msg *models.InboundMessage) (result *IngestResult, err error) {
	admitted, err := e.store.AdmitMessage(ctx, msg.ProviderMessageID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			e.forgetAdmission(ctx, msg.ProviderMessageID)
		}
	}()
	if !admitted {
		e.logger.WithFields(logrus.Fields{
			"provider_message_id": privacy.MaskMessageID(msg.ProviderMessageID),
			"conversation_key":    msg.Key.TenantID + "/" + string(msg.Key.Channel),
		}).Info("Duplicate delivery ignored")
		metrics.IncrementCounter("ingest_duplicates_total", map[string]string{
			"channel": string(msg.Key.Channel),
		}, "Duplicate webhook deliveries")
		return &IngestResult{Duplicate: true}, nil
	}

	now := e.now().UTC()
	conv, err := e.store.GetOrCreateConversation(ctx, msg.Key, e.newID(), now)
	if err != nil {
		return nil, err
	}

	release, err := e.leases.acquire(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	// Reload under the lease; the row may have changed since resolution.
	conv, err = e.store.GetConversation(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, errors.NewNotFoundError("conversation", msg.Key.String())
	}

	ev := transitionEvent{kind: eventInbound}
	if conv.ControlMode == models.ControlModeAuto {
		cfg := e.opts.Escalation.ForTenant(conv.TenantID)
		ev.escalate, ev.reason = EvaluateEscalation(msg.Body, conv.ConsecutiveMisses, cfg)
	}

	fx, err := e.applyAndPersist(ctx, conv, ev, now)
	if err != nil {
		return nil, err
	}

	if err := e.store.AppendTranscript(ctx, conv.ID, models.SenderCustomer, msg.Body, msg.ReceivedAt); err != nil {
		e.logger.WithError(err).WithField("conversation_id", conv.ID).Warn("Failed to append inbound message to transcript")
	}

	metrics.IncrementCounter("ingest_messages_total", map[string]string{
		"channel":   string(msg.Key.Channel),
		"escalated": boolLabel(ev.escalate),
	}, "Admitted inbound messages")

	e.runEffects(ctx, conv, fx, msg.Body)

	result = &IngestResult{
		ConversationID: conv.ID,
		Escalated:      ev.escalate,
		Reason:         ev.reason,
	}
	if ev.escalate {
		e.logger.WithFields(logrus.Fields{
			"conversation_id": conv.ID,
			"tenant_id":       conv.TenantID,
			"reason":          string(ev.reason),
		}).Info("Conversation escalated to manual control")
	}
	return result, nil
}

// forgetAdmission is the best-effort rollback for a failed ingestion. It
// runs on a detached context so a cancelled request can still clean up; if
// the delete itself fails the key stays behind and the message is lost to
// redelivery, which is worth an error-level log.
func (e *Engine) forgetAdmission(ctx context.Context, providerMessageID string) {
	rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.store.ForgetMessage(rbCtx, providerMessageID); err != nil {
		e.logger.WithError(err).WithField(
			"provider_message_id", privacy.MaskMessageID(providerMessageID),
		).Error("Failed to roll back message admission")
	}
}

// Takeover assigns a conversation to a human agent. Idempotent for the
// current owner; a conflicting owner surfaces InvalidTransition, never a
// silent reassignment.
func (e *Engine) Takeover(ctx context.Context, conversationID, agentID string) (*models.Conversation, error) {
	if agentID == "" {
		return nil, errors.NewValidationError("agentId", "agentId is required")
	}
	return e.operatorAction(ctx, conversationID, transitionEvent{kind: eventTakeover, agentID: agentID})
}

// Handback returns a manual conversation to automated control. Only the
// assigned agent may hand back unless force is set; force never bypasses
// the lease.
func (e *Engine) Handback(ctx context.Context, conversationID, agentID string, notifyCustomer, force bool) (*models.Conversation, error) {
	if agentID == "" {
		return nil, errors.NewValidationError("agentId", "agentId is required")
	}
	return e.operatorAction(ctx, conversationID, transitionEvent{
		kind:           eventHandback,
		agentID:        agentID,
		notifyCustomer: notifyCustomer,
		force:          force,
	})
}

// Pause freezes automated replies from any state. In-flight AI replies
// begun before the pause are discarded at send time.
func (e *Engine) Pause(ctx context.Context, conversationID string) (*models.Conversation, error) {
	return e.operatorAction(ctx, conversationID, transitionEvent{kind: eventPause})
}

// Resume leaves paused for an explicit target mode.
func (e *Engine) Resume(ctx context.Context, conversationID string, target models.ControlMode, agentID string) (*models.Conversation, error) {
	return e.operatorAction(ctx, conversationID, transitionEvent{kind: eventResume, target: target, agentID: agentID})
}

// ClearAttention resets the needs-human-attention flag. This and handback
// are the only ways the flag clears.
func (e *Engine) ClearAttention(ctx context.Context, conversationID string) (*models.Conversation, error) {
	return e.operatorAction(ctx, conversationID, transitionEvent{kind: eventClearAttention})
}

// Archive soft-deletes a conversation. Manual conversations must be handed
// back or paused first so an agent's work is never silently discarded.
func (e *Engine) Archive(ctx context.Context, conversationID string) error {
	release, err := e.leases.acquire(ctx, conversationID)
	if err != nil {
		return err
	}
	defer release()

	conv, err := e.store.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv == nil {
		return errors.NewNotFoundError("conversation", conversationID)
	}
	if conv.ControlMode == models.ControlModeManual {
		return errors.NewInvalidTransitionError(conv.ID, string(conv.ControlMode), "archive")
	}

	if err := e.store.ArchiveConversation(ctx, conversationID, e.now().UTC()); err != nil {
		return err
	}

	e.logger.WithFields(logrus.Fields{
		"conversation_id": conversationID,
	}).Info("Conversation archived")
	metrics.IncrementCounter("operator_actions_total", map[string]string{"action": "archive"}, "Operator actions applied")
	return nil
}

func (e *Engine) operatorAction(ctx context.Context, conversationID string, ev transitionEvent) (*models.Conversation, error) {
	release, err := e.leases.acquire(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	defer release()

	conv, err := e.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, errors.NewNotFoundError("conversation", conversationID)
	}

	fx, err := e.applyAndPersist(ctx, conv, ev, e.now().UTC())
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"conversation_id": conv.ID,
		"action":          ev.kind.String(),
		"control_mode":    string(conv.ControlMode),
		"agent_id":        privacy.MaskAgentID(ev.agentID),
	}).Info("Operator action applied")
	metrics.IncrementCounter("operator_actions_total", map[string]string{
		"action": ev.kind.String(),
	}, "Operator actions applied")

	e.runEffects(ctx, conv, fx, "")
	return conv, nil
}

// applyAndPersist runs the pure transition and writes the result. The
// conversation row is the source of truth; effects only run after it is
// durable.
func (e *Engine) applyAndPersist(ctx context.Context, conv *models.Conversation, ev transitionEvent, now time.Time) (effects, error) {
	fx, err := applyTransition(conv, ev, now)
	if err != nil {
		return effects{}, err
	}
	if err := conv.CheckInvariants(); err != nil {
		return effects{}, errors.Wrap(err, errors.ErrCodeInternalError, "transition produced an invalid state")
	}
	conv.UpdatedAt = now
	if err := e.store.UpdateConversation(ctx, conv); err != nil {
		return effects{}, err
	}
	return fx, nil
}

// runEffects dispatches a transition's side effects asynchronously so the
// webhook/API response stays fast. Notification failures are logged and
// dropped; the persisted transition is authoritative either way.
func (e *Engine) runEffects(ctx context.Context, conv *models.Conversation, fx effects, customerMessage string) {
	snapshot := *conv

	if fx.notifyOperators {
		e.spawn(ctx, func(fxCtx context.Context) {
			e.notifyOperators(fxCtx, &snapshot, fx)
		})
	}
	if fx.notifyCustomer {
		e.spawn(ctx, func(fxCtx context.Context) {
			e.notifyCustomerReturned(fxCtx, &snapshot)
		})
	}
	if fx.scheduleAIReply {
		e.spawn(ctx, func(fxCtx context.Context) {
			e.generateAndSendReply(fxCtx, snapshot.ID, customerMessage)
		})
	}
}

// spawn runs fn detached from the caller's cancellation but bounded by the
// effect timeout, and tracked for shutdown.
func (e *Engine) spawn(ctx context.Context, fn func(context.Context)) {
	e.effectWG.Add(1)
	go func() {
		defer e.effectWG.Done()
		fxCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.EffectTimeout)
		defer cancel()
		fn(fxCtx)
	}()
}

func (e *Engine) notifyOperators(ctx context.Context, conv *models.Conversation, fx effects) {
	event := notify.OperatorEvent{
		Type:           fx.operatorEvent,
		TenantID:       conv.TenantID,
		ConversationID: conv.ID,
		Channel:        string(conv.Channel),
		CustomerHandle: conv.CustomerHandle,
		Reason:         string(fx.reason),
		OccurredAt:     e.now().UTC(),
	}
	if conv.AssignedAgent != nil {
		event.AgentID = *conv.AssignedAgent
	}
	if err := e.notifier.NotifyOperators(ctx, event); err != nil {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"conversation_id": conv.ID,
			"event_type":      fx.operatorEvent,
		}).Error("Operator notification failed")
	}
}

func (e *Engine) notifyCustomerReturned(ctx context.Context, conv *models.Conversation) {
	msg := notify.CustomerMessage{
		TenantID:       conv.TenantID,
		ConversationID: conv.ID,
		Channel:        string(conv.Channel),
		CustomerHandle: conv.CustomerHandle,
		Text:           "You're back with our automated assistant. A team member is still available if you need one.",
	}
	if err := e.notifier.NotifyCustomer(ctx, msg); err != nil {
		e.logger.WithError(err).WithField("conversation_id", conv.ID).Error("Customer handback notification failed")
	}
}

// generateAndSendReply runs the AI reply pipeline for a message that stayed
// in auto. Generation happens without the lease so a slow model call never
// blocks ingestion; before sending, the lease is re-acquired and the
// conversation reloaded, and the reply is discarded unless the conversation
// is still in auto.
func (e *Engine) generateAndSendReply(ctx context.Context, conversationID, customerMessage string) {
	history, err := e.store.RecentTranscript(ctx, conversationID, e.opts.TranscriptWindow)
	if err != nil {
		e.logger.WithError(err).WithField("conversation_id", conversationID).Error("Failed to load transcript for reply generation")
		return
	}
	// The inbound message is already in the transcript by the time this
	// runs; drop it from the history window so the prompt does not carry
	// it twice.
	if n := len(history); n > 0 && history[n-1].Sender == models.SenderCustomer && history[n-1].Body == customerMessage {
		history = history[:n-1]
	}

	reply, err := e.responder.GenerateReply(ctx, toAgentHistory(history), customerMessage)
	if err != nil {
		e.logger.WithError(err).WithField("conversation_id", conversationID).Error("AI reply generation failed")
		metrics.IncrementCounter("ai_replies_total", map[string]string{"outcome": "error"}, "AI reply pipeline outcomes")
		return
	}

	release, err := e.leases.acquire(ctx, conversationID)
	if err != nil {
		e.logger.WithError(err).WithField("conversation_id", conversationID).Warn("Discarding AI reply, lease unavailable")
		metrics.IncrementCounter("ai_replies_total", map[string]string{"outcome": "lease_timeout"}, "AI reply pipeline outcomes")
		return
	}
	defer release()

	conv, err := e.store.GetConversation(ctx, conversationID)
	if err != nil || conv == nil {
		e.logger.WithError(err).WithField("conversation_id", conversationID).Error("Failed to reload conversation before sending reply")
		return
	}
	if conv.ControlMode != models.ControlModeAuto {
		e.logger.WithFields(logrus.Fields{
			"conversation_id": conv.ID,
			"control_mode":    string(conv.ControlMode),
		}).Info("Discarding in-flight AI reply, conversation left auto")
		metrics.IncrementCounter("ai_replies_total", map[string]string{"outcome": "discarded"}, "AI reply pipeline outcomes")
		return
	}

	now := e.now().UTC()
	if reply.Understood {
		conv.ConsecutiveMisses = 0
	} else {
		conv.ConsecutiveMisses++
	}
	conv.LastSender = models.SenderAI
	conv.UpdatedAt = now
	if err := e.store.UpdateConversation(ctx, conv); err != nil {
		e.logger.WithError(err).WithField("conversation_id", conv.ID).Error("Failed to record AI reply state")
		return
	}
	if err := e.store.AppendTranscript(ctx, conv.ID, models.SenderAI, reply.Text, now); err != nil {
		e.logger.WithError(err).WithField("conversation_id", conv.ID).Warn("Failed to append AI reply to transcript")
	}

	if err := e.notifier.NotifyCustomer(ctx, notify.CustomerMessage{
		TenantID:       conv.TenantID,
		ConversationID: conv.ID,
		Channel:        string(conv.Channel),
		CustomerHandle: conv.CustomerHandle,
		Text:           reply.Text,
	}); err != nil {
		e.logger.WithError(err).WithField("conversation_id", conv.ID).Error("Failed to deliver AI reply")
		metrics.IncrementCounter("ai_replies_total", map[string]string{"outcome": "send_error"}, "AI reply pipeline outcomes")
		return
	}
	metrics.IncrementCounter("ai_replies_total", map[string]string{"outcome": "sent"}, "AI reply pipeline outcomes")
}

// ConversationView is a conversation plus its derived response-time signal,
// as returned by the query API.
type ConversationView struct {
	*models.Conversation
	ResponseTime ResponseTimeStatus `json:"responseTime"`
}

// GetConversation is the read path for one conversation. It takes no lease.
func (e *Engine) GetConversation(ctx context.Context, conversationID string) (*ConversationView, error) {
	conv, err := e.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, errors.NewNotFoundError("conversation", conversationID)
	}
	return &ConversationView{
		Conversation: conv,
		ResponseTime: ClassifyResponseTime(conv, e.now().UTC()),
	}, nil
}

// ListConversations is the read path for conversation lists.
func (e *Engine) ListConversations(ctx context.Context, filter models.ConversationFilter) ([]*ConversationView, error) {
	convs, err := e.store.ListConversations(ctx, filter)
	if err != nil {
		return nil, err
	}
	now := e.now().UTC()
	views := make([]*ConversationView, len(convs))
	for i, conv := range convs {
		views[i] = &ConversationView{
			Conversation: conv,
			ResponseTime: ClassifyResponseTime(conv, now),
		}
	}
	return views, nil
}

func toAgentHistory(entries []models.TranscriptEntry) []aiagent.TranscriptMessage {
	history := make([]aiagent.TranscriptMessage, len(entries))
	for i, entry := range entries {
		history[i] = aiagent.TranscriptMessage{
			Sender: string(entry.Sender),
			Body:   entry.Body,
		}
	}
	return history
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
