package service

import (
	"context"

	"handoff/internal/constants"
	"handoff/internal/errors"
	"handoff/internal/metrics"
	"handoff/internal/models"
	"handoff/pkg/aiagent"
	"handoff/pkg/circuitbreaker"

	"github.com/sirupsen/logrus"
)

// Advisor produces handback recommendations for manual conversations. It is
// strictly read-only: it never touches control mode, and a failing AI
// collaborator degrades to a low-confidence "unable to assess" answer
// instead of an error, so advisory failure can never block a human handback.
type Advisor struct {
	store      ConversationStore
	summarizer AIResponder
	breaker    *circuitbreaker.Breaker
	window     int
	logger     *logrus.Logger
}

func NewAdvisor(store ConversationStore, summarizer AIResponder, breaker *circuitbreaker.Breaker, window int, logger *logrus.Logger) *Advisor {
	if window <= 0 {
		window = constants.DefaultTranscriptWindow
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Advisor{
		store:      store,
		summarizer: summarizer,
		breaker:    breaker,
		window:     window,
		logger:     logger,
	}
}

// Recommend assesses whether a conversation can return to automated
// control. Callers may cancel via ctx at any point; cancellation has no
// effect on conversation state.
func (a *Advisor) Recommend(ctx context.Context, conversationID string) (*models.HandbackRecommendation, error) {
	conv, err := a.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, errors.NewNotFoundError("conversation", conversationID)
	}

	if conv.ControlMode != models.ControlModeManual {
		return &models.HandbackRecommendation{
			ConversationID: conv.ID,
			ShouldHandback: false,
			Confidence:     models.ConfidenceHigh,
			Reason:         "conversation is not under manual control",
		}, nil
	}

	history, err := a.store.RecentTranscript(ctx, conv.ID, a.window)
	if err != nil {
		return nil, err
	}

	var assessment *aiagent.HandbackAssessment
	err = a.breaker.Execute(ctx, func(ctx context.Context) error {
		var sumErr error
		assessment, sumErr = a.summarizer.SummarizeForHandback(ctx, toAgentHistory(history))
		return sumErr
	})
	if err != nil {
		a.logger.WithError(err).WithFields(logrus.Fields{
			"conversation_id": conv.ID,
			"breaker_open":    circuitbreaker.IsOpen(err),
		}).Warn("Handback summarization unavailable, degrading to low confidence")
		metrics.IncrementCounter("handback_recommendations_total", map[string]string{"outcome": "degraded"}, "Handback advisor outcomes")
		return &models.HandbackRecommendation{
			ConversationID: conv.ID,
			ShouldHandback: false,
			Confidence:     models.ConfidenceLow,
			Reason:         "unable to assess: summarization unavailable",
		}, nil
	}

	metrics.IncrementCounter("handback_recommendations_total", map[string]string{"outcome": "assessed"}, "Handback advisor outcomes")
	return &models.HandbackRecommendation{
		ConversationID: conv.ID,
		ShouldHandback: assessment.ShouldHandback,
		Confidence:     parseConfidence(assessment.Confidence),
		Reason:         assessment.Reason,
		ContextSummary: models.ContextSummary{
			Issue:                 assessment.Issue,
			CustomerSentiment:     assessment.CustomerSentiment,
			ActionsTaken:          assessment.ActionsTaken,
			OutstandingItems:      assessment.OutstandingItems,
			RecommendedAIBehavior: assessment.RecommendedAIBehavior,
		},
	}, nil
}

// parseConfidence maps the model's free-text confidence onto the known
// tiers, defaulting low for anything unrecognized.
func parseConfidence(s string) models.Confidence {
	switch models.Confidence(s) {
	case models.ConfidenceHigh:
		return models.ConfidenceHigh
	case models.ConfidenceMedium:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}
