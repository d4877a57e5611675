package models

// Confidence is the advisor's certainty tier for a handback recommendation.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// ContextSummary carries the structured conversation summary the advisor
// hands to the operator (and to the AI agent on handback).
type ContextSummary struct {
	Issue                 string   `json:"issue"`
	CustomerSentiment     string   `json:"customerSentiment"`
	ActionsTaken          []string `json:"actionsTaken"`
	OutstandingItems      []string `json:"outstandingItems"`
	RecommendedAIBehavior string   `json:"recommendedAiBehavior"`
}

// HandbackRecommendation is advisory only. It is never persisted and never
// the authority for control mode; an explicit handback transition is.
type HandbackRecommendation struct {
	ConversationID string         `json:"conversationId"`
	ShouldHandback bool           `json:"shouldHandback"`
	Confidence     Confidence     `json:"confidence"`
	Reason         string         `json:"reason"`
	ContextSummary ContextSummary `json:"contextSummary"`
}
