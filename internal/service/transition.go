package service

import (
	"time"

	"handoff/internal/errors"
	"handoff/internal/models"
)

type eventKind int

const (
	eventInbound eventKind = iota
	eventTakeover
	eventHandback
	eventPause
	eventResume
	eventClearAttention
)

func (k eventKind) String() string {
	switch k {
	case eventInbound:
		return "inbound"
	case eventTakeover:
		return "takeover"
	case eventHandback:
		return "handback"
	case eventPause:
		return "pause"
	case eventResume:
		return "resume"
	case eventClearAttention:
		return "clear_attention"
	default:
		return "unknown"
	}
}

// transitionEvent is one serialized input to the state machine: an inbound
// customer message or an operator action.
type transitionEvent struct {
	kind           eventKind
	agentID        string
	escalate       bool
	reason         EscalationReason
	target         models.ControlMode
	force          bool
	notifyCustomer bool
}

// effects are the side effects a transition requests. The engine runs them
// after the conversation row is durably updated; none of them mutate state.
type effects struct {
	notifyOperators bool
	operatorEvent   string
	reason          EscalationReason
	notifyCustomer  bool
	scheduleAIReply bool
}

// applyTransition mutates conv in place according to the control-mode
// transition table. Deterministic given (conv, ev, now); illegal requests
// fail with InvalidTransition and leave conv untouched by that event. The
// caller holds the conversation's lease and persists conv afterwards.
func applyTransition(conv *models.Conversation, ev transitionEvent, now time.Time) (effects, error) {
	switch ev.kind {
	case eventInbound:
		return applyInbound(conv, ev, now)
	case eventTakeover:
		return applyTakeover(conv, ev, now)
	case eventHandback:
		return applyHandback(conv, ev, now)
	case eventPause:
		return applyPause(conv)
	case eventResume:
		return applyResume(conv, ev, now)
	case eventClearAttention:
		conv.NeedsHumanAttention = false
		return effects{}, nil
	default:
		return effects{}, errors.NewInvalidTransitionError(conv.ID, string(conv.ControlMode), ev.kind.String())
	}
}

func applyInbound(conv *models.Conversation, ev transitionEvent, now time.Time) (effects, error) {
	conv.LastSender = models.SenderCustomer
	conv.LastCustomerMessageAt = &now

	if conv.ControlMode != models.ControlModeAuto {
		// Manual and paused conversations just record the message; the
		// human (or nobody, while paused) answers.
		return effects{}, nil
	}

	if ev.escalate {
		conv.ControlMode = models.ControlModeManual
		conv.NeedsHumanAttention = true
		conv.LastHandoffAt = &now
		conv.ManualModeStartedAt = &now
		return effects{
			notifyOperators: true,
			operatorEvent:   "escalation",
			reason:          ev.reason,
		}, nil
	}

	return effects{scheduleAIReply: true}, nil
}

func applyTakeover(conv *models.Conversation, ev transitionEvent, now time.Time) (effects, error) {
	if conv.ControlMode == models.ControlModePaused {
		return effects{}, errors.NewInvalidTransitionError(conv.ID, string(conv.ControlMode), "takeover")
	}
	if conv.AssignedAgent != nil {
		if *conv.AssignedAgent == ev.agentID {
			// Idempotent re-takeover by the current owner.
			return effects{}, nil
		}
		return effects{}, errors.NewInvalidTransitionError(conv.ID, string(conv.ControlMode), "takeover").
			WithContext("assigned_agent", *conv.AssignedAgent)
	}

	if conv.ControlMode == models.ControlModeAuto {
		conv.LastHandoffAt = &now
	}
	conv.ControlMode = models.ControlModeManual
	agent := ev.agentID
	conv.AssignedAgent = &agent
	conv.ManualModeStartedAt = &now
	return effects{}, nil
}

func applyHandback(conv *models.Conversation, ev transitionEvent, now time.Time) (effects, error) {
	if conv.ControlMode != models.ControlModeManual {
		return effects{}, errors.NewInvalidTransitionError(conv.ID, string(conv.ControlMode), "handback")
	}
	if conv.AssignedAgent != nil && *conv.AssignedAgent != ev.agentID && !ev.force {
		return effects{}, errors.NewInvalidTransitionError(conv.ID, string(conv.ControlMode), "handback").
			WithContext("assigned_agent", *conv.AssignedAgent)
	}

	conv.ControlMode = models.ControlModeAuto
	conv.AssignedAgent = nil
	conv.NeedsHumanAttention = false
	conv.LastHandoffAt = &now
	conv.ManualModeStartedAt = nil
	conv.ConsecutiveMisses = 0
	return effects{
		notifyOperators: true,
		operatorEvent:   "handback",
		notifyCustomer:  ev.notifyCustomer,
	}, nil
}

func applyPause(conv *models.Conversation) (effects, error) {
	conv.ControlMode = models.ControlModePaused
	conv.AssignedAgent = nil
	conv.ManualModeStartedAt = nil
	return effects{}, nil
}

func applyResume(conv *models.Conversation, ev transitionEvent, now time.Time) (effects, error) {
	if conv.ControlMode != models.ControlModePaused {
		return effects{}, errors.NewInvalidTransitionError(conv.ID, string(conv.ControlMode), "resume")
	}

	switch ev.target {
	case models.ControlModeAuto:
		conv.ControlMode = models.ControlModeAuto
		conv.AssignedAgent = nil
	case models.ControlModeManual:
		if ev.agentID == "" {
			return effects{}, errors.NewValidationError("agentId", "resuming to manual requires an agent")
		}
		conv.ControlMode = models.ControlModeManual
		agent := ev.agentID
		conv.AssignedAgent = &agent
		conv.ManualModeStartedAt = &now
	default:
		return effects{}, errors.NewValidationError("target", "resume target must be auto or manual")
	}
	return effects{}, nil
}
