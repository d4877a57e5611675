package models

import (
	"fmt"
	"time"
)

// ControlMode identifies which actor currently generates replies for a
// conversation.
type ControlMode string

const (
	ControlModeAuto   ControlMode = "auto"
	ControlModeManual ControlMode = "manual"
	ControlModePaused ControlMode = "paused"
)

// Valid reports whether the mode is one of the three known control modes.
func (m ControlMode) Valid() bool {
	switch m {
	case ControlModeAuto, ControlModeManual, ControlModePaused:
		return true
	}
	return false
}

// Channel identifies the messaging channel a conversation belongs to.
type Channel string

const (
	ChannelSMS       Channel = "sms"
	ChannelWeb       Channel = "web"
	ChannelFacebook  Channel = "facebook"
	ChannelInstagram Channel = "instagram"
	ChannelEmail     Channel = "email"
)

// Valid reports whether the channel is supported.
func (c Channel) Valid() bool {
	switch c {
	case ChannelSMS, ChannelWeb, ChannelFacebook, ChannelInstagram, ChannelEmail:
		return true
	}
	return false
}

// Sender classifies the author of a message in a conversation.
type Sender string

const (
	SenderCustomer Sender = "customer"
	SenderAI       Sender = "ai"
	SenderAgent    Sender = "agent"
	SenderSystem   Sender = "system"
)

// Conversation is the durable control-state record for one customer/channel
// pair. All mutation goes through the engine's transition path; field writes
// outside it are a bug.
type Conversation struct {
	ID                    string      `db:"id" json:"id"`
	TenantID              string      `db:"tenant_id" json:"tenantId"`
	Channel               Channel     `db:"channel" json:"channel"`
	CustomerHandle        string      `db:"customer_handle" json:"customerHandle"`
	ControlMode           ControlMode `db:"control_mode" json:"controlMode"`
	NeedsHumanAttention   bool        `db:"needs_human_attention" json:"needsHumanAttention"`
	AssignedAgent         *string     `db:"assigned_agent" json:"assignedAgent,omitempty"`
	ConsecutiveMisses     int         `db:"consecutive_misses" json:"-"`
	LastSender            Sender      `db:"last_sender" json:"lastSender,omitempty"`
	LastCustomerMessageAt *time.Time  `db:"last_customer_message_at" json:"lastCustomerMessageAt,omitempty"`
	LastHandoffAt         *time.Time  `db:"last_handoff_at" json:"lastHandoffAt,omitempty"`
	ManualModeStartedAt   *time.Time  `db:"manual_mode_started_at" json:"manualModeStartedAt,omitempty"`
	Archived              bool        `db:"archived" json:"archived"`
	CreatedAt             time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt             time.Time   `db:"updated_at" json:"updatedAt"`
}

// CheckInvariants validates the control-mode/agent relationship:
// an assigned agent implies manual mode, and auto mode implies no agent.
func (c *Conversation) CheckInvariants() error {
	if c.AssignedAgent != nil && c.ControlMode != ControlModeManual {
		return fmt.Errorf("conversation %s: assigned agent %q with control mode %s", c.ID, *c.AssignedAgent, c.ControlMode)
	}
	if c.ControlMode == ControlModeAuto && c.AssignedAgent != nil {
		return fmt.Errorf("conversation %s: auto mode with assigned agent %q", c.ID, *c.AssignedAgent)
	}
	return nil
}

// ConversationKey resolves or creates a Conversation from an inbound message.
type ConversationKey struct {
	TenantID       string
	Channel        Channel
	CustomerHandle string
}

func (k ConversationKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.TenantID, k.Channel, k.CustomerHandle)
}

// ConversationFilter narrows ListConversations results. Zero values match
// everything within the tenant.
type ConversationFilter struct {
	TenantID        string
	ControlMode     ControlMode
	NeedsAttention  *bool
	IncludeArchived bool
	Limit           int
}
