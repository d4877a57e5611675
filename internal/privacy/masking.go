package privacy

import (
	"strings"

	"handoff/internal/constants"
)

// MaskCustomerHandle masks a customer handle for logging. Handles phone
// numbers ("+1234567890" -> "+******7890"), email addresses
// ("jane@example.com" -> "j***@example.com") and opaque social IDs.
func MaskCustomerHandle(handle string) string {
	if handle == "" {
		return ""
	}

	if at := strings.Index(handle, "@"); at > 0 {
		local := handle[:at]
		domain := handle[at:]
		if len(local) == 1 {
			return "*" + domain
		}
		return local[:1] + strings.Repeat("*", len(local)-1) + domain
	}

	if strings.HasPrefix(handle, "+") {
		if len(handle) <= constants.DefaultHandleMaskLength+1 {
			return "+" + strings.Repeat("*", len(handle)-1)
		}
		visible := handle[len(handle)-constants.DefaultHandleMaskLength:]
		return "+" + strings.Repeat("*", len(handle)-1-constants.DefaultHandleMaskLength) + visible
	}

	return maskTail(handle, constants.DefaultHandleMaskLength)
}

// MaskMessageID masks a provider message ID, keeping the tail for log
// correlation.
func MaskMessageID(messageID string) string {
	return maskTail(messageID, 8)
}

// MaskAgentID masks a human agent identifier.
func MaskAgentID(agentID string) string {
	return maskTail(agentID, constants.DefaultHandleMaskLength)
}

func maskTail(s string, visible int) string {
	if s == "" {
		return ""
	}
	if len(s) <= visible {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-visible) + s[len(s)-visible:]
}
