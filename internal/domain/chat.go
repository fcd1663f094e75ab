package domain

// Message roles accepted by the gateway.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is the provider-agnostic chat message shape used by the handler
// and LLM integrations. Order in a slice is conversation order.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ValidRole reports whether role is one of the accepted message roles.
func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	default:
		return false
	}
}

// ChatRequest is a single routed chat call. The full history is resent on
// every request; the gateway keeps no incremental context.
type ChatRequest struct {
	SessionID string    `json:"sessionId,omitempty"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
}
