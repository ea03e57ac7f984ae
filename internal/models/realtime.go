package models

// Event types pushed to live clients.
const (
	EventMatchAlert   = "match_alert"
	EventPendingCount = "pending_count"
	EventMessages     = "messages"
	EventError        = "error"
)

// Command types accepted from live clients.
const (
	CommandOpenConversation  = "open_conversation"
	CommandCloseConversation = "close_conversation"
	CommandSendMessage       = "send_message"
	CommandJoin              = "join"
	CommandDismiss           = "dismiss"
)

// MatchAlert is the one-shot prompt shown to a helper for a new match.
type MatchAlert struct {
	SessionID string `json:"session_id"`
	SeekerID  string `json:"seeker_id"`
	Topic     Topic  `json:"topic"`
}

// Event is one frame sent to a live client.
type Event struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Alert     *MatchAlert `json:"alert,omitempty"`
	Count     *int        `json:"count,omitempty"`
	Messages  []Message   `json:"messages,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// ClientCommand is one frame received from a live client.
type ClientCommand struct {
	// UserID is filled by the transport from the authenticated token.
	UserID    string `json:"-"`
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Content   string `json:"content,omitempty"`
	Name      string `json:"name,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
}
