package overflow

import (
	"github.com/victorarias/agentic-relay/agentic/message"
	"github.com/victorarias/agentic-relay/agentic/schema"
)

// Fingerprint hashes a session's message snapshot together with its
// session id. An empty string means the state could not be hashed and never
// matches another fingerprint.
func Fingerprint(snapshot []message.AgentMessage, sessionID string) string {
	sum, err := schema.HashValue(struct {
		SessionID string                 `json:"session_id"`
		Messages  []message.AgentMessage `json:"messages"`
	}{SessionID: sessionID, Messages: snapshot})
	if err != nil {
		return ""
	}
	return sum
}
