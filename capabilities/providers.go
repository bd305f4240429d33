package capabilities

import "strings"

// Family groups providers that share tool-calling quirks.
type Family string

const (
	FamilyDefault Family = ""
	// FamilyWrapping providers (MiniMax, Grok/xAI) routinely nest the real
	// tool arguments under an envelope key such as "arguments" or "input".
	FamilyWrapping Family = "wrapping"
	// FamilyGLM providers (Zhipu GLM/ChatGLM) nest arguments under a smaller
	// set of envelope keys.
	FamilyGLM Family = "glm"
)

// RuntimeClaudeSDK is the embedded agent-SDK runtime whose overflow errors
// are only trustworthy when corroborated by compaction lifecycle events.
const RuntimeClaudeSDK = "claude-sdk"

// WrapperKeys is the envelope vocabulary recognised for every family.
var WrapperKeys = []string{
	"args",
	"arguments",
	"parameters",
	"params",
	"input",
	"inputs",
	"data",
	"body",
	"payload",
	"tool_input",
	"function_arguments",
}

var glmWrapperKeys = []string{
	"parameters",
	"function_arguments",
	"tool_input",
	"inputs",
}

// ProviderFamily classifies a provider or model identifier.
func ProviderFamily(provider string) Family {
	p := strings.ToLower(strings.TrimSpace(provider))
	switch {
	case p == "":
		return FamilyDefault
	case strings.Contains(p, "minimax"), strings.Contains(p, "grok"), strings.Contains(p, "xai"):
		return FamilyWrapping
	case strings.Contains(p, "glm"), strings.Contains(p, "zhipu"):
		return FamilyGLM
	default:
		return FamilyDefault
	}
}

// UnwrapKeys returns the envelope keys a family is allowed to unwrap, in
// precedence order.
func (f Family) UnwrapKeys() []string {
	if f == FamilyGLM {
		return glmWrapperKeys
	}
	return WrapperKeys
}

// RequiresLifecycleEvidence reports whether overflow errors from runtime
// must be corroborated by compaction lifecycle events before retrying.
func RequiresLifecycleEvidence(runtime string) bool {
	r := strings.ToLower(strings.TrimSpace(runtime))
	return r == RuntimeClaudeSDK || r == "claude_sdk" || r == "claude-agent-sdk"
}
