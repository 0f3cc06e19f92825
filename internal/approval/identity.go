package approval

import (
	"strings"

	boterrors "hitlbot/internal/errors"
	"hitlbot/internal/logging"
)

// Delimiter separates the fields of an identity token. Fields must not contain it.
const Delimiter = ":"

// Action types carried in the first field of an identity token.
const (
	ActionApprove      = "approve"
	ActionReject       = "reject"
	ActionRejectReason = "reject_reason"
)

const (
	identityShape   = `"type:agentName:runId:toolCallId"`
	identityExample = `"approve:assistant:run-123:tc-456"`
	legacyShape     = `"type:runId:toolCallId"`
)

// Identity names the paused tool call an interactive element acts on.
type Identity struct {
	ActionType string
	AgentName  string
	RunID      string
	ToolCallID string
}

// String returns the canonical token form.
func (id Identity) String() string {
	return EncodeIdentity(id.ActionType, id.AgentName, id.RunID, id.ToolCallID)
}

// WithAction returns a copy of id carrying a different action type.
func (id Identity) WithAction(actionType string) Identity {
	id.ActionType = actionType
	return id
}

// EncodeIdentity joins the four fields into a token. Callers guarantee that no
// field is empty or contains Delimiter.
func EncodeIdentity(actionType, agentName, runID, toolCallID string) string {
	return strings.Join([]string{actionType, agentName, runID, toolCallID}, Delimiter)
}

// DecodeIdentity parses a canonical four-part token.
func DecodeIdentity(token string) (Identity, error) {
	if id, ok := parseCanonical(token); ok {
		return id, nil
	}
	return Identity{}, &boterrors.FormatError{
		Raw:      token,
		Expected: identityShape + " (e.g. " + identityExample + ")",
	}
}

// IdentityCodec decodes tokens, optionally accepting the retired three-part
// form that predates per-agent routing.
type IdentityCodec struct {
	// LegacyAgentName, when set, enables the "type:runId:toolCallId" fallback
	// and is used as the agent name of such tokens.
	LegacyAgentName string
	Logger          logging.Logger
}

// Decode tries the canonical shape first and falls back to the legacy shape
// only when LegacyAgentName is configured.
func (c IdentityCodec) Decode(token string) (Identity, error) {
	if id, ok := parseCanonical(token); ok {
		return id, nil
	}
	if c.LegacyAgentName == "" {
		return DecodeIdentity(token)
	}
	if id, ok := parseLegacy(token, c.LegacyAgentName); ok {
		logging.OrNop(c.Logger).Warn("Legacy 3-part ID detected: %q, defaulting to agent %q", token, c.LegacyAgentName)
		return id, nil
	}
	return Identity{}, &boterrors.FormatError{
		Raw:      token,
		Expected: identityShape + " or legacy " + legacyShape + " (e.g. " + identityExample + ")",
	}
}

func parseCanonical(token string) (Identity, bool) {
	parts, ok := splitNonEmpty(token, 4)
	if !ok {
		return Identity{}, false
	}
	return Identity{ActionType: parts[0], AgentName: parts[1], RunID: parts[2], ToolCallID: parts[3]}, true
}

func parseLegacy(token, agentName string) (Identity, bool) {
	parts, ok := splitNonEmpty(token, 3)
	if !ok {
		return Identity{}, false
	}
	return Identity{ActionType: parts[0], AgentName: agentName, RunID: parts[1], ToolCallID: parts[2]}, true
}

func splitNonEmpty(token string, want int) ([]string, bool) {
	parts := strings.Split(token, Delimiter)
	if len(parts) != want {
		return nil, false
	}
	for _, part := range parts {
		if part == "" {
			return nil, false
		}
	}
	return parts, true
}
