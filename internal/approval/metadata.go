package approval

import (
	"encoding/json"
	"fmt"

	boterrors "hitlbot/internal/errors"
)

// Metadata is carried as opaque private state through the rejection-reason
// form so its submission handler can find the approval message and run.
type Metadata struct {
	AgentName  string `json:"agentName"`
	RunID      string `json:"runId"`
	ToolCallID string `json:"toolCallId"`
	ChannelID  string `json:"channelId"`
	MessageTS  string `json:"messageTs"`
	ThreadTS   string `json:"threadTs,omitempty"`
}

// ThreadAnchor returns the thread to reply in, falling back to the approval
// message itself when it was not posted in a thread.
func (m Metadata) ThreadAnchor() string {
	if m.ThreadTS != "" {
		return m.ThreadTS
	}
	return m.MessageTS
}

var requiredMetadataFields = []string{"agentName", "runId", "toolCallId", "channelId", "messageTs"}

// SerializeMetadata encodes m as JSON.
func SerializeMetadata(m Metadata) (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("serialize metadata: %w", err)
	}
	return string(data), nil
}

// DeserializeMetadata parses and structurally validates form state.
func DeserializeMetadata(raw string) (Metadata, error) {
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return Metadata{}, &boterrors.ValidationError{Reason: "parse failure", Err: err}
	}

	obj, ok := value.(map[string]any)
	if !ok {
		return Metadata{}, &boterrors.ValidationError{Reason: fmt.Sprintf("expected object, got %s", jsonKind(value))}
	}

	fields := make(map[string]string, len(requiredMetadataFields)+1)
	for _, key := range requiredMetadataFields {
		v, present := obj[key]
		if !present {
			return Metadata{}, &boterrors.ValidationError{Reason: "missing required field " + key}
		}
		s, isString := v.(string)
		if !isString {
			return Metadata{}, &boterrors.ValidationError{Reason: fmt.Sprintf("field %s must be a string, got %s", key, jsonKind(v))}
		}
		fields[key] = s
	}

	threadTS := ""
	if v, present := obj["threadTs"]; present {
		s, isString := v.(string)
		if !isString {
			return Metadata{}, &boterrors.ValidationError{Reason: fmt.Sprintf("field threadTs must be a string, got %s", jsonKind(v))}
		}
		threadTS = s
	}

	return Metadata{
		AgentName:  fields["agentName"],
		RunID:      fields["runId"],
		ToolCallID: fields["toolCallId"],
		ChannelID:  fields["channelId"],
		MessageTS:  fields["messageTs"],
		ThreadTS:   threadTS,
	}, nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}
