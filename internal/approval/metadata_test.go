package approval

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	boterrors "hitlbot/internal/errors"
)

func sampleMetadata() Metadata {
	return Metadata{
		AgentName:  "assistant",
		RunID:      "run-1",
		ToolCallID: "tc-1",
		ChannelID:  "C123",
		MessageTS:  "111.222",
		ThreadTS:   "100.000",
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	withThread := sampleMetadata()
	withoutThread := sampleMetadata()
	withoutThread.ThreadTS = ""

	for name, m := range map[string]Metadata{"with thread": withThread, "without thread": withoutThread} {
		t.Run(name, func(t *testing.T) {
			raw, err := SerializeMetadata(m)
			require.NoError(t, err)

			got, err := DeserializeMetadata(raw)
			require.NoError(t, err)
			assert.Equal(t, m, got)
		})
	}
}

func TestSerializeMetadataOmitsAbsentThread(t *testing.T) {
	m := sampleMetadata()
	m.ThreadTS = ""
	raw, err := SerializeMetadata(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"agentName":"assistant","runId":"run-1","toolCallId":"tc-1","channelId":"C123","messageTs":"111.222"}`, raw)
}

func TestMetadataThreadAnchor(t *testing.T) {
	m := sampleMetadata()
	assert.Equal(t, "100.000", m.ThreadAnchor())
	m.ThreadTS = ""
	assert.Equal(t, "111.222", m.ThreadAnchor())
}

func TestDeserializeMetadataRejectsInvalidInput(t *testing.T) {
	cases := map[string]string{
		"invalid json":          `{"agentName":`,
		"null":                  `null`,
		"array":                 `[]`,
		"string":                `"hello"`,
		"number":                `42`,
		"missing agentName":     `{"runId":"r","toolCallId":"t","channelId":"c","messageTs":"m"}`,
		"missing runId":         `{"agentName":"a","toolCallId":"t","channelId":"c","messageTs":"m"}`,
		"missing toolCallId":    `{"agentName":"a","runId":"r","channelId":"c","messageTs":"m"}`,
		"missing channelId":     `{"agentName":"a","runId":"r","toolCallId":"t","messageTs":"m"}`,
		"missing messageTs":     `{"agentName":"a","runId":"r","toolCallId":"t","channelId":"c"}`,
		"numeric runId":         `{"agentName":"a","runId":1,"toolCallId":"t","channelId":"c","messageTs":"m"}`,
		"null channelId":        `{"agentName":"a","runId":"r","toolCallId":"t","channelId":null,"messageTs":"m"}`,
		"object messageTs":      `{"agentName":"a","runId":"r","toolCallId":"t","channelId":"c","messageTs":{}}`,
		"boolean threadTs":      `{"agentName":"a","runId":"r","toolCallId":"t","channelId":"c","messageTs":"m","threadTs":true}`,
		"trailing garbage json": `{"agentName":"a"} x`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DeserializeMetadata(raw)
			require.Error(t, err)
			assert.True(t, boterrors.IsValidation(err), "expected ValidationError, got %T: %v", err, err)
		})
	}
}

func TestDeserializeMetadataIgnoresUnknownFields(t *testing.T) {
	got, err := DeserializeMetadata(`{"agentName":"a","runId":"r","toolCallId":"t","channelId":"c","messageTs":"m","extra":1}`)
	require.NoError(t, err)
	assert.Equal(t, Metadata{AgentName: "a", RunID: "r", ToolCallID: "t", ChannelID: "c", MessageTS: "m"}, got)
}

func TestMetadataRoundTripProperty(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("deserialize(serialize(m)) == m", prop.ForAll(
		func(agentName, runID, toolCallID, channelID, messageTS, threadTS string) bool {
			m := Metadata{
				AgentName:  agentName,
				RunID:      runID,
				ToolCallID: toolCallID,
				ChannelID:  channelID,
				MessageTS:  messageTS,
				ThreadTS:   threadTS,
			}
			raw, err := SerializeMetadata(m)
			if err != nil {
				return false
			}
			got, err := DeserializeMetadata(raw)
			return err == nil && got == m
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.AlphaString(),
		gen.AlphaString(),
		gen.NumString(),
		gen.NumString(),
	))

	properties.TestingRun(t)
}
