package acp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycode/taskserver/internal/agent"
	"github.com/relaycode/taskserver/pkg/acp/jsonrpc"
)

func marshalData(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestDecodeUpdate_AssistantText(t *testing.T) {
	update := jsonrpc.SessionUpdate{
		Type: jsonrpc.UpdateAssistantText,
		Data: marshalData(t, jsonrpc.UpdateAssistantTextPayload{Text: "hello"}),
	}

	msg, terminal, err := decodeUpdate(update)
	require.NoError(t, err)
	assert.False(t, terminal)
	assert.Equal(t, agent.MsgAssistant, msg.Kind)
	require.Len(t, msg.Content, 1)
	assert.Equal(t, agent.BlockText, msg.Content[0].Kind)
	assert.Equal(t, "hello", msg.Content[0].Text)
}

func TestDecodeUpdate_ToolCallAndResult(t *testing.T) {
	callUpdate := jsonrpc.SessionUpdate{
		Type: jsonrpc.UpdateToolCall,
		Data: marshalData(t, jsonrpc.UpdateToolCallPayload{ToolCallID: "c1", Name: "Write"}),
	}
	msg, terminal, err := decodeUpdate(callUpdate)
	require.NoError(t, err)
	assert.False(t, terminal)
	assert.Equal(t, agent.BlockToolUse, msg.Content[0].Kind)
	assert.Equal(t, "c1", msg.Content[0].ToolUseID)

	resultUpdate := jsonrpc.SessionUpdate{
		Type: jsonrpc.UpdateToolResult,
		Data: marshalData(t, jsonrpc.UpdateToolResultPayload{ToolCallID: "c1", Content: "written successfully", IsError: false}),
	}
	msg, terminal, err = decodeUpdate(resultUpdate)
	require.NoError(t, err)
	assert.False(t, terminal)
	assert.Equal(t, agent.BlockToolResult, msg.Content[0].Kind)
	assert.Equal(t, "c1", msg.Content[0].ToolResultForID)
	assert.False(t, msg.Content[0].IsError)
}

func TestDecodeUpdate_Result_IsTerminal(t *testing.T) {
	update := jsonrpc.SessionUpdate{
		Type: jsonrpc.UpdateResult,
		Data: marshalData(t, jsonrpc.UpdateResultPayload{TotalTokens: 42, NumTurns: 3, DurationMs: 100}),
	}

	msg, terminal, err := decodeUpdate(update)
	require.NoError(t, err)
	assert.True(t, terminal)
	assert.Equal(t, agent.MsgResult, msg.Kind)
	assert.Equal(t, 42, msg.Usage.TotalTokens)
	assert.Equal(t, 3, msg.NumTurns)
}

func TestDecodeUpdate_UnknownType(t *testing.T) {
	update := jsonrpc.SessionUpdate{Type: "bogus"}
	_, _, err := decodeUpdate(update)
	require.Error(t, err)
}

func TestDecodeUpdate_MalformedPayload(t *testing.T) {
	update := jsonrpc.SessionUpdate{Type: jsonrpc.UpdateAssistantText, Data: json.RawMessage(`{"text":`)}
	_, _, err := decodeUpdate(update)
	require.Error(t, err)
}
