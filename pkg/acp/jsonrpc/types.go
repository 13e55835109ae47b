// Package jsonrpc implements JSON-RPC 2.0 over stdio for the Agent Client
// Protocol (ACP) spoken between the server and a containerized coding agent.
package jsonrpc

import "encoding/json"

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Notification is a JSON-RPC 2.0 notification (no ID, no response).
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Standard JSON-RPC error codes.
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// ACP methods used by the server.
const (
	MethodInitialize    = "initialize"
	MethodSessionNew    = "session/new"
	MethodSessionPrompt = "session/prompt"
	MethodSessionCancel = "session/cancel"

	NotificationSessionUpdate = "session/update"
)

// InitializeParams for the initialize method.
type InitializeParams struct {
	ProtocolVersion int                `json:"protocolVersion"`
	ClientInfo      ClientInfo         `json:"clientInfo"`
	Capabilities    ClientCapabilities `json:"capabilities,omitempty"`
}

type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type ClientCapabilities struct {
	Streaming bool `json:"streaming,omitempty"`
}

// SessionNewParams for the session/new method.
type SessionNewParams struct {
	Cwd        string      `json:"cwd"`
	MaxTurns   int         `json:"maxTurns,omitempty"`
	Model      string      `json:"model,omitempty"`
	McpServers []McpServer `json:"mcpServers"`
}

type McpServer struct {
	Name    string   `json:"name"`
	Command string   `json:"command,omitempty"`
	Args    []string `json:"args,omitempty"`
}

// SessionNewResult from the session/new method.
type SessionNewResult struct {
	SessionID string `json:"sessionId"`
}

// ContentBlock is one element of a session/prompt's prompt array.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// SessionPromptParams for the session/prompt method.
type SessionPromptParams struct {
	SessionID string         `json:"sessionId"`
	Prompt    []ContentBlock `json:"prompt"`
}

// SessionCancelParams for the session/cancel notification.
type SessionCancelParams struct {
	Reason string `json:"reason,omitempty"`
}

// SessionUpdate is the envelope carried by every session/update notification.
// Type selects which of the Update* payloads Data decodes into.
type SessionUpdate struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Update payload shapes, keyed by SessionUpdate.Type.
const (
	UpdateAssistantText   = "assistant_text"
	UpdateThinking        = "thinking"
	UpdateUserMessage     = "user_message"
	UpdateSystemMessage   = "system_message"
	UpdateToolCall        = "tool_call"
	UpdateToolResult      = "tool_result"
	UpdateResult          = "result"
)

type UpdateAssistantTextPayload struct {
	Text string `json:"text"`
}

type UpdateThinkingPayload struct {
	Text      string `json:"text"`
	Signature string `json:"signature,omitempty"`
}

type UpdateUserMessagePayload struct {
	Content string `json:"content"`
}

type UpdateSystemMessagePayload struct {
	Subtype string          `json:"subtype"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type UpdateToolCallPayload struct {
	ToolCallID string      `json:"toolCallId"`
	Name       string      `json:"name"`
	Input      interface{} `json:"input,omitempty"`
}

type UpdateToolResultPayload struct {
	ToolCallID string `json:"toolCallId"`
	Content    string `json:"content"`
	IsError    bool   `json:"isError"`
}

type UpdateResultPayload struct {
	TotalTokens  int   `json:"totalTokens"`
	InputTokens  int   `json:"inputTokens"`
	OutputTokens int   `json:"outputTokens"`
	NumTurns     int   `json:"numTurns"`
	DurationMs   int64 `json:"durationMs"`
	IsError      bool  `json:"isError"`
	ErrorText    string `json:"errorText,omitempty"`
}
