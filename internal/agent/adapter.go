// Package agent defines the narrow interface the Session Manager and Task
// Executor use to talk to a backend coding agent, independent of how that
// agent is actually hosted (container, subprocess, remote service).
package agent

import (
	"context"

	"github.com/relaycode/taskserver/internal/task/models"
)

// ContentBlockKind tags the variant of a ContentBlock.
type ContentBlockKind string

const (
	BlockText       ContentBlockKind = "text"
	BlockThinking   ContentBlockKind = "thinking"
	BlockToolUse    ContentBlockKind = "tool_use"
	BlockToolResult ContentBlockKind = "tool_result"
)

// ContentBlock is one polymorphic element of an Assistant message's content list.
type ContentBlock struct {
	Kind ContentBlockKind

	// BlockText / BlockThinking
	Text      string
	Signature string

	// BlockToolUse
	ToolUseID string
	ToolName  string
	ToolInput any

	// BlockToolResult
	ToolResultForID string
	ResultContent   string
	IsError         bool
}

// MessageKind tags the top-level variant of a Message from the agent stream.
type MessageKind string

const (
	MsgAssistant MessageKind = "assistant"
	MsgUser      MessageKind = "user"
	MsgSystem    MessageKind = "system"
	MsgResult    MessageKind = "result"
)

// Usage carries a Result message's authoritative token accounting.
type Usage struct {
	TotalTokens  int
	InputTokens  int
	OutputTokens int
}

// Message is the single envelope type yielded by an Agent Adapter's
// receive-response stream. Exactly the fields relevant to Kind are set.
type Message struct {
	Kind MessageKind

	// MsgAssistant
	Model   string
	Content []ContentBlock

	// MsgUser
	UserContent string

	// MsgSystem
	Subtype string
	Data    any

	// MsgResult
	Usage      Usage
	NumTurns   int
	DurationMs int64
	IsError    bool
	ErrorText  string
}

// Adapter is a stateful connection to a backend coding agent. Implementations
// must be safe for use by a single Task Executor at a time; the Session
// Manager guarantees at most one live connection per session.
type Adapter interface {
	// Connect establishes the underlying connection. May fail.
	Connect(ctx context.Context, workspace string, opts models.AgentOptions) error

	// Query sends a user prompt. Non-blocking: it does not wait for a response.
	Query(ctx context.Context, prompt string) error

	// ReceiveResponse returns a channel of messages terminated by a MsgResult
	// message, and an error channel that receives at most one error if the
	// stream itself fails (connection loss, protocol violation). Both
	// channels are closed when the stream ends.
	ReceiveResponse(ctx context.Context) (<-chan Message, <-chan error)

	// Interrupt is a best-effort request to stop the in-flight query. It does
	// not itself guarantee stream termination; callers rely on ReceiveResponse
	// observing the stream end.
	Interrupt(ctx context.Context) error

	// Disconnect idempotently tears down the connection.
	Disconnect(ctx context.Context) error
}
