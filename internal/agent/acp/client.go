// Package acp wraps a JSON-RPC/ACP connection to a single containerized
// agent process: the initialize handshake, session/new, session/prompt,
// session/cancel, and the session/update notification stream, normalised
// into the agent.Message union the Task Executor consumes.
package acp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/relaycode/taskserver/internal/agent"
	"github.com/relaycode/taskserver/internal/common/logger"
	"github.com/relaycode/taskserver/pkg/acp/jsonrpc"
	"go.uber.org/zap"
)

// Client drives the ACP protocol for exactly one agent process.
type Client struct {
	rpc *jsonrpc.Client
	log *logger.Logger

	mu        sync.Mutex
	sessionID string

	messages chan agent.Message
	errs     chan error
	once     sync.Once
}

// NewClient wraps stdin/stdout pipes to an agent process's JSON-RPC channel.
func NewClient(stdin io.WriteCloser, stdout io.Reader, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Default()
	}
	c := &Client{
		rpc:      jsonrpc.NewClient(stdin, stdout, log),
		log:      log.WithFields(zap.String("component", "acp-client")),
		messages: make(chan agent.Message, 16),
		errs:     make(chan error, 1),
	}
	c.rpc.SetNotificationHandler(c.handleNotification)
	return c
}

// Start begins the JSON-RPC read loop and performs the initialize handshake.
func (c *Client) Start(ctx context.Context) error {
	c.rpc.Start(ctx)

	resp, err := c.rpc.Call(ctx, jsonrpc.MethodInitialize, jsonrpc.InitializeParams{
		ProtocolVersion: 1,
		ClientInfo:      jsonrpc.ClientInfo{Name: "taskserver", Version: "0.1.0"},
		Capabilities:    jsonrpc.ClientCapabilities{Streaming: true},
	})
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("initialize error: %s (code %d)", resp.Error.Message, resp.Error.Code)
	}
	return nil
}

// NewSession issues session/new for the given workspace and tuning options.
func (c *Client) NewSession(ctx context.Context, cwd string, maxTurns int, model string) error {
	resp, err := c.rpc.Call(ctx, jsonrpc.MethodSessionNew, jsonrpc.SessionNewParams{
		Cwd:        cwd,
		MaxTurns:   maxTurns,
		Model:      model,
		McpServers: []jsonrpc.McpServer{},
	})
	if err != nil {
		return fmt.Errorf("session/new: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("session/new error: %s", resp.Error.Message)
	}

	var result jsonrpc.SessionNewResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return fmt.Errorf("session/new result: %w", err)
	}

	c.mu.Lock()
	c.sessionID = result.SessionID
	c.mu.Unlock()
	return nil
}

// Prompt sends a user prompt via session/prompt. Non-blocking: updates arrive
// asynchronously as session/update notifications.
func (c *Client) Prompt(ctx context.Context, text string) error {
	c.mu.Lock()
	sessionID := c.sessionID
	c.mu.Unlock()

	resp, err := c.rpc.Call(ctx, jsonrpc.MethodSessionPrompt, jsonrpc.SessionPromptParams{
		SessionID: sessionID,
		Prompt:    []jsonrpc.ContentBlock{{Type: "text", Text: text}},
	})
	if err != nil {
		return fmt.Errorf("session/prompt: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("session/prompt error: %s", resp.Error.Message)
	}
	return nil
}

// Cancel sends session/cancel as a best-effort notification.
func (c *Client) Cancel(reason string) error {
	return c.rpc.Notify(jsonrpc.MethodSessionCancel, jsonrpc.SessionCancelParams{Reason: reason})
}

// Messages returns the normalised message stream and its error channel.
// Both close once a terminal result update has been delivered, or when
// Close is called.
func (c *Client) Messages() (<-chan agent.Message, <-chan error) {
	return c.messages, c.errs
}

// Close stops the JSON-RPC client and closes the output channels.
func (c *Client) Close() {
	c.once.Do(func() {
		c.rpc.Stop()
		close(c.messages)
		close(c.errs)
	})
}

func (c *Client) handleNotification(method string, params json.RawMessage) {
	if method != jsonrpc.NotificationSessionUpdate {
		c.log.Warn("unexpected notification", zap.String("method", method))
		return
	}

	var update jsonrpc.SessionUpdate
	if err := json.Unmarshal(params, &update); err != nil {
		c.errs <- fmt.Errorf("malformed session/update: %w", err)
		return
	}

	msg, terminal, err := decodeUpdate(update)
	if err != nil {
		c.errs <- err
		return
	}

	c.messages <- msg
	if terminal {
		c.Close()
	}
}

// decodeUpdate translates one ACP session/update payload into the Task
// Executor's agent.Message union.
func decodeUpdate(update jsonrpc.SessionUpdate) (agent.Message, bool, error) {
	switch update.Type {
	case jsonrpc.UpdateAssistantText:
		var p jsonrpc.UpdateAssistantTextPayload
		if err := json.Unmarshal(update.Data, &p); err != nil {
			return agent.Message{}, false, err
		}
		return agent.Message{
			Kind:    agent.MsgAssistant,
			Content: []agent.ContentBlock{{Kind: agent.BlockText, Text: p.Text}},
		}, false, nil

	case jsonrpc.UpdateThinking:
		var p jsonrpc.UpdateThinkingPayload
		if err := json.Unmarshal(update.Data, &p); err != nil {
			return agent.Message{}, false, err
		}
		return agent.Message{
			Kind:    agent.MsgAssistant,
			Content: []agent.ContentBlock{{Kind: agent.BlockThinking, Text: p.Text, Signature: p.Signature}},
		}, false, nil

	case jsonrpc.UpdateToolCall:
		var p jsonrpc.UpdateToolCallPayload
		if err := json.Unmarshal(update.Data, &p); err != nil {
			return agent.Message{}, false, err
		}
		return agent.Message{
			Kind: agent.MsgAssistant,
			Content: []agent.ContentBlock{{
				Kind: agent.BlockToolUse, ToolUseID: p.ToolCallID, ToolName: p.Name, ToolInput: p.Input,
			}},
		}, false, nil

	case jsonrpc.UpdateToolResult:
		var p jsonrpc.UpdateToolResultPayload
		if err := json.Unmarshal(update.Data, &p); err != nil {
			return agent.Message{}, false, err
		}
		return agent.Message{
			Kind: agent.MsgAssistant,
			Content: []agent.ContentBlock{{
				Kind: agent.BlockToolResult, ToolResultForID: p.ToolCallID, ResultContent: p.Content, IsError: p.IsError,
			}},
		}, false, nil

	case jsonrpc.UpdateUserMessage:
		var p jsonrpc.UpdateUserMessagePayload
		if err := json.Unmarshal(update.Data, &p); err != nil {
			return agent.Message{}, false, err
		}
		return agent.Message{Kind: agent.MsgUser, UserContent: p.Content}, false, nil

	case jsonrpc.UpdateSystemMessage:
		var p jsonrpc.UpdateSystemMessagePayload
		if err := json.Unmarshal(update.Data, &p); err != nil {
			return agent.Message{}, false, err
		}
		var data any
		_ = json.Unmarshal(p.Data, &data)
		return agent.Message{Kind: agent.MsgSystem, Subtype: p.Subtype, Data: data}, false, nil

	case jsonrpc.UpdateResult:
		var p jsonrpc.UpdateResultPayload
		if err := json.Unmarshal(update.Data, &p); err != nil {
			return agent.Message{}, false, err
		}
		return agent.Message{
			Kind: agent.MsgResult,
			Usage: agent.Usage{
				TotalTokens:  p.TotalTokens,
				InputTokens:  p.InputTokens,
				OutputTokens: p.OutputTokens,
			},
			NumTurns:   p.NumTurns,
			DurationMs: p.DurationMs,
			IsError:    p.IsError,
			ErrorText:  p.ErrorText,
		}, true, nil

	default:
		return agent.Message{}, false, fmt.Errorf("unknown session/update type %q", update.Type)
	}
}
