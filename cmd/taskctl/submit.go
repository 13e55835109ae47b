package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

type submitRequest struct {
	TaskID    string            `json:"task_id"`
	Prompt    string            `json:"prompt"`
	Workspace string            `json:"workspace"`
	Options   submitOptions     `json:"options,omitempty"`
	Session   *submitSessionReq `json:"session,omitempty"`
}

type submitOptions struct {
	AllowedTools   []string `json:"allowed_tools,omitempty"`
	PermissionMode string   `json:"permission_mode,omitempty"`
	MaxTurns       int      `json:"max_turns,omitempty"`
	Model          string   `json:"model,omitempty"`
}

type submitSessionReq struct {
	SessionID     string `json:"session_id,omitempty"`
	ReuseExisting bool   `json:"reuse_existing"`
}

type submitResult struct {
	TaskID    string `json:"task_id"`
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	StreamURL string `json:"stream_url"`
	CreatedAt string `json:"created_at"`
}

var (
	submitWorkspace    string
	submitAllowedTools string
	submitPermMode     string
	submitMaxTurns     int
	submitModel        string
	submitSessionID    string
	submitReuse        bool
	submitFollow       bool
)

var submitCmd = &cobra.Command{
	Use:   "submit <task-id> <prompt>",
	Short: "Submit a task",
	Args:  cobra.ExactArgs(2),
	RunE:  runSubmit,
}

func init() {
	submitCmd.Flags().StringVarP(&submitWorkspace, "workspace", "w", ".", "workspace directory for the agent")
	submitCmd.Flags().StringVar(&submitAllowedTools, "allowed-tools", "", "comma-separated list of tools the agent may use")
	submitCmd.Flags().StringVar(&submitPermMode, "permission-mode", "", "agent permission mode")
	submitCmd.Flags().IntVar(&submitMaxTurns, "max-turns", 0, "maximum conversation turns")
	submitCmd.Flags().StringVar(&submitModel, "model", "", "model override")
	submitCmd.Flags().StringVar(&submitSessionID, "session-id", "", "reuse an existing session by id")
	submitCmd.Flags().BoolVar(&submitReuse, "reuse", false, "reuse the session named by --session-id instead of creating one")
	submitCmd.Flags().BoolVarP(&submitFollow, "follow", "f", false, "stream the task's events after submitting")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	req := submitRequest{
		TaskID:    args[0],
		Prompt:    args[1],
		Workspace: submitWorkspace,
		Options: submitOptions{
			PermissionMode: submitPermMode,
			MaxTurns:       submitMaxTurns,
			Model:          submitModel,
		},
	}
	if submitAllowedTools != "" {
		req.Options.AllowedTools = strings.Split(submitAllowedTools, ",")
	}
	if submitSessionID != "" {
		req.Session = &submitSessionReq{SessionID: submitSessionID, ReuseExisting: submitReuse}
	}

	var result submitResult
	if err := newAPIClient().do("POST", "/api/v1/tasks", req, &result); err != nil {
		return err
	}

	fmt.Printf("task submitted: %s (session=%s, status=%s)\n", result.TaskID, result.SessionID, result.Status)
	fmt.Printf("stream: %s\n", result.StreamURL)

	if submitFollow {
		return streamTask(result.TaskID)
	}
	return nil
}
