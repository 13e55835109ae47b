package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <task-id>",
	Short: "Show a task's current status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var result map[string]any
		if err := newAPIClient().do("GET", "/api/v1/tasks/"+args[0], nil, &result); err != nil {
			return err
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return nil
	},
}

var interruptCmd = &cobra.Command{
	Use:   "interrupt <task-id>",
	Short: "Interrupt a running task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var result map[string]any
		if err := newAPIClient().do("POST", "/api/v1/tasks/"+args[0]+"/interrupt", nil, &result); err != nil {
			return err
		}
		fmt.Printf("task %s interrupted\n", args[0])
		return nil
	},
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List live sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var result map[string]any
		if err := newAPIClient().do("GET", "/api/v1/sessions", nil, &result); err != nil {
			return err
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return nil
	},
}
