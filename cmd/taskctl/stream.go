package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var streamCmd = &cobra.Command{
	Use:   "stream <task-id>",
	Short: "Stream a task's events until it completes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return streamTask(args[0])
	},
}

func streamTask(taskID string) error {
	wsURL := strings.Replace(serverURL, "http", "ws", 1) + "/ws/tasks/" + taskID

	header := map[string][]string{}
	if bearerToken != "" {
		header["Authorization"] = []string{"Bearer " + bearerToken}
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		return fmt.Errorf("failed to connect to stream: %w", err)
	}
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil
		}

		var event map[string]any
		if err := json.Unmarshal(data, &event); err != nil {
			fmt.Println(string(data))
			continue
		}
		printEvent(event)

		if event["type"] == "COMPLETE" {
			return nil
		}
	}
}

func printEvent(event map[string]any) {
	switch event["type"] {
	case "MESSAGE":
		fmt.Printf("[%v] %v\n", event["message_kind"], event["text"])
	case "TOOL_USE":
		fmt.Printf("tool: %v\n", event["tool_name"])
	case "TOOL_RESULT":
		status := "ok"
		if isErr, _ := event["is_error"].(bool); isErr {
			status = "error"
		}
		fmt.Printf("tool result (%s): %v\n", status, event["content"])
	case "PROGRESS":
		progress, _ := event["progress"].(map[string]any)
		fmt.Printf("progress: turns=%v tokens=%v files=%v\n", progress["turns"], progress["tokens_used"], progress["files_modified"])
	case "COMPLETE":
		result, _ := event["result"].(map[string]any)
		fmt.Printf("complete: %v (exit_code=%v)\n", result["summary"], result["exit_code"])
	case "ERROR":
		fmt.Printf("error: %v\n", event["message"])
	default:
		fmt.Printf("%v\n", event)
	}
}
