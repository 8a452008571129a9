package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var sendWait time.Duration

func init() {
	sendCmd.Flags().DurationVar(&sendWait, "wait", 10*time.Second, "how long to wait for a connection before queueing")
	rootCmd.AddCommand(sendCmd)
}

var sendCmd = &cobra.Command{
	Use:   "send <json>",
	Short: "Send one message to the stream",
	Long:  "Connect to the audit stream and send a single JSON payload.\nA client-generated id is added when the payload has none.\nExample: auditstream send '{\"type\":\"status_update\",\"message\":\"deploy finished\"}'",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var payload map[string]any
		if err := json.Unmarshal([]byte(args[0]), &payload); err != nil {
			return fmt.Errorf("payload is not a JSON object: %w", err)
		}
		if _, ok := payload["id"]; !ok {
			payload["id"] = uuid.NewString()
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		client := buildClient(cfg)
		defer client.Destroy()

		waitForConnection(client, sendWait)

		if client.Send(payload) {
			fmt.Printf("sent (id=%v)\n", payload["id"])
		} else {
			fmt.Printf("queued (id=%v, not connected)\n", payload["id"])
		}
		return nil
	},
}
