package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/councilkit/auditstream"
)

var statusWait time.Duration

func init() {
	statusCmd.Flags().DurationVar(&statusWait, "wait", 5*time.Second, "how long to wait for a connection")
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check stream connectivity",
	Long:  "Connect to the audit stream briefly and print the connection status.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		client := buildClient(cfg)
		defer client.Destroy()

		waitForConnection(client, statusWait)

		status := client.Status()
		out, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

// waitForConnection polls until the client connects or the timeout passes.
func waitForConnection(client *auditstream.Client, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if client.Status().Connected {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return client.Status().Connected
}
