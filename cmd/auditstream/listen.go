package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/councilkit/auditstream"
)

var listenType string

func init() {
	listenCmd.Flags().StringVarP(&listenType, "type", "t", "", "only print notifications of this kind (e.g. audit_completed)")
	rootCmd.AddCommand(listenCmd)
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Stream notifications to stdout",
	Long:  "Connect to the audit stream and print each notification as a JSON line.\nReconnects automatically; stop with Ctrl-C.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		client := buildClient(cfg)
		defer client.Destroy()

		printNotification := func(n auditstream.Notification) {
			line, err := json.Marshal(n)
			if err != nil {
				return
			}
			fmt.Println(string(line))
		}

		if listenType != "" {
			client.Subscribe(auditstream.NotificationType(listenType), printNotification)
		} else {
			client.OnMessage(printNotification)
		}
		client.OnConnection(func(connected bool) {
			if connected {
				fmt.Fprintln(os.Stderr, "connected")
			} else {
				fmt.Fprintln(os.Stderr, "disconnected")
			}
		})
		client.OnError(func(err error) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()

		fmt.Fprintln(os.Stderr, "shutting down")
		return nil
	},
}
