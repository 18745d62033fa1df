package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	var sessionID string
	chatCmd := &cobra.Command{
		Use:   "chat MESSAGE...",
		Short: "Send a chat message to the assistant",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if sessionID == "" {
				return fmt.Errorf("--session required")
			}
			payload := map[string]interface{}{
				"sessionId": sessionID,
				"message":   strings.Join(args, " "),
			}
			data, err := doPostJSON(fmt.Sprintf("%s/api/chat", apiFlag), payload)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	chatCmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session ID (required)")
	_ = chatCmd.MarkFlagRequired("session")
	rootCmd.AddCommand(chatCmd)
}
