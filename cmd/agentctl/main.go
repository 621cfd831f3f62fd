package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"agentforge/chat-api/pkg/chatclient"
)

var version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "agentctl",
	Short: "Command-line client for the chat API",
	Long: `agentctl talks to a running chat API server.

Examples:
  agentctl token --secret dev-secret --user alice
  agentctl chat "write a haiku about go"
  agentctl chat --chat 1b9d... "and another one"
  agentctl models --select fast
  agentctl documents diff <document-id> --version 2`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(documentsCmd)
	rootCmd.AddCommand(tokenCmd)

	rootCmd.PersistentFlags().String("server", envOr("AGENTCTL_SERVER", "http://localhost:8090"), "Chat API base URL")
	rootCmd.PersistentFlags().String("token", os.Getenv("AGENTCTL_TOKEN"), "Bearer token")
	rootCmd.PersistentFlags().Duration("timeout", 30*time.Second, "Timeout for non-streaming requests")
}

func newClient(cmd *cobra.Command) *chatclient.Client {
	server, _ := cmd.Flags().GetString("server")
	token, _ := cmd.Flags().GetString("token")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	return chatclient.New(server, token, timeout)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
