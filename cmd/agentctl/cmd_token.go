package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	domainauth "agentforge/chat-api/internal/domain/auth"
	"agentforge/chat-api/internal/infrastructure/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Sign a development token with the server's shared secret",
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().String("secret", os.Getenv("AUTH_HMAC_SECRET"), "Shared HMAC secret")
	tokenCmd.Flags().String("user", "dev-user", "Subject user id")
	tokenCmd.Flags().String("email", "", "Email claim")
	tokenCmd.Flags().String("tier", domainauth.TierFree, "Entitlement tier")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
}

func runToken(cmd *cobra.Command, args []string) error {
	secret, _ := cmd.Flags().GetString("secret")
	if secret == "" {
		return fmt.Errorf("--secret or AUTH_HMAC_SECRET is required")
	}
	user, _ := cmd.Flags().GetString("user")
	email, _ := cmd.Flags().GetString("email")
	tier, _ := cmd.Flags().GetString("tier")
	ttl, _ := cmd.Flags().GetDuration("ttl")

	token, err := auth.IssueHMAC(secret, user, email, tier, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
