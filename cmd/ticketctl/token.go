package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ms-ticket-lifecycle/internal/auth"
	"ms-ticket-lifecycle/internal/config"
)

func newTokenCommand() *cobra.Command {
	var (
		userID string
		role   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an HS256 bearer token for local testing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := auth.ParseRole(role)
			if err != nil {
				return err
			}
			cfg := config.Load()
			if ttl == 0 {
				ttl = cfg.Auth.TokenTTL
			}
			tok, err := auth.IssueToken([]byte(cfg.Auth.JWTSecret), userID, parsed, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "id", "", "Caller id placed in the token (required)")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleOrganizer), "organizer, buyer or marketplace")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (defaults to JWT_TTL)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
