package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"appeals/internal/platform/middleware"
	id "appeals/pkg/domain"
)

// tokenCommand issues a member token signed with the configured key, for
// local testing against serve.
func tokenCommand() *cobra.Command {
	var (
		member string
		name   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a member token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := commonRun()
			if err != nil {
				return err
			}
			memberID, err := id.ParseMemberID(member)
			if err != nil {
				return err
			}
			token, err := middleware.NewMemberTokens(cfg.JWTSigningKey, tokenIssuer, tokenAudience).
				Issue(memberID, name, time.Now(), ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&member, "member", "", "member id (uuid)")
	cmd.Flags().StringVar(&name, "name", "", "member display name")
	cmd.Flags().DurationVar(&ttl, "ttl", 8*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("member")
	return cmd
}
