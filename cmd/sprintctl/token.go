package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"sprintmail/pkg/rbac"
	"sprintmail/pkg/util"
)

func tokenCmd() *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !rbac.IsValidRole(role) {
				return fmt.Errorf("unknown role %q (want %s or %s)", role, rbac.RoleUser, rbac.RoleOperator)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			token, err := util.GenerateJWT(subject, role, cfg.JWT.Secret, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject")
	cmd.Flags().StringVar(&role, "role", rbac.RoleUser, "user or operator")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
