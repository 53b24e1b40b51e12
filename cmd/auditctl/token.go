package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	jwttoken "audittrail/internal/jwt_token"
	"audittrail/internal/platform/config"
)

func tokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a short-lived bearer token",
		Long: `Sign a bearer token with JWT_SIGNING_KEY for calling the audit API.

Examples:
  auditctl token --user ops-1 --role AUDITOR
  auditctl token --user crm-backend --role SERVICE --ttl 1h`,
		RunE:         runToken,
		SilenceUsage: true,
	}

	cmd.Flags().String("user", "", "User ID placed in the token")
	cmd.Flags().String("name", "", "Display name (defaults to the user ID)")
	cmd.Flags().String("role", "AUDITOR", "Role claim")
	cmd.Flags().Duration("ttl", 15*time.Minute, "Token lifetime")

	return cmd
}

func runToken(cmd *cobra.Command, args []string) error {
	user, _ := cmd.Flags().GetString("user")
	user = strings.TrimSpace(user)
	if user == "" {
		return fmt.Errorf("--user is required")
	}
	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		name = user
	}
	role, _ := cmd.Flags().GetString("role")
	role = strings.ToUpper(strings.TrimSpace(role))
	if role == "" {
		return fmt.Errorf("--role is required")
	}
	ttl, _ := cmd.Flags().GetDuration("ttl")
	if ttl <= 0 {
		return fmt.Errorf("--ttl must be positive")
	}

	cfg := config.FromEnv().Server
	svc := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
	token, err := svc.GenerateAccessToken(user, name, role, "cli-"+uuid.NewString(), ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
