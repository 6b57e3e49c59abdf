// Package main mints bearer tokens for local development. Tokens are signed
// with JWT_SIGNING_KEY from the environment (or .env), falling back to the dev key.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"healthconsent/internal/identity"
	jwttoken "healthconsent/internal/jwt_token"
	"healthconsent/internal/platform/config"
)

type tokenOutput struct {
	Token      string `json:"token"`
	Type       string `json:"type"`
	Subject    string `json:"sub"`
	Role       string `json:"role"`
	FacilityID string `json:"facility_id,omitempty"`
	ExpiresIn  string `json:"expires_in"`
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		envFile    string
		ttl        time.Duration
		jsonOutput bool
	)

	root := &cobra.Command{
		Use:          "tokengen",
		Short:        "Generate development bearer tokens for the healthconsent API",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional .env file read before the environment")
	root.PersistentFlags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default TOKEN_TTL)")
	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print the token as JSON")

	issue := func(cmd *cobra.Command, subject string, role identity.Role, facility string) error {
		p, err := identity.NewPrincipal(subject, role.String(), facility)
		if err != nil {
			return err
		}
		cfg, err := config.Load(envFile)
		if err != nil {
			return err
		}
		if ttl <= 0 {
			ttl = cfg.Auth.TokenTTL
		}
		token, err := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, ttl).IssueToken(context.Background(), p)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if !jsonOutput {
			_, err = fmt.Fprintln(out, token)
			return err
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(tokenOutput{
			Token:      token,
			Type:       "Bearer",
			Subject:    p.Subject.String(),
			Role:       p.Role.String(),
			FacilityID: p.FacilityID.String(),
			ExpiresIn:  ttl.String(),
		})
	}

	var patientID string
	patientCmd := &cobra.Command{
		Use:   "patient",
		Short: "Token for a patient (grant, revoke, own history)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return issue(cmd, patientID, identity.RolePatient, "")
		},
	}
	patientCmd.Flags().StringVar(&patientID, "patient-id", "PAT-000001", "Patient id used as token subject")

	var workerID, facilityID string
	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Token for a healthcare worker of one facility",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return issue(cmd, workerID, identity.RoleWorker, facilityID)
		},
	}
	workerCmd.Flags().StringVar(&workerID, "worker-id", "WRK-000001", "Worker id used as token subject")
	workerCmd.Flags().StringVar(&facilityID, "facility-id", "FAC-000001", "Facility the worker belongs to")

	var adminID string
	adminCmd := &cobra.Command{
		Use:   "admin",
		Short: "Token for an administrator",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return issue(cmd, adminID, identity.RoleAdmin, "")
		},
	}
	adminCmd.Flags().StringVar(&adminID, "admin-id", "ADM-000001", "Admin id used as token subject")

	root.AddCommand(patientCmd, workerCmd, adminCmd)
	return root
}
