package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/domain"
	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/ports"
	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/service"
	"github.com/faisalazhar1701/destinycreditai-sub000/internal/pkg/config"
)

func newCreateAdminCommand() *cobra.Command {
	var (
		email    string
		name     string
		username string
		password string
	)

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an ACTIVE administrator in the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(ctx)
			if err != nil {
				return err
			}
			if cfg.Store.Driver == "memory" {
				return fmt.Errorf("create-admin needs a persistent STORE_DRIVER")
			}
			log := initLogger(cfg)

			store, closeStore, err := openStore(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer closeStore(ctx)

			hasher := service.NewPasswordHasher(cfg.Security.BcryptCost)
			tokens := service.NewTokenIssuer(store, hasher, cfg.Tokens.InviteTTL, cfg.Tokens.ResetTTL)
			admin := service.NewAdminService(store, tokens, hasher, nil, service.Links{BaseURL: cfg.AppBaseURL}, log)

			res, err := admin.CreateUser(ctx, ports.CreateUserInput{
				Email:    email,
				Name:     name,
				Username: username,
				Password: password,
				Role:     domain.RoleAdmin,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created administrator %s (%s)\n", res.Identity.Email, res.Identity.ID)
			if res.GeneratedPassword != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "generated password: %s\n", res.GeneratedPassword)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Administrator email")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&username, "username", "", "Optional username (must not contain '@')")
	cmd.Flags().StringVar(&password, "password", "", "Password; generated when omitted")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
