package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/teaminfosharing/tis-server/internal/app"
	"github.com/teaminfosharing/tis-server/internal/auth"
	"github.com/teaminfosharing/tis-server/internal/config"
	"github.com/teaminfosharing/tis-server/internal/log"
	"github.com/teaminfosharing/tis-server/internal/store"
	"github.com/teaminfosharing/tis-server/internal/store/sqlite"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "tis-server",
		Short:         "Team info-sharing chat server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.New("info")
			cfg, path, err := config.Load(logger, configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger = log.New(cfg.LogLevel)
			logger.Info().Str("config", path).Str("addr", cfg.Addr).Msg("starting tis-server")

			application, err := app.New(&cfg, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := application.Run(ctx); err != nil {
				return fmt.Errorf("server exited: %w", err)
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	var adminUsername, adminPassword, adminDisplayName string
	createAdmin := &cobra.Command{
		Use:   "create-admin",
		Short: "Seed the admin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.New("info")
			cfg, _, err := config.Load(logger, configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.JWTSecret == "" {
				return fmt.Errorf("jwt_secret is required")
			}

			st, err := sqlite.New(cfg.DatabasePath)
			if err != nil {
				return fmt.Errorf("init store: %w", err)
			}
			defer st.Close()

			svc := auth.NewService(st, &auth.JWTConfig{
				Secret:   []byte(cfg.JWTSecret),
				Issuer:   cfg.JWTIssuer,
				Audience: cfg.JWTAudience,
				TTL:      cfg.TokenTTL,
			})

			user, err := svc.CreateUser(context.Background(), adminUsername, adminPassword, adminDisplayName, store.RoleAdmin, nil)
			if err != nil {
				return fmt.Errorf("create admin: %w", err)
			}

			logger.Info().Int64("user_id", user.ID).Str("username", user.Username).Msg("admin account created")
			return nil
		},
	}
	createAdmin.Flags().StringVar(&adminUsername, "username", "admin", "admin username")
	createAdmin.Flags().StringVar(&adminPassword, "password", "", "admin password")
	createAdmin.Flags().StringVar(&adminDisplayName, "display-name", "Admin", "admin display name")
	createAdmin.MarkFlagRequired("password")

	root.AddCommand(serve, createAdmin)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
