package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dharsanguruparan/esubmit/internal/app"
	"github.com/dharsanguruparan/esubmit/internal/config"
	"github.com/dharsanguruparan/esubmit/internal/database"
	"github.com/dharsanguruparan/esubmit/internal/logging"
	"github.com/dharsanguruparan/esubmit/internal/model"
	"github.com/dharsanguruparan/esubmit/internal/service"
	"github.com/dharsanguruparan/esubmit/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "esubmit: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "esubmit",
		Short: "e-submission administration CLI",
		Long: `esubmit manages the e-submission backend: migrating the SQL schema, seeding the
sample form, creating admin accounts and inspecting the JSON file store.
Settings come from ESUBMIT_CONFIG and ESUBMIT_* environment variables.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newMigrateCmd(),
		newSeedCmd(),
		newCreateAdminCmd(),
		newStoreCmd(),
	)
	return cmd
}

// withApp loads configuration and opens the application for one command.
func withApp(ctx context.Context, fn func(*app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the SQL schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.Database.DSN == "" {
				return errors.New("ESUBMIT_DATABASE_URL is not set")
			}
			db, err := database.Connect(cmd.Context(), cfg.Database.DSN, database.Options{
				ConnectTimeout:   cfg.Database.ConnectTimeout,
				StatementTimeout: cfg.Database.StatementTimeout,
			})
			if err != nil {
				return err
			}
			defer database.Close(db)
			if err := database.EnsureSchema(cmd.Context(), db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Install the sample licence application form",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				created, err := a.Services.Forms.SeedSample(cmd.Context())
				if err != nil {
					return err
				}
				if created {
					fmt.Fprintf(cmd.OutOrStdout(), "created form %s\n", service.SampleFormID)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "form %s already exists\n", service.SampleFormID)
				}
				return nil
			})
		},
	}
}

func newCreateAdminCmd() *cobra.Command {
	var reg service.Registration
	var role string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				prof, err := a.Services.Accounts.BootstrapAdmin(cmd.Context(), reg, model.Role(role))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %s %s (%s)\n", prof.Role, prof.Email, prof.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reg.Email, "email", "", "Admin email address")
	cmd.Flags().StringVar(&reg.Password, "password", "", "Initial password")
	cmd.Flags().StringVar(&reg.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&role, "role", string(model.RoleSuperAdmin), "admin or superAdmin")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newStoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Inspect the JSON file store",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "inspect [collection...]",
		Short: "Show the files, size and shard count of each collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			names := args
			if len(names) == 0 {
				names = store.Collections
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				defer enc.Close()
				for _, name := range names {
					layout, err := a.JSON.Describe(cmd.Context(), name)
					if err != nil {
						return err
					}
					if err := enc.Encode(layout); err != nil {
						return err
					}
				}
				return nil
			})
		},
	})
	return cmd
}
