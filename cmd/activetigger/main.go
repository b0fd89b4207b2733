// Command activetigger is the CLI entrypoint: a cobra root command with a
// serve subcommand, grounded on the teacher's cmd/tarsy/main.go bootstrap
// sequence (load .env, load config, connect to Postgres, start the HTTP
// server) and on dotcommander-vybe's cobra command layout.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/AXLMRIN/activetigger-go/pkg/api"
	"github.com/AXLMRIN/activetigger-go/pkg/auth"
	"github.com/AXLMRIN/activetigger-go/pkg/config"
	"github.com/AXLMRIN/activetigger-go/pkg/models"
	"github.com/AXLMRIN/activetigger-go/pkg/orchestrator"
	"github.com/AXLMRIN/activetigger-go/pkg/queue"
	"github.com/AXLMRIN/activetigger-go/pkg/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("activetigger exited with error", "err", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var envPath string

	root := &cobra.Command{
		Use:   "activetigger",
		Short: "Run the activetigger annotation server",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&envPath, "env-file", ".env", "path to a .env file")

	root.AddCommand(newServeCmd(&configPath, &envPath))
	return root
}

func newServeCmd(configPath, envPath *string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath, *envPath, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "HTTP listen address")
	return cmd
}

func runServe(ctx context.Context, configPath, envPath, addr string) error {
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("could not load .env file, continuing with process environment", "path", envPath, "err", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()
	slog.Info("connected to database")

	if err := ensureRootUser(ctx, db); err != nil {
		return fmt.Errorf("provisioning root account: %w", err)
	}

	pool := queue.New(queue.Config{
		NWorkersCPU: cfg.Queue.NWorkersCPU, NWorkersGPU: cfg.Queue.NWorkersGPU,
		UpdateTimeout: cfg.Queue.UpdateTimeout,
	}, db.Tasks)
	defer pool.Stop()

	orch := orchestrator.New(db, pool, cfg.DataPath, cfg.MaxLoadedProjects, nil, nil)

	srv := api.New(db, orch)
	slog.Info("HTTP server listening", "addr", addr)
	return srv.Run(addr)
}

// ensureRootUser prompts for a root password on first boot, when no user
// named "root" exists yet (spec.md §6 CLI "first-boot root password
// prompt"). Masked input uses x/term, matching the indirect dependency
// already pulled into the example corpus by a terminal-facing CLI
// (fentz26-Neona) rather than hand-rolling terminal raw-mode toggling.
//
// The root pseudo-role is not recorded as a per-project grant — it is
// project-independent, unlike AuthManager/AuthAnnotator, whose grants are
// scoped to one project_slug — so holding the "root" user name alone is
// what pkg/auth and the HTTP layer treat as the operator account.
func ensureRootUser(ctx context.Context, db *store.Store) error {
	if _, err := db.Users.Get(ctx, "root"); err == nil {
		return nil
	}

	password, err := promptRootPassword()
	if err != nil {
		return err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	return db.Users.Add(ctx, &models.User{Name: "root", PasswordHash: hash, CreatedBy: "cli"})
}
