package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/agrisight/agrisight/internal/app"
	"github.com/agrisight/agrisight/internal/config"
	"github.com/agrisight/agrisight/internal/transport"
)

// consoleUserID identifies the single local console user.
const consoleUserID = 1

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start an interactive console session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConsole(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// runConsole boots the application and serves a console conversation until
// EOF or an interrupt.
func runConsole(ctx context.Context) error {
	// Best effort: a missing .env is the normal case in production.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	a, err := app.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("setting up application: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "closing application: %v\n", err)
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	name := os.Getenv("USER")
	if name == "" {
		name = "farmer"
	}
	console := transport.NewConsole(consoleUserID, name)
	defer func() { _ = console.Close() }()

	fmt.Println("AgriSight console. Type /start to set up, Ctrl+D to quit.")
	if err := a.Run(ctx, console); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
