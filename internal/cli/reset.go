package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/crewguard/internal/control"
)

var resetCmd = &cobra.Command{
	Use:   "reset-failures",
	Short: "Reset the consecutive failure count that drives the adaptive delay",
	Args:  cobra.NoArgs,
	Run:   runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) {
	cfg := loadConfig(cmd)
	if err := checkResettable(cfg.State.Backend); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	// The provider is never called here.
	cfg.LLM.Provider = "scripted"

	app, err := control.New(cfg)
	if err != nil {
		slog.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	defer func() {
		_ = app.Stop(ctx)
	}()

	before := app.Controller().ConsecutiveFailures(ctx)
	if err := app.ResetFailures(ctx); err != nil {
		slog.Error("Failed to reset failure counter", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Reset consecutive failures from %d to 0\n", before)
}

// checkResettable reports whether backend holds a count outliving a run.
func checkResettable(backend string) error {
	if backend == "redis" {
		return nil
	}
	return fmt.Errorf("nothing to reset: the %s backend keeps the failure count inside each run process; "+
		"reset-failures only applies to state.backend: redis", backend)
}
