package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/crewguard/internal/control"
)

var (
	instructions     string
	instructionsFile string
	outPath          string
	dryRun           bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the agent pipeline for the given instructions",
	Run:   runPipeline,
}

func init() {
	runCmd.Flags().StringVarP(&instructions, "instructions", "i", "", "instructions for the crew")
	runCmd.Flags().StringVarP(&instructionsFile, "instructions-file", "f", "", "read instructions from a file")
	runCmd.Flags().StringVarP(&outPath, "out", "o", "", "write the final output to this file")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "use the scripted provider instead of the API")
	rootCmd.AddCommand(runCmd)
}

func runPipeline(cmd *cobra.Command, args []string) {
	cfg := loadConfig(cmd)

	text := instructions
	if instructionsFile != "" {
		data, err := os.ReadFile(instructionsFile)
		if err != nil {
			slog.Error("Failed to read instructions", "file", instructionsFile, "error", err)
			os.Exit(1)
		}
		text = string(data)
	}
	if dryRun {
		cfg.LLM.Provider = "scripted"
	}

	app, err := control.New(cfg, control.WithOutput(outPath))
	if err != nil {
		slog.Error("Failed to initialize", "error", err)
		fmt.Fprintln(os.Stderr, Guidance(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Start(ctx); err != nil {
		slog.Error("Failed to start", "error", err)
		os.Exit(1)
	}

	run, runErr := app.Run(ctx, text)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.Stop(shutdownCtx); err != nil {
		slog.Warn("Error during shutdown", "error", err)
	}

	if runErr != nil {
		fmt.Fprintln(os.Stderr, Guidance(runErr))
		os.Exit(1)
	}

	fmt.Printf("Run %s finished in %s after %d attempt(s)\n", run.ID, run.Duration().Round(time.Second), run.Attempts)
	if outPath == "" && cfg.Pipeline.Output == "" {
		fmt.Println(run.Output)
	}
}
