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
	"github.com/vietddude/crewguard/internal/pipeline"
)

// snakeInstructions is the short example used for training batches.
const snakeInstructions = `Build a classic Snake game in Python using pygame.
The snake moves on a grid and grows each time it eats food placed at a random free cell.
The game ends when the snake hits a wall or itself. Show the score and allow restarting with R.`

var (
	trainIterations   int
	trainReportPath   string
	trainInstructions string
	trainPause        time.Duration
	trainQuotaPause   time.Duration
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Run the pipeline repeatedly and save a JSON success report",
	Args:  cobra.NoArgs,
	Run:   runTrain,
}

func init() {
	trainCmd.Flags().IntVarP(&trainIterations, "iterations", "n", 1, "number of runs")
	trainCmd.Flags().StringVarP(&trainReportPath, "out", "o", "training.json", "report file")
	trainCmd.Flags().StringVarP(&trainInstructions, "instructions", "i", snakeInstructions, "instructions for every run")
	trainCmd.Flags().DurationVar(&trainPause, "pause", 30*time.Second, "pause between runs")
	trainCmd.Flags().DurationVar(&trainQuotaPause, "quota-pause", 2*time.Minute, "pause after a rate limited run")
	trainCmd.Flags().BoolVar(&dryRun, "dry-run", false, "use the scripted provider instead of the API")
	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, args []string) {
	cfg := loadConfig(cmd)
	if dryRun {
		cfg.LLM.Provider = "scripted"
	}

	estimated := trainIterations * len(cfg.Pipeline.Steps)
	slog.Warn("Training uses significant API quota", "iterations", trainIterations, "estimated_calls", estimated)

	app, err := control.New(cfg)
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

	report, trainErr := app.Train(ctx, pipeline.TrainConfig{
		Iterations:   trainIterations,
		Instructions: trainInstructions,
		Pause:        trainPause,
		QuotaPause:   trainQuotaPause,
	})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.Stop(shutdownCtx); err != nil {
		slog.Warn("Error during shutdown", "error", err)
	}

	if report == nil {
		fmt.Fprintln(os.Stderr, Guidance(trainErr))
		os.Exit(1)
	}
	if err := pipeline.WriteReport(trainReportPath, report); err != nil {
		slog.Error("Failed to save training report", "path", trainReportPath, "error", err)
		os.Exit(1)
	}

	fmt.Printf("Successful runs: %d/%d (%.1f%%)\n", report.SuccessfulRuns, report.TotalIterations, report.SuccessRate)
	fmt.Printf("Report saved to %s\n", trainReportPath)
	if trainErr != nil {
		fmt.Fprintln(os.Stderr, Guidance(trainErr))
		os.Exit(1)
	}
}
