package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/vietddude/crewguard/internal/core/retry"
	"github.com/vietddude/crewguard/internal/pipeline"
)

// Guidance turns a run error into a message the user can act on.
func Guidance(err error) string {
	var exhausted *retry.ExhaustedError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Run cancelled."
	case errors.Is(err, pipeline.ErrNoInstructions):
		return "No instructions given. Pass --instructions or --instructions-file."
	case errors.As(err, &exhausted) && exhausted.Class == retry.TransientRateLimit:
		return fmt.Sprintf("Rate limit exceeded after %d attempts (%s policy).\n"+
			"The API quota is still exhausted. Wait a few minutes and run again, "+
			"lower llm.budget.max_rpm, or raise retry.%s.max_attempts.",
			exhausted.Attempts, exhausted.Policy, exhausted.Policy)
	case errors.As(err, &exhausted):
		return fmt.Sprintf("Maximum retries exceeded after %d attempts (%s policy): %v\n"+
			"Check network connectivity and the API endpoint, then run again.",
			exhausted.Attempts, exhausted.Policy, exhausted.LastErr)
	case errors.Is(err, retry.ErrInvalidPolicy):
		return fmt.Sprintf("Invalid retry configuration: %v", err)
	case retry.DefaultClassifier(err) == retry.Fatal:
		return fmt.Sprintf("Unrecoverable error: %v\n"+
			"Check GOOGLE_API_KEY and the llm section of the config.", err)
	default:
		return fmt.Sprintf("Run failed: %v", err)
	}
}
