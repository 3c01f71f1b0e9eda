package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/crewguard/internal/core/config"
	"github.com/vietddude/crewguard/internal/core/retry"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Show retry policies, their wait schedules and the adaptive delay table",
	Run:   runPolicy,
}

func init() {
	rootCmd.AddCommand(policyCmd)
}

func runPolicy(cmd *cobra.Command, args []string) {
	cfg := loadConfig(cmd)
	printPolicies(os.Stdout, cfg.Retry)
}

func printPolicies(out io.Writer, rc config.RetryConfig) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "POLICY\tMODE\tATTEMPTS\tWAITS\tTOTAL")
	for _, p := range []retry.Policy{rc.Agent, rc.AgentOther, rc.Crew, rc.Other, rc.Quota} {
		schedule := p.Schedule()
		var total time.Duration
		waits := make([]string, 0, len(schedule))
		for _, d := range schedule {
			total += d
			waits = append(waits, d.String())
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", p.Name, mode(p), p.MaxAttempts, strings.Join(waits, " "), total)
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(out, "\nAdaptive delay (%s), step delay floor %s\n", rc.Adaptive.Name, rc.StepDelay)
	w = tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "FAILURES\tDELAY\tBETWEEN STEPS")
	for n := 0; n <= 6; n++ {
		d := rc.Adaptive.AdaptiveDelay(n)
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\n", n, d, max(d, rc.StepDelay))
	}
	_ = w.Flush()
}

func mode(p retry.Policy) retry.Mode {
	if p.Mode == "" {
		return retry.ModeLinear
	}
	return p.Mode
}
