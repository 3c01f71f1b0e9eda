package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/vietddude/crewguard/internal/core/config"
)

func TestPrintPolicies(t *testing.T) {
	var buf bytes.Buffer
	printPolicies(&buf, config.Default().Retry)
	out := buf.String()

	for _, want := range []string{
		"agent", "agent-other", "crew-other", "quota",
		"5s 10s",
		"1m0s 1m30s 2m0s",
		"20s 40s 1m20s",
		"FAILURES",
		"1m36s",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "adaptive   exponential") {
		t.Error("adaptive policy listed with the retry policies")
	}
}
