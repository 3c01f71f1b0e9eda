package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/crewguard/internal/core/retry"
	llmclient "github.com/vietddude/crewguard/internal/infra/llm"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, applies defaults and validates the
// retry policies.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	for _, p := range cfg.Retry.Policies() {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("retry.%s: %w", p.Name, err)
		}
	}
	switch cfg.Logging.Format {
	case "text", "json":
	default:
		return nil, fmt.Errorf("unknown logging format %q", cfg.Logging.Format)
	}
	switch cfg.State.Backend {
	case "memory", "redis":
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.State.Backend)
	}
	switch cfg.LLM.Provider {
	case "gemini", "scripted":
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}

	return &cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *AppConfig {
	var cfg AppConfig
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}

	llm := &cfg.LLM
	if llm.Provider == "" {
		llm.Provider = "gemini"
	}
	if llm.Endpoint == "" {
		llm.Endpoint = llmclient.DefaultGeminiEndpoint
	}
	if llm.Model == "" {
		llm.Model = "gemini-2.0-flash"
	}
	if llm.Temperature == 0 {
		llm.Temperature = 0.7
	}
	if llm.MaxTokens == 0 {
		llm.MaxTokens = 2048
	}
	if llm.RequestTimeout == 0 {
		llm.RequestTimeout = 2 * time.Minute
	}
	if llm.Budget.MaxRPM == 0 {
		llm.Budget.MaxRPM = 3
	}

	r := &cfg.Retry
	r.Agent = withDefaults(r.Agent, retry.AgentPolicy)
	r.AgentOther = withDefaults(r.AgentOther, retry.AgentOtherPolicy)
	r.Crew = withDefaults(r.Crew, retry.CrewPolicy)
	r.Other = withDefaults(r.Other, retry.CrewOtherPolicy)
	r.Quota = withDefaults(r.Quota, retry.QuotaPolicy)
	r.Adaptive = withDefaults(r.Adaptive, retry.AdaptivePolicy)
	if r.StepDelay == 0 {
		r.StepDelay = 15 * time.Second
	}
	if r.ProgressInterval == 0 {
		r.ProgressInterval = time.Second
	}

	if cfg.State.Backend == "" {
		cfg.State.Backend = "memory"
	}

	if len(cfg.Pipeline.Steps) == 0 {
		cfg.Pipeline.Steps = DefaultSteps()
	}
	for i := range cfg.Pipeline.Steps {
		if cfg.Pipeline.Steps[i].Role == "" {
			cfg.Pipeline.Steps[i].Role = cfg.Pipeline.Steps[i].Name
		}
	}
}

// withDefaults fills the zero fields of p from def.
func withDefaults(p, def retry.Policy) retry.Policy {
	if p.Name == "" {
		p.Name = def.Name
	}
	if p.Mode == "" {
		p.Mode = def.Mode
	}
	if p.MaxAttempts == 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BaseWait == 0 {
		p.BaseWait = def.BaseWait
	}
	if p.StepIncrement == 0 {
		p.StepIncrement = def.StepIncrement
	}
	if p.BackoffBase == 0 {
		p.BackoffBase = def.BackoffBase
	}
	if p.MaxWait == 0 {
		p.MaxWait = def.MaxWait
	}
	return p
}

// DefaultSteps is the code, review, evaluate handoff.
func DefaultSteps() []StepConfig {
	return []StepConfig{
		{
			Name:        "code",
			Role:        "engineer",
			Instruction: "Write the complete program described by the instructions below.",
		},
		{
			Name:        "review",
			Role:        "qa engineer",
			Instruction: "Review the code below for errors and return a corrected, complete version.",
		},
		{
			Name:        "evaluate",
			Role:        "chief qa engineer",
			Instruction: "Check that the code below fully satisfies the original instructions and return the final code.",
		},
	}
}
