package config

import (
	"time"

	"github.com/vietddude/crewguard/internal/core/retry"
	"github.com/vietddude/crewguard/internal/infra/budget"
	redisclient "github.com/vietddude/crewguard/internal/infra/redis"
	"github.com/vietddude/crewguard/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig    `yaml:"server"`
	Logging  LoggingConfig   `yaml:"logging"`
	LLM      LLMConfig       `yaml:"llm"`
	Retry    RetryConfig     `yaml:"retry"`
	State    StateConfig     `yaml:"state"`
	Database postgres.Config `yaml:"database"`
	Pipeline PipelineConfig  `yaml:"pipeline"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"` // 0 = disabled
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// LLMConfig holds model provider settings.
type LLMConfig struct {
	Provider       string        `yaml:"provider"` // gemini, scripted
	Endpoint       string        `yaml:"endpoint"`
	APIKey         string        `yaml:"api_key"`
	Model          string        `yaml:"model"`
	FallbackModel  string        `yaml:"fallback_model"` // "" = no fallback
	Temperature    float64       `yaml:"temperature"`
	MaxTokens      int           `yaml:"max_tokens"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Budget         budget.Config `yaml:"budget"`
}

// RetryConfig holds the retry policies.
type RetryConfig struct {
	Agent            retry.Policy  `yaml:"agent"`
	AgentOther       retry.Policy  `yaml:"agent_other"`
	Crew             retry.Policy  `yaml:"crew"`
	Other            retry.Policy  `yaml:"other"`
	Quota            retry.Policy  `yaml:"quota"`
	Adaptive         retry.Policy  `yaml:"adaptive"`
	StepDelay        time.Duration `yaml:"step_delay"`
	ProgressInterval time.Duration `yaml:"progress_interval"`
}

// Policies returns the policies in display order.
func (r RetryConfig) Policies() []retry.Policy {
	return []retry.Policy{r.Agent, r.AgentOther, r.Crew, r.Other, r.Quota, r.Adaptive}
}

// StateConfig selects where the consecutive failure count lives.
type StateConfig struct {
	Backend string             `yaml:"backend"` // memory, redis
	Redis   redisclient.Config `yaml:"redis"`
}

// PipelineConfig describes the sequential steps of a run.
type PipelineConfig struct {
	Steps  []StepConfig `yaml:"steps"`
	Output string       `yaml:"output"` // "" = don't write a file
}

// StepConfig is one stage of the pipeline.
type StepConfig struct {
	Name        string `yaml:"name"`
	Role        string `yaml:"role"`
	Instruction string `yaml:"instruction"`
}
