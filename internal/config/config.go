package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Mode selects how the agent exposes supply-chain capabilities to the model.
const (
	// ModeStandard advertises each lookup as its own callable capability.
	ModeStandard = "standard"
	// ModeCode advertises a single script-execution capability whose
	// namespace pre-binds the lookups.
	ModeCode = "code"
)

type Config struct {
	Environment string

	LLMBaseURL    string
	LLMAPIKey     string
	LLMModel      string
	LLMTimeoutSec int

	ServerCommand string
	ServerArgs    []string
	ServerMode    string

	DatasetPath string

	MaxModelTurns       int
	SchemaFallbackType  string
	SandboxEmptyHint    string
	SystemPrompt        string
	CodeSystemPrompt    string
	SandboxTimeoutSec   int
	SandboxMaxOutputKiB int

	EvalDBPath    string
	EvalCasesPath string
}

func FromEnv() Config {
	dataDir := stringOrDefault("SCM_AGENT_DATA_DIR", defaultDataDir())

	return Config{
		Environment: stringOrDefault("SCM_AGENT_ENV", "development"),

		LLMBaseURL:    stringOrDefault("SCM_AGENT_LLM_BASE_URL", "http://localhost:11434/v1"),
		LLMAPIKey:     strings.TrimSpace(os.Getenv("SCM_AGENT_LLM_API_KEY")),
		LLMModel:      stringOrDefault("SCM_AGENT_LLM_MODEL", "llama3.2"),
		LLMTimeoutSec: intOrDefault("SCM_AGENT_LLM_TIMEOUT_SECONDS", 120),

		ServerCommand: stringOrDefault("SCM_AGENT_SERVER_COMMAND", selfExecutable()),
		ServerArgs:    argsOrDefault("SCM_AGENT_SERVER_ARGS", []string{"serve-tools"}),
		ServerMode:    modeOrDefault("SCM_AGENT_SERVER_MODE", ModeStandard),

		DatasetPath: strings.TrimSpace(os.Getenv("SCM_AGENT_DATASET_PATH")),

		MaxModelTurns:       intOrDefault("SCM_AGENT_MAX_MODEL_TURNS", 25),
		SchemaFallbackType:  stringOrDefault("SCM_AGENT_SCHEMA_FALLBACK_TYPE", "string"),
		SandboxEmptyHint:    stringOrDefault("SCM_AGENT_SANDBOX_EMPTY_OUTPUT_HINT", "Code executed successfully, but produced no output. Use print() to return results."),
		SystemPrompt:        stringOrDefault("SCM_AGENT_SYSTEM_PROMPT", defaultSystemPrompt),
		CodeSystemPrompt:    stringOrDefault("SCM_AGENT_CODE_SYSTEM_PROMPT", defaultCodeSystemPrompt),
		SandboxTimeoutSec:   intOrDefault("SCM_AGENT_SANDBOX_TIMEOUT_SECONDS", 20),
		SandboxMaxOutputKiB: intOrDefault("SCM_AGENT_SANDBOX_MAX_OUTPUT_KIB", 512),

		EvalDBPath:    stringOrDefault("SCM_AGENT_EVAL_DB_PATH", filepath.Join(dataDir, "eval.sqlite")),
		EvalCasesPath: stringOrDefault("SCM_AGENT_EVAL_CASES_PATH", "eval_cases.json"),
	}
}

const defaultSystemPrompt = "You are a supply-chain assistant for an auto parts company. " +
	"Answer questions about parts, stock levels, supplier locations, and shipping costs " +
	"using the tools provided. If a question is outside that scope, say you cannot help with it."

const defaultCodeSystemPrompt = "You are a supply-chain assistant for an auto parts company. " +
	"Solve questions by writing a short script for the execute_script tool, chaining the " +
	"pre-bound lookup functions and printing the final answer. If a question is outside " +
	"that scope, say you cannot help with it."

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".scm-agent")
}

// selfExecutable defaults the capability server command to the running
// binary so `scm-agent chat` can spawn `scm-agent serve-tools` as its own
// subprocess.
func selfExecutable() string {
	exe, err := os.Executable()
	if err != nil {
		return "scm-agent"
	}
	return exe
}

func stringOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func intOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 1 {
		return fallback
	}
	return parsed
}

func modeOrDefault(name, fallback string) string {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case ModeStandard:
		return ModeStandard
	case ModeCode:
		return ModeCode
	default:
		return fallback
	}
}

func argsOrDefault(name string, fallback []string) []string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	args := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			args = append(args, part)
		}
	}
	if len(args) == 0 {
		return fallback
	}
	return args
}
