// Package config loads orchestrator configuration from a YAML file,
// environment variables, and an optional .env file, and bootstraps the
// on-disk layout the daemon operates on.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults applied when neither the config file nor the environment
// specifies a value.
const (
	DefaultCheckinIntervalSeconds = 60
	DefaultDebounceMs             = 500
	DefaultPlannerAgent           = "planner"
	DefaultTaskCLI                = "todo"
)

// Config holds everything the daemon needs to run.
type Config struct {
	// Root is the directory holding templates/, sessions/, tasks/, storage/,
	// inbox/ and memory/. Defaults to the working directory.
	Root string `yaml:"root"`

	// Workspace is the base directory for relative paths in file tools.
	// Defaults to Root.
	Workspace string `yaml:"workspace"`

	// CheckinIntervalSeconds is the planner check-in cadence.
	CheckinIntervalSeconds int `yaml:"checkin_interval_seconds"`

	// DebounceMs is the quiet window before reacting to a file change.
	DebounceMs int `yaml:"debounce_ms"`

	// PlannerAgent is the template id of the singleton planner.
	PlannerAgent string `yaml:"planner_agent"`

	// TaskCLI is the external task store binary invoked by the task tools.
	TaskCLI string `yaml:"task_cli"`

	// OpenAIBaseURL overrides the completion endpoint (for proxies).
	OpenAIBaseURL string `yaml:"openai_base_url"`

	// SlackChannel is the default channel id for slack_read history pulls.
	SlackChannel string `yaml:"slack_channel"`

	// Credentials come from the environment only, never from the file.
	OpenAIAPIKey string `yaml:"-"`
	SlackToken   string `yaml:"-"`
}

// Load reads the optional config file at path, merges environment variables
// on top, and fills defaults. A missing file is not an error; a malformed
// one is.
func Load(path string) (*Config, error) {
	// Best effort: a .env beside the process, the way the devclaw loader
	// picks up local credentials.
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// fall through to defaults
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if v := os.Getenv("CONCLAVE_ROOT"); v != "" {
		cfg.Root = v
	}
	if v := os.Getenv("CONCLAVE_CHECKIN_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CheckinIntervalSeconds = n
		}
	}
	if v := os.Getenv("CONCLAVE_DEBOUNCE_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.DebounceMs = n
		}
	}
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.SlackToken = os.Getenv("SLACK_BOT_TOKEN")

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Root == "" {
		c.Root = "."
	}
	if c.Workspace == "" {
		c.Workspace = c.Root
	}
	if c.CheckinIntervalSeconds <= 0 {
		c.CheckinIntervalSeconds = DefaultCheckinIntervalSeconds
	}
	if c.DebounceMs < 0 {
		c.DebounceMs = 0
	} else if c.DebounceMs == 0 {
		c.DebounceMs = DefaultDebounceMs
	}
	if c.PlannerAgent == "" {
		c.PlannerAgent = DefaultPlannerAgent
	}
	if c.TaskCLI == "" {
		c.TaskCLI = DefaultTaskCLI
	}
}

// CheckinInterval returns the check-in cadence as a duration.
func (c *Config) CheckinInterval() time.Duration {
	return time.Duration(c.CheckinIntervalSeconds) * time.Second
}

// Debounce returns the file stability window as a duration.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// Directory accessors for the normative layout.

func (c *Config) TemplatesDir() string { return filepath.Join(c.Root, "templates") }
func (c *Config) SessionsDir() string  { return filepath.Join(c.Root, "sessions") }
func (c *Config) TasksDir() string     { return filepath.Join(c.Root, "tasks") }
func (c *Config) StorageDir() string   { return filepath.Join(c.Root, "storage") }
func (c *Config) InboxDir() string     { return filepath.Join(c.Root, "inbox") }
func (c *Config) MemoryDir() string    { return filepath.Join(c.Root, "memory") }

// ApprovalsPath is the single shared human approval ledger.
func (c *Config) ApprovalsPath() string {
	return filepath.Join(c.TasksDir(), "approvals.task.md")
}

// CheckinPath is the singleton planner check-in record.
func (c *Config) CheckinPath() string {
	return filepath.Join(c.StorageDir(), "planner-checkin.yaml")
}

// AllowlistPath is the shell command allowlist.
func (c *Config) AllowlistPath() string {
	return filepath.Join(c.StorageDir(), "terminal-cmd-allowlist.yaml")
}

// EnsureLayout creates the required directories. Failure here is fatal for
// the daemon: the file tree is its only state store.
func (c *Config) EnsureLayout() error {
	dirs := []string{
		c.TemplatesDir(), c.SessionsDir(), c.TasksDir(),
		c.StorageDir(), c.InboxDir(), c.MemoryDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
