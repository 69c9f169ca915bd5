// Package config loads and validates the goose.yaml server configuration.
package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Config is the complete server configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Project ProjectConfig `yaml:"project"`
	History HistoryConfig `yaml:"history"`
	Runner  RunnerConfig  `yaml:"runner"`
	Queue   QueueConfig   `yaml:"queue"`
}

// ServerConfig holds HTTP/WebSocket surface settings.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	WSWriteTimeout  time.Duration `yaml:"ws_write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns the listen address in host:port form.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ProjectConfig describes the user project the runner scans for tests.
type ProjectConfig struct {
	// Root is the directory the runner discovers tests beneath.
	Root string `yaml:"root"`
	// ReloadExclude lists module prefixes the reload must never drop
	// (e.g. the runner's own support package).
	ReloadExclude []string `yaml:"reload_exclude"`
}

// HistoryConfig holds the persistent result-history settings.
type HistoryConfig struct {
	// Dir is the directory holding one record file per qualified test name.
	Dir string `yaml:"dir"`
}

// RunnerConfig holds the out-of-process runner connection settings.
type RunnerConfig struct {
	Addr string `yaml:"addr"`
	// CallTimeout bounds unary runner calls that are not expected to block
	// on model inference (discovery, schema introspection, reload).
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// QueueConfig tunes the job manager.
type QueueConfig struct {
	// WorkerCount is the number of parallel test executors.
	WorkerCount int `yaml:"worker_count"`
	// JobBacklog is the dispatcher's pending-job buffer. Jobs beyond it
	// block creation; in practice the backlog never fills.
	JobBacklog int `yaml:"job_backlog"`
}

// Defaults returns the built-in configuration, used as the mergo base for
// whatever goose.yaml provides.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8000,
			WSWriteTimeout:  10 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Project: ProjectConfig{
			Root: ".",
		},
		History: HistoryConfig{
			Dir: ".goose/history",
		},
		Runner: RunnerConfig{
			Addr:        "localhost:50051",
			CallTimeout: 30 * time.Second,
		},
		Queue: QueueConfig{
			WorkerCount: runtime.NumCPU(),
			JobBacklog:  64,
		},
	}
}

// Load reads path, merges it over the defaults, and validates the result.
// A missing file is not an error: the defaults apply unchanged.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Defaults only.
	default:
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := mergo.Merge(cfg, Defaults()); err != nil {
		return nil, fmt.Errorf("merging defaults: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Queue.WorkerCount < 1 {
		return fmt.Errorf("queue.worker_count must be at least 1, got %d", c.Queue.WorkerCount)
	}
	if c.Queue.JobBacklog < 1 {
		return fmt.Errorf("queue.job_backlog must be at least 1, got %d", c.Queue.JobBacklog)
	}
	if c.Runner.Addr == "" {
		return fmt.Errorf("runner.addr is required")
	}
	if c.History.Dir == "" {
		return fmt.Errorf("history.dir is required")
	}
	return nil
}
