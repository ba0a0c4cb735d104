// Package config loads firebox's settings from environment variables with
// documented defaults, optionally overridden by a YAML file, matching
// spec.md §6. The shape mirrors how cmd/sand/main.go lets
// alecthomas/kong-yaml layer a config file underneath CLI flags; here
// hardcoded defaults are overridden by a YAML file, which env vars override.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every setting from spec.md §6's table.
type Config struct {
	SandboxImage          string        `yaml:"sandbox_image"`
	ContainerPrefix       string        `yaml:"container_prefix"`
	PersistentStoragePath string        `yaml:"persistent_storage_path"`
	CPU                   int           `yaml:"cpu"`
	Memory                string        `yaml:"memory"`
	Timeout               time.Duration `yaml:"-"`
	TimeoutSeconds        int           `yaml:"timeout"`
	DockerHost            string        `yaml:"docker_host"`
	Debug                 bool          `yaml:"debug"`
	LogLevel              string        `yaml:"log_level"`
	MaxRetries            int           `yaml:"max_retries"`
	RetryDelaySeconds     float64       `yaml:"retry_delay"`
	OtlpEndpoint          string        `yaml:"otlp_endpoint"`
}

// Default returns the documented defaults from spec.md §6.
func Default() *Config {
	c := &Config{
		SandboxImage:          "firebox-sandbox:latest",
		ContainerPrefix:       "firebox-sandbox",
		PersistentStoragePath: "/persistent",
		CPU:                   1,
		Memory:                "1g",
		TimeoutSeconds:        60,
		DockerHost:            defaultDockerHost(),
		Debug:                 false,
		LogLevel:              "INFO",
		MaxRetries:            3,
		RetryDelaySeconds:     1.0,
		OtlpEndpoint:          "",
	}
	c.Timeout = time.Duration(c.TimeoutSeconds) * time.Second
	return c
}

// Load builds a Config from defaults, an optional YAML file (yamlPath may be
// empty), and environment variable overrides, in that order — env vars win.
func Load(yamlPath string) (*Config, error) {
	c := Default()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err == nil {
			if err := yaml.Unmarshal(data, c); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	applyEnv(c)
	c.Timeout = time.Duration(c.TimeoutSeconds) * time.Second
	return c, nil
}

func applyEnv(c *Config) {
	strVar(&c.SandboxImage, "FIREBOX_SANDBOX_IMAGE")
	strVar(&c.ContainerPrefix, "FIREBOX_CONTAINER_PREFIX")
	strVar(&c.PersistentStoragePath, "FIREBOX_PERSISTENT_STORAGE_PATH")
	intVar(&c.CPU, "FIREBOX_CPU")
	strVar(&c.Memory, "FIREBOX_MEMORY")
	intVar(&c.TimeoutSeconds, "FIREBOX_TIMEOUT")
	strVar(&c.DockerHost, "DOCKER_HOST")
	boolVar(&c.Debug, "FIREBOX_DEBUG")
	strVar(&c.LogLevel, "FIREBOX_LOG_LEVEL")
	intVar(&c.MaxRetries, "FIREBOX_MAX_RETRIES")
	floatVar(&c.RetryDelaySeconds, "FIREBOX_RETRY_DELAY")
	strVar(&c.OtlpEndpoint, "FIREBOX_OTLP_ENDPOINT")
}

func strVar(dst *string, env string) {
	if v, ok := os.LookupEnv(env); ok && v != "" {
		*dst = v
	}
}

func intVar(dst *int, env string) {
	if v, ok := os.LookupEnv(env); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func boolVar(dst *bool, env string) {
	if v, ok := os.LookupEnv(env); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func floatVar(dst *float64, env string) {
	if v, ok := os.LookupEnv(env); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func defaultDockerHost() string {
	if v := os.Getenv("DOCKER_HOST"); v != "" {
		return v
	}
	return "unix:///var/run/docker.sock"
}
