package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	c := Default()
	if c.SandboxImage != "firebox-sandbox:latest" {
		t.Errorf("SandboxImage = %q, want firebox-sandbox:latest", c.SandboxImage)
	}
	if c.Timeout != 60*time.Second {
		t.Errorf("Timeout = %v, want 60s", c.Timeout)
	}
	if c.OtlpEndpoint != "" {
		t.Errorf("OtlpEndpoint = %q, want empty (telemetry disabled by default)", c.OtlpEndpoint)
	}
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load returned error for a missing file: %v", err)
	}
	if c.SandboxImage != Default().SandboxImage {
		t.Errorf("SandboxImage = %q, want default", c.SandboxImage)
	}
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := "sandbox_image: custom-image:v1\ncpu: 4\n"
	if err := os.WriteFile(path, []byte(yamlBody), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if c.SandboxImage != "custom-image:v1" {
		t.Errorf("SandboxImage = %q, want custom-image:v1", c.SandboxImage)
	}
	if c.CPU != 4 {
		t.Errorf("CPU = %d, want 4", c.CPU)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("sandbox_image: yaml-image:v1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FIREBOX_SANDBOX_IMAGE", "env-image:v1")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if c.SandboxImage != "env-image:v1" {
		t.Errorf("SandboxImage = %q, want env-image:v1 (env should win over YAML)", c.SandboxImage)
	}
}

func TestLoad_OtlpEndpointFromEnv(t *testing.T) {
	t.Setenv("FIREBOX_OTLP_ENDPOINT", "localhost:4317")
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if c.OtlpEndpoint != "localhost:4317" {
		t.Errorf("OtlpEndpoint = %q, want localhost:4317", c.OtlpEndpoint)
	}
}
