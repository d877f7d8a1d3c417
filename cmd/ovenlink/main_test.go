package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	originalEnv := os.Getenv("OVENLINK_CONFIG")
	defer os.Setenv("OVENLINK_CONFIG", originalEnv)

	os.Setenv("OVENLINK_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingDatabasePath verifies run fails when database path is empty.
func TestRun_MissingDatabasePath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	configContent := `
cloud:
  url: "ws://127.0.0.1:1"
  token: "test-token"
  connect_timeout: 1

database:
  path: ""
  wal_mode: true
  busy_timeout: 5

mqtt:
  enabled: false

influxdb:
  enabled: false

logging:
  level: info
  format: text
  output: stdout
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalEnv := os.Getenv("OVENLINK_CONFIG")
	defer os.Setenv("OVENLINK_CONFIG", originalEnv)
	os.Setenv("OVENLINK_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with empty database path")
	}
	if !strings.Contains(err.Error(), "database.path") {
		t.Errorf("error = %v, want database.path validation failure", err)
	}
}

// TestRun_MissingCloudToken verifies the account token is required.
func TestRun_MissingCloudToken(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	configContent := `
cloud:
  url: "ws://127.0.0.1:1"
  connect_timeout: 1

database:
  path: "` + filepath.Join(tmpDir, "test.db") + `"

mqtt:
  enabled: false

influxdb:
  enabled: false
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalEnv := os.Getenv("OVENLINK_CONFIG")
	defer os.Setenv("OVENLINK_CONFIG", originalEnv)
	os.Setenv("OVENLINK_CONFIG", configPath)

	originalToken := os.Getenv("OVENLINK_CLOUD_TOKEN")
	defer os.Setenv("OVENLINK_CLOUD_TOKEN", originalToken)
	os.Unsetenv("OVENLINK_CLOUD_TOKEN")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail without a cloud token")
	}
	if !strings.Contains(err.Error(), "cloud.token") {
		t.Errorf("error = %v, want cloud.token validation failure", err)
	}
}

// TestRun_CloudUnreachable verifies startup fails cleanly when the
// vendor cloud cannot be reached. MQTT and InfluxDB are disabled so the
// test has no external dependencies.
func TestRun_CloudUnreachable(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")
	dbPath := filepath.Join(tmpDir, "test.db")

	configContent := `
cloud:
  url: "ws://127.0.0.1:1"
  token: "test-token"
  connect_timeout: 1
  reconnect:
    initial_delay: 1
    max_delay: 2
    max_attempts: 1

database:
  path: "` + dbPath + `"
  wal_mode: true
  busy_timeout: 5

recipes:
  path: ""

mqtt:
  enabled: false

influxdb:
  enabled: false

logging:
  level: info
  format: text
  output: stdout
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalEnv := os.Getenv("OVENLINK_CONFIG")
	defer os.Setenv("OVENLINK_CONFIG", originalEnv)
	os.Setenv("OVENLINK_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail when the cloud is unreachable")
	}
	if !strings.Contains(err.Error(), "connecting to cloud") {
		t.Errorf("error = %v, want cloud connection failure", err)
	}

	// The database and migrations ran before the cloud dial.
	if _, statErr := os.Stat(dbPath); statErr != nil {
		t.Errorf("database file not created: %v", statErr)
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	originalEnv := os.Getenv("OVENLINK_CONFIG")
	defer os.Setenv("OVENLINK_CONFIG", originalEnv)

	os.Unsetenv("OVENLINK_CONFIG")

	path := getConfigPath()
	if path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	originalEnv := os.Getenv("OVENLINK_CONFIG")
	defer os.Setenv("OVENLINK_CONFIG", originalEnv)

	expected := "/custom/path/config.yaml"
	os.Setenv("OVENLINK_CONFIG", expected)

	path := getConfigPath()
	if path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}
