package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
ami:
  host: 127.0.0.1
  port: 5038
  username: admin
  secret: amisecret
gateway:
  host: 0.0.0.0
  port: 8091
  broadcast_every_ms: 500
control_api:
  host: 0.0.0.0
  port: 8090
  jwt_secret: yaml-secret
database:
  host: 127.0.0.1
  port: 3306
  username: callcore
  password: dbsecret
  database: callcore
crm:
  endpoint: https://crm.example.com/calls
  timeout_ms: 5000
  queue_capacity: 256
settings:
  monitored_extensions: ["100", "101"]
`

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "callcore.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestLoad_ParsesYAML(t *testing.T) {
	path := writeTempConfig(t, sampleYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.AMI.Host != "127.0.0.1" || cfg.AMI.Port != 5038 {
		t.Errorf("AMI = %+v, want host 127.0.0.1 port 5038", cfg.AMI)
	}
	if len(cfg.Settings.MonitoredExtensions) != 2 {
		t.Errorf("MonitoredExtensions = %v, want 2 entries", cfg.Settings.MonitoredExtensions)
	}
	if cfg.ControlAPI.JWTSecret != "yaml-secret" {
		t.Errorf("JWTSecret = %q, want yaml-secret", cfg.ControlAPI.JWTSecret)
	}
}

func TestLoad_MissingFileReturnsError(t *testing.T) {
	_, err := Load("/nonexistent/callcore.yaml")
	if err == nil {
		t.Fatal("Load() of a missing file succeeded, want error")
	}
}

func TestLoad_EnvOverridesTakePrecedence(t *testing.T) {
	path := writeTempConfig(t, sampleYAML)

	t.Setenv("CALLCORE_AMI_SECRET", "env-secret")
	t.Setenv("CALLCORE_JWT_SECRET", "env-jwt-secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AMI.Secret != "env-secret" {
		t.Errorf("AMI.Secret = %q, want env-secret", cfg.AMI.Secret)
	}
	if cfg.ControlAPI.JWTSecret != "env-jwt-secret" {
		t.Errorf("ControlAPI.JWTSecret = %q, want env-jwt-secret", cfg.ControlAPI.JWTSecret)
	}
}

func TestAddress_Helpers(t *testing.T) {
	ami := AMIConfig{Host: "10.0.0.1", Port: 5038}
	if got, want := ami.Address(), "10.0.0.1:5038"; got != want {
		t.Errorf("AMIConfig.Address() = %q, want %q", got, want)
	}

	gw := GatewayConfig{Host: "0.0.0.0", Port: 8091}
	if got, want := gw.Address(), "0.0.0.0:8091"; got != want {
		t.Errorf("GatewayConfig.Address() = %q, want %q", got, want)
	}

	api := ControlAPIConfig{Host: "0.0.0.0", Port: 8090}
	if got, want := api.Address(), "0.0.0.0:8090"; got != want {
		t.Errorf("ControlAPIConfig.Address() = %q, want %q", got, want)
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Username: "callcore", Password: "secret", Host: "db", Port: 3306, Database: "callcore"}
	got := d.DSN()
	want := "callcore:secret@tcp(db:3306)/callcore?parseTime=true&charset=utf8mb4"
	if got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
