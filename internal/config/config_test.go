package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SessionTimeoutSeconds != 180 {
		t.Errorf("SessionTimeoutSeconds = %d, want 180", cfg.SessionTimeoutSeconds)
	}
	if cfg.LoginRetryMax != 5 {
		t.Errorf("LoginRetryMax = %d, want 5", cfg.LoginRetryMax)
	}
	if len(cfg.AutoJoinChannels) == 0 {
		t.Error("expected default auto-join channels")
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bancho.yaml")
	yaml := "session_timeout: 30\nlogin_enabled: false\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SessionTimeoutSeconds != 30 {
		t.Errorf("SessionTimeoutSeconds = %d, want 30", cfg.SessionTimeoutSeconds)
	}
	if cfg.LoginEnabled {
		t.Error("expected login_enabled to be overridden to false")
	}
	// Untouched defaults survive the overlay.
	if cfg.LoginRetryMax != 5 {
		t.Errorf("LoginRetryMax = %d, want 5 (unoverridden default)", cfg.LoginRetryMax)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bancho.yaml")
	if err := os.WriteFile(path, []byte("session_timeout: 30\n"), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("BANCHO_SESSION_TIMEOUT", "42")
	t.Setenv("BANCHO_RPC__ADDR", "127.0.0.1:50051")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SessionTimeoutSeconds != 42 {
		t.Errorf("SessionTimeoutSeconds = %d, want 42 (env override)", cfg.SessionTimeoutSeconds)
	}
	if cfg.RPC.Addr != "127.0.0.1:50051" {
		t.Errorf("RPC.Addr = %q, want nested env override", cfg.RPC.Addr)
	}
}

func TestValidateRejectsBadRPCMode(t *testing.T) {
	cfg := Default()
	cfg.RPC.Mode = "carrier-pigeon"
	if err := Validate(cfg); err == nil {
		t.Error("expected Validate to reject an unknown rpc.mode")
	}
}

func TestValidateRejectsNonPositiveTimeout(t *testing.T) {
	cfg := Default()
	cfg.SessionTimeoutSeconds = 0
	if err := Validate(cfg); err == nil {
		t.Error("expected Validate to reject a zero session_timeout")
	}
}
