package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Port != 4433 {
		t.Errorf("expected Port 4433, got %d", cfg.Port)
	}
	if cfg.MaxConnections != 1000 {
		t.Errorf("expected MaxConnections 1000, got %d", cfg.MaxConnections)
	}
	if cfg.MaxIdleTimeout != 120*time.Second {
		t.Errorf("expected MaxIdleTimeout 120s, got %v", cfg.MaxIdleTimeout)
	}
	if cfg.CongestionControl != CongestionControlBbr2 {
		t.Errorf("expected default congestion control bbr2, got %v", cfg.CongestionControl)
	}
	if cfg.EnablePQCrypto {
		t.Error("expected post-quantum crypto disabled by default")
	}
	if !cfg.EnableSharding {
		t.Error("expected sharding enabled by default")
	}
}

func TestLoadConfigNoFile(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Port != 4433 {
		t.Errorf("expected default port, got %d", cfg.Port)
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()

	originalHome := os.Getenv("HOME")
	_ = os.Setenv("HOME", tmpDir)
	defer func() { _ = os.Setenv("HOME", originalHome) }()

	cfg := DefaultConfig()
	cfg.BindAddress = "::1"
	cfg.Port = 9443
	cfg.MaxConnections = 50
	cfg.EnablePQCrypto = true
	cfg.PQVariant = PQVariantFalcon1024

	configDir := filepath.Join(tmpDir, ".config", "stoq")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}

	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(configDir, "stoq.yaml")); os.IsNotExist(err) {
		t.Fatal("config file was not created")
	}

	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if loaded.BindAddress != cfg.BindAddress {
		t.Errorf("BindAddress mismatch: expected %s, got %s", cfg.BindAddress, loaded.BindAddress)
	}
	if loaded.Port != cfg.Port {
		t.Errorf("Port mismatch: expected %d, got %d", cfg.Port, loaded.Port)
	}
	if loaded.EnablePQCrypto != cfg.EnablePQCrypto {
		t.Errorf("EnablePQCrypto mismatch: expected %v, got %v", cfg.EnablePQCrypto, loaded.EnablePQCrypto)
	}
	if loaded.PQVariant != cfg.PQVariant {
		t.Errorf("PQVariant mismatch: expected %v, got %v", cfg.PQVariant, loaded.PQVariant)
	}
}

func TestGetConfigPath(t *testing.T) {
	path := GetConfigPath()
	if path == "" {
		t.Error("GetConfigPath returned empty string")
	}
	if !filepath.IsAbs(path) && path != "~/.config/stoq/stoq.yaml" {
		t.Errorf("GetConfigPath returned unexpected relative path: %s", path)
	}
}
