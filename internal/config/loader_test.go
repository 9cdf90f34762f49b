package config

import (
	"os"
	"strings"
	"testing"
)

func unsetAll(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CIMDB_NETWORK_PATH",
		"CIMDB_DIAGRAM_PATH",
		"CIMDB_CUSTOMER_PATH",
		"CIMDB_METADATA_PATH",
		"CIMDB_LOG_LEVEL",
		"CIMDB_LOG_FORMAT",
		"CIMDB_OTEL_ENDPOINT",
	} {
		// t.Setenv restores the original value once the test ends.
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("failed to unset %s: %v", key, err)
		}
	}
}

func TestLoader_ParseEnvironment(t *testing.T) {
	t.Run("applies defaults when variables are missing", func(t *testing.T) {
		unsetAll(t)
		t.Setenv("CIMDB_NETWORK_PATH", "/data/network.sqlite")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		if err := cfg.Resolve(); err != nil {
			t.Fatalf("Resolve returned error: %v", err)
		}

		if cfg.LogLevel != "info" || cfg.LogFormat != "text" {
			t.Fatalf("unexpected logging defaults: %q %q", cfg.LogLevel, cfg.LogFormat)
		}
		if cfg.DiagramPath != "/data/network-diagram.sqlite" {
			t.Fatalf("unexpected diagram path: %q", cfg.DiagramPath)
		}
		if cfg.CustomerPath != "/data/network-customer.sqlite" {
			t.Fatalf("unexpected customer path: %q", cfg.CustomerPath)
		}
		if cfg.MetadataPath != "/data/network-metadata.sqlite" {
			t.Fatalf("unexpected metadata path: %q", cfg.MetadataPath)
		}
		if cfg.OTelEndpoint != "" {
			t.Fatalf("expected tracing to be off, got endpoint %q", cfg.OTelEndpoint)
		}
	})

	t.Run("keeps explicit split paths", func(t *testing.T) {
		unsetAll(t)
		t.Setenv("CIMDB_NETWORK_PATH", "/data/network")
		t.Setenv("CIMDB_CUSTOMER_PATH", "/other/customers.db")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		if err := cfg.Resolve(); err != nil {
			t.Fatalf("Resolve returned error: %v", err)
		}

		if cfg.CustomerPath != "/other/customers.db" {
			t.Fatalf("unexpected customer path: %q", cfg.CustomerPath)
		}
		if cfg.DiagramPath != "/data/network-diagram.sqlite" {
			t.Fatalf("unexpected diagram path: %q", cfg.DiagramPath)
		}
	})

	t.Run("errors when required values are missing", func(t *testing.T) {
		unsetAll(t)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		err = cfg.Resolve()
		if err == nil {
			t.Fatalf("expected error when required values are missing")
		}
		expected := "必須の環境変数が設定されていません: CIMDB_NETWORK_PATH"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})

	t.Run("reports every invalid value", func(t *testing.T) {
		unsetAll(t)
		t.Setenv("CIMDB_NETWORK_PATH", "network.sqlite")
		t.Setenv("CIMDB_LOG_LEVEL", "loud")
		t.Setenv("CIMDB_LOG_FORMAT", "xml")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		err = cfg.Resolve()
		if err == nil {
			t.Fatalf("expected error for invalid values")
		}
		if !strings.Contains(err.Error(), "CIMDB_LOG_LEVEL, CIMDB_LOG_FORMAT") {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})
}
