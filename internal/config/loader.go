package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/example/cimdb/internal/logging"
)

// Config captures environment driven configuration values for the upgrade tool.
type Config struct {
	NetworkPath  string `env:"CIMDB_NETWORK_PATH"`
	DiagramPath  string `env:"CIMDB_DIAGRAM_PATH"`
	CustomerPath string `env:"CIMDB_CUSTOMER_PATH"`
	MetadataPath string `env:"CIMDB_METADATA_PATH"`
	LogLevel     string `env:"CIMDB_LOG_LEVEL" envDefault:"info"`
	LogFormat    string `env:"CIMDB_LOG_FORMAT" envDefault:"text"`
	OTelEndpoint string `env:"CIMDB_OTEL_ENDPOINT"`
}

// Load parses configuration values from the current process environment.
// Values are not validated yet so command line flags can still override
// them; call Resolve once every source is applied.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Resolve fills the split file paths left empty with siblings of the
// network file and validates the result. Missing and invalid keys are
// reported together.
func (c *Config) Resolve() error {
	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 2)

	c.NetworkPath = strings.TrimSpace(c.NetworkPath)
	if c.NetworkPath == "" {
		missing = append(missing, "CIMDB_NETWORK_PATH")
	} else {
		c.DiagramPath = defaultSplitPath(c.DiagramPath, c.NetworkPath, "diagram")
		c.CustomerPath = defaultSplitPath(c.CustomerPath, c.NetworkPath, "customer")
		c.MetadataPath = defaultSplitPath(c.MetadataPath, c.NetworkPath, "metadata")
	}

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		invalid = append(invalid, "CIMDB_LOG_LEVEL")
	}
	if !logging.ValidFormat(c.LogFormat) {
		invalid = append(invalid, "CIMDB_LOG_FORMAT")
	}

	if len(missing) > 0 {
		return fmt.Errorf("必須の環境変数が設定されていません: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return fmt.Errorf("環境変数の値が不正です: %s", strings.Join(invalid, ", "))
	}
	return nil
}

// defaultSplitPath returns path, or the file next to the network file named
// after it with the kind appended: network.sqlite becomes
// network-diagram.sqlite.
func defaultSplitPath(path, networkPath, kind string) string {
	if path = strings.TrimSpace(path); path != "" {
		return path
	}
	ext := filepath.Ext(networkPath)
	if ext == "" {
		ext = ".sqlite"
	}
	return strings.TrimSuffix(networkPath, filepath.Ext(networkPath)) + "-" + kind + ext
}
