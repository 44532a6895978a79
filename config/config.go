package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/manojsingh/agent-skills/parser"
	"github.com/manojsingh/agent-skills/scanner"
)

// DefaultFileName is looked up in the working directory when --config is absent.
const DefaultFileName = "modelgen.yaml"

type DatabaseConfig struct {
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

type SourceConfig struct {
	Extension     string   `yaml:"extension"`
	ExcludeDirs   []string `yaml:"exclude_dirs"`
	SkipBaseTypes []string `yaml:"skip_base_types"`
}

type OutputConfig struct {
	Dir        string `yaml:"dir"`
	Framework  string `yaml:"framework"`
	Overwrite  bool   `yaml:"overwrite"`
	EmitSQL    bool   `yaml:"sql"`
	SchemaName string `yaml:"schema_name"`
}

type Config struct {
	Source   SourceConfig   `yaml:"source"`
	Output   OutputConfig   `yaml:"output"`
	Database DatabaseConfig `yaml:"database"`
	LogLevel string         `yaml:"log_level"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			Extension:     ".cs",
			ExcludeDirs:   append([]string(nil), scanner.DefaultExcludeDirs...),
			SkipBaseTypes: append([]string(nil), parser.DefaultSkipBaseTypes...),
		},
		Output: OutputConfig{
			SchemaName: "public",
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
		},
		LogLevel: "info",
	}
}

// GetConnectionString returns the DSN, building a key/value one from the
// individual settings when none is given. An empty database name means no
// database is configured.
func (db *DatabaseConfig) GetConnectionString() string {
	if db.DSN != "" {
		return db.DSN
	}
	if db.DBName == "" {
		return ""
	}

	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host,
		db.Port,
		db.User,
		db.Password,
		db.DBName,
		db.SSLMode,
	)
}

// LoadConfig reads a YAML file on top of the defaults. "~" is expanded.
func LoadConfig(path string) (*Config, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, errors.Wrapf(err, "expand %s", path)
	}

	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}

	cfg := Default()
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", expanded)
	}

	return cfg, nil
}

func GetDefaultConfigPath() string {
	dir, _ := os.Getwd()
	return filepath.Join(dir, DefaultFileName)
}
