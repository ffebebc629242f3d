// Package config loads appforge server configuration from the environment,
// with an optional YAML overlay for self-hosted installs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the server configuration.
type Config struct {
	ListenAddr string `yaml:"listenAddr"`

	DatabaseDriver string `yaml:"databaseDriver"` // "sqlite" or "postgres"
	DatabaseDSN    string `yaml:"databaseDSN"`

	// SandboxBackend selects the provider: "cloudbox" or "docker".
	SandboxBackend string `yaml:"sandboxBackend"`

	CloudboxAPIKey   string `yaml:"cloudboxApiKey"`
	CloudboxDomain   string `yaml:"cloudboxDomain"`
	CloudboxTemplate string `yaml:"cloudboxTemplate"`

	DockerHost  string `yaml:"dockerHost"`
	DockerImage string `yaml:"dockerImage"`

	// SandboxAutoIdle is the provider-side idle timer for new sandboxes.
	SandboxAutoIdle time.Duration `yaml:"sandboxAutoIdle"`

	// DeployToken authenticates against the deployment platform's API.
	DeployToken  string `yaml:"deployToken"`
	DeployAPIURL string `yaml:"deployApiUrl"`

	CORSAllowedOrigins []string `yaml:"corsAllowedOrigins"`
}

// Load reads .env (if present), an optional appforge.yaml, and environment
// variables in increasing precedence: yaml < env.
func Load() (*Config, error) {
	// .env is optional; absence is not an error.
	_ = godotenv.Load()

	cfg := &Config{
		ListenAddr:         ":8080",
		DatabaseDriver:     "sqlite",
		DatabaseDSN:        "appforge.db",
		SandboxBackend:     "cloudbox",
		SandboxAutoIdle:    10 * time.Minute,
		CORSAllowedOrigins: []string{"http://localhost:5173", "http://localhost:3000"},
	}

	if path := envOr("APPFORGE_CONFIG", "appforge.yaml"); path != "" {
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setStr(&cfg.ListenAddr, "LISTEN_ADDR")
	setStr(&cfg.DatabaseDriver, "DATABASE_DRIVER")
	setStr(&cfg.DatabaseDSN, "DATABASE_DSN")
	setStr(&cfg.SandboxBackend, "SANDBOX_BACKEND")
	setStr(&cfg.CloudboxAPIKey, "CLOUDBOX_API_KEY")
	setStr(&cfg.CloudboxDomain, "CLOUDBOX_DOMAIN")
	setStr(&cfg.CloudboxTemplate, "CLOUDBOX_TEMPLATE")
	setStr(&cfg.DockerHost, "DOCKER_SANDBOX_HOST")
	setStr(&cfg.DockerImage, "DOCKER_SANDBOX_IMAGE")
	setStr(&cfg.DeployToken, "DEPLOY_TOKEN")
	setStr(&cfg.DeployAPIURL, "DEPLOY_API_URL")

	if v := os.Getenv("SANDBOX_AUTO_IDLE_MINUTES"); v != "" {
		if minutes, err := strconv.Atoi(v); err == nil && minutes > 0 {
			cfg.SandboxAutoIdle = time.Duration(minutes) * time.Minute
		}
	}
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
