// Package config loads chatcore's configuration the way the teacher's
// cmd/server/main.go does: viper reads environment variables, overridden
// by CLI flags bound in cmd/server. No config file is read.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is the fully-resolved set of settings described in spec §6.
type Config struct {
	DBURL     string
	Port      int
	Debug     bool
	JWTKey    string
	HFAPIKey  string
	AIEnabled bool

	RedisAddr string
	KafkaAddr string

	// ContextBudget is the cumulative character budget used to assemble
	// AI context (§4.1, default 5000).
	ContextBudget int
	// MaxConnectionsPerUser is the soft cap on live connections per user
	// (§4.2, default 8).
	MaxConnectionsPerUser int
}

// Load reads configuration from flags (already bound into v), the
// environment, and defaults, in that precedence order, except that a
// non-empty DATABASE_URL overrides --db-url.
func Load(v *viper.Viper) (*Config, error) {
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", 3000)
	v.SetDefault("context-budget", 5000)
	v.SetDefault("max-connections-per-user", 8)

	if v.GetString("db-url") == "" {
		def, err := defaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve default db path: %w", err)
		}
		v.SetDefault("db-url", def)
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		v.Set("db-url", dbURL)
	}

	jwtKey := os.Getenv("JWT_KEY")
	if jwtKey == "" {
		return nil, fmt.Errorf("JWT_KEY is required")
	}

	hfKey := os.Getenv("HF_API_KEY")

	cfg := &Config{
		DBURL:                 v.GetString("db-url"),
		Port:                  v.GetInt("port"),
		Debug:                 v.GetBool("debug"),
		JWTKey:                jwtKey,
		HFAPIKey:              hfKey,
		AIEnabled:             hfKey != "",
		RedisAddr:             v.GetString("redis-addr"),
		KafkaAddr:             v.GetString("kafka-addr"),
		ContextBudget:         v.GetInt("context-budget"),
		MaxConnectionsPerUser: v.GetInt("max-connections-per-user"),
	}

	return cfg, nil
}

// defaultDBPath computes a SQLite file under the platform data directory,
// rooted at the user's home, per spec §6.
func defaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	var dataDir string
	switch {
	case os.Getenv("XDG_DATA_HOME") != "":
		dataDir = os.Getenv("XDG_DATA_HOME")
	default:
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "chatcore", "chatcore.db"), nil
}
