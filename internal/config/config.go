// Package config loads the engine's environment-driven configuration.
// A .env file in the working directory is loaded first (if
// present) via godotenv so local development doesn't require exporting
// every variable; real environment variables always take precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the typed view over the process environment. It is constructed
// once at startup and threaded explicitly through the store, node, agent and
// master, never read from package-level globals elsewhere.
type Config struct {
	StoragePath        string
	StoragePort        int
	VectorDimension    int
	MasterEndpoint     string
	EventStorage       string
	WALCheckpointMB    int
	HNSWM              int
	HNSWEfConstruction int
	IdleTimeoutSecs    int
}

// Load reads the .env file (if present) and then the process environment,
// applying defaults for anything unset.
func Load() (*Config, error) {
	// Loading a missing .env file is not an error: most production
	// deployments inject the environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		StoragePath:        getenv("STORAGE_PATH", "./data"),
		StoragePort:        getenvInt("STORAGE_PORT", 50051),
		VectorDimension:    getenvInt("VECTOR_DIMENSION", 384),
		MasterEndpoint:     getenv("MASTER_ENDPOINT", "localhost:7000"),
		EventStorage:       getenv("EVENT_STORAGE", "localhost:50052"),
		WALCheckpointMB:    getenvInt("WAL_CHECKPOINT_MB", 256),
		HNSWM:              getenvInt("HNSW_M", 16),
		HNSWEfConstruction: getenvInt("HNSW_EF_CONSTRUCTION", 200),
		IdleTimeoutSecs:    getenvInt("IDLE_TIMEOUT_SECS", 300),
	}

	if cfg.VectorDimension <= 0 {
		return nil, fmt.Errorf("config: VECTOR_DIMENSION must be positive, got %d", cfg.VectorDimension)
	}
	return cfg, nil
}

// IdleTimeout is the connection idle timeout as a time.Duration.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSecs) * time.Second
}

// CheckpointThresholdBytes converts the configured MiB threshold to bytes.
func (c *Config) CheckpointThresholdBytes() int64 {
	return int64(c.WALCheckpointMB) * 1024 * 1024
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
