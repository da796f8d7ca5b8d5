package store

import (
	"encoding/json"
	"os"
	"time"
)

// Meta is the shard's meta.json, recording the parameters a segment and
// its WAL must agree with. It is
// the first thing Open reads, before touching segment.dat at all.
type Meta struct {
	CreatedAt  time.Time `json:"created_at"`
	Metric     string    `json:"metric"`
	Dimension  int       `json:"dimension"`
	Version    int       `json:"version"`
	TenantMode bool      `json:"tenant_mode"`
}

const metaVersion = 1

func loadMeta(path string) (*Meta, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Meta
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func saveMeta(path string, m *Meta) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
