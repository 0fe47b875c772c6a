package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 0.45, cfg.Matching.Tolerance)
	assert.Equal(t, 5*time.Second, cfg.Matching.ScanTimeout)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 128, cfg.Vision.SignatureDim)
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
database:
  driver: sqlite
  path: /tmp/gate.db
matching:
  tolerance: 0.5
  scan_timeout: 2s
  max_roster_size: 1000
  archive_probes: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/tmp/gate.db", cfg.Database.Path)
	assert.Equal(t, MatchingConfig{
		Tolerance:     0.5,
		ScanTimeout:   2 * time.Second,
		MaxRosterSize: 1000,
		ArchiveProbes: true,
	}, cfg.Matching)
}

func TestTolerance(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
		want float64
	}{
		{"default when unset", "matching:\n  scan_timeout: 1s\n", nil, 0.45},
		{"zero from yaml", "matching:\n  tolerance: 0\n", nil, 0},
		{"zero from env", "matching:\n  tolerance: 0.5\n", map[string]string{"FACEGATE_MATCH_TOLERANCE": "0"}, 0},
		{"legacy env name", "matching:\n  tolerance: 0.5\n", map[string]string{"FACE_RECOGNITION_TOLERANCE": "0.6"}, 0.6},
		{"new env name wins", "matching:\n  tolerance: 0.5\n", map[string]string{
			"FACE_RECOGNITION_TOLERANCE": "0.6",
			"FACEGATE_MATCH_TOLERANCE":   "0.4",
		}, 0.4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := Load(writeConfig(t, tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Matching.Tolerance)
		})
	}

	t.Run("malformed env", func(t *testing.T) {
		t.Setenv("FACEGATE_MATCH_TOLERANCE", "loose")
		_, err := Load(writeConfig(t, "matching:\n  tolerance: 0.5\n"))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown driver", "database:\n  driver: oracle\n"},
		{"negative tolerance", "matching:\n  tolerance: -0.1\n"},
		{"infinite tolerance", "matching:\n  tolerance: .inf\n"},
		{"nan tolerance", "matching:\n  tolerance: .nan\n"},
		{"negative roster size", "matching:\n  max_roster_size: -5\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err, "expected validation error")
		})
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{User: "gate", Password: "secret", Host: "db", Port: 5432, Name: "facegate"}
	assert.Equal(t, "postgres://gate:secret@db:5432/facegate?sslmode=disable", d.DSN())
}
