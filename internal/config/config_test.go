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
	path := filepath.Join(t.TempDir(), "docnum.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimal = `
numbering:
  patterns:
    - office: BGH
      template: KORE+++++JJJJ
    - office: BVerwG
      template: WBRE+++++JJJJ
`

func TestLoad_DefaultsAndPatterns(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimal))
	require.NoError(t, err)

	assert.Equal(t, 13, cfg.Numbering.TemplateLength)
	assert.Equal(t, 5, cfg.Numbering.RetryBudget)
	assert.Equal(t, "XX", cfg.Numbering.ReservedPrefix)
	assert.Equal(t, RecycleBackendPostgres, cfg.Numbering.RecycleBackend)
	assert.Equal(t, 90*24*time.Hour, cfg.Worker.RecycleRetention)
	assert.Equal(t, ":8080", cfg.Server.Addr())

	patterns, err := cfg.Numbering.PatternMap()
	require.NoError(t, err)
	// Office keys keep their case.
	assert.Equal(t, map[string]string{
		"BGH":    "KORE+++++JJJJ",
		"BVerwG": "WBRE+++++JJJJ",
	}, patterns)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("DOCNUM_NUMBERING_RETRY_BUDGET", "9")
	t.Setenv("DOCNUM_DATABASE_DSN", "postgres://override")

	cfg, err := Load(writeConfig(t, minimal))
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Numbering.RetryBudget)
	assert.Equal(t, "postgres://override", cfg.Database.DSN)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no patterns", "app:\n  env: test\n"},
		{"redis backend without url", minimal + "  recycle_backend: redis\n"},
		{"unknown backend", minimal + "  recycle_backend: etcd\n"},
		{"zero budget", minimal + "  retry_budget: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestPatternMap_DuplicateOffice(t *testing.T) {
	c := NumberingConfig{Patterns: []PatternConfig{
		{Office: "BGH", Template: "KORE+++++JJJJ"},
		{Office: "BGH", Template: "WBRE+++++JJJJ"},
	}}
	_, err := c.PatternMap()
	assert.Error(t, err)
}
