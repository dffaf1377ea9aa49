package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTunables(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tunables.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadTunablesEmptyPathUsesDefaults(t *testing.T) {
	got, err := LoadTunables("")
	require.NoError(t, err)
	assert.Equal(t, DefaultTunables(), got)
}

func TestLoadTunablesOverridesAndFills(t *testing.T) {
	path := writeTunables(t, "fuzzy_max_distance: 1\nvague_terms:\n  - respectful\n")

	got, err := LoadTunables(path)
	require.NoError(t, err)
	assert.Equal(t, 1, got.FuzzyMaxDistance)
	assert.Equal(t, DefaultTunables().MaxEvidencePerRule, got.MaxEvidencePerRule,
		"absent fields keep their defaults")
	assert.Equal(t, []string{"respectful"}, got.VagueTerms)
}

func TestLoadTunablesRejectsOutOfRange(t *testing.T) {
	path := writeTunables(t, "max_evidence_per_rule: 0\n")
	_, err := LoadTunables(path)
	assert.Error(t, err)

	path = writeTunables(t, "fuzzy_max_distance: -2\n")
	_, err = LoadTunables(path)
	assert.Error(t, err)
}

func TestLoadTunablesMissingFile(t *testing.T) {
	_, err := LoadTunables(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestTunablesEngine(t *testing.T) {
	tun := Tunables{FuzzyMaxDistance: 3, FuzzyMinPhraseLen: 8, MaxEvidencePerRule: 2}
	cfg := tun.Engine()
	assert.Equal(t, 3, cfg.FuzzyMaxDistance)
	assert.Equal(t, 8, cfg.FuzzyMinPhraseLen)
	assert.Equal(t, 2, cfg.MaxEvidencePerRule)
}
