package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_SetsBusBounds(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 1024, cfg.Bus.SourceFS)
	assert.Equal(t, 1024, cfg.Bus.MirrorText)
}

func TestDefault_SetsExtractPool(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 4, cfg.Extract.PoolSize)
	assert.Equal(t, 2048, cfg.Extract.JobsBound)
}

func TestDefault_SetsRetentionWindows(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 14, cfg.Retention.EventsDays)
	assert.Equal(t, 3, cfg.Retention.JobsKeepPerFile)
	assert.Equal(t, 14, cfg.Retention.JobsFailedDays)
	assert.Equal(t, 30, cfg.Retention.FilesTombstoneDays)
}

func TestDefault_SetsLexicalBackend(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "sqlite", cfg.Lexical.Backend)
}

func TestDefault_EmbeddingDisabled(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "disabled", cfg.Embedding.Provider)
}

func TestLoad_OverridesDefaultsFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "findx.yaml")
	yamlContent := `
roots:
  - /home/user/docs
bus:
  source_fs: 256
lexical:
  backend: bleve
embedding:
  provider: http
  url: http://localhost:11434
  model: nomic-embed-text
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"/home/user/docs"}, cfg.Roots)
	assert.Equal(t, 256, cfg.Bus.SourceFS)
	assert.Equal(t, "bleve", cfg.Lexical.Backend)
	assert.Equal(t, "http", cfg.Embedding.Provider)
	assert.Equal(t, "nomic-embed-text", cfg.Embedding.Model)

	// Fields left unset in the file keep Default()'s value.
	assert.Equal(t, 1024, cfg.Bus.MirrorText)
	assert.Equal(t, 4, cfg.Extract.PoolSize)
}

func TestLoad_MissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidYAMLReturnsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("roots: [unterminated"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadOrDefault_MissingFileReturnsDefault(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOrDefault_ExistingFileIsLoaded(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "findx.yaml")
	require.NoError(t, os.WriteFile(path, []byte("lexical:\n  backend: bleve\n"), 0o644))

	cfg, err := LoadOrDefault(path)
	require.NoError(t, err)
	assert.Equal(t, "bleve", cfg.Lexical.Backend)
}

func TestGetUserConfigPath_EndsInConfigYAML(t *testing.T) {
	assert.True(t, filepath.Base(GetUserConfigPath()) == "config.yaml")
}

func TestUserConfigExists_FalseWhenAbsent(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	assert.False(t, UserConfigExists())
}
