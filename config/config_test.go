package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadFromFillsDefaults(t *testing.T) {
	p := writeYAML(t, "pipeline:\n  name: test\nstore:\n  driver: memory\n")

	cfg, err := LoadFrom(p)
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Pipeline.Name)
	assert.Equal(t, 2, cfg.Monitor.Period)
	assert.Equal(t, 300, cfg.Monitor.Duration)
	assert.Equal(t, 16000, cfg.Audio.SampleRate)
	assert.Equal(t, 5.0, cfg.Subtitles.MaxDuration)
	assert.Equal(t, 12, cfg.Subtitles.MaxWords)
	assert.Equal(t, []string{"gemini", "remote", "espeak"}, cfg.Dubbing.Providers)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromMissingFile(t *testing.T) {
	_, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Root)
	}{
		{name: "unknown store driver", mutate: func(r *Root) { r.Store.Driver = "mongo" }},
		{name: "postgres without dsn", mutate: func(r *Root) { r.Store.Driver = "postgres" }},
		{name: "dynamodb without table", mutate: func(r *Root) { r.Store.Driver = "dynamodb" }},
		{name: "unknown provider", mutate: func(r *Root) { r.Dubbing.Providers = []string{"edge"} }},
		{name: "unknown caption format", mutate: func(r *Root) { r.Subtitles.Format = "ass" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestOverrideFromViper(t *testing.T) {
	cfg := Default()
	v := viper.New()
	v.Set("store_driver", "postgres")
	v.Set("store_dsn", "postgres://localhost/edmo")
	v.Set("log_level", "warn")

	cfg.Override(v)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/edmo", cfg.Store.DSN)
	assert.Equal(t, "warn", cfg.Pipeline.LogLvl)
	assert.Equal(t, "memory", Default().Store.Driver)
	require.NoError(t, cfg.Validate())
}

func TestDevConfigIsValid(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join("dev", "config.yaml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "en+f3", cfg.Dubbing.Voices["espeak"]["en"])
}
