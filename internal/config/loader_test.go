package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
service:
  log_level: debug
github:
  token: ${TOFU_TEST_TOKEN}
  check_name: ci
webhook:
  listen: 127.0.0.1:3000
  secret: s3cret
  max_body_size: 512KB
command:
  name: make
  args: [test, -j4]
  timeout: 10m
`

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_AppliesDefaultsAndInterpolation(t *testing.T) {
	t.Setenv("TOFU_TEST_TOKEN", "ghp_abc")
	path := writeConfig(t, t.TempDir(), sampleConfig)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))

	assert.Equal(t, "ghp_abc", cfg.GitHub.Token)
	assert.Equal(t, "ci", cfg.GitHub.CheckName)
	assert.Equal(t, "https://api.github.com", cfg.GitHub.APIURL)
	assert.Equal(t, "/webhook", cfg.Webhook.Path)
	assert.Equal(t, "X-Hub-Signature-256", cfg.Webhook.SignatureHeader)
	assert.Equal(t, "make", cfg.Command.Name)
	assert.Equal(t, []string{"test", "-j4"}, cfg.Command.Args)
	assert.Equal(t, 10*time.Minute, cfg.Command.Timeout)
	assert.Equal(t, 32*1024, cfg.Command.MaxOutputBytes)
	assert.Equal(t, 30*24*time.Hour, cfg.History.Retention)
}

func TestLoad_DirectoryLooksForConfigYAML(t *testing.T) {
	t.Setenv("TOFU_TEST_TOKEN", "x")
	dir := t.TempDir()
	writeConfig(t, dir, sampleConfig)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "make", cfg.Command.Name)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate_UnresolvedEnv(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	cfg.GitHub.Token = "${TOFU_TEST_TOKEN}"
	err = Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TOFU_TEST_TOKEN")
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := Defaults()
		cfg.GitHub.Token = "t"
		cfg.Webhook.Secret = "s"
		cfg.Command.Name = "true"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing token", mutate: func(c *Config) { c.GitHub.Token = "" }, wantErr: "github.token"},
		{name: "missing secret", mutate: func(c *Config) { c.Webhook.Secret = "" }, wantErr: "webhook.secret"},
		{name: "missing command", mutate: func(c *Config) { c.Command.Name = "" }, wantErr: "command.name"},
		{name: "bad log level", mutate: func(c *Config) { c.Service.LogLevel = "loud" }, wantErr: "log_level"},
		{name: "relative path", mutate: func(c *Config) { c.Webhook.Path = "webhook" }, wantErr: "webhook.path"},
		{name: "bad size", mutate: func(c *Config) { c.Webhook.MaxBodySize = "lots" }, wantErr: "max_body_size"},
		{name: "negative timeout", mutate: func(c *Config) { c.Command.Timeout = -time.Second }, wantErr: "timeout"},
		{name: "negative retention", mutate: func(c *Config) { c.History.Retention = -time.Hour }, wantErr: "history.retention"},
		{
			name: "api shares listener",
			mutate: func(c *Config) {
				c.API.Enabled = true
				c.API.Listen = c.Webhook.Listen
			},
			wantErr: "api.listen",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "", want: 1 << 20},
		{in: "2048", want: 2048},
		{in: "512KB", want: 512 << 10},
		{in: "1mb", want: 1 << 20},
		{in: "2GB", want: 2 << 30},
		{in: "0", wantErr: true},
		{in: "-5KB", wantErr: true},
		{in: "abc", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseSize(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		assert.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
