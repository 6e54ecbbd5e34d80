package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/duel/internal/config"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "duel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := config.Default()

	assert.Equal(t, config.DefaultPort, cfg.Port)
	assert.Equal(t, config.TransportTCP, cfg.Transport)
	assert.Equal(t, 20*time.Millisecond, cfg.RetryInterval)
	assert.Zero(t, cfg.ReadTimeout)
	assert.NotEmpty(t, cfg.STUNServers)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
role: client
addr: 127.0.0.1:9000
transport: ws
read_timeout: 250ms
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, config.RoleClient, cfg.Role)
	assert.Equal(t, "127.0.0.1:9000", cfg.Addr)
	assert.Equal(t, config.TransportWS, cfg.Transport)
	assert.Equal(t, 250*time.Millisecond, cfg.ReadTimeout)
	// untouched keys keep their defaults
	assert.Equal(t, config.DefaultPort, cfg.Port)
	assert.Equal(t, 20*time.Millisecond, cfg.RetryInterval)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "role: host\nbogus: 1\n")

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name string
		edit func(*config.Config)
		want error
	}{
		{"host ok", func(c *config.Config) { c.Role = config.RoleHost }, nil},
		{"local ok", func(c *config.Config) { c.Role = config.RoleLocal }, nil},
		{"client ok", func(c *config.Config) { c.Role = config.RoleClient; c.Addr = "127.0.0.1:9000" }, nil},
		{"empty role", func(c *config.Config) {}, config.ErrInvalidRole},
		{"client without addr", func(c *config.Config) { c.Role = config.RoleClient }, config.ErrMissingAddr},
		{"port too large", func(c *config.Config) { c.Role = config.RoleHost; c.Port = 70000 }, config.ErrInvalidPort},
		{"unknown transport", func(c *config.Config) { c.Role = config.RoleHost; c.Transport = "udp" }, config.ErrInvalidTransport},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.edit(&cfg)

			err := cfg.Validate()
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
}
