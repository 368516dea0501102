package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mj1618/ax-mcp/internal/config"
)

func newServeFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	cfg := config.Default()
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	cfg.AddFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestResolveConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ax-mcp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
transport: unix
backend: mock
rate_limit: 20
redact_roles: [text_field]
`), 0o600))

	fs := newServeFlags(t, "--rate-limit", "7", "--redact-role", "slider", "--redact-role", "combo_box", "--request-timeout", "3s")
	cfg, err := resolveConfig(path, fs)
	require.NoError(t, err)

	assert.Equal(t, config.TransportUnix, cfg.Transport, "unset flags keep the file value")
	assert.Equal(t, "mock", cfg.Backend)
	assert.Equal(t, 7, cfg.RateLimit)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
	assert.Equal(t, []string{"slider", "combo_box"}, cfg.RedactRoles)
}

func TestResolveConfig_NoFile(t *testing.T) {
	cfg, err := resolveConfig("", newServeFlags(t))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestResolveConfig_BadFile(t *testing.T) {
	_, err := resolveConfig(filepath.Join(t.TempDir(), "missing.yaml"), newServeFlags(t))
	assert.Error(t, err)
}
