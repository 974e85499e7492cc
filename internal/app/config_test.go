package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg, err := LoadConfig(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, "all", cfg.Namespace)
	assert.Equal(t, "pods", cfg.DefaultType)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, 250*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, 5*time.Second, cfg.BannerTTL)
	assert.Equal(t, time.Second, cfg.BackoffInitial)
	assert.Equal(t, 30*time.Second, cfg.BackoffMax)
	assert.Equal(t, 5000, cfg.LogMaxLines)
	assert.Equal(t, 100, cfg.LogTailLines)
	assert.Equal(t, "auto", cfg.Locale)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "/tmp/k8s-console.log", cfg.LogFile)
}

func TestLoadConfigFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := writeConfig(t, `
cluster:
  context: staging
  namespace: payments
  timeout: 3s
ui:
  default_type: sts
  locale: zh_CN
  banner_ttl: 0s
watch:
  backoff_initial: 2s
  backoff_max: 1s
logs:
  tail_lines: 50
editor:
  command: nano
logging:
  level: debug
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Context)
	assert.Equal(t, "payments", cfg.Namespace)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.Equal(t, "sts", cfg.DefaultType)
	assert.Equal(t, "zh", cfg.Locale)
	assert.Equal(t, 5*time.Second, cfg.BannerTTL, "zero TTL falls back to the default")
	assert.Equal(t, 2*time.Second, cfg.BackoffInitial)
	assert.Equal(t, 30*time.Second, cfg.BackoffMax, "max below initial is replaced")
	assert.Equal(t, 50, cfg.LogTailLines)
	assert.Equal(t, "nano", cfg.EditorCommand)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfigEnv(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("K8S_CONSOLE_UI_DEFAULT_TYPE", "pvc")

	cfg, err := LoadConfig(writeConfig(t, "{}\n"))
	require.NoError(t, err)
	assert.Equal(t, "pvc", cfg.DefaultType)
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"resource type", "ui:\n  default_type: deployments\n"},
		{"log level", "logging:\n  level: verbose\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			t.Cleanup(viper.Reset)

			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigUnreadable(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	_, err := LoadConfig(writeConfig(t, "cluster: [unterminated\n"))
	assert.Error(t, err)
}
