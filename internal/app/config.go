package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/yourusername/k8s-console/internal/i18n"
	"github.com/yourusername/k8s-console/internal/model"
)

// Config holds the application configuration
type Config struct {
	// Cluster configuration
	Kubeconfig string        `mapstructure:"kubeconfig"`
	Context    string        `mapstructure:"context"`
	Namespace  string        `mapstructure:"namespace"`
	Timeout    time.Duration `mapstructure:"timeout"`
	QPS        float32       `mapstructure:"qps"`
	Burst      int           `mapstructure:"burst"`

	// UI configuration
	DefaultType  string        `mapstructure:"default_type"`
	TickInterval time.Duration `mapstructure:"tick_interval"`
	BannerTTL    time.Duration `mapstructure:"banner_ttl"`
	Locale       string        `mapstructure:"locale"`
	NoColor      bool          `mapstructure:"no_color"`

	// Watch configuration
	BackoffInitial time.Duration `mapstructure:"backoff_initial"`
	BackoffMax     time.Duration `mapstructure:"backoff_max"`
	StaleTimeout   time.Duration `mapstructure:"stale_timeout"`

	// Log view configuration
	LogMaxLines  int `mapstructure:"max_lines"`
	LogTailLines int `mapstructure:"tail_lines"`

	// Editor command; empty means $KUBE_EDITOR, $EDITOR, then vi
	EditorCommand string `mapstructure:"command"`

	// Logging configuration
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
}

const (
	defaultTimeout        = 10 * time.Second
	defaultQPS            = 20
	defaultBurst          = 40
	defaultType           = "pods"
	defaultTickInterval   = 250 * time.Millisecond
	defaultBannerTTL      = 5 * time.Second
	defaultBackoffInitial = time.Second
	defaultBackoffMax     = 30 * time.Second
	defaultStaleTimeout   = 60 * time.Second
	defaultLogMaxLines    = 5000
	defaultLogTailLines   = 100
	defaultLogFile        = "/tmp/k8s-console.log"
)

// LoadConfig loads configuration from file and environment
func LoadConfig(configFile string) (*Config, error) {
	viper.SetDefault("cluster.kubeconfig", "")
	viper.SetDefault("cluster.context", "")
	viper.SetDefault("cluster.namespace", model.AllNamespaces)
	viper.SetDefault("cluster.timeout", defaultTimeout.String())
	viper.SetDefault("cluster.qps", defaultQPS)
	viper.SetDefault("cluster.burst", defaultBurst)

	viper.SetDefault("ui.default_type", defaultType)
	viper.SetDefault("ui.tick_interval", defaultTickInterval.String())
	viper.SetDefault("ui.banner_ttl", defaultBannerTTL.String())
	viper.SetDefault("ui.locale", "auto")
	viper.SetDefault("ui.no_color", false)

	viper.SetDefault("watch.backoff_initial", defaultBackoffInitial.String())
	viper.SetDefault("watch.backoff_max", defaultBackoffMax.String())
	viper.SetDefault("watch.stale_timeout", defaultStaleTimeout.String())

	viper.SetDefault("logs.max_lines", defaultLogMaxLines)
	viper.SetDefault("logs.tail_lines", defaultLogTailLines)

	viper.SetDefault("editor.command", "")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.file", defaultLogFile)

	// Home kubeconfig default
	if home, err := os.UserHomeDir(); err == nil {
		viper.SetDefault("cluster.kubeconfig", filepath.Join(home, ".kube", "config"))
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("$HOME/.k8s-console")
		viper.AddConfigPath("/etc/k8s-console")
	}

	viper.SetEnvPrefix("K8S_CONSOLE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		Kubeconfig:     viper.GetString("cluster.kubeconfig"),
		Context:        viper.GetString("cluster.context"),
		Namespace:      viper.GetString("cluster.namespace"),
		Timeout:        viper.GetDuration("cluster.timeout"),
		QPS:            float32(viper.GetFloat64("cluster.qps")),
		Burst:          viper.GetInt("cluster.burst"),
		DefaultType:    viper.GetString("ui.default_type"),
		TickInterval:   viper.GetDuration("ui.tick_interval"),
		BannerTTL:      viper.GetDuration("ui.banner_ttl"),
		Locale:         viper.GetString("ui.locale"),
		NoColor:        viper.GetBool("ui.no_color"),
		BackoffInitial: viper.GetDuration("watch.backoff_initial"),
		BackoffMax:     viper.GetDuration("watch.backoff_max"),
		StaleTimeout:   viper.GetDuration("watch.stale_timeout"),
		LogMaxLines:    viper.GetInt("logs.max_lines"),
		LogTailLines:   viper.GetInt("logs.tail_lines"),
		EditorCommand:  viper.GetString("editor.command"),
		LogLevel:       viper.GetString("logging.level"),
		LogFile:        viper.GetString("logging.file"),
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// normalize replaces zero values left by a blank or unit-less setting
func (c *Config) normalize() {
	if c.Namespace == "" {
		c.Namespace = model.AllNamespaces
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.QPS <= 0 {
		c.QPS = defaultQPS
	}
	if c.Burst <= 0 {
		c.Burst = defaultBurst
	}
	if c.DefaultType == "" {
		c.DefaultType = defaultType
	}
	if c.TickInterval <= 0 {
		c.TickInterval = defaultTickInterval
	}
	if c.BannerTTL <= 0 {
		c.BannerTTL = defaultBannerTTL
	}
	if c.Locale == "" {
		c.Locale = "auto"
	} else if c.Locale != "auto" {
		c.Locale = i18n.Normalize(c.Locale)
	}
	if c.BackoffInitial <= 0 {
		c.BackoffInitial = defaultBackoffInitial
	}
	if c.BackoffMax < c.BackoffInitial {
		c.BackoffMax = max(defaultBackoffMax, c.BackoffInitial)
	}
	if c.StaleTimeout <= 0 {
		c.StaleTimeout = defaultStaleTimeout
	}
	if c.LogMaxLines <= 0 {
		c.LogMaxLines = defaultLogMaxLines
	}
	if c.LogTailLines <= 0 {
		c.LogTailLines = defaultLogTailLines
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFile == "" {
		c.LogFile = defaultLogFile
	}
}

// Validate rejects settings that cannot be normalised
func (c *Config) Validate() error {
	if _, err := model.ParseResourceType(c.DefaultType); err != nil {
		return fmt.Errorf("invalid ui.default_type: %w", err)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level %q", c.LogLevel)
	}
	return nil
}
