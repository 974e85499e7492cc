package app

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/yourusername/k8s-console/internal/action"
	"github.com/yourusername/k8s-console/internal/cache"
	"github.com/yourusername/k8s-console/internal/datasource"
	"github.com/yourusername/k8s-console/internal/diagnostic"
	"github.com/yourusername/k8s-console/internal/events"
	"github.com/yourusername/k8s-console/internal/logstream"
	"github.com/yourusername/k8s-console/internal/model"
	"github.com/yourusername/k8s-console/internal/session"
	"github.com/yourusername/k8s-console/internal/ui"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"
)

// App represents the main application
type App struct {
	logger  *zap.Logger
	config  *Config
	version string
	client  datasource.ClusterClient
}

// New creates a new App instance
func New(config *Config, version string) (*App, error) {
	logger, err := initLogger(config.LogLevel, config.LogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return &App{
		logger:  logger,
		config:  config,
		version: version,
	}, nil
}

// Run starts the console and blocks until the user quits or ctx is cancelled
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("Starting k8s-console",
		zap.String("version", a.version),
		zap.String("kubeconfig", a.config.Kubeconfig),
		zap.String("context", a.config.Context),
		zap.String("namespace", a.config.Namespace),
		zap.String("type", a.config.DefaultType),
	)
	a.logger.Debug("Application configuration loaded",
		zap.Duration("timeout", a.config.Timeout),
		zap.Duration("tick_interval", a.config.TickInterval),
		zap.Duration("stale_timeout", a.config.StaleTimeout),
		zap.Int("log_max_lines", a.config.LogMaxLines),
		zap.String("log_level", a.config.LogLevel),
	)

	resourceType, err := model.ParseResourceType(a.config.DefaultType)
	if err != nil {
		return err
	}

	if a.config.NoColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}

	a.client = a.initClient()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	mux := events.NewMultiplexer(a.config.TickInterval, a.logger)

	uiModel := ui.NewModel(mux, a.logger, a.config.Locale, a.version)
	p := tea.NewProgram(uiModel, tea.WithAltScreen(), tea.WithContext(ctx))

	watcher := cache.NewWatchManager(a.client, mux, cache.WatchConfig{
		BackoffInitial: a.config.BackoffInitial,
		BackoffMax:     a.config.BackoffMax,
		StaleTimeout:   a.config.StaleTimeout,
	}, a.logger)

	streamer := logstream.NewStreamer(a.client, mux, logstream.Config{
		TailLines: int64(a.config.LogTailLines),
		MaxLines:  a.config.LogMaxLines,
	}, a.logger)

	editor := ui.NewEditor(ui.ResolveEditor(a.config.EditorCommand), p, a.logger)
	pipeline := action.NewPipeline(a.client, editor, mux, a.logger)
	defer pipeline.Close()

	controller := session.NewController(session.Deps{
		Client:    a.client,
		Watcher:   watcher,
		Logs:      streamer,
		Actions:   pipeline,
		Publisher: mux,
		Renderer:  ui.NewProgramRenderer(p),
		Clipboard: ui.SystemClipboard{},
	}, session.Config{
		Namespace: a.config.Namespace,
		Type:      resourceType,
		BannerTTL: a.config.BannerTTL,
	}, a.logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return mux.Run(gctx)
	})
	g.Go(func() error {
		defer cancel()
		return controller.Run(gctx, mux.Events())
	})
	g.Go(func() error {
		defer cancel()
		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return fmt.Errorf("UI error: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.logger.Info("Console stopped")
	return nil
}

// initClient connects to the configured kubeconfig. When no configuration
// can be loaded the console still starts against an offline client.
func (a *App) initClient() datasource.ClusterClient {
	client, err := datasource.NewAPIServerClient(datasource.Options{
		Kubeconfig: a.config.Kubeconfig,
		Context:    a.config.Context,
		Timeout:    a.config.Timeout,
		QPS:        a.config.QPS,
		Burst:      a.config.Burst,
	}, a.logger)
	if err != nil {
		a.logger.Warn("Failed to load cluster configuration, starting offline", zap.Error(err))
		return datasource.NewOfflineClient(err)
	}
	return client
}

// Contexts lists the kubeconfig contexts without starting the console
func (a *App) Contexts() ([]model.ClusterContext, string, error) {
	client, err := datasource.NewAPIServerClient(datasource.Options{
		Kubeconfig: a.config.Kubeconfig,
		Context:    a.config.Context,
		Timeout:    a.config.Timeout,
	}, a.logger)
	if err != nil {
		return nil, "", err
	}
	defer client.Close()
	return client.ListContexts(), client.CurrentContext(), nil
}

// CheckAccess reviews the RBAC permissions the console relies on in the
// configured context and namespace
func (a *App) CheckAccess(ctx context.Context) (string, []diagnostic.AccessResult, error) {
	client, err := datasource.NewAPIServerClient(datasource.Options{
		Kubeconfig: a.config.Kubeconfig,
		Context:    a.config.Context,
		Timeout:    a.config.Timeout,
	}, a.logger)
	if err != nil {
		return "", nil, err
	}
	defer client.Close()

	cs, err := client.Clientset("")
	if err != nil {
		return "", nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	results, err := diagnostic.CheckAccess(ctx, cs.AuthorizationV1(), a.config.Namespace, diagnostic.ConsolePermissions)
	if err != nil {
		return "", nil, err
	}
	if denied := diagnostic.Denied(results); len(denied) > 0 {
		a.logger.Warn("Missing permissions", zap.String("context", client.CurrentContext()), zap.Int("denied", len(denied)))
	}
	return client.CurrentContext(), results, nil
}

// Shutdown gracefully stops the application
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down application...")

	if a.client != nil {
		if err := a.client.Close(); err != nil {
			a.logger.Error("Failed to close cluster client", zap.Error(err))
		}
	}

	// Sync only flushes buffered log entries, ignore stderr sync errors
	_ = a.logger.Sync()
	return nil
}

// initLogger initializes the zap logger with file rotation support
func initLogger(levelStr, logFile string) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	switch levelStr {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	if logFile == "" {
		logFile = defaultLogFile
	}

	// File output only: Bubble Tea owns the terminal
	fileWriter := zapcore.AddSync(&lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    100, // MB
		MaxBackups: 3,
		MaxAge:     7, // days
		Compress:   true,
	})
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), fileWriter, level)
	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	zap.ReplaceGlobals(logger)

	return logger, nil
}
