package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/yourusername/k8s-console/internal/app"
	"github.com/yourusername/k8s-console/internal/diagnostic"
	"github.com/yourusername/k8s-console/internal/model"
	"k8s.io/klog/v2"
)

var (
	// Version will be set by build flags, default to timestamp
	Version = "dev-" + time.Now().Format("20060102-150405")
	// BuildTime will be set by build flags
	BuildTime = "unknown"

	// Global flags
	configFile   string
	kubeconfig   string
	kubeContext  string
	namespace    string
	resourceType string
	verbose      bool
	locale       string
	logFile      string
)

var rootCmd = &cobra.Command{
	Use:   "k8s-console",
	Short: "An interactive terminal console for Kubernetes clusters",
	Long: `k8s-console is a terminal console for browsing and operating on
Kubernetes Pods, PersistentVolumeClaims and StatefulSets. It keeps a live
watch on the selected namespace, tails pod logs and runs delete, restart
and edit actions without leaving the terminal.`,
	Version: Version,
	RunE:    runConsole,
}

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Start the interactive console",
	Long:  `Launch the interactive TUI console against the current kubeconfig context`,
	RunE:  runConsole,
}

var contextsCmd = &cobra.Command{
	Use:   "contexts",
	Short: "List kubeconfig contexts",
	RunE:  runContexts,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check RBAC permissions used by the console",
	Long:  `Run access reviews for the list, watch, log, delete and patch permissions the console uses in the selected context and namespace`,
	RunE:  runCheck,
}

func init() {
	// klog writes to stderr by default, which pollutes the TUI
	klog.InitFlags(nil)
	flag.Set("logtostderr", "false")
	flag.Set("alsologtostderr", "false")
	flag.Set("stderrthreshold", "FATAL")
	flag.Set("v", "0")

	// Add Go flags to pflag so Cobra can parse them
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)

	rootCmd.AddCommand(consoleCmd, contextsCmd, checkCmd)
	rootCmd.SetVersionTemplate(fmt.Sprintf("k8s-console {{.Version}} (built %s)\n", BuildTime))

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&kubeconfig, "kubeconfig", "k", "", "path to kubeconfig file (default: $HOME/.kube/config)")
	rootCmd.PersistentFlags().StringVarP(&kubeContext, "context", "c", "", "kubernetes context to use")
	rootCmd.PersistentFlags().StringVarP(&namespace, "namespace", "n", "", "initial namespace (default: all namespaces)")
	rootCmd.PersistentFlags().StringVarP(&resourceType, "type", "t", "", "initial resource type (pods, pvc, sts)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&locale, "locale", "l", "", "interface language (auto, en, zh)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "log file path (default: /tmp/k8s-console.log)")

	consoleCmd.Flags().Bool("no-color", false, "disable color output")
	consoleCmd.Flags().String("editor", "", "editor command (default: $KUBE_EDITOR, $EDITOR, vi)")
}

func loadConfig(cmd *cobra.Command) (*app.Config, error) {
	config, err := app.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Override config with command-line flags
	if kubeconfig != "" {
		config.Kubeconfig = kubeconfig
	}
	if kubeContext != "" {
		config.Context = kubeContext
	}
	if namespace != "" {
		config.Namespace = namespace
	}
	if resourceType != "" {
		config.DefaultType = resourceType
	}
	if locale != "" {
		config.Locale = locale
	}
	if logFile != "" {
		config.LogFile = logFile
	}
	if verbose {
		config.LogLevel = "debug"
	}
	if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
		config.NoColor = true
	}
	if editor, _ := cmd.Flags().GetString("editor"); editor != "" {
		config.EditorCommand = editor
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func runConsole(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	application, err := app.New(config, Version)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	defer func() {
		if err := application.Shutdown(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		return fmt.Errorf("application error: %w", err)
	}
	return nil
}

func runContexts(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	application, err := app.New(config, Version)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	defer application.Shutdown()

	contexts, current, err := application.Contexts()
	if err != nil {
		return fmt.Errorf("failed to load kubeconfig: %w", err)
	}
	printContexts(cmd, contexts, current)
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	application, err := app.New(config, Version)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	defer application.Shutdown()

	current, results, err := application.CheckAccess(cmd.Context())
	if err != nil {
		return fmt.Errorf("access check failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Context %s, namespace %s\n\n", current, config.Namespace)
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ALLOWED\tFEATURE\tCHECK")
	for _, r := range results {
		allowed := "yes"
		if !r.Allowed {
			allowed = "no"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", allowed, r.Feature, r.Hint(config.Namespace))
	}
	w.Flush()

	if denied := diagnostic.Denied(results); len(denied) > 0 {
		return fmt.Errorf("%d of %d permissions denied", len(denied), len(results))
	}
	return nil
}

func printContexts(cmd *cobra.Command, contexts []model.ClusterContext, current string) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CURRENT\tNAME\tCLUSTER\tUSER\tNAMESPACE")
	for _, c := range contexts {
		marker := ""
		if c.Name == current {
			marker = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", marker, c.Name, c.Cluster, c.User, c.Namespace)
	}
	w.Flush()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
