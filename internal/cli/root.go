package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dshills/veridoc/internal/config"
	"github.com/dshills/veridoc/internal/project"
	"github.com/dshills/veridoc/internal/providers"
)

const version = "0.3.0"

// Exit codes.
const (
	ExitSuccess      = 0
	ExitFailedUnits  = 1
	ExitUsageError   = 2
	ExitAuthError    = 3
	ExitRuntimeError = 4
)

// Persistent flags
var (
	flagLogLevel    string
	flagLogFormat   string
	flagMetricsFile string
	flagProject     string
	flagFormat      string
	flagNoColor     bool
	flagProvider    string
	flagModel       string
	flagBaseURL     string
	flagTag         string
)

// skipConfig marks commands that must work with a broken environment.
const skipConfig = "veridoc/skip-config"

var (
	appCfg config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:           "veridoc",
	Short:         "Verify code against its documentation with LLM backends",
	Long:          "Veridoc composes prompts from documentation and source evidence, runs them against a model backend and writes one report per verification unit.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations[skipConfig] == "true" || (cmd.Parent() != nil && cmd.Parent().Annotations[skipConfig] == "true") {
			return nil
		}
		cfg, err := config.Load(buildOverrides())
		if err != nil {
			return err
		}
		appCfg = cfg
		l, err := newLogger(cfg.LogLevel, flagLogFormat)
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
}

func newLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.Sampling = nil
	zc.OutputPaths = []string{"stderr"}
	switch format {
	case "", "json":
	case "console":
		zc.Encoding = "console"
		zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	default:
		return nil, fmt.Errorf("log format must be json or console, got %q", format)
	}
	return zc.Build()
}

// buildOverrides collects the flags that feed config.Load. Only flags the
// user actually set are included.
func buildOverrides() map[string]string {
	m := make(map[string]string)
	set := func(key, v string) {
		if v != "" {
			m[key] = v
		}
	}
	set("logLevel", flagLogLevel)
	set("metricsFile", flagMetricsFile)
	set("format", flagFormat)
	set("provider", flagProvider)
	set("model", flagModel)
	set("baseURL", flagBaseURL)
	set("tag", flagTag)
	if flagConcurrent {
		m["discipline"] = "concurrent"
	}
	if flagSequential {
		m["discipline"] = "sequential"
	}
	if flagConcurrency > 0 {
		m["concurrency"] = strconv.Itoa(flagConcurrency)
	}
	if flagStream {
		m["stream"] = "true"
	}
	if flagSavePrompt {
		m["savePrompt"] = "true"
	}
	if flagCache {
		m["cache"] = "true"
	}
	set("mode", flagCRMode)
	set("base", flagBase)
	set("target", flagTarget)
	set("workspace", flagWorkspace)
	if flagWorking {
		m["working"] = "true"
	}
	set("publish", flagPublish)
	return m
}

// Run executes the root command and returns an exit code.
func Run() int {
	return execute(os.Args[1:])
}

func execute(args []string) int {
	exitCode = ExitSuccess
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitUsageError
	}
	return exitCode
}

// exitCode is set by command handlers to control the process exit code.
var exitCode = ExitSuccess

// fail reports a runtime error and records the matching exit code.
func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	exitCode = exitCodeFor(err)
}

func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case project.IsConfigError(err), errors.As(err, new(*usageError)):
		return ExitUsageError
	case providers.IsAuthError(err):
		return ExitAuthError
	default:
		return ExitRuntimeError
	}
}

type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Print veridoc version",
	Annotations: map[string]string{skipConfig: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "veridoc version %s\n", version)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&flagLogFormat, "log-format", "json", "Log encoding (json, console)")
	pf.StringVar(&flagMetricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile after a run")
	pf.StringVarP(&flagProject, "project", "p", "", "Project file (JSON or YAML)")
	pf.StringVar(&flagFormat, "format", "", "Summary format (text, json, markdown)")
	pf.BoolVar(&flagNoColor, "no-color", false, "Disable colored output")
	pf.StringVar(&flagProvider, "provider", "", "Model backend (openai, lm_studio, ollama, gemini, anthropic)")
	pf.StringVar(&flagModel, "model", "", "Model name")
	pf.StringVar(&flagBaseURL, "base-url", "", "Backend base URL")
	pf.StringVar(&flagTag, "tag", "", "Tag appended to report file names")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(affectedCmd)
	rootCmd.AddCommand(crCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(hookCmd)
	rootCmd.AddCommand(versionCmd)
}
