// Package app is the custquery command line: the customer queries, the
// mapping inverter, saved reports and the long-running serve / mcp modes.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"custquery/internal/config"
	"custquery/internal/logging"
	"custquery/internal/service"
	"custquery/internal/source"
	"custquery/internal/storage"
)

// App holds the state shared by all commands. The config and logger are
// built in the root PersistentPreRunE, after flags are parsed.
type App struct {
	// flags
	configPath   string
	logLevel     string
	verbose      bool
	sourceType   string
	sourceConfig string
	sourceFile   string
	format       string

	cfg        *config.Config
	configFile string
	logger     *zap.Logger
	level      zap.AtomicLevel
}

// NewRootCommand builds the custquery command tree.
func NewRootCommand() *cobra.Command {
	a := &App{logger: zap.NewNop()}

	root := &cobra.Command{
		Use:   "custquery",
		Short: "Query customer records and invert mappings",
		Long: `custquery filters, orders and projects customer records read from a
configured source (memory, JSON file, CSV file or database), inverts
key/value mappings, and runs saved reports on demand, on a cron schedule
or when a watched file changes.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = a.logger.Sync()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "config file (default ~/.config/custquery/config.yaml)")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	pf.StringVar(&a.sourceType, "source-type", "", "record source type (see 'custquery sources')")
	pf.StringVar(&a.sourceConfig, "source-config", "", "record source config as a JSON object")
	pf.StringVarP(&a.sourceFile, "file", "f", "", "read records from a .json or .csv file")
	pf.StringVarP(&a.format, "output", "o", "text", "output format: text or json")

	root.AddCommand(
		a.namesCmd(),
		a.awesomeCmd(),
		a.cheapestCmd(),
		a.searchCmd(),
		a.ordersByLastNameCmd(),
		a.invertCmd(),
		a.sourcesCmd(),
		a.checkCmd(),
		a.reportCmd(),
		a.serveCmd(),
		a.mcpCmd(),
	)
	return root
}

// Execute runs the root command until it finishes or the process receives
// SIGINT / SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCommand().ExecuteContext(ctx)
}

func (a *App) setup(cmd *cobra.Command, _ []string) error {
	if a.format != "text" && a.format != "json" {
		return fmt.Errorf("invalid output format %q (valid: text, json)", a.format)
	}

	path := a.configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if err := a.applyFlags(cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, level, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	a.cfg, a.configFile, a.logger, a.level = cfg, path, logger, level
	a.logger.Debug("config loaded",
		zap.String("path", path),
		zap.String("source", cfg.Source.Type),
		zap.String("db", cfg.Database.Path))
	return nil
}

// reloadLogLevel re-reads the config file and applies its log level to the
// running logger. Flags and environment keep their precedence.
func (a *App) reloadLogLevel() error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	if err := a.applyFlags(cfg); err != nil {
		return err
	}
	level, err := zapcore.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
	}
	if level != a.level.Level() {
		a.level.SetLevel(level)
		a.logger.Info("log level changed", zap.Stringer("level", level))
	}
	return nil
}

func (a *App) applyFlags(cfg *config.Config) error {
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.verbose {
		cfg.Logging.Level = "debug"
	}

	var srcCfg map[string]any
	if a.sourceConfig != "" {
		if err := json.Unmarshal([]byte(a.sourceConfig), &srcCfg); err != nil {
			return fmt.Errorf("parse --source-config: %w", err)
		}
	}

	switch {
	case a.sourceFile != "":
		typ := "json_file"
		if strings.EqualFold(filepath.Ext(a.sourceFile), ".csv") {
			typ = "csv_file"
		}
		if a.sourceType != "" {
			typ = a.sourceType
		}
		if srcCfg == nil {
			srcCfg = map[string]any{}
		}
		// Saved reports outlive the working directory.
		abs, err := filepath.Abs(a.sourceFile)
		if err != nil {
			return fmt.Errorf("resolve --file: %w", err)
		}
		srcCfg["filePath"] = abs
		cfg.Source = config.SourceConfig{Type: typ, Config: srcCfg}
	case a.sourceType != "":
		cfg.Source = config.SourceConfig{Type: a.sourceType, Config: srcCfg}
	case srcCfg != nil:
		cfg.Source.Config = srcCfg
	}
	return nil
}

// source builds the configured record source.
func (a *App) source() (source.Source, error) {
	return source.New(a.cfg.Source.Type, source.Config(a.cfg.Source.Config), a.logger)
}

// openReports opens the report store and wires a ReportService on it. The
// returned func stops the service triggers and closes the store.
func (a *App) openReports() (*service.ReportService, func(), error) {
	db, err := storage.New(a.cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open report store: %w", err)
	}
	svc := service.NewReportService(
		storage.NewReportStore(db),
		service.LogEmitter{Logger: a.logger},
		a.logger,
		service.Options{
			RunTimeout:    a.cfg.GetRunTimeout(),
			WatchDebounce: a.cfg.GetWatchDebounce(),
			RunLogLimit:   a.cfg.Reports.RunLogLimit,
		},
	)
	closeFn := func() {
		svc.Stop()
		if err := db.Close(); err != nil {
			a.logger.Warn("failed to close report store", zap.Error(err))
		}
	}
	return svc, closeFn, nil
}
