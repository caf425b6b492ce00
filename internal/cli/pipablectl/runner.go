// Package pipablectl implements the pipablectl command line: schema
// inspection, prompt preview, asking questions against a configured database
// and driving a pipable server.
package pipablectl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pipable/pipable/internal/config"
	"github.com/pipable/pipable/internal/nl2sql"
	"github.com/pipable/pipable/internal/observability"
	"github.com/pipable/pipable/internal/pipable"
	"github.com/pipable/pipable/internal/query"
	"github.com/pipable/pipable/internal/query/duckdb"
	"github.com/pipable/pipable/internal/query/postgres"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

type Options struct {
	// Config skips env file loading when set.
	Config *config.Config
	// EnvFiles are read when Config is nil. Missing files are ignored.
	EnvFiles []string
	// NewExecutor overrides how the database executor is built.
	NewExecutor func(cfg config.Config) (query.Executor, error)
	Stdout      io.Writer
	Stderr      io.Writer
}

type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

type runner struct {
	opts   Options
	stdout io.Writer
	stderr io.Writer

	baseURL   string
	apiKey    string
	driver    string
	dsn       string
	namespace string

	cfg    config.Config
	logger *slog.Logger
}

func Run(ctx context.Context, args []string, defaults Options) int {
	r := &runner{opts: defaults, stdout: defaults.Stdout, stderr: defaults.Stderr}
	if r.stdout == nil {
		r.stdout = io.Discard
	}
	if r.stderr == nil {
		r.stderr = io.Discard
	}

	root := r.rootCommand()
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	_, _ = fmt.Fprintf(r.stderr, "error: %v\n", err)
	var usage usageError
	if errors.As(err, &usage) || strings.HasPrefix(err.Error(), "unknown command") {
		return exitUsage
	}
	return exitFailure
}

func (r *runner) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "pipablectl",
		Short:         "Ask questions about a SQL database in plain language",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Usage()
			return usageError{errors.New("a command is required")}
		},
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return r.loadConfig()
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	flags := root.PersistentFlags()
	flags.StringVar(&r.baseURL, "base-url", "", "pipable server URL (PIPABLE_MODEL_BASE_URL)")
	flags.StringVar(&r.apiKey, "api-key", "", "API key for the pipable server (PIPABLE_MODEL_API_KEY)")
	flags.StringVar(&r.driver, "driver", "", "database driver: postgres or duckdb (PIPABLE_DB_DRIVER)")
	flags.StringVar(&r.dsn, "dsn", "", "database DSN or DuckDB file path (PIPABLE_DB_DSN)")
	flags.StringVar(&r.namespace, "namespace", "", "schema scanned when no tables are given (PIPABLE_DB_NAMESPACE)")

	root.AddCommand(
		r.schemaCommand(),
		r.promptCommand(),
		r.askCommand(),
		r.execCommand(),
		r.trainCommand(),
		r.healthCommand(),
	)
	return root
}

func (r *runner) loadConfig() error {
	var cfg config.Config
	if r.opts.Config != nil {
		cfg = *r.opts.Config
	} else {
		envFiles := r.opts.EnvFiles
		if envFiles == nil {
			envFiles = []string{".env"}
		}
		loaded, err := config.LoadFromEnvFiles("pipablectl", envFiles...)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	if v := strings.TrimSpace(r.baseURL); v != "" {
		cfg.Model.BaseURL = v
	}
	if v := strings.TrimSpace(r.apiKey); v != "" {
		cfg.Model.APIKey = v
	}
	if v := strings.ToLower(strings.TrimSpace(r.driver)); v != "" {
		if v != config.DriverPostgres && v != config.DriverDuckDB {
			return usageError{fmt.Errorf("unsupported driver %q", r.driver)}
		}
		if v != cfg.Database.Driver {
			cfg.Database.Driver = v
			cfg.Database.DSN = ""
			cfg.Database.Namespace = config.DefaultNamespace(v)
		}
	}
	if v := strings.TrimSpace(r.dsn); v != "" {
		cfg.Database.DSN = v
	}
	if v := strings.TrimSpace(r.namespace); v != "" {
		cfg.Database.Namespace = v
	}

	r.cfg = cfg
	r.logger = observability.NewLogger(cfg, r.stderr)
	return nil
}

func (r *runner) newExecutor() (query.Executor, error) {
	if r.opts.NewExecutor != nil {
		return r.opts.NewExecutor(r.cfg)
	}
	return NewExecutor(r.cfg)
}

// NewExecutor builds the executor selected by cfg.Database.Driver.
func NewExecutor(cfg config.Config) (query.Executor, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		return postgres.New(postgres.DBConfig{
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		}), nil
	case config.DriverDuckDB:
		return duckdb.New(cfg.Database.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

func (r *runner) client() (*nl2sql.Client, error) {
	return nl2sql.NewClient(nl2sql.ClientConfig{
		BaseURL: r.cfg.Model.BaseURL,
		APIKey:  r.cfg.Model.APIKey,
		Timeout: r.cfg.Model.Timeout,
	})
}

// openPipable connects to the database and caches the schema context. The
// caller must Disconnect.
func (r *runner) openPipable(ctx context.Context) (*pipable.Pipable, error) {
	executor, err := r.newExecutor()
	if err != nil {
		return nil, err
	}
	client, err := r.client()
	if err != nil {
		return nil, err
	}
	return pipable.New(ctx, executor, client, pipable.Options{
		Namespace: r.cfg.Database.Namespace,
		Logger:    r.logger,
	})
}

func questionArg(cmd *cobra.Command, args []string) error {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return usageError{fmt.Errorf("%s takes exactly one question argument", cmd.Name())}
	}
	return nil
}
