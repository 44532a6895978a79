package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/manojsingh/agent-skills/database"
)

const (
	exitOK    = 0
	exitFatal = 1
	exitUsage = 2
)

// usageError is a problem with the command line itself
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usagef(format string, args ...interface{}) error {
	return &usageError{err: errors.Errorf(format, args...)}
}

// options holds the raw command line
type options struct {
	source     string
	framework  string
	output     string
	configPath string
	dsn        string
	logLevel   string
	overwrite  bool
	emitSQL    bool
	apply      bool

	dialect database.Dialect
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "model-gen <source-models-path> --framework {sqlalchemy|django} --output <dir>",
		Short: "Generate Python ORM models from Entity Framework C# models",
		Long: `model-gen scans a directory of Entity Framework style C# model classes,
extracts entities, scalar fields and relationships, and writes equivalent
SQLAlchemy or Django model definitions together with a migration guide.

The conversion is semi-automated: unmapped types and structural gaps are
listed under "Manual review" in MIGRATION_GUIDE.md.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args: func(cmd *cobra.Command, args []string) error {
			switch {
			case len(args) > 1:
				return usagef("expected one source path, got %d", len(args))
			case len(args) == 1 && opts.source != "":
				return usagef("source path given both as argument and --from-dotnet-models")
			case len(args) == 0 && opts.source == "":
				return usagef("missing <source-models-path>")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.source = args[0]
			}
			if opts.framework != "" {
				d, err := database.ParseDialect(opts.framework)
				if err != nil {
					return &usageError{err: errors.Wrap(err, "--framework")}
				}
				opts.dialect = d
			}
			return run(cmd.Context(), cmd, opts)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVarP(&opts.framework, "framework", "f", "", "target framework: "+dialectList())
	flags.StringVarP(&opts.output, "output", "o", "", "output directory for generated models")
	flags.BoolVar(&opts.overwrite, "overwrite", false, "replace existing output files")
	flags.BoolVar(&opts.emitSQL, "sql", false, "also write a PostgreSQL schema preview (schema.sql)")
	flags.BoolVar(&opts.apply, "apply", false, "execute the generated schema against PostgreSQL (implies --sql)")
	flags.StringVar(&opts.dsn, "dsn", "", "PostgreSQL connection string for --apply")
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file (default ./modelgen.yaml when present)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&opts.source, "from-dotnet-models", "", "source models path")
	_ = flags.MarkHidden("from-dotnet-models")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	return rootCmd
}

func dialectList() string {
	names := make([]string, len(database.Dialects))
	for i, d := range database.Dialects {
		names[i] = string(d)
	}
	return strings.Join(names, "|")
}

// Run executes the command line and returns the process exit code.
func Run(args []string, stderr io.Writer) int {
	log.SetHandler(cli.New(stderr))
	log.SetLevel(log.InfoLevel)

	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stderr)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(context.Background())
	if err == nil {
		return exitOK
	}

	var uerr *usageError
	if errors.As(err, &uerr) {
		fmt.Fprintf(stderr, "Error: %s\nRun 'model-gen --help' for usage.\n", err)
		return exitUsage
	}
	fmt.Fprintf(stderr, "Error: %s\n", err)

	return exitFatal
}

// Execute runs model-gen with the process arguments and exits.
func Execute() {
	os.Exit(Run(os.Args[1:], os.Stderr))
}
