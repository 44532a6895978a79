package cmd

import (
	"context"
	"os"
	"strings"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/manojsingh/agent-skills/config"
	"github.com/manojsingh/agent-skills/database"
	"github.com/manojsingh/agent-skills/generator"
	"github.com/manojsingh/agent-skills/output"
	"github.com/manojsingh/agent-skills/parser"
	"github.com/manojsingh/agent-skills/scanner"
)

// loadConfig reads --config, or the default file when it exists.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadConfig(path)
	}
	path = config.GetDefaultConfigPath()
	if _, err := os.Stat(path); err != nil {
		return config.Default(), nil
	}
	log.WithField("file", path).Debug("using config")
	return config.LoadConfig(path)
}

// missingFlags lists the required flags absent from the command line.
func missingFlags(cmd *cobra.Command, opts *options) []string {
	var missing []string
	if opts.dialect == "" {
		missing = append(missing, "--framework")
	}
	if !cmd.Flags().Changed("output") {
		missing = append(missing, "--output")
	}
	return missing
}

// merge applies flags set on the command line over the config file.
func merge(cmd *cobra.Command, opts *options, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.Output.Dir = opts.output
	}
	if flags.Changed("overwrite") {
		cfg.Output.Overwrite = opts.overwrite
	}
	if flags.Changed("sql") {
		cfg.Output.EmitSQL = opts.emitSQL
	}
	if flags.Changed("dsn") {
		cfg.Database.DSN = opts.dsn
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if opts.apply {
		cfg.Output.EmitSQL = true
	}

	if opts.dialect == "" {
		if cfg.Output.Framework == "" {
			return usagef("missing --framework (%s)", dialectList())
		}
		d, err := database.ParseDialect(cfg.Output.Framework)
		if err != nil {
			return errors.Wrap(err, "config output.framework")
		}
		opts.dialect = d
	}
	if cfg.Output.Dir == "" {
		return usagef("missing --output")
	}

	if cfg.LogLevel != "" {
		level, err := log.ParseLevel(cfg.LogLevel)
		if err != nil {
			return usagef("invalid log level %q", cfg.LogLevel)
		}
		log.SetLevel(level)
	}

	return nil
}

func run(ctx context.Context, cmd *cobra.Command, opts *options) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		if missing := missingFlags(cmd, opts); len(missing) > 0 {
			return usagef("missing %s (config not usable: %v)", strings.Join(missing, " and "), err)
		}
		return err
	}
	if err := merge(cmd, opts, cfg); err != nil {
		return err
	}

	paths, err := scanner.Discover(ctx, opts.source, scanner.Options{
		Extension:   cfg.Source.Extension,
		ExcludeDirs: cfg.Source.ExcludeDirs,
	})
	if err != nil {
		return err
	}
	log.Infof("found %d source files under %s", len(paths), opts.source)

	sources, readErrs := scanner.ReadSources(ctx, paths)

	parsed := parser.NewParser(cfg.Source.SkipBaseTypes).ParseSources(sources)
	for _, re := range readErrs {
		parsed.Skip(re.Path, re.Err)
	}

	res, err := generator.Generate(parsed, generator.Options{
		Dialect:    opts.dialect,
		EmitSQL:    cfg.Output.EmitSQL,
		SchemaName: cfg.Output.SchemaName,
	})
	if err != nil {
		return err
	}

	written, err := output.WriteAll(cfg.Output.Dir, res.Files(), cfg.Output.Overwrite)
	if err != nil {
		return err
	}

	if opts.apply {
		if err := database.ApplySchema(ctx, cfg.Database.GetConnectionString(), res.Schema); err != nil {
			return errors.Wrap(err, "apply schema")
		}
	}

	log.WithFields(log.Fields{
		"entities":      res.Stats.Entities,
		"fields":        res.Stats.Fields,
		"relationships": res.Stats.Relationships,
		"unmapped":      res.Stats.Unmapped,
		"skipped":       res.Stats.Skipped,
	}).Infof("wrote %d files to %s", len(written), cfg.Output.Dir)
	if w := parsed.Warnings(); len(w) > 0 {
		log.Warnf("%d source warnings, see %s", len(w), generator.GuideFileName)
	}
	if n := len(res.Review); n > 0 {
		log.Warnf("%d items need manual review, see %s", n, generator.GuideFileName)
	}

	return nil
}
