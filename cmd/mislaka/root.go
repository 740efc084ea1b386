package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"mislaka/internal/client"
	"mislaka/internal/config"
	"mislaka/internal/dictionary"
	"mislaka/internal/extract"
	"mislaka/internal/format"
	"mislaka/internal/report"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfgPath string
	verbose bool

	stdout io.Writer
	stderr io.Writer

	cfg    *config.Config
	logger zerolog.Logger
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "mislaka",
		Short:         "Extract clearing-house XML reports",
		Long:          "mislaka consolidates clearing-house (mislaka) XML exports into categorized, formatted reports and client records.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVar(&a.cfgPath, "config", "", "config file (YAML)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")

	root.AddCommand(
		newImportCmd(a),
		newInspectCmd(a),
		newServeCmd(a),
		newVersionCmd(a),
	)
	return root
}

// load reads configuration and builds the logger.
func (a *app) load() error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level))
	if err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if a.verbose && level > zerolog.DebugLevel {
		level = zerolog.DebugLevel
	}
	a.logger = zerolog.New(a.stderr).Level(level).With().Timestamp().Logger()
	return nil
}

// extractor wires dictionary, formatter, report builder and client
// extractor from configuration.
func (a *app) extractor() (*extract.Extractor, error) {
	dict, err := dictionary.Load(a.cfg.DictionaryFile)
	if err != nil {
		return nil, err
	}
	f, err := format.New(dict, a.cfg.FormatOptions())
	if err != nil {
		return nil, err
	}
	return extract.New(
		report.NewBuilder(dict, f, a.cfg.SummaryOptions()),
		client.NewExtractor(dict),
	), nil
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(a.stdout, "mislaka %s\n", version)
			return err
		},
	}
}
