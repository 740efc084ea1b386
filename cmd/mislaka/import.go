package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"mislaka/internal/archive"
	"mislaka/internal/importer"
	"mislaka/internal/storage"
)

const (
	formatJSON     = "json"
	formatMarkdown = "markdown"
)

type importOptions struct {
	format  string
	xlsxDir string
	persist bool
	workers int
}

func newImportCmd(a *app) *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import PATH...",
		Short: "Import XML files, directories of *.xml and zip archives",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runImport(cmd, args, opts)
		},
	}
	cmd.Flags().StringVar(&opts.format, "format", formatJSON, "output format: json or markdown")
	cmd.Flags().StringVar(&opts.xlsxDir, "xlsx-dir", "", "also write one .xlsx report per document into DIR")
	cmd.Flags().BoolVar(&opts.persist, "persist", false, "upsert client records into the configured storage")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "documents processed concurrently (default: import.workers)")
	return cmd
}

func (a *app) runImport(cmd *cobra.Command, paths []string, opts importOptions) error {
	if opts.format != formatJSON && opts.format != formatMarkdown {
		return fmt.Errorf("--format must be %s or %s, got %q", formatJSON, formatMarkdown, opts.format)
	}
	if opts.workers < 0 {
		return fmt.Errorf("--workers must not be negative")
	}

	var storeCfg storage.Config
	if opts.persist {
		storeCfg = a.cfg.StorageConfig()
		if storeCfg.Kind == "" {
			return errors.New("--persist requires storage.kind and storage.dsn in config")
		}
	}

	docs, err := archive.Load(paths...)
	if err != nil {
		return err
	}

	ex, err := a.extractor()
	if err != nil {
		return err
	}
	workers := a.cfg.Import.Workers
	if opts.workers > 0 {
		workers = opts.workers
	}

	ctx := a.logger.WithContext(cmd.Context())
	closeMetrics := initMetrics(ctx, a.cfg.Metrics, a.logger)
	defer closeMetrics()

	runner := importer.NewDefaultRunner(importer.New(ex, workers), storeCfg)
	batch, runErr := runner.Run(ctx, docs)
	if batch == nil {
		return runErr
	}

	if opts.xlsxDir != "" {
		if err := writeXLSXReports(opts.xlsxDir, batch); err != nil {
			return err
		}
	}

	switch opts.format {
	case formatMarkdown:
		err = writeMarkdown(a.stdout, batch)
	default:
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		err = enc.Encode(batch)
	}
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return runErr
}

func writeMarkdown(w io.Writer, batch *importer.Batch) error {
	for i, res := range batch.Results {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "# %s\n\n", res.FileName); err != nil {
			return err
		}
		var body string
		switch {
		case !res.OK():
			body = "**error:** " + res.Error + "\n"
		case res.Report.Empty():
			body = "_no reportable fields_\n"
		default:
			body = res.Report.Markdown()
		}
		if _, err := io.WriteString(w, body); err != nil {
			return err
		}
	}
	return nil
}

// writeXLSXReports writes <dir>/<document>.xlsx for every successful
// document with a non-empty report.
func writeXLSXReports(dir string, batch *importer.Batch) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create xlsx dir: %w", err)
	}
	for _, res := range batch.Results {
		if !res.OK() || res.Report.Empty() {
			continue
		}
		path := filepath.Join(dir, xlsxName(res.FileName))
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		werr := res.Report.WriteXLSX(f)
		cerr := f.Close()
		if err := errors.Join(werr, cerr); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return nil
}

// xlsxName flattens archive paths ("dir/a.xml" -> "dir_a.xlsx").
func xlsxName(docName string) string {
	base := strings.TrimSuffix(docName, filepath.Ext(docName))
	base = strings.NewReplacer("/", "_", "\\", "_").Replace(base)
	if base == "" {
		base = "report"
	}
	return base + ".xlsx"
}
