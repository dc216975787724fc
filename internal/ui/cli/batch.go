package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	coreapp "repoctx/internal/core/app"
	"repoctx/internal/shared/util"

	"github.com/spf13/cobra"
)

type batchOptions struct {
	workers    int
	output     string
	store      bool
	noCache    bool
	noProgress bool
	noSummary  bool
	summaryTo  string
}

func newBatchCommand(rt *runtime) *cobra.Command {
	opts := &batchOptions{}
	cmd := &cobra.Command{
		Use:   "batch <dir>",
		Short: "Extract every supported file below a directory",
		Long: `Batch discovers supported source files below dir, honouring .gitignore
and the configured exclude globs, and writes one JSON record per line in
path order. Files that fail to parse are reported in their records and do
not fail the run.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, rt, opts, args[0])
		},
	}
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "parallel extraction workers (default from config)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "-", "JSON Lines destination file, - for stdout")
	cmd.Flags().BoolVar(&opts.store, "store", false, "persist records in the record store even if disabled in config")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable the in-memory record cache")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "do not draw a progress bar")
	cmd.Flags().BoolVar(&opts.noSummary, "no-summary", false, "do not print the run summary")
	cmd.Flags().StringVar(&opts.summaryTo, "summary-file", "", "also write the run summary as JSON to this path")
	return cmd
}

func runBatch(cmd *cobra.Command, rt *runtime, opts *batchOptions, dir string) error {
	if opts.workers < 0 || opts.workers > 256 {
		return usageError("--workers must be between 1 and 256")
	}
	if opts.noCache {
		rt.cfg.Batch.CacheEntries = 0
	}

	a, err := rt.newApp(opts.store || rt.cfg.Store.Enabled)
	if err != nil {
		return err
	}

	var out io.Writer = rt.stdout
	if opts.output != "" && opts.output != "-" {
		f, err := os.Create(opts.output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		buf := bufio.NewWriter(f)
		defer buf.Flush()
		out = buf
	}

	batchOpts := coreapp.BatchOptions{Workers: opts.workers, Output: out}
	if !opts.noProgress {
		batchOpts.Progress = newBarProgress(rt.stderr)
	}

	summary, err := a.Batch(cmd.Context(), dir, batchOpts)
	if summary != nil && !opts.noSummary {
		fmt.Fprintln(rt.stderr, coreapp.RenderSummary(summary))
	}
	if summary != nil && opts.summaryTo != "" {
		data, marshalErr := json.MarshalIndent(summary, "", "  ")
		if marshalErr != nil {
			return marshalErr
		}
		if writeErr := util.WriteFileAtomic(opts.summaryTo, append(data, '\n'), 0o644); writeErr != nil {
			return fmt.Errorf("write summary: %w", writeErr)
		}
	}
	return err
}
