package cli

import (
	"fmt"
	"log/slog"
	"slices"

	coreapp "repoctx/internal/core/app"
	"repoctx/internal/core/errors"
	"repoctx/internal/engine/parser"
	"repoctx/internal/engine/record"

	"github.com/spf13/cobra"
)

const stdinPath = "<stdin>"

type extractOptions struct {
	language string
	format   string
}

func newExtractCommand(rt *runtime) *cobra.Command {
	opts := &extractOptions{}
	cmd := &cobra.Command{
		Use:   "extract [path]",
		Short: "Extract one file (or stdin) into a record",
		Long: `Extract reads one source file, or stdin when no path is given, and writes
its record to stdout. The record is always written, failures included:
parse errors exit 0, missing files and fatal errors exit 1, usage errors
exit 2.`,
		Args: maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runExtract(cmd, rt, opts, path)
		},
	}
	cmd.Flags().StringVarP(&opts.language, "language", "l", "", "language id (required for stdin)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "output format: json or yaml (default from config)")
	return cmd
}

func runExtract(cmd *cobra.Command, rt *runtime, opts *extractOptions, path string) error {
	formatValue := opts.format
	if formatValue == "" {
		formatValue = rt.cfg.Output.Format
	}
	format, err := coreapp.ParseFormat(formatValue)
	if err != nil {
		return &exitError{code: exitUsage, err: err}
	}

	a, err := rt.newApp(false)
	if err != nil {
		return err
	}

	recPath := path
	if path == "" {
		recPath = stdinPath
	}
	lang := opts.language
	if lang == "" && path != "" {
		lang = a.Parser.DetectLanguage(path)
	}

	// A language the registry does not know is a usage problem for stdin
	// and an unsupported file otherwise.
	if lang == "" || !knownLanguage(a, lang) {
		err := errors.Newf(errors.CodeNotSupported, "unsupported language for %s", recPath)
		rec := record.Failed(recPath, lang, parser.FailureMessage(err))
		if writeErr := coreapp.WriteRecord(rt.stdout, rec, format); writeErr != nil {
			return writeErr
		}
		if path == "" || opts.language != "" {
			return &exitError{code: exitUsage}
		}
		return &exitError{code: exitFailure}
	}

	var out coreapp.Outcome
	if path == "" {
		content, readErr := parser.ReadSource("")
		if readErr != nil {
			out = coreapp.Outcome{Record: record.Failed(recPath, lang, parser.FailureMessage(readErr)), Err: readErr}
		} else {
			out = a.Extractor.Extract(cmd.Context(), recPath, lang, content)
		}
	} else {
		out = a.Extractor.ExtractPath(cmd.Context(), path, path, lang)
	}

	if err := coreapp.WriteRecord(rt.stdout, out.Record, format); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	code := extractExitCode(out.Err)
	if out.Err != nil {
		slog.Debug("extraction failed", "path", recPath, "code", errors.CodeOf(out.Err), "exit", code)
	}
	if code != exitOK {
		return &exitError{code: code}
	}
	return nil
}

func knownLanguage(a *coreapp.App, lang string) bool {
	return slices.Contains(a.Parser.Languages(), lang)
}

// extractExitCode maps a failure to the documented exit status. Parse
// errors are reported in the record and still exit 0.
func extractExitCode(err error) int {
	if err == nil {
		return exitOK
	}
	switch errors.CodeOf(err) {
	case errors.CodeParse:
		return exitOK
	default:
		return exitFailure
	}
}
