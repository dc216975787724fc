package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"repoctx/internal/engine/parser"
	"repoctx/internal/shared/util"

	"github.com/spf13/cobra"
)

func newLanguagesCommand(rt *runtime) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "languages",
		Short: "List languages with their extensions",
		Args:  exactArgs(0),
		RunE: func(*cobra.Command, []string) error {
			registry, err := parser.BuildLanguageRegistry(rt.cfg.LanguageOverrides())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(rt.stdout, 0, 2, 2, ' ', 0)
			fmt.Fprintln(tw, "LANGUAGE\tENABLED\tEXTENSIONS\tFILENAMES")
			for _, id := range util.SortedKeys(registry) {
				spec := registry[id]
				if !spec.Enabled && !all {
					continue
				}
				fmt.Fprintf(tw, "%s\t%t\t%s\t%s\n", id, spec.Enabled, joinOrDash(spec.Extensions), joinOrDash(spec.Filenames))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include disabled languages")
	return cmd
}

func joinOrDash(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	return strings.Join(values, ",")
}
