package cli

import (
	"encoding/json"
	"fmt"

	"repoctx/internal/core/errors"

	"github.com/spf13/cobra"
)

func newCallersCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "callers <path> <function>",
		Short: "Look up stored callers of a function",
		Long: `Callers answers from the record store filled by batch or watch runs.
path is the record path (relative to the batch root) and function is the
bare name, or Type.method for methods.`,
		Args: exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rt.newApp(true)
			if err != nil {
				return err
			}
			callers, err := a.Store.Callers(cmd.Context(), args[0], args[1])
			if err != nil {
				if errors.IsCode(err, errors.CodeNotFound) {
					return &exitError{code: exitFailure, err: err}
				}
				return fmt.Errorf("lookup callers: %w", err)
			}
			enc := json.NewEncoder(rt.stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(callers)
		},
	}
}
