package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewVarsCommand lists the variable names recorded under a source.
func NewVarsCommand(opts *RootOptions) *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "vars <store>",
		Short: "List input and output variables recorded under a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openReader(args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			inputs, outputs, err := r.ListSourceVars(source)
			if err != nil {
				return WrapExitError(ExitFailure, "list source variables", err)
			}

			if opts.Format == "text" {
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, "inputs:")
				for _, name := range inputs {
					fmt.Fprintf(out, "  %s\n", name)
				}
				fmt.Fprintln(out, "outputs:")
				for _, name := range outputs {
					fmt.Fprintf(out, "  %s\n", name)
				}
				return nil
			}

			f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
			return f.Emit(map[string][]string{"inputs": inputs, "outputs": outputs})
		},
	}

	cmd.Flags().StringVar(&source, "source", "driver", "source to inspect")
	return cmd
}
