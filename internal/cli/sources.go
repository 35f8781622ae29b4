package cli

import (
	"github.com/spf13/cobra"

	"github.com/JustinSGray/OpenMDAO/casereader"
)

// openReader opens a case store, mapping open failures to command errors.
func openReader(path string) (*casereader.Reader, error) {
	r, err := casereader.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open case store", err)
	}
	return r, nil
}

// NewSourcesCommand lists the sources with recorded cases.
func NewSourcesCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sources <store>",
		Short: "List sources with recorded cases",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openReader(args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
			return f.EmitLines(r.ListSources())
		},
	}
}
