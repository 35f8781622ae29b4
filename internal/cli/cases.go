package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JustinSGray/OpenMDAO/casereader"
)

// CasesOptions holds flags for the cases command.
type CasesOptions struct {
	Source  string
	Recurse bool
	Tree    bool
}

// NewCasesCommand lists case coordinates under a source, flat or nested.
func NewCasesCommand(opts *RootOptions) *cobra.Command {
	casesOpts := &CasesOptions{}

	cmd := &cobra.Command{
		Use:   "cases <store>",
		Short: "List cases recorded under a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openReader(args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

			if casesOpts.Tree {
				tree, err := r.ListCaseTree(casesOpts.Source)
				if err != nil {
					return WrapExitError(ExitFailure, "list cases", err)
				}
				if opts.Format == "text" {
					printTree(cmd, tree, 0)
					return nil
				}
				return f.Emit(treeDoc(tree))
			}

			cases, err := r.ListCases(casesOpts.Source, casesOpts.Recurse)
			if err != nil {
				return WrapExitError(ExitFailure, "list cases", err)
			}
			return f.EmitLines(cases)
		},
	}

	cmd.Flags().StringVar(&casesOpts.Source, "source", "driver", "source to list (driver, problem, or a hierarchy location)")
	cmd.Flags().BoolVar(&casesOpts.Recurse, "recurse", false, "include descendant cases")
	cmd.Flags().BoolVar(&casesOpts.Tree, "tree", false, "nested output instead of a flat list")
	return cmd
}

func printTree(cmd *cobra.Command, node *casereader.CoordNode, depth int) {
	fmt.Fprintf(cmd.OutOrStdout(), "%*s%s\n", 2*depth, "", node.Coord)
	for _, child := range node.Children {
		printTree(cmd, child, depth+1)
	}
}

// treeDoc renders a coordinate tree as nested maps for JSON/YAML output.
func treeDoc(node *casereader.CoordNode) map[string]any {
	children := make([]any, len(node.Children))
	for i, child := range node.Children {
		children[i] = treeDoc(child)
	}
	doc := map[string]any{"coord": node.Coord}
	if len(children) > 0 {
		doc["children"] = children
	}
	return doc
}
