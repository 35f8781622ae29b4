package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/JustinSGray/OpenMDAO/casereader"
)

// caseDoc is the serializable form of one case.
type caseDoc struct {
	ID        string         `json:"id" yaml:"id"`
	Source    string         `json:"source" yaml:"source"`
	Counter   int64          `json:"counter" yaml:"counter"`
	Timestamp float64        `json:"timestamp" yaml:"timestamp"`
	Success   bool           `json:"success" yaml:"success"`
	Message   string         `json:"message,omitempty" yaml:"message,omitempty"`
	AbsErr    *float64       `json:"abs_err,omitempty" yaml:"abs_err,omitempty"`
	RelErr    *float64       `json:"rel_err,omitempty" yaml:"rel_err,omitempty"`
	Inputs    map[string]any `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs   map[string]any `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Residuals map[string]any `json:"residuals,omitempty" yaml:"residuals,omitempty"`
	Jacobian  map[string]any `json:"jacobian,omitempty" yaml:"jacobian,omitempty"`
}

// NewShowCommand dumps one case by coordinate or problem case name.
func NewShowCommand(opts *RootOptions) *cobra.Command {
	var cache bool

	cmd := &cobra.Command{
		Use:   "show <store> <case-id>",
		Short: "Show the recorded values of one case",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openReader(args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			c, err := r.GetCase(cmd.Context(), args[1], cache)
			if err != nil {
				return WrapExitError(ExitFailure, "get case", err)
			}

			doc := caseDoc{
				ID:        c.ID,
				Source:    c.Source,
				Counter:   c.Counter,
				Timestamp: c.Timestamp,
				Success:   c.Success,
				Message:   c.Message,
				AbsErr:    c.AbsErr,
				RelErr:    c.RelErr,
				Inputs:    valueDoc(c.Inputs),
				Outputs:   valueDoc(c.Outputs),
				Residuals: valueDoc(c.Residuals),
				Jacobian:  jacobianDoc(c.Jacobian),
			}

			if opts.Format == "text" {
				return printCase(cmd, &doc)
			}
			f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
			return f.Emit(doc)
		},
	}

	cmd.Flags().BoolVar(&cache, "cache", false, "retain the materialized case in memory")
	return cmd
}

func valueDoc(m *casereader.ValueMap) map[string]any {
	if m == nil {
		return nil
	}
	doc := make(map[string]any, m.Len())
	for _, abs := range m.AbsoluteNames() {
		v, err := m.Get(abs)
		if err != nil {
			continue
		}
		doc[abs] = scalarOrSlice(v)
	}
	return doc
}

func jacobianDoc(j *casereader.Jacobian) map[string]any {
	if j == nil {
		return nil
	}
	doc := make(map[string]any)
	for _, key := range j.Keys() {
		v, err := j.Get(key[0], key[1])
		if err != nil {
			continue
		}
		doc[fmt.Sprintf("%s wrt %s", key[0], key[1])] = scalarOrSlice(v)
	}
	return doc
}

func scalarOrSlice(v *casereader.Value) any {
	if s, ok := v.Scalar(); ok {
		return s
	}
	return v.Data
}

func printCase(cmd *cobra.Command, doc *caseDoc) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "case %s (source %s, counter %d)\n", doc.ID, doc.Source, doc.Counter)
	if !doc.Success {
		fmt.Fprintf(out, "failed: %s\n", doc.Message)
	}
	if doc.AbsErr != nil {
		fmt.Fprintf(out, "abs_err %g  rel_err %g\n", *doc.AbsErr, *doc.RelErr)
	}
	for _, section := range []struct {
		name string
		vals map[string]any
	}{
		{"inputs", doc.Inputs},
		{"outputs", doc.Outputs},
		{"residuals", doc.Residuals},
		{"jacobian", doc.Jacobian},
	} {
		if section.vals == nil {
			continue
		}
		fmt.Fprintf(out, "%s:\n", section.name)
		names := make([]string, 0, len(section.vals))
		for name := range section.vals {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(out, "  %s = %v\n", name, section.vals[name])
		}
	}
	return nil
}
