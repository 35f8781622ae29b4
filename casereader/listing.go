package casereader

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/text/width"
	"gonum.org/v1/gonum/floats"
)

// ListOptions selects the columns and filtering of a variable listing.
type ListOptions struct {
	// Values includes the recorded value column.
	Values bool

	// Prom labels rows with promoted names instead of absolute names.
	Prom bool

	// Residuals includes the recorded residual column (outputs only).
	Residuals bool

	// ResidualsTol, when positive, keeps only variables whose residual
	// 2-norm exceeds the tolerance.
	ResidualsTol float64

	// Units, Shape, Bounds and Scaling include the corresponding catalog
	// columns.
	Units   bool
	Shape   bool
	Bounds  bool
	Scaling bool

	// Hierarchical indents variables under their model-tree path instead
	// of printing a flat table.
	Hierarchical bool
}

// varRow is one line of a listing, assembled before formatting.
type varRow struct {
	abs   string
	label string
	val   *Value
	resid *Value
	meta  *VarMeta
}

// ListInputs writes a table of the input variables recorded in c to w and
// returns the listed names. With a nil case, inputs are gathered across all
// recorded system cases, newest first, taking each variable's most recent
// value.
func (r *Reader) ListInputs(c *Case, w io.Writer, opts ListOptions) ([]string, error) {
	rows, err := r.gatherRows(c, kindInput, opts)
	if err != nil {
		return nil, err
	}
	return writeListing(w, "inputs", rows, opts)
}

// ListOutputs is the output-side counterpart of ListInputs. Residual
// columns and the residual tolerance filter apply here only.
func (r *Reader) ListOutputs(c *Case, w io.Writer, opts ListOptions) ([]string, error) {
	rows, err := r.gatherRows(c, kindOutput, opts)
	if err != nil {
		return nil, err
	}
	if opts.ResidualsTol > 0 {
		kept := rows[:0]
		for _, row := range rows {
			if row.resid != nil && floats.Norm(row.resid.Data, 2) > opts.ResidualsTol {
				kept = append(kept, row)
			}
		}
		rows = kept
	}
	return writeListing(w, "outputs", rows, opts)
}

func (r *Reader) gatherRows(c *Case, kind ioKind, opts ListOptions) ([]varRow, error) {
	var rows []varRow
	add := func(abs string, val, resid *Value) {
		row := varRow{abs: abs, label: abs, val: val, resid: resid, meta: r.cat.abs2meta[abs]}
		if opts.Prom {
			row.label = r.cat.promoted(kind, abs)
		}
		rows = append(rows, row)
	}

	if c != nil {
		m := c.Inputs
		if kind == kindOutput {
			m = c.Outputs
		}
		if m == nil {
			return nil, nil
		}
		for _, abs := range m.AbsoluteNames() {
			var resid *Value
			if kind == kindOutput && c.Residuals != nil {
				resid = c.Residuals.vals[abs]
			}
			add(abs, m.vals[abs], resid)
		}
		return rows, nil
	}

	// No case given: sweep every system case newest-first so each variable
	// reports its most recent recorded value.
	seen := make(map[string]bool)
	ctx := context.Background()
	for i := r.system.Len() - 1; i >= 0; i-- {
		sc, err := r.system.Get(ctx, r.system.keys[i], true)
		if err != nil {
			return nil, err
		}
		m := sc.Inputs
		if kind == kindOutput {
			m = sc.Outputs
		}
		if m == nil {
			continue
		}
		for _, abs := range m.AbsoluteNames() {
			if seen[abs] {
				continue
			}
			seen[abs] = true
			var resid *Value
			if kind == kindOutput && sc.Residuals != nil {
				resid = sc.Residuals.vals[abs]
			}
			add(abs, m.vals[abs], resid)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].abs < rows[j].abs })
	return rows, nil
}

// columns renders one row into its selected column cells, label first.
func (row *varRow) columns(opts ListOptions) []string {
	cells := []string{row.label}
	if opts.Values {
		cells = append(cells, valueCell(row.val))
	}
	if opts.Residuals {
		cells = append(cells, valueCell(row.resid))
	}
	if opts.Units {
		cells = append(cells, metaCell(row.meta, func(m *VarMeta) string { return m.Units }))
	}
	if opts.Shape {
		cells = append(cells, metaCell(row.meta, func(m *VarMeta) string {
			return fmt.Sprintf("%v", m.Shape)
		}))
	}
	if opts.Bounds {
		cells = append(cells,
			metaCell(row.meta, func(m *VarMeta) string { return valueCell(m.Lower) }),
			metaCell(row.meta, func(m *VarMeta) string { return valueCell(m.Upper) }))
	}
	if opts.Scaling {
		cells = append(cells,
			metaCell(row.meta, func(m *VarMeta) string { return fmt.Sprintf("%g", m.Ref) }),
			metaCell(row.meta, func(m *VarMeta) string { return fmt.Sprintf("%g", m.Ref0) }),
			metaCell(row.meta, func(m *VarMeta) string { return fmt.Sprintf("%g", m.ResRef) }))
	}
	return cells
}

func listingHeader(opts ListOptions) []string {
	cells := []string{"varname"}
	if opts.Values {
		cells = append(cells, "value")
	}
	if opts.Residuals {
		cells = append(cells, "resids")
	}
	if opts.Units {
		cells = append(cells, "units")
	}
	if opts.Shape {
		cells = append(cells, "shape")
	}
	if opts.Bounds {
		cells = append(cells, "lower", "upper")
	}
	if opts.Scaling {
		cells = append(cells, "ref", "ref0", "res_ref")
	}
	return cells
}

func valueCell(v *Value) string {
	if v == nil {
		return "-"
	}
	return v.String()
}

func metaCell(m *VarMeta, f func(*VarMeta) string) string {
	if m == nil {
		return "-"
	}
	s := f(m)
	if s == "" {
		return "-"
	}
	return s
}

// writeListing formats rows as a fixed-width table (or an indented tree
// with Hierarchical) and returns the listed names.
func writeListing(w io.Writer, title string, rows []varRow, opts ListOptions) ([]string, error) {
	names := make([]string, len(rows))
	for i, row := range rows {
		names[i] = row.label
	}

	if _, err := fmt.Fprintf(w, "%d %s\n", len(rows), title); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return names, nil
	}

	if opts.Hierarchical {
		if err := writeTree(w, rows, opts); err != nil {
			return nil, err
		}
		return names, nil
	}

	header := listingHeader(opts)
	table := [][]string{header}
	for i := range rows {
		table = append(table, rows[i].columns(opts))
	}

	widths := make([]int, len(header))
	for _, cells := range table {
		for i, cell := range cells {
			if n := displayWidth(cell); n > widths[i] {
				widths[i] = n
			}
		}
	}
	for ti, cells := range table {
		line := make([]string, len(cells))
		for i, cell := range cells {
			line[i] = padCell(cell, widths[i])
		}
		if _, err := fmt.Fprintln(w, strings.TrimRight(strings.Join(line, "  "), " ")); err != nil {
			return nil, err
		}
		if ti == 0 {
			rule := make([]string, len(cells))
			for i := range rule {
				rule[i] = strings.Repeat("-", widths[i])
			}
			if _, err := fmt.Fprintln(w, strings.TrimRight(strings.Join(rule, "  "), " ")); err != nil {
				return nil, err
			}
		}
	}
	return names, nil
}

// writeTree indents each variable under its model-tree path, printing every
// intermediate system once, in row order.
func writeTree(w io.Writer, rows []varRow, opts ListOptions) error {
	var prev []string
	for i := range rows {
		parts := strings.Split(rows[i].abs, ".")
		groups, leaf := parts[:len(parts)-1], parts[len(parts)-1]

		common := 0
		for common < len(groups) && common < len(prev) && groups[common] == prev[common] {
			common++
		}
		for d := common; d < len(groups); d++ {
			if _, err := fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", d), groups[d]); err != nil {
				return err
			}
		}
		prev = groups

		cells := rows[i].columns(opts)
		cells[0] = leaf
		line := strings.Repeat("  ", len(groups)) + strings.Join(cells, "  ")
		if _, err := fmt.Fprintln(w, strings.TrimRight(line, " ")); err != nil {
			return err
		}
	}
	return nil
}

// displayWidth measures a cell in terminal columns, counting East Asian
// wide runes as two.
func displayWidth(s string) int {
	n := 0
	for _, r := range s {
		switch width.LookupRune(r).Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			n += 2
		default:
			n++
		}
	}
	return n
}

func padCell(s string, w int) string {
	if n := displayWidth(s); n < w {
		return s + strings.Repeat(" ", w-n)
	}
	return s
}
