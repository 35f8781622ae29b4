package casereader

// Case is one materialized, immutable snapshot of recorded values for a
// single iteration coordinate (or, for problem snapshots, a user-supplied
// case name). Fields are exported for inspection but must be treated as
// read-only after construction; callers that need modified values work on
// clones.
type Case struct {
	// Source is the caller-facing name of whatever recorded this case:
	// "driver", "problem", or a hierarchy location string.
	Source string

	// ID is the iteration coordinate, or the case name for problem cases.
	ID string

	// Counter is the monotonically increasing global iteration counter
	// shared across all categories.
	Counter int64

	// Timestamp is the recording time in seconds since the epoch.
	Timestamp float64

	Success bool
	Message string

	// AbsErr and RelErr are recorded for solver iterations only.
	AbsErr *float64
	RelErr *float64

	// Inputs, Outputs and Residuals are nil when the corresponding
	// category was not recorded for this case.
	Inputs    *ValueMap
	Outputs   *ValueMap
	Residuals *ValueMap

	// Jacobian holds recorded total derivatives. It is populated for
	// driver-derivative rows, and attached to a driver case when the
	// store also recorded derivatives at the same coordinate.
	Jacobian *Jacobian

	cat *Catalog
}

// taggedOutputValues collects recorded output values whose catalog entry
// carries tag, keyed by promoted name.
func (c *Case) taggedOutputValues(tag string) map[string]*Value {
	out := make(map[string]*Value)
	if c.Outputs == nil {
		return out
	}
	for _, abs := range c.cat.taggedOutputs(tag) {
		if v, ok := c.Outputs.vals[abs]; ok {
			out[c.cat.promoted(kindOutput, abs)] = v
		}
	}
	return out
}

// DesignVariables returns the recorded design variable values as seen by
// the driver, keyed by promoted name.
func (c *Case) DesignVariables() map[string]*Value {
	return c.taggedOutputValues("desvar")
}

// Objectives returns the recorded objective values, keyed by promoted name.
func (c *Case) Objectives() map[string]*Value {
	return c.taggedOutputValues("objective")
}

// Constraints returns the recorded constraint values, keyed by promoted name.
func (c *Case) Constraints() map[string]*Value {
	return c.taggedOutputValues("constraint")
}

// Responses returns the recorded objective and constraint values together,
// keyed by promoted name.
func (c *Case) Responses() map[string]*Value {
	out := c.taggedOutputValues("objective")
	for name, v := range c.taggedOutputValues("constraint") {
		out[name] = v
	}
	return out
}
