package casereader

import (
	"context"
	"database/sql"
	"fmt"
)

// FormatVersion is the newest store format this reader understands. Stores
// tagged with a higher version fail at Open with
// UnsupportedFormatVersionError.
const FormatVersion = 4

// Source names for the two categories that are not keyed by hierarchy
// location.
const (
	SourceDriver  = "driver"
	SourceProblem = "problem"
)

// Reader is the read-only query surface over one case store. Open builds
// the metadata catalog and each category's ordered coordinate list once;
// individual cases materialize lazily on access. The coordinate snapshots
// are not refreshed, so a store appended to after Open needs a reopen to
// surface new rows.
//
// A Reader is not safe for concurrent use.
type Reader struct {
	db      *sql.DB
	version int
	cat     *Catalog

	driver  *CategoryStore
	deriv   *CategoryStore
	system  *CategoryStore
	solver  *CategoryStore
	problem *CategoryStore

	h       *hierarchy
	sources []string
}

// Open validates and opens the case store at path. It fails with
// ErrInvalidStore when the file is missing or not a SQLite case store, and
// with UnsupportedFormatVersionError when the store's format tag is outside
// the supported range.
func Open(path string) (*Reader, error) {
	db, err := openStore(path)
	if err != nil {
		return nil, err
	}

	version, err := readFormatVersion(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	cat, err := buildCatalog(db, version)
	if err != nil {
		db.Close()
		return nil, err
	}

	r := &Reader{
		db:      db,
		version: version,
		cat:     cat,
		driver:  newCategoryStore(db, CategoryDriver, version, cat),
		deriv:   newCategoryStore(db, CategoryDerivative, version, cat),
		system:  newCategoryStore(db, CategorySystem, version, cat),
		solver:  newCategoryStore(db, CategorySolver, version, cat),
		problem: newCategoryStore(db, CategoryProblem, version, cat),
	}

	ctx := context.Background()
	for _, s := range r.stores() {
		if err := s.loadKeys(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}

	r.h = &hierarchy{driver: r.driver, deriv: r.deriv, system: r.system, solver: r.solver}
	r.sources = r.computeSources()
	return r, nil
}

// Close releases the store connection.
func (r *Reader) Close() error {
	return r.db.Close()
}

// FormatVersion returns the store's format tag.
func (r *Reader) FormatVersion() int { return r.version }

// Catalog returns the store's metadata catalog.
func (r *Reader) Catalog() *Catalog { return r.cat }

func (r *Reader) stores() []*CategoryStore {
	return []*CategoryStore{r.driver, r.deriv, r.system, r.solver, r.problem}
}

// computeSources derives the caller-facing source names once at open:
// "driver" and "problem" when those categories recorded anything, then one
// hierarchy location per distinct system and solver, in first-seen order.
func (r *Reader) computeSources() []string {
	sources := []string{}
	if r.driver.Len() > 0 {
		sources = append(sources, SourceDriver)
	}
	if r.problem.Len() > 0 {
		sources = append(sources, SourceProblem)
	}
	seen := make(map[string]bool)
	for _, c := range r.system.coords {
		if src := c.systemSource(); !seen[src] {
			seen[src] = true
			sources = append(sources, src)
		}
	}
	for _, c := range r.solver.coords {
		if src := c.solverSource(); !seen[src] {
			seen[src] = true
			sources = append(sources, src)
		}
	}
	return sources
}

// ListSources returns the source names with recorded cases. An empty store
// yields an empty slice.
func (r *Reader) ListSources() []string {
	return append([]string{}, r.sources...)
}

// sourceRefs resolves a source string to the ordered top-level entries
// recorded under it. "driver" and "problem" are always valid, even when
// empty; a hierarchy location matches the system or solver coordinates it
// was derived from; any other string must be a recorded coordinate, looked
// up across categories in priority order. Anything else fails with
// ErrSourceNotFound.
func (r *Reader) sourceRefs(source string) ([]caseRef, error) {
	switch source {
	case SourceDriver:
		return storeRefs(r.driver), nil
	case SourceProblem:
		return storeRefs(r.problem), nil
	}

	var refs []caseRef
	for i, c := range r.system.coords {
		if c.systemSource() == source {
			refs = append(refs, caseRef{store: r.system, key: r.system.keys[i]})
		}
	}
	for i, c := range r.solver.coords {
		if c.solverSource() == source {
			refs = append(refs, caseRef{store: r.solver, key: r.solver.keys[i]})
		}
	}
	if len(refs) > 0 {
		return refs, nil
	}

	for _, s := range []*CategoryStore{r.driver, r.solver, r.system, r.problem} {
		if s.contains(source) {
			return []caseRef{{store: s, key: source}}, nil
		}
	}
	return nil, fmt.Errorf("source %q: %w", source, ErrSourceNotFound)
}

func storeRefs(s *CategoryStore) []caseRef {
	refs := make([]caseRef, len(s.keys))
	for i, key := range s.keys {
		refs[i] = caseRef{store: s, key: key}
	}
	return refs
}

// expandRefs appends each entry's descendants immediately after it,
// parent-first depth-first. Problem cases are keyed by name rather than
// coordinate and never have descendants.
func (r *Reader) expandRefs(refs []caseRef, recurse bool) []caseRef {
	if !recurse {
		return refs
	}
	lengths := r.h.coordLengths()
	var out []caseRef
	for _, ref := range refs {
		out = append(out, ref)
		if ref.store == r.problem {
			continue
		}
		var kids []childRef
		r.h.descend(&kids, ParseCoordinate(ref.key), lengths, true)
		for _, k := range kids {
			out = append(out, caseRef{store: r.h.store(k.category), key: k.coord.String()})
		}
	}
	return out
}

// ListCases returns the coordinates (or names) recorded under source, in
// store order. With recurse, each entry is followed immediately by its
// descendants.
func (r *Reader) ListCases(source string, recurse bool) ([]string, error) {
	refs, err := r.sourceRefs(source)
	if err != nil {
		return nil, err
	}
	refs = r.expandRefs(refs, recurse)

	keys := make([]string, len(refs))
	for i, ref := range refs {
		keys[i] = ref.key
	}
	return keys, nil
}

// ListCaseTree returns the nested form of ListCases: a root node naming the
// source, whose children are the source's top-level cases with their
// descendants nested beneath them in discovery order.
func (r *Reader) ListCaseTree(source string) (*CoordNode, error) {
	refs, err := r.sourceRefs(source)
	if err != nil {
		return nil, err
	}
	lengths := r.h.coordLengths()

	root := &CoordNode{Coord: source}
	for _, ref := range refs {
		node := &CoordNode{Coord: ref.key}
		if ref.store != r.problem {
			node.Children = r.h.coordSubtree(ParseCoordinate(ref.key), lengths)
		}
		root.Children = append(root.Children, node)
	}
	return root, nil
}

// GetCase materializes the case recorded under id, which is an iteration
// coordinate or a problem case name, searched across categories in
// priority order. A driver case picks up the jacobian recorded at the same
// coordinate, if any. With cache, the materialized case is retained and
// returned on later calls.
func (r *Reader) GetCase(ctx context.Context, id string, cache bool) (*Case, error) {
	for _, s := range []*CategoryStore{r.driver, r.solver, r.system, r.problem, r.deriv} {
		if !s.contains(id) {
			continue
		}
		c, err := s.Get(ctx, id, cache)
		if err != nil {
			return nil, err
		}
		if s == r.driver && r.deriv.contains(id) {
			dc, err := r.deriv.Get(ctx, id, cache)
			if err != nil {
				return nil, err
			}
			c.Jacobian = dc.Jacobian
		}
		return c, nil
	}
	return nil, fmt.Errorf("case %q: %w", id, ErrCaseNotFound)
}

// GetCases returns a lazy sequence over the cases recorded under source, in
// the same order as ListCases. The sequence issues fresh queries as it
// advances and populates the per-category caches; re-requesting it restarts
// from the beginning. A decode failure on any entry surfaces through the
// sequence's Err and terminates it.
func (r *Reader) GetCases(ctx context.Context, source string, recurse bool) (*CaseSeq, error) {
	refs, err := r.sourceRefs(source)
	if err != nil {
		return nil, err
	}
	refs = r.expandRefs(refs, recurse)
	return &CaseSeq{ctx: ctx, refs: refs, cache: true}, nil
}

// GetCaseTree eagerly materializes the nested form of GetCases. The
// returned root node has a nil Case and stands for the source itself; its
// children are the source's top-level cases with descendants nested in
// discovery order. One bad descendant fails the whole call.
func (r *Reader) GetCaseTree(ctx context.Context, source string) (*CaseNode, error) {
	refs, err := r.sourceRefs(source)
	if err != nil {
		return nil, err
	}
	lengths := r.h.coordLengths()

	root := &CaseNode{}
	for _, ref := range refs {
		c, err := ref.store.Get(ctx, ref.key, true)
		if err != nil {
			return nil, err
		}
		node := &CaseNode{Case: c}
		if ref.store != r.problem {
			if node.Children, err = r.caseSubtree(ctx, ParseCoordinate(ref.key), lengths); err != nil {
				return nil, err
			}
		}
		root.Children = append(root.Children, node)
	}
	return root, nil
}

func (r *Reader) caseSubtree(ctx context.Context, parent Coordinate, lengths []int) ([]*CaseNode, error) {
	var nodes []*CaseNode
	for _, ref := range r.h.directChildren(parent, lengths) {
		c, err := r.h.store(ref.category).Get(ctx, ref.coord.String(), true)
		if err != nil {
			return nil, err
		}
		kids, err := r.caseSubtree(ctx, ref.coord, lengths)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, &CaseNode{Case: c, Children: kids})
	}
	return nodes, nil
}

// ListSourceVars returns the promoted input and output names recorded for
// source, taken from its first recorded case. A source with no cases yields
// empty slices.
func (r *Reader) ListSourceVars(source string) (inputs, outputs []string, err error) {
	refs, err := r.sourceRefs(source)
	if err != nil {
		return nil, nil, err
	}
	inputs, outputs = []string{}, []string{}
	if len(refs) == 0 {
		return inputs, outputs, nil
	}
	c, err := refs[0].store.Get(context.Background(), refs[0].key, false)
	if err != nil {
		return nil, nil, err
	}
	if c.Inputs != nil {
		inputs = c.Inputs.PromotedNames()
	}
	if c.Outputs != nil {
		outputs = c.Outputs.PromotedNames()
	}
	return inputs, outputs, nil
}

// LoadCases materializes every recorded case into the per-category caches,
// so later cached lookups never touch the store.
func (r *Reader) LoadCases(ctx context.Context) error {
	for _, s := range r.stores() {
		for _, key := range s.keys {
			if _, err := s.Get(ctx, key, true); err != nil {
				return err
			}
		}
	}
	return nil
}

// DriverMetadata returns the recorded driver configuration, or nil when
// none was recorded.
func (r *Reader) DriverMetadata() map[string]any { return r.cat.driverOptions }

// SystemMetadata returns the recorded per-component configuration, keyed by
// system path.
func (r *Reader) SystemMetadata() map[string]SystemMetadata { return r.cat.systemOptions }

// SolverMetadata returns the recorded per-solver configuration, keyed by
// solver location.
func (r *Reader) SolverMetadata() map[string]SolverMetadata { return r.cat.solverOptions }
