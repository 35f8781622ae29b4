package casereader

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Category identifies one of the five recorded event kinds. Each category
// has its own table and coordinate key space.
type Category int

const (
	CategoryDriver Category = iota
	CategoryDerivative
	CategorySystem
	CategorySolver
	CategoryProblem
)

func (c Category) String() string {
	switch c {
	case CategoryDriver:
		return "driver"
	case CategoryDerivative:
		return "driver_derivative"
	case CategorySystem:
		return "system"
	case CategorySolver:
		return "solver"
	case CategoryProblem:
		return "problem"
	}
	return fmt.Sprintf("Category(%d)", int(c))
}

// table returns the backing table name.
func (c Category) table() string {
	switch c {
	case CategoryDriver:
		return "driver_iterations"
	case CategoryDerivative:
		return "driver_derivatives"
	case CategorySystem:
		return "system_iterations"
	case CategorySolver:
		return "solver_iterations"
	case CategoryProblem:
		return "problem_cases"
	}
	return ""
}

// keyColumn returns the column a point lookup filters on.
func (c Category) keyColumn() string {
	if c == CategoryProblem {
		return "case_name"
	}
	return "iteration_coordinate"
}

// selectColumns returns the column list extractCase expects to scan, in
// table order.
func (c Category) selectColumns() string {
	switch c {
	case CategoryDriver:
		return "counter, iteration_coordinate, timestamp, success, msg, inputs, outputs"
	case CategoryDerivative:
		return "counter, iteration_coordinate, timestamp, success, msg, derivatives"
	case CategorySystem:
		return "counter, iteration_coordinate, timestamp, success, msg, inputs, outputs, residuals"
	case CategorySolver:
		return "counter, iteration_coordinate, timestamp, success, msg, abs_err, rel_err, " +
			"solver_inputs, solver_output, solver_residuals"
	case CategoryProblem:
		return "counter, case_name, timestamp, success, msg, outputs"
	}
	return ""
}

// CategoryStore owns one category's ordered coordinate list, fetches and
// decodes rows into Cases on demand, and keeps an optional cache keyed by
// coordinate. The coordinate list is a snapshot taken at open time; a store
// appended to after open requires a reopen.
//
// The cache is unbounded and unlocked: practical store sizes are bounded by
// a single run, and access is single-threaded.
type CategoryStore struct {
	db       *sql.DB
	category Category
	version  int
	cat      *Catalog

	keys   []string
	coords []Coordinate // parsed forms of keys, same order
	index  map[string]int
	cache  map[string]*Case
}

func newCategoryStore(db *sql.DB, category Category, version int, cat *Catalog) *CategoryStore {
	return &CategoryStore{
		db:       db,
		category: category,
		version:  version,
		cat:      cat,
		index:    make(map[string]int),
		cache:    make(map[string]*Case),
	}
}

// loadKeys reads the category's ordered key list. Tables that legitimately
// do not exist for old formats (driver_derivatives before version 2, and
// problem_cases in the earliest format-1 stores) load as empty; for newer
// formats their absence is an error.
func (s *CategoryStore) loadKeys(ctx context.Context) error {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY id ASC",
		s.category.keyColumn(), s.category.table())

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		if isMissingTable(err) && s.tableOptional() {
			return nil
		}
		return fmt.Errorf("load %s keys: %w", s.category, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return fmt.Errorf("scan %s key: %w", s.category, err)
		}
		s.index[key] = len(s.keys)
		s.keys = append(s.keys, key)
		s.coords = append(s.coords, ParseCoordinate(key))
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate %s keys: %w", s.category, err)
	}
	return nil
}

// tableOptional reports whether a missing backing table is tolerated for
// this category and format version.
func (s *CategoryStore) tableOptional() bool {
	switch s.category {
	case CategoryDerivative, CategoryProblem:
		return s.version < 2
	}
	return false
}

func isMissingTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

// Len returns the number of recorded cases in this category.
func (s *CategoryStore) Len() int { return len(s.keys) }

// List returns the ordered key list (coordinates, or names for problem
// cases). The returned slice is a copy.
func (s *CategoryStore) List() []string {
	return append([]string(nil), s.keys...)
}

// contains reports whether key identifies a recorded case.
func (s *CategoryStore) contains(key string) bool {
	_, ok := s.index[key]
	return ok
}

// Get materializes the case for one key. With useCache, a previously
// constructed Case is returned as-is and a fresh one is stored before
// returning; without it, every call re-reads and re-decodes. A key with no
// matching row fails with ErrCaseNotFound.
func (s *CategoryStore) Get(ctx context.Context, key string, useCache bool) (*Case, error) {
	if useCache {
		if c, ok := s.cache[key]; ok {
			return c, nil
		}
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?",
		s.category.selectColumns(), s.category.table(), s.category.keyColumn())

	row := s.db.QueryRowContext(ctx, query, key)
	c, err := s.extractCase(row)
	if err == sql.ErrNoRows {
		return nil, caseNotFound(s.category, key)
	}
	if err != nil {
		return nil, err
	}

	if useCache {
		s.cache[key] = c
	}
	return c, nil
}

// Cases returns a lazy sequence over every case in this category, in store
// order. The sequence is restartable: each call resolves against the key
// snapshot and issues fresh point queries as it advances. With cached, each
// materialized case also populates the cache.
func (s *CategoryStore) Cases(ctx context.Context, cached bool) *CaseSeq {
	refs := make([]caseRef, len(s.keys))
	for i, key := range s.keys {
		refs[i] = caseRef{store: s, key: key}
	}
	return &CaseSeq{ctx: ctx, refs: refs, cache: cached}
}

// scanner abstracts sql.Row and sql.Rows for extractCase.
type scanner interface {
	Scan(dest ...any) error
}

// extractCase pulls one queried row into a Case, dispatching the value
// decode on the format version.
func (s *CategoryStore) extractCase(row scanner) (*Case, error) {
	table := s.category.table()

	switch s.category {
	case CategoryDriver:
		var (
			c               Case
			success         int
			inputs, outputs []byte
		)
		if err := row.Scan(&c.Counter, &c.ID, &c.Timestamp, &success, &c.Message,
			&inputs, &outputs); err != nil {
			return nil, err
		}
		c.Success = success != 0
		c.Source = "driver"
		c.cat = s.cat
		var err error
		if c.Inputs, err = decodeValueRecord(s.version, s.cat, table, c.ID, inputs, kindInput); err != nil {
			return nil, err
		}
		if c.Outputs, err = decodeValueRecord(s.version, s.cat, table, c.ID, outputs, kindOutput); err != nil {
			return nil, err
		}
		return &c, nil

	case CategoryDerivative:
		var (
			c       Case
			success int
			totals  []byte
		)
		if err := row.Scan(&c.Counter, &c.ID, &c.Timestamp, &success, &c.Message,
			&totals); err != nil {
			return nil, err
		}
		c.Success = success != 0
		c.Source = "driver"
		c.cat = s.cat
		var err error
		if c.Jacobian, err = decodeJacobianRecord(s.version, s.cat, table, c.ID, totals); err != nil {
			return nil, err
		}
		return &c, nil

	case CategorySystem:
		var (
			c                          Case
			success                    int
			inputs, outputs, residuals []byte
		)
		if err := row.Scan(&c.Counter, &c.ID, &c.Timestamp, &success, &c.Message,
			&inputs, &outputs, &residuals); err != nil {
			return nil, err
		}
		c.Success = success != 0
		c.Source = ParseCoordinate(c.ID).systemSource()
		c.cat = s.cat
		var err error
		if c.Inputs, err = decodeValueRecord(s.version, s.cat, table, c.ID, inputs, kindInput); err != nil {
			return nil, err
		}
		if c.Outputs, err = decodeValueRecord(s.version, s.cat, table, c.ID, outputs, kindOutput); err != nil {
			return nil, err
		}
		if c.Residuals, err = decodeValueRecord(s.version, s.cat, table, c.ID, residuals, kindOutput); err != nil {
			return nil, err
		}
		return &c, nil

	case CategorySolver:
		var (
			c                          Case
			success                    int
			absErr, relErr             sql.NullFloat64
			inputs, outputs, residuals []byte
		)
		if err := row.Scan(&c.Counter, &c.ID, &c.Timestamp, &success, &c.Message,
			&absErr, &relErr, &inputs, &outputs, &residuals); err != nil {
			return nil, err
		}
		c.Success = success != 0
		c.Source = ParseCoordinate(c.ID).solverSource()
		c.cat = s.cat
		if absErr.Valid {
			c.AbsErr = &absErr.Float64
		}
		if relErr.Valid {
			c.RelErr = &relErr.Float64
		}
		var err error
		if c.Inputs, err = decodeValueRecord(s.version, s.cat, table, c.ID, inputs, kindInput); err != nil {
			return nil, err
		}
		if c.Outputs, err = decodeValueRecord(s.version, s.cat, table, c.ID, outputs, kindOutput); err != nil {
			return nil, err
		}
		if c.Residuals, err = decodeValueRecord(s.version, s.cat, table, c.ID, residuals, kindOutput); err != nil {
			return nil, err
		}
		return &c, nil

	case CategoryProblem:
		var (
			c       Case
			success int
			outputs []byte
		)
		if err := row.Scan(&c.Counter, &c.ID, &c.Timestamp, &success, &c.Message,
			&outputs); err != nil {
			return nil, err
		}
		c.Success = success != 0
		c.Source = "problem"
		c.cat = s.cat
		var err error
		if c.Outputs, err = decodeValueRecord(s.version, s.cat, table, c.ID, outputs, kindOutput); err != nil {
			return nil, err
		}
		return &c, nil
	}

	return nil, fmt.Errorf("unknown category %v", s.category)
}

// caseRef is one pending entry of a CaseSeq.
type caseRef struct {
	store *CategoryStore
	key   string
}

// CaseSeq is a forward-only sequence of materialized Cases, in the style of
// sql.Rows: advance with Next, read with Case, and check Err afterwards.
// Materialization is lazy (one point query per step), so a decode failure
// on any element surfaces through Err and terminates the sequence.
type CaseSeq struct {
	ctx   context.Context
	refs  []caseRef
	cache bool
	idx   int
	cur   *Case
	err   error
}

// Next advances to the next case. It returns false when the sequence is
// exhausted or an error occurred.
func (s *CaseSeq) Next() bool {
	if s.err != nil || s.idx >= len(s.refs) {
		return false
	}
	ref := s.refs[s.idx]
	s.idx++
	c, err := ref.store.Get(s.ctx, ref.key, s.cache)
	if err != nil {
		s.err = err
		s.cur = nil
		return false
	}
	s.cur = c
	return true
}

// Case returns the current case. Valid only after a true Next.
func (s *CaseSeq) Case() *Case { return s.cur }

// Err returns the first error encountered while advancing.
func (s *CaseSeq) Err() error { return s.err }
