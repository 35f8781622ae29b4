// Package testutil builds throwaway case stores for tests. The recorder
// writes the same SQLite layout the reader consumes, in any supported
// format version, so version-compatibility suites can record one run many
// ways and compare what comes back.
package testutil

import (
	"database/sql"
	"fmt"
	"sort"

	gojson "github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"

	"github.com/JustinSGray/OpenMDAO/internal/wire"
)

// Var declares one variable of the recorded model.
type Var struct {
	Abs      string
	Prom     string
	Output   bool
	Units    string
	Shape    []int
	Explicit bool
	Lower    []float64 // scalar or per-element; nil = unbounded
	Upper    []float64
	Ref      float64
	Ref0     float64
	ResRef   float64
	Tags     []string // "desvar", "objective", "constraint"
}

// Recorder writes one case store. Calls append rows in order; the global
// counter increments on every recorded case, so recording parent-first
// yields counter-ordered hierarchies.
type Recorder struct {
	db      *sql.DB
	version int
	counter int64
	shapes  map[string][]int
}

// NewRecorder creates the store file at path with the schema of the given
// format version. driver_derivatives and problem_cases exist only from
// version 2 on, matching historical stores.
func NewRecorder(path string, version int) (*Recorder, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}

	blob := "BLOB"
	if version >= 3 {
		blob = "TEXT"
	}
	varSettings := ""
	if version >= 4 {
		varSettings = ", var_settings TEXT"
	}

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE metadata (format_version INTEGER,
			abs2prom %[1]s, prom2abs %[1]s, abs2meta %[1]s%[2]s)`, blob, varSettings),
		`CREATE TABLE driver_iterations (id INTEGER PRIMARY KEY, counter INTEGER,
			iteration_coordinate TEXT, timestamp REAL, success INTEGER, msg TEXT,
			inputs ` + blob + `, outputs ` + blob + `)`,
		`CREATE TABLE system_iterations (id INTEGER PRIMARY KEY, counter INTEGER,
			iteration_coordinate TEXT, timestamp REAL, success INTEGER, msg TEXT,
			inputs ` + blob + `, outputs ` + blob + `, residuals ` + blob + `)`,
		`CREATE TABLE solver_iterations (id INTEGER PRIMARY KEY, counter INTEGER,
			iteration_coordinate TEXT, timestamp REAL, success INTEGER, msg TEXT,
			abs_err REAL, rel_err REAL,
			solver_inputs ` + blob + `, solver_output ` + blob + `, solver_residuals ` + blob + `)`,
		`CREATE TABLE driver_metadata (id TEXT, model_viewer_data ` + blob + `)`,
		`CREATE TABLE system_metadata (id TEXT, scaling_factors ` + blob + `,
			component_metadata ` + blob + `)`,
		`CREATE TABLE solver_metadata (id TEXT, solver_options ` + blob + `,
			solver_class TEXT)`,
	}
	if version >= 2 {
		stmts = append(stmts,
			`CREATE TABLE driver_derivatives (id INTEGER PRIMARY KEY, counter INTEGER,
				iteration_coordinate TEXT, timestamp REAL, success INTEGER, msg TEXT,
				derivatives `+blob+`)`,
			`CREATE TABLE problem_cases (id INTEGER PRIMARY KEY, counter INTEGER,
				case_name TEXT, timestamp REAL, success INTEGER, msg TEXT,
				outputs `+blob+`)`)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}

	return &Recorder{db: db, version: version, shapes: make(map[string][]int)}, nil
}

// Close releases the store file.
func (r *Recorder) Close() error { return r.db.Close() }

func (r *Recorder) next() int64 {
	r.counter++
	return r.counter
}

// WriteMetadata fills the single metadata row from the model's variable
// declarations.
func (r *Recorder) WriteMetadata(vars []Var) error {
	for _, v := range vars {
		shape := v.Shape
		if len(shape) == 0 {
			shape = []int{1}
		}
		r.shapes[v.Abs] = shape
	}

	if r.version >= 3 {
		return r.writeTextMetadata(vars)
	}
	return r.writeLegacyMetadata(vars)
}

func (r *Recorder) writeTextMetadata(vars []Var) error {
	prom := map[string]map[string]string{"input": {}, "output": {}}
	rev := map[string]map[string][]string{"input": {}, "output": {}}
	metas := make(map[string]map[string]any)
	settings := make(map[string]map[string]any)

	for _, v := range vars {
		ns := "input"
		if v.Output {
			ns = "output"
		}
		prom[ns][v.Abs] = v.Prom
		rev[ns][v.Prom] = append(rev[ns][v.Prom], v.Abs)

		m := map[string]any{
			"shape":    r.shapes[v.Abs],
			"explicit": v.Explicit,
			"ref":      v.Ref,
			"ref0":     v.Ref0,
			"res_ref":  v.ResRef,
			"type":     v.Tags,
			"lower":    anyBound(v.Lower),
			"upper":    anyBound(v.Upper),
		}
		if v.Units != "" {
			m["units"] = v.Units
		} else {
			m["units"] = nil
		}
		metas[v.Abs] = m

		if len(v.Tags) > 0 {
			settings[v.Abs] = map[string]any{"type": v.Tags}
		}
	}

	cols := map[string]any{
		"abs2prom": prom,
		"prom2abs": rev,
		"abs2meta": metas,
	}
	encoded := make(map[string]string, len(cols)+1)
	for name, payload := range cols {
		text, err := gojson.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}
		encoded[name] = string(text)
	}

	if r.version >= 4 {
		text, err := gojson.Marshal(settings)
		if err != nil {
			return fmt.Errorf("encode var_settings: %w", err)
		}
		_, err = r.db.Exec(
			"INSERT INTO metadata (format_version, abs2prom, prom2abs, abs2meta, var_settings) VALUES (?, ?, ?, ?, ?)",
			r.version, encoded["abs2prom"], encoded["prom2abs"], encoded["abs2meta"], string(text))
		return err
	}
	_, err := r.db.Exec(
		"INSERT INTO metadata (format_version, abs2prom, prom2abs, abs2meta) VALUES (?, ?, ?, ?)",
		r.version, encoded["abs2prom"], encoded["prom2abs"], encoded["abs2meta"])
	return err
}

func (r *Recorder) writeLegacyMetadata(vars []Var) error {
	nameMap := wire.LegacyNameMap{
		Input:  map[string]string{},
		Output: map[string]string{},
	}
	revMap := wire.LegacyReverseMap{
		Input:  map[string][]string{},
		Output: map[string][]string{},
	}
	metas := make(map[string]wire.LegacyMeta)

	for _, v := range vars {
		if v.Output {
			nameMap.Output[v.Abs] = v.Prom
			revMap.Output[v.Prom] = append(revMap.Output[v.Prom], v.Abs)
		} else {
			nameMap.Input[v.Abs] = v.Prom
			revMap.Input[v.Prom] = append(revMap.Input[v.Prom], v.Abs)
		}
		metas[v.Abs] = wire.LegacyMeta{
			Units:    v.Units,
			Shape:    r.shapes[v.Abs],
			Explicit: v.Explicit,
			Lower:    legacyBound(v.Lower),
			Upper:    legacyBound(v.Upper),
			Ref:      v.Ref,
			Ref0:     v.Ref0,
			ResRef:   v.ResRef,
			Type:     v.Tags,
		}
	}

	prom, err := wire.EncodeNameMap(nameMap)
	if err != nil {
		return err
	}
	rev, err := wire.EncodeReverseMap(revMap)
	if err != nil {
		return err
	}
	meta, err := wire.EncodeMetaMap(metas)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(
		"INSERT INTO metadata (format_version, abs2prom, prom2abs, abs2meta) VALUES (?, ?, ?, ?)",
		r.version, prom, rev, meta)
	return err
}

func anyBound(b []float64) any {
	switch len(b) {
	case 0:
		return nil
	case 1:
		return b[0]
	default:
		return b
	}
}

func legacyBound(b []float64) *wire.LegacyValue {
	if len(b) == 0 {
		return nil
	}
	return &wire.LegacyValue{Shape: []int{len(b)}, Data: b}
}

// encodeValues serializes one name->value payload per the store's format.
// Names are sorted so legacy blobs are reproducible.
func (r *Recorder) encodeValues(vals map[string][]float64) (any, error) {
	if vals == nil {
		return nil, nil
	}
	if r.version >= 3 {
		text, err := gojson.Marshal(vals)
		if err != nil {
			return nil, fmt.Errorf("encode values: %w", err)
		}
		return string(text), nil
	}

	names := make([]string, 0, len(vals))
	for name := range vals {
		names = append(names, name)
	}
	sort.Strings(names)

	rec := wire.LegacyRecord{Names: names}
	for _, name := range names {
		shape := r.shapes[name]
		if shape == nil {
			shape = []int{len(vals[name])}
		}
		rec.Values = append(rec.Values, wire.LegacyValue{Shape: shape, Data: vals[name]})
	}
	blob, err := wire.EncodeRecord(rec)
	if err != nil {
		return nil, err
	}
	return blob, nil
}

// RecordDriverIteration appends one driver case.
func (r *Recorder) RecordDriverIteration(coord string, ts float64, inputs, outputs map[string][]float64) error {
	in, err := r.encodeValues(inputs)
	if err != nil {
		return err
	}
	out, err := r.encodeValues(outputs)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(
		"INSERT INTO driver_iterations (counter, iteration_coordinate, timestamp, success, msg, inputs, outputs) VALUES (?, ?, ?, 1, '', ?, ?)",
		r.next(), coord, ts, in, out)
	return err
}

// RecordSystemIteration appends one system case. Nil maps record as NULL
// columns, matching recorders configured to skip a category.
func (r *Recorder) RecordSystemIteration(coord string, ts float64, inputs, outputs, residuals map[string][]float64) error {
	in, err := r.encodeValues(inputs)
	if err != nil {
		return err
	}
	out, err := r.encodeValues(outputs)
	if err != nil {
		return err
	}
	res, err := r.encodeValues(residuals)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(
		"INSERT INTO system_iterations (counter, iteration_coordinate, timestamp, success, msg, inputs, outputs, residuals) VALUES (?, ?, ?, 1, '', ?, ?, ?)",
		r.next(), coord, ts, in, out, res)
	return err
}

// RecordSolverIteration appends one solver case.
func (r *Recorder) RecordSolverIteration(coord string, ts, absErr, relErr float64, inputs, outputs, residuals map[string][]float64) error {
	in, err := r.encodeValues(inputs)
	if err != nil {
		return err
	}
	out, err := r.encodeValues(outputs)
	if err != nil {
		return err
	}
	res, err := r.encodeValues(residuals)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(
		"INSERT INTO solver_iterations (counter, iteration_coordinate, timestamp, success, msg, abs_err, rel_err, solver_inputs, solver_output, solver_residuals) VALUES (?, ?, ?, 1, '', ?, ?, ?, ?, ?)",
		r.next(), coord, ts, absErr, relErr, in, out, res)
	return err
}

// RecordProblemCase appends one named problem snapshot.
func (r *Recorder) RecordProblemCase(name string, ts float64, outputs map[string][]float64) error {
	out, err := r.encodeValues(outputs)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(
		"INSERT INTO problem_cases (counter, case_name, timestamp, success, msg, outputs) VALUES (?, ?, ?, 1, '', ?)",
		r.next(), name, ts, out)
	return err
}

// RecordDerivatives appends one total-derivative case. Keys are "of!wrt"
// pairs of absolute output names; each value is the flattened jacobian
// block of shape (size of, size wrt).
func (r *Recorder) RecordDerivatives(coord string, ts float64, derivs map[string][]float64) error {
	var payload any
	var err error
	if r.version >= 3 {
		var text []byte
		if text, err = gojson.Marshal(derivs); err != nil {
			return fmt.Errorf("encode derivatives: %w", err)
		}
		payload = string(text)
	} else {
		names := make([]string, 0, len(derivs))
		for name := range derivs {
			names = append(names, name)
		}
		sort.Strings(names)
		rec := wire.LegacyRecord{Names: names}
		for _, name := range names {
			rec.Values = append(rec.Values, wire.LegacyValue{
				Shape: []int{len(derivs[name])},
				Data:  derivs[name],
			})
		}
		if payload, err = wire.EncodeRecord(rec); err != nil {
			return err
		}
	}
	_, err = r.db.Exec(
		"INSERT INTO driver_derivatives (counter, iteration_coordinate, timestamp, success, msg, derivatives) VALUES (?, ?, ?, 1, '', ?)",
		r.next(), coord, ts, payload)
	return err
}

// WriteDriverMetadata stores the driver's model-viewer payload.
func (r *Recorder) WriteDriverMetadata(opts map[string]any) error {
	payload, err := r.encodeOptions(opts)
	if err != nil {
		return err
	}
	_, err = r.db.Exec("INSERT INTO driver_metadata (id, model_viewer_data) VALUES ('driver', ?)", payload)
	return err
}

// WriteSystemMetadata stores one component's scaling factors and options.
func (r *Recorder) WriteSystemMetadata(id string, scaling, options map[string]any) error {
	s, err := r.encodeOptions(scaling)
	if err != nil {
		return err
	}
	o, err := r.encodeOptions(options)
	if err != nil {
		return err
	}
	_, err = r.db.Exec("INSERT INTO system_metadata (id, scaling_factors, component_metadata) VALUES (?, ?, ?)", id, s, o)
	return err
}

// WriteSolverMetadata stores one solver's class name and options.
func (r *Recorder) WriteSolverMetadata(id, class string, opts map[string]any) error {
	o, err := r.encodeOptions(opts)
	if err != nil {
		return err
	}
	_, err = r.db.Exec("INSERT INTO solver_metadata (id, solver_options, solver_class) VALUES (?, ?, ?)", id, o, class)
	return err
}

func (r *Recorder) encodeOptions(opts map[string]any) (any, error) {
	if opts == nil {
		return nil, nil
	}
	if r.version >= 3 {
		text, err := gojson.Marshal(opts)
		if err != nil {
			return nil, fmt.Errorf("encode options: %w", err)
		}
		return string(text), nil
	}
	blob, err := wire.EncodeOptions(opts)
	if err != nil {
		return nil, err
	}
	return blob, nil
}
