package casereader

import (
	"database/sql"
	"fmt"
	"sort"

	gojson "github.com/goccy/go-json"

	"github.com/JustinSGray/OpenMDAO/internal/wire"
)

// VarMeta is the catalog entry for one absolute variable name. Entries are
// built once at open time and read-only afterward.
type VarMeta struct {
	Units    string
	Shape    []int
	Explicit bool
	Lower    *Value // broadcast to Shape; nil if unbounded
	Upper    *Value
	Ref      float64
	Ref0     float64
	ResRef   float64
	Tags     []string // e.g. "output", "desvar", "objective", "constraint"
}

// HasTag reports whether the variable carries the given kind tag.
func (m *VarMeta) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// SystemMetadata is the recorded per-component configuration.
type SystemMetadata struct {
	ScalingFactors map[string]any
	Options        map[string]any
}

// SolverMetadata is the recorded per-solver configuration.
type SolverMetadata struct {
	SolverClass string
	Options     map[string]any
}

// Catalog holds everything read from the store's metadata tables: variable
// metadata, the directional absolute<->promoted name maps (kept separately
// for inputs and outputs because promoted names can collide across the two
// namespaces), driver variable settings, and the per-component and
// per-solver option records.
//
// The catalog is the only component besides the value decoder that is
// allowed to branch on the format version; everything downstream consumes
// already-decoded data.
type Catalog struct {
	abs2meta map[string]*VarMeta
	abs2prom [2]map[string]string   // indexed by ioKind
	prom2abs [2]map[string][]string // indexed by ioKind

	// varSettings exists only for format versions >= 4.
	varSettings map[string]map[string]any

	driverOptions map[string]any
	systemOptions map[string]SystemMetadata
	solverOptions map[string]SolverMetadata
}

// jsonMeta is the self-describing text form of one abs2meta entry.
type jsonMeta struct {
	Units    *string  `json:"units"`
	Shape    []int    `json:"shape"`
	Explicit bool     `json:"explicit"`
	Lower    any      `json:"lower"`
	Upper    any      `json:"upper"`
	Ref      float64  `json:"ref"`
	Ref0     float64  `json:"ref0"`
	ResRef   float64  `json:"res_ref"`
	Type     []string `json:"type"`
}

// buildCatalog reads the single metadata row plus the driver/system/solver
// metadata tables, dispatching decode on the store's format version.
func buildCatalog(db *sql.DB, version int) (*Catalog, error) {
	c := &Catalog{
		abs2meta:      make(map[string]*VarMeta),
		systemOptions: make(map[string]SystemMetadata),
		solverOptions: make(map[string]SolverMetadata),
	}
	for k := range c.abs2prom {
		c.abs2prom[k] = make(map[string]string)
		c.prom2abs[k] = make(map[string][]string)
	}

	var err error
	if version >= 3 {
		err = c.loadTextMaps(db, version)
	} else {
		err = c.loadLegacyMaps(db)
	}
	if err != nil {
		return nil, err
	}

	if err := c.loadOptionTables(db, version); err != nil {
		return nil, err
	}
	return c, nil
}

// loadTextMaps reads the self-describing JSON metadata columns (version 3+).
// var_settings only exists from version 4 on.
func (c *Catalog) loadTextMaps(db *sql.DB, version int) error {
	var abs2prom, prom2abs, abs2meta, varSettings string

	var err error
	if version >= 4 {
		err = db.QueryRow(
			"SELECT abs2prom, prom2abs, abs2meta, var_settings FROM metadata").
			Scan(&abs2prom, &prom2abs, &abs2meta, &varSettings)
	} else {
		err = db.QueryRow(
			"SELECT abs2prom, prom2abs, abs2meta FROM metadata").
			Scan(&abs2prom, &prom2abs, &abs2meta)
	}
	if err != nil {
		return fmt.Errorf("read metadata row: %w", err)
	}

	var prom struct {
		Input  map[string]string `json:"input"`
		Output map[string]string `json:"output"`
	}
	if err := gojson.Unmarshal([]byte(abs2prom), &prom); err != nil {
		return fmt.Errorf("decode abs2prom: %w", err)
	}
	c.abs2prom[kindInput] = prom.Input
	c.abs2prom[kindOutput] = prom.Output

	var rev struct {
		Input  map[string][]string `json:"input"`
		Output map[string][]string `json:"output"`
	}
	if err := gojson.Unmarshal([]byte(prom2abs), &rev); err != nil {
		return fmt.Errorf("decode prom2abs: %w", err)
	}
	c.prom2abs[kindInput] = rev.Input
	c.prom2abs[kindOutput] = rev.Output

	var metas map[string]jsonMeta
	if err := gojson.Unmarshal([]byte(abs2meta), &metas); err != nil {
		return fmt.Errorf("decode abs2meta: %w", err)
	}
	for name, jm := range metas {
		vm := &VarMeta{
			Shape:    jm.Shape,
			Explicit: jm.Explicit,
			Ref:      jm.Ref,
			Ref0:     jm.Ref0,
			ResRef:   jm.ResRef,
			Tags:     jm.Type,
		}
		if jm.Units != nil {
			vm.Units = *jm.Units
		}
		if len(vm.Shape) == 0 {
			vm.Shape = []int{1}
		}
		var err error
		if vm.Lower, err = boundValue(jm.Lower, vm.Shape, name); err != nil {
			return fmt.Errorf("decode abs2meta: %w", err)
		}
		if vm.Upper, err = boundValue(jm.Upper, vm.Shape, name); err != nil {
			return fmt.Errorf("decode abs2meta: %w", err)
		}
		c.abs2meta[name] = vm
	}

	if version >= 4 && varSettings != "" {
		if err := gojson.Unmarshal([]byte(varSettings), &c.varSettings); err != nil {
			return fmt.Errorf("decode var_settings: %w", err)
		}
	}
	return nil
}

// loadLegacyMaps reads the gob-encoded metadata columns (versions 1-2).
// var_settings does not exist before version 4 and defaults to absent.
func (c *Catalog) loadLegacyMaps(db *sql.DB) error {
	var abs2prom, prom2abs, abs2meta []byte
	err := db.QueryRow(
		"SELECT abs2prom, prom2abs, abs2meta FROM metadata").
		Scan(&abs2prom, &prom2abs, &abs2meta)
	if err != nil {
		return fmt.Errorf("read metadata row: %w", err)
	}

	nameMap, err := wire.DecodeNameMap(abs2prom)
	if err != nil {
		return err
	}
	c.abs2prom[kindInput] = nameMap.Input
	c.abs2prom[kindOutput] = nameMap.Output

	revMap, err := wire.DecodeReverseMap(prom2abs)
	if err != nil {
		return err
	}
	c.prom2abs[kindInput] = revMap.Input
	c.prom2abs[kindOutput] = revMap.Output

	metas, err := wire.DecodeMetaMap(abs2meta)
	if err != nil {
		return err
	}
	for name, lm := range metas {
		vm := &VarMeta{
			Units:    lm.Units,
			Shape:    lm.Shape,
			Explicit: lm.Explicit,
			Ref:      lm.Ref,
			Ref0:     lm.Ref0,
			ResRef:   lm.ResRef,
			Tags:     lm.Type,
		}
		if len(vm.Shape) == 0 {
			vm.Shape = []int{1}
		}
		if lm.Lower != nil {
			v := &Value{Shape: lm.Lower.Shape, Data: lm.Lower.Data}
			if vm.Lower, err = broadcastTo(v, vm.Shape, name); err != nil {
				return err
			}
		}
		if lm.Upper != nil {
			v := &Value{Shape: lm.Upper.Shape, Data: lm.Upper.Data}
			if vm.Upper, err = broadcastTo(v, vm.Shape, name); err != nil {
				return err
			}
		}
		c.abs2meta[name] = vm
	}
	return nil
}

// boundValue converts a JSON-decoded bound (null, scalar, or nested array)
// into a value broadcast to the variable's shape.
func boundValue(raw any, shape []int, name string) (*Value, error) {
	if raw == nil {
		return nil, nil
	}
	data, err := flattenJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("variable %q bound: %w", name, err)
	}
	return broadcastTo(&Value{Shape: []int{len(data)}, Data: data}, shape, name)
}

// loadOptionTables reads the driver/system/solver metadata tables. Rows may
// be absent (nothing recorded options); that is not an error.
func (c *Catalog) loadOptionTables(db *sql.DB, version int) error {
	var raw []byte
	err := db.QueryRow("SELECT model_viewer_data FROM driver_metadata").Scan(&raw)
	switch {
	case err == sql.ErrNoRows:
		// no driver metadata recorded
	case err != nil:
		return fmt.Errorf("read driver_metadata: %w", err)
	default:
		opts, err := decodeOptions(version, raw)
		if err != nil {
			return fmt.Errorf("driver_metadata: %w", err)
		}
		c.driverOptions = opts
	}

	rows, err := db.Query("SELECT id, scaling_factors, component_metadata FROM system_metadata")
	if err != nil {
		return fmt.Errorf("read system_metadata: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var scaling, comp []byte
		if err := rows.Scan(&id, &scaling, &comp); err != nil {
			return fmt.Errorf("scan system_metadata: %w", err)
		}
		var sm SystemMetadata
		if sm.ScalingFactors, err = decodeOptions(version, scaling); err != nil {
			return fmt.Errorf("system_metadata %q: %w", id, err)
		}
		if sm.Options, err = decodeOptions(version, comp); err != nil {
			return fmt.Errorf("system_metadata %q: %w", id, err)
		}
		c.systemOptions[id] = sm
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate system_metadata: %w", err)
	}

	srows, err := db.Query("SELECT id, solver_options, solver_class FROM solver_metadata")
	if err != nil {
		return fmt.Errorf("read solver_metadata: %w", err)
	}
	defer srows.Close()
	for srows.Next() {
		var id, class string
		var opts []byte
		if err := srows.Scan(&id, &opts, &class); err != nil {
			return fmt.Errorf("scan solver_metadata: %w", err)
		}
		sm := SolverMetadata{SolverClass: class}
		if sm.Options, err = decodeOptions(version, opts); err != nil {
			return fmt.Errorf("solver_metadata %q: %w", id, err)
		}
		c.solverOptions[id] = sm
	}
	if err := srows.Err(); err != nil {
		return fmt.Errorf("iterate solver_metadata: %w", err)
	}

	return nil
}

// decodeOptions decodes one options payload per the format version.
func decodeOptions(version int, raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if version >= 3 {
		var opts map[string]any
		if err := gojson.Unmarshal(raw, &opts); err != nil {
			return nil, fmt.Errorf("decode options: %w", err)
		}
		return opts, nil
	}
	return wire.DecodeOptions(raw)
}

// Meta returns the catalog entry for name, trying the name as absolute
// first, then as a promoted output, then as a promoted input.
func (c *Catalog) Meta(name string) (*VarMeta, error) {
	if m, ok := c.abs2meta[name]; ok {
		return m, nil
	}
	if abs, err := c.absolute(kindOutput, name); err == nil {
		return c.abs2meta[abs], nil
	}
	if abs, err := c.absolute(kindInput, name); err == nil {
		return c.abs2meta[abs], nil
	}
	return nil, unknownVariable(name, "no catalog entry")
}

// OutputMeta resolves name in the output namespace.
func (c *Catalog) OutputMeta(name string) (*VarMeta, error) {
	abs, err := c.absolute(kindOutput, name)
	if err != nil {
		return nil, err
	}
	return c.abs2meta[abs], nil
}

// InputMeta resolves name in the input namespace.
func (c *Catalog) InputMeta(name string) (*VarMeta, error) {
	abs, err := c.absolute(kindInput, name)
	if err != nil {
		return nil, err
	}
	return c.abs2meta[abs], nil
}

// absolute resolves a (possibly promoted) name to its absolute form within
// one namespace. Already-absolute names pass through unchanged; ambiguous
// promoted names fail.
func (c *Catalog) absolute(kind ioKind, name string) (string, error) {
	if _, ok := c.abs2meta[name]; ok {
		return name, nil
	}
	abs := c.prom2abs[kind][name]
	switch len(abs) {
	case 0:
		return "", unknownVariable(name, "no "+kind.String()+" with this name")
	case 1:
		return abs[0], nil
	default:
		return "", unknownVariable(name, "promoted "+kind.String()+" name is ambiguous")
	}
}

// promoted returns the promoted form of an absolute name, or the name
// itself when no mapping exists.
func (c *Catalog) promoted(kind ioKind, abs string) string {
	if p, ok := c.abs2prom[kind][abs]; ok {
		return p
	}
	return abs
}

// Settings returns the driver variable settings for an absolute name
// (format versions >= 4; nil otherwise).
func (c *Catalog) Settings(abs string) map[string]any {
	return c.varSettings[abs]
}

// taggedOutputs returns the sorted absolute names of outputs carrying tag.
func (c *Catalog) taggedOutputs(tag string) []string {
	var names []string
	for name, m := range c.abs2meta {
		if m.HasTag(tag) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
