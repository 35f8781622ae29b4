package casereader

import (
	"fmt"
	"strings"
)

// ioKind selects the input or output namespace when resolving names.
// The same promoted name can exist in both namespaces, so every map and
// lookup is tagged with a direction.
type ioKind int

const (
	kindInput ioKind = iota
	kindOutput
)

func (k ioKind) String() string {
	if k == kindInput {
		return "input"
	}
	return "output"
}

// Value is one recorded variable value: a flat float64 buffer plus the shape
// it should be viewed with. A scalar has Shape [1].
type Value struct {
	Shape []int
	Data  []float64
}

// Size returns the number of elements implied by the shape.
func (v *Value) Size() int {
	n := 1
	for _, d := range v.Shape {
		n *= d
	}
	return n
}

// Scalar returns the single element of a size-1 value.
func (v *Value) Scalar() (float64, bool) {
	if len(v.Data) == 1 {
		return v.Data[0], true
	}
	return 0, false
}

// Clone returns a deep copy. Cases are immutable once constructed; callers
// that want to modify a value operate on a copy.
func (v *Value) Clone() *Value {
	if v == nil {
		return nil
	}
	out := &Value{
		Shape: append([]int(nil), v.Shape...),
		Data:  append([]float64(nil), v.Data...),
	}
	return out
}

func (v *Value) String() string {
	if s, ok := v.Scalar(); ok {
		return fmt.Sprintf("%g", s)
	}
	parts := make([]string, len(v.Data))
	for i, f := range v.Data {
		parts[i] = fmt.Sprintf("%g", f)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// scalarValue builds a shape-[1] value.
func scalarValue(f float64) *Value {
	return &Value{Shape: []int{1}, Data: []float64{f}}
}

// broadcastTo expands a stored bound to the variable's shape. A scalar bound
// broadcasts to every element; an already-shaped bound must match the target
// element count exactly.
func broadcastTo(v *Value, shape []int, name string) (*Value, error) {
	size := 1
	for _, d := range shape {
		size *= d
	}
	if len(v.Data) == size {
		return &Value{Shape: append([]int(nil), shape...), Data: v.Data}, nil
	}
	if len(v.Data) == 1 {
		data := make([]float64, size)
		for i := range data {
			data[i] = v.Data[0]
		}
		return &Value{Shape: append([]int(nil), shape...), Data: data}, nil
	}
	return nil, fmt.Errorf("variable %q: cannot broadcast %d elements to shape %v",
		name, len(v.Data), shape)
}

// ValueMap holds one recorded name->value mapping (inputs, outputs or
// residuals of a single case). Values are stored under absolute names;
// lookups accept either absolute or promoted names, resolved through the
// metadata catalog for the map's namespace.
//
// A nil *ValueMap means the category was not recorded for this case, which
// is distinct from a present-but-empty map.
type ValueMap struct {
	kind  ioKind
	cat   *Catalog
	names []string // absolute names in stored order
	vals  map[string]*Value
}

func newValueMap(kind ioKind, cat *Catalog, names []string, vals map[string]*Value) *ValueMap {
	return &ValueMap{kind: kind, cat: cat, names: names, vals: vals}
}

// Len returns the number of variables recorded in the map.
func (m *ValueMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.names)
}

// AbsoluteNames returns the absolute variable names in stored order.
func (m *ValueMap) AbsoluteNames() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.names...)
}

// PromotedNames returns the promoted form of each recorded name, in stored
// order. Names with no catalog entry are returned unchanged.
func (m *ValueMap) PromotedNames() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.names))
	for i, abs := range m.names {
		out[i] = m.cat.promoted(m.kind, abs)
	}
	return out
}

// Has reports whether name (absolute or promoted) resolves to a recorded
// variable.
func (m *ValueMap) Has(name string) bool {
	_, err := m.Get(name)
	return err == nil
}

// Get returns the value recorded for name. The name may be absolute or
// promoted; promoted names that are ambiguous in this namespace fail with
// ErrUnknownVariable.
func (m *ValueMap) Get(name string) (*Value, error) {
	if m == nil {
		return nil, unknownVariable(name, "not recorded")
	}
	if v, ok := m.vals[name]; ok {
		return v, nil
	}
	abs, err := m.cat.absolute(m.kind, name)
	if err != nil {
		return nil, err
	}
	if v, ok := m.vals[abs]; ok {
		return v, nil
	}
	return nil, unknownVariable(name, "not recorded in this case")
}

// Jacobian holds one recorded total-derivative mapping, keyed by
// (response, design variable) pairs. Both promoted and absolute forms are
// acceptable on either axis of the lookup.
type Jacobian struct {
	cat  *Catalog
	keys [][2]string // absolute (of, wrt) pairs in stored order
	vals map[string]*Value
}

// derivKey is the storage key for one jacobian entry.
func derivKey(of, wrt string) string { return of + "!" + wrt }

// splitDerivKey undoes derivKey.
func splitDerivKey(key string) (of, wrt string, ok bool) {
	of, wrt, ok = strings.Cut(key, "!")
	return
}

func newJacobian(cat *Catalog, keys [][2]string, vals map[string]*Value) *Jacobian {
	return &Jacobian{cat: cat, keys: keys, vals: vals}
}

// Keys returns the absolute (response, design variable) pairs in stored order.
func (j *Jacobian) Keys() [][2]string {
	if j == nil {
		return nil
	}
	return append([][2]string(nil), j.keys...)
}

// Get returns the derivative of `of` with respect to `wrt`. Either name may
// be promoted or absolute; responses and design variables both live in the
// output namespace.
func (j *Jacobian) Get(of, wrt string) (*Value, error) {
	if j == nil {
		return nil, unknownVariable(derivKey(of, wrt), "derivatives not recorded")
	}
	absOf, err := j.cat.absolute(kindOutput, of)
	if err != nil {
		return nil, err
	}
	absWrt, err := j.cat.absolute(kindOutput, wrt)
	if err != nil {
		return nil, err
	}
	if v, ok := j.vals[derivKey(absOf, absWrt)]; ok {
		return v, nil
	}
	return nil, unknownVariable(derivKey(of, wrt), "derivative not recorded")
}
