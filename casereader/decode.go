package casereader

import (
	"fmt"
	"sort"

	gojson "github.com/goccy/go-json"

	"github.com/JustinSGray/OpenMDAO/internal/wire"
)

// This file is the value decoder: the only place besides the catalog
// builder that branches on the store's format version. Versions 3+ store
// self-describing JSON text and take array shapes from the catalog;
// versions 1-2 store gob blobs that carry their own shapes.

// flattenJSON collapses a JSON-decoded scalar or arbitrarily nested array
// into a flat float64 slice.
func flattenJSON(v any) ([]float64, error) {
	var out []float64
	var walk func(v any) error
	walk = func(v any) error {
		switch x := v.(type) {
		case float64:
			out = append(out, x)
		case []any:
			for _, e := range x {
				if err := walk(e); err != nil {
					return err
				}
			}
		default:
			return fmt.Errorf("unexpected JSON value of type %T", v)
		}
		return nil
	}
	if err := walk(v); err != nil {
		return nil, err
	}
	return out, nil
}

// decodeValueRecord turns one stored inputs/outputs/residuals column into a
// ValueMap. A NULL column means the category was not recorded and yields a
// nil map; an empty payload yields a present-but-empty map.
func decodeValueRecord(version int, cat *Catalog, table, coord string, raw []byte, kind ioKind) (*ValueMap, error) {
	if raw == nil {
		return nil, nil
	}

	fail := func(err error) (*ValueMap, error) {
		return nil, &DecodeError{Table: table, Coordinate: coord, Err: err}
	}

	if version >= 3 {
		if string(raw) == "null" {
			return nil, nil
		}
		var obj map[string]gojson.RawMessage
		if err := gojson.Unmarshal(raw, &obj); err != nil {
			return fail(err)
		}
		names := make([]string, 0, len(obj))
		for name := range obj {
			names = append(names, name)
		}
		sort.Strings(names)

		vals := make(map[string]*Value, len(obj))
		for _, name := range names {
			meta, ok := cat.abs2meta[name]
			if !ok {
				return fail(fmt.Errorf("variable %q has no catalog entry", name))
			}
			var parsed any
			if err := gojson.Unmarshal(obj[name], &parsed); err != nil {
				return fail(fmt.Errorf("variable %q: %w", name, err))
			}
			data, err := flattenJSON(parsed)
			if err != nil {
				return fail(fmt.Errorf("variable %q: %w", name, err))
			}
			if len(data) != (&Value{Shape: meta.Shape}).Size() {
				return fail(fmt.Errorf("variable %q: %d elements for shape %v",
					name, len(data), meta.Shape))
			}
			vals[name] = &Value{Shape: append([]int(nil), meta.Shape...), Data: data}
		}
		return newValueMap(kind, cat, names, vals), nil
	}

	rec, err := wire.DecodeRecord(raw)
	if err != nil {
		return fail(err)
	}
	vals := make(map[string]*Value, len(rec.Names))
	for i, name := range rec.Names {
		lv := rec.Values[i]
		vals[name] = &Value{Shape: lv.Shape, Data: lv.Data}
	}
	return newValueMap(kind, cat, rec.Names, vals), nil
}

// encodeValueRecord is the inverse of decodeValueRecord for the same format
// version. The reader itself never writes stores; this exists so the decode
// path can be round-trip checked against the recorded arrays.
func encodeValueRecord(version int, m *ValueMap) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	if version >= 3 {
		obj := make(map[string][]float64, len(m.names))
		for _, name := range m.names {
			obj[name] = m.vals[name].Data
		}
		return gojson.Marshal(obj)
	}
	rec := wire.LegacyRecord{Names: m.names}
	for _, name := range m.names {
		v := m.vals[name]
		rec.Values = append(rec.Values, wire.LegacyValue{Shape: v.Shape, Data: v.Data})
	}
	return wire.EncodeRecord(rec)
}

// decodeJacobianRecord turns one stored derivatives column into a Jacobian.
// Entries are keyed "of!wrt"; each entry's shape is (size of response,
// size of design variable).
func decodeJacobianRecord(version int, cat *Catalog, table, coord string, raw []byte) (*Jacobian, error) {
	if raw == nil {
		return nil, nil
	}

	fail := func(err error) (*Jacobian, error) {
		return nil, &DecodeError{Table: table, Coordinate: coord, Err: err}
	}

	var keys [][2]string
	vals := make(map[string]*Value)

	if version >= 3 {
		if string(raw) == "null" {
			return nil, nil
		}
		var obj map[string]gojson.RawMessage
		if err := gojson.Unmarshal(raw, &obj); err != nil {
			return fail(err)
		}
		names := make([]string, 0, len(obj))
		for key := range obj {
			names = append(names, key)
		}
		sort.Strings(names)

		for _, key := range names {
			of, wrt, ok := splitDerivKey(key)
			if !ok {
				return fail(fmt.Errorf("malformed derivative key %q", key))
			}
			ofMeta, okOf := cat.abs2meta[of]
			wrtMeta, okWrt := cat.abs2meta[wrt]
			if !okOf || !okWrt {
				return fail(fmt.Errorf("derivative key %q has no catalog entry", key))
			}
			var parsed any
			if err := gojson.Unmarshal(obj[key], &parsed); err != nil {
				return fail(fmt.Errorf("derivative %q: %w", key, err))
			}
			data, err := flattenJSON(parsed)
			if err != nil {
				return fail(fmt.Errorf("derivative %q: %w", key, err))
			}
			rows := (&Value{Shape: ofMeta.Shape}).Size()
			cols := (&Value{Shape: wrtMeta.Shape}).Size()
			if len(data) != rows*cols {
				return fail(fmt.Errorf("derivative %q: %d elements for shape (%d, %d)",
					key, len(data), rows, cols))
			}
			keys = append(keys, [2]string{of, wrt})
			vals[key] = &Value{Shape: []int{rows, cols}, Data: data}
		}
		return newJacobian(cat, keys, vals), nil
	}

	rec, err := wire.DecodeRecord(raw)
	if err != nil {
		return fail(err)
	}
	for i, key := range rec.Names {
		of, wrt, ok := splitDerivKey(key)
		if !ok {
			return fail(fmt.Errorf("malformed derivative key %q", key))
		}
		lv := rec.Values[i]
		keys = append(keys, [2]string{of, wrt})
		vals[key] = &Value{Shape: lv.Shape, Data: lv.Data}
	}
	return newJacobian(cat, keys, vals), nil
}
