// Package wire defines the legacy binary encoding shared by the case-store
// reader and the test-fixture recorder.
//
// Format versions 1 and 2 persisted value payloads and metadata maps as gob
// streams. The wire structs here are the exact shapes those streams carry;
// both sides of the codec live in this package so the reader and the fixture
// recorder can never drift apart.
package wire

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// LegacyValue is one variable's recorded value in a legacy blob. The blob is
// self-describing: shapes travel with the data, so legacy payloads decode
// without consulting the metadata catalog.
type LegacyValue struct {
	Shape []int
	Data  []float64
}

// LegacyRecord is the payload of one encoded inputs/outputs/residuals or
// jacobian column. Names preserves the recorded order, which gob maps would
// otherwise lose.
type LegacyRecord struct {
	Names  []string
	Values []LegacyValue
}

// LegacyNameMap is the payload of the legacy abs2prom column.
type LegacyNameMap struct {
	Input  map[string]string
	Output map[string]string
}

// LegacyReverseMap is the payload of the legacy prom2abs column. One
// promoted name can map to several absolute names.
type LegacyReverseMap struct {
	Input  map[string][]string
	Output map[string][]string
}

// LegacyMeta is one variable's metadata entry in the legacy abs2meta column.
type LegacyMeta struct {
	Units    string
	Shape    []int
	Explicit bool
	Lower    *LegacyValue
	Upper    *LegacyValue
	Ref      float64
	Ref0     float64
	ResRef   float64
	Type     []string
}

func init() {
	// Option payloads (driver/system/solver metadata) carry interface
	// values; gob needs the concrete container types registered.
	gob.Register(map[string]any{})
	gob.Register([]any{})
}

// EncodeRecord serializes a legacy value payload.
func EncodeRecord(rec LegacyRecord) ([]byte, error) {
	return encode(rec, "record")
}

// DecodeRecord deserializes a legacy value payload.
func DecodeRecord(blob []byte) (LegacyRecord, error) {
	var rec LegacyRecord
	err := decode(blob, &rec, "record")
	return rec, err
}

// EncodeNameMap serializes a legacy abs2prom payload.
func EncodeNameMap(m LegacyNameMap) ([]byte, error) {
	return encode(m, "name map")
}

// DecodeNameMap deserializes a legacy abs2prom payload.
func DecodeNameMap(blob []byte) (LegacyNameMap, error) {
	var m LegacyNameMap
	err := decode(blob, &m, "name map")
	return m, err
}

// EncodeReverseMap serializes a legacy prom2abs payload.
func EncodeReverseMap(m LegacyReverseMap) ([]byte, error) {
	return encode(m, "reverse map")
}

// DecodeReverseMap deserializes a legacy prom2abs payload.
func DecodeReverseMap(blob []byte) (LegacyReverseMap, error) {
	var m LegacyReverseMap
	err := decode(blob, &m, "reverse map")
	return m, err
}

// EncodeMetaMap serializes a legacy abs2meta payload.
func EncodeMetaMap(m map[string]LegacyMeta) ([]byte, error) {
	return encode(m, "meta map")
}

// DecodeMetaMap deserializes a legacy abs2meta payload.
func DecodeMetaMap(blob []byte) (map[string]LegacyMeta, error) {
	var m map[string]LegacyMeta
	err := decode(blob, &m, "meta map")
	return m, err
}

// EncodeOptions serializes a legacy options payload (driver, system or
// solver metadata).
func EncodeOptions(opts map[string]any) ([]byte, error) {
	return encode(opts, "options")
}

// DecodeOptions deserializes a legacy options payload.
func DecodeOptions(blob []byte) (map[string]any, error) {
	var opts map[string]any
	err := decode(blob, &opts, "options")
	return opts, err
}

func encode(v any, what string) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("encode legacy %s: %w", what, err)
	}
	return buf.Bytes(), nil
}

func decode(blob []byte, v any, what string) error {
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(v); err != nil {
		return fmt.Errorf("decode legacy %s: %w", what, err)
	}
	return nil
}
