// Package domain holds the core kernel types: serialized values, signatures,
// operation nodes and cell declarations. Nothing in this package depends on
// the compiler, resolver, state or stepper packages.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/vmihailenco/msgpack/v5"
)

// SVKind tags the variant carried by a Serialized Value.
type SVKind string

const (
	SVNull    SVKind = "null"
	SVBool    SVKind = "bool"
	SVInt     SVKind = "int"
	SVFloat   SVKind = "float"
	SVString  SVKind = "string"
	SVBytes   SVKind = "bytes"
	SVArray   SVKind = "array"
	SVObject  SVKind = "object"
	SVSet     SVKind = "set"
	SVCellRef SVKind = "cell_ref"
)

// CellRef is an opaque handle to another operation's output (or one of its
// fields), used to pass function handles between cells without capturing
// the producing snapshot.
type CellRef struct {
	OperationID int
	Field       *string
}

// SV is a recursive tagged union used for all cell input/output. The zero
// value has an empty kind tag, not SVNull; Null() builds the explicit null.
// SV is treated as immutable once constructed: mutator-looking
// helpers (Array, Object) always return a new value.
type SV struct {
	kind    SVKind
	boolV   bool
	intV    int64
	floatV  float64
	strV    string
	bytesV  []byte
	arrV    []SV
	objV    map[string]SV
	objKeys []string // preserves insertion order for deterministic iteration
	setV    []SV     // deduplicated by structural equality
	refV    CellRef
}

func Null() SV                { return SV{kind: SVNull} }
func Bool(b bool) SV           { return SV{kind: SVBool, boolV: b} }
func Int(i int64) SV           { return SV{kind: SVInt, intV: i} }
func Float(f float64) SV       { return SV{kind: SVFloat, floatV: f} }
func String(s string) SV       { return SV{kind: SVString, strV: s} }
func Bytes(b []byte) SV        { return SV{kind: SVBytes, bytesV: append([]byte(nil), b...)} }
func Ref(op int, field *string) SV {
	return SV{kind: SVCellRef, refV: CellRef{OperationID: op, Field: field}}
}

// Array builds an array SV, copying the slice.
func Array(items ...SV) SV {
	cp := append([]SV(nil), items...)
	return SV{kind: SVArray, arrV: cp}
}

// Object builds an object SV from a map, with keys sorted for determinism
// unless an explicit order is supplied via OrderedObject.
func Object(m map[string]SV) SV {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return OrderedObject(keys, m)
}

// OrderedObject builds an object SV preserving the given key order.
func OrderedObject(keys []string, m map[string]SV) SV {
	cp := make(map[string]SV, len(m))
	for _, k := range keys {
		cp[k] = m[k]
	}
	return SV{kind: SVObject, objV: cp, objKeys: append([]string(nil), keys...)}
}

// Set builds a set SV, deduplicating by structural equality.
func Set(items ...SV) SV {
	var uniq []SV
	for _, it := range items {
		dup := false
		for _, u := range uniq {
			if u.Equal(it) {
				dup = true
				break
			}
		}
		if !dup {
			uniq = append(uniq, it)
		}
	}
	return SV{kind: SVSet, setV: uniq}
}

func (v SV) Kind() SVKind { return v.kind }
func (v SV) IsNull() bool { return v.kind == SVNull }

func (v SV) AsBool() (bool, bool)     { return v.boolV, v.kind == SVBool }
func (v SV) AsInt() (int64, bool)     { return v.intV, v.kind == SVInt }
func (v SV) AsFloat() (float64, bool) { return v.floatV, v.kind == SVFloat }
func (v SV) AsString() (string, bool) { return v.strV, v.kind == SVString }
func (v SV) AsBytes() ([]byte, bool)  { return v.bytesV, v.kind == SVBytes }
func (v SV) AsRef() (CellRef, bool)   { return v.refV, v.kind == SVCellRef }

// AsArray returns a copy of the backing slice.
func (v SV) AsArray() ([]SV, bool) {
	if v.kind != SVArray {
		return nil, false
	}
	return append([]SV(nil), v.arrV...), true
}

// AsObject returns the backing map (copy) and its key order.
func (v SV) AsObject() (map[string]SV, []string, bool) {
	if v.kind != SVObject {
		return nil, nil, false
	}
	cp := make(map[string]SV, len(v.objV))
	for k, val := range v.objV {
		cp[k] = val
	}
	return cp, append([]string(nil), v.objKeys...), true
}

// ObjectGet looks up a single field of an object SV.
func (v SV) ObjectGet(key string) (SV, bool) {
	if v.kind != SVObject {
		return SV{}, false
	}
	val, ok := v.objV[key]
	return val, ok
}

func (v SV) AsSet() ([]SV, bool) {
	if v.kind != SVSet {
		return nil, false
	}
	return append([]SV(nil), v.setV...), true
}

// Equal reports structural equality.
func (v SV) Equal(o SV) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case SVNull:
		return true
	case SVBool:
		return v.boolV == o.boolV
	case SVInt:
		return v.intV == o.intV
	case SVFloat:
		return v.floatV == o.floatV
	case SVString:
		return v.strV == o.strV
	case SVBytes:
		return string(v.bytesV) == string(o.bytesV)
	case SVCellRef:
		if v.refV.OperationID != o.refV.OperationID {
			return false
		}
		if (v.refV.Field == nil) != (o.refV.Field == nil) {
			return false
		}
		return v.refV.Field == nil || *v.refV.Field == *o.refV.Field
	case SVArray:
		if len(v.arrV) != len(o.arrV) {
			return false
		}
		for i := range v.arrV {
			if !v.arrV[i].Equal(o.arrV[i]) {
				return false
			}
		}
		return true
	case SVObject:
		if len(v.objV) != len(o.objV) {
			return false
		}
		for k, val := range v.objV {
			ov, ok := o.objV[k]
			if !ok || !val.Equal(ov) {
				return false
			}
		}
		return true
	case SVSet:
		if len(v.setV) != len(o.setV) {
			return false
		}
		for _, item := range v.setV {
			found := false
			for _, oi := range o.setV {
				if item.Equal(oi) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	}
	return false
}

// canonical produces a deterministically-ordered plain-Go-value tree so that
// msgpack encoding (and therefore Hash) is stable regardless of map
// iteration order or set insertion order.
func (v SV) canonical() any {
	switch v.kind {
	case SVNull:
		return nil
	case SVBool:
		return v.boolV
	case SVInt:
		return v.intV
	case SVFloat:
		return v.floatV
	case SVString:
		return v.strV
	case SVBytes:
		return v.bytesV
	case SVCellRef:
		field := ""
		if v.refV.Field != nil {
			field = *v.refV.Field
		}
		return []any{"cellref", v.refV.OperationID, field}
	case SVArray:
		out := make([]any, len(v.arrV))
		for i, it := range v.arrV {
			out[i] = it.canonical()
		}
		return out
	case SVObject:
		keys := append([]string(nil), v.objKeys...)
		sort.Strings(keys)
		out := make([][2]any, 0, len(keys))
		for _, k := range keys {
			out = append(out, [2]any{k, v.objV[k].canonical()})
		}
		return out
	case SVSet:
		items := make([]any, len(v.setV))
		for i, it := range v.setV {
			items[i] = it.canonical()
		}
		sort.Slice(items, func(i, j int) bool {
			return fmt.Sprintf("%v", items[i]) < fmt.Sprintf("%v", items[j])
		})
		return items
	}
	return nil
}

// Hash returns the canonical content hash of the value: msgpack-encode the
// canonical (key/set-order-normalized) form, then SHA-256 it. No hashing or
// canonical-serialization library exists anywhere in the retrieval pack, so
// both the encoder call site and the digest are standard library
// (crypto/sha256) wrapped around the one pack dependency that does apply
// (vmihailenco/msgpack) for the encoding step itself.
func (v SV) Hash() string {
	b, err := msgpack.Marshal(v.canonical())
	if err != nil {
		// canonical() only ever produces msgpack-safe primitives; a marshal
		// error here would be a bug in canonical(), not bad input.
		panic(fmt.Sprintf("domain: SV canonical form not msgpack-encodable: %v", err))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// ToJSON converts the SV to a JSON-shaped intermediate (map[string]any /
// []any / primitives) for wire transfer to observers.
func (v SV) ToJSON() any {
	switch v.kind {
	case SVNull:
		return nil
	case SVBool:
		return v.boolV
	case SVInt:
		return v.intV
	case SVFloat:
		return v.floatV
	case SVString:
		return v.strV
	case SVBytes:
		return v.bytesV
	case SVCellRef:
		m := map[string]any{"op_id": v.refV.OperationID}
		if v.refV.Field != nil {
			m["field"] = *v.refV.Field
		}
		return m
	case SVArray:
		out := make([]any, len(v.arrV))
		for i, it := range v.arrV {
			out[i] = it.ToJSON()
		}
		return out
	case SVObject:
		out := make(map[string]any, len(v.objV))
		for k, val := range v.objV {
			out[k] = val.ToJSON()
		}
		return out
	case SVSet:
		out := make([]any, len(v.setV))
		for i, it := range v.setV {
			out[i] = it.ToJSON()
		}
		return out
	}
	return nil
}

// FromGo converts a plain Go value (as produced by a cell effect) into an SV.
func FromGo(v any) SV {
	switch t := v.(type) {
	case nil:
		return Null()
	case SV:
		return t
	case bool:
		return Bool(t)
	case int:
		return Int(int64(t))
	case int64:
		return Int(t)
	case float64:
		return Float(t)
	case string:
		return String(t)
	case []byte:
		return Bytes(t)
	case []any:
		items := make([]SV, len(t))
		for i, it := range t {
			items[i] = FromGo(it)
		}
		return Array(items...)
	case map[string]any:
		m := make(map[string]SV, len(t))
		for k, it := range t {
			m[k] = FromGo(it)
		}
		return Object(m)
	default:
		return String(fmt.Sprintf("%v", t))
	}
}
