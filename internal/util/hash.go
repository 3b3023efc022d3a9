// Package util contains internal helpers for hashing cache keys.
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

import (
	"encoding/binary"
	"math"
	"reflect"

	"github.com/cespare/xxhash/v2"
)

// Hasher feeds heterogeneous comparable values into one xxhash digest.
// Equal values always produce equal hashes; callers still compare keys for
// equality because distinct values may collide.
//
// A Hasher is not safe for concurrent use.
type Hasher struct {
	d   *xxhash.Digest
	buf [9]byte
}

// NewHasher returns a ready Hasher.
func NewHasher() *Hasher { return &Hasher{d: xxhash.New()} }

// Reset clears the digest so the Hasher can be reused.
func (h *Hasher) Reset() { h.d.Reset() }

// Sum64 returns the current hash.
func (h *Hasher) Sum64() uint64 { return h.d.Sum64() }

// Separator marks a boundary between variable-length parts of a key, so that
// ("ab", "c") and ("a", "bc") hash differently.
func (h *Hasher) Separator() { h.writeTag(0xff, 0) }

// Write hashes v.
// Supported: nil, bool, string, all int/uint widths, uintptr, floats,
// complex numbers and any pointer-like value (hashed by address). Other
// comparable values (structs, arrays, interfaces holding them) are walked
// field by field. Positive and negative zero hash alike, as they compare
// equal.
func (h *Hasher) Write(v any) {
	switch x := v.(type) {
	case nil:
		h.writeTag(0, 0)
	case bool:
		h.writeBool(x)
	case string:
		h.writeString(x)
	case int:
		h.writeTag(3, uint64(x))
	case int8:
		h.writeTag(3, uint64(x))
	case int16:
		h.writeTag(3, uint64(x))
	case int32:
		h.writeTag(3, uint64(x))
	case int64:
		h.writeTag(3, uint64(x))
	case uint:
		h.writeTag(4, uint64(x))
	case uint8:
		h.writeTag(4, uint64(x))
	case uint16:
		h.writeTag(4, uint64(x))
	case uint32:
		h.writeTag(4, uint64(x))
	case uint64:
		h.writeTag(4, x)
	case uintptr:
		h.writeTag(4, uint64(x))
	case float32:
		h.writeFloat(float64(x))
	case float64:
		h.writeFloat(x)
	default:
		h.writeValue(reflect.ValueOf(v))
	}
}

// writeValue hashes values the type switch in Write does not cover. It
// reads unexported fields through their kind accessors, never Interface.
func (h *Hasher) writeValue(rv reflect.Value) {
	switch rv.Kind() {
	case reflect.Invalid:
		h.writeTag(0, 0)
	case reflect.Bool:
		h.writeBool(rv.Bool())
	case reflect.String:
		h.writeString(rv.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		h.writeTag(3, uint64(rv.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		h.writeTag(4, rv.Uint())
	case reflect.Float32, reflect.Float64:
		h.writeFloat(rv.Float())
	case reflect.Complex64, reflect.Complex128:
		c := rv.Complex()
		h.writeFloat(real(c))
		h.writeFloat(imag(c))
	case reflect.Pointer, reflect.UnsafePointer, reflect.Chan:
		h.writeTag(6, uint64(rv.Pointer()))
		_, _ = h.d.WriteString(rv.Type().String())
	case reflect.Interface:
		if rv.IsNil() {
			h.writeTag(0, 0)
			return
		}
		h.writeValue(rv.Elem())
	case reflect.Struct:
		t := rv.Type()
		name := t.String()
		h.writeTag(7, uint64(len(name)))
		_, _ = h.d.WriteString(name)
		for i := 0; i < rv.NumField(); i++ {
			if t.Field(i).Name == "_" {
				continue
			}
			h.writeValue(rv.Field(i))
		}
	case reflect.Array:
		h.writeTag(8, uint64(rv.Len()))
		for i := 0; i < rv.Len(); i++ {
			h.writeValue(rv.Index(i))
		}
	default:
		// funcs, maps and slices are not comparable and never reach a key
		h.writeTag(9, 0)
		_, _ = h.d.WriteString(rv.Type().String())
	}
}

func (h *Hasher) writeBool(b bool) {
	if b {
		h.writeTag(1, 1)
	} else {
		h.writeTag(1, 0)
	}
}

func (h *Hasher) writeString(s string) {
	h.writeTag(2, uint64(len(s)))
	_, _ = h.d.WriteString(s)
}

// writeFloat hashes the bits of f with the sign of zero dropped.
func (h *Hasher) writeFloat(f float64) {
	if f == 0 {
		f = 0
	}
	h.writeTag(5, math.Float64bits(f))
}

func (h *Hasher) writeTag(tag byte, v uint64) {
	h.buf[0] = tag
	binary.LittleEndian.PutUint64(h.buf[1:], v)
	_, _ = h.d.Write(h.buf[:])
}

// Hash returns the hash of a single value.
func Hash[K comparable](k K) uint64 {
	h := NewHasher()
	h.Write(k)
	return h.Sum64()
}
