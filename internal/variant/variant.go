// Package variant implements the typed value used throughout the
// configuration tree (spec.md §3 ConfigVariable): a tagged union of null,
// bool, i64, f64, text, bytes, and Key512.
package variant

import (
	"fmt"

	"github.com/GuramDuka/homeostas-go/internal/digest512"
)

// Kind discriminates the Variant union.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt64
	KindFloat64
	KindText
	KindBytes
	KindKey512
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt64:
		return "i64"
	case KindFloat64:
		return "f64"
	case KindText:
		return "text"
	case KindBytes:
		return "bytes"
	case KindKey512:
		return "key512"
	default:
		return "unknown"
	}
}

// Variant is a single typed configuration value.
type Variant struct {
	kind  Kind
	b     bool
	i     int64
	f     float64
	s     string
	bytes []byte
	key   digest512.Key512
}

// Null returns the null Variant.
func Null() Variant { return Variant{kind: KindNull} }

// FromBool wraps a bool.
func FromBool(v bool) Variant { return Variant{kind: KindBool, b: v} }

// FromInt64 wraps an int64.
func FromInt64(v int64) Variant { return Variant{kind: KindInt64, i: v} }

// FromFloat64 wraps a float64.
func FromFloat64(v float64) Variant { return Variant{kind: KindFloat64, f: v} }

// FromText wraps a string.
func FromText(v string) Variant { return Variant{kind: KindText, s: v} }

// FromBytes wraps a byte slice; the slice is retained, not copied.
func FromBytes(v []byte) Variant { return Variant{kind: KindBytes, bytes: v} }

// FromKey512 wraps a Key512.
func FromKey512(v digest512.Key512) Variant { return Variant{kind: KindKey512, key: v} }

// Kind reports the Variant's dynamic type.
func (v Variant) Kind() Kind { return v.kind }

// Bool returns the wrapped bool, or an error if Kind() != KindBool.
func (v Variant) Bool() (bool, error) {
	if v.kind != KindBool {
		return false, fmt.Errorf("variant: expected bool, got %s", v.kind)
	}
	return v.b, nil
}

// Int64 returns the wrapped int64, or an error if Kind() != KindInt64.
func (v Variant) Int64() (int64, error) {
	if v.kind != KindInt64 {
		return 0, fmt.Errorf("variant: expected i64, got %s", v.kind)
	}
	return v.i, nil
}

// Float64 returns the wrapped float64, or an error if Kind() != KindFloat64.
func (v Variant) Float64() (float64, error) {
	if v.kind != KindFloat64 {
		return 0, fmt.Errorf("variant: expected f64, got %s", v.kind)
	}
	return v.f, nil
}

// Text returns the wrapped string, or an error if Kind() != KindText.
func (v Variant) Text() (string, error) {
	if v.kind != KindText {
		return "", fmt.Errorf("variant: expected text, got %s", v.kind)
	}
	return v.s, nil
}

// Bytes returns the wrapped byte slice, or an error if Kind() != KindBytes.
func (v Variant) Bytes() ([]byte, error) {
	if v.kind != KindBytes {
		return nil, fmt.Errorf("variant: expected bytes, got %s", v.kind)
	}
	return v.bytes, nil
}

// Key512 returns the wrapped Key512, or an error if Kind() != KindKey512.
func (v Variant) Key512() (digest512.Key512, error) {
	if v.kind != KindKey512 {
		return digest512.Key512{}, fmt.Errorf("variant: expected key512, got %s", v.kind)
	}
	return v.key, nil
}
