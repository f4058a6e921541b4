// Package schema checks raw JSON records against a declared per-source shape.
// A record either matches every declared field or is rejected whole; values
// are never coerced.
package schema

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindObject  Kind = "object"
	KindArray   Kind = "array"
	KindNull    Kind = "null"

	// KindDecimal is a string holding a finite base-10 number, the way
	// delimited files carry numeric columns.
	KindDecimal Kind = "decimal"
	// KindNonEmpty is a string with at least one non-blank character.
	KindNonEmpty Kind = "nonempty"
)

// ErrInvalid is wrapped by every ValidationError.
var ErrInvalid = errors.New("record does not match schema")

// Field declares one required (or optional) path in a record. Nested fields
// use dotted paths such as "quotes.USD.price".
type Field struct {
	Path     string
	Kind     Kind
	Optional bool
}

type Schema struct {
	Name   string
	Fields []Field
}

// ValidationError names the first field that did not match.
type ValidationError struct {
	Schema string
	Path   string
	Want   Kind
	Got    Kind
}

func (e *ValidationError) Error() string {
	if e.Got == "" {
		return fmt.Sprintf("%s: missing field %q", e.Schema, e.Path)
	}
	return fmt.Sprintf("%s: field %q is %s, want %s", e.Schema, e.Path, e.Got, e.Want)
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

// Validate parses record as JSON and checks it against s.
func Validate(s Schema, record []byte) error {
	if !gjson.ValidBytes(record) {
		return &ValidationError{Schema: s.Name, Path: "$", Want: KindObject, Got: "malformed"}
	}
	return ValidateResult(s, gjson.ParseBytes(record))
}

// ValidateResult checks an already parsed document against s.
func ValidateResult(s Schema, doc gjson.Result) error {
	if !doc.IsObject() {
		got := Kind("")
		if doc.Exists() {
			got = KindOf(doc)
		}
		return &ValidationError{Schema: s.Name, Path: "$", Want: KindObject, Got: got}
	}

	for _, f := range s.Fields {
		v := doc.Get(f.Path)
		if !v.Exists() {
			if f.Optional {
				continue
			}
			return &ValidationError{Schema: s.Name, Path: f.Path, Want: f.Kind}
		}
		if !matches(f.Kind, v) {
			return &ValidationError{Schema: s.Name, Path: f.Path, Want: f.Kind, Got: KindOf(v)}
		}
	}
	return nil
}

// KindOf reports the JSON kind of an existing value.
func KindOf(v gjson.Result) Kind {
	switch v.Type {
	case gjson.String:
		return KindString
	case gjson.Number:
		return KindNumber
	case gjson.True, gjson.False:
		return KindBoolean
	case gjson.Null:
		return KindNull
	}
	if v.IsArray() {
		return KindArray
	}
	return KindObject
}

func matches(want Kind, v gjson.Result) bool {
	switch want {
	case KindDecimal:
		if v.Type != gjson.String {
			return false
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		return err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	case KindNonEmpty:
		return v.Type == gjson.String && strings.TrimSpace(v.Str) != ""
	default:
		return KindOf(v) == want
	}
}
