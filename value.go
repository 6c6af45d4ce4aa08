package ludus

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ValueType is the type tag passed to config-set with --type.
type ValueType string

const (
	TypeInt   ValueType = "int"
	TypeFloat ValueType = "float"
	TypeStr   ValueType = "str"
	TypeBool  ValueType = "bool"
)

// ParseValueType converts a --type tag into a ValueType.
func ParseValueType(s string) (ValueType, error) {
	switch t := ValueType(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeInt, TypeFloat, TypeStr, TypeBool:
		return t, nil
	case "string":
		return TypeStr, nil
	case "integer":
		return TypeInt, nil
	default:
		return "", invalidArg("unknown value type %q", s)
	}
}

// Value is a typed configuration scalar. The set of implementations is
// closed: Int, Float, Str and Bool.
type Value interface {
	// Type returns the tag sent with --type.
	Type() ValueType
	// String renders the value in the text form the tool stores and prints.
	String() string
	validate() error
}

// Int is an integer configuration value.
type Int int64

// Float is a floating point configuration value. NaN and infinities are rejected.
type Float float64

// Str is a string configuration value. It must not contain a newline and
// must not start with '-' unless it reads as a negative number.
type Str string

// Bool is a boolean configuration value.
type Bool bool

func (Int) Type() ValueType   { return TypeInt }
func (Float) Type() ValueType { return TypeFloat }
func (Str) Type() ValueType   { return TypeStr }
func (Bool) Type() ValueType  { return TypeBool }

func (v Int) String() string { return strconv.FormatInt(int64(v), 10) }

// String uses the shortest representation that parses back to the same float64.
func (v Float) String() string { return strconv.FormatFloat(float64(v), 'g', -1, 64) }

func (v Str) String() string  { return string(v) }
func (v Bool) String() string { return strconv.FormatBool(bool(v)) }

func (Int) validate() error { return nil }

func (v Float) validate() error {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return invalidArg("float value %v cannot be stored", f)
	}
	return nil
}

func (v Str) validate() error {
	if strings.ContainsAny(string(v), "\r\n") {
		return invalidArg("string value must not contain a line break")
	}
	if looksLikeFlag(string(v)) {
		return invalidArg("string value %q would be read as a flag", string(v))
	}
	return nil
}

// negativeNumber matches the dash-prefixed arguments the tool's option
// parser still reads as positionals.
var negativeNumber = regexp.MustCompile(`^-\d+$|^-\d*\.\d+$`)

// looksLikeFlag reports whether the tool would take s as an option.
func looksLikeFlag(s string) bool {
	return strings.HasPrefix(s, "-") && !negativeNumber.MatchString(s)
}

func (Bool) validate() error { return nil }

// ParseValue reads text printed by config-get back into a Value of type t.
func ParseValue(t ValueType, text string) (Value, error) {
	switch t {
	case TypeInt:
		n, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse int value: %w", err)
		}
		return Int(n), nil
	case TypeFloat:
		f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return nil, fmt.Errorf("parse float value: %w", err)
		}
		return Float(f), nil
	case TypeStr:
		return Str(text), nil
	case TypeBool:
		b, err := strconv.ParseBool(strings.TrimSpace(text))
		if err != nil {
			return nil, fmt.Errorf("parse bool value: %w", err)
		}
		return Bool(b), nil
	default:
		return nil, invalidArg("unknown value type %q", string(t))
	}
}
