package tensor

import (
	"fmt"
	"strconv"
	"strings"
)

// TypeCode is the element class of a DType.
type TypeCode uint8

const (
	Int TypeCode = iota
	UInt
	Float
	Bool
)

// DType describes a tensor element type as a class plus a bit width.
type DType struct {
	Code TypeCode
	Bits uint8
}

var (
	Float32 = DType{Code: Float, Bits: 32}
	Float64 = DType{Code: Float, Bits: 64}
	Int32   = DType{Code: Int, Bits: 32}
	Int64   = DType{Code: Int, Bits: 64}
	UInt8   = DType{Code: UInt, Bits: 8}
	Boolean = DType{Code: Bool, Bits: 1}
)

// String returns the canonical name, e.g. "float32".
func (d DType) String() string {
	switch d.Code {
	case Int:
		return "int" + strconv.Itoa(int(d.Bits))
	case UInt:
		return "uint" + strconv.Itoa(int(d.Bits))
	case Float:
		return "float" + strconv.Itoa(int(d.Bits))
	case Bool:
		return "bool"
	default:
		return fmt.Sprintf("dtype(%d,%d)", d.Code, d.Bits)
	}
}

// Match reports whether d has the given class and width.
func (d DType) Match(code TypeCode, bits uint8) bool {
	return d.Code == code && d.Bits == bits
}

// IsFloat reports whether d is a floating point type
func (d DType) IsFloat() bool { return d.Code == Float }

// ParseDType parses names like "float32", "int64", "uint8" and "bool".
func ParseDType(s string) (DType, error) {
	s = strings.TrimSpace(s)
	if s == "bool" {
		return Boolean, nil
	}
	var code TypeCode
	var rest string
	switch {
	case strings.HasPrefix(s, "float"):
		code, rest = Float, s[len("float"):]
	case strings.HasPrefix(s, "uint"):
		code, rest = UInt, s[len("uint"):]
	case strings.HasPrefix(s, "int"):
		code, rest = Int, s[len("int"):]
	default:
		return DType{}, fmt.Errorf("unknown dtype %q", s)
	}
	bits, err := strconv.ParseUint(rest, 10, 8)
	if err != nil {
		return DType{}, fmt.Errorf("unknown dtype %q", s)
	}
	switch bits {
	case 8, 16, 32, 64:
	default:
		return DType{}, fmt.Errorf("unsupported bit width in dtype %q", s)
	}
	return DType{Code: code, Bits: uint8(bits)}, nil
}
