// Package codec implements the stateless binary encode/decode layer
// described in spec.md §4.3: building outbound radio command frames from a
// FrameTemplate and a parameter binding, and extracting parameter values
// back out of a received reply buffer.
//
// The codec never consults a Schema or Model. Enum members are resolved to
// their raw integer by the caller (the dispatcher, through the model
// package's member->integer mapping) before Encode is invoked, and Decode hands back
// raw integers for the caller to re-resolve into enum members. This keeps
// the codec a pure function pair over (FrameTemplate, bindings) <-> bytes,
// matching sttp-goapi's CompactMeasurement: a stateless binary shape with no
// knowledge of the higher-level metadata describing it.
package codec

import "github.com/shopspring/decimal"

// FormatEnum names the on-wire representation of a FieldSpec, per spec.md §3.
type FormatEnum int

// Format enumerates the field encodings this codec understands. Declared as
// a struct-of-constants, matching the enumeration idiom used throughout the
// teacher codebase (metadata.DataType, transport.StateFlags).
var Format = struct {
	TextASCII FormatEnum
	IntBU     FormatEnum
	IntLU     FormatEnum
	IntBS     FormatEnum
	IntLS     FormatEnum
	BCDBU     FormatEnum
	BCDLU     FormatEnum
	BCDBS     FormatEnum
	BCDLS     FormatEnum
	Yaesu     FormatEnum
}{
	TextASCII: 0,
	IntBU:     1,
	IntLU:     2,
	IntBS:     3,
	IntLS:     4,
	BCDBU:     5,
	BCDLU:     6,
	BCDBS:     7,
	BCDLS:     8,
	Yaesu:     9,
}

func (f FormatEnum) String() string {
	switch f {
	case Format.TextASCII:
		return "text"
	case Format.IntBU:
		return "int_bu"
	case Format.IntLU:
		return "int_lu"
	case Format.IntBS:
		return "int_bs"
	case Format.IntLS:
		return "int_ls"
	case Format.BCDBU:
		return "bcd_bu"
	case Format.BCDLU:
		return "bcd_lu"
	case Format.BCDBS:
		return "bcd_bs"
	case Format.BCDLS:
		return "bcd_ls"
	case Format.Yaesu:
		return "yaesu"
	default:
		return "unknown"
	}
}

// Signed reports whether format can carry negative values: bcd_*s formats
// add an explicit sign byte, int_*s formats use two's complement.
func (f FormatEnum) Signed() bool {
	switch f {
	case Format.IntBS, Format.IntLS, Format.BCDBS, Format.BCDLS:
		return true
	default:
		return false
	}
}

// LittleEndian reports whether format's magnitude bytes run least-significant first.
func (f FormatEnum) LittleEndian() bool {
	switch f {
	case Format.IntLU, Format.IntLS, Format.BCDLU, Format.BCDLS:
		return true
	default:
		return false
	}
}

// BCD reports whether format packs two decimal digits per byte.
func (f FormatEnum) BCD() bool {
	switch f {
	case Format.BCDBU, Format.BCDLU, Format.BCDBS, Format.BCDLS:
		return true
	default:
		return false
	}
}

// Slot is one position in a FrameTemplate's byte pattern: either a fixed
// byte value to be written/matched literally, or an unknown marker that
// belongs to a hole (the data region FieldSpecs carve up).
type Slot struct {
	Fixed   byte
	Unknown bool
}

// FieldSpec locates and describes one parameter's or status field's
// placement within a frame, per spec.md §3.
type FieldSpec struct {
	Name     string
	Index    int
	Length   int
	Format   FormatEnum
	Add      decimal.Decimal
	Multiply decimal.Decimal
}

// ReplyKindEnum tags which of the three mutually exclusive ReplySpec forms
// (spec.md §3) is in effect.
type ReplyKindEnum int

var ReplyKind = struct {
	FixedLength ReplyKindEnum
	Terminator  ReplyKindEnum
	Validate    ReplyKindEnum
}{
	FixedLength: 0,
	Terminator:  1,
	Validate:    2,
}

// ReplySpec describes how the rig runtime recognizes a complete reply frame
// and, for the Validate form, how the codec verifies it before extraction.
type ReplySpec struct {
	Kind       ReplyKindEnum
	Length     int    // FixedLength
	Terminator byte   // Terminator, inclusive
	Mask       []Slot // Validate
}

// FrameTemplate is the compiled, reusable shape of one command, init step,
// or status poll: a byte pattern plus the field bindings carved out of it.
// Instances are built once by the model compiler and shared thereafter; the
// runtime caches them by identity (see spec.md §9).
type FrameTemplate struct {
	Name     string
	Pattern  []Slot
	Reply    ReplySpec
	Bindings map[string]FieldSpec
}

// NewDecimal is a small convenience used across the model/codec boundary so
// callers don't need to import shopspring/decimal directly for the common
// case of an integer add/multiply literal.
func NewDecimal(i int64) decimal.Decimal {
	return decimal.NewFromInt(i)
}
