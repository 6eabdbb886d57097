package codec

import (
	"fmt"

	"github.com/iarc-il/holyrig/rigerr"
)

// Encode builds the outbound byte frame for template from a set of resolved
// raw parameter values (spec.md §4.3 Encode). Callers must have already
// resolved bool -> 0/1 and enum member -> Model integer; values here are
// plain signed integers so the numeric transform can legally go negative.
func Encode(template *FrameTemplate, values map[string]int64) ([]byte, error) {
	out := make([]byte, len(template.Pattern))
	for i, slot := range template.Pattern {
		if !slot.Unknown {
			out[i] = slot.Fixed
		}
	}

	for name, field := range template.Bindings {
		value, ok := values[name]
		if !ok {
			return nil, rigerr.New(rigerr.ErrUnsupportedEnumMember, "no value supplied for parameter %q", name)
		}

		raw := applyTransform(value, field.Add, field.Multiply)

		bytes, err := encodeField(field, raw)
		if err != nil {
			return nil, err
		}
		copy(out[field.Index:field.Index+field.Length], bytes)
	}

	return out, nil
}

func encodeField(field FieldSpec, raw int64) ([]byte, error) {
	switch field.Format {
	case Format.TextASCII:
		return encodeText(field, raw)
	case Format.Yaesu:
		return nil, rigerr.New(rigerr.ErrNotImplemented, "yaesu format encoder not implemented")
	default:
		if field.Format.BCD() {
			return encodeBCD(field, raw)
		}
		return encodeInt(field, raw)
	}
}

func encodeText(field FieldSpec, raw int64) ([]byte, error) {
	neg := raw < 0
	mag := raw
	if neg {
		mag = -mag
	}
	digits := fmt.Sprintf("%d", mag)
	width := field.Length
	if neg {
		width--
	}
	if len(digits) > width {
		return nil, rigerr.New(rigerr.ErrValueOutOfRange, "value %d does not fit text field of length %d", raw, field.Length)
	}
	for len(digits) < width {
		digits = "0" + digits
	}
	if neg {
		digits = "-" + digits
	}
	return []byte(digits), nil
}

// encodeInt writes raw as a plain length-byte two's complement integer in
// the requested endianness (see the §6 encoding table: int_bs/int_ls carry
// no separate sign byte, they sign-extend across the full field width,
// unlike the bcd_*s formats below).
func encodeInt(field FieldSpec, raw int64) ([]byte, error) {
	length := field.Length

	if field.Format.Signed() {
		bits := uint(length * 8)
		lo := -(int64(1) << (bits - 1))
		hi := (int64(1) << (bits - 1)) - 1
		if raw < lo || raw > hi {
			return nil, rigerr.New(rigerr.ErrValueOutOfRange, "value %d does not fit signed %d-byte field", raw, length)
		}
	} else {
		if raw < 0 {
			return nil, rigerr.New(rigerr.ErrValueOutOfRange, "negative value %d not representable in unsigned format %s", raw, field.Format)
		}
		if !fitsUnsigned(raw, length) {
			return nil, rigerr.New(rigerr.ErrValueOutOfRange, "value %d does not fit unsigned %d-byte field", raw, length)
		}
	}

	u := uint64(raw)
	out := make([]byte, length)
	for i := length - 1; i >= 0; i-- {
		out[i] = byte(u & 0xFF)
		u >>= 8
	}
	if field.Format.LittleEndian() {
		reverseBytes(out)
	}
	return out, nil
}

func reverseBytes(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

func encodeBCD(field FieldSpec, raw int64) ([]byte, error) {
	length := field.Length
	neg := raw < 0
	mag := raw
	if neg {
		mag = -mag
	}

	if !field.Format.Signed() && neg {
		return nil, rigerr.New(rigerr.ErrValueOutOfRange, "negative value %d not representable in unsigned format %s", raw, field.Format)
	}

	magBytes := length
	if field.Format.Signed() {
		magBytes = length - 1
	}
	if magBytes < 0 {
		return nil, rigerr.New(rigerr.ErrValueOutOfRange, "field too short for sign byte")
	}

	digits := fmt.Sprintf("%d", mag)
	maxDigits := magBytes * 2
	if len(digits) > maxDigits {
		return nil, rigerr.New(rigerr.ErrValueOutOfRange, "value %d does not fit %s field of length %d", raw, field.Format, length)
	}
	for len(digits) < maxDigits {
		digits = "0" + digits
	}

	magBCD := make([]byte, magBytes)
	for i := 0; i < magBytes; i++ {
		hi := digits[i*2] - '0'
		lo := digits[i*2+1] - '0'
		magBCD[i] = (hi << 4) | lo
	}

	out := make([]byte, length)
	if field.Format.LittleEndian() {
		for i := 0; i < magBytes; i++ {
			out[i] = magBCD[magBytes-1-i]
		}
	} else {
		copy(out, magBCD)
	}

	if field.Format.Signed() {
		signByte := byte(0x00)
		if neg {
			signByte = 0xFF
		}
		if field.Format.LittleEndian() {
			out[magBytes] = signByte
		} else {
			copy(out[1:], out[:magBytes])
			out[0] = signByte
		}
	}
	return out, nil
}

func fitsUnsigned(mag int64, nBytes int) bool {
	if nBytes <= 0 {
		return mag == 0
	}
	if nBytes >= 8 {
		return mag >= 0
	}
	limit := int64(1) << uint(nBytes*8)
	return mag >= 0 && mag < limit
}
