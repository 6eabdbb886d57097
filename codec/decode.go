package codec

import (
	"strconv"
	"strings"

	"github.com/iarc-il/holyrig/rigerr"
)

// Decode extracts raw integer values for every FieldSpec in template from a
// received reply buffer (spec.md §4.3 Decode). If template.Reply is a
// Validate mask, the buffer is checked against it first; a mismatch yields
// ErrReplyValidationFailed before any field is read.
func Decode(template *FrameTemplate, buf []byte) (map[string]int64, error) {
	if template.Reply.Kind == ReplyKind.Validate {
		if err := validateMask(template.Reply.Mask, buf); err != nil {
			return nil, err
		}
	}

	values := make(map[string]int64, len(template.Bindings))
	for name, field := range template.Bindings {
		if field.Index+field.Length > len(buf) {
			return nil, rigerr.New(rigerr.ErrReplyValidationFailed, "field %q extends past reply of length %d", name, len(buf))
		}
		raw, err := decodeField(field, buf[field.Index:field.Index+field.Length])
		if err != nil {
			return nil, err
		}
		value, err := invertTransform(raw, field.Add, field.Multiply)
		if err != nil {
			return nil, err
		}
		values[name] = value
	}
	return values, nil
}

func validateMask(mask []Slot, buf []byte) error {
	if len(buf) < len(mask) {
		return rigerr.New(rigerr.ErrReplyValidationFailed, "reply too short: got %d bytes, want %d", len(buf), len(mask))
	}
	for i, slot := range mask {
		if !slot.Unknown && buf[i] != slot.Fixed {
			return rigerr.New(rigerr.ErrReplyValidationFailed, "byte %d: got 0x%02X, want 0x%02X", i, buf[i], slot.Fixed)
		}
	}
	return nil
}

func decodeField(field FieldSpec, data []byte) (int64, error) {
	switch field.Format {
	case Format.TextASCII:
		return decodeText(data)
	case Format.Yaesu:
		return 0, rigerr.New(rigerr.ErrNotImplemented, "yaesu format decoder not implemented")
	default:
		if field.Format.BCD() {
			return decodeBCD(field, data)
		}
		return decodeInt(field, data)
	}
}

func decodeText(data []byte) (int64, error) {
	s := strings.TrimSpace(string(data))
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, rigerr.New(rigerr.ErrReplyValidationFailed, "invalid text integer %q: %s", s, err)
	}
	return v, nil
}

// decodeInt reads data as a plain two's complement integer, the mirror of
// encodeInt: int_bs/int_ls sign-extend across the whole field, they do not
// carry a separate sign byte the way bcd_*s formats do.
func decodeInt(field FieldSpec, data []byte) (int64, error) {
	length := len(data)
	ordered := data
	if field.Format.LittleEndian() {
		ordered = make([]byte, length)
		for i, b := range data {
			ordered[length-1-i] = b
		}
	}

	var u uint64
	for _, b := range ordered {
		u = (u << 8) | uint64(b)
	}

	if field.Format.Signed() {
		bits := uint(length * 8)
		signBit := uint64(1) << (bits - 1)
		if u&signBit != 0 && bits < 64 {
			u |= ^uint64(0) << bits
		}
	}

	return int64(u), nil
}

func decodeBCD(field FieldSpec, data []byte) (int64, error) {
	length := len(data)
	neg := false
	mag := data

	if field.Format.Signed() {
		var signByte byte
		if field.Format.LittleEndian() {
			signByte = data[length-1]
			mag = data[:length-1]
		} else {
			signByte = data[0]
			mag = data[1:]
		}
		switch signByte {
		case 0x00:
			neg = false
		case 0xFF:
			neg = true
		default:
			return 0, rigerr.New(rigerr.ErrReplyValidationFailed, "invalid bcd sign byte 0x%02X", signByte)
		}
	}

	ordered := mag
	if field.Format.LittleEndian() {
		ordered = make([]byte, len(mag))
		for i, b := range mag {
			ordered[len(mag)-1-i] = b
		}
	}

	var digits strings.Builder
	for _, b := range ordered {
		hi := b >> 4
		lo := b & 0x0F
		if hi > 9 || lo > 9 {
			return 0, rigerr.New(rigerr.ErrReplyValidationFailed, "invalid bcd byte 0x%02X", b)
		}
		digits.WriteByte('0' + hi)
		digits.WriteByte('0' + lo)
	}

	v, err := strconv.ParseInt(digits.String(), 10, 64)
	if err != nil {
		return 0, rigerr.New(rigerr.ErrReplyValidationFailed, "invalid bcd digits %q: %s", digits.String(), err)
	}
	if neg {
		v = -v
	}
	return v, nil
}
