package codec

import (
	"strconv"
	"strings"

	"github.com/iarc-il/holyrig/rigerr"
)

// ParsePattern compiles a frame literal into a Slot sequence, per spec.md
// §6: hex byte pairs with optional "." separators ("1122.33.????????"), or
// a single parenthesized ASCII run ("(PS1;)") which lowers one byte per
// rune. "?" (doubled, "??") denotes an unknown byte and is only meaningful
// in the hex form.
func ParsePattern(literal string) ([]Slot, error) {
	literal = strings.TrimSpace(literal)
	if literal == "" {
		return nil, rigerr.New(rigerr.ErrConfig, "empty frame pattern")
	}

	if strings.HasPrefix(literal, "(") {
		return parseASCIIPattern(literal)
	}

	return parseHexPattern(literal)
}

func parseASCIIPattern(literal string) ([]Slot, error) {
	if !strings.HasSuffix(literal, ")") {
		return nil, rigerr.New(rigerr.ErrConfig, "unterminated ascii frame literal %q", literal)
	}
	body := literal[1 : len(literal)-1]
	slots := make([]Slot, 0, len(body))
	for _, r := range body {
		if r > 0xFF {
			return nil, rigerr.New(rigerr.ErrConfig, "non-byte rune %q in ascii frame literal", r)
		}
		slots = append(slots, Slot{Fixed: byte(r)})
	}
	return slots, nil
}

func parseHexPattern(literal string) ([]Slot, error) {
	var tokens []string
	for _, part := range strings.Split(literal, ".") {
		if part == "" {
			continue
		}
		if len(part)%2 != 0 {
			return nil, rigerr.New(rigerr.ErrConfig, "frame literal segment %q has odd length", part)
		}
		for i := 0; i < len(part); i += 2 {
			tokens = append(tokens, part[i:i+2])
		}
	}

	if len(tokens) == 0 {
		return nil, rigerr.New(rigerr.ErrConfig, "frame literal %q has no bytes", literal)
	}

	slots := make([]Slot, 0, len(tokens))
	for _, tok := range tokens {
		if tok == "??" {
			slots = append(slots, Slot{Unknown: true})
			continue
		}
		if strings.ContainsRune(tok, '?') {
			return nil, rigerr.New(rigerr.ErrConfig, "malformed unknown-byte marker %q (expected \"??\")", tok)
		}
		v, err := strconv.ParseUint(tok, 16, 8)
		if err != nil {
			return nil, rigerr.New(rigerr.ErrConfig, "invalid hex byte %q: %s", tok, err)
		}
		slots = append(slots, Slot{Fixed: byte(v)})
	}
	return slots, nil
}

// holes returns the contiguous runs of unknown slots in pattern, as
// (start, length) pairs in ascending order. Used through HoleAt by model
// validation (spec.md §4.2 rule 5) to infer a FieldSpec's length.
func holes(pattern []Slot) [][2]int {
	var result [][2]int
	i := 0
	for i < len(pattern) {
		if !pattern[i].Unknown {
			i++
			continue
		}
		start := i
		for i < len(pattern) && pattern[i].Unknown {
			i++
		}
		result = append(result, [2]int{start, i - start})
	}
	return result
}

// HoleAt returns the length of the hole beginning exactly at index, or 0 if
// no hole starts there.
func HoleAt(pattern []Slot, index int) int {
	for _, h := range holes(pattern) {
		if h[0] == index {
			return h[1]
		}
	}
	return 0
}

// CoversOnlyUnknown reports whether [index, index+length) lies entirely
// within pattern and consists only of unknown slots (spec.md §3 FieldSpec
// invariant).
func CoversOnlyUnknown(pattern []Slot, index, length int) bool {
	if index < 0 || length <= 0 || index+length > len(pattern) {
		return false
	}
	for i := index; i < index+length; i++ {
		if !pattern[i].Unknown {
			return false
		}
	}
	return true
}
