package model

import (
	"fmt"
	"strings"

	"github.com/iarc-il/holyrig/codec"
	"github.com/iarc-il/holyrig/rigerr"
	"github.com/iarc-il/holyrig/schema"
	"github.com/pelletier/go-toml/v2"
	"github.com/shopspring/decimal"
)

// Compile parses model source against an already-compiled Schema,
// enforcing validation rules 1-7 of spec.md §4.2 in order. Malformed TOML
// aborts immediately; every other error, an unparseable frame literal
// included, accumulates and is returned together as a *MultiError.
func Compile(src []byte, sch *schema.Schema) (*Model, error) {
	var doc tomlDoc
	if err := toml.Unmarshal(src, &doc); err != nil {
		return nil, rigerr.New(rigerr.ErrConfig, "malformed model file: %s", err)
	}

	c := &compiler{doc: &doc, schema: sch, model: &Model{
		Schema:   sch,
		Enums:    map[string]map[string]uint32{},
		Commands: map[string]*codec.FrameTemplate{},
		Status:   map[string]*StatusPoll{},
	}}

	c.checkGeneral()     // rule 1
	c.compileEnums()     // rule 2
	c.compileCommands()  // rule 3, 4, 5, 6
	c.compileInit()      // rule 4
	c.compileStatus()    // rule 4, 5, 6, 7

	if len(c.errs) > 0 {
		return c.model, &MultiError{Errors: c.errs}
	}
	return c.model, nil
}

type compiler struct {
	doc    *tomlDoc
	schema *schema.Schema
	model  *Model
	errs   []error
}

func (c *compiler) fail(format string, args ...any) {
	c.errs = append(c.errs, rigerr.New(rigerr.ErrConfig, format, args...))
}

// rule 1: general.type and general.version must equal the Schema's.
func (c *compiler) checkGeneral() {
	if !strings.EqualFold(c.doc.General.Type, c.schema.Kind) {
		c.fail("general.type %q does not match schema kind %q", c.doc.General.Type, c.schema.Kind)
	}
	if c.doc.General.Version != c.schema.Version {
		c.fail("general.version %d does not match schema version %d", c.doc.General.Version, c.schema.Version)
	}
}

// rule 2: every enum present in the model must refer to a Schema enum, and
// every mapped member must be declared on that enum. Members may be
// omitted (unsupported).
func (c *compiler) compileEnums() {
	for name, raw := range c.doc.Enums {
		decl, ok := c.schema.Enums[name]
		if !ok {
			c.fail("model enum %q is not declared in schema", name)
			continue
		}
		members := map[string]uint32{}
		for _, pair := range raw.Values {
			if len(pair) != 2 {
				c.fail("enum %q: malformed value entry %v (want [member, integer])", name, pair)
				continue
			}
			member, ok := pair[0].(string)
			if !ok {
				c.fail("enum %q: member name must be a string, got %v", name, pair[0])
				continue
			}
			if !decl.HasMember(member) {
				c.fail("enum %q: member %q is not declared in schema", name, member)
				continue
			}
			raw, err := toUint32(pair[1])
			if err != nil {
				c.fail("enum %q member %q: %s", name, member, err)
				continue
			}
			members[member] = raw
		}
		c.model.Enums[name] = members
	}
}

// rule 3: every model command must appear in the Schema with the same
// parameter names and types; the model may not introduce new commands.
func (c *compiler) compileCommands() {
	for name, raw := range c.doc.Commands {
		sig, ok := c.schema.Commands[name]
		if !ok {
			c.fail("model command %q is not declared in schema", name)
			continue
		}

		frame := c.compileFrameSpec(raw.Pattern, raw.ReplyLength, raw.ReplyEnd, raw.Validate, "command \""+name+"\"")
		if frame == nil {
			continue
		}
		frame.Name = name
		frame.Bindings = map[string]codec.FieldSpec{}

		seenParams := map[string]bool{}
		for pname, tf := range raw.Params {
			seenParams[pname] = true
			param, ok := sig.Find(pname)
			if !ok {
				c.fail("command %q: parameter %q is not declared in schema", name, pname)
				continue
			}
			field, ok := c.compileField(pname, tf, frame.Pattern, "command \""+name+"\"")
			if !ok {
				continue
			}
			_ = param // type-checking beyond presence is enforced at the dispatch coercion boundary
			frame.Bindings[pname] = field
		}

		for _, p := range sig {
			if !seenParams[p.Name] {
				c.fail("command %q: schema parameter %q has no binding in model", name, p.Name)
			}
		}

		c.model.Commands[name] = frame
	}
}

func (c *compiler) compileInit() {
	for i, raw := range c.doc.Init {
		frame := c.compileFrameSpec(raw.Pattern, raw.ReplyLength, raw.ReplyEnd, raw.Validate, fmt.Sprintf("init[%d]", i))
		if frame == nil {
			continue
		}
		frame.Name = fmt.Sprintf("init[%d]", i)
		c.model.Init = append(c.model.Init, frame)
	}
}

// rule 7: status field specs apply to the reply buffer and must cover only
// unknown slots within the reply mask.
func (c *compiler) compileStatus() {
	for name, raw := range c.doc.Status {
		frame := c.compileFrameSpec(raw.Pattern, raw.ReplyLength, raw.ReplyEnd, raw.Validate, "status \""+name+"\"")
		if frame == nil {
			continue
		}
		frame.Name = name

		poll := &StatusPoll{Name: name, Frame: frame, Fields: map[string]codec.FieldSpec{}}

		replyPattern := frame.Reply.Mask
		if replyPattern == nil {
			// fixed-length/terminator replies have no mask; synthesize an
			// all-unknown pattern the size of the expected reply so field
			// coverage can still be checked. A terminator reply has no
			// known size, so its pattern is empty and every field on it is
			// rejected.
			replyPattern = make([]codec.Slot, replyLengthOf(frame.Reply))
			for i := range replyPattern {
				replyPattern[i] = codec.Slot{Unknown: true}
			}
		}

		for fname, tf := range raw.Fields {
			statusField, ok := c.schema.Status.Find(fname)
			if !ok {
				c.fail("status %q: field %q is not declared in schema status vector", name, fname)
				continue
			}
			_ = statusField
			field, ok := c.compileField(fname, tf, replyPattern, "status \""+name+"\"")
			if !ok {
				continue
			}
			poll.Fields[fname] = field
		}

		c.model.Status[name] = poll
	}
}

func replyLengthOf(r codec.ReplySpec) int {
	switch r.Kind {
	case codec.ReplyKind.FixedLength:
		return r.Length
	case codec.ReplyKind.Validate:
		return len(r.Mask)
	default:
		return 0
	}
}

// compileFrameSpec implements rules 4 and 6: parse the pattern, and
// enforce that reply_length/reply_end/validate are mutually exclusive.
func (c *compiler) compileFrameSpec(pattern string, replyLength, replyEnd *int, validate, context string) *codec.FrameTemplate {
	slots, err := codec.ParsePattern(pattern)
	if err != nil {
		c.fail("%s: %s", context, err)
		return nil
	}

	formsSet := 0
	if replyLength != nil {
		formsSet++
	}
	if replyEnd != nil {
		formsSet++
	}
	if validate != "" {
		formsSet++
	}
	if formsSet > 1 {
		c.fail("%s: reply_length, reply_end and validate are mutually exclusive", context)
		return nil
	}

	var reply codec.ReplySpec
	switch {
	case validate != "":
		mask, err := codec.ParsePattern(validate)
		if err != nil {
			c.fail("%s: invalid validate mask: %s", context, err)
			return nil
		}
		reply = codec.ReplySpec{Kind: codec.ReplyKind.Validate, Mask: mask}
	case replyEnd != nil:
		reply = codec.ReplySpec{Kind: codec.ReplyKind.Terminator, Terminator: byte(*replyEnd)}
	case replyLength != nil:
		reply = codec.ReplySpec{Kind: codec.ReplyKind.FixedLength, Length: *replyLength}
	default:
		// No reply form specified: treat as a zero-length, fire-and-forget
		// exchange (valid for some init/command frames that expect no reply).
		reply = codec.ReplySpec{Kind: codec.ReplyKind.FixedLength, Length: 0}
	}

	return &codec.FrameTemplate{Pattern: slots, Reply: reply}
}

// compileField implements rule 5: index must be within pattern length and
// cover only unknown slots; length may be omitted only when index sits at
// a hole start.
func (c *compiler) compileField(name string, tf tomlField, pattern []codec.Slot, context string) (codec.FieldSpec, bool) {
	format, ok := parseFormat(tf.Format)
	if !ok {
		c.fail("%s field %q: unknown format %q", context, name, tf.Format)
		return codec.FieldSpec{}, false
	}

	length := 0
	if tf.Length != nil {
		length = *tf.Length
	} else {
		length = codec.HoleAt(pattern, tf.Index)
		if length == 0 {
			c.fail("%s field %q: length omitted but index %d is not the start of a hole", context, name, tf.Index)
			return codec.FieldSpec{}, false
		}
	}

	if !codec.CoversOnlyUnknown(pattern, tf.Index, length) {
		c.fail("%s field %q: [%d,%d) does not cover only unknown slots", context, name, tf.Index, tf.Index+length)
		return codec.FieldSpec{}, false
	}

	add, err := toDecimal(tf.Add, decimal.Zero)
	if err != nil {
		c.fail("%s field %q: add: %s", context, name, err)
		return codec.FieldSpec{}, false
	}
	multiply, err := toDecimal(tf.Multiply, decimal.NewFromInt(1))
	if err != nil {
		c.fail("%s field %q: multiply: %s", context, name, err)
		return codec.FieldSpec{}, false
	}

	return codec.FieldSpec{
		Name:     name,
		Index:    tf.Index,
		Length:   length,
		Format:   format,
		Add:      add,
		Multiply: multiply,
	}, true
}

func parseFormat(name string) (codec.FormatEnum, bool) {
	switch strings.ToLower(name) {
	case "text":
		return codec.Format.TextASCII, true
	case "int_bu":
		return codec.Format.IntBU, true
	case "int_lu":
		return codec.Format.IntLU, true
	case "int_bs":
		return codec.Format.IntBS, true
	case "int_ls":
		return codec.Format.IntLS, true
	case "bcd_bu":
		return codec.Format.BCDBU, true
	case "bcd_lu":
		return codec.Format.BCDLU, true
	case "bcd_bs":
		return codec.Format.BCDBS, true
	case "bcd_ls":
		return codec.Format.BCDLS, true
	case "yaesu":
		return codec.Format.Yaesu, true
	default:
		return 0, false
	}
}

func toUint32(v any) (uint32, error) {
	switch n := v.(type) {
	case int64:
		if n < 0 || n > int64(^uint32(0)) {
			return 0, fmt.Errorf("integer %d out of uint32 range", n)
		}
		return uint32(n), nil
	case float64:
		return uint32(n), nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}

func toDecimal(v any, def decimal.Decimal) (decimal.Decimal, error) {
	switch n := v.(type) {
	case nil:
		return def, nil
	case int64:
		return decimal.NewFromInt(n), nil
	case float64:
		return decimal.NewFromFloat(n), nil
	case string:
		return decimal.NewFromString(n)
	default:
		return decimal.Zero, fmt.Errorf("expected number, got %T", v)
	}
}
