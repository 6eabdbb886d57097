package schema

import (
	"strconv"
	"strings"

	"github.com/iarc-il/holyrig/rigerr"
)

type rawParam struct {
	name     string
	typeName string
	span     rigerr.Span
}

type rawSignature []rawParam

type parser struct {
	lex *lexer
	cur token

	version  int
	kindName string
	enums    map[string]EnumDecl
	commands map[string]rawSignature
	cmdSpans map[string]rigerr.Span
	status   rawSignature

	semantic []error
}

// Parse compiles schema source text into a Schema. A structural or
// lexical error aborts immediately and is returned alone; semantic errors
// (duplicate names, unknown types, empty enums, wrong version) are
// accumulated and returned together as a *MultiError once the rest of the
// block parses structurally.
func Parse(src string) (*Schema, error) {
	p := &parser{
		lex:      newLexer(src),
		enums:    map[string]EnumDecl{},
		commands: map[string]rawSignature{},
		cmdSpans: map[string]rigerr.Span{},
	}

	if err := p.advance(); err != nil {
		return nil, err
	}

	if err := p.parseDocument(); err != nil {
		return nil, err
	}

	schema, errs := p.resolve()
	p.semantic = append(p.semantic, errs...)

	if len(p.semantic) > 0 {
		return schema, &MultiError{Errors: p.semantic}
	}
	return schema, nil
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.cur = tok
	return nil
}

func (p *parser) expectSymbol(sym string) error {
	if p.cur.kind != tokSymbol || p.cur.text != sym {
		return rigerr.NewAt(rigerr.ErrConfig, p.cur.span, "expected %q, found %q", sym, p.cur.text)
	}
	return p.advance()
}

func (p *parser) expectIdent(word string) error {
	if p.cur.kind != tokIdent || !strings.EqualFold(p.cur.text, word) {
		return rigerr.NewAt(rigerr.ErrConfig, p.cur.span, "expected %q, found %q", word, p.cur.text)
	}
	return p.advance()
}

func (p *parser) expectAnyIdent() (token, error) {
	if p.cur.kind != tokIdent {
		return token{}, rigerr.NewAt(rigerr.ErrConfig, p.cur.span, "expected identifier, found %q", p.cur.text)
	}
	tok := p.cur
	return tok, p.advance()
}

func (p *parser) parseDocument() error {
	if err := p.expectIdent("version"); err != nil {
		return err
	}
	if err := p.expectSymbol("="); err != nil {
		return err
	}
	if p.cur.kind != tokNumber {
		return rigerr.NewAt(rigerr.ErrConfig, p.cur.span, "expected version number, found %q", p.cur.text)
	}
	n, err := strconv.Atoi(p.cur.text)
	if err != nil {
		return rigerr.NewAt(rigerr.ErrConfig, p.cur.span, "invalid version number %q", p.cur.text)
	}
	versionSpan := p.cur.span
	if err := p.advance(); err != nil {
		return err
	}
	p.version = n
	if n != 1 {
		p.semantic = append(p.semantic, rigerr.NewAt(rigerr.ErrConfig, versionSpan, "unsupported schema version %d (only version 1 is defined)", n))
	}

	if err := p.expectIdent("schema"); err != nil {
		return err
	}
	nameTok, err := p.expectAnyIdent()
	if err != nil {
		return err
	}
	p.kindName = nameTok.text

	if err := p.expectSymbol("{"); err != nil {
		return err
	}

	for {
		if p.cur.kind == tokSymbol && p.cur.text == "}" {
			return p.advance()
		}
		if p.cur.kind == tokEOF {
			return rigerr.NewAt(rigerr.ErrConfig, p.cur.span, "unterminated schema block: expected \"}\"")
		}
		if p.cur.kind != tokIdent {
			return rigerr.NewAt(rigerr.ErrConfig, p.cur.span, "expected \"enum\", \"fn\", \"status\" or \"}\", found %q", p.cur.text)
		}
		switch strings.ToLower(p.cur.text) {
		case "enum":
			if err := p.parseEnum(); err != nil {
				return err
			}
		case "fn":
			if err := p.parseFn(); err != nil {
				return err
			}
		case "status":
			if err := p.parseStatus(); err != nil {
				return err
			}
		default:
			return rigerr.NewAt(rigerr.ErrConfig, p.cur.span, "expected \"enum\", \"fn\", \"status\" or \"}\", found %q", p.cur.text)
		}
	}
}

func (p *parser) parseEnum() error {
	if err := p.expectIdent("enum"); err != nil {
		return err
	}
	nameTok, err := p.expectAnyIdent()
	if err != nil {
		return err
	}
	if err := p.expectSymbol("{"); err != nil {
		return err
	}

	var members []string
	seen := map[string]bool{}
	for {
		if p.cur.kind == tokSymbol && p.cur.text == "}" {
			if err := p.advance(); err != nil {
				return err
			}
			break
		}
		memberTok, err := p.expectAnyIdent()
		if err != nil {
			return err
		}
		if seen[memberTok.text] {
			p.semantic = append(p.semantic, rigerr.NewAt(rigerr.ErrConfig, memberTok.span, "duplicate member %q in enum %q", memberTok.text, nameTok.text))
		} else {
			seen[memberTok.text] = true
			members = append(members, memberTok.text)
		}

		if p.cur.kind == tokSymbol && p.cur.text == "," {
			if err := p.advance(); err != nil {
				return err
			}
			continue
		}
		if p.cur.kind == tokSymbol && p.cur.text == "}" {
			if err := p.advance(); err != nil {
				return err
			}
			break
		}
		return rigerr.NewAt(rigerr.ErrConfig, p.cur.span, "expected \",\" or \"}\" in enum %q, found %q", nameTok.text, p.cur.text)
	}

	if len(members) == 0 {
		p.semantic = append(p.semantic, rigerr.NewAt(rigerr.ErrConfig, nameTok.span, "enum %q has no members", nameTok.text))
	}
	if _, dup := p.enums[nameTok.text]; dup {
		p.semantic = append(p.semantic, rigerr.NewAt(rigerr.ErrConfig, nameTok.span, "duplicate enum name %q", nameTok.text))
	} else {
		p.enums[nameTok.text] = EnumDecl{Name: nameTok.text, Members: members}
	}
	return nil
}

func (p *parser) parseFn() error {
	if err := p.expectIdent("fn"); err != nil {
		return err
	}
	nameTok, err := p.expectAnyIdent()
	if err != nil {
		return err
	}
	if err := p.expectSymbol("("); err != nil {
		return err
	}

	sig, err := p.parseParamList(")")
	if err != nil {
		return err
	}
	if err := p.expectSymbol(")"); err != nil {
		return err
	}
	if err := p.expectSymbol(";"); err != nil {
		return err
	}

	if _, dup := p.commands[nameTok.text]; dup {
		p.semantic = append(p.semantic, rigerr.NewAt(rigerr.ErrConfig, nameTok.span, "duplicate command name %q", nameTok.text))
	} else {
		p.commands[nameTok.text] = sig
		p.cmdSpans[nameTok.text] = nameTok.span
	}
	return nil
}

func (p *parser) parseStatus() error {
	if err := p.expectIdent("status"); err != nil {
		return err
	}
	if err := p.expectSymbol("{"); err != nil {
		return err
	}

	var fields rawSignature
	seen := map[string]bool{}
	for {
		if p.cur.kind == tokSymbol && p.cur.text == "}" {
			p.status = fields
			return p.advance()
		}
		typeTok, err := p.expectAnyIdent()
		if err != nil {
			return err
		}
		nameTok, err := p.expectAnyIdent()
		if err != nil {
			return err
		}
		if err := p.expectSymbol(";"); err != nil {
			return err
		}
		if seen[nameTok.text] {
			p.semantic = append(p.semantic, rigerr.NewAt(rigerr.ErrConfig, nameTok.span, "duplicate status field name %q", nameTok.text))
		} else {
			seen[nameTok.text] = true
			fields = append(fields, rawParam{name: nameTok.text, typeName: typeTok.text, span: typeTok.span})
		}
	}
}

// parseParamList parses a comma-separated "<type> <name>" list, tolerating
// a trailing comma, up to (but not consuming) the closing token.
func (p *parser) parseParamList(closing string) (rawSignature, error) {
	var params rawSignature
	seen := map[string]bool{}

	for {
		if p.cur.kind == tokSymbol && p.cur.text == closing {
			return params, nil
		}
		typeTok, err := p.expectAnyIdent()
		if err != nil {
			return nil, err
		}
		nameTok, err := p.expectAnyIdent()
		if err != nil {
			return nil, err
		}
		if seen[nameTok.text] {
			p.semantic = append(p.semantic, rigerr.NewAt(rigerr.ErrConfig, nameTok.span, "duplicate parameter name %q", nameTok.text))
		} else {
			seen[nameTok.text] = true
			params = append(params, rawParam{name: nameTok.text, typeName: typeTok.text, span: typeTok.span})
		}

		if p.cur.kind == tokSymbol && p.cur.text == "," {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		if p.cur.kind == tokSymbol && p.cur.text == closing {
			return params, nil
		}
		return nil, rigerr.NewAt(rigerr.ErrConfig, p.cur.span, "expected \",\" or %q, found %q", closing, p.cur.text)
	}
}

// resolve turns the raw, type-name-as-string parse tree into a fully typed
// Schema, matching each type name against "int", "bool" (reserved,
// case-insensitive) or a declared enum (also case-insensitive). This runs
// after the whole block has parsed so enum declarations may appear in any
// order relative to the fn/status blocks that reference them.
func (p *parser) resolve() (*Schema, []error) {
	var errs []error

	resolveType := func(typeName string, span rigerr.Span, context string) Type {
		lower := strings.ToLower(typeName)
		switch lower {
		case "int":
			return IntType()
		case "bool":
			return BoolType()
		}
		for name := range p.enums {
			if strings.EqualFold(name, typeName) {
				return EnumType(name)
			}
		}
		errs = append(errs, rigerr.NewAt(rigerr.ErrConfig, span, "unknown type %q in %s", typeName, context))
		return Type{}
	}

	commands := make(map[string]Signature, len(p.commands))
	for name, raw := range p.commands {
		sig := make(Signature, len(raw))
		for i, rp := range raw {
			sig[i] = Param{Name: rp.name, Type: resolveType(rp.typeName, rp.span, "command \""+name+"\"")}
		}
		commands[name] = sig
	}

	status := make(Signature, len(p.status))
	for i, rp := range p.status {
		status[i] = Param{Name: rp.name, Type: resolveType(rp.typeName, rp.span, "status vector")}
	}

	schema := &Schema{
		Version:  p.version,
		Kind:     p.kindName,
		Enums:    p.enums,
		Commands: commands,
		Status:   status,
	}
	return schema, errs
}
