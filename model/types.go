// Package model compiles a rig model file (spec.md §4.2) against an
// already-compiled Schema into a Model: enum member->integer mappings,
// compiled FrameTemplates for every supported command and init step, and a
// compiled StatusPoll per polled status field.
//
// Grounded on sttp/metadata/DataSet.go's "named table validated against a
// schema" shape, generalized from telemetry metadata to a command-set
// implementation.
package model

import (
	"github.com/iarc-il/holyrig/codec"
	"github.com/iarc-il/holyrig/schema"
)

// StatusPoll is one status-polling exchange: a parameter-less frame plus
// the status fields extracted from its reply (spec.md §3).
type StatusPoll struct {
	Name   string
	Frame  *codec.FrameTemplate
	Fields map[string]codec.FieldSpec
}

// Decode extracts this poll's status fields from a received reply buffer.
func (sp *StatusPoll) Decode(reply []byte) (map[string]int64, error) {
	tmp := &codec.FrameTemplate{
		Name:     sp.Name,
		Reply:    sp.Frame.Reply,
		Bindings: sp.Fields,
	}
	return codec.Decode(tmp, reply)
}

// Model is the compiled, per-rig implementation of a Schema (spec.md §3).
type Model struct {
	Schema   *schema.Schema
	Enums    map[string]map[string]uint32 // enum name -> member -> raw value
	Init     []*codec.FrameTemplate
	Commands map[string]*codec.FrameTemplate
	Status   map[string]*StatusPoll
}

// EnumRaw looks up the raw integer a Model assigns to an enum member.
// ok is false if the enum or the member is unsupported by this Model.
func (m *Model) EnumRaw(enumName, member string) (uint32, bool) {
	members, ok := m.Enums[enumName]
	if !ok {
		return 0, false
	}
	v, ok := members[member]
	return v, ok
}

// EnumMember reverse-looks-up the member name mapped to a raw integer,
// used when decoding a status/reply field declared as an enum type.
func (m *Model) EnumMember(enumName string, raw uint32) (string, bool) {
	members, ok := m.Enums[enumName]
	if !ok {
		return "", false
	}
	for member, v := range members {
		if v == raw {
			return member, true
		}
	}
	return "", false
}

// SupportsCommand reports whether the Model implements the named command.
func (m *Model) SupportsCommand(name string) bool {
	_, ok := m.Commands[name]
	return ok
}
