package model

import (
	"errors"
	"strings"
	"testing"

	"github.com/iarc-il/holyrig/schema"
)

const sampleModelSchema = `
version = 1
schema transceiver {
	enum Vfo { Current, A, B }

	fn set_freq(int freq);
	fn set_vfo(Vfo vfo);

	status {
		int freq;
		Vfo vfo;
	}
}
`

func mustSchema(t *testing.T) *schema.Schema {
	t.Helper()
	sch, err := schema.Parse(sampleModelSchema)
	if err != nil {
		t.Fatalf("schema.Parse: %s", err)
	}
	return sch
}

const sampleModel = `
[general]
type = "transceiver"
version = 1

[enums.Vfo]
values = [["Current", 0], ["A", 1], ["B", 2]]

[[init]]
pattern = "FEFE.01.FE"
reply_end = 0xFD

[commands.set_freq]
pattern = "1122.33.????????"
reply_length = 1

[commands.set_freq.params.freq]
index = 3
format = "bcd_lu"
add = 0
multiply = 1

[commands.set_vfo]
pattern = "11.22.??"
reply_length = 1

[commands.set_vfo.params.vfo]
index = 2
length = 1
format = "int_bu"

[status.main]
pattern = "44.??.??.??.??.??"
reply_length = 6

[status.main.fields.freq]
index = 1
length = 4
format = "bcd_lu"

[status.main.fields.vfo]
index = 5
length = 1
format = "int_bu"
`

func TestCompileSample(t *testing.T) {
	sch := mustSchema(t)
	m, err := Compile([]byte(sampleModel), sch)
	if err != nil {
		t.Fatalf("Compile: %s", err)
	}
	if !m.SupportsCommand("set_freq") || !m.SupportsCommand("set_vfo") {
		t.Fatalf("expected both commands supported, got %+v", m.Commands)
	}
	if raw, ok := m.EnumRaw("Vfo", "A"); !ok || raw != 1 {
		t.Fatalf("EnumRaw(Vfo, A) = %d, %v, want 1, true", raw, ok)
	}
	if member, ok := m.EnumMember("Vfo", 2); !ok || member != "B" {
		t.Fatalf("EnumMember(Vfo, 2) = %q, %v, want B, true", member, ok)
	}
	if len(m.Init) != 1 {
		t.Fatalf("expected 1 init step, got %d", len(m.Init))
	}
	poll, ok := m.Status["main"]
	if !ok {
		t.Fatalf("expected status poll %q", "main")
	}
	if len(poll.Fields) != 2 {
		t.Fatalf("expected 2 status fields, got %d", len(poll.Fields))
	}
}

func TestCompileUnknownCommandRejected(t *testing.T) {
	sch := mustSchema(t)
	src := sampleModel + `
[commands.not_a_real_command]
pattern = "AA"
reply_length = 0
`
	_, err := Compile([]byte(src), sch)
	if err == nil || !strings.Contains(err.Error(), "not declared in schema") {
		t.Fatalf("expected undeclared-command error, got %v", err)
	}
	var multi *MultiError
	if !errors.As(err, &multi) {
		t.Fatalf("expected *MultiError, got %T", err)
	}
}

func TestCompileMissingParamBindingRejected(t *testing.T) {
	sch := mustSchema(t)
	src := `
[general]
type = "transceiver"
version = 1

[commands.set_freq]
pattern = "1122.33.????????"
reply_length = 1
`
	_, err := Compile([]byte(src), sch)
	if err == nil || !strings.Contains(err.Error(), "has no binding") {
		t.Fatalf("expected missing-binding error, got %v", err)
	}
}

func TestCompileMutuallyExclusiveReplyForms(t *testing.T) {
	sch := mustSchema(t)
	src := `
[general]
type = "transceiver"
version = 1

[commands.set_freq]
pattern = "1122.33.????????"
reply_length = 1
reply_end = 13

[commands.set_freq.params.freq]
index = 3
format = "bcd_lu"
`
	_, err := Compile([]byte(src), sch)
	if err == nil || !strings.Contains(err.Error(), "mutually exclusive") {
		t.Fatalf("expected mutual-exclusivity error, got %v", err)
	}
}

func TestCompileFieldOverlapsFixedByteRejected(t *testing.T) {
	sch := mustSchema(t)
	src := `
[general]
type = "transceiver"
version = 1

[commands.set_freq]
pattern = "1122.33.????????"
reply_length = 1

[commands.set_freq.params.freq]
index = 2
length = 4
format = "bcd_lu"
`
	_, err := Compile([]byte(src), sch)
	if err == nil || !strings.Contains(err.Error(), "does not cover only unknown slots") {
		t.Fatalf("expected coverage error, got %v", err)
	}
}

func TestCompileWrongGeneralTypeRejected(t *testing.T) {
	sch := mustSchema(t)
	src := `
[general]
type = "receiver"
version = 1
`
	_, err := Compile([]byte(src), sch)
	if err == nil || !strings.Contains(err.Error(), "does not match schema kind") {
		t.Fatalf("expected kind-mismatch error, got %v", err)
	}
}

func TestCompileUnknownEnumMemberRejected(t *testing.T) {
	sch := mustSchema(t)
	src := `
[general]
type = "transceiver"
version = 1

[enums.Vfo]
values = [["Bogus", 9]]
`
	_, err := Compile([]byte(src), sch)
	if err == nil || !strings.Contains(err.Error(), "is not declared in schema") {
		t.Fatalf("expected unknown-member error, got %v", err)
	}
}
