package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/iarc-il/holyrig/codec"
	"github.com/iarc-il/holyrig/model"
	"github.com/iarc-il/holyrig/schema"
	"github.com/iarc-il/holyrig/subscription"
)

// fakeRig is a test double satisfying the Rig interface without any serial
// I/O behind it.
type fakeRig struct {
	id        string
	connected bool
	model     *model.Model

	lastCommand string
	lastParams  map[string]int64
	execErr     error
}

func (f *fakeRig) ID() string          { return f.id }
func (f *fakeRig) Connected() bool     { return f.connected }
func (f *fakeRig) Model() *model.Model { return f.model }
func (f *fakeRig) Snapshot() map[string]any { return map[string]any{} }
func (f *fakeRig) ExecuteCommand(ctx context.Context, name string, params map[string]int64) error {
	f.lastCommand = name
	f.lastParams = params
	return f.execErr
}

type fakeSubs struct {
	gotRig    string
	gotFields []string
}

func (f *fakeSubs) Subscribe(rigID string, fields []string) (string, <-chan subscription.Notification, error) {
	f.gotRig = rigID
	f.gotFields = fields
	return "sub_1", make(chan subscription.Notification), nil
}

func buildModel() *model.Model {
	sch := &schema.Schema{
		Version: 1,
		Kind:    "transceiver",
		Enums: map[string]schema.EnumDecl{
			"vfo": {Name: "vfo", Members: []string{"A", "B"}},
		},
		Commands: map[string]schema.Signature{
			"set_freq": {
				{Name: "hz", Type: schema.IntType()},
			},
			"set_vfo": {
				{Name: "which", Type: schema.EnumType("vfo")},
			},
			"unsupported_by_model": {
				{Name: "x", Type: schema.IntType()},
			},
		},
		Status: schema.Signature{
			{Name: "freq", Type: schema.IntType()},
			{Name: "vfo", Type: schema.EnumType("vfo")},
		},
	}

	return &model.Model{
		Schema: sch,
		Enums: map[string]map[string]uint32{
			"vfo": {"A": 0, "B": 1},
		},
		Commands: map[string]*codec.FrameTemplate{
			"set_freq": {Name: "set_freq"},
			"set_vfo":  {Name: "set_vfo"},
		},
		Status: map[string]*model.StatusPoll{
			"freq": {Name: "freq"},
			"vfo":  {Name: "vfo"},
		},
	}
}

func TestListRigs(t *testing.T) {
	m := buildModel()
	rigs := map[string]Rig{
		"ic7300": &fakeRig{id: "ic7300", connected: true, model: m},
		"ft891":  &fakeRig{id: "ft891", connected: false, model: m},
	}
	d := New(rigs, &fakeSubs{}, zerolog.Nop())

	got := d.ListRigs()
	if got["ic7300"] != true || got["ft891"] != false {
		t.Fatalf("ListRigs = %+v", got)
	}
}

// TestGetCapabilitiesExcludesUnsupportedCommand confirms a command present
// in the Schema but absent from the Model never surfaces (spec.md §4.5).
func TestGetCapabilitiesExcludesUnsupportedCommand(t *testing.T) {
	m := buildModel()
	d := New(map[string]Rig{"ic7300": &fakeRig{id: "ic7300", model: m}}, &fakeSubs{}, zerolog.Nop())

	caps, err := d.GetCapabilities("ic7300")
	if err != nil {
		t.Fatalf("GetCapabilities: %s", err)
	}
	if _, ok := caps.Commands["unsupported_by_model"]; ok {
		t.Fatalf("expected unsupported_by_model to be excluded, got %+v", caps.Commands)
	}
	if caps.Commands["set_freq"].Parameters["hz"] != ParamNumber {
		t.Fatalf("set_freq.hz = %v, want number", caps.Commands["set_freq"].Parameters["hz"])
	}
	if caps.Commands["set_vfo"].Parameters["which"] != ParamString {
		t.Fatalf("set_vfo.which = %v, want string", caps.Commands["set_vfo"].Parameters["which"])
	}
	if caps.StatusFields["vfo"] != ParamString {
		t.Fatalf("status_fields.vfo = %v, want string", caps.StatusFields["vfo"])
	}
}

func TestGetCapabilitiesUnknownRig(t *testing.T) {
	d := New(map[string]Rig{}, &fakeSubs{}, zerolog.Nop())
	if _, err := d.GetCapabilities("nope"); err == nil {
		t.Fatalf("expected UnknownRigID error")
	}
}

func TestExecuteCommandCoercesParams(t *testing.T) {
	m := buildModel()
	rig := &fakeRig{id: "ic7300", model: m}
	d := New(map[string]Rig{"ic7300": rig}, &fakeSubs{}, zerolog.Nop())

	err := d.ExecuteCommand(context.Background(), "ic7300", "set_vfo", map[string]any{"which": "B"})
	if err != nil {
		t.Fatalf("ExecuteCommand: %s", err)
	}
	if rig.lastCommand != "set_vfo" {
		t.Fatalf("lastCommand = %q", rig.lastCommand)
	}
	if rig.lastParams["which"] != 1 {
		t.Fatalf("coerced which = %v, want 1", rig.lastParams["which"])
	}
}

// TestExecuteCommandRejectsOutOfRangeInt is the spec.md §4.5 /  §1 boundary
// range check: int parameters are unsigned 32-bit, so a negative or
// over-32-bit value must be rejected at coercion time rather than reaching
// the codec.
func TestExecuteCommandRejectsOutOfRangeInt(t *testing.T) {
	m := buildModel()

	negative := &fakeRig{id: "ic7300", model: m}
	d := New(map[string]Rig{"ic7300": negative}, &fakeSubs{}, zerolog.Nop())
	if err := d.ExecuteCommand(context.Background(), "ic7300", "set_freq", map[string]any{"hz": float64(-5)}); err == nil {
		t.Fatalf("expected error for negative hz")
	}

	tooLarge := &fakeRig{id: "ic7300", model: m}
	d = New(map[string]Rig{"ic7300": tooLarge}, &fakeSubs{}, zerolog.Nop())
	if err := d.ExecuteCommand(context.Background(), "ic7300", "set_freq", map[string]any{"hz": float64(9999999999)}); err == nil {
		t.Fatalf("expected error for hz beyond uint32 range")
	}
}

func TestExecuteCommandRejectsUnknownEnumMember(t *testing.T) {
	m := buildModel()
	d := New(map[string]Rig{"ic7300": &fakeRig{id: "ic7300", model: m}}, &fakeSubs{}, zerolog.Nop())

	err := d.ExecuteCommand(context.Background(), "ic7300", "set_vfo", map[string]any{"which": "C"})
	if err == nil {
		t.Fatalf("expected error for unknown enum member")
	}
}

func TestExecuteCommandRejectsModelUnsupportedCommand(t *testing.T) {
	m := buildModel()
	d := New(map[string]Rig{"ic7300": &fakeRig{id: "ic7300", model: m}}, &fakeSubs{}, zerolog.Nop())

	err := d.ExecuteCommand(context.Background(), "ic7300", "unsupported_by_model", map[string]any{"x": float64(1)})
	if err == nil {
		t.Fatalf("expected UnsupportedCommand error")
	}
}

func TestExecuteCommandPropagatesRuntimeError(t *testing.T) {
	m := buildModel()
	wantErr := errors.New("boom")
	rig := &fakeRig{id: "ic7300", model: m, execErr: wantErr}
	d := New(map[string]Rig{"ic7300": rig}, &fakeSubs{}, zerolog.Nop())

	err := d.ExecuteCommand(context.Background(), "ic7300", "set_freq", map[string]any{"hz": float64(14250000)})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected propagated error, got %v", err)
	}
}

func TestSubscribeStatusDelegatesToManager(t *testing.T) {
	m := buildModel()
	subs := &fakeSubs{}
	d := New(map[string]Rig{"ic7300": &fakeRig{id: "ic7300", model: m}}, subs, zerolog.Nop())

	id, _, err := d.SubscribeStatus("ic7300", []string{"freq"})
	if err != nil {
		t.Fatalf("SubscribeStatus: %s", err)
	}
	if id != "sub_1" || subs.gotRig != "ic7300" || len(subs.gotFields) != 1 {
		t.Fatalf("unexpected delegation: id=%q subs=%+v", id, subs)
	}
}

func TestSubscribeStatusUnknownRig(t *testing.T) {
	d := New(map[string]Rig{}, &fakeSubs{}, zerolog.Nop())
	if _, _, err := d.SubscribeStatus("nope", []string{"freq"}); err == nil {
		t.Fatalf("expected UnknownRigID error")
	}
}
