package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/iarc-il/holyrig/codec"
	"github.com/iarc-il/holyrig/model"
	"github.com/iarc-il/holyrig/schema"
)

// fakeChannel is a byte-duplex test double: Read yields queued bytes, then
// reports a timeout once exhausted, simulating a rig that stops answering.
type fakeChannel struct {
	toRead  []byte
	pos     int
	written [][]byte
	closed  bool
}

func (f *fakeChannel) Write(p []byte) (int, error) {
	cp := append([]byte(nil), p...)
	f.written = append(f.written, cp)
	return len(p), nil
}

func (f *fakeChannel) Read(p []byte) (int, error) {
	if f.pos >= len(f.toRead) {
		return 0, fakeTimeout{}
	}
	p[0] = f.toRead[f.pos]
	f.pos++
	return 1, nil
}

func (f *fakeChannel) Close() error { f.closed = true; return nil }

func (f *fakeChannel) SetReadDeadline(time.Time) error { return nil }

type fakeTimeout struct{}

func (fakeTimeout) Error() string { return "i/o timeout" }
func (fakeTimeout) Timeout() bool { return true }

func emptySchema() *schema.Schema {
	return &schema.Schema{
		Version:  1,
		Kind:     "transceiver",
		Enums:    map[string]schema.EnumDecl{},
		Commands: map[string]schema.Signature{},
		Status:   schema.Signature{},
	}
}

func waitForState(t *testing.T, r *RigInstance, want string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if r.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %q, got %q", want, r.State())
}

// TestInitRetryExhaustionTransitionsNotResponding is the §8 S5 scenario: an
// init frame that never gets a reply moves the rig to NotResponding after R
// retries.
func TestInitRetryExhaustionTransitionsNotResponding(t *testing.T) {
	m := &model.Model{
		Schema: emptySchema(),
		Enums:  map[string]map[string]uint32{},
		Init: []*codec.FrameTemplate{{
			Name:     "wake",
			Pattern:  []codec.Slot{{Fixed: 0xFE}, {Fixed: 0xFE}},
			Reply:    codec.ReplySpec{Kind: codec.ReplyKind.FixedLength, Length: 1},
			Bindings: map[string]codec.FieldSpec{},
		}},
		Commands: map[string]*codec.FrameTemplate{},
		Status:   map[string]*model.StatusPoll{},
	}

	r := New(Config{
		ID:              "ic7300",
		Model:           m,
		Dial:            func() (Channel, error) { return &fakeChannel{}, nil },
		InitRetries:     3,
		ExchangeTimeout: time.Millisecond,
	}, noopLogger())

	go r.Run()
	defer r.Disable()

	waitForState(t, r, StateNotResponding, 2*time.Second)
}

// TestExecuteCommandRoundTrip drives a rig through Initializing into Online
// and executes one command end to end.
func TestExecuteCommandRoundTrip(t *testing.T) {
	m := &model.Model{
		Schema: emptySchema(),
		Enums:  map[string]map[string]uint32{},
		Init: []*codec.FrameTemplate{{
			Name:     "wake",
			Pattern:  []codec.Slot{{Fixed: 0xFE}},
			Reply:    codec.ReplySpec{Kind: codec.ReplyKind.FixedLength, Length: 1},
			Bindings: map[string]codec.FieldSpec{},
		}},
		Commands: map[string]*codec.FrameTemplate{
			"ping": {
				Name:     "ping",
				Pattern:  []codec.Slot{{Fixed: 0x50}},
				Reply:    codec.ReplySpec{Kind: codec.ReplyKind.FixedLength, Length: 1},
				Bindings: map[string]codec.FieldSpec{},
			},
		},
		Status: map[string]*model.StatusPoll{},
	}

	ch := &fakeChannel{toRead: []byte{0x00, 0x00}}
	r := New(Config{
		ID:              "ic7300",
		Model:           m,
		Dial:            func() (Channel, error) { return ch, nil },
		ExchangeTimeout: 50 * time.Millisecond,
	}, noopLogger())

	go r.Run()
	defer r.Disable()

	waitForState(t, r, StateOnline, 2*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.ExecuteCommand(ctx, "ping", map[string]int64{}); err != nil {
		t.Fatalf("ExecuteCommand: %s", err)
	}
}

func TestExecuteCommandUnsupportedCommand(t *testing.T) {
	m := &model.Model{
		Schema:   emptySchema(),
		Enums:    map[string]map[string]uint32{},
		Commands: map[string]*codec.FrameTemplate{},
		Status:   map[string]*model.StatusPoll{},
	}
	r := New(Config{ID: "x", Model: m, Dial: func() (Channel, error) { return &fakeChannel{}, nil }}, noopLogger())

	err := r.ExecuteCommand(context.Background(), "bogus", nil)
	if err == nil {
		t.Fatalf("expected UnsupportedCommand error")
	}
}

func TestDisableRejectsLaterCommands(t *testing.T) {
	m := &model.Model{
		Schema: emptySchema(),
		Enums:  map[string]map[string]uint32{},
		Commands: map[string]*codec.FrameTemplate{
			"noop": {Name: "noop", Pattern: []codec.Slot{{Fixed: 0x00}}, Reply: codec.ReplySpec{Kind: codec.ReplyKind.FixedLength, Length: 0}, Bindings: map[string]codec.FieldSpec{}},
		},
		Status: map[string]*model.StatusPoll{},
	}

	blockDial := make(chan struct{})
	r := New(Config{
		ID:    "x",
		Model: m,
		Dial: func() (Channel, error) {
			<-blockDial
			return &fakeChannel{}, nil
		},
	}, noopLogger())

	go r.Run()
	r.Disable()
	close(blockDial)

	err := r.ExecuteCommand(context.Background(), "noop", map[string]int64{})
	if err == nil {
		t.Fatalf("expected RigDisabled error after Disable")
	}
}
