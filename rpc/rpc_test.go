package rpc

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/iarc-il/holyrig/codec"
	"github.com/iarc-il/holyrig/dispatch"
	"github.com/iarc-il/holyrig/model"
	"github.com/iarc-il/holyrig/schema"
	"github.com/iarc-il/holyrig/subscription"
)

type fakeRig struct {
	id        string
	connected bool
	model     *model.Model
}

func (f *fakeRig) ID() string          { return f.id }
func (f *fakeRig) Connected() bool     { return f.connected }
func (f *fakeRig) Model() *model.Model { return f.model }
func (f *fakeRig) Snapshot() map[string]any { return map[string]any{} }
func (f *fakeRig) ExecuteCommand(ctx context.Context, name string, params map[string]int64) error {
	return nil
}

func buildModel() *model.Model {
	sch := &schema.Schema{
		Version: 1,
		Kind:    "transceiver",
		Enums:   map[string]schema.EnumDecl{},
		Commands: map[string]schema.Signature{
			"set_freq": {{Name: "hz", Type: schema.IntType()}},
		},
		Status: schema.Signature{},
	}
	return &model.Model{
		Schema: sch,
		Enums:  map[string]map[string]uint32{},
		Commands: map[string]*codec.FrameTemplate{
			"set_freq": {Name: "set_freq"},
		},
		Status: map[string]*model.StatusPoll{},
	}
}

func startServer(t *testing.T) (*Server, *net.UDPConn) {
	t.Helper()
	m := buildModel()
	d := dispatch.New(map[string]dispatch.Rig{
		"ic7300": &fakeRig{id: "ic7300", connected: true, model: m},
	}, subscription.NewManager(8), zerolog.Nop())

	s, err := Listen("127.0.0.1:0", d, zerolog.Nop())
	if err != nil {
		t.Fatalf("Listen: %s", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Serve(ctx)

	client, err := net.DialUDP("udp", nil, s.conn.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("DialUDP: %s", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	return s, client
}

func roundTrip(t *testing.T, client *net.UDPConn, req Envelope) Envelope {
	t.Helper()
	req.JSONRPC = "2.0"
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal: %s", err)
	}
	if _, err := client.Write(data); err != nil {
		t.Fatalf("Write: %s", err)
	}

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64*1024)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("Read: %s", err)
	}

	var resp Envelope
	if err := json.Unmarshal(buf[:n], &resp); err != nil {
		t.Fatalf("Unmarshal response: %s", err)
	}
	return resp
}

func TestListRigsRoundTrip(t *testing.T) {
	_, client := startServer(t)

	resp := roundTrip(t, client, Envelope{ID: json.RawMessage(`1`), Method: "list_rigs"})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}

	result, ok := resp.Result.(map[string]any)
	if !ok {
		t.Fatalf("result is not an object: %#v", resp.Result)
	}
	if connected, ok := result["ic7300"].(bool); !ok || !connected {
		t.Fatalf("expected ic7300 connected, got %#v", result)
	}
}

func TestExecuteCommandRoundTrip(t *testing.T) {
	_, client := startServer(t)

	params, _ := json.Marshal(map[string]any{
		"rig_id":     "ic7300",
		"command":    "set_freq",
		"parameters": map[string]any{"hz": 14250000},
	})
	resp := roundTrip(t, client, Envelope{ID: json.RawMessage(`2`), Method: "execute_command", Params: params})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	result, ok := resp.Result.(map[string]any)
	if !ok || result["success"] != true {
		t.Fatalf("expected {success: true}, got %#v", resp.Result)
	}
}

func TestUnknownMethod(t *testing.T) {
	_, client := startServer(t)

	resp := roundTrip(t, client, Envelope{ID: json.RawMessage(`3`), Method: "bogus"})
	if resp.Error == nil {
		t.Fatalf("expected method-not-found error")
	}
}

func TestUnknownRigID(t *testing.T) {
	_, client := startServer(t)

	params, _ := json.Marshal(map[string]any{"rig_id": "nope"})
	resp := roundTrip(t, client, Envelope{ID: json.RawMessage(`4`), Method: "get_capabilities", Params: params})
	if resp.Error == nil {
		t.Fatalf("expected unknown rig id error")
	}
}
