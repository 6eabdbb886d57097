// Package dispatch implements the Dispatcher (spec.md §4.5): the four RPC
// operations, parameter coercion from loosely-typed client input to the
// Model's declared types, and capability reflection restricted to what a
// rig's Model actually supports.
//
// Grounded on sttp/Subscriber.go's facade shape: a thin orchestration layer
// that looks up the right lower-level object and delegates, rather than
// holding protocol logic itself. Here that means looking up a
// *runtime.RigInstance by rig id and delegating to its Connected, Model and
// ExecuteCommand methods, or to the subscription Manager for
// subscribe_status.
package dispatch

import (
	"context"
	"math"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/iarc-il/holyrig/model"
	"github.com/iarc-il/holyrig/rigerr"
	"github.com/iarc-il/holyrig/schema"
	"github.com/iarc-il/holyrig/subscription"
)

// ParamType is the coarse type vocabulary get_capabilities reports over the
// wire (spec.md §6): int/bool collapse to "number", enums to "string".
type ParamType string

const (
	ParamNumber ParamType = "number"
	ParamString ParamType = "string"
)

func wireType(t schema.Type) ParamType {
	if t.Kind == schema.Kind.Enum {
		return ParamString
	}
	return ParamNumber
}

// Capabilities is the get_capabilities response shape.
type Capabilities struct {
	Commands     map[string]CommandCapability `json:"commands"`
	StatusFields map[string]ParamType         `json:"status_fields"`
}

// CommandCapability describes one command's coerced-parameter shape.
type CommandCapability struct {
	Parameters map[string]ParamType `json:"parameters"`
}

// Rig is the subset of *runtime.RigInstance the Dispatcher depends on,
// declared as an interface so dispatch can be tested without a live serial
// channel behind it.
type Rig interface {
	ID() string
	Connected() bool
	ExecuteCommand(ctx context.Context, name string, params map[string]int64) error
	Snapshot() map[string]any
	Model() *model.Model
}

// Subscriptions is the subset of *subscription.Manager the Dispatcher uses.
type Subscriptions interface {
	Subscribe(rigID string, fields []string) (string, <-chan subscription.Notification, error)
}

// Dispatcher routes RPC calls to the configured rigs and the subscription
// manager. One Dispatcher serves every rig in the process (spec.md §5: it
// runs as a single task that routes to each RigInstance's own queue).
type Dispatcher struct {
	rigs map[string]Rig
	subs Subscriptions
	log  zerolog.Logger
}

// New builds a Dispatcher over the given rigs, keyed by rig id.
func New(rigs map[string]Rig, subs Subscriptions, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{rigs: rigs, subs: subs, log: log}
}

func (d *Dispatcher) rig(rigID string) (Rig, error) {
	r, ok := d.rigs[rigID]
	if !ok {
		return nil, rigerr.New(rigerr.ErrUnknownRigID, "no such rig %q", rigID)
	}
	return r, nil
}

// ListRigs implements list_rigs: every configured rig id mapped to whether
// its RigInstance currently considers itself connected.
func (d *Dispatcher) ListRigs() map[string]bool {
	out := make(map[string]bool, len(d.rigs))
	for id, r := range d.rigs {
		out[id] = r.Connected()
	}
	return out
}

// GetCapabilities implements get_capabilities: it reflects only the
// commands and status fields the rig's Model actually supports, never the
// full Schema (spec.md §4.5).
func (d *Dispatcher) GetCapabilities(rigID string) (Capabilities, error) {
	r, err := d.rig(rigID)
	if err != nil {
		return Capabilities{}, err
	}
	m := r.Model()

	caps := Capabilities{
		Commands:     map[string]CommandCapability{},
		StatusFields: map[string]ParamType{},
	}

	for name := range m.Commands {
		sig, ok := m.Schema.Commands[name]
		if !ok {
			continue
		}
		params := make(map[string]ParamType, len(sig))
		for _, p := range sig {
			params[p.Name] = wireType(p.Type)
		}
		caps.Commands[name] = CommandCapability{Parameters: params}
	}

	for name := range m.Status {
		p, ok := m.Schema.Status.Find(name)
		if !ok {
			continue
		}
		caps.StatusFields[name] = wireType(p.Type)
	}

	return caps, nil
}

// ExecuteCommand implements execute_command: it validates the command
// exists in the rig's Model, coerces each client parameter to the declared
// Type, enqueues the exchange and awaits its result.
func (d *Dispatcher) ExecuteCommand(ctx context.Context, rigID, command string, params map[string]any) error {
	r, err := d.rig(rigID)
	if err != nil {
		return err
	}
	m := r.Model()

	if !m.SupportsCommand(command) {
		return rigerr.New(rigerr.ErrUnsupportedCommand, "rig %q has no command %q", rigID, command)
	}
	sig, ok := m.Schema.Commands[command]
	if !ok {
		return rigerr.New(rigerr.ErrUnsupportedCommand, "rig %q has no command %q", rigID, command)
	}

	coerced, err := coerceParams(m, sig, params)
	if err != nil {
		return err
	}

	correlationID := uuid.NewString()
	d.log.Debug().Str("rig", rigID).Str("command", command).Str("correlation_id", correlationID).Msg("dispatching command")

	err = r.ExecuteCommand(ctx, command, coerced)
	if err != nil {
		d.log.Warn().Str("rig", rigID).Str("command", command).Str("correlation_id", correlationID).Err(err).Msg("command failed")
	}
	return err
}

// SubscribeStatus implements subscribe_status: it validates the rig exists
// and hands the subscription off to the Manager.
func (d *Dispatcher) SubscribeStatus(rigID string, fields []string) (string, <-chan subscription.Notification, error) {
	if _, err := d.rig(rigID); err != nil {
		return "", nil, err
	}
	return d.subs.Subscribe(rigID, fields)
}

// coerceParams converts loosely-typed client parameters (as decoded from
// JSON: float64, string, bool) into the raw int64 values the runtime's
// codec layer expects, per spec.md §4.5: numbers to int with range check,
// strings to enum member lookup, booleans to bool.
func coerceParams(m *model.Model, sig schema.Signature, params map[string]any) (map[string]int64, error) {
	out := make(map[string]int64, len(sig))

	for _, p := range sig {
		raw, present := params[p.Name]
		if !present {
			return nil, rigerr.New(rigerr.ErrValueOutOfRange, "missing parameter %q", p.Name)
		}

		switch p.Type.Kind {
		case schema.Kind.Int:
			n, ok := asInt(raw)
			if !ok {
				return nil, rigerr.New(rigerr.ErrValueOutOfRange, "parameter %q must be a number", p.Name)
			}
			if n < 0 || n > math.MaxUint32 {
				return nil, rigerr.New(rigerr.ErrValueOutOfRange, "parameter %q = %d out of range [0, %d]", p.Name, n, uint32(math.MaxUint32))
			}
			out[p.Name] = n

		case schema.Kind.Bool:
			b, ok := raw.(bool)
			if !ok {
				return nil, rigerr.New(rigerr.ErrValueOutOfRange, "parameter %q must be a boolean", p.Name)
			}
			if b {
				out[p.Name] = 1
			} else {
				out[p.Name] = 0
			}

		case schema.Kind.Enum:
			s, ok := raw.(string)
			if !ok {
				return nil, rigerr.New(rigerr.ErrUnsupportedEnumMember, "parameter %q must be an enum member name", p.Name)
			}
			v, ok := m.EnumRaw(p.Type.Enum, s)
			if !ok {
				return nil, rigerr.New(rigerr.ErrUnsupportedEnumMember, "rig has no enum member %q for %q", s, p.Name)
			}
			out[p.Name] = int64(v)
		}
	}

	return out, nil
}

// asInt accepts the numeric shapes a JSON decoder or a direct Go caller may
// hand in (float64 from encoding/json, or any plain integer type).
func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}
