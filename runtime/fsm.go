package runtime

import (
	"context"

	"github.com/looplab/fsm"
	"github.com/rs/zerolog"
)

// RigInstance states, per spec.md §4.4.
const (
	StateNotConnected = "not_connected"
	StateInitializing = "initializing"
	StateOnline       = "online"
	StateNotResponding = "not_responding"
	StateDisabled     = "disabled"
)

// Transition events.
const (
	eventConnect    = "connect"
	eventInitOK     = "init_ok"
	eventInitFail   = "init_fail"
	eventTimeoutMax = "timeout_exceeded"
	eventReconnect  = "reconnect"
	eventDisable    = "disable"
)

// newRigFSM wires the state machine spec.md §4.4 describes. Modeled on
// tab-fuku's services.newServiceFSM: states/events as string constants,
// enter_<state> callbacks doing the side effects (logging, metrics, status
// bookkeeping) rather than scattering them through the run loop.
func newRigFSM(r *RigInstance) *fsm.FSM {
	return fsm.NewFSM(
		StateNotConnected,
		fsm.Events{
			{Name: eventConnect, Src: []string{StateNotConnected, StateNotResponding}, Dst: StateInitializing},
			{Name: eventInitOK, Src: []string{StateInitializing}, Dst: StateOnline},
			{Name: eventInitFail, Src: []string{StateInitializing}, Dst: StateNotResponding},
			{Name: eventTimeoutMax, Src: []string{StateOnline}, Dst: StateNotResponding},
			{Name: eventReconnect, Src: []string{StateNotResponding}, Dst: StateInitializing},
			{Name: eventDisable, Src: []string{
				StateNotConnected, StateInitializing, StateOnline, StateNotResponding,
			}, Dst: StateDisabled},
		},
		fsm.Callbacks{
			"enter_state": func(ctx context.Context, e *fsm.Event) {
				r.log.Info().
					Str("rig", r.id).
					Str("from", e.Src).
					Str("to", e.Dst).
					Msg("rig state transition")
				if r.cfg.Metrics != nil {
					r.cfg.Metrics.SetState(r.id, e.Dst)
				}
			},
			"enter_" + StateOnline: func(ctx context.Context, e *fsm.Event) {
				r.timeoutStreak = 0
			},
		},
	)
}

func (r *RigInstance) fire(event string) {
	if err := r.fsmImpl.Event(context.Background(), event); err != nil {
		r.log.Debug().Str("rig", r.id).Str("event", event).Err(err).Msg("fsm transition rejected")
	}
}

func (r *RigInstance) State() string {
	return r.fsmImpl.Current()
}

// noopLogger is used when a RigInstance is built without an explicit
// logger (primarily in tests).
func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}
