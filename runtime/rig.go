package runtime

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/iarc-il/holyrig/model"
	"github.com/iarc-il/holyrig/rigerr"
	"github.com/looplab/fsm"
	"github.com/rs/zerolog"
	"github.com/tevino/abool/v2"
)

// RigInstance drives one configured transceiver: its state machine, serial
// exchanges, status vector and command queue (spec.md §3 RigInstance, §4.4).
// Run is meant to execute on a single dedicated goroutine per instance;
// nothing here is safe to call concurrently with Run except ExecuteCommand,
// Disable and Snapshot, which hand off through channels/atomics instead of
// touching rig state directly.
type RigInstance struct {
	id      string
	cfg     Config
	fsmImpl *fsm.FSM
	log     zerolog.Logger

	channel Channel

	queue chan *CommandRequest
	stop  chan struct{}

	disposing abool.AtomicBool

	status        map[string]any
	statusRaw     map[string]int64
	statusOrder   []string
	pollCursor    int
	timeoutStreak int
}

// New builds a RigInstance from Config. Run must be started (in its own
// goroutine) for the rig to do anything.
func New(cfg Config, log zerolog.Logger) *RigInstance {
	c := cfg.withDefaults()

	order := make([]string, 0, len(c.Model.Status))
	for name := range c.Model.Status {
		order = append(order, name)
	}
	sort.Strings(order)

	r := &RigInstance{
		id:          c.ID,
		cfg:         c,
		log:         log,
		queue:       make(chan *CommandRequest, c.QueueDepth),
		stop:        make(chan struct{}),
		status:      map[string]any{},
		statusRaw:   map[string]int64{},
		statusOrder: order,
	}
	r.fsmImpl = newRigFSM(r)
	return r
}

// ID returns the configured rig identifier.
func (r *RigInstance) ID() string { return r.id }

// Model returns the compiled Model this rig runs, used by the Dispatcher
// for parameter coercion and capability reflection.
func (r *RigInstance) Model() *model.Model { return r.cfg.Model }

// Connected reports whether the rig is presently servicing exchanges.
func (r *RigInstance) Connected() bool {
	return r.State() == StateOnline
}

// ExecuteCommand enqueues a resolved command (parameters already coerced to
// raw integers by the dispatcher) and blocks until its exchange completes,
// is canceled, or the rig is disabled.
func (r *RigInstance) ExecuteCommand(ctx context.Context, name string, params map[string]int64) error {
	if r.disposing.IsSet() {
		return rigerr.New(rigerr.ErrRigDisabled, "rig %q is disabled", r.id)
	}
	if !r.cfg.Model.SupportsCommand(name) {
		return rigerr.New(rigerr.ErrUnsupportedCommand, "rig %q has no command %q", r.id, name)
	}

	req := &CommandRequest{Ctx: ctx, Name: name, Params: params, Done: make(chan error, 1)}

	select {
	case r.queue <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-r.stop:
		return rigerr.New(rigerr.ErrRigDisabled, "rig %q is disabled", r.id)
	}

	select {
	case err := <-req.Done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disable administratively stops the rig: in-flight I/O is allowed to
// finish, queued commands are rejected with RigDisabled, and the state
// machine moves to Disabled (spec.md §5 "Cancellation").
func (r *RigInstance) Disable() {
	if r.disposing.IsSet() {
		return
	}
	r.disposing.Set()
	close(r.stop)
}

// Run drives the state machine until Disable is called. Intended to be
// invoked as `go rig.Run()` once per configured rig.
func (r *RigInstance) Run() {
	for {
		switch r.State() {
		case StateNotConnected:
			r.runNotConnected()
		case StateInitializing:
			r.runInitializing()
		case StateOnline:
			r.runOnline()
		case StateNotResponding:
			r.runNotResponding()
		case StateDisabled:
			r.drain()
			return
		}

		if r.disposing.IsSet() && r.State() != StateDisabled {
			r.fire(eventDisable)
		}
	}
}

func (r *RigInstance) runNotConnected() {
	attempt := 0
	for {
		if r.disposing.IsSet() {
			return
		}
		ch, err := r.cfg.Dial()
		if err == nil {
			r.channel = ch
			r.fire(eventConnect)
			return
		}
		attempt++
		r.log.Warn().Str("rig", r.id).Err(err).Int("attempt", attempt).Msg("failed to open rig channel")
		if !r.backoffWait(attempt) {
			return
		}
	}
}

func (r *RigInstance) runInitializing() {
	for _, step := range r.cfg.Model.Init {
		ok := false
		for attempt := 1; attempt <= r.cfg.InitRetries; attempt++ {
			if r.disposing.IsSet() {
				return
			}
			_, err := exchange(r.channel, step, nil, r.cfg.ExchangeTimeout)
			if err == nil {
				ok = true
				break
			}
			r.log.Warn().Str("rig", r.id).Str("step", step.Name).Int("attempt", attempt).Err(err).Msg("init exchange failed")
			if r.cfg.Metrics != nil {
				r.cfg.Metrics.IncIOError(r.id)
			}
			if attempt < r.cfg.InitRetries {
				if !r.backoffWait(attempt) {
					return
				}
			}
		}
		if !ok {
			r.fire(eventInitFail)
			return
		}
	}
	r.fire(eventInitOK)
}

func (r *RigInstance) runOnline() {
	select {
	case req := <-r.queue:
		r.serviceCommand(req)
		return
	default:
	}

	if len(r.statusOrder) == 0 {
		r.backoffWait(1)
		return
	}

	name := r.statusOrder[r.pollCursor%len(r.statusOrder)]
	r.pollCursor++
	r.servicePoll(name)
}

func (r *RigInstance) serviceCommand(req *CommandRequest) {
	if req.Ctx != nil && req.Ctx.Err() != nil {
		req.Done <- req.Ctx.Err()
		return
	}

	tmpl := r.cfg.Model.Commands[req.Name]
	res, err := exchange(r.channel, tmpl, req.Params, r.cfg.ExchangeTimeout)
	r.recordExchange(res, err)
	if err != nil {
		req.Done <- err
		return
	}
	if len(res.decoded) > 0 {
		changed, values := r.applyStatusRaw(res.decoded)
		if len(changed) > 0 && r.cfg.Sink != nil {
			r.cfg.Sink.Publish(r.id, changed, values)
		}
	}
	req.Done <- nil
}

func (r *RigInstance) servicePoll(name string) {
	poll := r.cfg.Model.Status[name]
	res, err := exchange(r.channel, poll.Frame, nil, r.cfg.ExchangeTimeout)
	r.recordExchange(res, err)
	if err != nil {
		r.log.Debug().Str("rig", r.id).Str("poll", name).Err(err).Msg("status poll failed")
		return
	}
	decoded, err := poll.Decode(res.raw)
	if err != nil {
		r.log.Debug().Str("rig", r.id).Str("poll", name).Err(err).Msg("status poll decode failed")
		return
	}
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.IncPollCycle(r.id)
	}
	changed, values := r.applyStatusRaw(decoded)
	if len(changed) > 0 && r.cfg.Sink != nil {
		r.cfg.Sink.Publish(r.id, changed, values)
	}
}

// recordExchange applies the consecutive-timeout escalation rule (spec.md
// §4.4: after F consecutive timeouts, transition to NotResponding) and
// resets the streak on any success. An unrecoverable IOError transitions
// immediately (§7), independent of the timeout counter.
func (r *RigInstance) recordExchange(res exchangeResult, err error) {
	if err == nil {
		r.timeoutStreak = 0
		if r.cfg.Metrics != nil {
			r.cfg.Metrics.ObserveExchange(r.id, res.duration)
		}
		return
	}

	if errors.Is(err, rigerr.ErrIO) {
		if r.cfg.Metrics != nil {
			r.cfg.Metrics.IncIOError(r.id)
		}
		r.fire(eventTimeoutMax)
		return
	}

	if !errors.Is(err, rigerr.ErrTimeout) {
		return
	}
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.IncTimeout(r.id)
	}
	r.timeoutStreak++
	if r.timeoutStreak >= r.cfg.TimeoutLimit {
		r.fire(eventTimeoutMax)
	}
}

func (r *RigInstance) runNotResponding() {
	if r.channel != nil {
		_ = r.channel.Close()
		r.channel = nil
	}

	timer := time.NewTimer(r.cfg.ReconnectEvery)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-r.stop:
		return
	}
	if r.disposing.IsSet() {
		return
	}

	ch, err := r.cfg.Dial()
	if err != nil {
		r.log.Warn().Str("rig", r.id).Err(err).Msg("reconnect attempt failed")
		return
	}
	r.channel = ch
	r.fire(eventReconnect)
}

// drain rejects any commands still queued when the rig reaches Disabled,
// per spec.md §5.
func (r *RigInstance) drain() {
	if r.channel != nil {
		_ = r.channel.Close()
		r.channel = nil
	}
	for {
		select {
		case req := <-r.queue:
			req.Done <- rigerr.New(rigerr.ErrRigDisabled, "rig %q is disabled", r.id)
		default:
			return
		}
	}
}
