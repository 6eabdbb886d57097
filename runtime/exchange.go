package runtime

import (
	"time"

	"github.com/iarc-il/holyrig/codec"
	"github.com/iarc-il/holyrig/rigerr"
)

// readReply reads from ch until the template's ReplySpec is satisfied: a
// fixed byte count, a terminator byte (inclusive), or a buffer the length of
// a validation mask (spec.md §4.4 "per-exchange protocol"). The deadline is
// set once up front; readReply does not retry past it.
func readReply(ch Channel, reply codec.ReplySpec, timeout time.Duration) ([]byte, error) {
	if err := ch.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, rigerr.New(rigerr.ErrIO, "set read deadline: %s", err)
	}

	want := -1
	switch reply.Kind {
	case codec.ReplyKind.FixedLength:
		want = reply.Length
	case codec.ReplyKind.Validate:
		want = len(reply.Mask)
	}

	buf := make([]byte, 0, 64)
	one := make([]byte, 1)
	for {
		if want >= 0 && len(buf) >= want {
			return buf, nil
		}

		n, err := ch.Read(one)
		if n == 1 {
			buf = append(buf, one[0])
			if reply.Kind == codec.ReplyKind.Terminator && one[0] == reply.Terminator {
				return buf, nil
			}
		}
		if err != nil {
			if isTimeout(err) {
				return nil, rigerr.New(rigerr.ErrTimeout, "reply timed out after %s (%d bytes received)", timeout, len(buf))
			}
			return nil, rigerr.New(rigerr.ErrIO, "read reply: %s", err)
		}
	}
}

// isTimeout reports whether err indicates a deadline expiry, the one error
// shape every net.Conn-like Channel is expected to surface the same way
// (net.Error.Timeout()).
func isTimeout(err error) bool {
	type timeouter interface {
		Timeout() bool
	}
	te, ok := err.(timeouter)
	return ok && te.Timeout()
}

// exchangeResult is the outcome of one write+read+decode cycle.
type exchangeResult struct {
	raw      []byte
	decoded  map[string]int64
	duration time.Duration
}

// exchange performs one full request/reply cycle against ch: encode, write,
// read per the reply spec, and validate the reply if its form is a
// validation mask. A template's Bindings locate fields in the request frame,
// so they are not read back out of the reply; status polls extract their
// reply fields separately with model.StatusPoll.Decode.
func exchange(ch Channel, tmpl *codec.FrameTemplate, bindings map[string]int64, timeout time.Duration) (exchangeResult, error) {
	start := time.Now()

	req, err := codec.Encode(tmpl, bindings)
	if err != nil {
		return exchangeResult{}, err
	}

	if _, err := ch.Write(req); err != nil {
		return exchangeResult{}, rigerr.New(rigerr.ErrIO, "write frame %q: %s", tmpl.Name, err)
	}

	var raw []byte
	expectsReply := tmpl.Reply.Kind != codec.ReplyKind.FixedLength || tmpl.Reply.Length > 0
	if expectsReply {
		raw, err = readReply(ch, tmpl.Reply, timeout)
		if err != nil {
			return exchangeResult{}, err
		}
	}

	decoded, err := codec.Decode(&codec.FrameTemplate{Name: tmpl.Name, Reply: tmpl.Reply}, raw)
	if err != nil {
		return exchangeResult{}, err
	}

	return exchangeResult{raw: raw, decoded: decoded, duration: time.Since(start)}, nil
}
