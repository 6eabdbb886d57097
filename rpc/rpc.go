// Package rpc implements the JSON-RPC 2.0 over UDP transport spec.md §6
// describes: one JSON-RPC envelope per datagram, request id echoed back,
// server-pushed status_update notifications carrying no id.
//
// No JSON-RPC library appears anywhere in the example pack, and the wire
// framing itself is explicitly out of this spec's core scope (spec.md §1);
// this package is therefore built directly on stdlib net/encoding/json
// (see DESIGN.md's dropped/stdlib justification list) rather than adopting
// an unrelated pack dependency for the sake of using one.
package rpc

import (
	"context"
	"encoding/json"
	"net"

	"github.com/rs/zerolog"

	"github.com/iarc-il/holyrig/dispatch"
	"github.com/iarc-il/holyrig/rigerr"
	"github.com/iarc-il/holyrig/subscription"
)

// Envelope is one JSON-RPC 2.0 message, request or response, read loosely
// enough to serve both directions.
type Envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

// ErrorObject is the JSON-RPC 2.0 error shape, populated from rigerr codes.
type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// StatusUpdateParams is the payload of a server-pushed status_update
// notification (spec.md §6).
type StatusUpdateParams struct {
	RigID          string         `json:"rig_id"`
	SubscriptionID string         `json:"subscription_id"`
	Updates        map[string]any `json:"updates"`
}

type executeCommandParams struct {
	RigID      string         `json:"rig_id"`
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters"`
}

type getCapabilitiesParams struct {
	RigID string `json:"rig_id"`
}

type subscribeStatusParams struct {
	RigID  string   `json:"rig_id"`
	Fields []string `json:"fields"`
}

// Server listens for JSON-RPC datagrams and routes them to a Dispatcher.
// One Server per process, per spec.md §5 ("the Dispatcher runs as one
// task").
type Server struct {
	conn       *net.UDPConn
	dispatcher *dispatch.Dispatcher
	log        zerolog.Logger
}

// Listen opens a UDP socket at addr and returns a Server ready to Serve.
func Listen(addr string, d *dispatch.Dispatcher, log zerolog.Logger) (*Server, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	return &Server{conn: conn, dispatcher: d, log: log}, nil
}

// Close releases the underlying socket.
func (s *Server) Close() error { return s.conn.Close() }

// Serve reads datagrams until ctx is canceled or the socket errors. Each
// datagram is handled synchronously in this goroutine, since §5 scopes the
// Dispatcher as a single task; concurrency across rigs happens inside each
// RigInstance's own goroutine, not here.
func (s *Server) Serve(ctx context.Context) error {
	buf := make([]byte, 64*1024)
	go func() {
		<-ctx.Done()
		_ = s.conn.Close()
	}()

	for {
		n, from, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		s.handle(ctx, from, append([]byte(nil), buf[:n]...))
	}
}

func (s *Server) handle(ctx context.Context, from *net.UDPAddr, raw []byte) {
	var req Envelope
	if err := json.Unmarshal(raw, &req); err != nil {
		s.reply(from, errorEnvelope(nil, rigerr.CodeParseError, "invalid JSON-RPC envelope"))
		return
	}

	switch req.Method {
	case "list_rigs":
		s.reply(from, resultEnvelope(req.ID, s.dispatcher.ListRigs()))

	case "get_capabilities":
		var p getCapabilitiesParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			s.reply(from, errorEnvelope(req.ID, rigerr.CodeInvalidParams, "invalid params"))
			return
		}
		caps, err := s.dispatcher.GetCapabilities(p.RigID)
		if err != nil {
			s.reply(from, errorEnvelope(req.ID, rigerr.RPCCode(err), err.Error()))
			return
		}
		s.reply(from, resultEnvelope(req.ID, caps))

	case "execute_command":
		var p executeCommandParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			s.reply(from, errorEnvelope(req.ID, rigerr.CodeInvalidParams, "invalid params"))
			return
		}
		if err := s.dispatcher.ExecuteCommand(ctx, p.RigID, p.Command, p.Parameters); err != nil {
			s.reply(from, errorEnvelope(req.ID, rigerr.RPCCode(err), err.Error()))
			return
		}
		s.reply(from, resultEnvelope(req.ID, map[string]bool{"success": true}))

	case "subscribe_status":
		var p subscribeStatusParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			s.reply(from, errorEnvelope(req.ID, rigerr.CodeInvalidParams, "invalid params"))
			return
		}
		id, updates, err := s.dispatcher.SubscribeStatus(p.RigID, p.Fields)
		if err != nil {
			s.reply(from, errorEnvelope(req.ID, rigerr.RPCCode(err), err.Error()))
			return
		}
		s.reply(from, resultEnvelope(req.ID, map[string]string{"subscription_id": id}))
		go s.pushUpdates(ctx, from, updates)

	default:
		s.reply(from, errorEnvelope(req.ID, rigerr.CodeMethodNotFound, "unknown method "+req.Method))
	}
}

// pushUpdates forwards every Notification on updates to from as a
// status_update notification, until the channel closes or ctx is done.
func (s *Server) pushUpdates(ctx context.Context, from *net.UDPAddr, updates <-chan subscription.Notification) {
	for {
		select {
		case n, ok := <-updates:
			if !ok {
				return
			}
			s.pushNotification(from, n)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) pushNotification(from *net.UDPAddr, n subscription.Notification) {
	env := Envelope{
		JSONRPC: "2.0",
		Method:  "status_update",
	}
	params, err := json.Marshal(StatusUpdateParams{
		RigID:          n.RigID,
		SubscriptionID: n.SubscriptionID,
		Updates:        n.Updates,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("failed to marshal status_update params")
		return
	}
	env.Params = params
	s.send(from, env)
}

func (s *Server) reply(to *net.UDPAddr, env Envelope) {
	s.send(to, env)
}

func (s *Server) send(to *net.UDPAddr, env Envelope) {
	env.JSONRPC = "2.0"
	data, err := json.Marshal(env)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to marshal JSON-RPC envelope")
		return
	}
	if _, err := s.conn.WriteToUDP(data, to); err != nil {
		s.log.Warn().Err(err).Str("to", to.String()).Msg("failed to write JSON-RPC reply")
	}
}

func resultEnvelope(id json.RawMessage, result any) Envelope {
	return Envelope{ID: id, Result: result}
}

func errorEnvelope(id json.RawMessage, code int, msg string) Envelope {
	return Envelope{ID: id, Error: &ErrorObject{Code: code, Message: msg}}
}
