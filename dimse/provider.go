package dimse

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Sender is the minimum transport-facing surface the Provider needs to
// emit fragmented DIMSE messages — satisfied by the association layer
// (spec.md §4.6/§4.7). Grounded on the teacher's interfaces.PDULayer,
// generalized to accept a built Command rather than pre-encoded bytes.
type Sender interface {
	SendDIMSE(ctx context.Context, contextID byte, cmd Command, dataset []byte) error
}

// Exchange is one completed request/response correlation delivered to a
// waiting caller.
type Exchange struct {
	Command Command
	Dataset []byte
}

// pending tracks one outstanding request awaiting responses, keyed by
// (Presentation Context ID, Message ID) per spec.md §4.6.
type pending struct {
	ch       chan Exchange
	done     chan struct{}
	closeMu  sync.Once
}

// Provider allocates Message IDs, correlates requests with their
// (possibly multiple, for C-FIND/C-GET/C-MOVE) responses, and dispatches
// inbound requests to a registered SCP handler. One Provider serves one
// association (spec.md §4.6).
type Provider struct {
	send Sender

	mu        sync.Mutex
	nextMsgID uint16
	waiting   map[pendingKey]*pending

	handler  Handler
	reassemblers map[byte]*Reassembler

	timeout time.Duration
}

type pendingKey struct {
	ContextID byte
	MessageID uint16
}

// Handler serves inbound DIMSE requests on the acceptor side (the SCP
// role). It is invoked once per request with the fully reassembled
// command and data set; responder.Send streams zero or more
// intermediate (Pending) responses before the handler returns the final
// status, which the Provider sends as the closing response.
type Handler interface {
	HandleDIMSE(ctx context.Context, contextID byte, cmd Command, dataset []byte, responder Responder) (Command, []byte, error)
}

// Responder lets a streaming SCP handler (C-FIND/C-GET/C-MOVE) emit
// intermediate Pending responses before its final one.
type Responder interface {
	Send(ctx context.Context, cmd Command, dataset []byte) error
}

// NewProvider builds a Provider bound to the given outbound sender and
// per-response DIMSE timeout (spec.md §4.6 "DIMSE timeout enforcement").
func NewProvider(send Sender, timeout time.Duration) *Provider {
	return &Provider{
		send:         send,
		waiting:      make(map[pendingKey]*pending),
		reassemblers: make(map[byte]*Reassembler),
		timeout:      timeout,
	}
}

// SetHandler installs the SCP dispatch target.
func (p *Provider) SetHandler(h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = h
}

// nextMessageID allocates a monotonically increasing Message ID,
// wrapping at 65535 back to 1 (0 is reserved, PS3.7 Annex E.1.3).
func (p *Provider) nextMessageID() uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextMsgID++
	if p.nextMsgID == 0 {
		p.nextMsgID = 1
	}
	return p.nextMsgID
}

// Request issues a DIMSE request on contextID and waits for responses.
// For single-response services (C-STORE, C-ECHO) the returned channel
// yields exactly one Exchange; for streaming services (C-FIND, C-GET,
// C-MOVE) it yields one Exchange per Pending response followed by the
// final terminal-status Exchange, then closes (spec.md §4.6).
func (p *Provider) Request(ctx context.Context, contextID byte, cmd Command, dataset []byte) (<-chan Exchange, error) {
	cmd.MessageID = p.nextMessageID()
	key := pendingKey{ContextID: contextID, MessageID: cmd.MessageID}

	pend := &pending{ch: make(chan Exchange, 1), done: make(chan struct{})}
	p.mu.Lock()
	p.waiting[key] = pend
	p.mu.Unlock()

	if err := p.send.SendDIMSE(ctx, contextID, cmd, dataset); err != nil {
		p.mu.Lock()
		delete(p.waiting, key)
		p.mu.Unlock()
		return nil, fmt.Errorf("dimse: send request: %w", err)
	}

	out := make(chan Exchange, 4)
	go p.pump(ctx, key, pend, out)
	return out, nil
}

func (p *Provider) pump(ctx context.Context, key pendingKey, pend *pending, out chan<- Exchange) {
	defer close(out)
	for {
		select {
		case ex, ok := <-pend.ch:
			if !ok {
				return
			}
			out <- ex
			if !IsPending(ex.Command.Status) {
				p.finish(key)
				return
			}
		case <-time.After(p.timeoutOrForever()):
			slog.Warn("dimse request timed out", "context_id", key.ContextID, "message_id", key.MessageID)
			p.finish(key)
			return
		case <-ctx.Done():
			p.finish(key)
			return
		}
	}
}

func (p *Provider) timeoutOrForever() time.Duration {
	if p.timeout <= 0 {
		return 24 * time.Hour
	}
	return p.timeout
}

func (p *Provider) finish(key pendingKey) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pend, ok := p.waiting[key]; ok {
		pend.closeMu.Do(func() { close(pend.ch) })
		delete(p.waiting, key)
	}
}

// Deliver feeds one reassembled (command, dataset) pair arriving from
// the transport into the Provider: a response is routed to its waiting
// Request; a request is dispatched to the registered Handler on a fresh
// goroutine (spec.md §4.6 "SCP dispatch").
func (p *Provider) Deliver(ctx context.Context, contextID byte, cmd Command, dataset []byte) {
	if !IsRequest(cmd.CommandField) {
		key := pendingKey{ContextID: contextID, MessageID: cmd.MessageIDBeingRespondedTo}
		p.mu.Lock()
		pend, ok := p.waiting[key]
		p.mu.Unlock()
		if !ok {
			slog.Warn("dimse: response with no matching request", "context_id", contextID, "message_id", cmd.MessageIDBeingRespondedTo)
			return
		}
		select {
		case pend.ch <- Exchange{Command: cmd, Dataset: dataset}:
		default:
			slog.Warn("dimse: response channel full, dropping", "context_id", contextID)
		}
		return
	}

	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()
	if h == nil {
		slog.Warn("dimse: request received with no handler registered", "command_field", cmd.CommandField)
		return
	}
	go p.dispatch(ctx, contextID, cmd, dataset, h)
}

func (p *Provider) dispatch(ctx context.Context, contextID byte, cmd Command, dataset []byte, h Handler) {
	responder := &providerResponder{p: p, contextID: contextID, requestMsgID: cmd.MessageID}
	finalCmd, finalData, err := h.HandleDIMSE(ctx, contextID, cmd, dataset, responder)
	if err != nil {
		slog.Error("dimse: handler failed", "error", err, "command_field", cmd.CommandField)
		finalCmd = Command{
			CommandField:              ResponseFor(cmd.CommandField),
			MessageIDBeingRespondedTo: cmd.MessageID,
			Status:                    StatusFailureLow,
			CommandDataSetType:        NoDataSet,
		}
		finalData = nil
	}
	if sendErr := p.send.SendDIMSE(ctx, contextID, finalCmd, finalData); sendErr != nil {
		slog.Error("dimse: failed to send final response", "error", sendErr)
	}
}

type providerResponder struct {
	p            *Provider
	contextID    byte
	requestMsgID uint16
}

func (r *providerResponder) Send(ctx context.Context, cmd Command, dataset []byte) error {
	cmd.MessageIDBeingRespondedTo = r.requestMsgID
	return r.p.send.SendDIMSE(ctx, r.contextID, cmd, dataset)
}
