// Package debugtransport implements the debugger's transport layer: a
// chain of framing/transport implementations under a small send/receive
// contract, the opcode-level breakpoint side table recorded at parse
// time, and the wait-after-parse rendezvous loop.
//
// Only the transport is modeled here; interpreting the debugger command
// set is the host's concern.
package debugtransport

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultPollInterval paces the cooperative rendezvous polls. This is a
// tuning constant, not part of any protocol contract.
const DefaultPollInterval = 100 * time.Millisecond

// Transport is one layer of the debugger transport chain. Layers that
// wrap others (framing over a raw socket) hold their next layer and
// delegate after transforming the buffer.
type Transport interface {
	// Next returns the wrapped layer, or nil at the chain's end.
	Next() Transport
	// Send transmits one framed message.
	Send(data []byte) error
	// Receive returns the next incoming message, or ok=false when no
	// message is pending. The error reports transport failure.
	Receive() (data []byte, ok bool, err error)
	// Close tears the layer (and everything below it) down.
	Close() error
}

// Session owns a transport chain plus the engine-side debugger state: a
// correlation id for diagnostics, the breakpoint table, and the
// cancellation flag honoured by the rendezvous loop.
type Session struct {
	ID        uuid.UUID
	transport Transport

	mu          sync.Mutex
	breakpoints *BreakpointTable
	stopFlag    bool
}

func NewSession(t Transport) *Session {
	return &Session{
		ID:          uuid.New(),
		transport:   t,
		breakpoints: NewBreakpointTable(),
	}
}

func (s *Session) Transport() Transport         { return s.transport }
func (s *Session) Breakpoints() *BreakpointTable { return s.breakpoints }

// RequestStop sets the cancellation flag; the rendezvous loop observes it
// on its next poll.
func (s *Session) RequestStop() {
	s.mu.Lock()
	s.stopFlag = true
	s.mu.Unlock()
}

func (s *Session) stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopFlag
}

// Send transmits through the chain head.
func (s *Session) Send(data []byte) error {
	return s.transport.Send(data)
}

// WaitForClientSource is the wait-after-parse rendezvous: it polls the
// transport for the client's source/configuration messages, sleeping
// between polls, until the client delivers a message, the transport
// fails, or cancellation is requested. The poll condition requires both
// an attached transport and an un-cancelled session before each receive.
func (s *Session) WaitForClientSource(interval time.Duration, deliver func([]byte)) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	for {
		if s.transport == nil || s.stopped() {
			return nil
		}
		data, ok, err := s.transport.Receive()
		if err != nil {
			return err
		}
		if ok {
			deliver(data)
			return nil
		}
		time.Sleep(interval)
	}
}

func (s *Session) Close() error {
	if s.transport == nil {
		return nil
	}
	return s.transport.Close()
}

// BreakpointTable is the side table of (source line, byte-code offset)
// pairs recorded while the parser emits BREAKPOINT_DISABLED placeholders.
type BreakpointTable struct {
	mu    sync.Mutex
	pairs []BreakpointSite
}

type BreakpointSite struct {
	Line   int
	Offset int
}

func NewBreakpointTable() *BreakpointTable {
	return &BreakpointTable{}
}

func (t *BreakpointTable) Record(line, offset int) {
	t.mu.Lock()
	t.pairs = append(t.pairs, BreakpointSite{Line: line, Offset: offset})
	t.mu.Unlock()
}

// Sites returns a snapshot of the recorded pairs in emission order.
func (t *BreakpointTable) Sites() []BreakpointSite {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]BreakpointSite, len(t.pairs))
	copy(out, t.pairs)
	return out
}

// OffsetsForLine resolves a source line to its byte-code offsets.
func (t *BreakpointTable) OffsetsForLine(line int) []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []int
	for _, p := range t.pairs {
		if p.Line == line {
			out = append(out, p.Offset)
		}
	}
	return out
}

// FromLineInfo builds a table from a compiled-code record's line-info
// block (pairs of big-endian u32 offset and line).
func FromLineInfo(lineInfo []byte) *BreakpointTable {
	t := NewBreakpointTable()
	for i := 0; i+8 <= len(lineInfo); i += 8 {
		off := int(lineInfo[i])<<24 | int(lineInfo[i+1])<<16 | int(lineInfo[i+2])<<8 | int(lineInfo[i+3])
		line := int(lineInfo[i+4])<<24 | int(lineInfo[i+5])<<16 | int(lineInfo[i+6])<<8 | int(lineInfo[i+7])
		t.Record(line, off)
	}
	return t
}
