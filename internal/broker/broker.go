// Package broker multiplexes newline-delimited JSON-RPC frames over a
// child process's stdio in both directions: outbound calls the host
// issues to the child, and inbound calls the child issues to the host.
//
// One mutex serializes both the pending-call map and writes to the
// child's stdin, so at most one frame is ever mid-write.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pryx-co/pryx/internal/rpcline"
)

// CallTimeout is how long an outbound Call waits for a matching response.
const CallTimeout = 10 * time.Second

// RequestHandler answers inbound JSON-RPC requests from the child.
type RequestHandler interface {
	Handle(ctx context.Context, method string, params json.RawMessage) (result json.RawMessage, rpcErr *rpcline.RPCError)
}

// Broker owns the pending-call table and the child's stdin writer.
type Broker struct {
	mu      sync.Mutex
	w       io.Writer
	pending map[uint64]chan rpcline.Line
	nextID  uint64
	handler RequestHandler
}

// New creates a Broker writing frames to w and dispatching inbound
// requests to handler (which may be nil if the child never calls back).
func New(w io.Writer, handler RequestHandler) *Broker {
	return &Broker{
		w:       w,
		pending: make(map[uint64]chan rpcline.Line),
		nextID:  1,
		handler: handler,
	}
}

// Reset clears the pending table and restarts id allocation at 1. Called
// by the supervisor every time a new child is spawned; ids are unique
// only per child lifetime.
func (b *Broker) Reset(w io.Writer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.w = w
	b.nextID = 1
	b.pending = make(map[uint64]chan rpcline.Line)
}

// Call allocates a monotonic id, writes a framed JSON-RPC request, and
// awaits the matching response or ctx's deadline, whichever comes first.
// Call also imposes its own CallTimeout so a caller passing a long-lived
// ctx still gets the 10 second bound.
func (b *Broker) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, CallTimeout)
	defer cancel()

	id, ch, err := b.register(method, params)
	if err != nil {
		return nil, err
	}

	select {
	case line, ok := <-ch:
		if !ok {
			return nil, ErrCancelled
		}
		if line.Err != nil {
			return nil, &JSONRPCError{Code: line.Err.Code, Message: line.Err.Message}
		}
		return line.Result, nil
	case <-ctx.Done():
		b.cancel(id)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	}
}

// register allocates an id, writes the request frame, and returns the
// waiter channel. Allocation, write, and map-insert happen under the
// same lock so ids are strictly increasing and writes never interleave.
func (b *Broker) register(method string, params any) (uint64, chan rpcline.Line, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.w == nil {
		return 0, nil, ErrProcessNotRunning
	}

	id := b.nextID
	b.nextID++

	ch := make(chan rpcline.Line, 1)
	b.pending[id] = ch

	if err := b.writeLocked(map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
		"id":      id,
	}); err != nil {
		delete(b.pending, id)
		return 0, nil, err
	}
	return id, ch, nil
}

// Notify writes a fire-and-forget frame with no id and no waiter.
func (b *Broker) Notify(method string, params any) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.w == nil {
		return ErrProcessNotRunning
	}
	return b.writeLocked(map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
	})
}

// writeLocked marshals msg and writes it as a single newline-terminated
// frame. Callers must hold b.mu.
func (b *Broker) writeLocked(msg map[string]any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal rpc frame: %w", err)
	}
	data = append(data, '\n')
	if _, err := b.w.Write(data); err != nil {
		return fmt.Errorf("write rpc frame: %w", err)
	}
	return nil
}

func (b *Broker) cancel(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending, id)
}

// HandleLine processes one classified inbound line. Responses resolve a
// pending waiter; requests are dispatched to the handler on their own
// goroutine (never blocking the caller, which is normally the stdout
// reader loop); notifications are ignored here. Callers that care about
// child-initiated notifications should inspect rpcline.Line themselves
// before calling HandleLine, since HandleLine only handles the
// request/response half of the contract.
func (b *Broker) HandleLine(ctx context.Context, line rpcline.Line) {
	switch line.Kind {
	case rpcline.KindResponse:
		b.resolve(line)
	case rpcline.KindRequest:
		go b.handleRequest(ctx, line)
	}
}

func (b *Broker) resolve(line rpcline.Line) {
	if line.ID == nil {
		return
	}
	b.mu.Lock()
	ch, ok := b.pending[*line.ID]
	if ok {
		delete(b.pending, *line.ID)
	}
	b.mu.Unlock()
	if ok {
		ch <- line
	}
}

func (b *Broker) handleRequest(ctx context.Context, line rpcline.Line) {
	if b.handler == nil || line.ID == nil {
		return
	}
	result, rpcErr := b.handler.Handle(ctx, line.Method, line.Params)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.w == nil {
		return
	}
	msg := map[string]any{"jsonrpc": "2.0", "id": *line.ID}
	if rpcErr != nil {
		msg["error"] = rpcErr
	} else {
		msg["result"] = result
	}
	_ = b.writeLocked(msg)
}

// DrainOnExit fails every pending waiter with ErrCancelled: no pending
// id is allowed to outlive the child it was issued to. The writer is
// dropped too, so calls made before the next spawn fail with
// ErrProcessNotRunning rather than a write error on a dead pipe.
func (b *Broker) DrainOnExit() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.w = nil
	for id, ch := range b.pending {
		close(ch)
		delete(b.pending, id)
	}
}

// PendingCount reports the current size of the pending-call table.
func (b *Broker) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
