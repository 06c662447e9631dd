package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pryx-co/pryx/internal/rpcline"
)

// syncBuf is a thread-safe io.Writer used in place of the child's stdin.
type syncBuf struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuf) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuf) lastLine() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := strings.Split(strings.TrimRight(s.buf.String(), "\n"), "\n")
	return lines[len(lines)-1]
}

func TestCallResolvesOnMatchingResponse(t *testing.T) {
	w := &syncBuf{}
	b := New(w, nil)

	done := make(chan struct{})
	var result json.RawMessage
	var callErr error
	go func() {
		result, callErr = b.Call(context.Background(), "admin.health", nil)
		close(done)
	}()

	// Wait for the request to be written, then feed the response.
	deadline := time.Now().Add(time.Second)
	for w.lastLine() == "" && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	b.HandleLine(context.Background(), rpcline.Classify(`{"jsonrpc":"2.0","result":{"ok":true},"id":1}`))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Call did not return")
	}
	if callErr != nil {
		t.Fatalf("Call returned error: %v", callErr)
	}
	if string(result) != `{"ok":true}` {
		t.Fatalf("unexpected result: %s", result)
	}
}

func TestCallTimesOut(t *testing.T) {
	w := &syncBuf{}
	b := New(w, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := b.Call(ctx, "slow.method", nil)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if b.PendingCount() != 0 {
		t.Fatalf("expected pending table empty after timeout, got %d", b.PendingCount())
	}
}

func TestCallErrorsWhenNotRunning(t *testing.T) {
	b := New(nil, nil)
	_, err := b.Call(context.Background(), "admin.health", nil)
	if err != ErrProcessNotRunning {
		t.Fatalf("expected ErrProcessNotRunning, got %v", err)
	}
}

func TestIDsIncreaseMonotonically(t *testing.T) {
	w := &syncBuf{}
	b := New(w, nil)

	for i := 0; i < 3; i++ {
		go b.Call(context.Background(), "m", nil)
	}
	time.Sleep(50 * time.Millisecond)
	if b.nextID != 4 {
		t.Fatalf("nextID = %d, want 4", b.nextID)
	}
}

func TestResetRestartsIDsAtOne(t *testing.T) {
	w := &syncBuf{}
	b := New(w, nil)
	b.nextID = 99
	b.Reset(w)
	if b.nextID != 1 {
		t.Fatalf("nextID after Reset = %d, want 1", b.nextID)
	}
}

func TestDrainOnExitFailsPendingCalls(t *testing.T) {
	w := &syncBuf{}
	b := New(w, nil)

	errCh := make(chan error, 1)
	go func() {
		_, err := b.Call(context.Background(), "m", nil)
		errCh <- err
	}()
	time.Sleep(50 * time.Millisecond)

	b.DrainOnExit()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected error after DrainOnExit")
		}
	case <-time.After(time.Second):
		t.Fatal("Call did not return after DrainOnExit")
	}
	if b.PendingCount() != 0 {
		t.Fatalf("expected empty pending table, got %d", b.PendingCount())
	}
}

func TestWrittenFrameIsOneNewlineTerminatedLine(t *testing.T) {
	w := &syncBuf{}
	b := New(w, nil)

	if err := b.Notify("admin.ping", map[string]any{"msg": "hi"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	w.mu.Lock()
	raw := w.buf.String()
	w.mu.Unlock()
	if !strings.HasSuffix(raw, "\n") {
		t.Fatalf("frame does not end in newline: %q", raw)
	}
	if strings.Count(raw, "\n") != 1 {
		t.Fatalf("frame contains %d newlines, want 1: %q", strings.Count(raw, "\n"), raw)
	}

	var frame map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSuffix(raw, "\n")), &frame); err != nil {
		t.Fatalf("frame does not round-trip: %v", err)
	}
	if frame["method"] != "admin.ping" {
		t.Fatalf("round-tripped method = %v, want admin.ping", frame["method"])
	}
}

type echoHandler struct{}

func (echoHandler) Handle(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, *rpcline.RPCError) {
	return json.RawMessage(`{"approved":true}`), nil
}

func TestInboundRequestDispatchedAndAnswered(t *testing.T) {
	w := &syncBuf{}
	b := New(w, echoHandler{})

	line := rpcline.Classify(`{"jsonrpc":"2.0","method":"permission.request","params":{"description":"Read file"},"id":7}`)
	b.HandleLine(context.Background(), line)

	deadline := time.Now().Add(time.Second)
	for w.lastLine() == "" && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !strings.Contains(w.lastLine(), `"approved":true`) {
		t.Fatalf("expected response written, got %q", w.lastLine())
	}
}
