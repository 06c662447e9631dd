// Package supervisor drives a child worker process through
// Stopped→Starting→Running→(Restarting|Crashed|Stopping), owning the
// process group, the stdin writer, and the RPC broker that multiplexes
// JSON-RPC over the child's stdio.
package supervisor

import (
	"bufio"
	"context"
	"io"
	"log"
	"os/exec"
	"sync"
	"time"

	"github.com/pryx-co/pryx/internal/backoff"
	"github.com/pryx-co/pryx/internal/broker"
	"github.com/pryx-co/pryx/internal/config"
	"github.com/pryx-co/pryx/internal/metrics"
	"github.com/pryx-co/pryx/internal/rpcline"
)

// Status is the observation snapshot returned by Status().
type Status struct {
	State      State
	PID        int
	Port       uint16
	StartedAt  time.Time
	Uptime     time.Duration
	HasPort    bool
	HasPID     bool
	CrashCount uint32
}

// Supervisor owns one child's lifecycle and its RPC broker.
type Supervisor struct {
	cfg     *config.Config
	broker  *broker.Broker
	handler broker.RequestHandler
	logger  *log.Logger

	mu            sync.Mutex
	state         State
	pid           int
	port          uint16
	startedAt     time.Time
	crashCount    uint32
	stopRequested bool
	child         *spawnedChild
	childCancel   context.CancelFunc
	exited        chan struct{}
	settled       chan struct{}
}

// New creates a Supervisor. handler answers inbound RPC requests from
// the child; it may be nil if the child never calls back.
func New(cfg *config.Config, handler broker.RequestHandler, logger *log.Logger) *Supervisor {
	if logger == nil {
		logger = log.Default()
	}
	s := &Supervisor{cfg: cfg, handler: handler, logger: logger}
	s.broker = broker.New(nil, handler)
	metrics.SetState(StateStopped.String())
	return s
}

// Broker returns the RPC broker so HTTP handlers and the host-side RPC
// dispatcher can issue calls without touching the child directly.
func (s *Supervisor) Broker() *broker.Broker { return s.broker }

// Status returns a point-in-time snapshot.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	var uptime time.Duration
	if !s.startedAt.IsZero() && s.state.Kind == StateRunning {
		uptime = time.Since(s.startedAt)
	}
	return Status{
		State:      s.state,
		PID:        s.pid,
		Port:       s.port,
		StartedAt:  s.startedAt,
		Uptime:     uptime,
		HasPort:    s.port != 0,
		HasPID:     s.pid != 0,
		CrashCount: s.crashCount,
	}
}

// Start spawns the child, races port discovery against the configured
// start timeout, and arranges for unexpected exits to trigger the
// backoff-restart path. Returns an error only when the OS refuses to
// spawn.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	s.stopRequested = false
	s.state = State{Kind: StateStarting}
	s.startedAt = time.Now()
	s.mu.Unlock()
	metrics.SetState(StateStarting.String())

	child, err := spawnChild(s.cfg)
	if err != nil {
		s.mu.Lock()
		s.state = State{Kind: StateStopped}
		s.mu.Unlock()
		metrics.SetState(StateStopped.String())
		return err
	}

	childCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.child = child
	s.pid = child.cmd.Process.Pid
	s.port = 0
	s.childCancel = cancel
	s.mu.Unlock()

	s.broker.Reset(child.stdin)

	exited := make(chan struct{})
	settled := make(chan struct{})
	portCh := make(chan uint16, 1)

	// Published before the port race so a concurrent Stop() always has
	// live channels to synchronize on.
	s.mu.Lock()
	s.exited, s.settled = exited, settled
	s.mu.Unlock()

	go s.readStdout(childCtx, child.stdout, portCh)
	go s.readStderr(child.stderr)
	go s.waitChild(child.cmd, exited, settled)

	select {
	case p := <-portCh:
		s.mu.Lock()
		s.port = p
		s.state = State{Kind: StateRunning}
		s.mu.Unlock()
		metrics.SetState(StateRunning.String())
		metrics.ChildCrashed.Set(0)
		s.logger.Printf("pryx: child running on port %d (pid %d)", p, child.cmd.Process.Pid)
	case <-time.After(s.cfg.StartTimeout):
		s.mu.Lock()
		if s.state.Kind == StateStarting {
			s.state = State{Kind: StateRunning}
		}
		s.mu.Unlock()
		metrics.SetState(StateRunning.String())
		metrics.ChildCrashed.Set(0)
		s.logger.Printf("pryx: child running, port discovery timed out (pid %d)", child.cmd.Process.Pid)
	case <-exited:
		// Child exited before announcing a port or hitting the timeout.
		// onChildExit (invoked from waitChild) owns the state transition.
	}

	return nil
}

func (s *Supervisor) readStdout(ctx context.Context, pipe io.Reader, portCh chan<- uint16) {
	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	portLatched := false
	for scanner.Scan() {
		line := scanner.Text()
		classified := rpcline.Classify(line)
		switch classified.Kind {
		case rpcline.KindPort:
			if !portLatched {
				portLatched = true
				select {
				case portCh <- classified.Port:
				default:
				}
				s.mu.Lock()
				s.port = classified.Port
				s.mu.Unlock()
			}
		case rpcline.KindRequest, rpcline.KindResponse:
			s.broker.HandleLine(ctx, classified)
		case rpcline.KindNotification:
			s.logger.Printf("pryx: [child notify] %s", classified.Method)
		default:
			s.logger.Printf("pryx: [child] %s", line)
		}
	}
}

func (s *Supervisor) readStderr(pipe io.Reader) {
	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		s.logger.Printf("pryx: [child err] %s", scanner.Text())
	}
}

func (s *Supervisor) waitChild(cmd *exec.Cmd, exited, settled chan struct{}) {
	err := cmd.Wait()
	close(exited)
	s.onChildExit(err, settled)
}

// onChildExit implements the Running/Starting → Restarting|Crashed|Stopped
// transitions, including the backoff formula and the max-restarts
// fatal threshold.
func (s *Supervisor) onChildExit(err error, settled chan struct{}) {
	defer close(settled)

	s.broker.DrainOnExit()

	s.mu.Lock()
	stopping := s.stopRequested
	uptime := time.Since(s.startedAt)
	cancel := s.childCancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	if stopping {
		s.mu.Lock()
		s.state = State{Kind: StateStopped}
		s.pid, s.port = 0, 0
		s.startedAt = time.Time{}
		s.mu.Unlock()
		metrics.SetState(StateStopped.String())
		return
	}

	s.logger.Printf("pryx: child exited unexpectedly: %v", err)

	s.mu.Lock()
	if uptime >= s.cfg.StartTimeout {
		// A long-lived run completed successfully; don't let historical
		// crashes inflate the backoff for this fresh failure.
		s.crashCount = 0
	}
	s.crashCount++
	attempts := s.crashCount
	s.mu.Unlock()

	if s.cfg.MaxRestarts > 0 && attempts > s.cfg.MaxRestarts {
		s.mu.Lock()
		s.state = State{Kind: StateCrashed, Attempts: attempts}
		s.pid, s.port = 0, 0
		s.mu.Unlock()
		metrics.SetState(StateCrashed.String())
		metrics.ChildCrashed.Set(1)
		s.logger.Printf("pryx: max restarts (%d) exceeded, giving up", s.cfg.MaxRestarts)
		return
	}

	delay := backoff.Delay(attempts, s.cfg.InitialBackoff, s.cfg.BackoffMultiplier)
	s.mu.Lock()
	s.state = State{Kind: StateRestarting, BackoffMS: uint64(delay.Milliseconds())}
	s.pid, s.port = 0, 0
	s.mu.Unlock()
	metrics.SetState(StateRestarting.String())
	metrics.ChildRestarts.Inc()

	timer := time.NewTimer(delay)
	<-timer.C

	s.mu.Lock()
	shouldStop := s.stopRequested
	s.mu.Unlock()
	if shouldStop {
		s.mu.Lock()
		s.state = State{Kind: StateStopped}
		s.mu.Unlock()
		metrics.SetState(StateStopped.String())
		return
	}

	if err := s.Start(context.Background()); err != nil {
		s.logger.Printf("pryx: restart failed: %v", err)
	}
}

// Stop sends SIGTERM to the child's process group, waits up to 2s, then
// escalates to SIGKILL and reaps. Idempotent: a second Stop() is a
// no-op that returns nil.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state.Kind == StateStopped {
		s.mu.Unlock()
		return nil
	}
	s.stopRequested = true
	s.state = State{Kind: StateStopping}
	child := s.child
	exited := s.exited
	settled := s.settled
	s.mu.Unlock()
	metrics.SetState(StateStopping.String())

	if child == nil {
		s.mu.Lock()
		s.state = State{Kind: StateStopped}
		s.pid, s.port = 0, 0
		s.startedAt = time.Time{}
		s.mu.Unlock()
		metrics.SetState(StateStopped.String())
		return nil
	}

	stopProcessGroup(child.cmd, exited, 2*time.Second)

	select {
	case <-settled:
	case <-time.After(2 * time.Second):
		// onChildExit should have settled almost immediately after
		// exited closes; this bound only guards against a logic bug.
	}

	// If the exit handler already ran before Stop (the child was in
	// Crashed or mid-restart), nothing else will leave Stopping.
	s.mu.Lock()
	if s.state.Kind != StateStopped {
		s.state = State{Kind: StateStopped}
		s.pid, s.port = 0, 0
		s.startedAt = time.Time{}
	}
	s.child = nil
	s.mu.Unlock()
	metrics.SetState(StateStopped.String())
	metrics.ChildCrashed.Set(0)
	return nil
}
