// Package permission implements the approval workflow for tool calls
// the child flags as requiring human consent: a pending-request table
// plus a native-dialog or dashboard-driven resolution path, owned by
// the host process for its whole lifetime rather than recreated per
// call.
package permission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// Response is the wire representation of an approval decision.
type Response string

const (
	Approved  Response = "approved"
	Denied    Response = "denied"
	Cancelled Response = "cancelled"
)

// Request is an approval request surfaced by the child over
// permission.request.
type Request struct {
	RequestID       string          `json:"request_id"`
	ToolName        string          `json:"tool_name"`
	ToolDescription string          `json:"tool_description"`
	Args            json.RawMessage `json:"args"`
	SessionID       string          `json:"session_id"`
	IsCritical      bool            `json:"is_critical"`
}

// DialogConfig controls whether and how long the manager waits on a
// native OS dialog before falling back to deny-by-default.
type DialogConfig struct {
	ShowNativeDialog            bool   `json:"show_native_dialog"`
	DialogTimeoutMS             uint64 `json:"dialog_timeout_ms"`
	ApprovalRequiredForCritical bool   `json:"approval_required_for_critical"`
}

// DefaultDialogConfig returns the settings used until the operator
// saves their own.
func DefaultDialogConfig() DialogConfig {
	return DialogConfig{
		ShowNativeDialog:            true,
		DialogTimeoutMS:             500,
		ApprovalRequiredForCritical: true,
	}
}

// LoadDialogConfig reads config from path, falling back to defaults if
// the file is absent or malformed.
func LoadDialogConfig(path string) DialogConfig {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultDialogConfig()
	}
	var cfg DialogConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return DefaultDialogConfig()
	}
	return cfg
}

// SaveDialogConfig persists cfg as indented JSON.
func SaveDialogConfig(path string, cfg DialogConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal permission config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// ErrCriticalRequiresDialog is returned when a critical tool requests
// approval but native dialogs are disabled; critical operations are
// never silently approved.
var ErrCriticalRequiresDialog = errors.New("critical tool requires approval but native dialogs are disabled")

// ErrNoSuchRequest is returned by Resolve/Cancel for an unknown or
// already-settled request id.
var ErrNoSuchRequest = errors.New("no pending request with that id")

// Dialog shows a native approve/deny prompt. Implemented by the desktop
// shell (cmd/pryx-host) on top of wails' application package; kept as
// an interface here so this package stays free of a UI dependency.
type Dialog interface {
	Confirm(ctx context.Context, title, message string) (approved bool, err error)
}

// Manager owns the pending-request table and the sender side of every
// in-flight approval.
type Manager struct {
	mu      sync.Mutex
	config  DialogConfig
	pending []Request
	senders map[string]chan Response
}

// NewManager creates a Manager with the given dialog configuration.
func NewManager(config DialogConfig) *Manager {
	return &Manager{
		config:  config,
		senders: make(map[string]chan Response),
	}
}

// SetConfig replaces the live dialog configuration (admin.permissions.configure).
func (m *Manager) SetConfig(config DialogConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = config
}

func (m *Manager) register(req Request) chan Response {
	ch := make(chan Response, 1)
	m.mu.Lock()
	m.pending = append(m.pending, req)
	m.senders[req.RequestID] = ch
	m.mu.Unlock()
	return ch
}

func (m *Manager) settle(requestID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.senders, requestID)
	for i, r := range m.pending {
		if r.RequestID == requestID {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			break
		}
	}
}

// RequestApproval blocks until the request is resolved, either by a
// native dialog, an external Resolve() call (e.g. from the dashboard's
// /api/permissions endpoint), or a deny-by-default timeout. The dialog
// is skipped entirely for non-critical tools when ShowNativeDialog is
// off; a critical tool in that configuration is refused outright rather
// than silently approved.
func (m *Manager) RequestApproval(ctx context.Context, req Request, dialog Dialog) (Response, error) {
	ch := m.register(req)
	defer m.settle(req.RequestID)

	m.mu.Lock()
	cfg := m.config
	m.mu.Unlock()

	shouldShowDialog := (cfg.ApprovalRequiredForCritical && req.IsCritical) || cfg.ShowNativeDialog
	if !shouldShowDialog {
		if req.IsCritical {
			return "", ErrCriticalRequiresDialog
		}
		return Approved, nil
	}

	dialogCh := make(chan Response, 1)
	if dialog != nil {
		go func() {
			message := fmt.Sprintf(
				"Tool Request: %s\n\nDescription: %s\n\nCritical: %v\n\nDo you want to proceed?",
				req.ToolName, req.ToolDescription, req.IsCritical,
			)
			approved, err := dialog.Confirm(ctx, "Permission Required", message)
			if err != nil {
				dialogCh <- Denied
				return
			}
			if approved {
				dialogCh <- Approved
			} else {
				dialogCh <- Denied
			}
		}()
	}

	timeout := time.Duration(cfg.DialogTimeoutMS) * time.Millisecond
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		return r, nil
	case r := <-dialogCh:
		return r, nil
	case <-timer.C:
		// Dismissed or timed out: deny by default for safety.
		return Denied, nil
	case <-ctx.Done():
		return Cancelled, ctx.Err()
	}
}

// Resolve answers a pending request from outside the dialog flow (the
// admin dashboard's approve/deny action). Returns ErrNoSuchRequest if
// the id is unknown or already settled.
func (m *Manager) Resolve(requestID string, resp Response) error {
	m.mu.Lock()
	ch, ok := m.senders[requestID]
	m.mu.Unlock()
	if !ok {
		return ErrNoSuchRequest
	}
	select {
	case ch <- resp:
	default:
	}
	return nil
}

// Cancel removes a pending request and unblocks any waiter with Cancelled.
func (m *Manager) Cancel(requestID string) error {
	m.mu.Lock()
	ch, ok := m.senders[requestID]
	m.mu.Unlock()
	if !ok {
		return ErrNoSuchRequest
	}
	select {
	case ch <- Cancelled:
	default:
	}
	return nil
}

// ListPending returns a snapshot of currently outstanding requests.
func (m *Manager) ListPending() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.pending))
	copy(out, m.pending)
	return out
}

// Config returns the manager's current dialog configuration.
func (m *Manager) Config() DialogConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config
}
