// Package hostrpc answers JSON-RPC requests the child issues to the
// host: permission prompts, notifications, clipboard access, and
// update checks/installs. It implements broker.RequestHandler so the
// supervisor can dispatch inbound lines directly into it.
//
// Every branch answers by stuffing success/failure into the JSON-RPC
// *result* object rather than the error object, so a failed clipboard
// read, say, is a normal response with an "error" field, not a
// protocol-level error. updater.install returns its result and calls
// Restart() from a goroutine after restartDelay; that delay is what
// lets the broker write the response first, as no write completion is
// awaited.
package hostrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/pryx-co/pryx/internal/permission"
	"github.com/pryx-co/pryx/internal/rpcline"
)

// restartDelay bounds how long updater.install waits after returning
// its result before actually restarting the host.
const restartDelay = 150 * time.Millisecond

// Clipboard abstracts the desktop shell's system clipboard.
type Clipboard interface {
	WriteText(text string) error
	ReadText() (string, error)
}

// Notifier abstracts the desktop shell's OS notification center.
type Notifier interface {
	Show(title, body string) error
}

// UpdateInfo describes an available update.
type UpdateInfo struct {
	Version string
	Body    string
}

// Updater abstracts the desktop shell's update mechanism.
type Updater interface {
	Check(ctx context.Context) (*UpdateInfo, error)
	DownloadAndInstall(ctx context.Context) error
}

// Restarter restarts the host application. Invoked restartDelay after
// updater.install has returned its result to the broker.
type Restarter interface {
	Restart()
}

// Handler implements broker.RequestHandler for every host-side RPC
// method the child may call.
type Handler struct {
	Permissions *permission.Manager
	Dialog      permission.Dialog
	Clipboard   Clipboard
	Notifier    Notifier
	Updater     Updater
	Restarter   Restarter
	Logger      *log.Logger
}

func (h *Handler) logf(format string, args ...any) {
	if h.Logger != nil {
		h.Logger.Printf(format, args...)
	}
}

// Handle dispatches one inbound request. Unknown methods get a plain
// JSON-RPC "method not found" error, since the child contract doesn't
// define that case as a result-embedded failure.
func (h *Handler) Handle(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, *rpcline.RPCError) {
	switch method {
	case "permission.request":
		return h.handlePermissionRequest(ctx, params)
	case "notification.show":
		return h.handleNotificationShow(params)
	case "clipboard.writeText":
		return h.handleClipboardWrite(params)
	case "clipboard.readText":
		return h.handleClipboardRead()
	case "updater.check":
		return h.handleUpdaterCheck(ctx)
	case "updater.install":
		return h.handleUpdaterInstall(ctx)
	default:
		return nil, &rpcline.RPCError{Code: -32601, Message: fmt.Sprintf("method not found: %s", method)}
	}
}

type permissionParams struct {
	Description string `json:"description"`
	Intent      string `json:"intent"`
	IsCritical  bool   `json:"is_critical"`
	SessionID   string `json:"session_id"`
}

func (h *Handler) handlePermissionRequest(ctx context.Context, raw json.RawMessage) (json.RawMessage, *rpcline.RPCError) {
	var p permissionParams
	_ = json.Unmarshal(raw, &p)
	if p.Description == "" {
		p.Description = "Unknown Action"
	}
	if p.Intent == "" {
		p.Intent = "Requested by Runtime"
	}

	h.logf("pryx: asking permission for: %s", p.Description)

	req := permission.Request{
		RequestID:       uuid.New().String(),
		ToolName:        p.Intent,
		ToolDescription: p.Description,
		SessionID:       p.SessionID,
		IsCritical:      p.IsCritical,
		Args:            raw,
	}

	resp, err := h.Permissions.RequestApproval(ctx, req, h.Dialog)
	if err != nil {
		h.logf("pryx: permission request failed: %v", err)
		resp = permission.Denied
	}

	result, _ := json.Marshal(map[string]any{"approved": resp == permission.Approved})
	return result, nil
}

type notificationParams struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (h *Handler) handleNotificationShow(raw json.RawMessage) (json.RawMessage, *rpcline.RPCError) {
	var p notificationParams
	_ = json.Unmarshal(raw, &p)
	if p.Title == "" {
		p.Title = "Pryx Notification"
	}

	h.logf("pryx: showing notification: %s - %s", p.Title, p.Body)

	if h.Notifier == nil {
		result, _ := json.Marshal(map[string]any{"error": "no notification backend configured"})
		return result, nil
	}
	if err := h.Notifier.Show(p.Title, p.Body); err != nil {
		result, _ := json.Marshal(map[string]any{"error": err.Error()})
		return result, nil
	}
	result, _ := json.Marshal(map[string]any{"status": "ok"})
	return result, nil
}

type clipboardWriteParams struct {
	Text string `json:"text"`
}

func (h *Handler) handleClipboardWrite(raw json.RawMessage) (json.RawMessage, *rpcline.RPCError) {
	var p clipboardWriteParams
	_ = json.Unmarshal(raw, &p)

	if h.Clipboard == nil {
		result, _ := json.Marshal(map[string]any{"error": "no clipboard backend configured"})
		return result, nil
	}
	if err := h.Clipboard.WriteText(p.Text); err != nil {
		result, _ := json.Marshal(map[string]any{"error": err.Error()})
		return result, nil
	}
	result, _ := json.Marshal(map[string]any{"status": "ok"})
	return result, nil
}

func (h *Handler) handleClipboardRead() (json.RawMessage, *rpcline.RPCError) {
	var text string
	if h.Clipboard != nil {
		var err error
		text, err = h.Clipboard.ReadText()
		if err != nil {
			text = ""
		}
	}
	result, _ := json.Marshal(map[string]any{"text": text})
	return result, nil
}

func (h *Handler) handleUpdaterCheck(ctx context.Context) (json.RawMessage, *rpcline.RPCError) {
	h.logf("pryx: checking for updates...")
	if h.Updater == nil {
		result, _ := json.Marshal(map[string]any{"error": "no updater backend configured"})
		return result, nil
	}
	info, err := h.Updater.Check(ctx)
	if err != nil {
		result, _ := json.Marshal(map[string]any{"error": err.Error()})
		return result, nil
	}
	if info == nil {
		result, _ := json.Marshal(map[string]any{"available": false})
		return result, nil
	}
	result, _ := json.Marshal(map[string]any{"available": true, "version": info.Version, "body": info.Body})
	return result, nil
}

func (h *Handler) handleUpdaterInstall(ctx context.Context) (json.RawMessage, *rpcline.RPCError) {
	h.logf("pryx: installing update...")
	if h.Updater == nil {
		result, _ := json.Marshal(map[string]any{"error": "no updater backend configured"})
		return result, nil
	}

	info, err := h.Updater.Check(ctx)
	if err != nil {
		result, _ := json.Marshal(map[string]any{"error": err.Error()})
		return result, nil
	}
	if info == nil {
		result, _ := json.Marshal(map[string]any{"error": "no update found to install"})
		return result, nil
	}

	if err := h.Updater.DownloadAndInstall(ctx); err != nil {
		result, _ := json.Marshal(map[string]any{"error": err.Error()})
		return result, nil
	}

	result, _ := json.Marshal(map[string]any{"status": "installed", "restart": true})
	if h.Restarter != nil {
		// broker.handleRequest writes this result only after Handle
		// returns, so restarting inline here would race the write.
		// Give the response a moment to land on the wire first.
		go func() {
			time.Sleep(restartDelay)
			h.Restarter.Restart()
		}()
	}
	return result, nil
}
