package permission

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

type fixedDialog struct {
	approve bool
	delay   time.Duration
}

func (d fixedDialog) Confirm(ctx context.Context, title, message string) (bool, error) {
	if d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	return d.approve, nil
}

func TestRequestApprovalApprovedByDialog(t *testing.T) {
	m := NewManager(DialogConfig{ShowNativeDialog: true, DialogTimeoutMS: 200, ApprovalRequiredForCritical: true})
	resp, err := m.RequestApproval(context.Background(), Request{RequestID: "r1", ToolName: "fs.write"}, fixedDialog{approve: true})
	if err != nil {
		t.Fatalf("RequestApproval: %v", err)
	}
	if resp != Approved {
		t.Fatalf("resp = %v, want Approved", resp)
	}
}

func TestRequestApprovalDeniedByDialog(t *testing.T) {
	m := NewManager(DialogConfig{ShowNativeDialog: true, DialogTimeoutMS: 200})
	resp, err := m.RequestApproval(context.Background(), Request{RequestID: "r2"}, fixedDialog{approve: false})
	if err != nil {
		t.Fatalf("RequestApproval: %v", err)
	}
	if resp != Denied {
		t.Fatalf("resp = %v, want Denied", resp)
	}
}

func TestRequestApprovalTimesOutToDenied(t *testing.T) {
	m := NewManager(DialogConfig{ShowNativeDialog: true, DialogTimeoutMS: 30})
	resp, err := m.RequestApproval(context.Background(), Request{RequestID: "r3"}, fixedDialog{approve: true, delay: time.Second})
	if err != nil {
		t.Fatalf("RequestApproval: %v", err)
	}
	if resp != Denied {
		t.Fatalf("resp = %v, want Denied (default-deny on timeout)", resp)
	}
}

func TestRequestApprovalNonCriticalAutoApprovedWithoutDialog(t *testing.T) {
	m := NewManager(DialogConfig{ShowNativeDialog: false, ApprovalRequiredForCritical: true, DialogTimeoutMS: 500})
	resp, err := m.RequestApproval(context.Background(), Request{RequestID: "r4", IsCritical: false}, nil)
	if err != nil {
		t.Fatalf("RequestApproval: %v", err)
	}
	if resp != Approved {
		t.Fatalf("resp = %v, want Approved", resp)
	}
}

func TestRequestApprovalCriticalRefusedWithoutDialog(t *testing.T) {
	m := NewManager(DialogConfig{ShowNativeDialog: false, ApprovalRequiredForCritical: true})
	_, err := m.RequestApproval(context.Background(), Request{RequestID: "r5", IsCritical: true}, nil)
	if err != ErrCriticalRequiresDialog {
		t.Fatalf("err = %v, want ErrCriticalRequiresDialog", err)
	}
}

func TestResolveFromExternalSourceRacesDialog(t *testing.T) {
	m := NewManager(DialogConfig{ShowNativeDialog: true, DialogTimeoutMS: 2000})
	done := make(chan Response, 1)
	go func() {
		resp, _ := m.RequestApproval(context.Background(), Request{RequestID: "r6"}, fixedDialog{delay: 2 * time.Second})
		done <- resp
	}()

	// Give RequestApproval time to register the pending entry.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(m.ListPending()) == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if err := m.Resolve("r6", Approved); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	select {
	case resp := <-done:
		if resp != Approved {
			t.Fatalf("resp = %v, want Approved", resp)
		}
	case <-time.After(time.Second):
		t.Fatal("RequestApproval did not unblock on Resolve")
	}
}

func TestCancelRemovesPendingAndUnblocksWaiter(t *testing.T) {
	m := NewManager(DialogConfig{ShowNativeDialog: true, DialogTimeoutMS: 2000})
	done := make(chan Response, 1)
	go func() {
		resp, _ := m.RequestApproval(context.Background(), Request{RequestID: "r7"}, fixedDialog{delay: 2 * time.Second})
		done <- resp
	}()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(m.ListPending()) == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if err := m.Cancel("r7"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	select {
	case resp := <-done:
		if resp != Cancelled {
			t.Fatalf("resp = %v, want Cancelled", resp)
		}
	case <-time.After(time.Second):
		t.Fatal("RequestApproval did not unblock on Cancel")
	}
	if len(m.ListPending()) != 0 {
		t.Fatalf("expected pending list empty after settle, got %d", len(m.ListPending()))
	}
}

func TestResolveUnknownRequestErrors(t *testing.T) {
	m := NewManager(DefaultDialogConfig())
	if err := m.Resolve("nope", Approved); err != ErrNoSuchRequest {
		t.Fatalf("err = %v, want ErrNoSuchRequest", err)
	}
}

func TestLoadDialogConfigFallsBackToDefaults(t *testing.T) {
	cfg := LoadDialogConfig(filepath.Join(t.TempDir(), "missing.json"))
	if cfg != DefaultDialogConfig() {
		t.Fatalf("cfg = %+v, want defaults", cfg)
	}
}

func TestSaveAndLoadDialogConfigRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "permissions.json")
	want := DialogConfig{ShowNativeDialog: false, DialogTimeoutMS: 750, ApprovalRequiredForCritical: false}
	if err := SaveDialogConfig(path, want); err != nil {
		t.Fatalf("SaveDialogConfig: %v", err)
	}
	got := LoadDialogConfig(path)
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}
