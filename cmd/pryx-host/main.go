// pryx-host is the desktop shell: it supervises the pryx-core child
// process, serves the local admin API and dashboard over HTTP, and
// answers the privileged RPCs the child calls back into the host for
// (permission prompts, notifications, clipboard, update checks).
//
// Architecture: the supervisor owns the child and its RPC broker
// in-process (no separate daemon binary or Unix socket hop); the HTTP
// server and Wails webview both talk to that one supervisor directly.
package main

import (
	"context"
	"io/fs"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/wailsapp/wails/v3/pkg/application"

	"github.com/pryx-co/pryx/internal/config"
	"github.com/pryx-co/pryx/internal/hostrpc"
	"github.com/pryx-co/pryx/internal/httpapi"
	"github.com/pryx-co/pryx/internal/permission"
	"github.com/pryx-co/pryx/internal/supervisor"
	"github.com/pryx-co/pryx/internal/token"
	"github.com/pryx-co/pryx/internal/version"
	uiFS "github.com/pryx-co/pryx/ui"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("pryx-host %s starting", version.Version())

	cfg := config.DefaultConfig()
	if err := cfg.EnsureDirs(); err != nil {
		log.Fatalf("pryx-host: ensure dirs: %v", err)
	}
	cfg.ChildBinary = findChildBinary()
	if cfg.ChildBinary == "" {
		log.Println("pryx-host: pryx-core binary not found next to this executable or in PATH; the dashboard will show a disconnected child until one is configured")
	}

	tokens, err := token.NewStore(cfg.TokenPath)
	if err != nil {
		log.Fatalf("pryx-host: init admin token: %v", err)
	}

	perms := permission.NewManager(permission.LoadDialogConfig(cfg.PermissionConfigPath))

	app := application.New(application.Options{Name: "Pryx"})

	handler := &hostrpc.Handler{
		Permissions: perms,
		Dialog:      newWailsDialog(app),
		Clipboard:   newWailsClipboard(app),
		Notifier:    newWailsNotifier(app),
		Updater:     newNoopUpdater(),
		Restarter:   restarterFunc(func() { restartSelf() }),
		Logger:      log.Default(),
	}

	sup := supervisor.New(cfg, handler, log.Default())
	if cfg.ChildBinary != "" {
		if err := sup.Start(context.Background()); err != nil {
			log.Printf("pryx-host: start child: %v", err)
		}
	}
	defer sup.Stop(context.Background())

	router := httpapi.New(sup, tokens, perms, staticDir(cfg))

	listener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		log.Fatalf("pryx-host: listen on %s: %v", cfg.HTTPAddr, err)
	}
	go func() {
		if err := http.Serve(listener, router); err != nil {
			log.Printf("pryx-host: http server stopped: %v", err)
		}
	}()
	log.Printf("pryx-host: admin API listening on http://%s", listener.Addr())

	window := app.Window.NewWithOptions(application.WebviewWindowOptions{
		Title:  "Pryx",
		URL:    "http://" + listener.Addr().String(),
		Width:  1100,
		Height: 700,
	})

	setupSystemTray(app, window, sup)

	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}

// staticDir resolves the directory the admin dashboard's static assets
// are served from. In dev mode (this binary run from the repo root) the
// built frontend lives on disk at ui/frontend/dist; in a packaged build
// there is no such directory, so the embedded copy is unpacked once
// into the data dir. httpapi falls back to its built-in placeholder
// page if neither is populated.
func staticDir(cfg *config.Config) string {
	const devRelPath = "ui/frontend/dist"
	if info, err := os.Stat(devRelPath); err == nil && info.IsDir() {
		return devRelPath
	}

	unpacked := filepath.Join(cfg.DataDir, "dashboard")
	if err := unpackEmbeddedFrontend(unpacked); err != nil {
		log.Printf("pryx-host: no bundled dashboard assets (%v); serving placeholder page", err)
	}
	return unpacked
}

// unpackEmbeddedFrontend copies ui.Frontend's frontend/dist subtree to
// dir once. No-op (and returns an error httpapi's caller logs and
// ignores) when the embed is empty.
func unpackEmbeddedFrontend(dir string) error {
	sub, err := fs.Sub(uiFS.Frontend, "frontend/dist")
	if err != nil {
		return err
	}
	entries, err := fs.ReadDir(sub, ".")
	if err != nil || len(entries) == 0 {
		return fs.ErrNotExist
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return fs.WalkDir(sub, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		target := filepath.Join(dir, path)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		data, err := fs.ReadFile(sub, path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0644)
	})
}

func restartSelf() {
	exe, err := os.Executable()
	if err != nil {
		return
	}
	// Best-effort: detach a fresh copy, then exit this one.
	// hostrpc.Handler already delays this call until after the
	// updater.install response is written.
	proc, err := os.StartProcess(exe, os.Args, &os.ProcAttr{
		Files: []*os.File{os.Stdin, os.Stdout, os.Stderr},
	})
	if err != nil {
		log.Printf("pryx-host: restart: %v", err)
		return
	}
	_ = proc.Release()
	time.Sleep(50 * time.Millisecond)
	os.Exit(0)
}

type restarterFunc func()

func (f restarterFunc) Restart() { f() }
