package main

import (
	"fmt"
	"time"

	"github.com/wailsapp/wails/v3/pkg/application"
	"github.com/wailsapp/wails/v3/pkg/events"

	"github.com/pryx-co/pryx/internal/supervisor"
)

// setupSystemTray configures the system tray icon, menu, and window
// behavior, polling *supervisor.Supervisor directly for its live state.
//
// Behavior:
//   - Left-click tray icon -> toggle window visibility
//   - Right-click -> show menu with child status + quit
//   - Close window (X button) -> hide to tray, child keeps running
//   - "Quit Pryx" in menu -> stop the child, then exit
func setupSystemTray(app *application.App, window *application.WebviewWindow, sup *supervisor.Supervisor) {
	tray := app.SystemTray.New()

	tray.SetTemplateIcon(generateTrayIcon())
	tray.SetTooltip("Pryx")

	menu := buildTrayMenu(app, window, sup.Status())
	tray.SetMenu(menu)

	tray.OnClick(func() {
		if window.IsVisible() {
			window.Hide()
		} else {
			window.Show()
		}
	})

	window.RegisterHook(events.Common.WindowClosing, func(e *application.WindowEvent) {
		e.Cancel()
		window.Hide()
	})

	go pollTraySupervisor(app, tray, window, sup)
}

// buildTrayMenu creates a tray menu reflecting the supervisor's current
// status snapshot.
func buildTrayMenu(app *application.App, window *application.WebviewWindow, st supervisor.Status) *application.Menu {
	menu := application.NewMenu()

	menu.Add("Open Dashboard").OnClick(func(ctx *application.Context) {
		window.Show()
	})

	menu.AddSeparator()

	label := fmt.Sprintf("%s %s", stateIndicator(st.State.Kind), st.State)
	if st.HasPort {
		label += fmt.Sprintf(" :%d", st.Port)
	}
	if st.CrashCount > 0 {
		label += fmt.Sprintf(" (%d restarts)", st.CrashCount)
	}
	menu.Add(label).SetEnabled(false)

	menu.AddSeparator()

	menu.Add("Quit Pryx").OnClick(func(ctx *application.Context) {
		app.Quit()
	})

	return menu
}

// stateIndicator returns a Unicode dot/circle for the supervisor state.
func stateIndicator(k supervisor.Kind) string {
	switch k {
	case supervisor.StateRunning:
		return "●" // ● solid
	case supervisor.StateStarting, supervisor.StateRestarting:
		return "◐" // ◐ half
	case supervisor.StateCrashed:
		return "⊘" // ⊘
	default:
		return "○" // ○
	}
}

// pollTraySupervisor periodically rebuilds the tray menu from the
// supervisor's live status.
func pollTraySupervisor(app *application.App, tray *application.SystemTray, window *application.WebviewWindow, sup *supervisor.Supervisor) {
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		tray.SetMenu(buildTrayMenu(app, window, sup.Status()))
	}
}
