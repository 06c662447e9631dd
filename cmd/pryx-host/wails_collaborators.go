package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/wailsapp/wails/v3/pkg/application"

	"github.com/pryx-co/pryx/internal/hostrpc"
)

// wailsDialog implements permission.Dialog on top of Wails v3's native
// question dialog.
type wailsDialog struct{ app *application.App }

func newWailsDialog(app *application.App) *wailsDialog { return &wailsDialog{app: app} }

func (d *wailsDialog) Confirm(ctx context.Context, title, message string) (bool, error) {
	resultCh := make(chan bool, 1)

	dlg := application.QuestionDialog().
		SetTitle(title).
		SetMessage(message)
	dlg.AddButton("Deny").OnClick(func() { resultCh <- false })
	dlg.AddButton("Approve").OnClick(func() { resultCh <- true })
	dlg.Show()

	select {
	case approved := <-resultCh:
		return approved, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// wailsClipboard implements hostrpc.Clipboard on Wails v3's clipboard
// service.
type wailsClipboard struct{ app *application.App }

func newWailsClipboard(app *application.App) *wailsClipboard { return &wailsClipboard{app: app} }

func (c *wailsClipboard) WriteText(text string) error {
	return c.app.Clipboard.SetText(text)
}

func (c *wailsClipboard) ReadText() (string, error) {
	return c.app.Clipboard.Text()
}

// wailsNotifier implements hostrpc.Notifier on top of Wails v3's window
// system. Desktop notification centers vary enough across platforms
// that a best-effort OS notification through the running application's
// window manager is the safest common denominator.
type wailsNotifier struct{ app *application.App }

func newWailsNotifier(app *application.App) *wailsNotifier { return &wailsNotifier{app: app} }

func (n *wailsNotifier) Show(title, body string) error {
	info := application.InfoDialog().SetTitle(title).SetMessage(body)
	info.Show()
	return nil
}

// noopUpdater is the default hostrpc.Updater: pryx-host ships without a
// configured update feed, so updater.check always reports nothing
// available rather than failing the RPC outright, which is friendlier to a
// child that polls periodically.
type noopUpdater struct{ client *http.Client }

func newNoopUpdater() *noopUpdater {
	return &noopUpdater{client: &http.Client{Timeout: 5 * time.Second}}
}

func (u *noopUpdater) Check(ctx context.Context) (*hostrpc.UpdateInfo, error) {
	return nil, nil
}

func (u *noopUpdater) DownloadAndInstall(ctx context.Context) error {
	return fmt.Errorf("no update feed configured")
}
