package ui

import (
	"time"

	"lanchat/client/session"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/rs/zerolog"
)

// receiverStopWait bounds how long quitting waits for the receive loop.
const receiverStopWait = 200 * time.Millisecond

// App is the main application
type App struct {
	app        *tview.Application
	pages      *tview.Pages
	log        zerolog.Logger
	serverAddr string
	nickname   string

	session  *session.Session
	receiver *session.Receiver

	// queueUpdate runs f on the UI goroutine.
	queueUpdate func(f func())

	chatView     *tview.TextView
	messageInput *tview.InputField
	statusBar    *tview.TextView
}

// NewApp creates a new application instance. serverAddr and nickname prefill
// the connect dialog.
func NewApp(serverAddr, nickname string, logger zerolog.Logger) *App {
	return &App{
		serverAddr: serverAddr,
		nickname:   nickname,
		log:        logger.With().Str("component", "ui").Logger(),
	}
}

// Run starts the application
func (a *App) Run() error {
	a.app = tview.NewApplication()
	a.pages = tview.NewPages()
	a.queueUpdate = func(f func()) { a.app.QueueUpdateDraw(f) }

	background := tview.NewBox()
	background.SetBackgroundColor(tcell.NewRGBColor(64, 64, 64))
	a.pages.AddPage("background", background, true, true)

	a.showConnectDialog()

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyCtrlC {
			a.quit()
			return nil
		}
		return event
	})

	return a.app.SetRoot(a.pages, true).EnableMouse(false).Run()
}

// quit leaves the chat and exits the application
func (a *App) quit() {
	if a.session != nil {
		a.session.Close()
	}
	if a.receiver != nil && !a.receiver.Stop(receiverStopWait) {
		a.log.Debug().Msg("receiver still running at exit")
	}
	a.app.Stop()
}
