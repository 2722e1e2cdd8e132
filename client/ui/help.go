package ui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

const helpText = `
 [yellow]Chat Screen[-]
 ───────────────────────────────────────────────────────────────
   [white]Enter[-]    Send message to everyone
   [white]F1[-]       Show this help
   [white]F2[-]       List connected users
   [white]F3[-]       Private message to the server operator
   [white]Tab[-]      Switch between input and scroll mode
   [white]F10[-]      Leave the chat and quit

 [yellow]Commands[-]
 ───────────────────────────────────────────────────────────────
   [white]/users[-]           List connected users
   [white]/private <text>[-]  Private message to the server operator
   [white]/quit[-]            Leave the chat and quit
   [white]/help[-]            Show this help
   [white]//text[-]           Send a message starting with "/"

 [yellow]Scroll Mode (after pressing Tab)[-]
 ───────────────────────────────────────────────────────────────
   [white]↑ ↓[-]      Scroll one line
   [white]PgUp/Dn[-]  Scroll page
   [white]Home[-]     Scroll to beginning
   [white]End[-]      Scroll to end
   [white]Tab[-]      Return to input mode

 [yellow]Protocol Information[-]
 ───────────────────────────────────────────────────────────────
   Messages travel over UDP and are not acknowledged.
   The server replays up to 100 recent messages when you join.
   Your own messages are shown locally, the server does not echo them.
`

func (a *App) showHelp() {
	helpView := tview.NewTextView()
	helpView.SetText(helpText)
	helpView.SetBackgroundColor(ColorBg)
	helpView.SetTextColor(ColorFg)
	helpView.SetDynamicColors(true)
	helpView.SetBorder(true)
	helpView.SetBorderColor(ColorBorder)
	helpView.SetTitle(" Help ")
	helpView.SetTitleColor(ColorTitle)
	helpView.SetScrollable(true)

	statusBar := tview.NewTextView()
	statusBar.SetBackgroundColor(ColorButton)
	statusBar.SetTextColor(ColorTitle)
	statusBar.SetTextAlign(tview.AlignCenter)
	statusBar.SetText(" ↑↓/PgUp/PgDn: Scroll | Esc/Enter/F1: Close ")

	flex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(helpView, 0, 1, true).
		AddItem(statusBar, 1, 0, false)
	flex.SetBackgroundColor(ColorBg)

	flex.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEsc, tcell.KeyEnter, tcell.KeyF1:
			a.pages.RemovePage("help")
			a.app.SetFocus(a.messageInput)
			return nil
		case tcell.KeyPgUp:
			row, col := helpView.GetScrollOffset()
			helpView.ScrollTo(row-10, col)
			return nil
		case tcell.KeyPgDn:
			row, col := helpView.GetScrollOffset()
			helpView.ScrollTo(row+10, col)
			return nil
		}
		return event
	})

	a.pages.AddPage("help", flex, true, true)
	a.app.SetFocus(flex)
}
