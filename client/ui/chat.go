package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lanchat/protocol"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

const chatStatusText = " Enter:Send | F1:Help | F2:Users | F3:Private | Tab:Scroll | F10:Quit "

func (a *App) showChatScreen() {
	a.pages.RemovePage("connect")
	a.pages.RemovePage("background")

	a.pages.AddPage("chat", a.createChatPage(), true, true)

	for _, msg := range a.session.StartupNotices() {
		a.appendMessage(msg)
	}
	for _, msg := range a.session.History() {
		a.appendMessage(msg)
	}

	a.receiver = a.session.StartReceiver(context.Background(), a.deliver, a.reportReceiveError)

	a.app.SetFocus(a.messageInput)
}

func (a *App) createChatPage() tview.Primitive {
	header := tview.NewTextView()
	header.SetBackgroundColor(ColorButton)
	header.SetTextColor(ColorTitle)
	header.SetTextAlign(tview.AlignCenter)
	header.SetDynamicColors(true)
	header.SetText(fmt.Sprintf("Connected as [::b]%s[::-] | Server: %s",
		tview.Escape(a.nickname), tview.Escape(a.session.ServerAddr().String())))

	a.chatView = tview.NewTextView()
	a.chatView.SetBorder(true)
	a.chatView.SetBorderColor(ColorBorder)
	a.chatView.SetBackgroundColor(ColorBg)
	a.chatView.SetTitle(" Chat ")
	a.chatView.SetTitleColor(ColorTitle)
	a.chatView.SetTextColor(ColorFg)
	a.chatView.SetDynamicColors(true)
	a.chatView.SetScrollable(true)
	a.chatView.SetWordWrap(true)
	a.chatView.ScrollToEnd()

	a.messageInput = tview.NewInputField()
	a.messageInput.SetLabel("> ")
	a.messageInput.SetFieldWidth(0)
	a.messageInput.SetBackgroundColor(ColorBg)
	a.messageInput.SetFieldBackgroundColor(ColorField)
	a.messageInput.SetFieldTextColor(ColorFg)
	a.messageInput.SetLabelColor(ColorHighlight)
	a.messageInput.SetBorder(true)
	a.messageInput.SetBorderColor(ColorBorder)
	a.messageInput.SetTitle(" Message ")
	a.messageInput.SetTitleColor(ColorTitle)

	a.messageInput.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		text := a.messageInput.GetText()
		if strings.TrimSpace(text) == "" {
			return
		}
		a.messageInput.SetText("")
		a.handleInput(text)
	})

	a.statusBar = tview.NewTextView()
	a.statusBar.SetBackgroundColor(ColorButton)
	a.statusBar.SetTextColor(ColorTitle)
	a.statusBar.SetTextAlign(tview.AlignCenter)
	a.statusBar.SetText(chatStatusText)

	mainFlex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(header, 1, 0, false).
		AddItem(a.chatView, 0, 1, false).
		AddItem(a.messageInput, 3, 0, true).
		AddItem(a.statusBar, 1, 0, false)
	mainFlex.SetBackgroundColor(ColorBg)

	chatViewFocused := false

	mainFlex.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyTab:
			chatViewFocused = !chatViewFocused
			if chatViewFocused {
				a.app.SetFocus(a.chatView)
				a.statusBar.SetText(" ↑↓/PgUp/PgDn:Scroll | Home:Top | End:Bottom | Tab:Input ")
			} else {
				a.app.SetFocus(a.messageInput)
				a.statusBar.SetText(chatStatusText)
			}
			return nil
		case tcell.KeyF1:
			a.showHelp()
			return nil
		case tcell.KeyF2:
			a.requestUserList()
			return nil
		case tcell.KeyF3:
			a.showPrivateDialog()
			return nil
		case tcell.KeyF10:
			a.quit()
			return nil
		}
		return event
	})

	return mainFlex
}

func (a *App) handleInput(text string) {
	cmd, arg := parseInput(text)
	switch cmd {
	case cmdChat:
		a.sendChat(arg)
	case cmdUsers:
		a.requestUserList()
	case cmdPrivate:
		if arg == "" {
			a.showPrivateDialog()
			return
		}
		a.sendPrivate(arg)
	case cmdQuit:
		a.quit()
	case cmdHelp:
		a.showHelp()
	case cmdUnknown:
		a.appendError(fmt.Errorf("unknown command /%s, type /help", arg))
	}
}

func (a *App) sendChat(text string) {
	msg, err := a.session.SendChat(text)
	if err != nil {
		a.appendError(err)
		return
	}
	a.appendMessage(msg)
}

func (a *App) sendPrivate(text string) {
	if _, err := a.session.SendPrivate(text); err != nil {
		a.appendError(err)
		return
	}
	fmt.Fprint(a.chatView, formatPrivateSent(text, time.Now()))
}

func (a *App) requestUserList() {
	if err := a.session.RequestUserList(); err != nil {
		a.appendError(err)
	}
}

// deliver and reportReceiveError are called from the receiver goroutine.
func (a *App) deliver(msg protocol.Message) {
	a.queueUpdate(func() {
		a.handleIncoming(msg)
	})
}

func (a *App) reportReceiveError(err error) {
	a.queueUpdate(func() {
		a.appendError(err)
	})
}

// handleIncoming runs on the UI goroutine for every received message.
func (a *App) handleIncoming(msg protocol.Message) {
	if msg.Kind == protocol.KindUserListResponse {
		a.showUserList(msg.Content)
		return
	}
	a.appendMessage(msg)
}

func (a *App) appendMessage(msg protocol.Message) {
	fmt.Fprint(a.chatView, formatMessage(msg, a.nickname))
}

func (a *App) appendError(err error) {
	a.log.Debug().Err(err).Msg("chat error")
	fmt.Fprint(a.chatView, formatError(err, time.Now()))
}

func (a *App) showUserList(content string) {
	modal := tview.NewModal().
		SetText(strings.TrimRight(content, "\n")).
		AddButtons([]string{"OK"}).
		SetDoneFunc(func(int, string) {
			a.pages.RemovePage("users")
			a.app.SetFocus(a.messageInput)
		})
	modal.SetBackgroundColor(ColorBg)
	modal.SetTextColor(ColorFg)
	modal.SetButtonBackgroundColor(ColorButton)
	modal.SetButtonTextColor(ColorTitle)

	a.pages.AddPage("users", modal, true, true)
	a.app.SetFocus(modal)
}

func (a *App) showPrivateDialog() {
	form := tview.NewForm()
	form.SetBackgroundColor(ColorBg)
	form.SetFieldBackgroundColor(ColorField)
	form.SetFieldTextColor(ColorFg)
	form.SetLabelColor(ColorHighlight)
	form.SetButtonBackgroundColor(ColorButton)
	form.SetButtonTextColor(ColorTitle)
	form.SetBorder(true)
	form.SetBorderColor(ColorBorder)
	form.SetTitle(" Private to Server ")
	form.SetTitleColor(ColorTitle)

	textField := tview.NewInputField()
	textField.SetLabel("Message: ")
	textField.SetFieldWidth(40)
	textField.SetBackgroundColor(ColorBg)

	closeDialog := func() {
		a.pages.RemovePage("private")
		a.app.SetFocus(a.messageInput)
	}

	form.AddFormItem(textField)
	form.AddButton("Send", func() {
		text := strings.TrimSpace(textField.GetText())
		closeDialog()
		if text != "" {
			a.sendPrivate(text)
		}
	})
	form.AddButton("Cancel", closeDialog)
	form.SetCancelFunc(closeDialog)

	modal := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().
			AddItem(nil, 0, 1, false).
			AddItem(form, 56, 0, true).
			AddItem(nil, 0, 1, false), 7, 0, true).
		AddItem(nil, 0, 1, false)

	a.pages.AddPage("private", modal, true, true)
	a.app.SetFocus(form)
}
