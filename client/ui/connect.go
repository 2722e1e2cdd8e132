package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lanchat/client/session"

	"github.com/rivo/tview"
)

// connectTimeout bounds the whole dial and handshake.
const connectTimeout = 10 * time.Second

func (a *App) showConnectDialog() {
	form := tview.NewForm()
	form.SetBackgroundColor(ColorBg)
	form.SetFieldBackgroundColor(ColorField)
	form.SetFieldTextColor(ColorFg)
	form.SetLabelColor(ColorHighlight)
	form.SetButtonBackgroundColor(ColorButton)
	form.SetButtonTextColor(ColorTitle)
	form.SetBorder(true)
	form.SetBorderColor(ColorBorder)
	form.SetTitle(" LAN Chat ")
	form.SetTitleColor(ColorTitle)

	statusText := tview.NewTextView()
	statusText.SetBackgroundColor(ColorBg)
	statusText.SetTextColor(ColorFg)
	statusText.SetTextAlign(tview.AlignCenter)
	statusText.SetDynamicColors(true)
	statusText.SetWordWrap(true)

	serverField := tview.NewInputField()
	serverField.SetLabel("Server: ")
	serverField.SetText(a.serverAddr)
	serverField.SetFieldWidth(30)
	serverField.SetBackgroundColor(ColorBg)

	nickField := tview.NewInputField()
	nickField.SetLabel("Nickname: ")
	nickField.SetText(a.nickname)
	nickField.SetFieldWidth(30)
	nickField.SetBackgroundColor(ColorBg)

	form.AddFormItem(serverField)
	form.AddFormItem(nickField)

	var connecting bool
	form.AddButton("Connect", func() {
		if connecting {
			return
		}
		addr := strings.TrimSpace(serverField.GetText())
		nick := strings.TrimSpace(nickField.GetText())
		if err := validateServerAddr(addr); err != nil {
			statusText.SetText("[red]" + tview.Escape(err.Error()) + "[-]")
			return
		}
		if nick == "" {
			statusText.SetText("[red]Nickname cannot be empty[-]")
			return
		}
		connecting = true
		a.doConnect(addr, nick, statusText, func() { connecting = false })
	})

	form.AddButton("Quit", func() {
		a.app.Stop()
	})

	formFlex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(form, 0, 1, true).
		AddItem(statusText, 4, 0, false)

	width := 60
	height := 14

	modal := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().
			AddItem(nil, 0, 1, false).
			AddItem(formFlex, width, 0, true).
			AddItem(nil, 0, 1, false), height, 0, true).
		AddItem(nil, 0, 1, false)

	a.pages.AddPage("connect", modal, true, true)
	a.app.SetFocus(form)
}

// doConnect runs the handshake off the UI goroutine and switches to the chat
// page on success. failed runs on the UI goroutine when the attempt fails.
func (a *App) doConnect(addr, nick string, statusText *tview.TextView, failed func()) {
	statusText.SetText("Connecting...")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()

		s, err := session.Dial(ctx, addr, nick, session.WithLogger(a.log))
		if err != nil {
			a.log.Warn().Err(err).Str("server", addr).Msg("connect failed")
			a.app.QueueUpdateDraw(func() {
				statusText.SetText("[red]" + tview.Escape(connectErrorText(err, addr)) + "[-]")
				failed()
			})
			return
		}

		a.app.QueueUpdateDraw(func() {
			a.serverAddr = addr
			a.nickname = nick
			a.session = s
			a.showChatScreen()
		})
	}()
}

// connectErrorText turns a handshake failure into advice for the user.
func connectErrorText(err error, addr string) string {
	var protoErr *session.ProtocolError
	if errors.As(err, &protoErr) {
		return fmt.Sprintf("Unexpected reply from %s: expected %s, got %s. Is it a chat server?",
			addr, protoErr.Expected, protoErr.Got)
	}

	var connErr *session.ConnectionError
	if errors.As(err, &connErr) {
		switch {
		case connErr.Op == "parse address":
			return fmt.Sprintf("Invalid server address %s", addr)
		case connErr.Timeout(), errors.Is(err, context.DeadlineExceeded):
			return fmt.Sprintf("No answer from %s. Check that the server is running and UDP traffic is allowed. "+
				"Use localhost only when the server runs on this machine.", addr)
		default:
			return fmt.Sprintf("Failed to connect to %s: %v", addr, connErr.Err)
		}
	}

	return fmt.Sprintf("Connection failed: %v", err)
}
