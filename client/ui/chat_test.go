package ui

import (
	"errors"
	"testing"

	"lanchat/protocol"

	"github.com/rivo/tview"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func newTestApp() *App {
	return &App{
		log:         zerolog.Nop(),
		nickname:    "alice",
		chatView:    tview.NewTextView().SetDynamicColors(true),
		queueUpdate: func(f func()) { f() },
	}
}

func TestReceiveErrorShownInline(t *testing.T) {
	a := newTestApp()

	a.reportReceiveError(errors.New("read udp4 0.0.0.0:40000: network is unreachable"))

	text := a.chatView.GetText(true)
	assert.Contains(t, text, "Error: read udp4 0.0.0.0:40000: network is unreachable")
}

func TestDeliverAppendsMessage(t *testing.T) {
	a := newTestApp()

	a.deliver(protocol.Message{Kind: protocol.KindChat, Sender: "bob", Content: "hi", Timestamp: 1000})
	a.deliver(protocol.Message{Kind: protocol.KindLeave, Sender: "Server", Content: "carol (10.0.0.3) left the chat.", Timestamp: 2000})

	text := a.chatView.GetText(true)
	assert.Contains(t, text, "bob: hi")
	assert.Contains(t, text, "carol (10.0.0.3) left the chat.")
}
