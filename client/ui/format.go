package ui

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"lanchat/protocol"

	"github.com/rivo/tview"
)

const (
	timestampLayout = "3:04 PM"
	minPort         = 1024
	maxPort         = 65535
)

// formatTimestamp renders t as an escaped "[3:04 PM] " prefix
func formatTimestamp(t time.Time) string {
	return tagTimestamp + tview.Escape("["+t.Format(timestampLayout)+"]") + tagReset + " "
}

// formatMessage renders one chat line with color tags for the chat view.
// Only CHAT lines carry the sender.
func formatMessage(msg protocol.Message, self string) string {
	content := tview.Escape(msg.Content)

	var body string
	switch msg.Kind {
	case protocol.KindSystem:
		body = tagSystem + content
	case protocol.KindJoin:
		body = tagJoin + content
	case protocol.KindLeave:
		body = tagLeave + content
	case protocol.KindChat:
		tag := tagChat
		if msg.Sender == self {
			tag = tagSelf
		}
		body = tag + tview.Escape(msg.Sender) + ": " + content
	default:
		body = content
	}
	return formatTimestamp(msg.Time()) + body + tagReset + "\n"
}

func formatPrivateSent(text string, at time.Time) string {
	return formatTimestamp(at) + tagPrivate + "Private message sent: " + tview.Escape(text) + tagReset + "\n"
}

func formatError(err error, at time.Time) string {
	return formatTimestamp(at) + tagError + "Error: " + tview.Escape(err.Error()) + tagReset + "\n"
}

type command int

const (
	cmdChat command = iota
	cmdUsers
	cmdPrivate
	cmdQuit
	cmdHelp
	cmdUnknown
)

// parseInput splits an input line into a command and its argument. Lines not
// starting with "/" are chat; "//" escapes a leading slash.
func parseInput(line string) (command, string) {
	if strings.HasPrefix(line, "//") {
		return cmdChat, line[1:]
	}
	if !strings.HasPrefix(line, "/") {
		return cmdChat, line
	}

	name, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(name) {
	case "users", "who":
		return cmdUsers, ""
	case "private", "p":
		return cmdPrivate, arg
	case "quit", "exit":
		return cmdQuit, ""
	case "help", "?":
		return cmdHelp, ""
	default:
		return cmdUnknown, name
	}
}

// validateServerAddr checks a "host:port" address typed into the connect
// dialog.
func validateServerAddr(addr string) error {
	host, portStr, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return errors.New("server address must be host:port")
	}
	if host == "" {
		return errors.New("server host cannot be empty")
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port number %q", portStr)
	}
	if port < minPort || port > maxPort {
		return fmt.Errorf("port must be between %d and %d", minPort, maxPort)
	}
	return nil
}
