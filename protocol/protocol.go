// Package protocol implements the lanchat datagram frame format.
//
// Every datagram carries exactly one message encoded as
//
//	KIND:EPOCH_MILLIS:SENDER:CONTENT
//
// Only the first three colons are structural, so CONTENT may contain ':'.
// Decoding never fails: input that does not parse as a frame is delivered as
// plain CHAT content from a caller-supplied sender.
package protocol

import (
	"strconv"
	"strings"
	"time"
)

const (
	// MaxFrameSize is the buffer size for control and history frames.
	MaxFrameSize = 2048
	// ChatFrameSize is the client's steady-state read buffer size.
	ChatFrameSize = 1024

	// MaxHistory bounds the replayed chat history.
	MaxHistory = 100

	// HistorySeparator joins encoded frames inside WELCOME content.
	HistorySeparator = "||"

	// ServerSender is the display name of server-originated messages.
	ServerSender = "Server"

	fieldSeparator = ":"
)

// Kind identifies the meaning of a message.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindChat
	KindChatPrivate
	KindJoin
	KindLeave
	KindSystem
	KindHello
	KindWelcome
	KindUserList
	KindUserListResponse
)

var kindNames = [...]string{
	KindUnknown:          "UNKNOWN",
	KindChat:             "CHAT",
	KindChatPrivate:      "CHAT_PRIVATE",
	KindJoin:             "JOIN",
	KindLeave:            "LEAVE",
	KindSystem:           "SYSTEM",
	KindHello:            "HELLO",
	KindWelcome:          "WELCOME",
	KindUserList:         "USER_LIST",
	KindUserListResponse: "USER_LIST_RESPONSE",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return kindNames[KindUnknown]
}

// Valid reports whether k is a kind that may appear on the wire.
func (k Kind) Valid() bool {
	return k > KindUnknown && int(k) < len(kindNames)
}

// ParseKind maps a wire name to its Kind. Unrecognised names, including
// "UNKNOWN" itself, report false.
func ParseKind(s string) (Kind, bool) {
	for i := KindChat; int(i) < len(kindNames); i++ {
		if kindNames[i] == s {
			return i, true
		}
	}
	return KindUnknown, false
}

// Message is one chat event.
type Message struct {
	Kind      Kind
	Sender    string
	Content   string
	Timestamp int64 // Unix milliseconds
}

// NewMessage builds a message stamped with the current time.
func NewMessage(kind Kind, sender, content string) Message {
	return Message{
		Kind:      kind,
		Sender:    sender,
		Content:   content,
		Timestamp: NowUnixMilli(),
	}
}

// NowUnixMilli returns the current time in Unix milliseconds.
func NowUnixMilli() int64 {
	return time.Now().UnixMilli()
}

// Time returns the message timestamp as a local time.Time.
func (m Message) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// String returns the wire form of m.
func (m Message) String() string {
	var b strings.Builder
	b.WriteString(m.Kind.String())
	b.WriteString(fieldSeparator)
	b.WriteString(strconv.FormatInt(m.Timestamp, 10))
	b.WriteString(fieldSeparator)
	b.WriteString(m.Sender)
	b.WriteString(fieldSeparator)
	b.WriteString(m.Content)
	return b.String()
}

// Encode returns the datagram payload for m.
func Encode(m Message) []byte {
	return []byte(m.String())
}

// Decode parses a datagram payload. It never fails; see DecodeString.
func Decode(data []byte, defaultSender string) Message {
	return DecodeString(string(data), defaultSender)
}

// DecodeString parses one frame. If the frame has fewer than four fields, an
// unknown kind or a non-integer timestamp, the whole input becomes CHAT
// content from defaultSender stamped with the current time.
func DecodeString(s string, defaultSender string) Message {
	if m, ok := Parse(s); ok {
		return m
	}
	return NewMessage(KindChat, defaultSender, s)
}

// Parse decodes a well-formed frame and reports whether s was one.
func Parse(s string) (Message, bool) {
	parts := strings.SplitN(s, fieldSeparator, 4)
	if len(parts) < 4 {
		return Message{}, false
	}

	kind, ok := ParseKind(parts[0])
	if !ok {
		return Message{}, false
	}

	ts, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Message{}, false
	}

	return Message{
		Kind:      kind,
		Timestamp: ts,
		Sender:    parts[2],
		Content:   parts[3],
	}, true
}

// JoinHistory encodes messages for a WELCOME frame. A separator inside a
// message's content is not escaped and will split that message on replay.
func JoinHistory(msgs []Message) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		parts = append(parts, m.String())
	}
	return strings.Join(parts, HistorySeparator)
}

// SplitHistory decodes WELCOME content into messages, dropping empty
// fragments. Fragments that are not frames decode as CHAT from ServerSender.
func SplitHistory(content string) []Message {
	var msgs []Message
	for _, frag := range strings.Split(content, HistorySeparator) {
		if frag == "" {
			continue
		}
		msgs = append(msgs, DecodeString(frag, ServerSender))
	}
	return msgs
}
