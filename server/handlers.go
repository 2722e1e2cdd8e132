package server

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"lanchat/protocol"
)

// handleHello joins the sender, greets it, replays history and announces the
// join to everyone else. The replayed history is captured before the join
// announcement is recorded, so the joiner never sees its own JOIN.
func (s *Server) handleHello(from netip.AddrPort, msg protocol.Message) {
	nickname := s.peers.Join(from, msg.Content)

	replay := s.history.Serialize()
	joinMsg := protocol.NewMessage(protocol.KindJoin, protocol.ServerSender,
		fmt.Sprintf("%s (%s) joined the chat.", nickname, from.Addr()))
	s.history.Append(joinMsg)

	greeting := protocol.NewMessage(protocol.KindSystem, protocol.ServerSender,
		fmt.Sprintf("Welcome to the chat, %s!", nickname))
	s.sendPacket(from, greeting)

	// Greeting and WELCOME are read by two separate client receives.
	if s.config.HandshakeDelay > 0 {
		time.Sleep(s.config.HandshakeDelay)
	}
	s.sendPacket(from, protocol.NewMessage(protocol.KindWelcome, protocol.ServerSender, replay))

	n := s.broadcast(joinMsg, from)
	s.log.Info().Str("peer", from.String()).Str("nickname", nickname).Int("notified", n).Msg("peer joined")
}

func (s *Server) handleLeave(from netip.AddrPort) {
	nickname := s.peers.Leave(from)

	leaveMsg := protocol.NewMessage(protocol.KindLeave, protocol.ServerSender,
		fmt.Sprintf("%s (%s) left the chat.", nickname, from.Addr()))
	s.history.Append(leaveMsg)

	n := s.broadcast(leaveMsg, from)
	s.log.Info().Str("peer", from.String()).Str("nickname", nickname).Int("notified", n).Msg("peer left")
}

func (s *Server) handleUserList(from netip.AddrPort) {
	var sb strings.Builder
	sb.WriteString("Connected users:\n\n")
	for _, p := range s.peers.ListAll() {
		fmt.Fprintf(&sb, "• %s (%s)\n", p.Nickname, p.Endpoint.Addr())
	}

	s.sendPacket(from, protocol.NewMessage(protocol.KindUserListResponse, protocol.ServerSender, sb.String()))
}

// handlePrivateMessage relays msg to the first joined loopback peer, which is
// the operator console when the server host also runs a client, and confirms
// receipt to the sender. Private messages are never recorded in history.
func (s *Server) handlePrivateMessage(from netip.AddrPort, msg protocol.Message) {
	nickname, ok := s.peers.Nickname(from)
	if !ok {
		nickname = DefaultNickname(from)
	}

	if target, ok := s.peers.FirstLoopback(); ok {
		relay := protocol.NewMessage(protocol.KindSystem, protocol.ServerSender,
			fmt.Sprintf("Private message from %s (%s): %s", nickname, from.Addr(), msg.Content))
		s.sendPacket(target, relay)
	} else {
		s.log.Debug().Str("peer", from.String()).Msg("no local peer to relay private message to")
	}

	s.sendPacket(from, protocol.NewMessage(protocol.KindSystem, protocol.ServerSender, "Private message received"))
}

// handleMessage records and fans out chat and any other kind without a
// dedicated handler, keeping the sender's timestamp and kind.
func (s *Server) handleMessage(from netip.AddrPort, msg protocol.Message) {
	final := protocol.Message{
		Kind:      msg.Kind,
		Sender:    s.peers.Resolve(from),
		Content:   msg.Content,
		Timestamp: msg.Timestamp,
	}
	s.history.Append(final)
	s.broadcast(final, from)
}
