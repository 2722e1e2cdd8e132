package server

import (
	"context"
	"fmt"
	"net"
	"runtime"
	"strings"
	"testing"
	"time"

	"lanchat/client/session"
	"lanchat/protocol"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	receiveWait = 2 * time.Second
	silenceWait = 300 * time.Millisecond
)

// setupTestServer starts a server on a random port and stops it when the
// test ends.
func setupTestServer(t *testing.T, mutate ...func(*ServerConfig)) *Server {
	t.Helper()

	config := &ServerConfig{
		Port:           0,
		ReadTimeout:    100 * time.Millisecond,
		HandshakeDelay: 10 * time.Millisecond,
		ErrorBackoff:   10 * time.Millisecond,
	}
	for _, m := range mutate {
		m(config)
	}

	srv := New(config, zerolog.Nop())
	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Stop() })
	return srv
}

func join(t *testing.T, srv *Server, nickname string) *session.Session {
	t.Helper()
	s, err := session.Connect(context.Background(), "127.0.0.1", srv.Addr().Port, nickname,
		session.WithHandshakeTimeout(2*time.Second),
		session.WithReceiveTimeout(50*time.Millisecond),
	)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// receiveKind reads from s until a message of kind arrives.
func receiveKind(t *testing.T, s *session.Session, kind protocol.Kind) protocol.Message {
	t.Helper()
	deadline := time.Now().Add(receiveWait)
	for time.Now().Before(deadline) {
		msg, err := s.ReceiveNext()
		if err != nil {
			continue
		}
		if msg.Kind == kind {
			return msg
		}
	}
	t.Fatalf("%s did not receive %s", s.Nickname(), kind)
	return protocol.Message{}
}

// expectNothing asserts that s receives no message at all for a while.
func expectNothing(t *testing.T, s *session.Session) {
	t.Helper()
	deadline := time.Now().Add(silenceWait)
	for time.Now().Before(deadline) {
		msg, err := s.ReceiveNext()
		if err == nil {
			t.Errorf("%s unexpectedly received %s", s.Nickname(), msg)
		}
	}
}

// rawPeer talks to the server without the session handshake.
type rawPeer struct {
	conn *net.UDPConn
}

func newRawPeer(t *testing.T, srv *Server) *rawPeer {
	t.Helper()
	conn, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: srv.Addr().Port})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &rawPeer{conn: conn}
}

func (p *rawPeer) send(t *testing.T, payload string) {
	t.Helper()
	_, err := p.conn.Write([]byte(payload))
	require.NoError(t, err)
}

func (p *rawPeer) recv(timeout time.Duration) (protocol.Message, error) {
	buf := make([]byte, protocol.MaxFrameSize)
	p.conn.SetReadDeadline(time.Now().Add(timeout))
	n, err := p.conn.Read(buf)
	if err != nil {
		return protocol.Message{}, err
	}
	return protocol.Decode(buf[:n], "?"), nil
}

func (p *rawPeer) hello(t *testing.T, nickname string) {
	t.Helper()
	p.send(t, protocol.NewMessage(protocol.KindHello, "", nickname).String())
	for i := 0; i < 2; i++ {
		_, err := p.recv(receiveWait)
		require.NoError(t, err)
	}
}

func (p *rawPeer) localAddr() string {
	return p.conn.LocalAddr().String()
}

func TestStartStop(t *testing.T) {
	srv := New(&ServerConfig{ReadTimeout: 50 * time.Millisecond}, zerolog.Nop())
	assert.Nil(t, srv.Addr())
	assert.ErrorIs(t, srv.Stop(), ErrNotStarted)

	require.NoError(t, srv.Start())
	addr := srv.Addr()
	require.NotNil(t, addr)
	assert.NotZero(t, addr.Port)
	assert.ErrorIs(t, srv.Start(), ErrAlreadyStarted)

	require.NoError(t, srv.Stop())
	select {
	case <-srv.Done():
	default:
		t.Fatal("Dispatch loop still running after Stop")
	}
	assert.NoError(t, srv.Stop())
}

func TestStartPortInUse(t *testing.T) {
	srv := setupTestServer(t)

	other := New(&ServerConfig{Port: srv.Addr().Port}, zerolog.Nop())
	assert.Error(t, other.Start())
}

// Scenario A: a fresh server greets the first client and replays nothing.
func TestHelloHandshake(t *testing.T) {
	srv := setupTestServer(t)
	peer := newRawPeer(t, srv)

	peer.send(t, protocol.NewMessage(protocol.KindHello, "", "alice").String())

	first, err := peer.recv(receiveWait)
	require.NoError(t, err)
	assert.Equal(t, protocol.KindSystem, first.Kind)
	assert.Equal(t, "Welcome to the chat, alice!", first.Content)
	assert.Equal(t, protocol.ServerSender, first.Sender)

	second, err := peer.recv(receiveWait)
	require.NoError(t, err)
	assert.Equal(t, protocol.KindWelcome, second.Kind)
	assert.Empty(t, second.Content)

	require.Eventually(t, func() bool {
		return srv.Stats().History == 1
	}, receiveWait, 10*time.Millisecond)
	st := srv.Stats()
	assert.Equal(t, 1, st.Joined)
	assert.Equal(t, []string{"alice"}, st.Users)
}

func TestHelloEmptyNickname(t *testing.T) {
	srv := setupTestServer(t)
	peer := newRawPeer(t, srv)

	peer.send(t, protocol.NewMessage(protocol.KindHello, "", "").String())
	first, err := peer.recv(receiveWait)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("Welcome to the chat, %s!", peer.localAddr()), first.Content)
}

func TestSessionJoin(t *testing.T) {
	srv := setupTestServer(t)
	alice := join(t, srv, "alice")

	notices := alice.StartupNotices()
	require.Len(t, notices, 1)
	assert.Equal(t, "Welcome to the chat, alice!", notices[0].Content)
	assert.Empty(t, alice.History())
}

// The server is bound to all interfaces, so its replies may leave from
// another local address than the one the client sent to.
func TestJoinViaSecondaryAddress(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("127.0.0.2 is only routed to loopback by default on linux")
	}
	srv := setupTestServer(t)

	s, err := session.Connect(context.Background(), "127.0.0.2", srv.Addr().Port, "alice",
		session.WithHandshakeTimeout(2*time.Second),
		session.WithReceiveTimeout(50*time.Millisecond),
	)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.Len(t, s.StartupNotices(), 1)
	assert.Equal(t, "Welcome to the chat, alice!", s.StartupNotices()[0].Content)

	bob := join(t, srv, "bob")
	sent, err := bob.SendChat("over here")
	require.NoError(t, err)

	got := receiveKind(t, s, protocol.KindChat)
	assert.Equal(t, sent.Timestamp, got.Timestamp)
	assert.Equal(t, "bob", got.Sender)
}

// Scenario B: earlier peers see the join announcement, the joiner does not.
func TestJoinAnnouncement(t *testing.T) {
	srv := setupTestServer(t)
	alice := join(t, srv, "alice")
	bob := join(t, srv, "bob")

	msg := receiveKind(t, alice, protocol.KindJoin)
	assert.True(t, strings.HasSuffix(msg.Content, "joined the chat."), msg.Content)
	assert.True(t, strings.HasPrefix(msg.Content, "bob "), msg.Content)
	assert.Equal(t, "bob (127.0.0.1) joined the chat.", msg.Content)

	expectNothing(t, bob)
}

// Scenario C: chat is relayed with the sender's nickname and timestamp.
func TestChatRelay(t *testing.T) {
	srv := setupTestServer(t)
	alice := join(t, srv, "alice")
	bob := join(t, srv, "bob")
	receiveKind(t, alice, protocol.KindJoin)

	sent, err := alice.SendChat("hi")
	require.NoError(t, err)

	got := receiveKind(t, bob, protocol.KindChat)
	assert.Equal(t, "alice", got.Sender)
	assert.Equal(t, "hi", got.Content)
	assert.Equal(t, sent.Timestamp, got.Timestamp)

	expectNothing(t, alice)
}

// Scenario D: the user list goes to the requester only.
func TestUserList(t *testing.T) {
	srv := setupTestServer(t)
	alice := join(t, srv, "alice")
	bob := join(t, srv, "bob")
	receiveKind(t, alice, protocol.KindJoin)

	require.NoError(t, alice.RequestUserList())

	resp := receiveKind(t, alice, protocol.KindUserListResponse)
	assert.Equal(t, protocol.ServerSender, resp.Sender)
	assert.True(t, strings.HasPrefix(resp.Content, "Connected users:\n\n"))
	assert.Contains(t, resp.Content, "• alice (127.0.0.1)\n")
	assert.Contains(t, resp.Content, "• bob (127.0.0.1)\n")

	expectNothing(t, bob)
}

func TestBroadcastExcludesSender(t *testing.T) {
	srv := setupTestServer(t)

	const n = 4
	peers := make([]*rawPeer, n)
	for i := range peers {
		peers[i] = newRawPeer(t, srv)
		peers[i].hello(t, fmt.Sprintf("peer%d", i))
	}
	// Drain join announcements: peer i sees the joins of peers i+1..n-1.
	for i := range peers {
		for j := i + 1; j < n; j++ {
			msg, err := peers[i].recv(receiveWait)
			require.NoError(t, err)
			require.Equal(t, protocol.KindJoin, msg.Kind)
		}
	}

	peers[0].send(t, protocol.NewMessage(protocol.KindChat, "peer0", "fan out").String())

	delivered := 0
	for _, p := range peers[1:] {
		msg, err := p.recv(receiveWait)
		require.NoError(t, err)
		assert.Equal(t, "fan out", msg.Content)
		assert.Equal(t, "peer0", msg.Sender)
		delivered++
	}
	assert.Equal(t, n-1, delivered)

	_, err := peers[0].recv(silenceWait)
	assert.True(t, session.IsTimeout(err), "sender must not receive its own chat")
}

func TestLeave(t *testing.T) {
	srv := setupTestServer(t)
	alice := join(t, srv, "alice")
	bob := join(t, srv, "bob")
	receiveKind(t, alice, protocol.KindJoin)

	require.NoError(t, bob.Close())

	msg := receiveKind(t, alice, protocol.KindLeave)
	assert.Equal(t, "bob (127.0.0.1) left the chat.", msg.Content)
	assert.Equal(t, protocol.ServerSender, msg.Sender)

	require.Eventually(t, func() bool {
		return srv.Stats().Joined == 1
	}, receiveWait, 10*time.Millisecond)
	assert.Equal(t, []string{"alice"}, srv.Stats().Users)
}

func TestLeaveWithoutHello(t *testing.T) {
	srv := setupTestServer(t)
	alice := join(t, srv, "alice")
	stranger := newRawPeer(t, srv)

	stranger.send(t, protocol.NewMessage(protocol.KindLeave, "", "").String())

	msg := receiveKind(t, alice, protocol.KindLeave)
	host, _, _ := net.SplitHostPort(stranger.localAddr())
	assert.Equal(t, fmt.Sprintf("%s (%s) left the chat.", stranger.localAddr(), host), msg.Content)
}

func TestHistoryReplay(t *testing.T) {
	srv := setupTestServer(t)
	alice := join(t, srv, "alice")
	bob := join(t, srv, "bob")
	receiveKind(t, alice, protocol.KindJoin)

	sent, err := alice.SendChat("hello: everyone")
	require.NoError(t, err)
	receiveKind(t, bob, protocol.KindChat)

	carol := join(t, srv, "carol")
	replay := carol.History()
	require.Len(t, replay, 3)
	assert.Equal(t, "alice (127.0.0.1) joined the chat.", replay[0].Content)
	assert.Equal(t, "bob (127.0.0.1) joined the chat.", replay[1].Content)
	assert.Equal(t, sent.Timestamp, replay[2].Timestamp)
	assert.Equal(t, "alice", replay[2].Sender)
	assert.Equal(t, "hello: everyone", replay[2].Content)
}

func TestHistoryBound(t *testing.T) {
	srv := setupTestServer(t, func(c *ServerConfig) { c.MaxHistory = 5 })
	alice := newRawPeer(t, srv)
	alice.hello(t, "alice")

	for i := 0; i < 12; i++ {
		alice.send(t, protocol.NewMessage(protocol.KindChat, "alice", fmt.Sprintf("m%d", i)).String())
	}
	require.Eventually(t, func() bool {
		return srv.Stats().Received == 13
	}, receiveWait, 10*time.Millisecond)

	bob := join(t, srv, "bob")
	replay := bob.History()
	require.Len(t, replay, 5)
	for i, m := range replay {
		assert.Equal(t, fmt.Sprintf("m%d", 7+i), m.Content)
	}
}

func TestPrivateMessage(t *testing.T) {
	srv := setupTestServer(t)
	console := join(t, srv, "console")
	bob := join(t, srv, "bob")
	receiveKind(t, console, protocol.KindJoin)

	_, err := bob.SendPrivate("secret")
	require.NoError(t, err)

	relayed := receiveKind(t, console, protocol.KindSystem)
	assert.Equal(t, "Private message from bob (127.0.0.1): secret", relayed.Content)

	confirm := receiveKind(t, bob, protocol.KindSystem)
	assert.Equal(t, "Private message received", confirm.Content)

	carol := join(t, srv, "carol")
	for _, m := range carol.History() {
		assert.NotContains(t, m.Content, "secret")
	}
}

func TestUnframedDatagramIsChat(t *testing.T) {
	srv := setupTestServer(t)
	alice := join(t, srv, "alice")
	stranger := newRawPeer(t, srv)

	stranger.send(t, "just text: no frame")

	msg := receiveKind(t, alice, protocol.KindChat)
	assert.Equal(t, "just text: no frame", msg.Content)
	assert.Equal(t, stranger.localAddr(), msg.Sender)

	// The stranger was given a nickname but never joined.
	_, err := stranger.recv(silenceWait)
	assert.True(t, session.IsTimeout(err))
	require.Eventually(t, func() bool {
		return srv.Stats().Peers == 2
	}, receiveWait, 10*time.Millisecond)
	assert.Equal(t, 1, srv.Stats().Joined)
}

func TestLegacyPrivateKindIsChat(t *testing.T) {
	srv := setupTestServer(t)
	alice := join(t, srv, "alice")
	bob := newRawPeer(t, srv)
	bob.hello(t, "bob")
	receiveKind(t, alice, protocol.KindJoin)

	bob.send(t, "PRIVATE_TO_SERVER:1:bob:psst")

	msg := receiveKind(t, alice, protocol.KindChat)
	assert.Equal(t, "PRIVATE_TO_SERVER:1:bob:psst", msg.Content)
	assert.Equal(t, "bob", msg.Sender)
}

func TestIdlePeerExpiry(t *testing.T) {
	srv := setupTestServer(t, func(c *ServerConfig) {
		c.PeerIdleTimeout = 300 * time.Millisecond
		c.ReadTimeout = 50 * time.Millisecond
	})
	quiet := newRawPeer(t, srv)
	quiet.hello(t, "quiet")
	alice := join(t, srv, "alice")

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		require.NoError(t, alice.RequestUserList())
		msg, err := alice.ReceiveNext()
		if err == nil && msg.Kind == protocol.KindLeave {
			assert.Equal(t, "quiet (127.0.0.1) timed out.", msg.Content)
			require.Eventually(t, func() bool {
				return len(srv.Stats().Users) == 1
			}, receiveWait, 10*time.Millisecond)
			assert.Equal(t, []string{"alice"}, srv.Stats().Users)
			return
		}
	}
	t.Fatal("Quiet peer was not expired")
}

func TestReadOnlyPeerExpires(t *testing.T) {
	srv := setupTestServer(t, func(c *ServerConfig) {
		c.PeerIdleTimeout = 300 * time.Millisecond
		c.ReadTimeout = 50 * time.Millisecond
	})
	lurker := newRawPeer(t, srv)
	lurker.hello(t, "lurker")
	alice := join(t, srv, "alice")

	msg, err := lurker.recv(receiveWait)
	require.NoError(t, err)
	assert.Equal(t, protocol.KindJoin, msg.Kind)

	// Chat reaching the lurker does not count as activity on its side.
	_, err = alice.SendChat("anyone here?")
	require.NoError(t, err)
	msg, err = lurker.recv(receiveWait)
	require.NoError(t, err)
	assert.Equal(t, "anyone here?", msg.Content)

	require.Eventually(t, func() bool {
		alice.RequestUserList()
		return len(srv.Stats().Users) == 1
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{"alice"}, srv.Stats().Users)
}

func TestStopUnblocksReceive(t *testing.T) {
	srv := New(&ServerConfig{ReadTimeout: time.Hour}, zerolog.Nop())
	require.NoError(t, srv.Start())

	done := make(chan error, 1)
	go func() { done <- srv.Stop() }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not unblock the pending receive")
	}
}
