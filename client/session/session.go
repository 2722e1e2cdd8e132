// Package session is the client side of the lanchat protocol: it performs
// the HELLO/WELCOME handshake and exposes fire-and-forget sends plus a
// blocking, time-limited receive.
//
// A Session may be used by one sending goroutine and one receiving goroutine
// at the same time; they share only the underlying UDP socket.
package session

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"lanchat/history"
	"lanchat/protocol"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// State is the lifecycle stage of a session.
type State int32

const (
	StateHandshaking State = iota
	StateJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type Options struct {
	Logger           zerolog.Logger
	HandshakeTimeout time.Duration // per handshake receive
	ReceiveTimeout   time.Duration // per ReceiveNext call
	ErrorBackoff     time.Duration // receiver pause after a transport error
	MaxHistory       int
}

type Option func(*Options)

func WithLogger(l zerolog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *Options) { o.HandshakeTimeout = d }
}

func WithReceiveTimeout(d time.Duration) Option {
	return func(o *Options) { o.ReceiveTimeout = d }
}

func WithErrorBackoff(d time.Duration) Option {
	return func(o *Options) { o.ErrorBackoff = d }
}

func WithMaxHistory(n int) Option {
	return func(o *Options) { o.MaxHistory = n }
}

func defaultOptions() Options {
	return Options{
		Logger:           zerolog.Nop(),
		HandshakeTimeout: 5 * time.Second,
		ReceiveTimeout:   time.Second,
		ErrorBackoff:     100 * time.Millisecond,
		MaxHistory:       protocol.MaxHistory,
	}
}

// Session is a joined chat client.
type Session struct {
	id       string
	conn     *net.UDPConn
	server   netip.AddrPort
	nickname string
	opts     Options
	log      zerolog.Logger

	notices []protocol.Message
	history *history.Ring

	state     atomic.Int32
	closeOnce sync.Once
	closeErr  error
}

// Dial is Connect for a "host:port" address.
func Dial(ctx context.Context, addr, nickname string, opts ...Option) (*Session, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, &ConnectionError{Op: "parse address", Err: err}
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, &ConnectionError{Op: "parse address", Err: fmt.Errorf("invalid port %q", portStr)}
	}
	return Connect(ctx, host, port, nickname, opts...)
}

// Connect opens a socket to host:port and performs the handshake. Transport
// failures are returned as *ConnectionError and an unexpected reply kind as
// *ProtocolError.
//
// The socket is not connected: a server bound to all interfaces may answer
// from another local address than the one dialed, so replies are accepted
// from any address as long as they come from the server's port.
func Connect(ctx context.Context, host string, port int, nickname string, opts ...Option) (*Session, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	if port <= 0 || port > 65535 {
		return nil, &ConnectionError{Op: "parse address", Err: fmt.Errorf("invalid port %d", port)}
	}

	ips, err := net.DefaultResolver.LookupNetIP(ctx, "ip4", host)
	if err != nil {
		return nil, &ConnectionError{Op: "resolve", Err: err}
	}
	if len(ips) == 0 {
		return nil, &ConnectionError{Op: "resolve", Err: fmt.Errorf("no IPv4 address for %s", host)}
	}

	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return nil, &ConnectionError{Op: "listen", Err: err}
	}

	s := &Session{
		id:       uuid.NewString(),
		conn:     conn,
		server:   netip.AddrPortFrom(ips[0].Unmap(), uint16(port)),
		nickname: nickname,
		opts:     o,
		history:  history.New(o.MaxHistory),
	}
	s.log = o.Logger.With().Str("session", s.id).Str("server", addr).Logger()
	s.state.Store(int32(StateHandshaking))

	if err := s.handshake(ctx); err != nil {
		s.state.Store(int32(StateClosed))
		s.conn.Close()
		s.log.Warn().Err(err).Msg("handshake failed")
		return nil, err
	}

	s.state.Store(int32(StateJoined))
	s.log.Info().Str("nickname", nickname).Int("history", s.history.Len()).Msg("joined chat")
	return s, nil
}

func (s *Session) handshake(ctx context.Context) error {
	hello := protocol.NewMessage(protocol.KindHello, "", s.nickname)
	if err := s.write(hello); err != nil {
		return &ConnectionError{Op: "send hello", Err: err}
	}

	buf := make([]byte, protocol.MaxFrameSize)

	greeting, err := s.receiveHandshake(ctx, buf)
	if err != nil {
		return &ConnectionError{Op: "receive greeting", Err: err}
	}
	if greeting.Kind == protocol.KindSystem {
		s.notices = append(s.notices, greeting)
	} else {
		s.log.Debug().Str("kind", greeting.Kind.String()).Msg("first handshake reply is not a greeting")
	}

	welcome, err := s.receiveHandshake(ctx, buf)
	if err != nil {
		return &ConnectionError{Op: "receive welcome", Err: err}
	}
	if welcome.Kind != protocol.KindWelcome {
		return &ProtocolError{Expected: protocol.KindWelcome, Got: welcome.Kind}
	}

	// Replay beyond capacity is cut from the end: the oldest entries are kept.
	replay := protocol.SplitHistory(welcome.Content)
	if len(replay) > s.history.Cap() {
		s.log.Debug().Int("received", len(replay)).Int("kept", s.history.Cap()).Msg("history replay truncated")
		replay = replay[:s.history.Cap()]
	}
	for _, m := range replay {
		s.history.Append(m)
	}
	return nil
}

func (s *Session) receiveHandshake(ctx context.Context, buf []byte) (protocol.Message, error) {
	deadline := time.Now().Add(s.opts.HandshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	s.conn.SetReadDeadline(deadline)

	stop := context.AfterFunc(ctx, func() {
		s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	n, err := s.readFromServer(buf)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return protocol.Message{}, ctxErr
		}
		return protocol.Message{}, err
	}
	return protocol.Decode(buf[:n], protocol.ServerSender), nil
}

// readFromServer reads the next datagram sent from the server's port,
// dropping anything else, until the read deadline expires.
func (s *Session) readFromServer(buf []byte) (int, error) {
	for {
		n, from, err := s.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			return 0, err
		}
		if from.Port() == s.server.Port() {
			return n, nil
		}
		s.log.Debug().Str("from", from.String()).Msg("dropping datagram from unknown sender")
	}
}

func (s *Session) write(msg protocol.Message) error {
	_, err := s.conn.WriteToUDPAddrPort(protocol.Encode(msg), s.server)
	return err
}

// Send encodes and sends msg. Delivery is not guaranteed.
func (s *Session) Send(msg protocol.Message) error {
	if s.State() == StateClosed {
		return ErrClosed
	}
	if err := s.write(msg); err != nil {
		return fmt.Errorf("send %s: %w", msg.Kind, err)
	}
	return nil
}

// SendChat broadcasts text to the other peers and returns the sent message.
func (s *Session) SendChat(text string) (protocol.Message, error) {
	msg := protocol.NewMessage(protocol.KindChat, s.nickname, text)
	return msg, s.Send(msg)
}

// SendPrivate asks the server to relay text to its local operator.
func (s *Session) SendPrivate(text string) (protocol.Message, error) {
	msg := protocol.NewMessage(protocol.KindChatPrivate, s.nickname, text)
	return msg, s.Send(msg)
}

// RequestUserList asks for a USER_LIST_RESPONSE addressed to this session.
func (s *Session) RequestUserList() error {
	return s.Send(protocol.NewMessage(protocol.KindUserList, s.nickname, ""))
}

// ReceiveNext blocks for at most the receive timeout and returns the next
// message. Timeouts satisfy IsTimeout; after Close it returns ErrClosed.
func (s *Session) ReceiveNext() (protocol.Message, error) {
	if s.State() == StateClosed {
		return protocol.Message{}, ErrClosed
	}

	buf := make([]byte, protocol.ChatFrameSize)
	s.conn.SetReadDeadline(time.Now().Add(s.opts.ReceiveTimeout))
	n, err := s.readFromServer(buf)
	if err != nil {
		if s.State() == StateClosed {
			return protocol.Message{}, ErrClosed
		}
		return protocol.Message{}, err
	}
	return protocol.Decode(buf[:n], protocol.ServerSender), nil
}

// StartupNotices returns the SYSTEM greeting received during the handshake.
func (s *Session) StartupNotices() []protocol.Message {
	return append([]protocol.Message(nil), s.notices...)
}

// History returns the replayed chat history, oldest first.
func (s *Session) History() []protocol.Message {
	return s.history.Snapshot()
}

func (s *Session) ID() string { return s.id }

func (s *Session) Nickname() string { return s.nickname }

func (s *Session) ServerAddr() net.Addr { return net.UDPAddrFromAddrPort(s.server) }

func (s *Session) LocalAddr() net.Addr { return s.conn.LocalAddr() }

func (s *Session) State() State { return State(s.state.Load()) }

// Close notifies the server with a best-effort LEAVE and releases the socket
// whether or not the notification was sent. It is safe to call repeatedly.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		leave := protocol.NewMessage(protocol.KindLeave, "", s.nickname)
		if err := s.write(leave); err != nil {
			s.log.Debug().Err(err).Msg("leave notification failed")
		}
		s.state.Store(int32(StateClosed))
		s.closeErr = s.conn.Close()
		s.log.Info().Msg("session closed")
	})
	return s.closeErr
}
