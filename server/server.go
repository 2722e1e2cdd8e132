package server

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"lanchat/history"
	"lanchat/metrics"
	"lanchat/protocol"

	"github.com/rs/zerolog"
)

var (
	ErrAlreadyStarted = errors.New("server already started")
	ErrNotStarted     = errors.New("server not started")
)

// unknownSender is the default sender for unparsable datagrams from
// endpoints without a nickname.
const unknownSender = "Unknown"

type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration // receive deadline between running-flag checks
	HandshakeDelay  time.Duration // pause between the SYSTEM greeting and WELCOME
	ErrorBackoff    time.Duration
	MaxHistory      int
	PeerIdleTimeout time.Duration // 0 disables eviction; only datagrams from a peer count as activity
	ReadBufferSize  int
}

// Server relays chat datagrams between peers. All peer and history state is
// owned by the single dispatch goroutine started by Start; other goroutines
// only see the Stats snapshot it publishes.
type Server struct {
	config  *ServerConfig
	log     zerolog.Logger
	peers   *PeerTable
	history *history.Ring

	mu      sync.Mutex
	conn    *net.UDPConn
	running atomic.Bool
	done    chan struct{}

	stats     atomic.Pointer[Stats]
	received  uint64
	startedAt time.Time
}

// Stats is a point-in-time view of the server published after every
// dispatched datagram.
type Stats struct {
	Addr      string    `json:"addr"`
	Peers     int       `json:"peers"`
	Joined    int       `json:"joined"`
	Users     []string  `json:"users"`
	History   int       `json:"history"`
	Received  uint64    `json:"received"`
	StartedAt time.Time `json:"started_at"`
}

// String formats the stats for the control socket.
func (st Stats) String() string {
	return "connections=" + strconv.Itoa(st.Joined) + ",users=" + strings.Join(st.Users, ";")
}

func New(config *ServerConfig, logger zerolog.Logger) *Server {
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = time.Second
	}
	if config.ErrorBackoff <= 0 {
		config.ErrorBackoff = 100 * time.Millisecond
	}
	if config.MaxHistory <= 0 {
		config.MaxHistory = protocol.MaxHistory
	}
	if config.ReadBufferSize <= 0 {
		config.ReadBufferSize = protocol.MaxFrameSize
	}

	return &Server{
		config:  config,
		log:     logger.With().Str("component", "server").Logger(),
		peers:   NewPeerTable(),
		history: history.New(config.MaxHistory),
		done:    make(chan struct{}),
	}
}

// Start binds the UDP socket on all IPv4 interfaces and launches the
// dispatch loop. A server cannot be restarted after Stop.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return ErrAlreadyStarted
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: s.config.Port})
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", s.config.Port, err)
	}

	s.conn = conn
	s.startedAt = time.Now()
	s.running.Store(true)
	s.publishStats()

	s.log.Info().Str("addr", conn.LocalAddr().String()).Msg("lanchat server started")

	go s.serve()
	return nil
}

// Stop clears the running flag, closes the socket to unblock the pending
// receive and waits for the dispatch loop to exit.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.conn == nil {
		s.mu.Unlock()
		return ErrNotStarted
	}
	if !s.running.Swap(false) {
		s.mu.Unlock()
		<-s.done
		return nil
	}
	err := s.conn.Close()
	s.mu.Unlock()

	<-s.done
	s.log.Info().Msg("lanchat server stopped")
	return err
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() *net.UDPAddr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// Done is closed when the dispatch loop has exited.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Stats returns the latest published snapshot.
func (s *Server) Stats() Stats {
	if st := s.stats.Load(); st != nil {
		return *st
	}
	return Stats{}
}

func (s *Server) serve() {
	defer close(s.done)

	buf := make([]byte, s.config.ReadBufferSize)
	for s.running.Load() {
		s.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		n, addr, err := s.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				break
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				s.expireIdlePeers()
				continue
			}
			metrics.ReceiveErrors.Inc()
			s.log.Warn().Err(err).Msg("receive failed")
			time.Sleep(s.config.ErrorBackoff)
			continue
		}

		s.dispatch(normalizeEndpoint(addr), buf[:n])
		s.expireIdlePeers()
	}
}

// dispatch routes one datagram. Table and history updates always happen
// before any reply is sent.
func (s *Server) dispatch(from netip.AddrPort, data []byte) {
	start := time.Now()
	defer func() {
		metrics.DispatchDuration.Observe(time.Since(start).Seconds())
	}()

	s.received++
	s.peers.Touch(from)

	defaultSender, ok := s.peers.Nickname(from)
	if !ok {
		defaultSender = unknownSender
	}
	raw := string(data)
	msg, framed := protocol.Parse(raw)
	if !framed {
		metrics.DecodeFallbacks.Inc()
		s.log.Debug().Str("from", from.String()).Int("bytes", len(data)).Msg("datagram is not a frame, treating as chat")
		msg = protocol.DecodeString(raw, defaultSender)
	}
	metrics.DatagramsReceived.WithLabelValues(msg.Kind.String()).Inc()

	switch msg.Kind {
	case protocol.KindHello:
		s.handleHello(from, msg)
	case protocol.KindLeave:
		s.handleLeave(from)
	case protocol.KindUserList:
		s.handleUserList(from)
	case protocol.KindChatPrivate:
		s.handlePrivateMessage(from, msg)
	default:
		s.handleMessage(from, msg)
	}

	s.publishStats()
}

// sendPacket writes one message to one endpoint. Failures are logged and
// counted, never returned: every send is fire-and-forget.
func (s *Server) sendPacket(to netip.AddrPort, msg protocol.Message) bool {
	return s.sendRaw(to, msg.Kind, protocol.Encode(msg))
}

func (s *Server) sendRaw(to netip.AddrPort, kind protocol.Kind, data []byte) bool {
	if _, err := s.conn.WriteToUDPAddrPort(data, to); err != nil {
		metrics.SendErrors.Inc()
		s.log.Warn().Err(err).Str("to", to.String()).Str("kind", kind.String()).Msg("send failed")
		return false
	}
	metrics.DatagramsSent.WithLabelValues(kind.String()).Inc()
	return true
}

// broadcast sends msg to every joined peer except exclude and returns the
// number of successful sends. A failed send does not stop the fan-out.
func (s *Server) broadcast(msg protocol.Message, exclude netip.AddrPort) int {
	data := protocol.Encode(msg)
	delivered := 0
	for _, to := range s.peers.BroadcastTargets(exclude) {
		if s.sendRaw(to, msg.Kind, data) {
			delivered++
		}
	}
	return delivered
}

func (s *Server) expireIdlePeers() {
	if s.config.PeerIdleTimeout <= 0 {
		return
	}
	expired := s.peers.Expire(s.config.PeerIdleTimeout)
	if len(expired) == 0 {
		return
	}

	for _, p := range expired {
		metrics.PeersExpired.Inc()
		s.log.Info().Str("peer", p.Endpoint.String()).Str("nickname", p.Nickname).Msg("peer expired")
		if !p.Joined {
			continue
		}
		msg := protocol.NewMessage(protocol.KindLeave, protocol.ServerSender,
			fmt.Sprintf("%s (%s) timed out.", p.Nickname, p.Endpoint.Addr()))
		s.history.Append(msg)
		s.broadcast(msg, p.Endpoint)
	}
	s.publishStats()
}

func (s *Server) publishStats() {
	st := &Stats{
		Peers:     s.peers.Len(),
		History:   s.history.Len(),
		Received:  s.received,
		StartedAt: s.startedAt,
		Users:     []string{},
	}
	if s.conn != nil {
		st.Addr = s.conn.LocalAddr().String()
	}
	for _, p := range s.peers.ListAll() {
		if p.Joined {
			st.Joined++
			st.Users = append(st.Users, p.Nickname)
		}
	}
	s.stats.Store(st)

	metrics.PeersJoined.Set(float64(st.Joined))
	metrics.HistorySize.Set(float64(st.History))
}

// normalizeEndpoint strips IPv4-in-IPv6 mapping so one client always maps to
// one table key.
func normalizeEndpoint(ap netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}
