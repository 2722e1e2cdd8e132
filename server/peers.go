package server

import (
	"net/netip"
	"slices"
	"time"
)

// Peer is a client endpoint known to the server.
type Peer struct {
	Endpoint netip.AddrPort
	Nickname string
	Joined   bool // set by HELLO; endpoints that only chatted are not joined
	LastSeen time.Time
}

// PeerTable maps endpoints to nicknames and tracks which endpoints have
// joined. Iteration follows insertion order.
//
// PeerTable is not safe for concurrent use; the server's dispatch goroutine
// is its only user.
type PeerTable struct {
	peers map[netip.AddrPort]*Peer
	order []netip.AddrPort
	now   func() time.Time
}

func NewPeerTable() *PeerTable {
	return &PeerTable{
		peers: make(map[netip.AddrPort]*Peer),
		now:   time.Now,
	}
}

// DefaultNickname is the name given to endpoints that did not pick one.
func DefaultNickname(ep netip.AddrPort) string {
	return ep.String()
}

// Join registers ep as joined under nickname, or under the default nickname
// if nickname is empty. A repeated join overwrites the nickname.
func (t *PeerTable) Join(ep netip.AddrPort, nickname string) string {
	if nickname == "" {
		nickname = DefaultNickname(ep)
	}
	p := t.getOrCreate(ep)
	p.Nickname = nickname
	p.Joined = true
	return nickname
}

// Leave removes ep and returns its last nickname, or the default nickname if
// ep was never recorded.
func (t *PeerTable) Leave(ep netip.AddrPort) string {
	p, ok := t.peers[ep]
	if !ok {
		return DefaultNickname(ep)
	}
	t.remove(ep)
	return p.Nickname
}

// Resolve returns the nickname for ep, recording the default nickname if ep
// is unknown. Resolving does not join ep.
func (t *PeerTable) Resolve(ep netip.AddrPort) string {
	p, ok := t.peers[ep]
	if !ok {
		p = t.getOrCreate(ep)
		p.Nickname = DefaultNickname(ep)
	}
	return p.Nickname
}

// Nickname looks ep up without recording anything.
func (t *PeerTable) Nickname(ep netip.AddrPort) (string, bool) {
	p, ok := t.peers[ep]
	if !ok {
		return "", false
	}
	return p.Nickname, true
}

// Touch records activity from a known endpoint.
func (t *PeerTable) Touch(ep netip.AddrPort) {
	if p, ok := t.peers[ep]; ok {
		p.LastSeen = t.now()
	}
}

// ListAll returns a copy of every recorded peer.
func (t *PeerTable) ListAll() []Peer {
	out := make([]Peer, 0, len(t.order))
	for _, ep := range t.order {
		out = append(out, *t.peers[ep])
	}
	return out
}

// BroadcastTargets returns every joined endpoint except exclude.
func (t *PeerTable) BroadcastTargets(exclude netip.AddrPort) []netip.AddrPort {
	out := make([]netip.AddrPort, 0, len(t.order))
	for _, ep := range t.order {
		if ep == exclude || !t.peers[ep].Joined {
			continue
		}
		out = append(out, ep)
	}
	return out
}

// FirstLoopback returns the first joined endpoint with a loopback address.
func (t *PeerTable) FirstLoopback() (netip.AddrPort, bool) {
	for _, ep := range t.order {
		if t.peers[ep].Joined && ep.Addr().IsLoopback() {
			return ep, true
		}
	}
	return netip.AddrPort{}, false
}

// Expire removes peers silent for longer than idle and returns them.
func (t *PeerTable) Expire(idle time.Duration) []Peer {
	if idle <= 0 {
		return nil
	}
	cutoff := t.now().Add(-idle)

	var expired []Peer
	for _, ep := range slices.Clone(t.order) {
		p := t.peers[ep]
		if p.LastSeen.Before(cutoff) {
			expired = append(expired, *p)
			t.remove(ep)
		}
	}
	return expired
}

// Len returns the number of recorded peers.
func (t *PeerTable) Len() int { return len(t.order) }

// JoinedCount returns the number of joined peers.
func (t *PeerTable) JoinedCount() int {
	n := 0
	for _, p := range t.peers {
		if p.Joined {
			n++
		}
	}
	return n
}

func (t *PeerTable) getOrCreate(ep netip.AddrPort) *Peer {
	p, ok := t.peers[ep]
	if !ok {
		p = &Peer{Endpoint: ep, LastSeen: t.now()}
		t.peers[ep] = p
		t.order = append(t.order, ep)
	}
	return p
}

func (t *PeerTable) remove(ep netip.AddrPort) {
	delete(t.peers, ep)
	if i := slices.Index(t.order, ep); i >= 0 {
		t.order = slices.Delete(t.order, i, i+1)
	}
}
