package node

import (
	"math/rand"
)

//PeerSelector defines an interface for Peer Selectors
type PeerSelector interface {
	//UpdatePeers replaces the set of selectable peer addresses.
	UpdatePeers(addrs []string)

	//Next returns the address of the next peer to probe, or "" when there is
	//nobody to probe.
	Next() string
}

//+++++++++++++++++++++++++++++++++++++++
//SHUFFLED ROUND-ROBIN

//RoundRobinPeerSelector walks a shuffled ring of peers and reshuffles on
//every full pass. Every member gets probed exactly once per cycle, which
//bounds first-detection time, while the shuffle keeps probe order
//unpredictable across nodes.
type RoundRobinPeerSelector struct {
	localAddr string
	ring      []string
	next      int
}

//NewRoundRobinPeerSelector is a factory method that returns a new instance
//of RoundRobinPeerSelector
func NewRoundRobinPeerSelector(localAddr string) *RoundRobinPeerSelector {
	return &RoundRobinPeerSelector{
		localAddr: localAddr,
	}
}

//UpdatePeers implements the PeerSelector interface. The ring is rebuilt and
//reshuffled; the walk position is preserved modulo the new length so churn
//does not starve anyone for long.
func (ps *RoundRobinPeerSelector) UpdatePeers(addrs []string) {
	ring := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a != ps.localAddr {
			ring = append(ring, a)
		}
	}

	rand.Shuffle(len(ring), func(i, j int) {
		ring[i], ring[j] = ring[j], ring[i]
	})

	ps.ring = ring
	if len(ring) > 0 {
		ps.next = ps.next % len(ring)
	} else {
		ps.next = 0
	}
}

//Next implements the PeerSelector interface.
func (ps *RoundRobinPeerSelector) Next() string {
	if len(ps.ring) == 0 {
		return ""
	}

	if ps.next >= len(ps.ring) {
		rand.Shuffle(len(ps.ring), func(i, j int) {
			ps.ring[i], ps.ring[j] = ps.ring[j], ps.ring[i]
		})
		ps.next = 0
	}

	peer := ps.ring[ps.next]
	ps.next++

	return peer
}
