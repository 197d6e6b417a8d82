package peers

// Peer is a seed entry: the address where a cluster member can be reached,
// plus an optional friendly name. Addresses are opaque identifiers resolved
// through the Transport; peers never reference each other directly.
type Peer struct {
	NetAddr string
	Moniker string
}

// NewPeer ...
func NewPeer(netAddr, moniker string) *Peer {
	return &Peer{
		NetAddr: netAddr,
		Moniker: moniker,
	}
}

// ExcludePeer returns the list without the peer at the given address, along
// with the index it occupied (-1 when absent).
func ExcludePeer(peers []*Peer, addr string) (int, []*Peer) {
	index := -1
	otherPeers := make([]*Peer, 0, len(peers))
	for i, p := range peers {
		if p.NetAddr != addr {
			otherPeers = append(otherPeers, p)
		} else {
			index = i
		}
	}
	return index, otherPeers
}
