package net

import (
	"net"
	"time"
)

// StreamLayer is the low level connection abstraction underneath a
// NetworkTransport. It accepts inbound gossip connections and dials peers.
type StreamLayer interface {
	net.Listener

	// Dial opens a new outgoing connection to a peer
	Dial(address string, timeout time.Duration) (net.Conn, error)

	// AdvertiseAddr returns the address other members should gossip with,
	// which may differ from the bound address
	AdvertiseAddr() string
}
