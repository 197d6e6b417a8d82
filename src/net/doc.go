/*
Package net implements the transports that gossamer nodes use to exchange
protocol messages: probes and acks, broadcast-tree pushes and pulls, and
anti-entropy hash and data exchanges.

The protocol is agnostic to delivery guarantees; sends are fire-and-forget
from the node's point of view and reliability comes from retry-on-timeout and
anti-entropy, not from the transport.
*/
package net
