package net

// Transport provides an interface for network transports to allow a node to
// communicate with other nodes.
type Transport interface {

	// Starts the transport listening
	Listen()

	// Consumer returns a channel that can be used to
	// consume and respond to RPC requests.
	Consumer() <-chan RPC

	// LocalAddr is used to return our local address
	LocalAddr() string

	// AdvertiseAddr is used to return our advertise address where other peers
	// can reach us
	AdvertiseAddr() string

	// The typed methods below send the corresponding request to the target
	// node and block until its response arrives or the transport times out.

	Ping(target string, args *PingRequest, resp *PingResponse) error

	PingReq(target string, args *IndirectPingRequest, resp *IndirectPingResponse) error

	EagerPush(target string, args *EagerPushRequest, resp *EagerPushResponse) error

	LazyPush(target string, args *LazyPushRequest, resp *LazyPushResponse) error

	Pull(target string, args *PullRequest, resp *PullResponse) error

	ReconcileHash(target string, args *ReconcileHashRequest, resp *ReconcileHashResponse) error

	ReconcileData(target string, args *ReconcileDataRequest, resp *ReconcileDataResponse) error

	// Close permanently closes a transport, stopping
	// any associated goroutines and freeing other resources.
	Close() error
}
