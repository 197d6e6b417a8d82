package node

import (
	"fmt"
	"testing"
	"time"

	"github.com/gossipnetworks/gossamer/src/common"
	"github.com/gossipnetworks/gossamer/src/membership"
	"github.com/gossipnetworks/gossamer/src/net"
	"github.com/gossipnetworks/gossamer/src/peers"
)

func testAddrs(n int) []string {
	addrs := make([]string, n)
	for i := range addrs {
		addrs[i] = fmt.Sprintf("127.0.0.1:%d", 9000+i)
	}
	return addrs
}

// createTestNodes builds n fully-meshed nodes over in-memory transports. Each
// node is seeded with every other address.
func createTestNodes(t *testing.T, n int, confFactory func() *Config) ([]*Node, []*net.InmemTransport) {
	addrs := testAddrs(n)

	transports := make([]*net.InmemTransport, n)
	for i, addr := range addrs {
		_, transports[i] = net.NewInmemTransport(addr)
	}
	for i := range transports {
		for j := range transports {
			if i != j {
				transports[i].Connect(addrs[j], transports[j])
			}
		}
	}

	seeds := make([]*peers.Peer, n)
	for i, addr := range addrs {
		seeds[i] = peers.NewPeer(addr, fmt.Sprintf("node%d", i))
	}

	nodes := make([]*Node, n)
	for i := range nodes {
		nodes[i] = NewNode(confFactory(), seeds, nil, transports[i])
		if err := nodes[i].Init(); err != nil {
			t.Fatalf("err: %v", err)
		}
	}

	return nodes, transports
}

func shutdownNodes(nodes []*Node) {
	for _, n := range nodes {
		n.Shutdown()
	}
}

// waitFor polls cond until it holds or the timeout lapses.
func waitFor(t *testing.T, timeout time.Duration, msg string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("timeout waiting for %s", msg)
}

func sendRPC(t *testing.T, n *Node, command interface{}) net.RPCResponse {
	t.Helper()

	respCh := make(chan net.RPCResponse, 1)
	n.processRPC(net.RPC{Command: command, RespChan: respCh})

	select {
	case resp := <-respCh:
		return resp
	case <-time.After(time.Second):
		t.Fatal("no RPC response")
		return net.RPCResponse{}
	}
}

func TestProcessPing(t *testing.T) {
	conf := TestConfig(t)
	_, trans := net.NewInmemTransport("127.0.0.1:9000")

	n := NewNode(conf, nil, nil, trans)
	defer n.Shutdown()

	resp := sendRPC(t, n, &net.PingRequest{
		From:        "127.0.0.1:9001",
		Incarnation: 3,
	})
	if resp.Error != nil {
		t.Fatalf("err: %v", resp.Error)
	}

	ack, ok := resp.Response.(*net.PingResponse)
	if !ok {
		t.Fatalf("expected PingResponse, got %T", resp.Response)
	}
	if ack.From != "127.0.0.1:9000" {
		t.Fatalf("ack.From should be %s, not %s", "127.0.0.1:9000", ack.From)
	}
	if ack.Incarnation != 1 {
		t.Fatalf("ack.Incarnation should be 1, not %d", ack.Incarnation)
	}

	// The sender should have been learned as an Alive member.
	m, ok := n.GetMember("127.0.0.1:9001")
	if !ok {
		t.Fatal("sender should have joined the table")
	}
	if m.State != membership.Alive || m.Incarnation != 3 {
		t.Fatalf("sender should be Alive at incarnation 3, got %s/%d", m.State, m.Incarnation)
	}
}

func TestProcessPingPiggyback(t *testing.T) {
	conf := TestConfig(t)
	_, trans := net.NewInmemTransport("127.0.0.1:9000")

	n := NewNode(conf, nil, nil, trans)
	defer n.Shutdown()

	resp := sendRPC(t, n, &net.PingRequest{
		From:        "127.0.0.1:9001",
		Incarnation: 1,
		Piggyback: []membership.Update{
			{Addr: "127.0.0.1:9002", State: membership.Suspect, Incarnation: 4},
		},
	})
	if resp.Error != nil {
		t.Fatalf("err: %v", resp.Error)
	}

	m, ok := n.GetMember("127.0.0.1:9002")
	if !ok {
		t.Fatal("piggybacked member should have been merged")
	}
	if m.State != membership.Suspect || m.Incarnation != 4 {
		t.Fatalf("member should be Suspect at incarnation 4, got %s/%d", m.State, m.Incarnation)
	}

	// The merged update should be re-gossiped on the ack.
	ack := resp.Response.(*net.PingResponse)
	found := false
	for _, u := range ack.Piggyback {
		if u.Addr == "127.0.0.1:9002" && u.State == membership.Suspect && u.Incarnation == 4 {
			found = true
		}
	}
	if !found {
		t.Fatalf("ack should piggyback the merged update, got %v", ack.Piggyback)
	}
}

func TestSelfRefutation(t *testing.T) {
	conf := TestConfig(t)
	_, trans := net.NewInmemTransport("127.0.0.1:9000")

	n := NewNode(conf, nil, nil, trans)
	defer n.Shutdown()

	// Somebody claims we are Suspect at our current incarnation.
	resp := sendRPC(t, n, &net.PingRequest{
		From:        "127.0.0.1:9001",
		Incarnation: 1,
		Piggyback: []membership.Update{
			{Addr: "127.0.0.1:9000", State: membership.Suspect, Incarnation: 1},
		},
	})
	if resp.Error != nil {
		t.Fatalf("err: %v", resp.Error)
	}

	self, _ := n.GetMember("127.0.0.1:9000")
	if self.State != membership.Alive {
		t.Fatalf("self should stay Alive, got %s", self.State)
	}
	if self.Incarnation != 2 {
		t.Fatalf("refutation should bump incarnation to 2, got %d", self.Incarnation)
	}

	// The refuting Alive update should ride back on the ack.
	ack := resp.Response.(*net.PingResponse)
	found := false
	for _, u := range ack.Piggyback {
		if u.Addr == "127.0.0.1:9000" && u.State == membership.Alive && u.Incarnation == 2 {
			found = true
		}
	}
	if !found {
		t.Fatalf("ack should piggyback the refutation, got %v", ack.Piggyback)
	}
}

func TestStaleClaimNotRefuted(t *testing.T) {
	conf := TestConfig(t)
	_, trans := net.NewInmemTransport("127.0.0.1:9000")

	n := NewNode(conf, nil, nil, trans)
	defer n.Shutdown()

	// Bump self to incarnation 2 first.
	sendRPC(t, n, &net.PingRequest{
		From:        "127.0.0.1:9001",
		Incarnation: 1,
		Piggyback: []membership.Update{
			{Addr: "127.0.0.1:9000", State: membership.Suspect, Incarnation: 1},
		},
	})

	// A stale Suspect at incarnation 1 is already superseded.
	sendRPC(t, n, &net.PingRequest{
		From:        "127.0.0.1:9001",
		Incarnation: 1,
		Piggyback: []membership.Update{
			{Addr: "127.0.0.1:9000", State: membership.Suspect, Incarnation: 1},
		},
	})

	self, _ := n.GetMember("127.0.0.1:9000")
	if self.Incarnation != 2 {
		t.Fatalf("stale claim should not bump incarnation, got %d", self.Incarnation)
	}
}

func TestProbeMarksSuspectThenDead(t *testing.T) {
	conf := TestConfig(t)
	clock := common.NewFakeClock(time.Now())
	conf.Clock = clock

	// The transport has no route to the seed, so probes fail immediately.
	_, trans := net.NewInmemTransport("127.0.0.1:9000")

	seeds := []*peers.Peer{peers.NewPeer("127.0.0.1:9001", "unreachable")}

	n := NewNode(conf, seeds, nil, trans)
	defer n.Shutdown()
	if err := n.Init(); err != nil {
		t.Fatalf("err: %v", err)
	}

	n.probe()

	m, ok := n.GetMember("127.0.0.1:9001")
	if !ok {
		t.Fatal("seed should be in the table")
	}
	if m.State != membership.Suspect {
		t.Fatalf("unreachable member should be Suspect, got %s", m.State)
	}

	// Before the suspicion period lapses nothing changes.
	clock.Advance(conf.SuspicionTimeout / 2)
	m, _ = n.GetMember("127.0.0.1:9001")
	if m.State != membership.Suspect {
		t.Fatalf("member should still be Suspect, got %s", m.State)
	}

	clock.Advance(conf.SuspicionTimeout)
	m, _ = n.GetMember("127.0.0.1:9001")
	if m.State != membership.Dead {
		t.Fatalf("member should be Dead after the suspicion period, got %s", m.State)
	}
}

func TestRefutationRevertsSuspicion(t *testing.T) {
	conf := TestConfig(t)
	clock := common.NewFakeClock(time.Now())
	conf.Clock = clock

	_, trans := net.NewInmemTransport("127.0.0.1:9000")

	seeds := []*peers.Peer{peers.NewPeer("127.0.0.1:9001", "flaky")}

	n := NewNode(conf, seeds, nil, trans)
	defer n.Shutdown()
	if err := n.Init(); err != nil {
		t.Fatalf("err: %v", err)
	}

	n.probe()

	m, _ := n.GetMember("127.0.0.1:9001")
	if m.State != membership.Suspect {
		t.Fatalf("member should be Suspect, got %s", m.State)
	}

	// The suspected member refutes with a higher incarnation before the
	// suspicion period lapses.
	sendRPC(t, n, &net.PingRequest{
		From:        "127.0.0.1:9001",
		Incarnation: 2,
	})

	m, _ = n.GetMember("127.0.0.1:9001")
	if m.State != membership.Alive || m.Incarnation != 2 {
		t.Fatalf("refutation should revert to Alive at incarnation 2, got %s/%d", m.State, m.Incarnation)
	}

	// The lapsed timer must be a no-op: the incarnation it was pinned to is
	// gone.
	clock.Advance(2 * conf.SuspicionTimeout)

	m, _ = n.GetMember("127.0.0.1:9001")
	if m.State != membership.Alive {
		t.Fatalf("member should stay Alive after the stale timer fired, got %s", m.State)
	}
}

func TestTombstoneExpiry(t *testing.T) {
	conf := TestConfig(t)
	clock := common.NewFakeClock(time.Now())
	conf.Clock = clock

	_, trans := net.NewInmemTransport("127.0.0.1:9000")

	seeds := []*peers.Peer{peers.NewPeer("127.0.0.1:9001", "doomed")}

	n := NewNode(conf, seeds, nil, trans)
	defer n.Shutdown()
	if err := n.Init(); err != nil {
		t.Fatalf("err: %v", err)
	}

	n.probe()
	clock.Advance(conf.SuspicionTimeout)

	if m, _ := n.GetMember("127.0.0.1:9001"); m.State != membership.Dead {
		t.Fatalf("member should be Dead, got %s", m.State)
	}

	clock.Advance(conf.TombstoneTimeout)
	n.sweep()

	if _, ok := n.GetMember("127.0.0.1:9001"); ok {
		t.Fatal("tombstone should have been purged")
	}
}

func TestReconcileHashRequest(t *testing.T) {
	conf := TestConfig(t)
	_, trans := net.NewInmemTransport("127.0.0.1:9000")

	n := NewNode(conf, nil, nil, trans)
	defer n.Shutdown()

	resp := sendRPC(t, n, &net.ReconcileHashRequest{
		From:    "127.0.0.1:9001",
		Level:   0,
		Indices: []int{0},
	})
	if resp.Error != nil {
		t.Fatalf("err: %v", resp.Error)
	}

	hashes := resp.Response.(*net.ReconcileHashResponse).Hashes
	if len(hashes) != 1 {
		t.Fatalf("expected 1 root hash, got %d", len(hashes))
	}

	local := membership.BuildMerkleTree(n.Snapshot())
	if string(hashes[0]) != string(local.Root()) {
		t.Fatal("returned root should match a locally built tree")
	}

	// Out-of-range coordinates are a protocol violation.
	resp = sendRPC(t, n, &net.ReconcileHashRequest{
		From:    "127.0.0.1:9001",
		Level:   membership.MerkleDepth + 1,
		Indices: []int{0},
	})
	if resp.Error == nil {
		t.Fatal("out-of-range level should be rejected")
	}
}

func TestReconcileConvergence(t *testing.T) {
	// Two nodes that know different thirds of the cluster converge through a
	// single reconcile round.
	nodes, _ := createTestNodes(t, 2, func() *Config { return TestConfig(t) })
	defer shutdownNodes(nodes)

	// Background work only: RPCs get processed, nobody probes.
	for _, n := range nodes {
		n.RunAsync(false)
	}

	sendRPC(t, nodes[0], &net.PingRequest{
		From:        "127.0.0.1:9100",
		Incarnation: 5,
	})
	sendRPC(t, nodes[1], &net.PingRequest{
		From:        "127.0.0.1:9200",
		Incarnation: 7,
	})

	nodes[0].reconcile()

	for _, n := range nodes {
		if m, ok := n.GetMember("127.0.0.1:9100"); !ok || m.Incarnation != 5 {
			t.Fatalf("%s should know 127.0.0.1:9100 at incarnation 5", n.Addr())
		}
		if m, ok := n.GetMember("127.0.0.1:9200"); !ok || m.Incarnation != 7 {
			t.Fatalf("%s should know 127.0.0.1:9200 at incarnation 7", n.Addr())
		}
	}

	rootA := membership.BuildMerkleTree(nodes[0].Snapshot()).Root()
	rootB := membership.BuildMerkleTree(nodes[1].Snapshot()).Root()
	if string(rootA) != string(rootB) {
		t.Fatal("roots should match after reconciliation")
	}
}

func TestBroadcastDelivery(t *testing.T) {
	nodes, _ := createTestNodes(t, 4, func() *Config { return TestConfig(t) })
	defer shutdownNodes(nodes)

	for _, n := range nodes {
		n.RunAsync(false)
	}

	payload := []byte("the payload")

	msgID, err := nodes[0].Broadcast(payload)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	// Broadcast forwards on a node goroutine; the others should deliver the
	// payload exactly once each.
	for _, n := range nodes[1:] {
		select {
		case m := <-n.Deliveries():
			if m.ID != msgID {
				t.Fatalf("%s delivered wrong message id", n.Addr())
			}
			if string(m.Payload) != string(payload) {
				t.Fatalf("%s delivered wrong payload", n.Addr())
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("%s did not deliver the broadcast", n.Addr())
		}
	}

	// No duplicates.
	for _, n := range nodes[1:] {
		select {
		case m := <-n.Deliveries():
			t.Fatalf("%s delivered a duplicate: %s", n.Addr(), m.ID)
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func TestGossipConvergence(t *testing.T) {
	nodes, _ := createTestNodes(t, 5, func() *Config { return TestConfig(t) })
	defer shutdownNodes(nodes)

	for _, n := range nodes {
		n.RunAsync(true)
	}

	waitFor(t, 5*time.Second, "all nodes to see 5 alive members", func() bool {
		for _, n := range nodes {
			alive := 0
			for _, m := range n.Snapshot() {
				if m.State == membership.Alive {
					alive++
				}
			}
			if alive != 5 {
				return false
			}
		}
		return true
	})
}

func TestFailureDetectionEndToEnd(t *testing.T) {
	nodes, transports := createTestNodes(t, 5, func() *Config { return TestConfig(t) })
	defer shutdownNodes(nodes)

	for _, n := range nodes {
		n.RunAsync(true)
	}

	waitFor(t, 5*time.Second, "initial convergence", func() bool {
		for _, n := range nodes {
			if len(n.Snapshot()) != 5 {
				return false
			}
		}
		return true
	})

	// Cut node 4 off from the rest of the cluster.
	victim := nodes[4].Addr()
	transports[4].DisconnectAll()
	for i := 0; i < 4; i++ {
		transports[i].Disconnect(victim)
	}

	waitFor(t, 10*time.Second, "victim to be declared Dead everywhere", func() bool {
		for _, n := range nodes[:4] {
			m, ok := n.GetMember(victim)
			if !ok || m.State != membership.Dead {
				return false
			}
		}
		return true
	})

	// Restore: the victim restarts on a fresh transport with the same seed
	// list. The survivors hold Dead at the victim's old incarnation, so the
	// restarted node learns of its own death through reconciliation, refutes
	// it with a higher incarnation, and the refutation gossips back out.
	nodes[4].Shutdown()

	_, reborn := net.NewInmemTransport(victim)
	for i := 0; i < 4; i++ {
		reborn.Connect(nodes[i].Addr(), transports[i])
		transports[i].Connect(victim, reborn)
	}

	addrs := testAddrs(5)
	seeds := make([]*peers.Peer, len(addrs))
	for i, addr := range addrs {
		seeds[i] = peers.NewPeer(addr, fmt.Sprintf("node%d", i))
	}

	restarted := NewNode(TestConfig(t), seeds, nil, reborn)
	if err := restarted.Init(); err != nil {
		t.Fatalf("err: %v", err)
	}
	defer restarted.Shutdown()

	restarted.RunAsync(true)

	waitFor(t, 10*time.Second, "victim to be Alive everywhere again", func() bool {
		for _, n := range nodes[:4] {
			m, ok := n.GetMember(victim)
			if !ok || m.State != membership.Alive {
				return false
			}
		}
		return true
	})

	// The comeback required a fresh incarnation.
	if self, ok := restarted.GetMember(victim); !ok || self.Incarnation < 2 {
		t.Fatalf("restarted node should have refuted its death, incarnation is %d", self.Incarnation)
	}
}

func TestLeave(t *testing.T) {
	nodes, _ := createTestNodes(t, 3, func() *Config { return TestConfig(t) })
	defer shutdownNodes(nodes)

	for _, n := range nodes {
		n.RunAsync(true)
	}

	waitFor(t, 5*time.Second, "initial convergence", func() bool {
		for _, n := range nodes {
			if len(n.Snapshot()) != 3 {
				return false
			}
		}
		return true
	})

	leaver := nodes[2].Addr()
	if err := nodes[2].Leave(); err != nil {
		t.Fatalf("err: %v", err)
	}

	// The departure is announced directly, no suspicion cycle needed.
	waitFor(t, 5*time.Second, "leaver to be Dead on the remaining nodes", func() bool {
		for _, n := range nodes[:2] {
			m, ok := n.GetMember(leaver)
			if !ok || m.State != membership.Dead {
				return false
			}
		}
		return true
	})
}

func TestSubscribe(t *testing.T) {
	conf := TestConfig(t)
	clock := common.NewFakeClock(time.Now())
	conf.Clock = clock

	_, trans := net.NewInmemTransport("127.0.0.1:9000")

	n := NewNode(conf, nil, nil, trans)
	defer n.Shutdown()

	events := make(chan MemberEvent, 16)
	n.Subscribe(events)

	sendRPC(t, n, &net.PingRequest{
		From:        "127.0.0.1:9001",
		Incarnation: 1,
	})

	select {
	case e := <-events:
		if e.Type != EventJoined || e.Member.Addr != "127.0.0.1:9001" {
			t.Fatalf("expected joined event for the sender, got %s %s", e.Type, e.Member.Addr)
		}
	default:
		t.Fatal("expected a joined event")
	}
}

func TestUnknownCommandDropped(t *testing.T) {
	conf := TestConfig(t)
	_, trans := net.NewInmemTransport("127.0.0.1:9000")

	n := NewNode(conf, nil, nil, trans)
	defer n.Shutdown()

	resp := sendRPC(t, n, "not a command")
	if resp.Error == nil {
		t.Fatal("unknown command should be rejected")
	}
}

// blockingPingTransport never answers a direct ping until released; every
// other method falls through to the in-memory transport.
type blockingPingTransport struct {
	*net.InmemTransport
	release chan struct{}
}

func (t *blockingPingTransport) Ping(target string, args *net.PingRequest, resp *net.PingResponse) error {
	<-t.release
	return fmt.Errorf("released")
}

func TestProbeTimeoutBoundsDirectProbe(t *testing.T) {
	conf := TestConfig(t)
	clock := common.NewFakeClock(time.Now())
	conf.Clock = clock

	_, inner := net.NewInmemTransport("127.0.0.1:9000")
	trans := &blockingPingTransport{
		InmemTransport: inner,
		release:        make(chan struct{}),
	}
	defer close(trans.release)

	seeds := []*peers.Peer{peers.NewPeer("127.0.0.1:9001", "node1")}

	n := NewNode(conf, seeds, nil, trans)
	if err := n.Init(); err != nil {
		t.Fatalf("err: %v", err)
	}
	defer n.Shutdown()

	done := make(chan struct{})
	go func() {
		n.probe()
		close(done)
	}()

	// The transport never answers, so only the ProbeTimeout window can end
	// the probe round.
	waitFor(t, time.Second, "probe to give up on the blocked ping", func() bool {
		clock.Advance(conf.ProbeTimeout)
		select {
		case <-done:
			return true
		default:
			return false
		}
	})

	m, ok := n.GetMember("127.0.0.1:9001")
	if !ok {
		t.Fatal("target should be in the table")
	}
	if m.State != membership.Suspect {
		t.Fatalf("target should be Suspect after the probe window, got %s", m.State)
	}
}
