package node

import (
	"bytes"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gossipnetworks/gossamer/src/broadcast"
	"github.com/gossipnetworks/gossamer/src/common"
	"github.com/gossipnetworks/gossamer/src/guard"
	"github.com/gossipnetworks/gossamer/src/membership"
	"github.com/gossipnetworks/gossamer/src/net"
	"github.com/gossipnetworks/gossamer/src/peers"
	"github.com/sirupsen/logrus"
)

//Node defines a gossamer node
type Node struct {
	state

	conf   *Config
	logger *logrus.Entry

	localAddr string

	core     *Core
	coreLock sync.Mutex

	trans net.Transport
	netCh <-chan net.RPC

	limiter *guard.RateLimiter

	store membership.Store

	clock common.Clock

	probeTimer     *ControlTimer
	reconcileTimer *ControlTimer

	sigintCh   chan os.Signal
	shutdownCh chan struct{}

	deliverCh chan Message

	subLock     sync.Mutex
	subscribers []chan MemberEvent

	start         time.Time
	probes        int32
	probeFailures int32
	reconciles    int32
}

//NewNode is a factory method that returns a Node instance
func NewNode(conf *Config,
	seeds []*peers.Peer,
	store membership.Store,
	trans net.Transport,
) *Node {
	//Prepare sigintCh to relay SIGINT system calls
	sigintCh := make(chan os.Signal, 1)
	signal.Notify(sigintCh, os.Interrupt, syscall.SIGINT)

	localAddr := trans.AdvertiseAddr()
	logger := conf.Logger.WithField("node", localAddr)

	node := Node{
		conf:           conf,
		logger:         logger,
		localAddr:      localAddr,
		core:           NewCore(localAddr, conf, logger),
		trans:          trans,
		netCh:          trans.Consumer(),
		limiter:        guard.NewRateLimiter(conf.MaxMsgsPerSec, conf.MsgBurst),
		store:          store,
		clock:          conf.Clock,
		probeTimer:     NewClockControlTimer(conf.Clock),
		reconcileTimer: NewClockControlTimer(conf.Clock),
		sigintCh:       sigintCh,
		shutdownCh:     make(chan struct{}),
		deliverCh:      make(chan Message, 64),
		start:          conf.Clock.Now(),
	}

	node.seed(seeds)

	return &node
}

//seed introduces the initial peers: the configured seed list plus whatever a
//previous run persisted in the store.
func (n *Node) seed(seeds []*peers.Peer) {
	addrs := make([]string, 0, len(seeds))
	for _, p := range seeds {
		addrs = append(addrs, p.NetAddr)
	}

	if n.conf.Bootstrap && n.store != nil {
		saved, err := n.store.Members()
		if err != nil {
			n.logger.WithError(err).Error("Loading members from store")
		}
		for _, m := range saved {
			if m.State != membership.Dead {
				addrs = append(addrs, m.Addr)
			}
		}
	}

	n.coreLock.Lock()
	events := n.core.AddSeeds(addrs)
	n.coreLock.Unlock()

	n.handleEvents(events)
}

//Init initialises the node
func (n *Node) Init() error {
	n.logger.WithField("peers", n.core.table.Len()-1).Debug("Init")
	n.setState(Gossiping)
	return nil
}

//RunAsync calls Run as a separate thread
func (n *Node) RunAsync(gossip bool) {
	n.logger.WithField("gossip", gossip).Debug("runasync")

	go n.Run(gossip)
}

//Run invokes the main loop of the node
func (n *Node) Run(gossip bool) {
	//The timers allow the background routines to pace the probe and
	//reconciliation cycles; they are reset after every processed tick.
	go n.probeTimer.Run(n.conf.ProbeInterval)
	go n.reconcileTimer.Run(n.conf.ReconcileInterval)

	//Execute some background work regardless of the state of the node.
	go n.doBackgroundWork()

	//Execute Node State Machine
	for {
		//Run different routines depending on node state
		state := n.getState()

		n.logger.WithField("state", state.String()).Debug("Run loop")

		switch state {
		case Gossiping:
			n.gossiping(gossip)
		case Suspended:
			n.suspended()
		case Leaving, Shutdown:
			return
		}
	}
}

func (n *Node) doBackgroundWork() {
	for {
		select {
		case rpc := <-n.netCh:
			n.goFunc(func() {
				n.processRPC(rpc)
			})
		case <-n.shutdownCh:
			return
		case <-n.sigintCh:
			n.logger.Debug("Reacting to SIGINT - LEAVE")
			n.Leave()
			os.Exit(0)
		}
	}
}

// gossiping paces the failure detector and the reconciler while the node is
// in the Gossiping state.
func (n *Node) gossiping(gossip bool) {
	n.logger.Debug("GOSSIPING")

	for {
		select {
		case <-n.probeTimer.tickCh:
			if gossip {
				n.goFunc(n.probe)
			}
			n.probeTimer.resetCh <- n.conf.ProbeInterval
		case <-n.reconcileTimer.tickCh:
			n.goFunc(n.reconcile)
			n.reconcileTimer.resetCh <- n.conf.ReconcileInterval
		case <-n.shutdownCh:
			return
		}
	}
}

func (n *Node) suspended() {
	select {
	case <-n.clock.After(n.conf.ProbeInterval):
	case <-n.shutdownCh:
	}
}

/*******************************************************************************
Failure detector
*******************************************************************************/

//probe runs one round of the failure detector: direct ping, indirect pings
//through relays, then suspicion.
func (n *Node) probe() {
	n.coreLock.Lock()
	target := n.core.peerSelector.Next()
	self := n.core.Self()
	piggyback := n.core.Piggyback()
	n.coreLock.Unlock()

	if target == "" {
		return
	}

	atomic.AddInt32(&n.probes, 1)

	args := net.PingRequest{
		From:        n.localAddr,
		Incarnation: self.Incarnation,
		Piggyback:   piggyback,
	}

	if ack, err := n.pingWithTimeout(target, &args); err == nil {
		n.applyAck(ack)
		return
	}

	n.logger.WithField("target", target).Debug("Direct probe failed")

	if n.indirectProbe(target) {
		return
	}

	atomic.AddInt32(&n.probeFailures, 1)

	n.suspect(target)
}

//pingWithTimeout bounds a direct probe by ProbeTimeout. The transport applies
//its own I/O timeout, but the probe round has to stay within its own window
//even when the transport's limit is longer.
func (n *Node) pingWithTimeout(target string, args *net.PingRequest) (net.PingResponse, error) {
	type pingResult struct {
		ack net.PingResponse
		err error
	}

	resCh := make(chan pingResult, 1)
	go func() {
		var ack net.PingResponse
		err := n.trans.Ping(target, args, &ack)
		resCh <- pingResult{ack: ack, err: err}
	}()

	select {
	case res := <-resCh:
		return res.ack, res.err
	case <-n.clock.After(n.conf.ProbeTimeout):
		return net.PingResponse{}, fmt.Errorf("ping %s: no ack within %v", target, n.conf.ProbeTimeout)
	}
}

//indirectProbe asks up to IndirectProbes other members to ping the target on
//our behalf. Any relayed ack clears the target. The whole round shares a
//second window of the same length as the direct probe.
func (n *Node) indirectProbe(target string) bool {
	n.coreLock.Lock()
	snapshot := n.core.Snapshot()
	n.coreLock.Unlock()

	var relays []string
	for _, m := range snapshot {
		if m.Addr != n.localAddr && m.Addr != target && m.State == membership.Alive {
			relays = append(relays, m.Addr)
		}
	}
	rand.Shuffle(len(relays), func(i, j int) {
		relays[i], relays[j] = relays[j], relays[i]
	})
	if len(relays) > n.conf.IndirectProbes {
		relays = relays[:n.conf.IndirectProbes]
	}

	type relayResult struct {
		resp net.IndirectPingResponse
		err  error
	}

	window := n.clock.After(n.conf.ProbeTimeout)

	acked := false
	for _, relay := range relays {
		args := net.IndirectPingRequest{
			From:   n.localAddr,
			Target: target,
		}

		resCh := make(chan relayResult, 1)
		go func(relay string) {
			var resp net.IndirectPingResponse
			err := n.trans.PingReq(relay, &args, &resp)
			resCh <- relayResult{resp: resp, err: err}
		}(relay)

		var res relayResult
		select {
		case res = <-resCh:
		case <-window:
			n.logger.WithField("target", target).Debug("Indirect probe window lapsed")
			return false
		}

		if res.err != nil {
			n.logger.WithField("relay", relay).WithError(res.err).Debug("PingReq failed")
			continue
		}

		n.coreLock.Lock()
		events := n.core.Apply(relay, res.resp.Piggyback)
		n.coreLock.Unlock()
		n.handleEvents(events)

		if res.resp.Ack {
			acked = true
			break
		}
	}

	return acked
}

//suspect marks the target Suspect and lets handleEvents arm the suspicion
//timer.
func (n *Node) suspect(target string) {
	n.coreLock.Lock()
	_, events, ok := n.core.Suspect(target)
	n.coreLock.Unlock()

	if !ok {
		return
	}

	n.logger.WithField("target", target).Debug("Suspect")

	n.handleEvents(events)
}

//confirmDead is the suspicion timer callback. It re-checks state and
//incarnation under the lock; a refutation in the meantime makes it a no-op.
func (n *Node) confirmDead(addr string, incarnation uint64) {
	if n.getState() == Shutdown {
		return
	}

	n.coreLock.Lock()
	events, ok := n.core.ConfirmDead(addr, incarnation)
	n.coreLock.Unlock()

	if !ok {
		return
	}

	n.logger.WithFields(logrus.Fields{
		"member":      addr,
		"incarnation": incarnation,
	}).Debug("Suspicion period lapsed")

	n.handleEvents(events)
}

//applyAck merges the sender's liveness and the piggybacked updates from an
//ack.
func (n *Node) applyAck(ack net.PingResponse) {
	updates := make([]membership.Update, 0, len(ack.Piggyback)+1)
	updates = append(updates, membership.Update{
		Addr:        ack.From,
		State:       membership.Alive,
		Incarnation: ack.Incarnation,
	})
	updates = append(updates, ack.Piggyback...)

	n.coreLock.Lock()
	events := n.core.Apply(ack.From, updates)
	n.coreLock.Unlock()

	n.handleEvents(events)
}

/*******************************************************************************
RPC dispatch
*******************************************************************************/

func (n *Node) processRPC(rpc net.RPC) {
	from, known := commandFrom(rpc.Command)
	if !known {
		n.logger.WithField("command", fmt.Sprintf("%T", rpc.Command)).Error("Unexpected command")
		guard.DroppedMessages.WithLabelValues(guard.ReasonUnknownKind).Inc()
		rpc.Respond(nil, fmt.Errorf("unexpected command"))
		return
	}

	if !n.limiter.Allow(from) {
		rpc.Respond(nil, fmt.Errorf("rate limited"))
		return
	}

	switch cmd := rpc.Command.(type) {
	case *net.PingRequest:
		n.processPing(cmd, rpc)
	case *net.IndirectPingRequest:
		n.processIndirectPing(cmd, rpc)
	case *net.EagerPushRequest:
		n.processEagerPush(cmd, rpc)
	case *net.LazyPushRequest:
		n.processLazyPush(cmd, rpc)
	case *net.PullRequest:
		n.processPull(cmd, rpc)
	case *net.ReconcileHashRequest:
		n.processReconcileHash(cmd, rpc)
	case *net.ReconcileDataRequest:
		n.processReconcileData(cmd, rpc)
	}
}

func commandFrom(cmd interface{}) (string, bool) {
	switch c := cmd.(type) {
	case *net.PingRequest:
		return c.From, true
	case *net.IndirectPingRequest:
		return c.From, true
	case *net.EagerPushRequest:
		return c.From, true
	case *net.LazyPushRequest:
		return c.From, true
	case *net.PullRequest:
		return c.From, true
	case *net.ReconcileHashRequest:
		return c.From, true
	case *net.ReconcileDataRequest:
		return c.From, true
	}
	return "", false
}

func (n *Node) processPing(cmd *net.PingRequest, rpc net.RPC) {
	//The sender's own liveness is merged before its piggyback so a departing
	//node's Dead-at-same-incarnation announcement wins on severity.
	updates := make([]membership.Update, 0, len(cmd.Piggyback)+1)
	updates = append(updates, membership.Update{
		Addr:        cmd.From,
		State:       membership.Alive,
		Incarnation: cmd.Incarnation,
	})
	updates = append(updates, cmd.Piggyback...)

	n.coreLock.Lock()
	events := n.core.Apply(cmd.From, updates)
	self := n.core.Self()
	piggyback := n.core.Piggyback()
	n.coreLock.Unlock()

	n.handleEvents(events)

	rpc.Respond(&net.PingResponse{
		From:        n.localAddr,
		Incarnation: self.Incarnation,
		Piggyback:   piggyback,
	}, nil)
}

func (n *Node) processIndirectPing(cmd *net.IndirectPingRequest, rpc net.RPC) {
	n.coreLock.Lock()
	self := n.core.Self()
	n.coreLock.Unlock()

	args := net.PingRequest{
		From:        n.localAddr,
		Incarnation: self.Incarnation,
	}

	var ack net.PingResponse
	err := n.trans.Ping(cmd.Target, &args, &ack)
	if err == nil {
		n.applyAck(ack)
	}

	n.coreLock.Lock()
	piggyback := n.core.Piggyback()
	n.coreLock.Unlock()

	rpc.Respond(&net.IndirectPingResponse{
		From:      n.localAddr,
		Ack:       err == nil,
		Piggyback: piggyback,
	}, nil)
}

func (n *Node) processEagerPush(cmd *net.EagerPushRequest, rpc net.RPC) {
	n.coreLock.Lock()
	d := n.core.tree.OnEagerPush(cmd.From, cmd.MsgID, cmd.Payload)
	n.coreLock.Unlock()

	//Respond before forwarding so the sender is not held up by our fan-out.
	rpc.Respond(&net.EagerPushResponse{From: n.localAddr}, nil)

	if d.Deliver {
		n.deliver(Message{ID: cmd.MsgID, From: cmd.From, Payload: cmd.Payload})
		n.forward(cmd.MsgID, cmd.Payload, d)
	}
}

func (n *Node) processLazyPush(cmd *net.LazyPushRequest, rpc net.RPC) {
	var grafts []string

	n.coreLock.Lock()
	for _, id := range cmd.MsgIDs {
		if n.core.tree.OnLazyPush(cmd.From, id) {
			grafts = append(grafts, id)
		}
	}
	n.coreLock.Unlock()

	rpc.Respond(&net.LazyPushResponse{From: n.localAddr}, nil)

	for _, id := range grafts {
		n.pull(cmd.From, id)
	}
}

//pull fetches the payload of a message known only by id, after a graft.
func (n *Node) pull(from, msgID string) {
	args := net.PullRequest{
		From:  n.localAddr,
		MsgID: msgID,
	}

	var resp net.PullResponse
	if err := n.trans.Pull(from, &args, &resp); err != nil || !resp.Found {
		n.logger.WithFields(logrus.Fields{
			"from":   from,
			"msg_id": msgID,
		}).Debug("Pull failed")
		return
	}

	n.coreLock.Lock()
	d := n.core.tree.OnEagerPush(from, msgID, resp.Payload)
	n.coreLock.Unlock()

	if d.Deliver {
		n.deliver(Message{ID: msgID, From: from, Payload: resp.Payload})
		n.forward(msgID, resp.Payload, d)
	}
}

func (n *Node) processPull(cmd *net.PullRequest, rpc net.RPC) {
	n.coreLock.Lock()
	payload, found := n.core.tree.Payload(cmd.MsgID)
	n.coreLock.Unlock()

	rpc.Respond(&net.PullResponse{
		From:    n.localAddr,
		Found:   found,
		Payload: payload,
	}, nil)
}

func (n *Node) processReconcileHash(cmd *net.ReconcileHashRequest, rpc net.RPC) {
	n.coreLock.Lock()
	snapshot := n.core.Snapshot()
	n.coreLock.Unlock()

	tree := membership.BuildMerkleTree(snapshot)

	hashes, err := tree.Hashes(cmd.Level, cmd.Indices)
	if err != nil {
		guard.DroppedMessages.WithLabelValues(guard.ReasonProtocol).Inc()
		rpc.Respond(nil, err)
		return
	}

	rpc.Respond(&net.ReconcileHashResponse{
		From:   n.localAddr,
		Hashes: hashes,
	}, nil)
}

func (n *Node) processReconcileData(cmd *net.ReconcileDataRequest, rpc net.RPC) {
	n.coreLock.Lock()
	events := n.core.Apply(cmd.From, cmd.Entries)
	tree := n.core.BuildMerkleTree()
	n.coreLock.Unlock()

	n.handleEvents(events)

	//Return our entries the sender lacks or holds differently, and list the
	//addresses it has that we lack so it pushes them back.
	var entries []membership.Update
	ours := make(map[string]bool)

	seen := make(map[int]bool)
	for _, b := range cmd.Buckets {
		if seen[b] {
			continue
		}
		seen[b] = true

		for _, u := range tree.Bucket(b) {
			ours[u.Addr] = true
			d, known := cmd.Digests[u.Addr]
			if !known || !bytes.Equal(d, u.Digest()) {
				entries = append(entries, u)
			}
		}
	}

	var want []string
	for addr := range cmd.Digests {
		if !ours[addr] {
			want = append(want, addr)
		}
	}
	sort.Strings(want)

	rpc.Respond(&net.ReconcileDataResponse{
		From:    n.localAddr,
		Entries: entries,
		Want:    want,
	}, nil)
}

/*******************************************************************************
Anti-entropy
*******************************************************************************/

//reconcile runs one anti-entropy round against a random live peer and then
//sweeps tombstones and the seen-message cache.
func (n *Node) reconcile() {
	defer n.sweep()

	n.coreLock.Lock()
	snapshot := n.core.Snapshot()
	n.coreLock.Unlock()

	var candidates []string
	for _, m := range snapshot {
		if m.Addr != n.localAddr && m.State == membership.Alive {
			candidates = append(candidates, m.Addr)
		}
	}
	if len(candidates) == 0 {
		return
	}
	peer := candidates[rand.Intn(len(candidates))]

	atomic.AddInt32(&n.reconciles, 1)

	tree := membership.BuildMerkleTree(snapshot)

	//Walk the remote tree level by level, descending only into mismatched
	//subtrees, until the divergent leaf buckets are localized.
	level := 0
	indices := []int{0}
	var buckets []int

	for {
		args := net.ReconcileHashRequest{
			From:    n.localAddr,
			Level:   level,
			Indices: indices,
		}

		var resp net.ReconcileHashResponse
		if err := n.trans.ReconcileHash(peer, &args, &resp); err != nil {
			n.logger.WithField("peer", peer).WithError(err).Debug("ReconcileHash failed")
			return
		}

		diff, err := tree.DiffLevel(level, indices, resp.Hashes)
		if err != nil {
			guard.DroppedMessages.WithLabelValues(guard.ReasonProtocol).Inc()
			n.logger.WithField("peer", peer).WithError(err).Error("Invalid reconcile response")
			return
		}

		if len(diff) == 0 {
			return
		}

		if level == membership.MerkleDepth {
			buckets = diff
			break
		}

		level++
		indices = diff
	}

	n.logger.WithFields(logrus.Fields{
		"peer":    peer,
		"buckets": len(buckets),
	}).Debug("Reconciling divergent buckets")

	args := net.ReconcileDataRequest{
		From:    n.localAddr,
		Buckets: buckets,
		Digests: tree.Digests(buckets),
	}

	var resp net.ReconcileDataResponse
	if err := n.trans.ReconcileData(peer, &args, &resp); err != nil {
		n.logger.WithField("peer", peer).WithError(err).Debug("ReconcileData failed")
		return
	}

	n.coreLock.Lock()
	events := n.core.Apply(peer, resp.Entries)
	var wanted []membership.Update
	for _, addr := range resp.Want {
		if m, ok := n.core.table.Get(addr); ok {
			wanted = append(wanted, m.Update())
		}
	}
	n.coreLock.Unlock()

	n.handleEvents(events)

	if len(wanted) > 0 {
		push := net.ReconcileDataRequest{
			From:    n.localAddr,
			Entries: wanted,
		}

		var pushResp net.ReconcileDataResponse
		if err := n.trans.ReconcileData(peer, &push, &pushResp); err != nil {
			n.logger.WithField("peer", peer).WithError(err).Debug("ReconcileData push failed")
		}
	}

	n.logStats()
}

//sweep purges lapsed tombstones and expired cached messages.
func (n *Node) sweep() {
	n.coreLock.Lock()
	purged := n.core.Expire(n.conf.TombstoneTimeout)
	swept := n.core.tree.Sweep(n.conf.CacheTTL)
	n.coreLock.Unlock()

	for _, addr := range purged {
		n.limiter.Forget(addr)
		if n.store != nil {
			if err := n.store.DeleteMember(addr); err != nil {
				n.logger.WithField("member", addr).WithError(err).Error("Deleting member from store")
			}
		}
	}

	if len(purged) > 0 || swept > 0 {
		n.logger.WithFields(logrus.Fields{
			"tombstones": len(purged),
			"messages":   swept,
		}).Debug("Sweep")
	}
}

/*******************************************************************************
Public API
*******************************************************************************/

//Broadcast disseminates a payload through the broadcast tree and returns its
//message id.
func (n *Node) Broadcast(payload []byte) (string, error) {
	if n.getState() != Gossiping {
		return "", fmt.Errorf("node not gossiping")
	}

	n.coreLock.Lock()
	msgID, d := n.core.tree.Broadcast(payload)
	n.coreLock.Unlock()

	n.goFunc(func() {
		n.forward(msgID, payload, d)
	})

	return msgID, nil
}

//forward sends the full payload down the eager links and the bare id down
//the lazy links. Failed sends are dropped; lazy announcements and
//reconciliation cover the gap.
func (n *Node) forward(msgID string, payload []byte, d broadcast.Delivery) {
	for _, peer := range d.Eager {
		args := net.EagerPushRequest{
			From:    n.localAddr,
			MsgID:   msgID,
			Payload: payload,
		}

		var resp net.EagerPushResponse
		if err := n.trans.EagerPush(peer, &args, &resp); err != nil {
			n.logger.WithField("peer", peer).WithError(err).Debug("EagerPush failed")
		}
	}

	if len(d.Lazy) > 0 {
		for _, peer := range d.Lazy {
			args := net.LazyPushRequest{
				From:   n.localAddr,
				MsgIDs: []string{msgID},
			}

			var resp net.LazyPushResponse
			if err := n.trans.LazyPush(peer, &args, &resp); err != nil {
				n.logger.WithField("peer", peer).WithError(err).Debug("LazyPush failed")
			}
		}
	}
}

//Snapshot returns a sorted copy of the membership table.
func (n *Node) Snapshot() []membership.Member {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()

	return n.core.Snapshot()
}

//GetMember returns a copy of a single member.
func (n *Node) GetMember(addr string) (membership.Member, bool) {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()

	return n.core.table.Get(addr)
}

//Subscribe registers a channel to receive membership events. Events are
//delivered best-effort: a full channel drops them.
func (n *Node) Subscribe(ch chan MemberEvent) {
	n.subLock.Lock()
	defer n.subLock.Unlock()

	n.subscribers = append(n.subscribers, ch)
}

//Deliveries returns the channel of broadcast payloads delivered to this
//node, each exactly once.
func (n *Node) Deliveries() <-chan Message {
	return n.deliverCh
}

//Leave announces the node's departure by gossiping Dead at the current
//incarnation, so the cluster converges without a suspicion cycle, then shuts
//down.
func (n *Node) Leave() error {
	n.logger.Debug("LEAVING")

	defer n.Shutdown()

	n.setState(Leaving)

	n.coreLock.Lock()
	self := n.core.Self()
	snapshot := n.core.Snapshot()
	n.coreLock.Unlock()

	departure := membership.Update{
		Addr:        n.localAddr,
		State:       membership.Dead,
		Incarnation: self.Incarnation,
	}

	notified := 0
	for _, m := range snapshot {
		if m.Addr == n.localAddr || m.State != membership.Alive {
			continue
		}
		if notified >= n.conf.Fanout {
			break
		}

		args := net.PingRequest{
			From:        n.localAddr,
			Incarnation: self.Incarnation,
			Piggyback:   []membership.Update{departure},
		}

		var ack net.PingResponse
		if err := n.trans.Ping(m.Addr, &args, &ack); err != nil {
			n.logger.WithField("peer", m.Addr).WithError(err).Debug("Leave notification failed")
			continue
		}
		notified++
	}

	return nil
}

//Shutdown shuts down the node
func (n *Node) Shutdown() {
	if n.getState() != Shutdown {
		n.logger.Debug("Shutdown")

		//Exit any non-shutdown state immediately
		n.setState(Shutdown)

		//Stop and wait for concurrent operations
		close(n.shutdownCh)

		n.waitRoutines()

		n.probeTimer.Shutdown()
		n.reconcileTimer.Shutdown()

		//transport and store should only be closed once all concurrent
		//operations are finished otherwise they will panic trying to use
		//closed objects
		n.trans.Close()

		if n.store != nil {
			n.store.Close()
		}
	}
}

/*******************************************************************************
Events
*******************************************************************************/

//handleEvents arms suspicion timers, persists changes, and publishes to
//subscribers. It runs outside the coreLock.
func (n *Node) handleEvents(events []MemberEvent) {
	for _, e := range events {
		n.logger.WithFields(logrus.Fields{
			"event":       e.Type.String(),
			"member":      e.Member.Addr,
			"state":       e.Member.State.String(),
			"incarnation": e.Member.Incarnation,
		}).Debug("MemberEvent")

		if e.Type == EventSuspect {
			addr := e.Member.Addr
			incarnation := e.Member.Incarnation
			n.clock.AfterFunc(n.conf.SuspicionTimeout, func() {
				n.confirmDead(addr, incarnation)
			})
		}

		if n.store != nil {
			if err := n.store.SaveMember(e.Member); err != nil {
				n.logger.WithField("member", e.Member.Addr).WithError(err).Error("Saving member to store")
			}
		}

		n.publish(e)
	}
}

func (n *Node) publish(e MemberEvent) {
	n.subLock.Lock()
	defer n.subLock.Unlock()

	for _, ch := range n.subscribers {
		select {
		case ch <- e:
		default:
		}
	}
}

func (n *Node) deliver(m Message) {
	select {
	case n.deliverCh <- m:
	default:
		n.logger.WithField("msg_id", m.ID).Warn("Delivery channel full, dropping message")
	}
}

/*******************************************************************************
Stats
*******************************************************************************/

//GetStats returns stats
func (n *Node) GetStats() map[string]string {
	n.coreLock.Lock()
	snapshot := n.core.Snapshot()
	eager := len(n.core.tree.EagerPeers(""))
	lazy := len(n.core.tree.LazyPeers(""))
	queued := n.core.queue.Len()
	self := n.core.Self()
	n.coreLock.Unlock()

	alive, suspect, dead := 0, 0, 0
	for _, m := range snapshot {
		switch m.State {
		case membership.Alive:
			alive++
		case membership.Suspect:
			suspect++
		case membership.Dead:
			dead++
		}
	}

	timeElapsed := n.clock.Now().Sub(n.start)

	s := map[string]string{
		"addr":            n.localAddr,
		"moniker":         n.conf.Moniker,
		"state":           n.getState().String(),
		"incarnation":     strconv.FormatUint(self.Incarnation, 10),
		"num_members":     strconv.Itoa(len(snapshot)),
		"alive_members":   strconv.Itoa(alive),
		"suspect_members": strconv.Itoa(suspect),
		"dead_members":    strconv.Itoa(dead),
		"eager_peers":     strconv.Itoa(eager),
		"lazy_peers":      strconv.Itoa(lazy),
		"queued_updates":  strconv.Itoa(queued),
		"probes":          strconv.Itoa(int(atomic.LoadInt32(&n.probes))),
		"probe_failures":  strconv.Itoa(int(atomic.LoadInt32(&n.probeFailures))),
		"reconciles":      strconv.Itoa(int(atomic.LoadInt32(&n.reconciles))),
		"uptime":          timeElapsed.String(),
	}
	return s
}

func (n *Node) logStats() {
	stats := n.GetStats()

	n.logger.WithFields(logrus.Fields{
		"num_members":     stats["num_members"],
		"alive_members":   stats["alive_members"],
		"suspect_members": stats["suspect_members"],
		"dead_members":    stats["dead_members"],
		"eager_peers":     stats["eager_peers"],
		"lazy_peers":      stats["lazy_peers"],
		"queued_updates":  stats["queued_updates"],
		"probes":          stats["probes"],
		"probe_failures":  stats["probe_failures"],
		"reconciles":      stats["reconciles"],
		"state":           stats["state"],
	}).Debug("Stats")
}

//Addr returns the advertised address of the node.
func (n *Node) Addr() string {
	return n.localAddr
}
