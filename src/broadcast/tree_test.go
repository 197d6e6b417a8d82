package broadcast

import (
	"testing"
	"time"

	"github.com/gossipnetworks/gossamer/src/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTree(t *testing.T, fanout int) (*Tree, *common.FakeClock) {
	clock := common.NewFakeClock(time.Unix(0, 0))
	tree := NewTree("local", fanout, clock, common.NewTestEntry(t, "local"))
	return tree, clock
}

func TestAddPeerFanout(t *testing.T) {
	tree, _ := newTestTree(t, 2)

	tree.AddPeer("a")
	tree.AddPeer("b")
	tree.AddPeer("c")
	tree.AddPeer("local") // self is never a peer

	assert.Equal(t, []string{"a", "b"}, tree.EagerPeers(""))
	assert.Equal(t, []string{"c"}, tree.LazyPeers(""))
}

func TestBroadcastTargets(t *testing.T) {
	tree, _ := newTestTree(t, 1)

	tree.AddPeer("a")
	tree.AddPeer("b")

	msgID, d := tree.Broadcast([]byte("hello"))
	require.NotEmpty(t, msgID)
	assert.Equal(t, []string{"a"}, d.Eager)
	assert.Equal(t, []string{"b"}, d.Lazy)
	assert.True(t, tree.Seen(msgID))

	// Distinct broadcasts of the same payload get distinct ids.
	msgID2, _ := tree.Broadcast([]byte("hello"))
	assert.NotEqual(t, msgID, msgID2)
}

func TestEagerPushForwarding(t *testing.T) {
	tree, _ := newTestTree(t, 3)

	tree.AddPeer("a")
	tree.AddPeer("b")
	tree.AddPeer("c")
	tree.AddPeer("d") // lazy

	d := tree.OnEagerPush("a", "m1", []byte("payload"))
	assert.True(t, d.Deliver)
	assert.Equal(t, []string{"b", "c"}, d.Eager, "forward full payload to eager peers minus sender")
	assert.Equal(t, []string{"d"}, d.Lazy, "forward id to lazy peers minus sender")

	payload, ok := tree.Payload("m1")
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), payload)
}

// Delivering the same EagerPush twice results in exactly one stored payload
// and exactly one prune against the duplicate sender.
func TestEagerPushDeduplication(t *testing.T) {
	tree, _ := newTestTree(t, 3)

	tree.AddPeer("a")
	tree.AddPeer("b")

	first := tree.OnEagerPush("a", "m1", []byte("payload"))
	require.True(t, first.Deliver)

	dup := tree.OnEagerPush("b", "m1", []byte("payload"))
	assert.False(t, dup.Deliver)
	assert.True(t, dup.PrunedSender)
	assert.Empty(t, dup.Eager)
	assert.Empty(t, dup.Lazy)

	// b is now lazy; a third duplicate from it prunes nothing further.
	dup2 := tree.OnEagerPush("b", "m1", []byte("payload"))
	assert.False(t, dup2.Deliver)
	assert.False(t, dup2.PrunedSender)

	assert.Equal(t, []string{"b"}, tree.LazyPeers(""))
}

func TestLazyPushGraft(t *testing.T) {
	tree, _ := newTestTree(t, 1)

	tree.AddPeer("a") // eager
	tree.AddPeer("b") // lazy

	// Unseen id announced by the lazy peer: graft it and pull.
	assert.True(t, tree.OnLazyPush("b", "m1"))
	assert.Contains(t, tree.EagerPeers(""), "b")

	// Once the payload arrives, later notices for the same id are ignored.
	tree.OnEagerPush("b", "m1", []byte("payload"))
	assert.False(t, tree.OnLazyPush("a", "m1"))
}

func TestRemovePeer(t *testing.T) {
	tree, _ := newTestTree(t, 2)

	tree.AddPeer("a")
	tree.AddPeer("b")
	tree.RemovePeer("a")

	assert.Equal(t, []string{"b"}, tree.EagerPeers(""))
	assert.False(t, tree.HasPeer("a"))
}

func TestSweep(t *testing.T) {
	tree, clock := newTestTree(t, 2)

	tree.OnEagerPush("a", "m1", []byte("one"))
	clock.Advance(30 * time.Second)
	tree.OnEagerPush("a", "m2", []byte("two"))

	dropped := tree.Sweep(time.Minute)
	assert.Equal(t, 0, dropped)

	clock.Advance(31 * time.Second)
	dropped = tree.Sweep(time.Minute)
	assert.Equal(t, 1, dropped)
	assert.False(t, tree.Seen("m1"))
	assert.True(t, tree.Seen("m2"))
}
