package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterAllows(t *testing.T) {
	limiter := NewRateLimiter(10, 5)

	for i := 0; i < 5; i++ {
		assert.True(t, limiter.Allow("peer1"), "message %d should pass within burst", i)
	}
}

func TestRateLimiterDropsOverBurst(t *testing.T) {
	limiter := NewRateLimiter(1, 2)

	assert.True(t, limiter.Allow("peer1"))
	assert.True(t, limiter.Allow("peer1"))
	assert.False(t, limiter.Allow("peer1"), "third message should exceed the bucket")

	// Another peer has its own bucket.
	assert.True(t, limiter.Allow("peer2"))
}

func TestRateLimiterDisabled(t *testing.T) {
	limiter := NewRateLimiter(0, 0)

	for i := 0; i < 1000; i++ {
		assert.True(t, limiter.Allow("peer1"))
	}
}

func TestRateLimiterForget(t *testing.T) {
	limiter := NewRateLimiter(1, 1)

	assert.True(t, limiter.Allow("peer1"))
	assert.False(t, limiter.Allow("peer1"))

	// Forgetting resets the peer's bucket.
	limiter.Forget("peer1")
	assert.True(t, limiter.Allow("peer1"))
}

func TestAlwaysConfirm(t *testing.T) {
	var policy QuorumPolicy = AlwaysConfirm{}

	assert.True(t, policy.ConfirmDead("node1", 3))
}

func TestKQuorum(t *testing.T) {
	q := NewKQuorum(2)

	q.RecordReport("node1", 3, "witnessA")
	assert.False(t, q.ConfirmDead("node1", 3), "one source is not a quorum of two")

	// Duplicate reports from the same source do not count twice.
	q.RecordReport("node1", 3, "witnessA")
	assert.False(t, q.ConfirmDead("node1", 3))

	q.RecordReport("node1", 3, "witnessB")
	assert.True(t, q.ConfirmDead("node1", 3))

	// Reports about a different incarnation are independent.
	assert.False(t, q.ConfirmDead("node1", 4))

	q.Forget("node1")
	assert.False(t, q.ConfirmDead("node1", 3))
}
