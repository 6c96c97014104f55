// SPDX-License-Identifier: GPL-3.0-or-later

package meshmq

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplyTableRegisterCompleteRoundTrip(t *testing.T) {
	rt := NewReplyTable()
	owner := must(ServiceNode(pubkey(1)))

	tag, wait, err := rt.Register(owner, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(tag), 8)
	assert.Equal(t, 1, rt.Size())

	resolvedOwner, ok := rt.Complete(tag, [][]byte{[]byte("payload")})
	require.True(t, ok)
	assert.True(t, resolvedOwner.Equal(owner))
	assert.Equal(t, 0, rt.Size())

	select {
	case r := <-wait:
		assert.Equal(t, ReplyOK, r.Signal)
		assert.Equal(t, [][]byte{[]byte("payload")}, r.Payload)
	default:
		t.Fatal("expected a buffered reply")
	}
}

func TestReplyTableCompleteUnknownTagIsDroppedSilently(t *testing.T) {
	rt := NewReplyTable()
	_, ok := rt.Complete([]byte("nonexistent"), nil)
	assert.False(t, ok)
}

func TestReplyTableCompleteTwiceOnlyResolvesOnce(t *testing.T) {
	rt := NewReplyTable()
	owner := must(ServiceNode(pubkey(2)))
	tag, _, err := rt.Register(owner, time.Now().Add(time.Minute))
	require.NoError(t, err)

	_, ok := rt.Complete(tag, nil)
	require.True(t, ok)

	// Simulating a duplicate REPLY for the same tag: the entry is gone,
	// so the second Complete must report a miss rather than panicking on
	// a closed channel send.
	_, ok = rt.Complete(tag, nil)
	assert.False(t, ok)
}

func TestReplyTableExpire(t *testing.T) {
	rt := NewReplyTable()
	owner := must(ServiceNode(pubkey(3)))
	now := time.Now()

	tag, wait, err := rt.Register(owner, now.Add(-time.Second))
	require.NoError(t, err)
	_ = tag

	rt.Expire(now)
	assert.Equal(t, 0, rt.Size())

	select {
	case r := <-wait:
		assert.Equal(t, ReplyTimeout, r.Signal)
	default:
		t.Fatal("expected a buffered timeout reply")
	}
}

func TestReplyTableExpireKeepsUnexpiredEntries(t *testing.T) {
	rt := NewReplyTable()
	owner := must(ServiceNode(pubkey(4)))
	now := time.Now()

	_, _, err := rt.Register(owner, now.Add(time.Hour))
	require.NoError(t, err)

	rt.Expire(now)
	assert.Equal(t, 1, rt.Size())
}

func TestReplyTableExpireConnection(t *testing.T) {
	rt := NewReplyTable()
	a := must(ServiceNode(pubkey(5)))
	b := must(ServiceNode(pubkey(6)))

	_, waitA, err := rt.Register(a, time.Now().Add(time.Minute))
	require.NoError(t, err)
	_, waitB, err := rt.Register(b, time.Now().Add(time.Minute))
	require.NoError(t, err)

	rt.ExpireConnection(a)
	assert.Equal(t, 1, rt.Size())

	select {
	case r := <-waitA:
		assert.Equal(t, ReplyConnectionLost, r.Signal)
	default:
		t.Fatal("expected a buffered connection-lost reply")
	}
	select {
	case <-waitB:
		t.Fatal("b's entry should not have been resolved")
	default:
	}
}

func TestReplyTableNextDeadline(t *testing.T) {
	rt := NewReplyTable()
	_, found := rt.NextDeadline()
	assert.False(t, found)

	owner := must(ServiceNode(pubkey(7)))
	now := time.Now()
	_, _, err := rt.Register(owner, now.Add(time.Hour))
	require.NoError(t, err)
	_, _, err = rt.Register(owner, now.Add(time.Minute))
	require.NoError(t, err)

	earliest, found := rt.NextDeadline()
	require.True(t, found)
	assert.WithinDuration(t, now.Add(time.Minute), earliest, time.Second)
}

func must(id ConnectionID, err error) ConnectionID {
	if err != nil {
		panic(err)
	}
	return id
}
