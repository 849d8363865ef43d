package wirepeer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingRegistryInsertTakeDrain(t *testing.T) {
	r := newPendingRegistry()
	pc := newPendingCall()

	require.True(t, r.insert("1", pc))
	assert.False(t, r.insert("1", newPendingCall()), "duplicate id must be rejected")

	got, ok := r.take("1")
	require.True(t, ok)
	assert.Same(t, pc, got)

	_, ok = r.take("1")
	assert.False(t, ok, "take is a one-shot removal")
}

func TestPendingRegistryDrainFulfillsEverythingExactlyOnce(t *testing.T) {
	r := newPendingRegistry()
	a, b := newPendingCall(), newPendingCall()
	r.insert("a", a)
	r.insert("b", b)

	drained := r.drain()
	assert.Len(t, drained, 2)

	for _, pc := range drained {
		assert.True(t, pc.fulfill(callOutcome{localErr: ErrConnectionReset}))
		assert.False(t, pc.fulfill(callOutcome{localErr: ErrConnectionReset}), "second fulfill must fail")
	}

	_, ok := r.take("a")
	assert.False(t, ok)
}

func TestPendingCallFulfillIsOneShot(t *testing.T) {
	pc := newPendingCall()
	assert.True(t, pc.fulfill(callOutcome{result: []byte("1")}))
	assert.False(t, pc.fulfill(callOutcome{result: []byte("2")}))

	out := <-pc.ch
	assert.Equal(t, []byte("1"), []byte(out.result))
}
