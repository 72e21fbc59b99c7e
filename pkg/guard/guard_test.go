package guard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck_AllowsFirstSend(t *testing.T) {
	g := New(DefaultCooldown, DefaultSendWindow)
	require.NoError(t, g.Check("where is my order?"))
}

func TestCheck_RejectsDuplicateWithinCooldown(t *testing.T) {
	g := New(time.Minute, 10*time.Millisecond)

	require.NoError(t, g.Check("where is my order?"))
	time.Sleep(15 * time.Millisecond) // clear the in-flight window

	err := g.Check("where is my order?")
	assert.ErrorIs(t, err, ErrDuplicate)

	// Normalization: whitespace and case do not make it a new message.
	err = g.Check("  WHERE IS MY ORDER?  ")
	assert.ErrorIs(t, err, ErrDuplicate)

	stats := g.Stats()
	assert.Equal(t, 1, stats.Allowed)
	assert.Equal(t, 2, stats.Duplicates)
}

func TestCheck_AllowsRepeatAfterCooldown(t *testing.T) {
	g := New(20*time.Millisecond, 5*time.Millisecond)

	require.NoError(t, g.Check("iphone 15 price?"))
	time.Sleep(30 * time.Millisecond)

	// Same question after the window is a legitimate repeat.
	require.NoError(t, g.Check("iphone 15 price?"))
}

func TestCheck_RejectsAnyContentWhileInFlight(t *testing.T) {
	g := New(time.Minute, 50*time.Millisecond)

	require.NoError(t, g.Check("first"))

	// Different content, but the previous send is still in flight.
	err := g.Check("second")
	assert.ErrorIs(t, err, ErrTooFast)

	time.Sleep(60 * time.Millisecond)
	require.NoError(t, g.Check("second"))
}

func TestCheck_RejectionMutatesNothing(t *testing.T) {
	g := New(time.Minute, 20*time.Millisecond)

	require.NoError(t, g.Check("hello"))

	// A throttled send must not become the new duplicate reference.
	err := g.Check("goodbye")
	require.ErrorIs(t, err, ErrTooFast)

	time.Sleep(25 * time.Millisecond)
	require.NoError(t, g.Check("goodbye"))
}

func TestClearSending_ReopensWindow(t *testing.T) {
	g := New(time.Minute, time.Minute)

	require.NoError(t, g.Check("first"))
	require.ErrorIs(t, g.Check("second"), ErrTooFast)

	g.ClearSending()
	require.NoError(t, g.Check("second"))
}
