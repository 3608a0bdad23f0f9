package backoff

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNext_GrowsAndCaps(t *testing.T) {
	b := New(time.Second, 10*time.Second, WithoutJitter())

	assert.Equal(t, 1*time.Second, b.Next())
	assert.Equal(t, 2*time.Second, b.Next())
	assert.Equal(t, 4*time.Second, b.Next())
	assert.Equal(t, 8*time.Second, b.Next())
	assert.Equal(t, 10*time.Second, b.Next())
	assert.Equal(t, 10*time.Second, b.Next())
}

func TestNext_CustomMultiplier(t *testing.T) {
	b := New(time.Second, time.Minute, WithoutJitter(), WithMultiplier(3))

	assert.Equal(t, 1*time.Second, b.Next())
	assert.Equal(t, 3*time.Second, b.Next())
	assert.Equal(t, 9*time.Second, b.Next())
}

func TestNext_JitterStaysBounded(t *testing.T) {
	b := New(time.Second, time.Minute)

	for i := 0; i < 10; i++ {
		delay := b.Next()
		b.Reset()
		assert.GreaterOrEqual(t, delay, time.Second)
		assert.Less(t, delay, time.Second+time.Second/4+time.Millisecond)
	}
}

func TestReset(t *testing.T) {
	b := New(time.Second, time.Minute, WithoutJitter())

	b.Next()
	b.Next()
	b.Reset()
	assert.Equal(t, time.Second, b.Next())
}

func TestNew_Bounds(t *testing.T) {
	b := New(0, 0, WithoutJitter())
	assert.Equal(t, 100*time.Millisecond, b.Next())

	// max below initial is raised to initial
	b = New(time.Second, time.Millisecond, WithoutJitter())
	assert.Equal(t, time.Second, b.Next())
	assert.Equal(t, time.Second, b.Next())
}

func TestSleep_ContextCancelled(t *testing.T) {
	b := New(time.Minute, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Sleep(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSleep_Completes(t *testing.T) {
	b := New(time.Millisecond, time.Millisecond)
	require.NoError(t, b.Sleep(context.Background()))
}
