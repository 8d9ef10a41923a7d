package infra

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_ExponentialWithCap(t *testing.T) {
	b := NewBackoff(time.Second, 30*time.Second, 2).WithJitter(0)

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for i, w := range want {
		assert.Equal(t, w, b.Next(), "attempt %d", i+1)
	}
	assert.Equal(t, len(want), b.Attempts())
}

func TestBackoff_JitterStaysInBounds(t *testing.T) {
	b := NewBackoff(time.Second, 30*time.Second, 2)

	for i := 0; i < 50; i++ {
		d := b.Next()
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, 30*time.Second)
	}
}

func TestBackoff_Reset(t *testing.T) {
	b := NewBackoff(10*time.Millisecond, time.Second, 2).WithJitter(0)
	b.Next()
	b.Next()

	b.Reset()

	assert.Equal(t, 0, b.Attempts())
	assert.Equal(t, 10*time.Millisecond, b.Next())
}
