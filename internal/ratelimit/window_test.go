package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindow_AllowUpToLimit(t *testing.T) {
	w := NewWindow(3, time.Second)

	assert.True(t, w.Allow())
	assert.True(t, w.Allow())
	assert.True(t, w.Allow())
	assert.False(t, w.Allow(), "fourth event inside the window must be rejected")
}

func TestWindow_Rolls(t *testing.T) {
	w := NewWindow(2, 50*time.Millisecond)

	assert.True(t, w.Allow())
	assert.True(t, w.Allow())
	assert.False(t, w.Allow())

	time.Sleep(60 * time.Millisecond)

	assert.True(t, w.Allow(), "events should age out of the span")
}

func TestWindow_Reset(t *testing.T) {
	w := NewWindow(1, time.Second)

	assert.True(t, w.Allow())
	assert.False(t, w.Allow())

	w.Reset()
	assert.True(t, w.Allow())
}

func TestWindow_Unlimited(t *testing.T) {
	w := NewWindow(0, time.Second)
	for i := 0; i < 100; i++ {
		assert.True(t, w.Allow())
	}
}

func TestWindow_Remaining(t *testing.T) {
	w := NewWindow(5, time.Second)
	w.Allow()
	w.Allow()
	assert.Equal(t, 3, w.Remaining())
}
