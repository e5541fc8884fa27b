package mailbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffNext(t *testing.T) {
	b := Backoff{Min: 5 * time.Second, Max: 30 * time.Second, Factor: 2}
	assert.Equal(t, 5*time.Second, b.Next(0))
	assert.Equal(t, 5*time.Second, b.Next(1))
	assert.Equal(t, 10*time.Second, b.Next(2))
	assert.Equal(t, 20*time.Second, b.Next(3))
	assert.Equal(t, 30*time.Second, b.Next(4))
	assert.Equal(t, 30*time.Second, b.Next(50))
}

func TestBackoffJitterStaysInBand(t *testing.T) {
	b := DefaultBackoff()
	for i := 0; i < 100; i++ {
		d := b.Next(1)
		assert.GreaterOrEqual(t, d, 4*time.Second)
		assert.LessOrEqual(t, d, 6*time.Second)
	}
}
