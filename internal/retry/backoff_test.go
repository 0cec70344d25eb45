package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDoublesAndCaps(t *testing.T) {
	b := New(time.Second, 8*time.Second)
	assert.Equal(t, time.Second, b.NextInterval())
	assert.Equal(t, 2*time.Second, b.NextInterval())
	assert.Equal(t, 4*time.Second, b.NextInterval())
	assert.Equal(t, 8*time.Second, b.NextInterval())
	assert.Equal(t, 8*time.Second, b.NextInterval(), "must not exceed max")
}

func TestBackoffReset(t *testing.T) {
	b := New(time.Second, 8*time.Second)
	b.NextInterval()
	b.NextInterval()
	b.Reset()
	assert.Equal(t, time.Second, b.NextInterval())
}
