package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_Singleton(t *testing.T) {
	assert.Same(t, Get(), Get())
}

func TestCollector_RecordsSamples(t *testing.T) {
	c := Get()
	c.IncrementCommandCounter("GET")
	c.IncrementErrorCounter("GET")
	c.RecordCommandLatency("GET", 3*time.Millisecond)
	c.IncrementActiveConnections()
	c.DecrementActiveConnections()

	intervals := c.Data()
	require.NotEmpty(t, intervals)

	found := false
	for _, interval := range intervals {
		if len(interval.Counters) > 0 {
			found = true
		}
	}
	assert.True(t, found, "counter increments should land in the in-memory sink")
}
