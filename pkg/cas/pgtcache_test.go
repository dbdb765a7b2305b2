package cas

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIOUCacheTakeConsumesEntry(t *testing.T) {
	c := NewIOUCache(0, 0)
	c.Put("PGTIOU-1", "PGT-1")

	pgt, ok := c.Take("PGTIOU-1")
	assert.True(t, ok)
	assert.Equal(t, "PGT-1", pgt)

	// A second read misses: the pairing is single-use.
	_, ok = c.Take("PGTIOU-1")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestIOUCacheConcurrentTakeSingleWinner(t *testing.T) {
	c := NewIOUCache(0, 0)

	const rounds = 1000
	const racers = 8
	var wins atomic.Int64
	for i := 0; i < rounds; i++ {
		iou := fmt.Sprintf("PGTIOU-%d", i)
		c.Put(iou, "PGT-x")

		var start, done sync.WaitGroup
		start.Add(1)
		done.Add(racers)
		for j := 0; j < racers; j++ {
			go func() {
				defer done.Done()
				start.Wait()
				if _, ok := c.Take(iou); ok {
					wins.Add(1)
				}
			}()
		}
		start.Done()
		done.Wait()
	}

	// Exactly one racer per round redeems the pairing.
	assert.Equal(t, int64(rounds), wins.Load())
}

func TestIOUCacheMiss(t *testing.T) {
	c := NewIOUCache(0, 0)
	_, ok := c.Take("never-delivered")
	assert.False(t, ok)
}

func TestIOUCacheCapacityBound(t *testing.T) {
	c := NewIOUCache(2, time.Minute)
	for i := 0; i < 5; i++ {
		c.Put(fmt.Sprintf("PGTIOU-%d", i), fmt.Sprintf("PGT-%d", i))
	}

	// Oldest entries were evicted to hold the bound.
	assert.Equal(t, 2, c.Len())
	_, ok := c.Take("PGTIOU-0")
	assert.False(t, ok)
	pgt, ok := c.Take("PGTIOU-4")
	assert.True(t, ok)
	assert.Equal(t, "PGT-4", pgt)
}
