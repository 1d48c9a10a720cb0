package table

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestDedupCache_AddContains(t *testing.T) {
	c := NewDedupCache(3)
	id := uuid.New()

	assert.False(t, c.Contains(id))
	c.Add(id)
	assert.True(t, c.Contains(id))
	assert.Equal(t, 1, c.Len())

	c.Add(id)
	assert.Equal(t, 1, c.Len(), "re-adding an id must not grow the cache")
}

func TestDedupCache_FIFOEviction(t *testing.T) {
	c := NewDedupCache(3)
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New()}

	c.Add(ids[0])
	c.Add(ids[1])
	c.Add(ids[2])

	// Touching the oldest entry must not protect it: this is not an LRU.
	assert.True(t, c.Contains(ids[0]))

	c.Add(ids[3])
	assert.Equal(t, 3, c.Len())
	assert.False(t, c.Contains(ids[0]), "oldest id should be evicted")
	assert.True(t, c.Contains(ids[1]))
	assert.True(t, c.Contains(ids[2]))
	assert.True(t, c.Contains(ids[3]))
}

func TestDedupCache_BoundedSize(t *testing.T) {
	c := NewDedupCache(0)
	for i := 0; i < 3*DefaultDedupCapacity; i++ {
		c.Add(uuid.New())
		if c.Len() > DefaultDedupCapacity {
			t.Fatalf("cache grew to %d, capacity %d", c.Len(), DefaultDedupCapacity)
		}
	}
	assert.Equal(t, DefaultDedupCapacity, c.Len())
}

func TestDedupCache_Clear(t *testing.T) {
	c := NewDedupCache(5)
	id := uuid.New()
	c.Add(id)
	c.Clear()
	assert.False(t, c.Contains(id))
	assert.Equal(t, 0, c.Len())
}
