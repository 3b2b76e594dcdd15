package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStoreGetSet(t *testing.T) {
	s := New[[]float32]()

	_, ok := s.Get("k")
	assert.False(t, ok)

	s.Set("k", []float32{1, 2, 3})
	v, ok := s.Get("k")
	assert.True(t, ok)
	assert.Equal(t, []float32{1, 2, 3}, v)
	assert.Equal(t, 1, s.Len())
}

func TestStoreFirstWriterWins(t *testing.T) {
	s := New[string]()

	s.Set("k", "first")
	s.Set("k", "second")

	v, _ := s.Get("k")
	assert.Equal(t, "first", v)
}

func TestStoreStats(t *testing.T) {
	s := New[int]()

	s.Get("missing")
	s.Set("k", 42)
	s.Get("k")
	s.Get("k")

	hits, misses := s.Stats()
	assert.Equal(t, int64(2), hits)
	assert.Equal(t, int64(1), misses)
}

func TestStoreConcurrentAccess(t *testing.T) {
	s := New[int]()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", n%10)
			s.Set(key, n)
			s.Get(key)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, s.Len())
}
