package cmap

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewWithShards(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{32, 32},
		{1, 1},
		{0, DefaultShardCount},
		{-4, DefaultShardCount},
		{12, DefaultShardCount},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NewWithShards[int](tt.in).ShardCount(), "shards=%d", tt.in)
	}
}

func TestMap_Basic(t *testing.T) {
	m := New[string]()

	m.Set("shop-1", "a")
	v, ok := m.Get("shop-1")
	assert.True(t, ok)
	assert.Equal(t, "a", v)
	assert.True(t, m.Has("shop-1"))
	assert.Equal(t, 1, m.Count())

	assert.True(t, m.Delete("shop-1"))
	assert.False(t, m.Delete("shop-1"))
	assert.False(t, m.Has("shop-1"))
}

func TestMap_SetIfAbsent(t *testing.T) {
	m := New[int]()

	assert.True(t, m.SetIfAbsent("k", 1))
	assert.False(t, m.SetIfAbsent("k", 2))

	v, _ := m.Get("k")
	assert.Equal(t, 1, v)
}

func TestMap_Update(t *testing.T) {
	m := New[int]()

	wrote := m.Update("k", func(cur int, exists bool) (int, bool) { return 0, exists })
	assert.False(t, wrote)
	assert.False(t, m.Has("k"))

	m.Set("k", 1)
	wrote = m.Update("k", func(cur int, exists bool) (int, bool) { return cur + 1, exists })
	assert.True(t, wrote)
	v, _ := m.Get("k")
	assert.Equal(t, 2, v)
}

func TestMap_DeleteFunc(t *testing.T) {
	m := New[bool]()
	for i := 0; i < 10; i++ {
		m.Set(fmt.Sprintf("a|%d", i), true)
		m.Set(fmt.Sprintf("b|%d", i), true)
	}

	n := m.DeleteFunc(func(k string, _ bool) bool { return strings.HasPrefix(k, "a|") })

	assert.Equal(t, 10, n)
	assert.Equal(t, 10, m.Count())
}

func TestMap_RangeEarlyStop(t *testing.T) {
	m := New[int]()
	for i := 0; i < 50; i++ {
		m.Set(fmt.Sprint(i), i)
	}

	seen := 0
	m.Range(func(string, int) bool {
		seen++
		return seen < 5
	})

	assert.Equal(t, 5, seen)
	assert.Len(t, m.Keys(), 50)
}

func TestMap_Distribution(t *testing.T) {
	m := NewWithShards[int](8)
	for i := 0; i < 800; i++ {
		m.Set(fmt.Sprintf("client-%d", i), i)
	}

	for _, s := range m.shards {
		assert.NotZero(t, len(s.items), "murmur3 should touch every shard")
	}
}

func TestMap_Concurrent(t *testing.T) {
	m := New[int]()
	var wg sync.WaitGroup

	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("%d-%d", g, i)
				m.Set(key, i)
				m.Get(key)
				m.Update(key, func(cur int, ok bool) (int, bool) { return cur + 1, ok })
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, 1600, m.Count())
}
