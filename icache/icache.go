// Package icache is a sharded, reference-counted cache of open objects
// keyed by sector number.
//
// Acquire returns the object cached under a key, loading it on a miss, and
// counts the caller as a holder. Release drops one holder; the last Release
// evicts the object. Lookup, load, and eviction for one key happen under
// that key's shard lock, so two openers of the same sector always share one
// object and an object is never reloaded before its eviction has finished.
package icache

import (
	"sync"

	"github.com/mit-pdos/goose-filesys/util"
)

type centry struct {
	obj interface{}
	ref uint64
}

type cacheShard struct {
	mu    *sync.Mutex
	state map[uint64]*centry
}

type Cache struct {
	shards []*cacheShard
}

const NSHARD uint64 = 43

func mkCacheShard() *cacheShard {
	return &cacheShard{
		mu:    new(sync.Mutex),
		state: make(map[uint64]*centry),
	}
}

func MkCache() *Cache {
	var shards []*cacheShard
	for i := uint64(0); i < NSHARD; i++ {
		shards = append(shards, mkCacheShard())
	}
	return &Cache{
		shards: shards,
	}
}

func (c *Cache) getShard(key uint64) *cacheShard {
	return c.shards[key%NSHARD]
}

// Acquire returns the object for key, calling load to create it if key is
// not cached, and increments its reference count.
func (c *Cache) Acquire(key uint64, load func() interface{}) interface{} {
	shard := c.getShard(key)
	shard.mu.Lock()
	e, ok := shard.state[key]
	if !ok {
		e = &centry{obj: load(), ref: 0}
		shard.state[key] = e
		util.DPrintf(10, "icache: load %d\n", key)
	}
	e.ref += 1
	obj := e.obj
	shard.mu.Unlock()
	return obj
}

// Release decrements the reference count of key. When it reaches zero the
// entry is removed and drop is called with the object before the shard
// lock is released. Returns true if the entry was evicted.
func (c *Cache) Release(key uint64, drop func(obj interface{})) bool {
	shard := c.getShard(key)
	shard.mu.Lock()
	e, ok := shard.state[key]
	if !ok || e.ref == 0 {
		shard.mu.Unlock()
		panic("icache: release of uncached key")
	}
	e.ref -= 1
	evict := e.ref == 0
	if evict {
		delete(shard.state, key)
		util.DPrintf(10, "icache: evict %d\n", key)
		drop(e.obj)
	}
	shard.mu.Unlock()
	return evict
}

// Ref returns the reference count of key (0 if not cached).
func (c *Cache) Ref(key uint64) uint64 {
	shard := c.getShard(key)
	shard.mu.Lock()
	var ref uint64
	e, ok := shard.state[key]
	if ok {
		ref = e.ref
	}
	shard.mu.Unlock()
	return ref
}

// Len returns the number of cached objects.
func (c *Cache) Len() uint64 {
	var n uint64
	for _, shard := range c.shards {
		shard.mu.Lock()
		n += uint64(len(shard.state))
		shard.mu.Unlock()
	}
	return n
}
