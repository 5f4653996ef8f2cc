// lockmap is a sharded lock map keyed by sector number.
//
// The API is as if LockMap held a lock for every sector on the device;
// LockMap.Acquire(s) acquires the lock associated with s and
// LockMap.Release(s) releases it. The file system uses it for the per-inode
// structural lock (keyed by the inode's sector) and for block-granular
// read-modify-write in the goose disk adapter.
//
// Lock state only exists while a lock is held or waited on; shard i is
// responsible for all sectors s with s % NSHARD = i.
package lockmap

import (
	"sync"
)

type lockState struct {
	held    bool
	cond    *sync.Cond
	waiters uint64
}

type lockShard struct {
	mu    *sync.Mutex
	state map[uint64]*lockState
}

func mkLockShard() *lockShard {
	return &lockShard{
		mu:    new(sync.Mutex),
		state: make(map[uint64]*lockState),
	}
}

func (shard *lockShard) acquire(s uint64) {
	shard.mu.Lock()
	state, ok := shard.state[s]
	if !ok {
		state = &lockState{
			held:    false,
			cond:    sync.NewCond(shard.mu),
			waiters: 0,
		}
		shard.state[s] = state
	}
	for state.held {
		state.waiters += 1
		state.cond.Wait()
		state.waiters -= 1
	}
	state.held = true
	shard.mu.Unlock()
}

func (shard *lockShard) release(s uint64) {
	shard.mu.Lock()
	state, ok := shard.state[s]
	if !ok || !state.held {
		panic("lockmap: release of unheld lock")
	}
	state.held = false
	if state.waiters > 0 {
		state.cond.Signal()
	} else {
		delete(shard.state, s)
	}
	shard.mu.Unlock()
}

func (shard *lockShard) held(s uint64) bool {
	shard.mu.Lock()
	state, ok := shard.state[s]
	h := ok && state.held
	shard.mu.Unlock()
	return h
}

const NSHARD uint64 = 43

type LockMap struct {
	shards []*lockShard
}

func MkLockMap() *LockMap {
	var shards []*lockShard
	for i := uint64(0); i < NSHARD; i++ {
		shards = append(shards, mkLockShard())
	}
	return &LockMap{
		shards: shards,
	}
}

func (lmap *LockMap) Acquire(s uint64) {
	lmap.shards[s%NSHARD].acquire(s)
}

func (lmap *LockMap) Release(s uint64) {
	lmap.shards[s%NSHARD].release(s)
}

// Held reports whether s is currently locked by some thread. Only useful
// for assertions; the answer may be stale by the time it is returned.
func (lmap *LockMap) Held(s uint64) bool {
	return lmap.shards[s%NSHARD].held(s)
}
