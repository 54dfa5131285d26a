package cache

import (
	"container/list"
	"sync"

	"github.com/cespare/xxhash/v2"
)

const keyLockShards = 64

// entry is the value stored in the recency list; lruCache.index maps
// a Key to its *list.Element, whose Value is *entry.
type entry struct {
	key  Key
	body []byte
}

// PersistFunc is invoked after every mutating operation so the caller
// can schedule a snapshot write without the cache importing the
// persistence layer's concerns directly.
type PersistFunc func()

// LRU is the bounded, concurrency-safe response cache described in
// the LRU cache component: a container/list-backed recency order, a
// cache-wide lock guarding it, and a fixed shard of per-key locks that
// gives single-flight semantics to concurrent Set calls on the same
// key.
type LRU struct {
	capacity int

	mu    sync.Mutex
	order *list.List
	index map[Key]*list.Element

	shards [keyLockShards]sync.Mutex

	onMutate PersistFunc
}

// NewLRU creates an LRU bounded to capacity entries. capacity <= 0
// means unbounded.
func NewLRU(capacity int) *LRU {
	return &LRU{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[Key]*list.Element),
	}
}

// OnMutate installs the callback invoked after Set, clear, or evict.
func (c *LRU) OnMutate(fn PersistFunc) {
	c.onMutate = fn
}

func (c *LRU) shardFor(key Key) *sync.Mutex {
	h := xxhash.Sum64String(string(key))
	return &c.shards[h%keyLockShards]
}

// Get returns the cached body for key, promoting it to
// most-recently-used on any hit.
func (c *LRU) Get(key Key) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToBack(el)
	e := el.Value.(*entry)
	out := make([]byte, len(e.body))
	copy(out, e.body)
	return out, true
}

// Set inserts or replaces the entry for key, following the
// single-flight insert protocol: the key's shard lock serializes
// concurrent Set calls for that key, and the cache-wide lock is
// re-checked after acquiring the shard lock so a racing winner is
// observed rather than double-inserted.
func (c *LRU) Set(key Key, body []byte) {
	shard := c.shardFor(key)
	shard.Lock()
	defer shard.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[key]; ok {
		c.order.MoveToBack(el)
		el.Value.(*entry).body = body
		c.notifyLocked()
		return
	}

	el := c.order.PushBack(&entry{key: key, body: body})
	c.index[key] = el

	if c.capacity > 0 {
		for c.order.Len() > c.capacity {
			c.evictOldestLocked()
		}
	}
	c.notifyLocked()
}

func (c *LRU) evictOldestLocked() {
	oldest := c.order.Front()
	if oldest == nil {
		return
	}
	c.order.Remove(oldest)
	delete(c.index, oldest.Value.(*entry).key)
}

// Clear empties the cache.
func (c *LRU) Clear() {
	c.mu.Lock()
	c.order.Init()
	c.index = make(map[Key]*list.Element)
	c.notifyLocked()
	c.mu.Unlock()
}

// Entry is one row of a read-only cache snapshot.
type Entry struct {
	Key  Key
	Size int
}

// Snapshot returns the cache contents in recency order
// (least-recently-used first), for display or persistence.
func (c *LRU) Snapshot() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Entry, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		out = append(out, Entry{Key: e.key, Size: len(e.body)})
	}
	return out
}

// Records returns the cache contents as (key, body) pairs in recency
// order, for snapshot persistence.
func (c *LRU) Records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Record, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		body := make([]byte, len(e.body))
		copy(body, e.body)
		out = append(out, Record{Key: e.key, Body: body})
	}
	return out
}

// LoadRecords replaces the cache contents with records, oldest first,
// as read from a snapshot at startup. It does not invoke onMutate.
func (c *LRU) LoadRecords(records []Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.index = make(map[Key]*list.Element)
	for _, r := range records {
		el := c.order.PushBack(&entry{key: r.Key, body: r.Body})
		c.index[r.Key] = el
	}
}

func (c *LRU) notifyLocked() {
	if c.onMutate != nil {
		go c.onMutate()
	}
}
