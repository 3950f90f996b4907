package workset

import (
	"sort"
	"strings"
	"sync"
)

// FailedSentinel is the reserved cache value marking a text whose
// translation exhausted all retries in this run. It is distinct from the
// empty string, which means "not yet attempted".
const FailedSentinel = "\x00translation-failed\x00"

// Cache maps each distinct source text to its translation. An empty value
// means pending; any non-empty value (including FailedSentinel) means the
// text is done. Writes are idempotent upserts keyed by content, so last
// writer wins when the same text resolves twice.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]string
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]string)}
}

// Add registers a source text as pending. Blank texts are never added.
func (c *Cache) Add(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	c.mu.Lock()
	if _, ok := c.entries[text]; !ok {
		c.entries[text] = ""
	}
	c.mu.Unlock()
}

// Get returns the cached value for text and whether the key exists.
func (c *Cache) Get(text string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[text]
	return v, ok
}

// Put resolves a pending text. Only keys already present are updated;
// translations for texts that never appeared in the dataset are dropped
// so the cache never grows orphan keys.
func (c *Cache) Put(text, translated string) {
	if translated == "" {
		return
	}
	c.mu.Lock()
	if _, ok := c.entries[text]; ok {
		c.entries[text] = translated
	}
	c.mu.Unlock()
}

// MarkFailed records the terminal-failure sentinel for text.
func (c *Cache) MarkFailed(text string) {
	c.Put(text, FailedSentinel)
}

// Merge applies known translations onto matching pending keys.
// Sentinel values are not merged; a past failure is retried next run.
func (c *Cache) Merge(known map[string]string) int {
	merged := 0
	c.mu.Lock()
	for text, translated := range known {
		if translated == "" || translated == FailedSentinel {
			continue
		}
		if _, ok := c.entries[text]; ok {
			c.entries[text] = translated
			merged++
		}
	}
	c.mu.Unlock()
	return merged
}

// Pending returns the texts still awaiting translation, sorted for
// deterministic batch formation.
func (c *Cache) Pending() []string {
	c.mu.RLock()
	pending := make([]string, 0)
	for text, v := range c.entries {
		if v == "" {
			pending = append(pending, text)
		}
	}
	c.mu.RUnlock()
	sort.Strings(pending)
	return pending
}

// Len returns the number of distinct texts in the cache.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// DoneCount returns how many texts are resolved, failures included.
func (c *Cache) DoneCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, v := range c.entries {
		if v != "" {
			n++
		}
	}
	return n
}

// FailedCount returns how many texts hold the failure sentinel.
func (c *Cache) FailedCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, v := range c.entries {
		if v == FailedSentinel {
			n++
		}
	}
	return n
}

// Snapshot copies the full cache, sentinel values included, for
// checkpoint serialization.
func (c *Cache) Snapshot() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snapshot := make(map[string]string, len(c.entries))
	for k, v := range c.entries {
		snapshot[k] = v
	}
	return snapshot
}
