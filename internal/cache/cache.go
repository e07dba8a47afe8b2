// Package cache implements the Tree Cache: a file-path keyed store of
// parsed-tree entries with md5-based staleness checks, priority-weighted
// eviction, an optional on-disk sidecar tier, and a filesystem watch hook
// for external-modification invalidation.
//
// The cache is deliberately opaque about what it stores: CacheEntry.Tree is
// an any, the same LRU-bookkeeping discipline the teacher's shared HTTP
// client cache uses for *http.Client values. This keeps the eviction
// machinery decoupled from the tree-sitter types the parse service works
// with.
package cache

import (
	"container/list"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"log"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Priority biases eviction order: High survives longest, Low is evicted
// first among equally-aged entries.
type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityMedium
	PriorityHigh
)

func (p Priority) rank() float64 {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 2
	}
}

// CacheEntry is one cached parse result, keyed by absolute file path.
type CacheEntry struct {
	Tree           any
	Content        []byte
	LastUpdatedMs  int64
	LastAccessedMs int64
	ContentHash    string
	Priority       Priority
	AccessCount    int64
	EstimatedBytes int64

	elem *list.Element
	path string
}

// Strategy selects how the disk sidecar tier participates in reads/writes.
type Strategy string

const (
	StrategyMemoryOnly             Strategy = "memory_only"
	StrategyDiskAndMemory          Strategy = "disk_and_memory"
	StrategyMemoryWithDiskFallback Strategy = "memory_with_disk_fallback"
)

// Options configures a Cache; zero-value Options is filled in with spec
// defaults by New.
type Options struct {
	MaxEntries     int
	MaxMemoryBytes int64
	StaleTTLMs     int64
	Strategy       Strategy
	DiskDir        string
	SweepInterval  time.Duration
}

func defaultOptions() Options {
	return Options{
		MaxEntries:     100,
		MaxMemoryBytes: 200 * 1024 * 1024,
		StaleTTLMs:     5 * 60 * 1000,
		Strategy:       StrategyMemoryOnly,
		DiskDir:        filepath.Join(os.TempDir(), "roo-ast-cache"),
		SweepInterval:  10 * time.Minute,
	}
}

// Cache is the Tree Cache (C2). One instance is process-wide; all mutation
// goes through its exported methods, which guard the internal maps.
type Cache struct {
	mu      sync.Mutex
	opts    Options
	enabled bool
	entries map[string]*CacheEntry
	lru     *list.List // front = most recently touched

	memoryBytes int64

	watcher    *fsnotify.Watcher
	watchedDir map[string]bool

	stopSweep chan struct{}
	sweepOnce sync.Once
}

// New constructs a Cache. Pass a zero Options{} to accept all defaults.
func New(opts Options) *Cache {
	defaults := defaultOptions()
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = defaults.MaxEntries
	}
	if opts.MaxMemoryBytes <= 0 {
		opts.MaxMemoryBytes = defaults.MaxMemoryBytes
	}
	if opts.StaleTTLMs <= 0 {
		opts.StaleTTLMs = defaults.StaleTTLMs
	}
	if opts.Strategy == "" {
		opts.Strategy = defaults.Strategy
	}
	if opts.DiskDir == "" {
		opts.DiskDir = defaults.DiskDir
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaults.SweepInterval
	}

	c := &Cache{
		opts:       opts,
		enabled:    true,
		entries:    make(map[string]*CacheEntry),
		lru:        list.New(),
		watchedDir: make(map[string]bool),
		stopSweep:  make(chan struct{}),
	}

	go c.sweepLoop()

	return c
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}

func hashContent(content []byte) string {
	sum := md5.Sum(content)
	return hex.EncodeToString(sum[:])
}

func estimateBytes(content []byte) int64 {
	// Spec §4.2: 2*|content| + 3*|content|, i.e. 5x the source size,
	// accounting for the tree's node graph alongside the raw bytes.
	return int64(len(content))*2 + int64(len(content))*3
}

// Get returns the cached entry for path if present and fresh, bumping its
// access bookkeeping. A stale entry (TTL elapsed, or on-disk md5 no longer
// matches) is treated as a miss and evicted.
func (c *Cache) Get(path string) (*CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled {
		return nil, false
	}

	entry, ok := c.entries[path]
	if !ok {
		return c.getFromDiskLocked(path)
	}

	if nowMs()-entry.LastUpdatedMs > c.opts.StaleTTLMs {
		c.removeLocked(path)
		return c.getFromDiskLocked(path)
	}

	if entry.ContentHash != "" {
		if onDisk, err := os.ReadFile(path); err == nil {
			if hashContent(onDisk) != entry.ContentHash {
				c.removeLocked(path)
				return nil, false
			}
		}
	}

	entry.LastAccessedMs = nowMs()
	entry.AccessCount++
	c.lru.MoveToFront(entry.elem)
	return entry, true
}

// getFromDiskLocked consults the disk sidecar tier when the strategy
// permits it. It never returns a Tree (trees are not portably
// serializable, per spec §4.2), so a disk hit comes back as an entry whose
// Tree is nil but whose Content/ContentHash are the verified-fresh bytes
// from disk; this is distinct from a cold miss (nil entry, false) and lets
// the parse service reparse directly from Content instead of issuing its
// own redundant read, then call Put to repopulate both tiers.
func (c *Cache) getFromDiskLocked(path string) (*CacheEntry, bool) {
	if c.opts.Strategy == StrategyMemoryOnly {
		return nil, false
	}
	sc, err := readSidecar(c.opts.DiskDir, path)
	if err != nil {
		return nil, false
	}
	if nowMs()-sc.LastUpdatedMs > c.opts.StaleTTLMs {
		return nil, false
	}
	onDisk, err := os.ReadFile(path)
	if err != nil || hashContent(onDisk) != sc.ContentHash {
		return nil, false
	}
	return &CacheEntry{
		Content:        onDisk,
		LastUpdatedMs:  sc.LastUpdatedMs,
		LastAccessedMs: nowMs(),
		ContentHash:    sc.ContentHash,
		Priority:       sc.Priority,
		EstimatedBytes: estimateBytes(onDisk),
		path:           path,
	}, true
}

// Put stores tree/content for path, computing its hash and enforcing
// capacity/memory bounds via eviction.
func (c *Cache) Put(path string, tree any, content []byte, priority Priority) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled {
		return
	}

	if priority == 0 {
		priority = PriorityMedium
	}

	if existing, ok := c.entries[path]; ok {
		c.memoryBytes -= existing.EstimatedBytes
		c.lru.Remove(existing.elem)
		delete(c.entries, path)
	}

	now := nowMs()
	entry := &CacheEntry{
		Tree:           tree,
		Content:        content,
		LastUpdatedMs:  now,
		LastAccessedMs: now,
		ContentHash:    hashContent(content),
		Priority:       priority,
		AccessCount:    0,
		EstimatedBytes: estimateBytes(content),
		path:           path,
	}
	entry.elem = c.lru.PushFront(entry)
	c.entries[path] = entry
	c.memoryBytes += entry.EstimatedBytes

	c.evictIfNeededLocked()

	if c.opts.Strategy == StrategyDiskAndMemory || c.opts.Strategy == StrategyMemoryWithDiskFallback {
		if err := writeSidecar(c.opts.DiskDir, path, entry); err != nil {
			log.Printf("cache: failed to write disk sidecar for %s: %v", path, err)
		}
	}

	c.watchLocked(path)
}

// evictIfNeededLocked scores every entry as
// priority_rank - age_ratio - 1/log(access_count+1) and evicts the lowest
// scores until both capacity and memory bounds are satisfied.
func (c *Cache) evictIfNeededLocked() {
	for c.lru.Len() > c.opts.MaxEntries || c.memoryBytes > c.opts.MaxMemoryBytes {
		victim := c.lowestScoringLocked()
		if victim == nil {
			return
		}
		c.memoryBytes -= victim.EstimatedBytes
		c.lru.Remove(victim.elem)
		delete(c.entries, victim.path)
	}
}

func (c *Cache) lowestScoringLocked() *CacheEntry {
	now := nowMs()
	var oldest int64
	for _, e := range c.entries {
		age := now - e.LastUpdatedMs
		if age > oldest {
			oldest = age
		}
	}

	var worst *CacheEntry
	var worstScore float64
	first := true
	for _, e := range c.entries {
		score := scoreEntry(e, now, oldest)
		if first || score < worstScore || (score == worstScore && e.Priority.rank() < worst.Priority.rank()) {
			worst = e
			worstScore = score
			first = false
		}
	}
	return worst
}

func scoreEntry(e *CacheEntry, now, maxAge int64) float64 {
	ageRatio := 0.0
	if maxAge > 0 {
		ageRatio = float64(now-e.LastUpdatedMs) / float64(maxAge)
	}
	// priority_rank - age_ratio - 1/log(access_count+1), per spec §4.2.
	// A never-accessed entry (access_count==0) has log(1)==0, so its
	// 1/log term is +Inf and it is the first evicted under pressure —
	// freshly Put entries do not get a free pass over entries that have
	// actually been read back.
	accessBoost := 1.0 / math.Log(float64(e.AccessCount)+1)
	return e.Priority.rank() - ageRatio - accessBoost
}

// Invalidate drops path's entry from both memory and the disk sidecar tier.
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(path)
	_ = os.Remove(sidecarPath(c.opts.DiskDir, path))
}

func (c *Cache) removeLocked(path string) {
	entry, ok := c.entries[path]
	if !ok {
		return
	}
	c.memoryBytes -= entry.EstimatedBytes
	c.lru.Remove(entry.elem)
	delete(c.entries, path)
}

// Clear empties the in-memory tier; disk sidecars are left in place.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*CacheEntry)
	c.lru = list.New()
	c.memoryBytes = 0
}

// Enable turns the cache back on; it starts empty.
func (c *Cache) Enable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = true
}

// Disable turns the cache off: reads miss and writes are dropped; any
// existing entries are purged immediately.
func (c *Cache) Disable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = false
	c.entries = make(map[string]*CacheEntry)
	c.lru = list.New()
	c.memoryBytes = 0
}

// Close stops the background sweep and filesystem watcher.
func (c *Cache) Close() {
	c.sweepOnce.Do(func() {
		close(c.stopSweep)
	})
	c.mu.Lock()
	w := c.watcher
	c.watcher = nil
	c.mu.Unlock()
	if w != nil {
		_ = w.Close()
	}
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(c.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopSweep:
			return
		case <-ticker.C:
			c.sweepStale()
		}
	}
}

// sweepStale removes entries whose last_updated_ms is older than the TTL,
// without holding the lock longer than it takes to evict one entry at a
// time (spec §5: background sweep must not hold the per-entry lock longer
// than that).
func (c *Cache) sweepStale() {
	now := nowMs()
	for {
		c.mu.Lock()
		var target string
		found := false
		for path, e := range c.entries {
			if now-e.LastUpdatedMs > c.opts.StaleTTLMs {
				target = path
				found = true
				break
			}
		}
		if !found {
			c.mu.Unlock()
			return
		}
		c.removeLocked(target)
		c.mu.Unlock()
	}
}

type sidecar struct {
	Content     string `json:"content"`
	LastUpdated int64  `json:"lastUpdated"`
	ContentHash string `json:"fileHash"`
	Priority    string `json:"priority"`
}

func (e *CacheEntry) priorityWireName() string {
	switch e.Priority {
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "medium"
	}
}

func parsePriorityWireName(name string) Priority {
	switch name {
	case "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityMedium
	}
}

func sidecarPath(dir, path string) string {
	sum := md5.Sum([]byte(path))
	return filepath.Join(dir, hex.EncodeToString(sum[:])+".json")
}

func writeSidecar(dir, path string, entry *CacheEntry) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	sc := sidecar{
		Content:     string(entry.Content),
		LastUpdated: entry.LastUpdatedMs,
		ContentHash: entry.ContentHash,
		Priority:    entry.priorityWireName(),
	}
	data, err := json.Marshal(sc)
	if err != nil {
		return err
	}
	return os.WriteFile(sidecarPath(dir, path), data, 0o644)
}

type sidecarEntry struct {
	ContentHash   string
	LastUpdatedMs int64
	Priority      Priority
}

func readSidecar(dir, path string) (*sidecarEntry, error) {
	data, err := os.ReadFile(sidecarPath(dir, path))
	if err != nil {
		return nil, err
	}
	var sc sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	return &sidecarEntry{ContentHash: sc.ContentHash, LastUpdatedMs: sc.LastUpdated, Priority: parsePriorityWireName(sc.Priority)}, nil
}

// watchLocked lazily starts an fsnotify watcher on path's parent directory
// so external modifications invalidate the entry, adapted from the
// teacher's daemon watcher debounce loop and narrowed to a single
// Invalidate call rather than re-indexing.
func (c *Cache) watchLocked(path string) {
	dir := filepath.Dir(path)
	if c.watchedDir[dir] {
		return
	}
	if c.watcher == nil {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			log.Printf("cache: failed to start filesystem watcher: %v", err)
			return
		}
		c.watcher = w
		go c.watchLoop(w)
	}
	if err := c.watcher.Add(dir); err != nil {
		log.Printf("cache: failed to watch %s: %v", dir, err)
		return
	}
	c.watchedDir[dir] = true
}

func (c *Cache) watchLoop(w *fsnotify.Watcher) {
	for {
		select {
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				c.Invalidate(event.Name)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			log.Printf("cache: filesystem watch error: %v", err)
		}
	}
}
