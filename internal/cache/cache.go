package cache

import (
	"sort"
	"strings"
	"sync"

	"github.com/yourusername/k8s-console/internal/model"
	"go.uber.org/zap"
)

// ResourceCache materializes a watch stream into an ordered snapshot.
// One cache exists per watch target and it is replaced wholesale when the
// target changes.
type ResourceCache struct {
	target  model.Target
	items   map[model.Key]model.ResourceItem
	stale   bool
	offline bool
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewResourceCache creates an empty cache for a target
func NewResourceCache(target model.Target, logger *zap.Logger) *ResourceCache {
	return &ResourceCache{
		target: target,
		items:  make(map[model.Key]model.ResourceItem),
		logger: logger,
	}
}

// Target returns the subscription the cache belongs to
func (c *ResourceCache) Target() model.Target {
	return c.target
}

// Apply folds a single watch event into the cache
func (c *ResourceCache) Apply(eventType model.EventType, item model.ResourceItem) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := item.Key()
	switch eventType {
	case model.EventAdded:
		c.items[key] = item
	case model.EventModified:
		if _, ok := c.items[key]; !ok {
			c.logger.Debug("Modified event for unknown key, treating as added",
				zap.Stringer("target", c.target),
				zap.Stringer("key", key),
			)
		}
		c.items[key] = item
	case model.EventDeleted:
		delete(c.items, key)
	default:
		c.logger.Debug("Ignoring event", zap.String("type", string(eventType)))
	}
}

// Resync replaces the contents with an authoritative list and clears the
// stale and offline flags
func (c *ResourceCache) Resync(items []model.ResourceItem) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[model.Key]model.ResourceItem, len(items))
	for _, item := range items {
		c.items[item.Key()] = item
	}
	c.stale = false
	c.offline = false

	c.logger.Debug("Cache resynced",
		zap.Stringer("target", c.target),
		zap.Int("items", len(items)),
	)
}

// Snapshot returns items whose name contains filter (case-insensitive),
// sorted by key
func (c *ResourceCache) Snapshot(filter string) []model.ResourceItem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return filterItems(c.sortedLocked(), filter)
}

// Get returns the item stored under key
func (c *ResourceCache) Get(key model.Key) (model.ResourceItem, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[key]
	return item, ok
}

// Len returns the number of cached items
func (c *ResourceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Clear drops every item
func (c *ResourceCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[model.Key]model.ResourceItem)
	c.logger.Debug("Cache cleared", zap.Stringer("target", c.target))
}

// MarkStale flags the contents as possibly outdated while the watch reconnects
func (c *ResourceCache) MarkStale() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stale = true
}

// MarkOffline clears the cache after the stale window has elapsed
func (c *ResourceCache) MarkOffline() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[model.Key]model.ResourceItem)
	c.stale = true
	c.offline = true
	c.logger.Info("Cache marked offline", zap.Stringer("target", c.target))
}

// Stale reports whether the contents may be outdated
func (c *ResourceCache) Stale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stale
}

// Offline reports whether the cache was dropped for lack of connectivity
func (c *ResourceCache) Offline() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offline
}

// View returns an immutable copy of the cache
func (c *ResourceCache) View() View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return View{
		Target:  c.target,
		Items:   c.sortedLocked(),
		Stale:   c.stale,
		Offline: c.offline,
	}
}

func (c *ResourceCache) sortedLocked() []model.ResourceItem {
	items := make([]model.ResourceItem, 0, len(c.items))
	for _, item := range c.items {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Key().Less(items[j].Key())
	})
	return items
}

// View is a point-in-time copy of a ResourceCache. Items are sorted by key.
type View struct {
	Target  model.Target
	Items   []model.ResourceItem
	Stale   bool
	Offline bool
}

// Get looks up an item by key
func (v View) Get(key model.Key) (model.ResourceItem, bool) {
	i := sort.Search(len(v.Items), func(i int) bool {
		return !v.Items[i].Key().Less(key)
	})
	if i < len(v.Items) && v.Items[i].Key() == key {
		return v.Items[i], true
	}
	return model.ResourceItem{}, false
}

// Filter returns items whose name contains text, case-insensitively
func (v View) Filter(text string) []model.ResourceItem {
	return filterItems(v.Items, text)
}

// Len returns the number of items in the view
func (v View) Len() int {
	return len(v.Items)
}

func filterItems(items []model.ResourceItem, text string) []model.ResourceItem {
	if text == "" {
		out := make([]model.ResourceItem, len(items))
		copy(out, items)
		return out
	}
	needle := strings.ToLower(text)
	out := make([]model.ResourceItem, 0, len(items))
	for _, item := range items {
		if strings.Contains(strings.ToLower(item.Name), needle) {
			out = append(out, item)
		}
	}
	return out
}
