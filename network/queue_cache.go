package network

import (
	"slices"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// queueDepthCache keeps queue depth estimates per label set so that pools
// sharing a platform do not each hit the jobs API on every tick.
// A zero TTL disables caching.
type queueDepthCache struct {
	cache *gocache.Cache
}

func newQueueDepthCache(ttl time.Duration) *queueDepthCache {
	if ttl <= 0 {
		return &queueDepthCache{}
	}

	return &queueDepthCache{
		cache: gocache.New(ttl, 2*ttl),
	}
}

func (c *queueDepthCache) get(labels []string, fetch func() (int, error)) (int, error) {
	if c.cache == nil {
		return fetch()
	}

	key := labelsKey(labels)

	if depth, ok := c.cache.Get(key); ok {
		return depth.(int), nil
	}

	depth, err := fetch()
	if err != nil {
		return 0, err
	}

	c.cache.SetDefault(key, depth)

	return depth, nil
}

func labelsKey(labels []string) string {
	sorted := slices.Clone(labels)
	slices.Sort(sorted)

	return strings.Join(slices.Compact(sorted), ",")
}

// labelsMatch reports whether a job asking for required labels can be picked
// up by a runner offering offered. Labels compare case-insensitively and
// anything after a colon (act_runner's "label:docker://image" form) is
// ignored.
func labelsMatch(required []string, offered []string) bool {
	available := make(map[string]struct{}, len(offered))
	for _, label := range offered {
		available[labelName(label)] = struct{}{}
	}

	for _, label := range required {
		if _, ok := available[labelName(label)]; !ok {
			return false
		}
	}

	return true
}

func labelName(label string) string {
	name, _, _ := strings.Cut(label, ":")
	return strings.ToLower(strings.TrimSpace(name))
}
