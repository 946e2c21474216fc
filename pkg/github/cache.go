package github

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Compile-time interface check.
var _ API = (*CachedClient)(nil)

type cacheEntry struct {
	value     any
	fetchedAt time.Time
}

// CachedClient wraps an API with a TTL cache. Concurrent misses for the
// same key share one upstream request, which is not cancelled when the
// caller that started it goes away. A failed refresh never evicts a
// previously cached value: the stale value is served instead, and the
// error is only returned when nothing was cached yet.
type CachedClient struct {
	log        logrus.FieldLogger
	api        API
	reposTTL   time.Duration
	profileTTL time.Duration
	now        func() time.Time

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// NewCachedClient creates a CachedClient.
func NewCachedClient(
	log logrus.FieldLogger,
	api API,
	reposTTL, profileTTL time.Duration,
) *CachedClient {
	return &CachedClient{
		log:        log.WithField("component", "github-cache"),
		api:        api,
		reposTTL:   reposTTL,
		profileTTL: profileTTL,
		now:        time.Now,
		cache:      make(map[string]cacheEntry, 2),
	}
}

// ListRepos returns cached repositories, refreshing them once the TTL
// has elapsed.
func (c *CachedClient) ListRepos(ctx context.Context, owner string) ([]Repo, error) {
	v, err := c.load(ctx, "repos:"+owner, c.reposTTL, func(ctx context.Context) (any, error) {
		return c.api.ListRepos(ctx, owner)
	})
	if err != nil {
		return nil, err
	}

	repos := v.([]Repo)
	out := make([]Repo, len(repos))
	copy(out, repos)

	return out, nil
}

// GetUser returns the cached profile, refreshing it once the TTL has
// elapsed.
func (c *CachedClient) GetUser(ctx context.Context, owner string) (*User, error) {
	v, err := c.load(ctx, "user:"+owner, c.profileTTL, func(ctx context.Context) (any, error) {
		return c.api.GetUser(ctx, owner)
	})
	if err != nil {
		return nil, err
	}

	user := *v.(*User)

	return &user, nil
}

// Invalidate drops every cached entry.
func (c *CachedClient) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache = make(map[string]cacheEntry, 2)
}

func (c *CachedClient) load(
	ctx context.Context,
	key string,
	ttl time.Duration,
	fetch func(context.Context) (any, error),
) (any, error) {
	c.mu.RLock()
	entry, ok := c.cache[key]
	c.mu.RUnlock()

	if ok && c.now().Sub(entry.fetchedAt) < ttl {
		return entry.value, nil
	}

	fetchCtx := context.WithoutCancel(ctx)

	v, err, shared := c.group.Do(key, func() (any, error) {
		value, err := fetch(fetchCtx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.cache[key] = cacheEntry{value: value, fetchedAt: c.now()}
		c.mu.Unlock()

		return value, nil
	})
	if err != nil {
		if ok {
			c.log.WithError(err).
				WithField("key", key).
				WithField("age", c.now().Sub(entry.fetchedAt)).
				Warn("GitHub refresh failed, serving stale entry")

			return entry.value, nil
		}

		c.log.WithError(err).WithField("key", key).Warn("GitHub refresh failed")

		return nil, err
	}

	if shared {
		c.log.WithField("key", key).Debug("Shared in-flight GitHub refresh")
	}

	return v, nil
}
