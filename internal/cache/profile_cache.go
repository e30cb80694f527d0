package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// ProfileCache remembers which contacts had their display profile refreshed
// recently. Entries expire on the configured TTL, after which the next
// inbound message triggers another profile write.
type ProfileCache struct {
	entries *gocache.Cache
}

// NewProfileCache creates a profile freshness cache with the given TTL.
func NewProfileCache(ttl time.Duration) *ProfileCache {
	return &ProfileCache{
		entries: gocache.New(ttl, 2*ttl),
	}
}

// IsFresh reports whether the contact's profile was refreshed within the TTL.
func (c *ProfileCache) IsFresh(contactID string) bool {
	_, found := c.entries.Get(contactID)
	return found
}

// MarkFresh records that the contact's profile was just refreshed.
func (c *ProfileCache) MarkFresh(contactID string) {
	c.entries.SetDefault(contactID, struct{}{})
}
