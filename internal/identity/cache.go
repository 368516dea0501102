// Package identity maps opaque NodeIDs to live native element handles.
//
// The cache is not safe for concurrent use. It is owned by the worker
// goroutine that also owns the native handles, so every method must be called
// from that goroutine.
package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mj1618/ax-mcp/internal/model"
)

// DefaultTTL is how long an entry survives without being observed or resolved.
const DefaultTTL = 30 * time.Second

// Handles is the part of a backend the cache needs to compare, probe and
// release native handles.
type Handles[H any] interface {
	// IdentityKey returns a bucket key. Equal elements must share a key;
	// unequal elements may collide and are told apart by SameElement.
	IdentityKey(h H) string
	SameElement(a, b H) bool
	Alive(h H) bool
	Release(h H)
}

type entry[H any] struct {
	id       model.NodeID
	key      string
	handle   H
	lastSeen time.Time
	pinned   bool
}

type settings struct {
	ttl   time.Duration
	now   func() time.Time
	newID func() model.NodeID
}

// Option configures a Cache.
type Option func(*settings)

// WithTTL sets the sliding expiry. Zero or negative keeps DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(s *settings) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// WithIDGenerator overrides NodeID minting.
func WithIDGenerator(gen func() model.NodeID) Option {
	return func(s *settings) { s.newID = gen }
}

// NewID mints a short random NodeID.
func NewID() model.NodeID {
	return model.NodeID("n-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

// Cache assigns NodeIDs to native handles and resolves them back.
type Cache[H any] struct {
	handles   Handles[H]
	ttl       time.Duration
	now       func() time.Time
	newID     func() model.NodeID
	byID      map[model.NodeID]*entry[H]
	byKey     map[string][]*entry[H]
	lastSweep time.Time
	onEvict   []func(model.NodeID)
}

// New returns an empty cache.
func New[H any](handles Handles[H], opts ...Option) *Cache[H] {
	s := settings{ttl: DefaultTTL, now: time.Now, newID: NewID}
	for _, o := range opts {
		o(&s)
	}
	return &Cache[H]{
		handles: handles,
		ttl:     s.ttl,
		now:     s.now,
		newID:   s.newID,
		byID:    make(map[model.NodeID]*entry[H]),
		byKey:   make(map[string][]*entry[H]),
	}
}

// OnEvict registers fn to be called with every evicted id.
func (c *Cache[H]) OnEvict(fn func(model.NodeID)) {
	c.onEvict = append(c.onEvict, fn)
}

// Len returns the number of live entries.
func (c *Cache[H]) Len() int { return len(c.byID) }

// Intern returns the id for h, reusing the id of an existing entry for the
// same element or minting a new one. The cache takes ownership of h: when an
// entry already exists, h is released and the stored handle is returned.
func (c *Cache[H]) Intern(h H) (model.NodeID, H) {
	now := c.now()
	c.maybeSweep(now)

	key := c.handles.IdentityKey(h)
	for _, e := range c.byKey[key] {
		if c.expired(e, now) {
			continue
		}
		if c.handles.SameElement(e.handle, h) {
			e.lastSeen = now
			c.handles.Release(h)
			return e.id, e.handle
		}
	}

	id := c.newID()
	for _, taken := c.byID[id]; taken; _, taken = c.byID[id] {
		id = c.newID()
	}
	e := &entry[H]{id: id, key: key, handle: h, lastSeen: now}
	c.byID[id] = e
	c.byKey[key] = append(c.byKey[key], e)
	return id, h
}

// Resolve returns the handle for id. Expired or dead entries are evicted and
// reported as NotFound.
func (c *Cache[H]) Resolve(id model.NodeID) (H, error) {
	var zero H
	e, ok := c.byID[id]
	if !ok {
		return zero, model.NotFound(id)
	}
	now := c.now()
	if c.expired(e, now) || !c.handles.Alive(e.handle) {
		c.evict(e)
		return zero, model.NotFound(id)
	}
	e.lastSeen = now
	return e.handle, nil
}

// Pin exempts id from TTL expiry. It is still evicted when its element dies.
func (c *Cache[H]) Pin(id model.NodeID) {
	if e, ok := c.byID[id]; ok {
		e.pinned = true
	}
}

// Forget evicts id immediately.
func (c *Cache[H]) Forget(id model.NodeID) {
	if e, ok := c.byID[id]; ok {
		c.evict(e)
	}
}

// Sweep evicts every expired entry and returns how many were removed.
func (c *Cache[H]) Sweep() int {
	now := c.now()
	c.lastSweep = now
	var stale []*entry[H]
	for _, e := range c.byID {
		if c.expired(e, now) {
			stale = append(stale, e)
		}
	}
	for _, e := range stale {
		c.evict(e)
	}
	return len(stale)
}

// Reset evicts everything, e.g. after the backend reconnected and every
// handle became meaningless.
func (c *Cache[H]) Reset() {
	for _, e := range c.byID {
		c.handles.Release(e.handle)
		c.notify(e.id)
	}
	c.byID = make(map[model.NodeID]*entry[H])
	c.byKey = make(map[string][]*entry[H])
}

func (c *Cache[H]) expired(e *entry[H], now time.Time) bool {
	return !e.pinned && now.Sub(e.lastSeen) > c.ttl
}

func (c *Cache[H]) maybeSweep(now time.Time) {
	if now.Sub(c.lastSweep) >= c.ttl/2 {
		c.Sweep()
	}
}

func (c *Cache[H]) evict(e *entry[H]) {
	delete(c.byID, e.id)
	bucket := c.byKey[e.key]
	for i, other := range bucket {
		if other == e {
			bucket = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(bucket) == 0 {
		delete(c.byKey, e.key)
	} else {
		c.byKey[e.key] = bucket
	}
	c.handles.Release(e.handle)
	c.notify(e.id)
}

func (c *Cache[H]) notify(id model.NodeID) {
	for _, fn := range c.onEvict {
		fn(id)
	}
}
