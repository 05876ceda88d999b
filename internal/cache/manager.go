// Package cache implements the Query Facade's in-process result cache: an
// entry is keyed by operation name, normalized arguments, and the store's
// current watermark, so a build or refresh that advances a watermark
// invalidates every cached answer computed before it without an explicit
// invalidation call. Writes that leave every watermark unchanged need Flush.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/repokg/repokg/internal/config"
)

// Manager is a TTL-bounded cache of Query Facade results.
type Manager struct {
	logger *logrus.Logger
	mem    *gocache.Cache
	ttl    time.Duration
}

func NewManager(cfg *config.Config, logger *logrus.Logger) *Manager {
	ttl := cfg.Cache.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Manager{
		logger: logger,
		mem:    gocache.New(ttl, 2*ttl),
		ttl:    ttl,
	}
}

// Key builds a cache key from an operation name, its argument string, and
// the watermark the answer was computed against.
func Key(operation, args, watermark string) string {
	h := sha256.New()
	h.Write([]byte(operation))
	h.Write([]byte{0})
	h.Write([]byte(args))
	h.Write([]byte{0})
	h.Write([]byte(watermark))
	return fmt.Sprintf("%s:%s", operation, hex.EncodeToString(h.Sum(nil))[:16])
}

// Get returns a previously cached value for key, if still live.
func (m *Manager) Get(key string) (interface{}, bool) {
	return m.mem.Get(key)
}

// Set stores value under key with the manager's default TTL.
func (m *Manager) Set(key string, value interface{}) {
	m.mem.SetDefault(key, value)
}

// Flush discards every cached entry, used after the facade's direct-write
// path changes the graph without advancing any watermark, when cached
// answers could otherwise outlive the data they summarize.
func (m *Manager) Flush() {
	m.mem.Flush()
	if m.logger != nil {
		m.logger.Debug("query cache flushed")
	}
}

// ItemCount reports how many entries are currently cached.
func (m *Manager) ItemCount() int {
	return m.mem.ItemCount()
}
