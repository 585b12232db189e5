package cache

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/utils/clock"

	"github.com/petr-muller/jirastats/internal/jirastats/issues"
)

var (
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jirastats_result_cache_lookups_total",
		Help: "Total result cache lookups by outcome",
	}, []string{"outcome"}) // "hit", "miss" or "expired"

	cacheFetchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jirastats_result_cache_fetch_errors_total",
		Help: "Total fetches behind a cache miss that failed",
	})

	cacheFlushes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jirastats_result_cache_flushes_total",
		Help: "Total manual cache flushes",
	})
)

// Fetcher produces the payload for a query on a cache miss
type Fetcher interface {
	Fetch(ctx context.Context, query issues.Query) (*issues.Payload, error)
}

// Fingerprint identifies a query, its field projection and mode
type Fingerprint uint64

func (f Fingerprint) String() string {
	return strconv.FormatUint(uint64(f), 16)
}

// FingerprintOf computes a stable fingerprint of the query. Whitespace in the
// JQL and the order or repetition of fields do not change the fingerprint.
func FingerprintOf(query issues.Query) Fingerprint {
	h := xxhash.New()
	_, _ = h.WriteString(strings.Join(strings.Fields(query.JQL), " "))
	_, _ = h.Write([]byte{0})
	for _, field := range sets.List(sets.New(query.Fields...)) {
		_, _ = h.WriteString(field)
		_, _ = h.Write([]byte{0})
	}
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(query.Mode.String())
	return Fingerprint(h.Sum64())
}

// Entry is a stored result. Entries are never modified after they are written.
type Entry struct {
	Payload *issues.Payload
	Created time.Time
	Expires time.Time
}

// Cache memoizes query results for a fixed time window. Stale entries are
// detected lazily when the same query is requested again; nothing sweeps them.
type Cache struct {
	fetcher Fetcher
	ttl     time.Duration
	clock   clock.PassiveClock
	logger  *logrus.Entry

	lock    sync.Mutex
	entries map[Fingerprint]Entry
	// inflight collapses concurrent misses of one fingerprint into one fetch
	inflight singleflight.Group
}

// Options configure the cache
type Options struct {
	TTL    time.Duration
	Clock  clock.PassiveClock
	Logger *logrus.Entry
}

// New creates an empty cache in front of fetcher
func New(fetcher Fetcher, opts Options) *Cache {
	c := &Cache{
		fetcher: fetcher,
		ttl:     opts.TTL,
		clock:   opts.Clock,
		logger:  opts.Logger,
		entries: map[Fingerprint]Entry{},
	}
	if c.clock == nil {
		c.clock = clock.RealClock{}
	}
	if c.logger == nil {
		c.logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return c
}

// GetOrFetch returns the live cached payload for query, fetching and storing
// it when there is none. Failed fetches are not stored.
func (c *Cache) GetOrFetch(ctx context.Context, query issues.Query) (*issues.Payload, error) {
	fingerprint := FingerprintOf(query)
	logger := c.logger.WithField("fingerprint", fingerprint.String())

	if entry, ok := c.lookup(fingerprint); ok {
		logger.Debug("Serving search result from cache")
		return entry.Payload, nil
	}

	// The shared fetch outlives the caller that started it, page timeouts bound it
	fetchCtx := context.WithoutCancel(ctx)
	results := c.inflight.DoChan(fingerprint.String(), func() (interface{}, error) {
		payload, err := c.fetcher.Fetch(fetchCtx, query)
		if err != nil {
			cacheFetchErrors.Inc()
			return nil, err
		}
		c.store(fingerprint, payload)
		return payload, nil
	})

	select {
	case <-ctx.Done():
		logger.Debug("Stopped waiting for the fetch, caller context is done")
		return nil, ctx.Err()
	case result := <-results:
		if result.Err != nil {
			return nil, result.Err
		}
		if result.Shared {
			logger.Debug("Shared an in-flight fetch")
		}
		return result.Val.(*issues.Payload), nil
	}
}

// Get returns the live entry for query, if any
func (c *Cache) Get(query issues.Query) (Entry, bool) {
	return c.lookup(FingerprintOf(query))
}

func (c *Cache) lookup(fingerprint Fingerprint) (Entry, bool) {
	c.lock.Lock()
	entry, ok := c.entries[fingerprint]
	c.lock.Unlock()

	switch {
	case !ok:
		cacheLookups.WithLabelValues("miss").Inc()
		return Entry{}, false
	case !c.clock.Now().Before(entry.Expires):
		cacheLookups.WithLabelValues("expired").Inc()
		return Entry{}, false
	default:
		cacheLookups.WithLabelValues("hit").Inc()
		return entry, true
	}
}

func (c *Cache) store(fingerprint Fingerprint, payload *issues.Payload) {
	now := c.clock.Now()
	c.lock.Lock()
	defer c.lock.Unlock()
	c.entries[fingerprint] = Entry{Payload: payload, Created: now, Expires: now.Add(c.ttl)}
}

// Flush drops all entries
func (c *Cache) Flush() {
	c.lock.Lock()
	dropped := len(c.entries)
	c.entries = map[Fingerprint]Entry{}
	c.lock.Unlock()

	cacheFlushes.Inc()
	c.logger.WithField("entries", dropped).Info("Flushed result cache")
}

// Len returns the number of stored entries, stale ones included
func (c *Cache) Len() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.entries)
}
