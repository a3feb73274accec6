package metrics

import "time"

// StoreSource is the slice of *partition.Store that the collector samples.
// Defined here rather than imported so this package stays a leaf dependency
// (internal/index and internal/partition both import metrics to report
// cache hits and mutation outcomes; importing partition back would cycle).
type StoreSource interface {
	Count() (int, error)
	SystemIndexCounts() (map[string]int, error)
	UserIndexCounts() (map[string]int, error)
	CacheLen() int
	IsPoisoned() bool
}

// Collector periodically samples a store's size and consistency state into
// the package's gauges.
type Collector struct {
	store  StoreSource
	stopCh chan struct{}
}

// NewCollector creates a collector for store.
func NewCollector(store StoreSource) *Collector {
	return &Collector{
		store:  store,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics on a 15s tick, sampling once immediately.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectEntryMetrics()
	c.collectIndexMetrics()
	c.collectCacheMetrics()
	c.collectConsistencyMetrics()
}

func (c *Collector) collectEntryMetrics() {
	n, err := c.store.Count()
	if err != nil {
		return
	}
	EntriesTotal.Set(float64(n))
}

func (c *Collector) collectIndexMetrics() {
	counts, err := c.store.SystemIndexCounts()
	if err == nil {
		for name, n := range counts {
			IndexEntriesTotal.WithLabelValues(name).Set(float64(n))
		}
	}

	userCounts, err := c.store.UserIndexCounts()
	if err != nil {
		return
	}
	for oid, n := range userCounts {
		IndexEntriesTotal.WithLabelValues("userindex_"+oid).Set(float64(n))
	}
}

func (c *Collector) collectCacheMetrics() {
	RecordCacheSize.Set(float64(c.store.CacheLen()))
}

func (c *Collector) collectConsistencyMetrics() {
	if c.store.IsPoisoned() {
		StoreInconsistent.Set(1)
	} else {
		StoreInconsistent.Set(0)
	}
}
