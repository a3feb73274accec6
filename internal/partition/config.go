package partition

import "github.com/cuemby/dirstore/pkg/entry"

// IndexedAttribute configures one user index (spec §6's indexedAttributes
// option): attrId names the attribute (resolved to an OID via the schema),
// cacheSize bounds its forward-lookup LRU (0 disables caching), and
// duplicateLimit tunes the B+tree duplicate threshold (<=0 defaults to 512).
type IndexedAttribute struct {
	AttrID         string
	CacheSize      int
	DuplicateLimit int
}

// Config is the partition's configuration (spec §6). It is immutable once
// passed to Open; changing any field afterward has no effect on a live
// Store — construct a new Config and Open a new Store instead.
type Config struct {
	// WorkingDirectory is the root path for master.db and index sidecars.
	WorkingDirectory string
	// CacheSize bounds the record manager's LRU page cache and the ndn/updn
	// forward-lookup caches. Defaults to 10000 when <= 0.
	CacheSize int
	// SyncOnWrite commits after every mutation when true.
	SyncOnWrite bool
	// Name is a diagnostic label for this partition.
	Name string
	// SuffixDN is the partition's root DN, required.
	SuffixDN string
	// ContextEntry seeds the suffix entry when the store is freshly
	// initialized and no suffix entry exists on disk yet. May be nil if
	// the caller will Add the suffix entry itself.
	ContextEntry *entry.Entry
	// IndexedAttributes lists the user indices to maintain.
	IndexedAttributes []IndexedAttribute
}

func (c Config) cacheSize() int {
	if c.CacheSize <= 0 {
		return 10000
	}
	return c.CacheSize
}
