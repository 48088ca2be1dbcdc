package docstore

import "github.com/JamesPrial/officedesk/internal/storage"

// StampUnknown marks a cache whose stamp has not been observed from storage.
// It never equals a real modification stamp, so the next file load re-reads
// and re-parses.
const StampUnknown int64 = -1

// Cache holds the last parsed document and the stamp it was read at.
//
// A load whose stamp matches returns the cached *Document unchanged, so
// callers can compare pointers (or Version) to skip re-rendering. Cache is
// not safe for concurrent use; Gateway guards it.
type Cache struct {
	doc     *storage.Document
	stamp   int64
	version uint64
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{stamp: StampUnknown}
}

// ShouldReparse reports whether a document read at newStamp must be parsed.
// It is false only when a document is cached and was read at newStamp.
func (c *Cache) ShouldReparse(newStamp int64) bool {
	return c.doc == nil || newStamp != c.stamp
}

// Store replaces the cached document and bumps the version.
func (c *Cache) Store(doc *storage.Document, stamp int64) {
	c.doc = doc
	c.stamp = stamp
	c.version++
}

// Doc returns the cached document, or nil.
func (c *Cache) Doc() *storage.Document { return c.doc }

// Stamp returns the stamp the cached document was read at.
func (c *Cache) Stamp() int64 { return c.stamp }

// Version increases every time the cached document is replaced.
func (c *Cache) Version() uint64 { return c.version }

// Reset forgets the cached document. The version keeps counting.
func (c *Cache) Reset() {
	c.doc = nil
	c.stamp = StampUnknown
}

type cacheState struct {
	doc     *storage.Document
	stamp   int64
	version uint64
}

func (c *Cache) save() cacheState {
	return cacheState{doc: c.doc, stamp: c.stamp, version: c.version}
}

func (c *Cache) restore(s cacheState) {
	c.doc = s.doc
	c.stamp = s.stamp
	c.version = s.version
}
