// Package docstore is the persistence gateway for the shared office document.
//
// The Gateway owns the connection to one storage.DocumentBackend and the
// Cache of the last parsed document. Every repository operation is a
// whole-document read-modify-write through Update; background refreshes go
// through Load. There is no cross-process locking: by default the last save
// wins and silently replaces changes made by other writers since our load.
// ConcurrencyStrict turns that case into a *ConflictError for file storage.
package docstore

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/JamesPrial/officedesk/internal/storage"
)

// Concurrency selects how Save treats documents changed by other writers.
type Concurrency int

const (
	// LastWriteWins overwrites the whole document unconditionally.
	LastWriteWins Concurrency = iota
	// Strict refuses to save when the document file's stamp moved since the
	// load that began the update.
	Strict
)

// ParseConcurrency maps a config value to a Concurrency. Unknown values and
// the empty string mean LastWriteWins.
func ParseConcurrency(s string) Concurrency {
	if s == "strict" {
		return Strict
	}
	return LastWriteWins
}

// Options configure a Gateway.
type Options struct {
	// Concurrency defaults to LastWriteWins.
	Concurrency Concurrency

	// Logger receives connection and failure messages (default: stderr logger).
	Logger *log.Logger

	// Metrics is optional.
	Metrics *Metrics
}

// Gateway is the single source of truth for the document in this process.
//
// It is safe for concurrent use. Load and Save are serialized with each other;
// Update additionally serializes whole read-modify-write transactions so that
// in-process mutations never interleave.
type Gateway struct {
	mu        sync.Mutex
	backend   storage.DocumentBackend
	cache     *Cache
	baseStamp int64

	// Last fallback payload behind the cached document. A fallback load
	// with identical bytes keeps the cached document and its version.
	fallbackData  []byte
	fallbackValid bool

	txMu sync.Mutex

	concurrency Concurrency
	logger      *log.Logger
	metrics     *Metrics

	listenersMu sync.Mutex
	onSave      []func(version uint64)
}

// New creates a disconnected Gateway.
func New(opts Options) *Gateway {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[docstore] ", log.LstdFlags)
	}
	return &Gateway{
		cache:       NewCache(),
		baseStamp:   StampUnknown,
		concurrency: opts.Concurrency,
		logger:      logger,
		metrics:     opts.Metrics,
	}
}

// Connect attaches backend and performs a first load to verify access.
//
// On failure the gateway stays disconnected and the returned error wraps both
// ErrNotConnected and the underlying cause.
func (g *Gateway) Connect(ctx context.Context, backend storage.DocumentBackend) error {
	if backend == nil {
		return ErrNotConnected
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.backend = backend
	g.cache.Reset()
	g.baseStamp = StampUnknown
	g.fallbackData, g.fallbackValid = nil, false

	if _, _, err := g.loadLocked(ctx); err != nil {
		g.backend = nil
		g.cache.Reset()
		return fmt.Errorf("%w: %w", ErrNotConnected, err)
	}

	g.logger.Printf("Connected to %s storage at %s", backend.Kind(), backend.Describe())
	return nil
}

// Disconnect drops the backend. The cached document stays readable through
// Cached so the UI can keep showing the last known state.
func (g *Gateway) Disconnect() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.backend == nil {
		return
	}
	g.logger.Printf("Disconnected from %s", g.backend.Describe())
	g.backend = nil
	g.baseStamp = StampUnknown
	g.fallbackData, g.fallbackValid = nil, false
}

// Connected reports whether a backend is attached.
func (g *Gateway) Connected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.backend != nil
}

// Backend returns the attached backend, or nil.
func (g *Gateway) Backend() storage.DocumentBackend {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.backend
}

// Cached returns the last loaded or saved document without any I/O. It
// returns nil before the first successful load.
func (g *Gateway) Cached() *storage.Document {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cache.Doc()
}

// Version returns the cache version. It changes exactly when Load or Save
// replaces the cached document.
func (g *Gateway) Version() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cache.Version()
}

// OnSave registers fn to run after every successful save with the new cache
// version. fn runs on the saving goroutine after internal locks are released.
func (g *Gateway) OnSave(fn func(version uint64)) {
	g.listenersMu.Lock()
	defer g.listenersMu.Unlock()
	g.onSave = append(g.onSave, fn)
}

// Load returns the current document.
//
// For file storage, when the file's stamp equals the cached stamp the cached
// *Document is returned unchanged (same pointer, same Version). Otherwise the
// file is parsed, normalized and cached. Fallback storage is parsed on every
// call; a store without a document yields an empty one.
//
// Returns ErrNotConnected when disconnected and *ReadError when the backend
// read or parse fails.
func (g *Gateway) Load(ctx context.Context) (*storage.Document, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	doc, _, err := g.loadLocked(ctx)
	return doc, err
}

// loadLocked returns the document and the stamp it was observed at.
func (g *Gateway) loadLocked(ctx context.Context) (*storage.Document, int64, error) {
	if g.backend == nil {
		return nil, StampUnknown, ErrNotConnected
	}

	snap, err := g.backend.Read(ctx)
	if err != nil {
		g.metrics.load(resultError)
		return nil, StampUnknown, &ReadError{Location: g.backend.Describe(), Err: err}
	}

	if g.backend.Kind() == storage.KindFallback {
		if cached := g.cache.Doc(); cached != nil && g.fallbackValid && bytes.Equal(snap.Data, g.fallbackData) {
			g.metrics.load(resultCacheHit)
			return cached, StampUnknown, nil
		}
		doc := storage.EmptyDocument()
		if snap.Exists {
			if doc, err = storage.Parse(snap.Data); err != nil {
				g.metrics.load(resultError)
				return nil, StampUnknown, &ReadError{Location: g.backend.Describe(), Err: err}
			}
			g.noteUndecoded(doc)
		}
		g.metrics.load(resultReparse)
		g.cache.Store(doc, StampUnknown)
		g.fallbackData, g.fallbackValid = bytes.Clone(snap.Data), true
		g.metrics.setVersion(g.cache.Version())
		return doc, StampUnknown, nil
	}

	g.baseStamp = snap.Stamp
	if !g.cache.ShouldReparse(snap.Stamp) {
		g.metrics.load(resultCacheHit)
		return g.cache.Doc(), snap.Stamp, nil
	}

	doc, err := storage.Parse(snap.Data)
	if err != nil {
		g.metrics.load(resultError)
		return nil, StampUnknown, &ReadError{Location: g.backend.Describe(), Err: err}
	}
	g.noteUndecoded(doc)
	g.cache.Store(doc, snap.Stamp)
	g.metrics.load(resultReparse)
	g.metrics.setVersion(g.cache.Version())
	return doc, snap.Stamp, nil
}

// Save writes doc as the whole document.
//
// The cache is updated first with the stamp reset to StampUnknown, so the next
// load re-reads storage instead of trusting a predicted stamp. If the write
// fails the cache is rolled back and *WriteError is returned; the previous
// document stays visible.
func (g *Gateway) Save(ctx context.Context, doc *storage.Document) error {
	g.mu.Lock()
	version, err := g.saveLocked(ctx, doc, g.baseStamp)
	g.mu.Unlock()

	if err != nil {
		return err
	}
	g.notifySaved(version)
	return nil
}

func (g *Gateway) saveLocked(ctx context.Context, doc *storage.Document, expectedStamp int64) (uint64, error) {
	if g.backend == nil {
		return 0, ErrNotConnected
	}

	doc = storage.Normalize(doc)
	data, err := doc.Marshal()
	if err != nil {
		g.metrics.save(resultError)
		return 0, &WriteError{Location: g.backend.Describe(), Err: err}
	}

	if err := g.checkConflictLocked(ctx, expectedStamp); err != nil {
		return 0, err
	}

	prev := g.cache.save()
	g.cache.Store(doc, StampUnknown)

	if err := g.backend.Write(ctx, data); err != nil {
		g.cache.restore(prev)
		g.metrics.save(resultError)
		g.logger.Printf("Save failed, cache rolled back to version %d: %v", prev.version, err)
		return 0, &WriteError{Location: g.backend.Describe(), Err: err}
	}

	g.baseStamp = StampUnknown
	if g.backend.Kind() == storage.KindFallback {
		g.fallbackData, g.fallbackValid = data, true
	}
	g.metrics.save(resultOK)
	g.metrics.setVersion(g.cache.Version())
	return g.cache.Version(), nil
}

// checkConflictLocked enforces Strict mode for file storage. A save with no
// observed stamp (no load since the last save) is not checked.
func (g *Gateway) checkConflictLocked(ctx context.Context, expectedStamp int64) error {
	if g.concurrency != Strict || g.backend.Kind() != storage.KindFile || expectedStamp == StampUnknown {
		return nil
	}
	sr, ok := g.backend.(storage.StampReader)
	if !ok {
		return nil
	}

	current, err := sr.Stamp(ctx)
	if err != nil {
		g.metrics.save(resultError)
		return &WriteError{Location: g.backend.Describe(), Err: err}
	}
	if current != expectedStamp {
		g.metrics.save(resultConflict)
		return &ConflictError{ExpectedStamp: expectedStamp, CurrentStamp: current}
	}
	return nil
}

// Update runs one read-modify-write transaction.
//
// fn receives the current document and returns the document to save. It must
// not modify its argument in place; use the storage.Document With* helpers.
// Returning the argument itself (or nil) skips the save. The saved document
// is returned.
func (g *Gateway) Update(ctx context.Context, fn func(doc *storage.Document) (*storage.Document, error)) (*storage.Document, error) {
	g.txMu.Lock()
	defer g.txMu.Unlock()

	g.mu.Lock()
	doc, stamp, err := g.loadLocked(ctx)
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}

	next, err := fn(doc)
	if err != nil {
		return nil, err
	}
	if next == nil || next == doc {
		return doc, nil
	}

	g.mu.Lock()
	version, err := g.saveLocked(ctx, next, stamp)
	saved := g.cache.Doc()
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}

	g.notifySaved(version)
	return saved, nil
}

func (g *Gateway) noteUndecoded(doc *storage.Document) {
	if n := doc.UndecodedCount(); n > 0 {
		g.logger.Printf("Kept %d undecodable elements of %s unchanged", n, g.backend.Describe())
	}
}

func (g *Gateway) notifySaved(version uint64) {
	g.listenersMu.Lock()
	listeners := make([]func(uint64), len(g.onSave))
	copy(listeners, g.onSave)
	g.listenersMu.Unlock()

	for _, fn := range listeners {
		fn(version)
	}
}
