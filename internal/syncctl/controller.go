// Package syncctl drives periodic reloads of the shared document and decides
// when they must pause.
//
// While any editing surface is open the controller is Suspended and no
// background reload runs, so a reload never replaces form state the user is
// editing. Closing the last surface resumes polling and issues one immediate
// reload. A failed reload means file access was lost: the controller moves to
// Disconnected, stops its loop and tells the OnDisconnect listeners.
package syncctl

import (
	"context"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JamesPrial/officedesk/internal/storage"
)

// DefaultInterval is the poll cadence.
const DefaultInterval = 3 * time.Second

// State is the controller's polling state.
type State int

const (
	// Stopped means Start has not been called or Stop has run.
	Stopped State = iota
	// Polling reloads on every tick.
	Polling
	// Suspended skips ticks because a surface is open.
	Suspended
	// Disconnected means a reload failed; Start must be called again after
	// reconnecting.
	Disconnected
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Polling:
		return "polling"
	case Suspended:
		return "suspended"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Refresher is the load path the controller drives. *docstore.Gateway
// implements it.
type Refresher interface {
	Connected() bool
	Load(ctx context.Context) (*storage.Document, error)
	Version() uint64
}

// Ticker abstracts time.Ticker so tests can drive ticks by hand.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// Options configure a Controller.
type Options struct {
	// Interval defaults to DefaultInterval.
	Interval time.Duration

	// WatchPath, when set, also reloads whenever that file changes on disk.
	WatchPath string

	Logger *log.Logger

	// NewTicker replaces time.NewTicker.
	NewTicker func(d time.Duration) Ticker
}

// Status is a point-in-time view of the controller.
type Status struct {
	State        State
	OpenSurfaces []Surface
	Version      uint64
	LastReload   time.Time
	LastError    error
}

// Controller runs the poll loop. All methods are safe for concurrent use.
type Controller struct {
	source    Refresher
	interval  time.Duration
	watchPath string
	logger    *log.Logger
	newTicker func(time.Duration) Ticker

	inFlight atomic.Bool

	mu          sync.Mutex
	state       State
	open        map[Surface]int
	lastVersion uint64
	lastReload  time.Time
	lastErr     error
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}

	listenersMu  sync.Mutex
	onChange     []func(doc *storage.Document, version uint64)
	onDisconnect []func(err error)
	onState      []func(State)
}

// New creates a stopped controller over source.
func New(source Refresher, opts Options) *Controller {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	newTicker := opts.NewTicker
	if newTicker == nil {
		newTicker = func(d time.Duration) Ticker { return realTicker{time.NewTicker(d)} }
	}
	return &Controller{
		source:    source,
		interval:  interval,
		watchPath: opts.WatchPath,
		logger:    logger,
		newTicker: newTicker,
		open:      make(map[Surface]int),
	}
}

// OnChange registers fn to receive every reloaded document whose version
// differs from the last one delivered.
func (c *Controller) OnChange(fn func(doc *storage.Document, version uint64)) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.onChange = append(c.onChange, fn)
}

// OnDisconnect registers fn to run when a reload fails.
func (c *Controller) OnDisconnect(fn func(err error)) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.onDisconnect = append(c.onDisconnect, fn)
}

// OnStateChange registers fn to run after every state transition.
func (c *Controller) OnStateChange(fn func(State)) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.onState = append(c.onState, fn)
}

// Start begins polling. Calling Start while the loop runs does nothing. After
// a disconnect, Start resumes polling once the source is reconnected.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return nil
	}

	var watcher *fileWatcher
	if c.watchPath != "" {
		w, err := newFileWatcher(c.watchPath)
		if err != nil {
			c.mu.Unlock()
			return err
		}
		watcher = w
	}

	loopCtx, cancel := context.WithCancel(ctx)
	c.ctx = loopCtx
	c.cancel = cancel
	c.done = make(chan struct{})
	c.lastErr = nil
	c.lastVersion = c.source.Version()
	next := Polling
	if c.openCountLocked() > 0 {
		next = Suspended
	}
	changed := c.setStateLocked(next)
	ticker := c.newTicker(c.interval)
	done := c.done
	c.mu.Unlock()

	c.emitState(changed)
	go c.loop(loopCtx, ticker, watcher, done)
	return nil
}

// Stop ends polling and waits for the loop to exit. It is idempotent.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel = nil
	changed := false
	if c.state != Disconnected {
		changed = c.setStateLocked(Stopped)
	}
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	c.emitState(changed)
}

func (c *Controller) loop(ctx context.Context, ticker Ticker, watcher *fileWatcher, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	var changes <-chan struct{}
	if watcher != nil {
		defer watcher.close()
		changes = watcher.changes
		go watcher.run(ctx, c.logger)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			c.Tick(ctx)
		case <-changes:
			c.Tick(ctx)
		}
	}
}

// Tick performs one guarded reload. It does nothing unless the controller is
// Polling and the source is connected, or while another reload is running.
// It reports whether a load was issued.
func (c *Controller) Tick(ctx context.Context) bool {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state != Polling || !c.source.Connected() {
		return false
	}
	return c.reload(ctx)
}

func (c *Controller) reload(ctx context.Context) bool {
	if !c.inFlight.CompareAndSwap(false, true) {
		return false
	}
	defer c.inFlight.Store(false)

	doc, err := c.source.Load(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		c.disconnect(err)
		return true
	}

	version := c.source.Version()
	c.mu.Lock()
	c.lastReload = time.Now()
	fresh := version != c.lastVersion
	c.lastVersion = version
	c.mu.Unlock()

	if fresh {
		c.listenersMu.Lock()
		listeners := append([]func(*storage.Document, uint64){}, c.onChange...)
		c.listenersMu.Unlock()
		for _, fn := range listeners {
			fn(doc, version)
		}
	}
	return true
}

// disconnect stops the loop without waiting for it, since it may be running
// on the loop goroutine.
func (c *Controller) disconnect(err error) {
	c.mu.Lock()
	if c.state == Disconnected || c.state == Stopped {
		c.mu.Unlock()
		return
	}
	c.lastErr = err
	changed := c.setStateLocked(Disconnected)
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.logger.Printf("Reload failed, polling stopped: %v", err)
	c.emitState(changed)

	c.listenersMu.Lock()
	listeners := append([]func(error){}, c.onDisconnect...)
	c.listenersMu.Unlock()
	for _, fn := range listeners {
		fn(err)
	}
}

// Open marks s as open and suspends polling immediately.
func (c *Controller) Open(s Surface) {
	c.mu.Lock()
	c.open[s]++
	changed := false
	if c.state == Polling {
		changed = c.setStateLocked(Suspended)
	}
	c.mu.Unlock()
	c.emitState(changed)
}

// Close marks s as closed. When no surface remains open polling resumes and
// one reload is issued right away. Closing a surface that is not open does
// nothing.
func (c *Controller) Close(s Surface) {
	c.mu.Lock()
	if c.open[s] == 0 {
		c.mu.Unlock()
		return
	}
	c.open[s]--
	if c.open[s] == 0 {
		delete(c.open, s)
	}

	resume := c.state == Suspended && c.openCountLocked() == 0
	changed := false
	if resume {
		changed = c.setStateLocked(Polling)
	}
	ctx := c.ctx
	c.mu.Unlock()

	c.emitState(changed)
	if resume && c.source.Connected() {
		c.reload(ctx)
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	open := make([]Surface, 0, len(c.open))
	for _, s := range Surfaces() {
		if c.open[s] > 0 {
			open = append(open, s)
		}
	}
	return Status{
		State:        c.state,
		OpenSurfaces: open,
		Version:      c.lastVersion,
		LastReload:   c.lastReload,
		LastError:    c.lastErr,
	}
}

func (c *Controller) openCountLocked() int {
	n := 0
	for _, count := range c.open {
		n += count
	}
	return n
}

func (c *Controller) setStateLocked(s State) bool {
	if c.state == s {
		return false
	}
	c.state = s
	return true
}

func (c *Controller) emitState(changed bool) {
	if !changed {
		return
	}
	state := c.State()
	c.listenersMu.Lock()
	listeners := append([]func(State){}, c.onState...)
	c.listenersMu.Unlock()
	for _, fn := range listeners {
		fn(state)
	}
}
