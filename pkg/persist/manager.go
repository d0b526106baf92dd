package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/cycle"
)

// DefaultSaveDelay batches state changes into one write.
const DefaultSaveDelay = 30 * time.Second

const backgroundSaveTimeout = 10 * time.Second

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithSaveDelay sets the debounce delay.
func WithSaveDelay(d time.Duration) ManagerOption {
	return func(m *Manager) { m.delay = d }
}

// WithScheduler replaces the wall-clock scheduler.
func WithScheduler(s cycle.Scheduler) ManagerOption {
	return func(m *Manager) { m.sched = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithSaveHook registers a callback run after every write attempt.
func WithSaveHook(f func(zone string, err error)) ManagerOption {
	return func(m *Manager) { m.onSaved = f }
}

// Manager loads zone documents and saves them, either directly or debounced.
type Manager struct {
	store   Store
	delay   time.Duration
	sched   cycle.Scheduler
	logger  *slog.Logger
	onSaved func(zone string, err error)

	mu      sync.Mutex
	pending map[string]*pendingSave
}

type pendingSave struct {
	timer    cycle.Timer
	snapshot func() *Document
}

// NewManager creates a manager over store.
func NewManager(store Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:   store,
		delay:   DefaultSaveDelay,
		sched:   cycle.RealScheduler{},
		logger:  slog.Default(),
		pending: make(map[string]*pendingSave),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "persist")
	return m
}

// Load returns the zone's document. A missing document, or one that cannot
// be decoded, yields a fresh document; only store failures are returned.
func (m *Manager) Load(ctx context.Context, zone string) (*Document, error) {
	data, err := m.store.Load(ctx, zone)
	if errors.Is(err, ErrNotFound) {
		return NewDocument(zone), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load zone %s: %w", zone, err)
	}
	doc, err := Decode(data)
	if err != nil {
		m.logger.Warn("discarding unreadable zone state", "zone", zone, "error", err)
		return NewDocument(zone), nil
	}
	if doc.Zone == "" {
		doc.Zone = zone
	}
	return doc, nil
}

// Save writes doc immediately.
func (m *Manager) Save(ctx context.Context, doc *Document) error {
	doc.SavedAt = m.sched.Now()
	data, err := Encode(doc)
	if err == nil {
		err = m.store.Save(ctx, doc.Zone, data)
	}
	if m.onSaved != nil {
		m.onSaved(doc.Zone, err)
	}
	if err != nil {
		return fmt.Errorf("save zone %s: %w", doc.Zone, err)
	}
	m.logger.Debug("zone state saved", "zone", doc.Zone, "bytes", len(data))
	return nil
}

// ScheduleSave arranges for snapshot to be saved after the debounce delay.
// Calls arriving while a save is pending replace the snapshot function
// without extending the delay, so a busy zone still saves once per delay.
func (m *Manager) ScheduleSave(zone string, snapshot func() *Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pending[zone]; ok {
		p.snapshot = snapshot
		return
	}
	p := &pendingSave{snapshot: snapshot}
	p.timer = m.sched.AfterFunc(m.delay, func() { m.fire(zone, p) })
	m.pending[zone] = p
}

// Pending returns the number of zones with a scheduled save.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *Manager) fire(zone string, p *pendingSave) {
	m.mu.Lock()
	if m.pending[zone] != p {
		m.mu.Unlock()
		return
	}
	delete(m.pending, zone)
	snapshot := p.snapshot
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), backgroundSaveTimeout)
	defer cancel()
	if err := m.Save(ctx, snapshot()); err != nil {
		m.logger.Error("debounced save failed", "zone", zone, "error", err)
	}
}

// Flush saves every pending snapshot now.
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.Lock()
	pending := m.pending
	m.pending = make(map[string]*pendingSave)
	m.mu.Unlock()

	var errs []error
	for _, p := range pending {
		p.timer.Stop()
		if err := m.Save(ctx, p.snapshot()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close flushes pending saves and closes the store.
func (m *Manager) Close(ctx context.Context) error {
	return errors.Join(m.Flush(ctx), m.store.Close())
}
