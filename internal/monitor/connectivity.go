package monitor

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"kbdash/internal/config"
	"kbdash/internal/logger"
	"kbdash/internal/metrics"
	"kbdash/internal/models"
)

// HistoryStore persists probe results across restarts.
type HistoryStore interface {
	History() []models.ProbeResult
	Replace([]models.ProbeResult) error
}

// Options configures a Monitor.
type Options struct {
	BaseURL         string
	HealthPath      string
	ProbeTimeout    time.Duration
	ReprobeInterval time.Duration
	EscalateAfter   int
	HistorySize     int
	Client          *http.Client
	Store           HistoryStore
	Logger          *logger.Logger
}

// OptionsFromConfig maps the connectivity section of the config file.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		BaseURL:         cfg.Backend.BaseURL,
		HealthPath:      cfg.Backend.HealthPath,
		ProbeTimeout:    cfg.Connectivity.ProbeTimeout(),
		ReprobeInterval: cfg.Connectivity.ReprobeInterval(),
		EscalateAfter:   cfg.Connectivity.EscalateAfter,
		HistorySize:     cfg.Connectivity.HistorySize,
	}
}

// Monitor owns the belief about whether the backend is reachable.
type Monitor struct {
	target          string
	probeTimeout    time.Duration
	reprobeInterval time.Duration
	escalateAfter   int
	maxHistory      int
	client          *http.Client
	store           HistoryStore
	log             *logger.Logger

	mu        sync.RWMutex
	state     models.ConnectionState
	updatedAt time.Time
	latest    *models.ProbeResult
	history   []models.ProbeResult
	downEpoch uint64
	reprobing bool
	closed    bool
	subs      map[int]chan models.StateEvent
	nextSub   int

	persistMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New configures a monitor in the Unknown state.
func New(opts Options) *Monitor {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 3 * time.Second
	}
	if opts.ReprobeInterval <= 0 {
		opts.ReprobeInterval = 30 * time.Second
	}
	if opts.EscalateAfter <= 0 {
		opts.EscalateAfter = 3
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = 2048
	}
	if opts.Client == nil {
		opts.Client = &http.Client{
			Transport: newTransport(),
			// A redirect (e.g. to a login page) is not a healthy answer.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	healthPath := opts.HealthPath
	if healthPath == "" {
		healthPath = "/health"
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Monitor{
		target:          strings.TrimRight(opts.BaseURL, "/") + healthPath,
		probeTimeout:    opts.ProbeTimeout,
		reprobeInterval: opts.ReprobeInterval,
		escalateAfter:   opts.EscalateAfter,
		maxHistory:      opts.HistorySize,
		client:          opts.Client,
		store:           opts.Store,
		log:             opts.Logger.With("component", "connectivity"),
		state:           models.StateUnknown,
		updatedAt:       time.Now().UTC(),
		subs:            make(map[int]chan models.StateEvent),
		ctx:             ctx,
		cancel:          cancel,
	}
	if m.store != nil {
		m.history = trimHistory(m.store.History(), m.maxHistory)
	}
	return m
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// Start runs the initial probe in the background.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		m.Probe(m.ctx)
	}()
}

// Stop cancels re-probing and in-flight probes, then waits for them.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	subs := m.subs
	m.subs = make(map[int]chan models.StateEvent)
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	for _, ch := range subs {
		close(ch)
	}
	m.persist()
}

// State returns the current connection state.
func (m *Monitor) State() models.ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Snapshot returns a read-only copy of the monitor state.
func (m *Monitor) Snapshot() models.ConnectivitySnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := models.ConnectivitySnapshot{State: m.state, UpdatedAt: m.updatedAt}
	if m.latest != nil {
		latest := *m.latest
		snap.LastProbe = &latest
	}
	return snap
}

// Reprobing reports whether the periodic re-probe loop is active.
func (m *Monitor) Reprobing() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reprobing
}

// History returns a copy of the recorded probe results.
func (m *Monitor) History() []models.ProbeResult {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.history) == 0 {
		return nil
	}
	out := make([]models.ProbeResult, len(m.history))
	copy(out, m.history)
	return out
}

// Availability summarises the recorded probe history.
func (m *Monitor) Availability() metrics.Availability {
	return metrics.ComputeAvailability(m.History())
}

// Subscribe delivers every state transition until the returned cancel func
// is called or the monitor stops. Slow subscribers miss events.
func (m *Monitor) Subscribe() (<-chan models.StateEvent, func()) {
	ch := make(chan models.StateEvent, 8)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			if _, ok := m.subs[id]; ok {
				delete(m.subs, id)
				close(ch)
			}
			m.mu.Unlock()
		})
	}
}

// Probe checks the liveness endpoint and updates the state:
// any 2xx within the probe timeout means Connected, anything else Disconnected.
func (m *Monitor) Probe(ctx context.Context) models.ConnectionState {
	result := m.check(ctx)
	if ctx.Err() != nil && !result.OK {
		// The caller went away; a cancelled probe says nothing about the backend.
		return m.State()
	}

	m.record(result)
	if result.OK {
		return m.transition(models.StateConnected)
	}
	m.log.Warn("backend probe failed", "target", result.Target, "cause", result.Cause, "error", result.Error)
	return m.transition(models.StateDisconnected)
}

// Reconnect moves to Unknown immediately and probes in the background.
// The returned snapshot is taken before the probe starts. Fetches that
// failed before are not replayed.
func (m *Monitor) Reconnect() models.ConnectivitySnapshot {
	m.transition(models.StateUnknown)
	snap := m.Snapshot()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return snap
	}
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		m.Probe(m.ctx)
	}()
	return snap
}

func (m *Monitor) transition(to models.ConnectionState) models.ConnectionState {
	now := time.Now().UTC()

	m.mu.Lock()
	from := m.state
	m.state = to
	m.updatedAt = now

	startLoop := false
	if to == models.StateDisconnected {
		if from != models.StateDisconnected {
			m.downEpoch++
		}
		if !m.reprobing && !m.closed {
			m.reprobing = true
			startLoop = true
			m.wg.Add(1)
		}
	}
	if from != to {
		m.notifyLocked(models.StateEvent{From: from, To: to, At: now})
	}
	m.mu.Unlock()

	if from != to {
		m.log.Info("connectivity changed", "from", from, "to", to)
	}
	if startLoop {
		go m.reprobeLoop()
	}
	return to
}

// notifyLocked fans event out while the caller holds mu, so subscribers
// see transitions in the order they were applied and an unsubscribe
// cannot close a channel mid-send. Sends never block.
func (m *Monitor) notifyLocked(event models.StateEvent) {
	for _, ch := range m.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

func (m *Monitor) reprobeLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.reprobeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			m.mu.Lock()
			m.reprobing = false
			m.mu.Unlock()
			return
		case <-ticker.C:
			if m.State() == models.StateDisconnected {
				m.Probe(m.ctx)
			}
			m.mu.Lock()
			if m.state != models.StateDisconnected {
				m.reprobing = false
				m.mu.Unlock()
				return
			}
			m.mu.Unlock()
		}
	}
}

// epoch identifies the current outage; it changes on every move into Disconnected.
func (m *Monitor) epoch() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.downEpoch
}

func (m *Monitor) lostSince(epoch uint64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == models.StateDisconnected && m.downEpoch != epoch
}

func (m *Monitor) markReachable() {
	if m.State() != models.StateConnected {
		m.transition(models.StateConnected)
	}
}

func (m *Monitor) escalate(failures int) {
	m.log.Warn("repeated network failures, marking backend unreachable", "failures", failures)
	m.transition(models.StateDisconnected)
}

func (m *Monitor) record(result models.ProbeResult) {
	m.mu.Lock()
	m.latest = &result
	m.history = append(m.history, result)
	if len(m.history) > m.maxHistory {
		m.history = m.history[len(m.history)-m.maxHistory:]
	}
	m.mu.Unlock()

	m.persist()
}

func (m *Monitor) persist() {
	if m.store == nil {
		return
	}
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	if err := m.store.Replace(m.History()); err != nil {
		m.log.Warn("persist probe history failed", "error", err)
	}
}

func trimHistory(entries []models.ProbeResult, limit int) []models.ProbeResult {
	if limit <= 0 || len(entries) <= limit {
		return entries
	}
	return entries[len(entries)-limit:]
}
