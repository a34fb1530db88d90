package orchestrator

import (
	"context"
	"image"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/GriffinCanCode/queue-sentinel/internal/config"
	apperrors "github.com/GriffinCanCode/queue-sentinel/internal/errors"
	"github.com/GriffinCanCode/queue-sentinel/internal/match"
	"github.com/GriffinCanCode/queue-sentinel/internal/metrics"
	"github.com/GriffinCanCode/queue-sentinel/internal/orchestrator/events"
	"github.com/GriffinCanCode/queue-sentinel/internal/reference"
	"github.com/GriffinCanCode/queue-sentinel/internal/screen"
	"github.com/GriffinCanCode/queue-sentinel/internal/session"
	"github.com/GriffinCanCode/queue-sentinel/internal/trace"
	"github.com/GriffinCanCode/queue-sentinel/internal/watcher"
)

// queue presence as last reported to the event log
const (
	queueUnknown int32 = iota
	queuePresent
	queueAbsent
)

// Deps are the collaborators a Manager drives.
type Deps struct {
	Capturer Capturer
	Store    ReferenceStore
	Locator  watcher.Locator
	Alerter  watcher.Alerter
	Metrics  *metrics.Metrics // optional
}

// Manager coordinates the window scan, region selection and the watcher
type Manager struct {
	cfg      *config.Config
	session  *session.Session
	capturer Capturer
	store    ReferenceStore
	watcher  *watcher.Watcher
	metrics  *metrics.Metrics
	events   *events.Log

	// detection per target window id
	detections *cache.Cache

	// reference restored from disk, applied when the target window is found
	resume atomic.Pointer[reference.Template]
	queue  atomic.Int32

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New creates a manager in WindowSelect.
func New(cfg *config.Config, d Deps) *Manager {
	m := &Manager{
		cfg:        cfg,
		session:    session.New(),
		capturer:   d.Capturer,
		store:      d.Store,
		metrics:    d.Metrics,
		events:     events.NewLog(EventMaxEntries, EventBufferSize),
		detections: cache.New(DetectionCacheTTL, DetectionCacheCleanup),
	}
	m.watcher = watcher.New(m.session, d.Capturer, d.Locator, d.Alerter, d.Metrics, watcher.Config{
		Interval:            config.Interval(cfg.WatchRate),
		StepTimeout:         cfg.StepTimeout,
		SkipSimilarDistance: cfg.SkipSimilarDistance,
	}).WithObserver(m.observe)
	return m
}

// Start restores a persisted reference when AUTO_RESUME is on and launches
// the window scan and watch loops.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return apperrors.New(apperrors.TransitionRejected, "manager already running")
	}

	if m.cfg.AutoResume {
		m.restore(ctx)
	}

	m.stopCh = make(chan struct{})
	m.running = true
	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		m.scanLoop(ctx, m.stopCh)
	}()
	go func() {
		defer m.wg.Done()
		m.watcher.Run(ctx, m.stopCh)
	}()

	trace.Logger(ctx).Info("sentinel started", "window_title", m.cfg.WindowTitle, "watch_rate", m.cfg.WatchRate)
	return nil
}

// Stop stops both loops and waits for them.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Manager) restore(ctx context.Context) {
	log := trace.Logger(ctx)
	t, err := m.store.Load()
	switch {
	case err == nil:
		m.resume.Store(t)
		log.Info("persisted reference loaded", "window_title", t.WindowTitle, "match_floor", t.MatchFloor)
	case apperrors.IsCode(err, apperrors.NotFound):
		log.Debug("no persisted reference")
	default:
		// corrupt or empty file: the operator selects a region again
		log.Warn("persisted reference unusable", "error", err)
	}
}

func (m *Manager) scanLoop(ctx context.Context, stopCh <-chan struct{}) {
	ticker := time.NewTicker(config.Interval(m.cfg.WindowScanRate))
	defer ticker.Stop()

	for {
		if m.session.Mode() == session.WindowSelect {
			if _, err := m.Scan(ctx); err != nil && ctx.Err() == nil {
				trace.Logger(ctx).Warn("window scan failed", "error", err)
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
		}
	}
}

// Scan captures every window and, while in WindowSelect, adopts the one whose
// title matches WINDOW_TITLE. A reference kept from a lost window, or restored
// from disk, is re-armed right away.
func (m *Manager) Scan(ctx context.Context) (bool, error) {
	ctx, span := trace.StartSpan(ctx, "window_scan")
	defer span.End()

	scanCtx, cancel := context.WithTimeout(ctx, m.cfg.StepTimeout)
	caps, err := m.capturer.TakeAll(scanCtx)
	cancel()
	if err != nil {
		span.SetAttr("error", err.Error())
		return false, err
	}
	m.session.SetCaptures(caps)
	span.SetAttr("windows", len(caps))

	c, ok := screen.FindByTitle(caps, m.cfg.WindowTitle)
	if !ok {
		return false, nil
	}
	if err := m.session.FoundWindow(c); err != nil {
		// the mode moved on since the scan started
		return false, nil
	}
	m.detections.Delete(detectionKey(c.Window.ID))
	m.events.Add(events.WindowFound, m.session.Mode().String(), "found "+c.Window.DisplayTitle())
	trace.Logger(ctx).Info("target window found", "id", c.Window.ID, "title", c.Window.Title)

	ref := m.session.Reference()
	kind := events.ReferenceChosen
	if ref == nil {
		ref = m.resume.Swap(nil)
		kind = events.ReferenceLoaded
	}
	if ref != nil {
		if err := m.session.ChooseReference(ref); err != nil {
			return true, err
		}
		m.events.Add(kind, m.session.Mode().String(), "reference re-armed")
	}
	return true, nil
}

// Windows enumerates the open windows without capturing them.
func (m *Manager) Windows(ctx context.Context) ([]screen.Window, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.StepTimeout)
	defer cancel()
	return m.capturer.Windows(ctx)
}

// Detection returns the region detection for the target window, running it
// on the current capture the first time it is asked for.
func (m *Manager) Detection(ctx context.Context) (Detection, error) {
	c, ok := m.session.WindowCapture()
	if !ok || c.Image == nil {
		return Detection{}, apperrors.New(apperrors.NotFound, "no target window")
	}

	key := detectionKey(c.Window.ID)
	if d, ok := m.detections.Get(key); ok {
		return d.(Detection), nil
	}

	d := DetectRegions(ctx, c.Image, uint8(m.cfg.BinarizeThreshold))
	d.WindowID = c.Window.ID
	d.TakenAt = c.TakenAt
	m.detections.SetDefault(key, d)
	return d, nil
}

// Regions returns the candidate regions of the target window.
func (m *Manager) Regions() ([]Region, error) {
	d, err := m.Detection(context.Background())
	return d.Regions, err
}

// SelectRegion cuts the reference out of region i, arms it and persists it.
func (m *Manager) SelectRegion(i int) error {
	ctx, span := trace.StartSpan(context.Background(), "select_region")
	defer span.End()
	span.SetAttr("index", i)
	log := trace.Logger(ctx)

	if mode := m.session.Mode(); mode != session.RegionSelect {
		return apperrors.Newf(apperrors.TransitionRejected, "cannot select a region in %s", mode).
			WithMetadata("mode", mode.String())
	}

	d, err := m.Detection(ctx)
	if err != nil {
		return err
	}
	if i < 0 || i >= len(d.Regions) {
		return apperrors.Newf(apperrors.RegionOutOfRange, "region %d out of range", i).
			WithMetadata("index", strconv.Itoa(i)).
			WithMetadata("count", strconv.Itoa(len(d.Regions)))
	}

	c, _ := m.session.WindowCapture()
	r := d.Regions[i]
	t := reference.Extract(r.Preview, r.MatchFloor(), c.Window.Title)
	if err := m.session.ChooseReference(t); err != nil {
		return err
	}
	m.queue.Store(queueUnknown)
	m.events.Add(events.ReferenceChosen, m.session.Mode().String(), "region "+strconv.Itoa(i)+" selected")
	log.Info("reference chosen", "region", i, "match_floor", t.MatchFloor, "size", t.Image.Bounds().Size())

	if err := m.store.Save(t); err != nil {
		log.Warn("failed to persist reference", "error", err)
	}
	return nil
}

// SetWatching starts or stops alerting.
func (m *Manager) SetWatching(on bool) error {
	if err := m.session.SetWatching(on); err != nil {
		return err
	}
	m.queue.Store(queueUnknown)
	if m.metrics != nil {
		m.metrics.SetWatching(on)
	}
	kind := events.WatchStopped
	if on {
		kind = events.WatchStarted
	}
	m.events.Add(kind, m.session.Mode().String(), "")
	trace.Logger(context.Background()).Info("watching state changed", "enabled", on)
	return nil
}

// Reset forgets the window and the reference, including its persisted copy.
func (m *Manager) Reset() error {
	if err := m.session.Reset(); err != nil {
		return err
	}
	m.resume.Store(nil)
	m.detections.Flush()
	m.queue.Store(queueUnknown)
	if m.metrics != nil {
		m.metrics.SetWatching(false)
	}
	m.events.Add(events.Reset, m.session.Mode().String(), "")

	if err := m.store.Clear(); err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "failed to clear persisted reference")
	}
	return nil
}

// Status returns a copy of the session.
func (m *Manager) Status() session.Snapshot {
	return m.session.Snapshot()
}

// Ready reports whether a reference is armed on a present window.
func (m *Manager) Ready() bool {
	s := m.session.Snapshot()
	return s.HasReference && s.Window != nil
}

// LatestCapture returns the freshest frame of the target window, or nil.
func (m *Manager) LatestCapture() image.Image {
	return m.session.LatestImage()
}

// Events returns the broadcast channel of session events.
func (m *Manager) Events() <-chan events.Event {
	return m.events.Events()
}

// RecentEvents returns the events of the last EventRecentSpan.
func (m *Manager) RecentEvents() []events.Event {
	return m.events.Since(EventRecentSpan)
}

// observe runs on the watcher goroutine after every cycle.
func (m *Manager) observe(outcome string, v match.Verdict) {
	switch outcome {
	case metrics.CycleGone:
		m.detections.Flush()
		m.queue.Store(queueUnknown)
		m.events.Add(events.WindowLost, m.session.Mode().String(), "target window lost")
	case metrics.CycleFound, metrics.CycleNotFound, metrics.CycleReused:
		next, kind := queueAbsent, events.QueueAbsent
		if v.Found {
			next, kind = queuePresent, events.QueuePresent
		}
		if m.queue.Swap(next) != next {
			m.events.Add(kind, m.session.Mode().String(), v.String())
		}
	}
}

func detectionKey(id uint64) string {
	return strconv.FormatUint(id, 10)
}
