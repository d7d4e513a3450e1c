package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/runebook/runebook-gateway/internal/service"
	"github.com/runebook/runebook-gateway/internal/telemetry"
	"github.com/runebook/runebook-gateway/internal/versions"
)

const (
	// DefaultInterval is the base interval between patch checks
	DefaultInterval = 10 * time.Minute
	// pollingJitter is the maximum random offset (±30 seconds) applied to the interval
	pollingJitter = 30 * time.Second

	defaultMaxTries      = 3
	defaultRetryInterval = 2 * time.Second
)

// VersionSource reports the current patch version
type VersionSource interface {
	CurrentVersion(ctx context.Context) (string, error)
}

// Warmer refreshes the catalog entries served by the gateway
type Warmer interface {
	GetChampionMap(ctx context.Context) (*service.ChampionMapResult, error)
	GetRuneTree(ctx context.Context) (*service.RuneTreeResult, error)
}

// Coordinator manages the background patch watch loop
type Coordinator interface {
	// Start runs the watch loop. It blocks until ctx is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop gracefully stops the watch loop and waits for it to exit
	Stop() error
}

type patchWatcher struct {
	versions VersionSource
	warmer   Warmer

	interval      time.Duration
	maxTries      uint
	retryInterval time.Duration
	metrics       *telemetry.PatchMetrics

	mu         sync.Mutex
	lastSeen   string
	cancelFunc context.CancelFunc
	done       chan struct{}
}

// Option is a function that configures the coordinator
type Option func(*patchWatcher)

// WithInterval sets the base interval between patch checks
func WithInterval(interval time.Duration) Option {
	return func(w *patchWatcher) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// WithMaxTries bounds the attempts made for one patch check
func WithMaxTries(tries uint) Option {
	return func(w *patchWatcher) {
		if tries > 0 {
			w.maxTries = tries
		}
	}
}

// WithRetryInterval sets the initial backoff between attempts of one check
func WithRetryInterval(interval time.Duration) Option {
	return func(w *patchWatcher) {
		if interval > 0 {
			w.retryInterval = interval
		}
	}
}

// WithPatchMetrics sets the patch metrics for the coordinator
func WithPatchMetrics(metrics *telemetry.PatchMetrics) Option {
	return func(w *patchWatcher) {
		w.metrics = metrics
	}
}

// New creates a patch watcher polling versions and warming warmer
func New(versions VersionSource, warmer Warmer, opts ...Option) Coordinator {
	w := &patchWatcher{
		versions:      versions,
		warmer:        warmer,
		interval:      DefaultInterval,
		maxTries:      defaultMaxTries,
		retryInterval: defaultRetryInterval,
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// nextInterval returns the base interval with a random jitter applied. The jitter
// is capped at a quarter of the interval so short intervals stay positive.
func (w *patchWatcher) nextInterval() time.Duration {
	jitter := min(pollingJitter, w.interval/4)
	if jitter <= 0 {
		return w.interval
	}
	//nolint:gosec // G404: Non-cryptographic randomness is sufficient for polling jitter
	offset := time.Duration(rand.Int64N(int64(2*jitter))) - jitter
	return w.interval + offset
}

// Start performs an initial check and then checks on every tick
func (w *patchWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cancelFunc != nil {
		w.mu.Unlock()
		return errors.New("patch watcher already started")
	}
	watchCtx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel
	w.mu.Unlock()

	defer func() {
		cancel()
		close(w.done)
		slog.Info("Patch watcher shutting down")
	}()

	interval := w.nextInterval()
	slog.Info("Starting patch watcher",
		"base_interval", w.interval,
		"actual_interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.check(watchCtx)

	for {
		select {
		case <-ticker.C:
			w.check(watchCtx)
			ticker.Reset(w.nextInterval())
		case <-watchCtx.Done():
			slog.Info("Patch watcher stopping")
			return nil
		}
	}
}

// Stop gracefully stops the watcher
func (w *patchWatcher) Stop() error {
	w.mu.Lock()
	cancel := w.cancelFunc
	w.mu.Unlock()

	if cancel != nil {
		slog.Info("Stopping patch watcher")
		cancel()
		<-w.done
	}
	return nil
}

// check polls the current version and warms the catalog when it advanced
func (w *patchWatcher) check(ctx context.Context) {
	version, err := w.pollVersion(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("Patch check failed", "error", err)
		}
		w.metrics.RecordCheck(ctx, false)
		return
	}
	w.metrics.RecordCheck(ctx, true)

	w.mu.Lock()
	previous := w.lastSeen
	advanced := versions.IsNewerVersion(version, previous)
	if advanced {
		w.lastSeen = version
	}
	w.mu.Unlock()

	if !advanced {
		slog.Debug("Patch version unchanged", "patch", version)
		return
	}

	slog.Info("Patch version advanced", "previous", previous, "patch", version)
	w.metrics.RecordAdvance(ctx)
	w.warm(ctx)
}

func (w *patchWatcher) pollVersion(ctx context.Context) (string, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.retryInterval

	version, err := backoff.Retry(ctx, func() (string, error) {
		v, err := w.versions.CurrentVersion(ctx)
		if err != nil {
			slog.Debug("Patch version lookup failed", "error", err)
			return "", err
		}
		if v == "" {
			return "", errors.New("empty patch version")
		}
		return v, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(w.maxTries),
	)
	if err != nil {
		return "", fmt.Errorf("failed to get current patch version: %w", err)
	}
	return version, nil
}

func (w *patchWatcher) warm(ctx context.Context) {
	if _, err := w.warmer.GetChampionMap(ctx); err != nil {
		slog.Warn("Failed to warm champion map", "error", err)
	}
	if _, err := w.warmer.GetRuneTree(ctx); err != nil {
		slog.Warn("Failed to warm rune tree", "error", err)
	}
}
