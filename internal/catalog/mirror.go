package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/runebook/runebook-gateway/internal/guide"
	"github.com/runebook/runebook-gateway/internal/httpclient"
	"github.com/runebook/runebook-gateway/internal/otel"
	"github.com/runebook/runebook-gateway/internal/versions"
)

const (
	// DefaultEndpoint is the public Data Dragon base URL
	DefaultEndpoint = "https://ddragon.leagueoflegends.com"
	// DefaultLocale is the locale used for catalog documents
	DefaultLocale = "en_US"
	// DefaultVersionTTL is how long an observed patch version is trusted before it is re-fetched
	DefaultVersionTTL = 5 * time.Minute

	versionFlight = "version"
)

// Mirror fetches Data Dragon documents and tracks the live patch version.
// It is safe for concurrent use.
type Mirror struct {
	client     httpclient.Client
	endpoint   string
	locale     string
	versionTTL time.Duration
	now        func() time.Time
	tracer     trace.Tracer

	group singleflight.Group

	mu        sync.RWMutex
	version   string
	checkedAt time.Time
}

// Option configures a Mirror
type Option func(*Mirror)

// WithEndpoint overrides the Data Dragon base URL
func WithEndpoint(endpoint string) Option {
	return func(m *Mirror) {
		if endpoint != "" {
			m.endpoint = endpoint
		}
	}
}

// WithLocale overrides the catalog locale
func WithLocale(locale string) Option {
	return func(m *Mirror) {
		if locale != "" {
			m.locale = locale
		}
	}
}

// WithVersionTTL overrides how long the observed patch version is reused
func WithVersionTTL(ttl time.Duration) Option {
	return func(m *Mirror) {
		if ttl > 0 {
			m.versionTTL = ttl
		}
	}
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(m *Mirror) {
		m.now = now
	}
}

// WithTracer enables tracing of catalog fetches
func WithTracer(tracer trace.Tracer) Option {
	return func(m *Mirror) {
		m.tracer = tracer
	}
}

// NewMirror creates a Data Dragon mirror that fetches through client
func NewMirror(client httpclient.Client, opts ...Option) *Mirror {
	m := &Mirror{
		client:     client,
		endpoint:   DefaultEndpoint,
		locale:     DefaultLocale,
		versionTTL: DefaultVersionTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LastKnownVersion returns the most recently observed patch version without any I/O.
// It is empty until the first successful CurrentVersion call.
func (m *Mirror) LastKnownVersion() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

// LiveVersion returns the last observed patch version without blocking. Once the version
// TTL has expired it also starts a background refresh, shared with CurrentVersion callers,
// so later reads pick up a patch advance. It is empty until a version has been observed.
func (m *Mirror) LiveVersion() string {
	m.mu.RLock()
	version, checkedAt := m.version, m.checkedAt
	m.mu.RUnlock()

	if version != "" && m.now().Sub(checkedAt) >= m.versionTTL {
		m.group.DoChan(versionFlight, func() (any, error) {
			return m.refreshVersion(context.Background())
		})
	}
	return version
}

// CurrentVersion returns the live patch version, re-fetching it once the TTL has expired.
// When the fetch fails and a version was observed before, that version is returned without error.
func (m *Mirror) CurrentVersion(ctx context.Context) (string, error) {
	m.mu.RLock()
	version, checkedAt := m.version, m.checkedAt
	m.mu.RUnlock()

	if version != "" && m.now().Sub(checkedAt) < m.versionTTL {
		return version, nil
	}

	// The fetch is shared by every concurrent caller, so it must not die with the first one.
	detached := context.WithoutCancel(ctx)
	ch := m.group.DoChan(versionFlight, func() (any, error) {
		return m.refreshVersion(detached)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		if version != "" {
			return version, nil
		}
		return "", fmt.Errorf("failed to get current patch version: %w", ctx.Err())
	}
}

func (m *Mirror) refreshVersion(ctx context.Context) (string, error) {
	ctx, span := otel.StartSpan(ctx, m.tracer, "catalog.CurrentVersion")
	defer span.End()

	fetched, err := m.fetchVersion(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		if m.version == "" {
			otel.RecordError(span, err)
			return "", err
		}
		slog.WarnContext(ctx, "Failed to refresh patch version, assuming current",
			"version", m.version,
			"error", err)
		m.checkedAt = m.now()
		return m.version, nil
	}

	if versions.IsNewerVersion(fetched, m.version) {
		if m.version != "" {
			slog.InfoContext(ctx, "Patch version advanced", "previous", m.version, "current", fetched)
		}
		m.version = fetched
	}
	m.checkedAt = m.now()
	span.SetAttributes(otel.AttrPatchVersion.String(m.version))
	return m.version, nil
}

func (m *Mirror) fetchVersion(ctx context.Context) (string, error) {
	endpoint, err := url.JoinPath(m.endpoint, "api", "versions.json")
	if err != nil {
		return "", fmt.Errorf("failed to build versions URL: %w", err)
	}

	body, err := m.client.Get(ctx, endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to fetch patch versions: %w", err)
	}

	var list []string
	if err := json.Unmarshal(body, &list); err != nil {
		return "", fmt.Errorf("%w: versions document: %w", guide.ErrMalformed, err)
	}
	if len(list) == 0 || list[0] == "" {
		return "", fmt.Errorf("%w: versions document is empty", guide.ErrMalformed)
	}
	return list[0], nil
}

type championDocument struct {
	Version string              `json:"version"`
	Data    map[string]Champion `json:"data"`
}

// FetchChampionMap fetches the champion map for the current patch
func (m *Mirror) FetchChampionMap(ctx context.Context) (*ChampionMap, error) {
	ctx, span := otel.StartSpan(ctx, m.tracer, "catalog.FetchChampionMap",
		trace.WithAttributes(otel.AttrCatalogKind.String("champion-map")))
	defer span.End()

	version, err := m.CurrentVersion(ctx)
	if err != nil {
		otel.RecordError(span, err)
		return nil, err
	}

	var doc championDocument
	if err := m.fetchDocument(ctx, version, "champion.json", &doc); err != nil {
		otel.RecordError(span, err)
		return nil, err
	}

	champions := make(map[string]Champion, len(doc.Data))
	for id, champ := range doc.Data {
		if champ.ID == "" {
			champ.ID = id
		}
		champions[champ.ID] = champ
	}
	if len(champions) == 0 {
		err := fmt.Errorf("%w: champion map for %s is empty", guide.ErrMalformed, version)
		otel.RecordError(span, err)
		return nil, err
	}

	return NewChampionMap(version, champions), nil
}

// FetchRuneTree fetches the reforged rune tree for the current patch
func (m *Mirror) FetchRuneTree(ctx context.Context) (*RuneTree, error) {
	ctx, span := otel.StartSpan(ctx, m.tracer, "catalog.FetchRuneTree",
		trace.WithAttributes(otel.AttrCatalogKind.String("rune-tree")))
	defer span.End()

	version, err := m.CurrentVersion(ctx)
	if err != nil {
		otel.RecordError(span, err)
		return nil, err
	}

	var styles []RuneStyle
	if err := m.fetchDocument(ctx, version, "runesReforged.json", &styles); err != nil {
		otel.RecordError(span, err)
		return nil, err
	}
	if len(styles) == 0 {
		err := fmt.Errorf("%w: rune tree for %s is empty", guide.ErrMalformed, version)
		otel.RecordError(span, err)
		return nil, err
	}
	for _, style := range styles {
		if style.ID == 0 || len(style.Slots) == 0 {
			err := fmt.Errorf("%w: rune style %q has no id or slots", guide.ErrMalformed, style.Key)
			otel.RecordError(span, err)
			return nil, err
		}
	}

	return &RuneTree{Version: version, Styles: styles}, nil
}

func (m *Mirror) fetchDocument(ctx context.Context, version, name string, out any) error {
	endpoint, err := url.JoinPath(m.endpoint, "cdn", version, "data", m.locale, name)
	if err != nil {
		return fmt.Errorf("failed to build %s URL: %w", name, err)
	}

	body, err := m.client.Get(ctx, endpoint)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", name, err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %s: %w", guide.ErrMalformed, name, err)
	}
	return nil
}
