package app

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runebook/runebook-gateway/internal/config"
	"github.com/runebook/runebook-gateway/internal/guide"
	"github.com/runebook/runebook-gateway/internal/store"
	"github.com/runebook/runebook-gateway/internal/store/file"
)

const probuildAhri = `<html><body>
<div class="build"><img class="item" data-item-id="6655"><img class="item" data-item-id="3020"></div>
<div class="runes" data-primary="8100" data-sub="8300">
  <img class="perk" data-perk-id="8112"><img class="shard" data-shard-id="5008">
</div>
<li class="skill">Q</li><li class="skill">W</li><li class="skill">E</li>
</body></html>`

type upstream struct {
	version      string
	guideHits    atomic.Int32
	championHits atomic.Int32
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/ddragon/api/versions.json":
		_, _ = fmt.Fprintf(w, `[%q]`, u.version)
	case "/ddragon/cdn/" + u.version + "/data/en_US/champion.json":
		u.championHits.Add(1)
		_, _ = fmt.Fprintf(w, `{"version": %q, "data": {"Ahri": {"id": "Ahri", "key": "103", "name": "Ahri"}}}`, u.version)
	case "/probuild/champion/Ahri":
		u.guideHits.Add(1)
		_, _ = w.Write([]byte(probuildAhri))
	default:
		http.NotFound(w, r)
	}
}

func startApp(t *testing.T, cfg *config.Config) (*GatewayApp, string) {
	t.Helper()

	app, err := NewGatewayApp(context.Background(), WithConfig(cfg), WithAddress("127.0.0.1:0"))
	require.NoError(t, err)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- app.Serve(listener) }()
	t.Cleanup(func() {
		require.NoError(t, app.Stop(5*time.Second))
		require.NoError(t, <-done)
	})

	return app, "http://" + listener.Addr().String()
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()

	resp, err := http.Get(url) //nolint:gosec // test server URL
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestGatewayApp_ServesBuilds(t *testing.T) {
	t.Parallel()

	up := &upstream{version: "14.20.1"}
	server := httptest.NewServer(up)
	t.Cleanup(server.Close)

	cfg := testConfig(server.URL)
	cfg.Storage = config.StorageConfig{
		Type: config.StorageTypeFile,
		File: &config.FileConfig{Path: t.TempDir()},
	}
	_, base := startApp(t, cfg)

	resp, body := get(t, base+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status": "healthy"}`, string(body))

	resp, body = get(t, base+"/api/sources")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"sources": ["probuild", "lolalytics"]}`, string(body))

	resp, body = get(t, base+"/api/source/probuild/builds/ahri")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "fresh", resp.Header.Get("X-Cache-Status"))
	assert.Equal(t, "14.20.1", resp.Header.Get("X-Patch-Version"))

	var build guide.Build
	require.NoError(t, json.Unmarshal(body, &build))
	assert.Equal(t, "Ahri", build.Champion)
	assert.Equal(t, []int{6655, 3020}, build.Items)

	resp, _ = get(t, base+"/api/source/probuild/builds/Ahri")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(1), up.guideHits.Load())

	resp, _ = get(t, base+"/api/source/ugg/builds/Ahri")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = get(t, base+"/readiness")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGatewayApp_SeedsCacheFromSnapshots(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	up := &upstream{version: "14.20.1"}
	server := httptest.NewServer(up)
	t.Cleanup(server.Close)

	root := t.TempDir()
	snapshots, err := file.New(root)
	require.NoError(t, err)
	require.NoError(t, snapshots.Save(ctx, store.Snapshot{
		Source:    "probuild",
		Champion:  "Ahri",
		Patch:     "14.20.1",
		FetchedAt: time.Now(),
		Build:     &guide.Build{Source: "probuild", Champion: "Ahri", Items: []int{1001}, Patch: "14.20.1"},
	}))
	require.NoError(t, snapshots.Close())

	cfg := testConfig(server.URL)
	cfg.Storage = config.StorageConfig{
		Type: config.StorageTypeFile,
		File: &config.FileConfig{Path: root},
	}
	_, base := startApp(t, cfg)

	resp, body := get(t, base+"/api/source/probuild/builds/Ahri")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var build guide.Build
	require.NoError(t, json.Unmarshal(body, &build))
	assert.Equal(t, []int{1001}, build.Items, "seeded build for the live patch is served")
	assert.Zero(t, up.guideHits.Load())
}

func TestGatewayApp_StaleSnapshotRefreshes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	up := &upstream{version: "14.21.1"}
	server := httptest.NewServer(up)
	t.Cleanup(server.Close)

	root := t.TempDir()
	snapshots, err := file.New(root)
	require.NoError(t, err)
	require.NoError(t, snapshots.Save(ctx, store.Snapshot{
		Source:    "probuild",
		Champion:  "Ahri",
		Patch:     "14.20.1",
		FetchedAt: time.Now(),
		Build:     &guide.Build{Source: "probuild", Champion: "Ahri", Items: []int{1001}, Patch: "14.20.1"},
	}))
	require.NoError(t, snapshots.Close())

	cfg := testConfig(server.URL)
	cfg.Storage = config.StorageConfig{Type: config.StorageTypeFile, File: &config.FileConfig{Path: root}}
	_, base := startApp(t, cfg)

	resp, body := get(t, base+"/api/source/probuild/builds/Ahri")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "14.21.1", resp.Header.Get("X-Patch-Version"))
	assert.Equal(t, int32(1), up.guideHits.Load())
}

func TestGatewayApp_WatcherWarmsCatalog(t *testing.T) {
	t.Parallel()

	up := &upstream{version: "14.20.1"}
	server := httptest.NewServer(up)
	t.Cleanup(server.Close)

	cfg := testConfig(server.URL)
	cfg.PatchWatch.Interval = "1h"
	app, _ := startApp(t, cfg)
	require.NotNil(t, app.watcher)

	require.Eventually(t, func() bool {
		return up.championHits.Load() >= 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Zero(t, up.guideHits.Load(), "builds refresh lazily")
}

func TestGatewayApp_StartAddressInUse(t *testing.T) {
	t.Parallel()

	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = taken.Close() })

	app, err := NewGatewayApp(context.Background(),
		WithConfig(testConfig("http://127.0.0.1:1")),
		WithAddress(taken.Addr().String()))
	require.NoError(t, err)
	t.Cleanup(app.close)

	require.ErrorContains(t, app.Start(), "failed to listen")
}
