// Package coordinator runs the background patch watcher.
//
// The watcher polls the catalog mirror for the current patch version on a
// jittered interval. Each poll is retried with exponential backoff. When a newer
// patch is observed, the champion map and rune tree are refreshed through the
// gateway so the first client request after a patch does not pay for the catalog
// downloads.
//
// # Usage
//
//	watcher := coordinator.New(mirror, gateway,
//	    coordinator.WithInterval(cfg.PatchWatch.GetInterval()),
//	    coordinator.WithPatchMetrics(patchMetrics),
//	)
//	go func() { _ = watcher.Start(ctx) }()
//	defer watcher.Stop()
//
// Guide builds are not prefetched; they refresh lazily on the first request
// after the patch advances.
package coordinator
