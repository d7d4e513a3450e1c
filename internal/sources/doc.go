// Package sources provides the guide-provider adapters and the registry that
// maps a source id onto its adapter.
//
// Every adapter implements BuildSource: it builds the provider URL for a
// champion, fetches it through the shared httpclient.Client (paced by a
// per-source limiter), parses the provider's native representation and maps
// it onto a guide.Build. A build is only returned once it passes
// guide.Build.Validate, so callers never see a partially parsed page.
//
// Current implementations:
//   - ProbuildSource: HTML guide pages, parsed with golang.org/x/net/html
//   - LolalyticsSource: the lolalytics JSON build API, read with gjson
//
// Registry is built once at startup from configuration and enumerates sources
// in configuration order.
package sources
