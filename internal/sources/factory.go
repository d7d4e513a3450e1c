package sources

import (
	"fmt"

	"github.com/runebook/runebook-gateway/internal/config"
	"github.com/runebook/runebook-gateway/internal/httpclient"
)

// NewBuildSource creates the adapter for one configured source
func NewBuildSource(cfg config.SourceConfig, client httpclient.Client, opts ...Option) (BuildSource, error) {
	opts = append([]Option{WithRateLimit(cfg.RequestsPerSecond, cfg.GetBurst())}, opts...)

	switch cfg.Type {
	case config.SourceTypeProbuild:
		return NewProbuildSource(cfg.Name, cfg.Endpoint, client, opts...), nil
	case config.SourceTypeLolalytics:
		return NewLolalyticsSource(cfg.Name, cfg.Endpoint, client, opts...), nil
	default:
		return nil, fmt.Errorf("unsupported source type: %s", cfg.Type)
	}
}

// NewRegistryFromConfig builds the registry for every configured source, in configuration order
func NewRegistryFromConfig(cfgs []config.SourceConfig, client httpclient.Client, opts ...Option) (*Registry, error) {
	srcs := make([]BuildSource, 0, len(cfgs))
	for i, cfg := range cfgs {
		src, err := NewBuildSource(cfg, client, opts...)
		if err != nil {
			return nil, fmt.Errorf("source[%d] (%s): %w", i, cfg.Name, err)
		}
		srcs = append(srcs, src)
	}
	return NewRegistry(srcs...)
}
