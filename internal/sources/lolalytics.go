package sources

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/runebook/runebook-gateway/internal/guide"
	"github.com/runebook/runebook-gateway/internal/httpclient"
	"github.com/runebook/runebook-gateway/internal/versions"
)

// LolalyticsSource reads builds from the lolalytics JSON API
type LolalyticsSource struct {
	adapter
}

var _ BuildSource = (*LolalyticsSource)(nil)

// NewLolalyticsSource creates a lolalytics adapter rooted at endpoint
func NewLolalyticsSource(id, endpoint string, client httpclient.Client, opts ...Option) *LolalyticsSource {
	return &LolalyticsSource{adapter: newAdapter(id, endpoint, client, opts...)}
}

// FetchBuild fetches {endpoint}/mega/?ep=build&c={champion}&patch={major.minor}
func (s *LolalyticsSource) FetchBuild(ctx context.Context, champion string) (*guide.Build, error) {
	return s.observe(ctx, champion, func(ctx context.Context) (*guide.Build, error) {
		patch := s.livePatch(ctx)

		requestURL, err := s.buildURL(champion, patch)
		if err != nil {
			return nil, err
		}

		body, err := s.fetch(ctx, champion, requestURL, "application/json")
		if err != nil {
			return nil, err
		}

		build, err := ParseLolalyticsBuild(body)
		if err != nil {
			return nil, fmt.Errorf("%s response for %s: %w", s.id, champion, err)
		}
		build.Champion = champion
		build.Patch = patch
		return build, nil
	})
}

func (s *LolalyticsSource) buildURL(champion, patch string) (string, error) {
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to parse %s endpoint: %w", s.id, err)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/mega/"

	q := url.Values{}
	q.Set("ep", "build")
	q.Set("c", strings.ToLower(champion))
	// lolalytics groups its statistics by minor patch
	if patch != "" {
		q.Set("patch", versions.MajorMinor(patch))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ParseLolalyticsBuild maps a lolalytics build document onto a guide.Build
func ParseLolalyticsBuild(body []byte) (*guide.Build, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: response is not valid JSON", guide.ErrMalformed)
	}
	doc := gjson.ParseBytes(body)

	if strings.EqualFold(doc.Get("status").String(), "no data") {
		return nil, guide.ErrNotFound
	}

	summary := doc.Get("summary")
	if !summary.IsObject() {
		return nil, fmt.Errorf("%w: missing summary", guide.ErrMalformed)
	}

	build := &guide.Build{}
	var err error

	if build.Items, err = intArray(summary, "items.core", true); err != nil {
		return nil, err
	}
	if build.StarterItems, err = intArray(summary, "items.start", false); err != nil {
		return nil, err
	}
	if build.Runes.PrimaryStyle, err = intField(summary, "runes.pri"); err != nil {
		return nil, err
	}
	if build.Runes.SubStyle, err = intField(summary, "runes.sec"); err != nil {
		return nil, err
	}
	if build.Runes.Perks, err = intArray(summary, "runes.perks", true); err != nil {
		return nil, err
	}
	if build.Runes.StatShards, err = intArray(summary, "runes.mod", false); err != nil {
		return nil, err
	}

	if skills := summary.Get("skillpriority"); skills.Exists() {
		if skills.Type != gjson.String {
			return nil, fmt.Errorf("%w: skillpriority is not a string", guide.ErrMalformed)
		}
		for _, r := range strings.ToUpper(skills.String()) {
			build.SkillOrder = append(build.SkillOrder, string(r))
		}
	}

	if wr := summary.Get("wr"); wr.Exists() {
		if wr.Type != gjson.Number {
			return nil, fmt.Errorf("%w: wr is not a number", guide.ErrMalformed)
		}
		value, err := decimal.NewFromString(wr.Raw)
		if err != nil {
			return nil, fmt.Errorf("%w: wr %s: %w", guide.ErrMalformed, wr.Raw, err)
		}
		build.WinRate = decimal.NewNullDecimal(value)
	}

	return build, nil
}

func intField(obj gjson.Result, path string) (int, error) {
	v := obj.Get(path)
	if !v.Exists() {
		return 0, fmt.Errorf("%w: missing %s", guide.ErrMalformed, path)
	}
	if v.Type != gjson.Number || v.Num != float64(int64(v.Num)) {
		return 0, fmt.Errorf("%w: %s is not an integer", guide.ErrMalformed, path)
	}
	return int(v.Int()), nil
}

func intArray(obj gjson.Result, path string, required bool) ([]int, error) {
	v := obj.Get(path)
	if !v.Exists() {
		if required {
			return nil, fmt.Errorf("%w: missing %s", guide.ErrMalformed, path)
		}
		return nil, nil
	}
	if !v.IsArray() {
		return nil, fmt.Errorf("%w: %s is not an array", guide.ErrMalformed, path)
	}

	elems := v.Array()
	out := make([]int, 0, len(elems))
	for i, e := range elems {
		if e.Type != gjson.Number || e.Num != float64(int64(e.Num)) {
			return nil, fmt.Errorf("%w: %s[%d] is not an integer", guide.ErrMalformed, path, i)
		}
		out = append(out, int(e.Int()))
	}
	return out, nil
}
