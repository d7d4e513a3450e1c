package sources

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/net/html"

	"github.com/runebook/runebook-gateway/internal/guide"
	"github.com/runebook/runebook-gateway/internal/httpclient"
)

const probuildAccept = "text/html, application/xhtml+xml;q=0.9"

// ProbuildSource scrapes the probuild HTML guide page of a champion
type ProbuildSource struct {
	adapter
}

var _ BuildSource = (*ProbuildSource)(nil)

// NewProbuildSource creates a probuild adapter rooted at endpoint
func NewProbuildSource(id, endpoint string, client httpclient.Client, opts ...Option) *ProbuildSource {
	return &ProbuildSource{adapter: newAdapter(id, endpoint, client, opts...)}
}

// FetchBuild fetches {endpoint}/champion/{champion} and parses the guide page
func (s *ProbuildSource) FetchBuild(ctx context.Context, champion string) (*guide.Build, error) {
	return s.observe(ctx, champion, func(ctx context.Context) (*guide.Build, error) {
		patch := s.livePatch(ctx)

		pageURL, err := url.JoinPath(s.endpoint, "champion", champion)
		if err != nil {
			return nil, fmt.Errorf("failed to build %s URL: %w", s.id, err)
		}

		body, err := s.fetch(ctx, champion, pageURL, probuildAccept)
		if err != nil {
			return nil, err
		}

		build, err := ParseProbuildPage(body)
		if err != nil {
			return nil, fmt.Errorf("%s page for %s: %w", s.id, champion, err)
		}
		build.Champion = champion
		build.Patch = patch
		return build, nil
	})
}

// ParseProbuildPage extracts a build from a probuild guide page
func ParseProbuildPage(body []byte) (*guide.Build, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", guide.ErrMalformed, err)
	}

	if findElement(doc, "div", "no-data") != nil {
		return nil, guide.ErrNotFound
	}

	build := &guide.Build{}

	buildDiv := findElement(doc, "div", "build")
	if buildDiv == nil {
		return nil, fmt.Errorf("%w: no build section", guide.ErrMalformed)
	}
	if build.Items, err = collectIDs(buildDiv, "img", "item", "data-item-id", "starters"); err != nil {
		return nil, err
	}

	if starters := findElement(doc, "div", "starters"); starters != nil {
		if build.StarterItems, err = collectIDs(starters, "img", "item", "data-item-id", ""); err != nil {
			return nil, err
		}
	}

	runes := findElement(doc, "div", "runes")
	if runes == nil {
		return nil, fmt.Errorf("%w: no runes section", guide.ErrMalformed)
	}
	if build.Runes.PrimaryStyle, err = intAttr(runes, "data-primary"); err != nil {
		return nil, err
	}
	if build.Runes.SubStyle, err = intAttr(runes, "data-sub"); err != nil {
		return nil, err
	}
	if build.Runes.Perks, err = collectIDs(runes, "img", "perk", "data-perk-id", ""); err != nil {
		return nil, err
	}
	if build.Runes.StatShards, err = collectIDs(runes, "img", "shard", "data-shard-id", ""); err != nil {
		return nil, err
	}

	walk(doc, func(n *html.Node) bool {
		if isElement(n, "li", "skill") {
			build.SkillOrder = append(build.SkillOrder, strings.ToUpper(strings.TrimSpace(textContent(n))))
		}
		return true
	})

	if wr := findElement(doc, "span", "winrate"); wr != nil {
		if raw, ok := attr(wr, "data-value"); ok {
			value, err := decimal.NewFromString(strings.TrimSuffix(strings.TrimSpace(raw), "%"))
			if err != nil {
				return nil, fmt.Errorf("%w: win rate %q: %w", guide.ErrMalformed, raw, err)
			}
			build.WinRate = decimal.NewNullDecimal(value)
		}
	}

	return build, nil
}

// walk visits n and its descendants in document order; fn returns false to skip a subtree
func walk(n *html.Node, fn func(*html.Node) bool) {
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func findElement(root *html.Node, tag, class string) *html.Node {
	var found *html.Node
	walk(root, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if isElement(n, tag, class) {
			found = n
			return false
		}
		return true
	})
	return found
}

func isElement(n *html.Node, tag, class string) bool {
	if n.Type != html.ElementNode || n.Data != tag {
		return false
	}
	classes, _ := attr(n, "class")
	return slices.Contains(strings.Fields(classes), class)
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func intAttr(n *html.Node, key string) (int, error) {
	raw, ok := attr(n, key)
	if !ok {
		return 0, fmt.Errorf("%w: missing %s", guide.ErrMalformed, key)
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not a number", guide.ErrMalformed, key, raw)
	}
	return v, nil
}

// collectIDs returns the integer attribute of every matching element under root,
// skipping subtrees of elements carrying the skip class
func collectIDs(root *html.Node, tag, class, key, skip string) ([]int, error) {
	var (
		ids []int
		err error
	)
	walk(root, func(n *html.Node) bool {
		if err != nil {
			return false
		}
		if skip != "" && n != root && n.Type == html.ElementNode {
			if classes, _ := attr(n, "class"); slices.Contains(strings.Fields(classes), skip) {
				return false
			}
		}
		if isElement(n, tag, class) {
			var id int
			if id, err = intAttr(n, key); err == nil {
				ids = append(ids, id)
			}
		}
		return true
	})
	return ids, err
}

func textContent(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
		return true
	})
	return b.String()
}
