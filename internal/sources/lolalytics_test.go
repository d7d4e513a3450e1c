package sources_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/runebook/runebook-gateway/internal/guide"
	"github.com/runebook/runebook-gateway/internal/httpclient"
	"github.com/runebook/runebook-gateway/internal/sources"
)

const ahriMega = `{
  "summary": {
    "wr": 52.137,
    "skillpriority": "QEW",
    "items": {"start": [1056, 2003], "core": [6655, 3020, 4645]},
    "runes": {"pri": 8100, "sec": 8300, "perks": [8112, 8139, 8138, 8135, 8345, 8347], "mod": [5008, 5008, 5002]}
  }
}`

var _ = Describe("LolalyticsSource", func() {
	var (
		server    *httptest.Server
		lastQuery atomic.Value
		status    int
		body      string
		patch     sources.PatchFunc
		source    *sources.LolalyticsSource
		ctx       context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		status = http.StatusOK
		body = ahriMega
		patch = func(context.Context) (string, error) { return "14.20.1", nil }

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/mega/" {
				http.NotFound(w, r)
				return
			}
			lastQuery.Store(r.URL.Query())
			w.WriteHeader(status)
			_, _ = w.Write([]byte(body))
		}))
	})

	JustBeforeEach(func() {
		source = sources.NewLolalyticsSource("lolalytics", server.URL, httpclient.NewDefaultClient(0),
			sources.WithPatchFunc(patch))
	})

	AfterEach(func() {
		server.Close()
	})

	It("queries the build endpoint with the lowercase champion and minor patch", func() {
		build, err := source.FetchBuild(ctx, "Ahri")
		Expect(err).NotTo(HaveOccurred())

		q := lastQuery.Load().(url.Values)
		Expect(q.Get("ep")).To(Equal("build"))
		Expect(q.Get("c")).To(Equal("ahri"))
		Expect(q.Get("patch")).To(Equal("14.20"))

		Expect(build.Source).To(Equal("lolalytics"))
		Expect(build.Champion).To(Equal("Ahri"))
		Expect(build.Patch).To(Equal("14.20.1"))
		Expect(build.Items).To(Equal([]int{6655, 3020, 4645}))
		Expect(build.StarterItems).To(Equal([]int{1056, 2003}))
		Expect(build.SkillOrder).To(Equal([]string{"Q", "E", "W"}))
		Expect(build.Runes.PrimaryStyle).To(Equal(8100))
		Expect(build.Runes.SubStyle).To(Equal(8300))
		Expect(build.Runes.Perks).To(HaveLen(6))
		Expect(build.Runes.StatShards).To(Equal([]int{5008, 5008, 5002}))
		Expect(build.WinRate.Decimal.String()).To(Equal("52.137"))
	})

	Context("when the patch cannot be obtained", func() {
		BeforeEach(func() {
			patch = func(context.Context) (string, error) { return "", errors.New("unavailable") }
		})

		It("omits the patch parameter", func() {
			_, err := source.FetchBuild(ctx, "Ahri")
			Expect(err).NotTo(HaveOccurred())

			q := lastQuery.Load().(url.Values)
			Expect(q.Has("patch")).To(BeFalse())
		})
	})

	It("maps the no-data marker to ErrNotFound", func() {
		body = `{"status": "no data"}`

		_, err := source.FetchBuild(ctx, "Ahri")
		Expect(errors.Is(err, guide.ErrNotFound)).To(BeTrue())
	})

	It("maps HTTP 404 to ErrNotFound", func() {
		status = http.StatusNotFound

		_, err := source.FetchBuild(ctx, "Ahri")
		Expect(errors.Is(err, guide.ErrNotFound)).To(BeTrue())
	})

	It("keeps a missing win rate unset", func() {
		body = `{"summary": {"items": {"core": [3020]}, "runes": {"pri": 8100, "sec": 8300, "perks": [8112]}}}`

		build, err := source.FetchBuild(ctx, "Ahri")
		Expect(err).NotTo(HaveOccurred())
		Expect(build.WinRate.Valid).To(BeFalse())
		Expect(build.StarterItems).To(BeEmpty())
	})

	DescribeTable("malformed documents never yield a build",
		func(doc string) {
			body = doc

			build, err := source.FetchBuild(ctx, "Ahri")
			Expect(build).To(BeNil())
			Expect(errors.Is(err, guide.ErrMalformed)).To(BeTrue(), "error: %v", err)
		},
		Entry("not JSON", `<html>rate limited</html>`),
		Entry("no summary", `{"status": "ok"}`),
		Entry("no core items", `{"summary": {"runes": {"pri": 8100, "sec": 8300, "perks": [8112]}}}`),
		Entry("empty core items", `{"summary": {"items": {"core": []}, "runes": {"pri": 8100, "sec": 8300, "perks": [8112]}}}`),
		Entry("item is a string", `{"summary": {"items": {"core": ["3020"]}, "runes": {"pri": 8100, "sec": 8300, "perks": [8112]}}}`),
		Entry("fractional item", `{"summary": {"items": {"core": [30.5]}, "runes": {"pri": 8100, "sec": 8300, "perks": [8112]}}}`),
		Entry("missing primary style", `{"summary": {"items": {"core": [3020]}, "runes": {"sec": 8300, "perks": [8112]}}}`),
		Entry("perks not an array", `{"summary": {"items": {"core": [3020]}, "runes": {"pri": 8100, "sec": 8300, "perks": 8112}}}`),
		Entry("unknown skill key", `{"summary": {"skillpriority": "QXW", "items": {"core": [3020]}, "runes": {"pri": 8100, "sec": 8300, "perks": [8112]}}}`),
		Entry("win rate as text", `{"summary": {"wr": "high", "items": {"core": [3020]}, "runes": {"pri": 8100, "sec": 8300, "perks": [8112]}}}`),
	)
})
