package sources_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/runebook/runebook-gateway/internal/guide"
	"github.com/runebook/runebook-gateway/internal/httpclient"
	"github.com/runebook/runebook-gateway/internal/sources"
)

const ahriPage = `<!DOCTYPE html>
<html><body>
<header><h1>Ahri</h1><span class="winrate" data-value="51.84%">51.84%</span></header>
<div class="starters">
  <img class="item" data-item-id="1056" alt="Doran's Ring">
  <img class="item" data-item-id="2003" alt="Health Potion">
</div>
<div class="build primary">
  <img class="item" data-item-id="6655">
  <img class="item" data-item-id="3020">
  <img class="item" data-item-id="4645">
</div>
<div class="build alternative">
  <img class="item" data-item-id="3157">
</div>
<div class="runes" data-primary="8100" data-sub="8300">
  <img class="perk" data-perk-id="8112">
  <img class="perk" data-perk-id="8139">
  <img class="perk" data-perk-id="8138">
  <img class="perk" data-perk-id="8135">
  <img class="perk" data-perk-id="8345">
  <img class="perk" data-perk-id="8347">
  <img class="shard" data-shard-id="5008">
  <img class="shard" data-shard-id="5008">
  <img class="shard" data-shard-id="5002">
</div>
<ol class="skills">
  <li class="skill">Q</li><li class="skill">w</li><li class="skill"> E </li>
</ol>
</body></html>`

var _ = Describe("ProbuildSource", func() {
	var (
		server   *httptest.Server
		requests atomic.Int32
		lastPath atomic.Value
		accept   atomic.Value
		status   int
		page     string
		source   *sources.ProbuildSource
		ctx      context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		requests.Store(0)
		status = http.StatusOK
		page = ahriPage

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			lastPath.Store(r.URL.Path)
			accept.Store(r.Header.Get("Accept"))
			w.WriteHeader(status)
			_, _ = w.Write([]byte(page))
		}))

		source = sources.NewProbuildSource("probuild", server.URL, httpclient.NewDefaultClient(0),
			sources.WithPatchFunc(func(context.Context) (string, error) { return "14.20.1", nil }))
	})

	AfterEach(func() {
		server.Close()
	})

	It("reports its id", func() {
		Expect(source.ID()).To(Equal("probuild"))
	})

	Context("with a complete guide page", func() {
		It("normalizes the build", func() {
			build, err := source.FetchBuild(ctx, "Ahri")
			Expect(err).NotTo(HaveOccurred())

			Expect(lastPath.Load()).To(Equal("/champion/Ahri"))
			Expect(accept.Load()).To(ContainSubstring("text/html"))

			Expect(build.Source).To(Equal("probuild"))
			Expect(build.Champion).To(Equal("Ahri"))
			Expect(build.Patch).To(Equal("14.20.1"))
			Expect(build.Items).To(Equal([]int{6655, 3020, 4645}))
			Expect(build.StarterItems).To(Equal([]int{1056, 2003}))
			Expect(build.SkillOrder).To(Equal([]string{"Q", "W", "E"}))
			Expect(build.Runes.PrimaryStyle).To(Equal(8100))
			Expect(build.Runes.SubStyle).To(Equal(8300))
			Expect(build.Runes.Perks).To(Equal([]int{8112, 8139, 8138, 8135, 8345, 8347}))
			Expect(build.Runes.StatShards).To(Equal([]int{5008, 5008, 5002}))
			Expect(build.WinRate.Valid).To(BeTrue())
			Expect(build.WinRate.Decimal.String()).To(Equal("51.84"))
		})
	})

	Context("when the provider has no data for the champion", func() {
		It("maps a no-data page to ErrNotFound", func() {
			page = `<html><body><div class="no-data">No builds yet</div></body></html>`

			_, err := source.FetchBuild(ctx, "Briar")
			Expect(errors.Is(err, guide.ErrNotFound)).To(BeTrue())
		})

		It("maps HTTP 404 to ErrNotFound", func() {
			status = http.StatusNotFound

			_, err := source.FetchBuild(ctx, "Briar")
			Expect(errors.Is(err, guide.ErrNotFound)).To(BeTrue())
		})
	})

	Context("with a malformed page", func() {
		DescribeTable("never returns a partial build",
			func(body string) {
				page = body

				build, err := source.FetchBuild(ctx, "Ahri")
				Expect(build).To(BeNil())
				Expect(errors.Is(err, guide.ErrMalformed)).To(BeTrue(), "error: %v", err)
			},
			Entry("no build section", `<div class="runes" data-primary="8100" data-sub="8300"><img class="perk" data-perk-id="8112"></div>`),
			Entry("empty build section", `<div class="build"></div><div class="runes" data-primary="8100" data-sub="8300"><img class="perk" data-perk-id="8112"></div>`),
			Entry("no runes section", `<div class="build"><img class="item" data-item-id="6655"></div>`),
			Entry("non-numeric item", `<div class="build"><img class="item" data-item-id="boots"></div>`),
			Entry("missing primary style", `<div class="build"><img class="item" data-item-id="6655"></div><div class="runes" data-sub="8300"><img class="perk" data-perk-id="8112"></div>`),
			Entry("runes without perks", `<div class="build"><img class="item" data-item-id="6655"></div><div class="runes" data-primary="8100" data-sub="8300"></div>`),
			Entry("garbage", "\x00\x01 not html at all"),
		)
	})

	Context("when the upstream fails", func() {
		It("passes transport errors through", func() {
			status = http.StatusBadGateway

			_, err := source.FetchBuild(ctx, "Ahri")
			Expect(err).To(HaveOccurred())
			Expect(httpclient.StatusCode(err)).To(Equal(http.StatusBadGateway))
			Expect(errors.Is(err, guide.ErrNotFound)).To(BeFalse())
		})
	})

	Context("when the patch is unknown", func() {
		It("still returns the build with an empty patch tag", func() {
			source = sources.NewProbuildSource("probuild", server.URL, httpclient.NewDefaultClient(0),
				sources.WithPatchFunc(func(context.Context) (string, error) { return "", errors.New("ddragon down") }))

			build, err := source.FetchBuild(ctx, "Ahri")
			Expect(err).NotTo(HaveOccurred())
			Expect(build.Patch).To(BeEmpty())
		})
	})
})
