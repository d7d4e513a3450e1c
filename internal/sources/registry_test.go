package sources_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/runebook/runebook-gateway/internal/config"
	"github.com/runebook/runebook-gateway/internal/httpclient"
	"github.com/runebook/runebook-gateway/internal/sources"
	"github.com/runebook/runebook-gateway/internal/sources/mocks"
)

var _ = Describe("Registry", func() {
	var ctrl *gomock.Controller

	BeforeEach(func() {
		ctrl = gomock.NewController(GinkgoT())
	})

	newMock := func(id string) *mocks.MockBuildSource {
		m := mocks.NewMockBuildSource(ctrl)
		m.EXPECT().ID().Return(id).AnyTimes()
		return m
	}

	It("enumerates sources in registration order", func() {
		registry, err := sources.NewRegistry(newMock("probuild"), newMock("lolalytics"), newMock("alpha"))
		Expect(err).NotTo(HaveOccurred())

		Expect(registry.IDs()).To(Equal([]string{"probuild", "lolalytics", "alpha"}))
		Expect(registry.Len()).To(Equal(3))

		src, ok := registry.Get("lolalytics")
		Expect(ok).To(BeTrue())
		Expect(src.ID()).To(Equal("lolalytics"))

		_, ok = registry.Get("ugg")
		Expect(ok).To(BeFalse())
	})

	It("returns a copy of the id list", func() {
		registry, err := sources.NewRegistry(newMock("probuild"))
		Expect(err).NotTo(HaveOccurred())

		ids := registry.IDs()
		ids[0] = "mutated"
		Expect(registry.IDs()).To(Equal([]string{"probuild"}))
	})

	It("rejects duplicate ids", func() {
		_, err := sources.NewRegistry(newMock("probuild"), newMock("probuild"))
		Expect(err).To(MatchError(ContainSubstring("duplicate source id 'probuild'")))
	})

	It("rejects empty ids", func() {
		_, err := sources.NewRegistry(newMock(""))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("NewRegistryFromConfig", func() {
	client := httpclient.NewDefaultClient(0)

	It("creates one adapter per configured source", func() {
		registry, err := sources.NewRegistryFromConfig([]config.SourceConfig{
			{Name: "probuild", Type: config.SourceTypeProbuild, Endpoint: "https://probuild.example.com"},
			{Name: "lolalytics", Type: config.SourceTypeLolalytics, Endpoint: "https://lolalytics.example.com"},
		}, client)
		Expect(err).NotTo(HaveOccurred())
		Expect(registry.IDs()).To(Equal([]string{"probuild", "lolalytics"}))

		src, _ := registry.Get("probuild")
		Expect(src).To(BeAssignableToTypeOf(&sources.ProbuildSource{}))
		src, _ = registry.Get("lolalytics")
		Expect(src).To(BeAssignableToTypeOf(&sources.LolalyticsSource{}))
	})

	It("rejects unknown provider types", func() {
		_, err := sources.NewRegistryFromConfig([]config.SourceConfig{
			{Name: "ugg", Type: "ugg", Endpoint: "https://ugg.example.com"},
		}, client)
		Expect(err).To(MatchError(ContainSubstring("source[0] (ugg): unsupported source type: ugg")))
	})

	It("rejects duplicate names", func() {
		_, err := sources.NewRegistryFromConfig([]config.SourceConfig{
			{Name: "probuild", Type: config.SourceTypeProbuild, Endpoint: "https://a.example.com"},
			{Name: "probuild", Type: config.SourceTypeLolalytics, Endpoint: "https://b.example.com"},
		}, client)
		Expect(err).To(HaveOccurred())
	})

	It("paces outbound requests per source", func() {
		var hits atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			hits.Add(1)
			_, _ = w.Write([]byte(ahriPage))
		}))
		DeferCleanup(server.Close)

		registry, err := sources.NewRegistryFromConfig([]config.SourceConfig{
			{Name: "probuild", Type: config.SourceTypeProbuild, Endpoint: server.URL, RequestsPerSecond: 5},
		}, client)
		Expect(err).NotTo(HaveOccurred())
		src, _ := registry.Get("probuild")

		start := time.Now()
		for range 3 {
			_, err := src.FetchBuild(context.Background(), "Ahri")
			Expect(err).NotTo(HaveOccurred())
		}
		// burst 1 at 5 rps: the 2nd and 3rd requests each wait ~200ms
		Expect(time.Since(start)).To(BeNumerically(">=", 350*time.Millisecond))
		Expect(hits.Load()).To(Equal(int32(3)))
	})

	It("gives up waiting for the limiter when the context ends", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(ahriPage))
		}))
		DeferCleanup(server.Close)

		src, err := sources.NewBuildSource(config.SourceConfig{
			Name: "probuild", Type: config.SourceTypeProbuild, Endpoint: server.URL, RequestsPerSecond: 0.1,
		}, client)
		Expect(err).NotTo(HaveOccurred())

		_, err = src.FetchBuild(context.Background(), "Ahri")
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err = src.FetchBuild(ctx, "Ahri")
		Expect(err).To(MatchError(ContainSubstring("rate limiter")))
	})
})
