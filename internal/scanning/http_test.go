package scanning

import (
	"context"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("HTTP", func() {
	var (
		server    *ghttp.Server
		extractor *HTTP
		image     EncodedImage
		ctx       context.Context
		text      string
		err       error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		image = EncodedImage{MIMEType: "image/jpeg", Data: "aGVsbG8="}
		ctx = context.Background()

		var nerr error
		extractor, nerr = NewHTTP(server.URL()+"/extract", "secret", time.Second)
		Expect(nerr).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		text, err = extractor.Extract(ctx, image, "read this")
	})

	When("the service replies with text", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/extract"),
				ghttp.VerifyHeaderKV("Authorization", "Bearer secret"),
				ghttp.VerifyJSON(`{"instructions": "read this", "image": {"mimeType": "image/jpeg", "data": "aGVsbG8="}}`),
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]string{"text": `{"shopName": "A"}`}),
			))
		})

		It("returns the text", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal(`{"shopName": "A"}`))
		})

		It("makes a single request", func() {
			Expect(server.ReceivedRequests()).To(HaveLen(1))
		})
	})

	When("the service replies in the Ollama chat shape", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
				"message": map[string]string{"role": "assistant", "content": "hello"},
				"done":    true,
			}))
		})

		It("returns the message content", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("hello"))
		})
	})

	When("the service returns an error status", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusBadGateway, "upstream down"))
		})

		It("returns a status error", func() {
			Expect(err).To(MatchError(&ServiceError{Kind: Status}))
			Expect(err.(*ServiceError).StatusCode).To(Equal(http.StatusBadGateway))
		})

		It("does not retry", func() {
			Expect(server.ReceivedRequests()).To(HaveLen(1))
		})
	})

	When("the envelope is not JSON", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusOK, "<html>"))
		})

		It("returns an envelope error", func() {
			Expect(err).To(MatchError(&ServiceError{Kind: Envelope}))
		})
	})

	When("the envelope has no text", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]string{}))
		})

		It("returns an envelope error", func() {
			Expect(err).To(MatchError(&ServiceError{Kind: Envelope}))
		})
	})

	When("the service is too slow", func() {
		BeforeEach(func() {
			extractor.timeout = 50 * time.Millisecond
			server.AppendHandlers(func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(300 * time.Millisecond)
			})
		})

		It("returns a timeout error", func() {
			Expect(err).To(MatchError(ErrTimeout))
		})
	})

	When("the service is unreachable", func() {
		BeforeEach(func() {
			server.Close()
		})

		It("returns a transport error", func() {
			Expect(err).To(MatchError(&ServiceError{Kind: Transport}))
		})
	})
})

var _ = Describe("NewHTTP", func() {
	It("requires a url", func() {
		_, err := NewHTTP("", "", 0)
		Expect(err).To(HaveOccurred())
	})

	It("defaults the timeout", func() {
		h, err := NewHTTP("http://localhost", "", 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(h.timeout).To(Equal(DefaultTimeout))
	})
})
