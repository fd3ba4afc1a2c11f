package session

import (
	"context"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
)

var _ = Describe("GoogleProvider", func() {
	var (
		server   *ghttp.Server
		provider *GoogleProvider
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		DeferCleanup(server.Close)

		var err error
		provider, err = NewGoogleProvider("client-id", "client-secret", "http://localhost/callback")
		Expect(err).NotTo(HaveOccurred())
		provider.config.Endpoint = oauth2.Endpoint{
			AuthURL:   server.URL() + "/auth",
			TokenURL:  server.URL() + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		}
		provider.apiOptions = []option.ClientOption{option.WithEndpoint(server.URL() + "/")}
	})

	It("builds a consent URL", func() {
		url := provider.AuthCodeURL("state-1")
		Expect(url).To(HavePrefix(server.URL() + "/auth?"))
		Expect(url).To(ContainSubstring("state=state-1"))
		Expect(url).To(ContainSubstring("client_id=client-id"))
	})

	It("exchanges the code for an identity", func() {
		server.AppendHandlers(
			ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/token"),
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
					"access_token": "access",
					"token_type":   "Bearer",
					"expires_in":   3600,
				}),
			),
			ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodGet, "/oauth2/v2/userinfo"),
				ghttp.VerifyHeaderKV("Authorization", "Bearer access"),
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
					"id":      "42",
					"name":    "Asha Rao",
					"picture": "https://example.com/a.png",
					"email":   "asha@example.com",
				}),
			),
		)

		identity, err := provider.Exchange(context.Background(), "code")
		Expect(err).NotTo(HaveOccurred())
		Expect(identity).To(Equal(Identity{ID: "42", Name: "Asha Rao", Photo: "https://example.com/a.png", Email: "asha@example.com"}))
	})

	It("returns token errors", func() {
		server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusBadRequest, map[string]string{"error": "invalid_grant"}))

		_, err := provider.Exchange(context.Background(), "bad")
		Expect(err).To(MatchError(ContainSubstring("exchanging code")))
	})

	It("requires a client id", func() {
		_, err := NewGoogleProvider("", "", "")
		Expect(err).To(HaveOccurred())
	})
})
