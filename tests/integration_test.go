package tests

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/receipt-wallet/internal/advisor"
	"github.com/zombor/receipt-wallet/internal/capture"
	"github.com/zombor/receipt-wallet/internal/kv"
	"github.com/zombor/receipt-wallet/internal/pipeline"
	"github.com/zombor/receipt-wallet/internal/receipt"
	"github.com/zombor/receipt-wallet/internal/scanning"
	"github.com/zombor/receipt-wallet/internal/server"
	"github.com/zombor/receipt-wallet/internal/session"
)

func TestIntegration(t *testing.T) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	gin.SetMode(gin.TestMode)

	RegisterFailHandler(Fail)
	RunSpecs(t, "Integration Suite")
}

func receiptPhoto() []byte {
	var buf bytes.Buffer
	Expect(png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2000, 3000)))).To(Succeed())
	return buf.Bytes()
}

func describeWallet(driver string) {
	Describe("with the "+driver+" store", func() {
		var (
			tempDir  string
			dbPath   string
			db       kv.Store
			model    *ghttp.Server
			ghServer *ghttp.Server
		)

		BeforeEach(func() {
			tempDir = GinkgoT().TempDir()
			dbPath = filepath.Join(tempDir, "wallet.db")

			var err error
			db, err = kv.Open(driver, dbPath)
			Expect(err).NotTo(HaveOccurred())

			images, err := capture.NewLocalStorage(filepath.Join(tempDir, "images"))
			Expect(err).NotTo(HaveOccurred())

			// Stands in for the multimodal model
			model = ghttp.NewServer()
			extractor, err := scanning.NewHTTP(model.URL()+"/v1/extract", "", 5*time.Second)
			Expect(err).NotTo(HaveOccurred())

			receipts := receipt.NewStore(db)
			orchestrator := pipeline.NewOrchestrator(
				capture.NewAcquirer(images, capture.StaticPermissions(true)),
				images, extractor, receipts,
			)

			srv := server.NewServer(server.Deps{
				Receipts: receipts,
				Pipeline: orchestrator,
				Images:   images,
				Advisor:  advisor.New(nil),
				Session:  session.New(db, nil),
			}, server.BasicAuth{})

			ghServer = ghttp.NewServer()
			ghServer.AppendHandlers(srv.ServeHTTP, srv.ServeHTTP, srv.ServeHTTP)
		})

		AfterEach(func() {
			ghServer.Close()
			model.Close()
			if db != nil {
				db.Close()
			}
		})

		It("should scan a receipt photo, save it and keep it across restarts", func() {
			model.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/v1/extract"),
				func(w http.ResponseWriter, r *http.Request) {
					var req struct {
						Instructions string `json:"instructions"`
						Image        struct {
							MIMEType string `json:"mimeType"`
							Data     string `json:"data"`
						} `json:"image"`
					}
					Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())
					Expect(req.Instructions).To(ContainSubstring("shopName"))
					Expect(req.Image.MIMEType).To(Equal("image/jpeg"))
					Expect(req.Image.Data).NotTo(BeEmpty())
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]string{
					"text": "Here is the result:\n```json\n{\"shopName\": \"Walmart\", \"totalAmount\": \"$45.99\"}\n```",
				}),
			))

			// --- Step 1: Scan Request ---
			body := &bytes.Buffer{}
			writer := multipart.NewWriter(body)
			Expect(writer.WriteField("source", "camera")).To(Succeed())
			part, err := writer.CreateFormFile("file", "IMG_2041.png")
			Expect(err).NotTo(HaveOccurred())
			_, err = part.Write(receiptPhoto())
			Expect(err).NotTo(HaveOccurred())
			Expect(writer.Close()).To(Succeed())

			req, err := http.NewRequest(http.MethodPost, ghServer.URL()+"/api/scan", body)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Content-Type", writer.FormDataContentType())

			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var snapshot struct {
				State   string                  `json:"state"`
				Pending pipeline.PendingReceipt `json:"pending"`
			}
			Expect(json.NewDecoder(resp.Body).Decode(&snapshot)).To(Succeed())
			Expect(snapshot.State).To(Equal("review_pending"))
			Expect(snapshot.Pending.ShopName).To(Equal("Walmart"))
			Expect(snapshot.Pending.TotalAmount).To(Equal(45.99))

			// Nothing is stored until the user confirms
			Expect(receipt.NewStore(db).LoadAll()).To(BeEmpty())

			// --- Step 2: Save Request ---
			before := time.Now()
			saveResp, err := http.Post(ghServer.URL()+"/api/scan/save", "application/json", nil)
			Expect(err).NotTo(HaveOccurred())
			defer saveResp.Body.Close()
			Expect(saveResp.StatusCode).To(Equal(http.StatusCreated))

			var saved receipt.Receipt
			Expect(json.NewDecoder(saveResp.Body).Decode(&saved)).To(Succeed())
			Expect(saved.ID).NotTo(BeEmpty())
			Expect(saved.Date).To(BeTemporally(">=", before.Add(-time.Second)))
			Expect(saved.ImageURI).To(Equal(snapshot.Pending.ImageRef))

			// --- Step 3: Image is served ---
			imgResp, err := http.Get(ghServer.URL() + "/api/receipts/" + saved.ID + "/image")
			Expect(err).NotTo(HaveOccurred())
			imgResp.Body.Close()
			Expect(imgResp.StatusCode).To(Equal(http.StatusOK))
			Expect(imgResp.Header.Get("Content-Type")).To(Equal("image/png"))

			// --- Step 4: Restart ---
			Expect(db.Close()).To(Succeed())
			db, err = kv.Open(driver, dbPath)
			Expect(err).NotTo(HaveOccurred())

			list, err := receipt.NewStore(db).LoadAll()
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(HaveLen(1))
			Expect(list[0].ShopName).To(Equal("Walmart"))
			Expect(list[0].TotalAmount).To(Equal(45.99))
		})
	})
}

var _ = Describe("Integration", func() {
	describeWallet("bolt")
	describeWallet("sqlite")
})
