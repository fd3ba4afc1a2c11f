package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/zombor/receipt-wallet/internal/advisor"
	"github.com/zombor/receipt-wallet/internal/capture"
	"github.com/zombor/receipt-wallet/internal/pipeline"
	"github.com/zombor/receipt-wallet/internal/receipt"
	"github.com/zombor/receipt-wallet/internal/report"
	"github.com/zombor/receipt-wallet/internal/session"
)

// receiptView adds the two decimal display amount
type receiptView struct {
	receipt.Receipt
	DisplayAmount string `json:"displayAmount"`
}

func viewOf(r receipt.Receipt) receiptView {
	return receiptView{Receipt: r, DisplayAmount: report.FormatAmount(r.TotalAmount)}
}

func jsonError(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, gin.H{"error": message})
}

// storageError logs err and reports a generic failure
func storageError(c *gin.Context, what string, err error) {
	slog.Error("Error "+what, "error", err)
	jsonError(c, http.StatusInternalServerError, "Internal server error")
}

func (s *Server) handleGetScan(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Pipeline.Snapshot())
}

// handleScan runs the pipeline on an uploaded photo. A dismissed picker is
// reported with cancelled=true.
func (s *Server) handleScan(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	useCamera := c.PostForm("source") == capture.Camera.String()

	var picker capture.Picker
	if c.PostForm("cancelled") == "true" {
		picker = capture.Cancelled()
	} else {
		photo, err := readPhoto(c)
		if err != nil {
			slog.Error("Error reading upload", "error", err)
			jsonError(c, http.StatusBadRequest, uploadErrorMessage(err))
			return
		}
		picker = capture.Upload(photo)
	}

	snapshot, err := s.deps.Pipeline.Scan(c.Request.Context(), useCamera, picker)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, snapshot)
	case errors.Is(err, pipeline.ErrBusy):
		jsonError(c, http.StatusConflict, "A receipt is already being scanned")
	case errors.Is(err, context.Canceled):
		c.AbortWithStatus(http.StatusRequestTimeout)
	default:
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, snapshot)
	}
}

func readPhoto(c *gin.Context) (capture.Photo, error) {
	header, err := c.FormFile("file")
	if err != nil {
		return capture.Photo{}, err
	}
	f, err := header.Open()
	if err != nil {
		return capture.Photo{}, fmt.Errorf("opening upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return capture.Photo{}, fmt.Errorf("reading upload: %w", err)
	}
	return capture.Photo{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func uploadErrorMessage(err error) string {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge), strings.Contains(err.Error(), "request body too large"):
		return "File is too large. Maximum size is 50MB. Please compress or resize your image."
	case errors.Is(err, http.ErrMissingFile):
		return "No file was selected. Please choose a file to upload."
	}
	return "Error reading upload"
}

func (s *Server) handleSaveScan(c *gin.Context) {
	saved, err := s.deps.Pipeline.Save()
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, viewOf(saved))
	case errors.Is(err, pipeline.ErrNoPending):
		jsonError(c, http.StatusConflict, "There is no scanned receipt to save")
	case errors.Is(err, receipt.ErrInvalid):
		jsonError(c, http.StatusBadRequest, err.Error())
	default:
		storageError(c, "saving receipt", err)
	}
}

func (s *Server) handleDiscardScan(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Pipeline.Discard())
}

func (s *Server) handleListReceipts(c *gin.Context) {
	list, err := s.deps.Receipts.LoadAll()
	if err != nil {
		storageError(c, "listing receipts", err)
		return
	}

	views := make([]receiptView, 0, len(list))
	for _, r := range list {
		views = append(views, viewOf(r))
	}
	c.JSON(http.StatusOK, views)
}

func (s *Server) handleGetReceipt(c *gin.Context) {
	r, ok := s.findReceipt(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, viewOf(r))
}

func (s *Server) handleGetReceiptImage(c *gin.Context) {
	r, ok := s.findReceipt(c)
	if !ok {
		return
	}

	data, err := s.deps.Images.Get(r.ImageURI)
	if err != nil {
		slog.Warn("Receipt image unavailable", "id", r.ID, "image", r.ImageURI, "error", err)
		jsonError(c, http.StatusNotFound, "Receipt image not found")
		return
	}
	c.Data(http.StatusOK, http.DetectContentType(data), data)
}

func (s *Server) findReceipt(c *gin.Context) (receipt.Receipt, bool) {
	r, err := s.deps.Receipts.Get(c.Param("id"))
	if errors.Is(err, receipt.ErrNotFound) {
		jsonError(c, http.StatusNotFound, "Receipt not found")
		return receipt.Receipt{}, false
	}
	if err != nil {
		storageError(c, "getting receipt", err)
		return receipt.Receipt{}, false
	}
	return r, true
}

// handleDeleteReceipt removes the record. The image file is kept.
func (s *Server) handleDeleteReceipt(c *gin.Context) {
	_, err := s.deps.Receipts.Remove(c.Param("id"))
	if errors.Is(err, receipt.ErrNotFound) {
		jsonError(c, http.StatusNotFound, "Receipt not found")
		return
	}
	if err != nil {
		storageError(c, "deleting receipt", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleStats(c *gin.Context) {
	list, err := s.deps.Receipts.LoadAll()
	if err != nil {
		storageError(c, "loading receipts", err)
		return
	}
	c.JSON(http.StatusOK, report.Summarize(list, s.now()))
}

func (s *Server) handleExport(c *gin.Context) {
	list, err := s.deps.Receipts.LoadAll()
	if err != nil {
		storageError(c, "loading receipts", err)
		return
	}

	var buf bytes.Buffer
	if err := s.export(&buf, list); err != nil {
		storageError(c, "writing export", err)
		return
	}

	fileName := fmt.Sprintf("receipts_%s.xlsx", s.now().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", fileName))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

func (s *Server) handleGreeting(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Advisor.Greeting())
}

type chatRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonError(c, http.StatusBadRequest, "Invalid request")
		return
	}

	reply, err := s.deps.Advisor.Ask(c.Request.Context(), req.Message)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, reply)
	case errors.Is(err, advisor.ErrEmptyQuestion):
		jsonError(c, http.StatusBadRequest, "Message is required")
	case errors.Is(err, advisor.ErrDisabled):
		jsonError(c, http.StatusServiceUnavailable, "Financial advisor is not available")
	default:
		storageError(c, "answering question", err)
	}
}

func (s *Server) handleGetSession(c *gin.Context) {
	user, err := s.deps.Session.Current()
	if errors.Is(err, session.ErrSignedOut) {
		jsonError(c, http.StatusUnauthorized, "Not signed in")
		return
	}
	if err != nil {
		storageError(c, "reading session", err)
		return
	}
	needsOnboarding, err := s.deps.Session.NeedsOnboarding()
	if err != nil {
		storageError(c, "reading session", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user, "needsOnboarding": needsOnboarding})
}

func (s *Server) handleLoginURL(c *gin.Context) {
	state := c.Query("state")
	if state == "" {
		state = uuid.NewString()
	}
	url, err := s.deps.Session.AuthCodeURL(state)
	if err != nil {
		jsonError(c, http.StatusServiceUnavailable, "Sign-in is not configured")
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url, "state": state})
}

type signInRequest struct {
	Code string `json:"code"`
}

func (s *Server) handleSignIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Code) == "" {
		jsonError(c, http.StatusBadRequest, "Authorization code is required")
		return
	}

	user, err := s.deps.Session.SignIn(c.Request.Context(), req.Code)
	if errors.Is(err, session.ErrNoProvider) {
		jsonError(c, http.StatusServiceUnavailable, "Sign-in is not configured")
		return
	}
	if err != nil {
		slog.Error("Sign in error", "error", err)
		jsonError(c, http.StatusBadGateway, "Sign in failed")
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (s *Server) handleSignOut(c *gin.Context) {
	if err := s.deps.Session.SignOut(); err != nil {
		storageError(c, "signing out", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleUpdateProfile(c *gin.Context) {
	var form session.ProfileForm
	if err := c.ShouldBindJSON(&form); err != nil {
		jsonError(c, http.StatusBadRequest, "Invalid profile")
		return
	}

	user, err := s.deps.Session.UpdateProfile(form)
	if errors.Is(err, session.ErrSignedOut) {
		jsonError(c, http.StatusUnauthorized, "Not signed in")
		return
	}
	if err != nil {
		storageError(c, "saving profile", err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (s *Server) handleGetTheme(c *gin.Context) {
	theme, err := s.deps.Session.Theme()
	if err != nil {
		storageError(c, "reading theme", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"theme": theme})
}

type themeRequest struct {
	Theme string `json:"theme"`
}

func (s *Server) handleSetTheme(c *gin.Context) {
	var req themeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonError(c, http.StatusBadRequest, "Invalid request")
		return
	}

	err := s.deps.Session.SetTheme(req.Theme)
	if errors.Is(err, session.ErrInvalidTheme) {
		jsonError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		storageError(c, "saving theme", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"theme": req.Theme})
}
