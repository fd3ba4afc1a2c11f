// Package pipeline sequences a receipt scan from capture to save.
//
// The orchestrator moves through Idle, Capturing, Normalizing, Extracting,
// Parsing and then ReviewPending or Failed. Only one scan runs at a time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/receipt-wallet/internal/capture"
	"github.com/zombor/receipt-wallet/internal/receipt"
	"github.com/zombor/receipt-wallet/internal/scanning"
)

// State is a stage of the scan pipeline
type State int

const (
	Idle State = iota
	Capturing
	Normalizing
	Extracting
	Parsing
	ReviewPending
	Failed
)

var stateNames = [...]string{"idle", "capturing", "normalizing", "extracting", "parsing", "review_pending", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText renders the state name in JSON
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// canStart reports whether a new scan may begin. A pending result is
// discarded by starting over.
func (s State) canStart() bool {
	return s == Idle || s == Failed || s == ReviewPending
}

var (
	// ErrBusy is returned when a scan is already in flight
	ErrBusy = errors.New("a scan is already in progress")
	// ErrNoPending is returned when there is nothing to save
	ErrNoPending = errors.New("no scanned receipt is awaiting review")
)

// PendingReceipt is an extracted receipt awaiting the user's confirmation
type PendingReceipt struct {
	ShopName    string  `json:"shopName"`
	TotalAmount float64 `json:"totalAmount"`
	ImageRef    string  `json:"imageUri"`
}

// Snapshot is the user-visible pipeline state
type Snapshot struct {
	State   State           `json:"state"`
	Pending *PendingReceipt `json:"pending,omitempty"`
	Message string          `json:"message,omitempty"`
}

// IDGenerator generates unique IDs for receipts
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Acquirer captures a photo and returns its local reference
type Acquirer interface {
	Capture(ctx context.Context, useCamera bool, picker capture.Picker) (string, error)
}

// Normalizer prepares image bytes for extraction
type Normalizer interface {
	Normalize(imageData []byte) (scanning.EncodedImage, error)
}

// Store persists confirmed receipts
type Store interface {
	Append(r receipt.Receipt) (receipt.List, error)
}

// Orchestrator runs the scan pipeline and holds the pending result
type Orchestrator struct {
	acquirer     Acquirer
	images       capture.Storage
	normalizer   Normalizer
	extractor    scanning.Extractor
	store        Store
	idGenerator  IDGenerator
	timeSource   TimeSource
	instructions string

	mu      sync.Mutex
	state   State
	pending *PendingReceipt
	message string
	run     uint64
	cancel  context.CancelFunc
}

// NewOrchestrator creates a new Orchestrator with default normalizer, ID
// generator and time source
func NewOrchestrator(acquirer Acquirer, images capture.Storage, extractor scanning.Extractor, store Store) *Orchestrator {
	return NewOrchestratorWithDeps(acquirer, images, scanning.Normalizer{}, extractor, store, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewOrchestratorWithDeps creates a new Orchestrator with custom dependencies for testing
func NewOrchestratorWithDeps(acquirer Acquirer, images capture.Storage, normalizer Normalizer, extractor scanning.Extractor, store Store, idGen IDGenerator, timeSrc TimeSource) *Orchestrator {
	return &Orchestrator{
		acquirer:     acquirer,
		images:       images,
		normalizer:   normalizer,
		extractor:    extractor,
		store:        store,
		idGenerator:  idGen,
		timeSource:   timeSrc,
		instructions: scanning.ReceiptPrompt,
	}
}

// Snapshot returns the current state
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	s := Snapshot{State: o.state, Message: o.message}
	if o.pending != nil {
		p := *o.pending
		s.Pending = &p
	}
	return s
}

// Scan captures a photo, extracts its shop name and total and leaves the
// result pending review. A cancelled picker returns to Idle without an
// error. Stage failures move to Failed and are returned along with the
// snapshot carrying the user message. Cancelling ctx abandons the scan
// without touching state.
func (o *Orchestrator) Scan(ctx context.Context, useCamera bool, picker capture.Picker) (Snapshot, error) {
	ctx, run, err := o.begin(ctx)
	if err != nil {
		return o.Snapshot(), err
	}
	defer o.finish(run)

	ref, err := o.acquirer.Capture(ctx, useCamera, picker)
	if errors.Is(err, capture.ErrCancelled) {
		return o.reset(run), nil
	}
	if err != nil {
		return o.fail(ctx, run, "", err)
	}

	if !o.advance(run, Normalizing) {
		return o.abandon(ctx, run, ref)
	}
	data, err := o.images.Get(ref)
	if err != nil {
		return o.fail(ctx, run, ref, &scanning.ProcessingError{Stage: "read", Err: err})
	}
	image, err := o.normalizer.Normalize(data)
	if err != nil {
		return o.fail(ctx, run, ref, err)
	}

	if !o.advance(run, Extracting) {
		return o.abandon(ctx, run, ref)
	}
	text, err := o.extractor.Extract(ctx, image, o.instructions)
	if err != nil {
		return o.fail(ctx, run, ref, err)
	}

	if !o.advance(run, Parsing) {
		return o.abandon(ctx, run, ref)
	}
	extracted, err := scanning.Parse(text)
	if err != nil {
		slog.Warn("Failed to parse extraction reply", "image", ref, "reply", text, "error", err)
		return o.fail(ctx, run, ref, err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.run != run || ctx.Err() != nil {
		return o.abandonLocked(ctx, run, ref)
	}
	o.state = ReviewPending
	o.pending = &PendingReceipt{ShopName: extracted.ShopName, TotalAmount: extracted.TotalAmount, ImageRef: ref}
	slog.Info("Receipt scanned", "shop", extracted.ShopName, "amount", extracted.TotalAmount, "image", ref)
	return o.snapshotLocked(), nil
}

// Save persists the pending result as a new receipt dated now. The pending
// result survives a failed write so the user can retry.
func (o *Orchestrator) Save() (receipt.Receipt, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != ReviewPending || o.pending == nil {
		return receipt.Receipt{}, ErrNoPending
	}

	r := receipt.Receipt{
		ID:          o.idGenerator.Generate(),
		ShopName:    o.pending.ShopName,
		TotalAmount: o.pending.TotalAmount,
		Date:        o.timeSource.Now().UTC(),
		ImageURI:    o.pending.ImageRef,
	}
	if _, err := o.store.Append(r); err != nil {
		return receipt.Receipt{}, fmt.Errorf("saving receipt: %w", err)
	}

	o.state = Idle
	o.pending = nil
	o.message = ""
	return r, nil
}

// Discard drops a pending result or failure, or abandons a scan in flight
func (o *Orchestrator) Discard() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.pending != nil {
		o.deleteImage(o.pending.ImageRef)
	}
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.run++
	o.state = Idle
	o.pending = nil
	o.message = ""
	return o.snapshotLocked()
}

func (o *Orchestrator) begin(ctx context.Context) (context.Context, uint64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.state.canStart() {
		return nil, 0, ErrBusy
	}
	if o.pending != nil {
		o.deleteImage(o.pending.ImageRef)
	}

	ctx, cancel := context.WithCancel(ctx)
	o.run++
	o.cancel = cancel
	o.state = Capturing
	o.pending = nil
	o.message = ""
	return ctx, o.run, nil
}

// finish releases the run's context
func (o *Orchestrator) finish(run uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.run == run && o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
}

// advance moves a live run to the next stage
func (o *Orchestrator) advance(run uint64, next State) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.run != run {
		return false
	}
	o.state = next
	return true
}

func (o *Orchestrator) reset(run uint64) Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.run == run {
		o.state = Idle
	}
	return o.snapshotLocked()
}

// abandon ends a run that was discarded while in flight
func (o *Orchestrator) abandon(ctx context.Context, run uint64, ref string) (Snapshot, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.abandonLocked(ctx, run, ref)
}

func (o *Orchestrator) abandonLocked(ctx context.Context, run uint64, ref string) (Snapshot, error) {
	o.deleteImage(ref)
	if o.run == run {
		o.state = Idle
	}
	err := context.Cause(ctx)
	if err == nil {
		err = context.Canceled
	}
	return o.snapshotLocked(), err
}

func (o *Orchestrator) fail(ctx context.Context, run uint64, ref string, err error) (Snapshot, error) {
	if ctx.Err() != nil {
		return o.abandon(ctx, run, ref)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if ref != "" {
		o.deleteImage(ref)
	}
	if o.run != run {
		return o.snapshotLocked(), err
	}

	slog.Error("Failed to scan receipt", "image", ref, "error", err)
	o.state = Failed
	o.pending = nil
	o.message = Message(err)
	return o.snapshotLocked(), err
}

func (o *Orchestrator) deleteImage(ref string) {
	if ref == "" {
		return
	}
	if err := o.images.Delete(ref); err != nil {
		slog.Warn("Failed to delete image", "image", ref, "error", err)
	}
}

// Message converts a pipeline error to the text shown to the user
func Message(err error) string {
	var (
		captureErr    *capture.CaptureError
		processingErr *scanning.ProcessingError
		serviceErr    *scanning.ServiceError
		parseErr      *scanning.ParseError
	)

	switch {
	case err == nil, errors.Is(err, capture.ErrCancelled):
		return ""
	case errors.Is(err, capture.ErrPermissionDenied):
		return "Sorry, we need camera permissions to make this work!"
	case errors.As(err, &captureErr):
		return "Error taking photo. Please try again."
	case errors.As(err, &processingErr):
		return "Error processing image. Please try a different photo."
	case errors.As(err, &serviceErr):
		if serviceErr.Kind == scanning.Timeout {
			return "The receipt scan timed out. Please try again."
		}
		return "Could not reach the scanning service. Please check your connection and try again."
	case errors.As(err, &parseErr):
		return "Could not read the shop name and total from this receipt. Please try again with a clearer photo."
	}
	return "Failed to process receipt. Please try again."
}
