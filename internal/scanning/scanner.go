package scanning

import (
	"context"
	"errors"
	"fmt"
)

// ReceiptPrompt is the instruction text sent alongside every receipt image
const ReceiptPrompt = `Analyze this receipt image and extract ONLY the following information:
1. Store/Shop name
2. Total amount paid

The shop name is usually the largest text at the top of the receipt, for example "Walmart", "CVS Pharmacy" or "Target".
The total is the final amount due, usually labeled "TOTAL", "Amount Due" or "Grand Total".

Return ONLY a JSON object with this exact format:
{
  "shopName": "store name here",
  "totalAmount": numeric_amount_here
}`

// EncodedImage is a normalized image ready to embed in a JSON request
type EncodedImage struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64, standard encoding
}

// ExtractedReceipt is the validated result of parsing a model reply
type ExtractedReceipt struct {
	ShopName    string  `json:"shopName"`
	TotalAmount float64 `json:"totalAmount"`
}

// Extractor sends an encoded image plus instructions to a multimodal model
type Extractor interface {
	// Extract returns the model's raw text reply. It makes exactly one call.
	Extract(ctx context.Context, image EncodedImage, instructions string) (string, error)
	// Close releases resources held by the client
	Close() error
}

// ServiceErrorKind classifies extraction failures
type ServiceErrorKind int

const (
	Transport ServiceErrorKind = iota + 1
	Timeout
	Status
	Envelope
)

func (k ServiceErrorKind) String() string {
	switch k {
	case Transport:
		return "transport"
	case Timeout:
		return "timeout"
	case Status:
		return "status"
	case Envelope:
		return "envelope"
	}
	return "unknown"
}

// ServiceError reports a failed call to the extraction service
type ServiceError struct {
	Kind       ServiceErrorKind
	StatusCode int
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("extraction service %s error (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("extraction service %s error: %v", e.Kind, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Is matches another *ServiceError of the same kind
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	return ok && t.Kind == e.Kind && t.Err == nil
}

// ErrTimeout matches any timed out extraction call.
var ErrTimeout = &ServiceError{Kind: Timeout}

// serviceError classifies err, using ctx to tell deadlines apart from
// other transport failures.
func serviceError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &ServiceError{Kind: Timeout, Err: err}
	}
	return &ServiceError{Kind: Transport, Err: err}
}

// ProcessingError reports an image that could not be resized or encoded
type ProcessingError struct {
	Stage string
	Err   error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing image (%s): %v", e.Stage, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}
