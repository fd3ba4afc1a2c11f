// Package capture acquires receipt photos from the camera or the photo
// library and keeps them in local storage.
package capture

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Source selects where a photo comes from
type Source int

const (
	Library Source = iota
	Camera
)

func (s Source) String() string {
	if s == Camera {
		return "camera"
	}
	return "library"
}

var (
	// ErrCancelled is returned when the user backs out of the picker. It is
	// not a failure.
	ErrCancelled = errors.New("capture cancelled")
	// ErrPermissionDenied is returned for camera captures without permission
	ErrPermissionDenied = errors.New("camera permission denied")
)

// CaptureError reports a picker or storage failure
type CaptureError struct {
	Source Source
	Err    error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capturing from %s: %v", e.Source, e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// Photo is the raw output of a picker
type Photo struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Picker presents a platform picker and returns the chosen photo, or
// ErrCancelled.
type Picker interface {
	Pick(ctx context.Context, source Source) (Photo, error)
}

// PickerFunc adapts a function to the Picker interface
type PickerFunc func(ctx context.Context, source Source) (Photo, error)

func (f PickerFunc) Pick(ctx context.Context, source Source) (Photo, error) {
	return f(ctx, source)
}

// Upload is a picker that returns an already chosen photo
func Upload(photo Photo) Picker {
	return PickerFunc(func(context.Context, Source) (Photo, error) {
		return photo, nil
	})
}

// Cancelled is a picker the user backed out of
func Cancelled() Picker {
	return PickerFunc(func(context.Context, Source) (Photo, error) {
		return Photo{}, ErrCancelled
	})
}

// Permissions reports whether camera access was granted
type Permissions interface {
	CameraGranted() bool
}

// StaticPermissions is a fixed permission answer
type StaticPermissions bool

func (p StaticPermissions) CameraGranted() bool {
	return bool(p)
}

// Acquirer runs a picker and stores the result, returning a local image
// reference.
type Acquirer struct {
	storage     Storage
	permissions Permissions
	newName     func() string
}

// NewAcquirer creates a new Acquirer
func NewAcquirer(storage Storage, permissions Permissions) *Acquirer {
	if permissions == nil {
		permissions = StaticPermissions(true)
	}
	return &Acquirer{
		storage:     storage,
		permissions: permissions,
		newName:     uuid.NewString,
	}
}

// Capture picks a photo and saves it. Camera captures require a previously
// granted permission, library captures do not.
func (a *Acquirer) Capture(ctx context.Context, useCamera bool, picker Picker) (string, error) {
	source := Library
	if useCamera {
		source = Camera
		if !a.permissions.CameraGranted() {
			return "", ErrPermissionDenied
		}
	}

	photo, err := picker.Pick(ctx, source)
	if errors.Is(err, ErrCancelled) {
		return "", ErrCancelled
	}
	if err != nil {
		return "", &CaptureError{Source: source, Err: err}
	}
	if len(photo.Data) == 0 {
		return "", &CaptureError{Source: source, Err: errors.New("picker returned an empty photo")}
	}

	ref, err := a.storage.Save(a.newName()+extension(photo), photo.Data)
	if err != nil {
		return "", &CaptureError{Source: source, Err: err}
	}
	return ref, nil
}

var extensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/heic":      ".heic",
	"image/heif":      ".heif",
	"application/pdf": ".pdf",
}

func extension(photo Photo) string {
	contentType := strings.ToLower(strings.TrimSpace(photo.ContentType))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(photo.Data)
	}
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	if ext, ok := extensions[contentType]; ok {
		return ext
	}
	if ext := strings.ToLower(filepath.Ext(photo.Filename)); ext != "" {
		return ext
	}
	return ".img"
}
