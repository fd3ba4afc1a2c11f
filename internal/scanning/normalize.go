package scanning

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif" // Register GIF decoder
	"image/jpeg"
	_ "image/png" // Register PNG decoder
	"math"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
	"golang.org/x/image/draw"
)

const (
	// DefaultMaxWidth bounds the width of images sent for extraction
	DefaultMaxWidth = 1024
	// DefaultQuality is the JPEG quality used when re-encoding
	DefaultQuality = 70
)

// Normalizer shrinks and re-encodes images to bound request size
type Normalizer struct {
	MaxWidth int
	Quality  int
}

// Normalize decodes imageData, scales it down to DefaultMaxWidth and
// returns it as base64 JPEG.
func Normalize(imageData []byte) (EncodedImage, error) {
	return Normalizer{}.Normalize(imageData)
}

// Normalize decodes imageData (JPEG, PNG, GIF, HEIC/HEIF or the first page
// of a PDF), scales it to at most MaxWidth pixels wide preserving aspect
// ratio and re-encodes it as JPEG. Images are never scaled up.
func (n Normalizer) Normalize(imageData []byte) (EncodedImage, error) {
	maxWidth := n.MaxWidth
	if maxWidth <= 0 {
		maxWidth = DefaultMaxWidth
	}
	quality := n.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	img, err := decodeImage(imageData)
	if err != nil {
		return EncodedImage{}, &ProcessingError{Stage: "decode", Err: err}
	}

	resized, err := resize(img, maxWidth)
	if err != nil {
		return EncodedImage{}, &ProcessingError{Stage: "resize", Err: err}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: quality}); err != nil {
		return EncodedImage{}, &ProcessingError{Stage: "encode", Err: err}
	}

	return EncodedImage{
		MIMEType: "image/jpeg",
		Data:     base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}

// resize draws img onto a white canvas at most width pixels wide
func resize(img image.Image, width int) (image.Image, error) {
	src := img.Bounds()
	if src.Dx() <= 0 || src.Dy() <= 0 {
		return nil, errors.New("image has no pixels")
	}

	w, h := src.Dx(), src.Dy()
	if w > width {
		h = int(math.Round(float64(h) * float64(width) / float64(w)))
		w = width
		if h < 1 {
			h = 1
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	// JPEG has no alpha, flatten transparency onto white
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, src, draw.Over, nil)
	return dst, nil
}

func decodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, errors.New("empty image")
	}

	switch {
	case isPDF(data):
		return pdfToImage(data)
	case isHEICFormat(data):
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if strings.Contains(err.Error(), "unknown format") {
			return nil, fmt.Errorf("unsupported image format. Supported formats: JPEG, PNG, GIF, HEIC, HEIF, PDF. Error: %w", err)
		}
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// pdfToImage renders the first page of a PDF
func pdfToImage(pdfData []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

func isPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

// isHEICFormat checks for an ftyp box with a HEIC-related brand
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}
