package scanning

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"image/jpeg"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func pngOf(width, height int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

func decodeEncoded(e EncodedImage) image.Image {
	raw, err := base64.StdEncoding.DecodeString(e.Data)
	Expect(err).NotTo(HaveOccurred())
	img, err := jpeg.Decode(bytes.NewReader(raw))
	Expect(err).NotTo(HaveOccurred())
	return img
}

var _ = Describe("Normalize", func() {
	var (
		input  []byte
		output EncodedImage
		err    error
	)

	JustBeforeEach(func() {
		output, err = Normalize(input)
	})

	When("the image is wider than the limit", func() {
		BeforeEach(func() {
			input = pngOf(2048, 1536)
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should produce a JPEG", func() {
			Expect(output.MIMEType).To(Equal("image/jpeg"))
		})

		It("should scale preserving aspect ratio", func() {
			b := decodeEncoded(output).Bounds()
			Expect(b.Dx()).To(Equal(1024))
			Expect(b.Dy()).To(Equal(768))
		})
	})

	When("the image is narrower than the limit", func() {
		BeforeEach(func() {
			input = pngOf(300, 200)
		})

		It("should keep its size", func() {
			Expect(err).NotTo(HaveOccurred())
			b := decodeEncoded(output).Bounds()
			Expect(b.Dx()).To(Equal(300))
			Expect(b.Dy()).To(Equal(200))
		})
	})

	When("the image is a GIF", func() {
		BeforeEach(func() {
			img := image.NewPaletted(image.Rect(0, 0, 2048, 1024), palette.Plan9)
			var buf bytes.Buffer
			Expect(gif.Encode(&buf, img, nil)).To(Succeed())
			input = buf.Bytes()
		})

		It("should decode and scale it", func() {
			Expect(err).NotTo(HaveOccurred())
			b := decodeEncoded(output).Bounds()
			Expect(b.Dx()).To(Equal(1024))
			Expect(b.Dy()).To(Equal(512))
		})
	})

	When("the data is not an image", func() {
		BeforeEach(func() {
			input = []byte("definitely not an image")
		})

		It("returns a processing error", func() {
			var perr *ProcessingError
			Expect(err).To(BeAssignableToTypeOf(perr))
			Expect(err.(*ProcessingError).Stage).To(Equal("decode"))
		})
	})

	When("the data is empty", func() {
		BeforeEach(func() {
			input = nil
		})

		It("returns an error", func() {
			Expect(err).To(HaveOccurred())
		})
	})
})

var _ = Describe("Normalizer", func() {
	It("honours a custom width", func() {
		out, err := Normalizer{MaxWidth: 100, Quality: 50}.Normalize(pngOf(400, 100))
		Expect(err).NotTo(HaveOccurred())
		b := decodeEncoded(out).Bounds()
		Expect(b.Dx()).To(Equal(100))
		Expect(b.Dy()).To(Equal(25))
	})
})

var _ = Describe("isHEICFormat", func() {
	It("detects a heic brand", func() {
		Expect(isHEICFormat([]byte("\x00\x00\x00\x18ftypheic\x00\x00"))).To(BeTrue())
	})

	It("rejects other data", func() {
		Expect(isHEICFormat([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x00"))).To(BeFalse())
	})
})
