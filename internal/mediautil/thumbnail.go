package mediautil

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"io"

	"github.com/ronimuliawan/Wanderer/internal/verr"
)

const thumbnailJPEGQuality = 85

// ImageThumbnail decodes r, resizes with a triangle (bilinear) filter to
// fit within maxSize square while preserving aspect ratio, and returns a
// JPEG-encoded result along with the original decoded dimensions.
func ImageThumbnail(r io.Reader, maxSize int) (jpegBytes []byte, width, height int, err error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, 0, 0, verr.Wrap(verr.KindIO, "decode image", err)
	}
	bounds := img.Bounds()
	width, height = bounds.Dx(), bounds.Dy()

	dstW, dstH := fitSquare(width, height, maxSize)
	resized := resizeTriangle(img, dstW, dstH)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: thumbnailJPEGQuality}); err != nil {
		return nil, 0, 0, verr.Wrap(verr.KindIO, "encode thumbnail", err)
	}
	return buf.Bytes(), width, height, nil
}

func fitSquare(w, h, maxSize int) (int, int) {
	if w <= maxSize && h <= maxSize {
		return w, h
	}
	if w >= h {
		newW := maxSize
		newH := h * maxSize / w
		if newH < 1 {
			newH = 1
		}
		return newW, newH
	}
	newH := maxSize
	newW := w * maxSize / h
	if newW < 1 {
		newW = 1
	}
	return newW, newH
}

// ResizeForModel exposes the same triangle-filter resize used for
// thumbnails to ML preprocessing callers that need a fixed-size input,
// so every resize in the codebase goes through one implementation.
func ResizeForModel(src image.Image, dstW, dstH int) image.Image {
	return resizeTriangle(src, dstW, dstH)
}

// resizeTriangle performs a bilinear ("triangle filter") resize into an
// RGBA destination of the requested dimensions.
func resizeTriangle(src image.Image, dstW, dstH int) *image.RGBA {
	if dstW < 1 {
		dstW = 1
	}
	if dstH < 1 {
		dstH = 1
	}
	bounds := src.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()

	rgba, ok := src.(*image.RGBA)
	if !ok {
		rgba = image.NewRGBA(bounds)
		draw.Draw(rgba, bounds, src, bounds.Min, draw.Src)
	}

	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	xRatio := float64(srcW) / float64(dstW)
	yRatio := float64(srcH) / float64(dstH)

	for y := 0; y < dstH; y++ {
		srcYf := (float64(y)+0.5)*yRatio - 0.5
		y0 := int(srcYf)
		yFrac := srcYf - float64(y0)
		y1 := y0 + 1
		y0 = clampInt(y0, 0, srcH-1)
		y1 = clampInt(y1, 0, srcH-1)

		for x := 0; x < dstW; x++ {
			srcXf := (float64(x)+0.5)*xRatio - 0.5
			x0 := int(srcXf)
			xFrac := srcXf - float64(x0)
			x1 := x0 + 1
			x0 = clampInt(x0, 0, srcW-1)
			x1 = clampInt(x1, 0, srcW-1)

			c00 := rgbaAt(rgba, bounds, x0, y0)
			c10 := rgbaAt(rgba, bounds, x1, y0)
			c01 := rgbaAt(rgba, bounds, x0, y1)
			c11 := rgbaAt(rgba, bounds, x1, y1)

			dst.SetRGBA(x, y, bilerp(c00, c10, c01, c11, xFrac, yFrac))
		}
	}
	return dst
}

type rgbaf struct{ r, g, b, a float64 }

func rgbaAt(img *image.RGBA, bounds image.Rectangle, x, y int) rgbaf {
	off := img.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
	p := img.Pix[off : off+4 : off+4]
	return rgbaf{float64(p[0]), float64(p[1]), float64(p[2]), float64(p[3])}
}

func bilerp(c00, c10, c01, c11 rgbaf, xFrac, yFrac float64) color.RGBA {
	top := lerp(c00, c10, xFrac)
	bot := lerp(c01, c11, xFrac)
	final := lerp(top, bot, yFrac)
	return color.RGBA{
		R: uint8(clampF(final.r)),
		G: uint8(clampF(final.g)),
		B: uint8(clampF(final.b)),
		A: uint8(clampF(final.a)),
	}
}

func lerp(a, b rgbaf, t float64) rgbaf {
	return rgbaf{
		r: a.r + (b.r-a.r)*t,
		g: a.g + (b.g-a.g)*t,
		b: a.b + (b.b-a.b)*t,
		a: a.a + (b.a-a.a)*t,
	}
}

func clampF(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
