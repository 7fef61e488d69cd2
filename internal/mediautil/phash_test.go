package mediautil

import (
	"image"
	"image/color"
	"testing"
)

func solidImage(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func checkerImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x/4+y/4)%2 == 0 {
				img.Set(x, y, color.White)
			} else {
				img.Set(x, y, color.Black)
			}
		}
	}
	return img
}

func TestPerceptualHashIsStableForIdenticalImages(t *testing.T) {
	img := checkerImage(64, 64)
	a := PerceptualHash(img)
	b := PerceptualHash(img)
	if a != b {
		t.Fatalf("expected identical images to hash identically, got %s and %s", a, b)
	}
}

func TestPerceptualHashDiffersBetweenDissimilarImages(t *testing.T) {
	white := PerceptualHash(solidImage(64, 64, color.White))
	checker := PerceptualHash(checkerImage(64, 64))
	if white == checker {
		t.Fatal("expected a solid image and a checkerboard to hash differently")
	}
	if HammingDistance64(white, checker) == 0 {
		t.Fatal("expected a nonzero Hamming distance between dissimilar images")
	}
}

func TestHammingDistance64ZeroForEqualHashes(t *testing.T) {
	h := PerceptualHash(checkerImage(32, 32))
	if d := HammingDistance64(h, h); d != 0 {
		t.Fatalf("expected zero distance for identical hashes, got %d", d)
	}
}

func TestHammingDistance64ReturnsMaxForMalformedInput(t *testing.T) {
	valid := PerceptualHash(solidImage(32, 32, color.Black))
	if d := HammingDistance64(valid, "not-valid-base64!!"); d != 64 {
		t.Fatalf("expected malformed input to report max distance 64, got %d", d)
	}
	if d := HammingDistance64("", ""); d != 64 {
		t.Fatalf("expected empty input to report max distance 64, got %d", d)
	}
}
