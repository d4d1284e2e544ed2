package snapshot

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
)

type fakeSurface struct {
	width, height int
	afterLayout   [2]int
	layoutCalls   int
	renderErr     error
	fill          color.NRGBA
}

func (f *fakeSurface) ID() string { return "fake" }
func (f *fakeSurface) Size() (int, int) { return f.width, f.height }
func (f *fakeSurface) SetSecure(bool) error { return nil }

func (f *fakeSurface) Layout() error {
	f.layoutCalls++
	f.width, f.height = f.afterLayout[0], f.afterLayout[1]
	return nil
}

func (f *fakeSurface) Render(dst *image.NRGBA) error {
	if f.renderErr != nil {
		return f.renderErr
	}
	b := dst.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.SetNRGBA(x, y, f.fill)
		}
	}
	return nil
}

func TestCapture_EncodesPNGWithAlpha(t *testing.T) {
	s := &fakeSurface{width: 4, height: 3, fill: color.NRGBA{R: 200, G: 10, B: 10, A: 128}}
	art := NewProducer(0).Capture(s)

	if !art.Captured {
		t.Fatal("expected captured artifact")
	}
	if art.Format != FormatPNG {
		t.Fatalf("expected png format, got %q", art.Format)
	}
	if art.Width != 4 || art.Height != 3 {
		t.Fatalf("unexpected dimensions %dx%d", art.Width, art.Height)
	}

	img, err := png.Decode(bytes.NewReader(art.Encoded))
	if err != nil {
		t.Fatalf("payload is not a PNG: %v", err)
	}
	got := color.NRGBAModel.Convert(img.At(1, 1)).(color.NRGBA)
	if got.A != 128 {
		t.Fatalf("alpha not preserved: got %d", got.A)
	}
	if s.layoutCalls != 0 {
		t.Fatalf("sized surface must not be laid out, got %d passes", s.layoutCalls)
	}
}

func TestCapture_ZeroWidthForcesOneLayout(t *testing.T) {
	s := &fakeSurface{width: 0, height: 10, afterLayout: [2]int{8, 8}}
	art := NewProducer(0).Capture(s)

	if s.layoutCalls != 1 {
		t.Fatalf("expected one layout pass, got %d", s.layoutCalls)
	}
	if !art.Captured {
		t.Fatal("expected capture after layout supplied a size")
	}
}

func TestCapture_StillZeroAfterLayoutFailsClosed(t *testing.T) {
	s := &fakeSurface{width: 0, height: 0, afterLayout: [2]int{0, 0}}
	art := NewProducer(0).Capture(s)

	if s.layoutCalls != 1 {
		t.Fatalf("expected exactly one layout pass, got %d", s.layoutCalls)
	}
	if art.Captured || len(art.Encoded) != 0 || art.Base64() != "" {
		t.Fatalf("expected captured:false with no payload, got %+v", art)
	}
}

func TestCapture_RenderErrorDegrades(t *testing.T) {
	s := &fakeSurface{width: 2, height: 2, renderErr: errors.New("bad drawable")}
	art := NewProducer(0).Capture(s)

	if art.Captured {
		t.Fatal("render failure must yield captured:false")
	}
}

func TestCapture_NilSurface(t *testing.T) {
	if NewProducer(0).Capture(nil).Captured {
		t.Fatal("nil surface must yield captured:false")
	}
}

func TestCapture_Downscales(t *testing.T) {
	s := &fakeSurface{width: 400, height: 200, fill: color.NRGBA{A: 255}}
	art := NewProducer(100).Capture(s)

	if !art.Captured {
		t.Fatal("expected capture")
	}
	if art.Width != 100 || art.Height != 50 {
		t.Fatalf("expected 100x50, got %dx%d", art.Width, art.Height)
	}
}

func TestBase64_NoWrapping(t *testing.T) {
	s := &fakeSurface{width: 64, height: 64, fill: color.NRGBA{R: 1, G: 2, B: 3, A: 4}}
	art := NewProducer(0).Capture(s)

	enc := art.Base64()
	if strings.ContainsAny(enc, "\r\n") {
		t.Fatal("base64 payload must not be line wrapped")
	}
	raw, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		t.Fatalf("payload does not decode: %v", err)
	}
	if !bytes.Equal(raw, art.Encoded) {
		t.Fatal("decoded payload differs from encoded bytes")
	}
}
