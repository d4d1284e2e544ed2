package snapshot

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/png"

	"github.com/bryanchriswhite/ScreenGuard/internal/logger"
	"github.com/bryanchriswhite/ScreenGuard/internal/surface"
	"golang.org/x/image/draw"
)

// Format is the encoding of an artifact payload
type Format string

const (
	// FormatPNG is lossless PNG with alpha
	FormatPNG Format = "png"
)

// Artifact is a transient still image of a surface
type Artifact struct {
	Encoded  []byte
	Format   Format
	Captured bool
	Width    int
	Height   int
}

// Base64 returns the payload as standard base64 without line wrapping
func (a Artifact) Base64() string {
	if !a.Captured || len(a.Encoded) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(a.Encoded)
}

// Producer renders surfaces into PNG artifacts
type Producer struct {
	maxWidth int
	encoder  png.Encoder
}

// NewProducer creates a producer. maxWidth > 0 downscales wider surfaces.
func NewProducer(maxWidth int) *Producer {
	return &Producer{
		maxWidth: maxWidth,
		encoder:  png.Encoder{CompressionLevel: png.DefaultCompression},
	}
}

// Capture renders s into an artifact. It never fails: any sizing, render or
// encode problem yields an artifact with Captured=false.
func (p *Producer) Capture(s surface.Surface) Artifact {
	log := logger.WithComponent("snapshot")
	failed := Artifact{Format: FormatPNG}

	if s == nil {
		return failed
	}

	width, height := s.Size()
	if width <= 0 || height <= 0 {
		log.Debug().
			Str("surface", s.ID()).
			Int("width", width).
			Int("height", height).
			Msg("Surface has no size, forcing layout")
		if err := s.Layout(); err != nil {
			log.Warn().Err(err).Str("surface", s.ID()).Msg("Layout pass failed")
			return failed
		}
		width, height = s.Size()
		if width <= 0 || height <= 0 {
			log.Warn().Str("surface", s.ID()).Msg("Surface still has no size after layout")
			return failed
		}
	}

	data, w, h, err := p.renderAndEncode(s, width, height)
	if err != nil {
		log.Warn().Err(err).Str("surface", s.ID()).Msg("Snapshot failed")
		return failed
	}

	return Artifact{
		Encoded:  data,
		Format:   FormatPNG,
		Captured: true,
		Width:    w,
		Height:   h,
	}
}

// renderAndEncode keeps every full-resolution buffer local to this call so it
// is unreachable as soon as the PNG bytes exist.
func (p *Producer) renderAndEncode(s surface.Surface, width, height int) ([]byte, int, int, error) {
	buf := image.NewNRGBA(image.Rect(0, 0, width, height))
	if err := s.Render(buf); err != nil {
		return nil, 0, 0, err
	}

	var img image.Image = buf
	if p.maxWidth > 0 && width > p.maxWidth {
		img = scale(buf, p.maxWidth)
	}

	var out bytes.Buffer
	if err := p.encoder.Encode(&out, img); err != nil {
		return nil, 0, 0, err
	}
	b := img.Bounds()
	return out.Bytes(), b.Dx(), b.Dy(), nil
}

func scale(src *image.NRGBA, maxWidth int) *image.NRGBA {
	b := src.Bounds()
	height := b.Dy() * maxWidth / b.Dx()
	if height < 1 {
		height = 1
	}
	dst := image.NewNRGBA(image.Rect(0, 0, maxWidth, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}
